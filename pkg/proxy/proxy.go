// Package proxy wires the router, engine registry, and request
// pipeline into an actual net/http reverse proxy server, one
// httputil.ReverseProxy per configured upstream, in the teacher's
// ReverseProxy-based style.
package proxy

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/shieldcli/shieldproxy/pkg/config"
	"github.com/shieldcli/shieldproxy/pkg/logging"
	"github.com/shieldcli/shieldproxy/pkg/pipeline"
)

// Server is a reverse proxy guarded by a WAF pipeline, fanning out to
// one backend per upstream key.
type Server struct {
	pipeline *pipeline.Pipeline
	backends map[string]*httputil.ReverseProxy
	logger   *logging.Logger
	listener net.Listener
	server   *http.Server
}

// NewServer builds the per-upstream reverse proxies and wraps them with
// the WAF pipeline.
func NewServer(upstreams []config.UpstreamConfig, p *pipeline.Pipeline, logger *logging.Logger) (*Server, error) {
	backends := make(map[string]*httputil.ReverseProxy, len(upstreams))
	for _, u := range upstreams {
		addr := u.FirstAddr()
		if addr == "" {
			return nil, fmt.Errorf("upstream %s has no address configured", u.Key())
		}
		scheme := "http"
		if u.UseTLS {
			scheme = "https"
		}
		target, err := url.Parse(fmt.Sprintf("%s://%s", scheme, addr))
		if err != nil {
			return nil, fmt.Errorf("invalid upstream address %q: %w", addr, err)
		}

		rp := httputil.NewSingleHostReverseProxy(target)
		baseDirector := rp.Director
		rp.Director = func(req *http.Request) {
			baseDirector(req)
			req.Header.Add("X-Forwarded-For", req.RemoteAddr)
			req.Header.Add("X-Forwarded-Proto", "http")
			req.Header.Add("X-Forwarded-Host", req.Host)
		}
		key := u.Key()
		rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("upstream %s proxy error: %v", key, err)
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("Bad Gateway"))
		}
		backends[key] = rp
	}

	return &Server{pipeline: p, backends: backends, logger: logger}, nil
}

// Start binds addr and serves until Stop is called or the listener
// errors.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:      http.HandlerFunc(s.handleRequest),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s.server.Serve(listener)
}

// Stop closes the listener, causing Start to return.
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// readChunkSize bounds how much of the body is read into memory
// between AppendBody calls, so an overflowing body is caught after at
// most one chunk past max_body_size rather than after a full
// unbounded read.
const readChunkSize = 32 * 1024

// handleRequest runs the two-phase WAF pipeline ahead of forwarding,
// streaming the request body through the inspector in bounded chunks
// (§4.6/§5's memory-bound invariant) so both phases and the eventual
// reverse-proxy write see the same bytes.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("incoming request: %s %s from %s", r.Method, r.RequestURI, r.RemoteAddr)

	ctx := s.pipeline.NewContext(clientIP(r))

	out := s.pipeline.HeadersPhase(ctx, r)
	if !out.Allowed {
		respond(w, out)
		return
	}

	if r.Body != nil && r.ContentLength != 0 {
		body, outcome, err := readBodyBounded(s.pipeline, ctx, r.Body)
		r.Body.Close()
		if err != nil {
			s.logger.Error("failed to read request body: %v", err)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if outcome != nil {
			respond(w, *outcome)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
	}

	if out = s.pipeline.BodyPhase(ctx, r); !out.Allowed {
		respond(w, out)
		return
	}

	backend, ok := s.backends[ctx.UpstreamKey]
	if !ok {
		s.logger.Error("no backend configured for upstream %s", ctx.UpstreamKey)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
	backend.ServeHTTP(wrapped, r)
	s.logger.Debug("response: %d %s", wrapped.statusCode, http.StatusText(wrapped.statusCode))
}

// readBodyBounded reads r in readChunkSize pieces, feeding each chunk to
// the pipeline's body inspector as it arrives. It stops and returns the
// inspector's outcome as soon as a chunk overflows, without reading the
// rest of the body, so an oversized or unbounded (chunked,
// no-Content-Length) body never accumulates past max_body_size in
// memory.
func readBodyBounded(p *pipeline.Pipeline, ctx *pipeline.Context, r io.Reader) ([]byte, *pipeline.Outcome, error) {
	var body []byte
	buf := make([]byte, readChunkSize)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if out := p.AppendBody(ctx, chunk); !out.Allowed {
				return nil, &out, nil
			}
			body = append(body, chunk...)
		}
		if readErr == io.EOF {
			return body, nil, nil
		}
		if readErr != nil {
			return nil, nil, readErr
		}
	}
}

func respond(w http.ResponseWriter, out pipeline.Outcome) {
	w.WriteHeader(out.StatusCode)
	if out.Message != "" {
		w.Write([]byte(out.Message))
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseWriter wraps http.ResponseWriter to capture the status code
// for the post-forward debug log line.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	if !rw.written {
		rw.statusCode = statusCode
		rw.written = true
		rw.ResponseWriter.WriteHeader(statusCode)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
