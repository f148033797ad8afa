// Package admin implements the small administrative HTTP surface:
// reload, stats, health, info, and per-upstream summaries. It is
// intentionally a manual net/http.ServeMux dispatch rather than a
// router library, matching the scale of the original hyper handler it
// is grounded on.
package admin

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/shieldcli/shieldproxy/pkg/metrics"
	"github.com/shieldcli/shieldproxy/pkg/waf"
	"github.com/shieldcli/shieldproxy/pkg/wafreg"
)

// Server answers the admin surface for one EngineRegistry.
type Server struct {
	registry *wafreg.Registry
	mux      *http.ServeMux
}

// New builds a Server and registers its routes.
func New(registry *wafreg.Registry) *Server {
	s := &Server{registry: registry, mux: http.NewServeMux()}
	s.mux.HandleFunc("/reload", s.handleReload)
	s.mux.HandleFunc("/stats", s.handleStats)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/info", s.handleInfo)
	s.mux.HandleFunc("/server/", s.handleServer)
	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("/", s.handleNotFound)
	return s
}

// ServeHTTP lets Server be dropped directly into an http.Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	failures := s.registry.ReloadAll()
	if len(failures) == 0 {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "all WAF rules reloaded successfully")
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintln(w, "reload failed for one or more upstreams:")
	for key, err := range failures {
		fmt.Fprintf(w, "  %s: %v\n", key, err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	summaries := s.registry.Summaries()
	w.WriteHeader(http.StatusOK)
	for _, key := range sortedKeys(summaries) {
		sum := summaries[key]
		fmt.Fprintf(w, "%s: total=%d blocking=%d logging_only=%d uri_scoped=%d header_scoped=%d\n",
			key, sum.Total, sum.Blocking, sum.LoggingOnly, sum.URIScoped, sum.HeaderScoped)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "healthy")
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	summaries := s.registry.Summaries()
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "WAF engines: %d upstreams configured\n", len(summaries))
	for _, key := range sortedKeys(summaries) {
		sum := summaries[key]
		fmt.Fprintf(w, "  %s: %d rules (%d blocking)\n", key, sum.Total, sum.Blocking)
	}
}

func (s *Server) handleServer(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/server/")
	if name == "" {
		s.handleNotFound(w, r)
		return
	}
	cell, ok := s.registry.Get(name)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "no such upstream: %s\n", name)
		return
	}
	sum := cell.Summary()
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "%s: total=%d blocking=%d logging_only=%d path=%s\n",
		name, sum.Total, sum.Blocking, sum.LoggingOnly, cell.Path())
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintln(w, "endpoint not found. Available: /reload, /stats, /health, /info, /server/<name>, /metrics")
}

func sortedKeys(m map[string]waf.Summary) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
