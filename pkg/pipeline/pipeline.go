// Package pipeline implements the per-request state machine: route to
// an upstream, evaluate the headers phase, buffer and evaluate the
// body phase, and hand the decision back to the proxy layer as a plain
// HTTP status plus an optional list of recorded violations.
package pipeline

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/shieldcli/shieldproxy/pkg/inspector"
	"github.com/shieldcli/shieldproxy/pkg/logging"
	"github.com/shieldcli/shieldproxy/pkg/metrics"
	"github.com/shieldcli/shieldproxy/pkg/router"
	"github.com/shieldcli/shieldproxy/pkg/waf"
	"github.com/shieldcli/shieldproxy/pkg/wafreg"
)

// Violation is one recorded rule hit or synthetic pseudo-violation
// (body-too-large uses rule_id 413).
type Violation struct {
	RuleID uint32
	Reason string
	Source string // "header" or "body"
}

// Context is per-request scratch state: created at the first
// headers-phase call, discarded when the request completes. It is never
// shared across requests or goroutines.
type Context struct {
	ClientIP   string
	UpstreamKey string
	Body       *inspector.BodyInspector
	Violations []Violation
}

// Outcome is what the pipeline decided for one phase.
type Outcome struct {
	Allowed    bool
	StatusCode int
	Message    string
	UpstreamKey string
}

// Pipeline wires a Router to an EngineRegistry to run both phases.
type Pipeline struct {
	router      *router.Router
	registry    *wafreg.Registry
	maxBodySize int
	log         *logging.Logger
}

// New builds a Pipeline. maxBodySize <= 0 uses inspector.DefaultMaxSize.
func New(r *router.Router, reg *wafreg.Registry, maxBodySize int, log *logging.Logger) *Pipeline {
	return &Pipeline{router: r, registry: reg, maxBodySize: maxBodySize, log: log}
}

// NewContext starts a RequestContext for one inbound request.
func (p *Pipeline) NewContext(clientIP string) *Context {
	return &Context{
		ClientIP: clientIP,
		Body:     inspector.New(p.maxBodySize, true),
	}
}

// RequestLine synthesizes the "<METHOD> <URI> HTTP/<major>.<minor>"
// string REQUEST_LINE rules match against. Unknown protocol strings
// default to HTTP/1.1.
func RequestLine(r *http.Request) string {
	version := "HTTP/1.1"
	if r.ProtoMajor > 0 {
		version = fmt.Sprintf("HTTP/%d.%d", r.ProtoMajor, r.ProtoMinor)
	}
	return fmt.Sprintf("%s %s %s", r.Method, r.URL.RequestURI(), version)
}

// HeadersPhase routes the request, evaluates phase-1 rules, and reports
// the outcome. A route miss yields 404; a resolved upstream with no
// registered engine yields 500 and is logged as an invariant
// violation, since the registry is built from the same configuration
// the router reads.
func (p *Pipeline) HeadersPhase(ctx *Context, r *http.Request) Outcome {
	host := strings.ToLower(strings.TrimSpace(r.Host))
	if host == "" {
		host = "unknown"
	}

	upstreamKey, ok := p.router.Route(host)
	if !ok {
		return Outcome{Allowed: false, StatusCode: http.StatusNotFound, Message: "no upstream configured"}
	}
	ctx.UpstreamKey = upstreamKey
	metrics.RequestsTotal.WithLabelValues(upstreamKey).Inc()

	cell, ok := p.registry.Get(upstreamKey)
	if !ok {
		p.log.Error("no engine registered for upstream %s", upstreamKey)
		return Outcome{Allowed: false, StatusCode: http.StatusInternalServerError, Message: "no WAF engine for upstream", UpstreamKey: upstreamKey}
	}

	in := waf.Input{
		RequestLine: RequestLine(r),
		URI:         r.URL.RequestURI(),
		Headers:     r.Header,
	}

	// The engine pointer is read once under the cell's read lock and
	// evaluation runs against that copy outside any lock, so a reload
	// racing this call can never block it and can only affect the
	// *next* evaluation.
	engine := cell.Current()
	verdict := engine.EvaluateHeaders(in)
	if !verdict.Allowed {
		ctx.Violations = append(ctx.Violations, Violation{RuleID: verdict.MatchedRuleID, Reason: verdict.Reason, Source: "header"})
		metrics.BlockedTotal.WithLabelValues(upstreamKey, "header").Inc()
		p.log.Block(verdict.MatchedRuleID, verdict.Status, "host=%s uri=%s reason=%s", host, r.URL.Path, verdict.Reason)
		return Outcome{Allowed: false, StatusCode: verdict.Status, Message: verdict.Message, UpstreamKey: upstreamKey}
	}
	return Outcome{Allowed: true, StatusCode: http.StatusOK, UpstreamKey: upstreamKey}
}

// AppendBody feeds one inbound chunk to the body inspector. An overflow
// produces a synthetic 413 violation per §4.6/§7 and terminates the
// request without consulting the rule engine.
func (p *Pipeline) AppendBody(ctx *Context, chunk []byte) Outcome {
	if err := ctx.Body.Append(chunk); err != nil {
		ctx.Violations = append(ctx.Violations, Violation{RuleID: 413, Reason: err.Error(), Source: "body"})
		return Outcome{Allowed: false, StatusCode: http.StatusRequestEntityTooLarge, Message: err.Error(), UpstreamKey: ctx.UpstreamKey}
	}
	return Outcome{Allowed: true, StatusCode: http.StatusOK, UpstreamKey: ctx.UpstreamKey}
}

// BodyPhase evaluates phase-2 rules against the buffered body once the
// upstream has signalled end-of-stream. An empty body skips evaluation
// entirely and allows the request through.
func (p *Pipeline) BodyPhase(ctx *Context, r *http.Request) Outcome {
	body := ctx.Body.Bytes()
	if len(body) == 0 {
		return Outcome{Allowed: true, StatusCode: http.StatusOK, UpstreamKey: ctx.UpstreamKey}
	}

	cell, ok := p.registry.Get(ctx.UpstreamKey)
	if !ok {
		p.log.Error("no engine registered for upstream %s", ctx.UpstreamKey)
		return Outcome{Allowed: false, StatusCode: http.StatusInternalServerError, Message: "no WAF engine for upstream", UpstreamKey: ctx.UpstreamKey}
	}

	in := waf.Input{
		RequestLine: RequestLine(r),
		URI:         r.URL.RequestURI(),
		Headers:     r.Header,
		Body:        body,
	}

	engine := cell.Current()
	verdict := engine.EvaluateBody(in)
	if !verdict.Allowed {
		ctx.Violations = append(ctx.Violations, Violation{RuleID: verdict.MatchedRuleID, Reason: verdict.Reason, Source: "body"})
		metrics.BlockedTotal.WithLabelValues(ctx.UpstreamKey, "body").Inc()
		p.log.Block(verdict.MatchedRuleID, verdict.Status, "host=%s uri=%s reason=%s (body phase)", r.Host, r.URL.Path, verdict.Reason)
		return Outcome{Allowed: false, StatusCode: verdict.Status, Message: verdict.Message, UpstreamKey: ctx.UpstreamKey}
	}
	return Outcome{Allowed: true, StatusCode: http.StatusOK, UpstreamKey: ctx.UpstreamKey}
}
