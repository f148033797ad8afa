package waf

import (
	"strconv"
	"strings"

	"github.com/corazawaf/coraza/v3"
	"github.com/corazawaf/coraza/v3/types"
)

// CorazaEngine is the alternative Engine implementation design note §9
// calls out: "a ModSecurity-backed engine is an optional alternative
// implementation of the Engine contract". It delegates parsing and
// evaluation to Coraza's own SecLang interpreter instead of this
// package's tabular/SecRule parser, so it accepts real CRS-style rule
// files the hand-rolled parser would only partially understand
// (chained rules, transformations, collections).
//
// Selected per-upstream via the config's "waf_engine: coraza" field;
// the default engine stays the native one.
type CorazaEngine struct {
	waf types.WAF
}

// LoadCoraza reads directives from path through Coraza's own file
// loader and builds a WAF instance from them.
func LoadCoraza(path string) (*CorazaEngine, error) {
	config := coraza.NewWAFConfig().WithDirectivesFromFile(path)
	w, err := coraza.NewWAF(config)
	if err != nil {
		return nil, err
	}
	return &CorazaEngine{waf: w}, nil
}

// EvaluateHeaders feeds the request line and headers through a fresh
// Coraza transaction and reports any phase-1 interruption.
func (e *CorazaEngine) EvaluateHeaders(in Input) Verdict {
	tx := e.waf.NewTransaction()
	defer tx.Close()
	defer tx.ProcessLogging()

	method, version := splitRequestLine(in.RequestLine)
	tx.ProcessURI(in.URI, method, version)

	for name, values := range in.Headers {
		for _, v := range values {
			tx.AddRequestHeader(name, v)
		}
	}

	if it := tx.ProcessRequestHeaders(); it != nil {
		return verdictFromInterruption(it)
	}
	return Verdict{Allowed: true, Status: 200}
}

// EvaluateBody feeds the buffered body through a fresh transaction that
// has already replayed the headers, then reports phase-2 interruptions.
func (e *CorazaEngine) EvaluateBody(in Input) Verdict {
	tx := e.waf.NewTransaction()
	defer tx.Close()
	defer tx.ProcessLogging()

	method, version := splitRequestLine(in.RequestLine)
	tx.ProcessURI(in.URI, method, version)
	for name, values := range in.Headers {
		for _, v := range values {
			tx.AddRequestHeader(name, v)
		}
	}
	if it := tx.ProcessRequestHeaders(); it != nil {
		return verdictFromInterruption(it)
	}

	if len(in.Body) > 0 {
		if _, _, err := tx.WriteRequestBody(in.Body); err != nil {
			return Verdict{Allowed: true, Status: 200}
		}
	}
	it, err := tx.ProcessRequestBody()
	if err != nil {
		return Verdict{Allowed: true, Status: 200}
	}
	if it != nil {
		return verdictFromInterruption(it)
	}
	return Verdict{Allowed: true, Status: 200}
}

// Summary returns a zero Summary, total included; Coraza does not expose
// per-rule counts through its public API the way the native engine's
// RuleSet does.
func (e *CorazaEngine) Summary() Summary {
	return Summary{}
}

// Close is a no-op; Coraza transactions are per-evaluation and closed at
// the end of each Evaluate call, so the WAF instance itself holds nothing to
// release. Safe to call concurrently with in-flight evaluations.
func (e *CorazaEngine) Close() {}

func verdictFromInterruption(it *types.Interruption) Verdict {
	status := it.Status
	if status == 0 {
		status = 403
	}
	return Verdict{
		Allowed:       false,
		MatchedRuleID: uint32(it.RuleID),
		Reason:        it.Action,
		Message:       "blocked by Coraza rule " + strconv.Itoa(it.RuleID),
		Status:        status,
	}
}

// splitRequestLine recovers "METHOD" and "MAJOR.MINOR" from the
// synthesized request-line string; unknown shapes default to GET and
// HTTP/1.1.
func splitRequestLine(line string) (method, version string) {
	parts := strings.Fields(line)
	method = "GET"
	version = "1.1"
	if len(parts) >= 1 && parts[0] != "" {
		method = parts[0]
	}
	if len(parts) >= 3 {
		version = strings.TrimPrefix(parts[2], "HTTP/")
	}
	return method, version
}
