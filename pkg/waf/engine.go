// Package waf implements the rule engine: the operator library, the
// tabular/SecRule parser, and the Engine that compiles a rule set and
// evaluates requests against it.
package waf

import (
	"net/http"
)

// Verdict is the outcome of evaluating a request (or one phase of it)
// against a rule set.
type Verdict struct {
	Allowed       bool
	MatchedRuleID uint32
	MatchedVar    string
	MatchedValue  string
	Reason        string
	Message       string
	Status        int
}

// Input carries everything a rule's variable might need to read.
type Input struct {
	RequestLine string
	URI         string
	Headers     http.Header
	Body        []byte // nil means "not yet available" (headers phase)
}

// Evaluator is the Engine contract. The native Engine and the
// Coraza-backed alternative (coraza_engine.go) both satisfy it, per the
// "ModSecurity binding is an optional alternative implementation"
// design note.
type Evaluator interface {
	EvaluateHeaders(in Input) Verdict
	EvaluateBody(in Input) Verdict
	Summary() Summary
	Close()
}

// Engine owns a compiled rule set and evaluates requests against it in
// source order, first-match-wins. It is immutable once built; reload
// builds a new Engine rather than mutating this one.
type Engine struct {
	set    *RuleSet
	phase1 []*Rule
	phase2 []*Rule
}

// Load reads a rules file and compiles it into an Engine. I/O failures
// and structurally invalid tabular files are returned as errors; a
// malformed SecRule line is skipped instead of failing the load.
func Load(path string) (*Engine, error) {
	set, err := ParseRulesFile(path)
	if err != nil {
		return nil, err
	}
	return NewEngine(set), nil
}

// NewEngine partitions an already-parsed rule set into phase buckets so
// headers-phase and body-phase evaluation are each a single linear scan.
func NewEngine(set *RuleSet) *Engine {
	phase1, phase2 := set.phaseBuckets()
	return &Engine{set: set, phase1: phase1, phase2: phase2}
}

// EvaluateHeaders runs phase-1 rules (REQUEST_LINE, REQUEST_URI,
// REQUEST_HEADERS:*) against the request. REQUEST_BODY rules are phase-2
// and are never consulted here.
func (e *Engine) EvaluateHeaders(in Input) Verdict {
	return evaluate(e.phase1, in)
}

// EvaluateBody runs phase-2 rules once the full body is available. An
// absent body (in.Body == nil) makes every REQUEST_BODY rule inert, so
// callers should skip this call entirely when the body is empty.
func (e *Engine) EvaluateBody(in Input) Verdict {
	return evaluate(e.phase2, in)
}

// Summary reports aggregate counts for the admin /stats and /info
// endpoints and the "rules list" CLI output.
func (e *Engine) Summary() Summary {
	return e.set.summary()
}

// Close releases no resources; it exists so Engine satisfies Evaluator
// alongside the Coraza-backed alternative. Safe to call concurrently
// with in-flight evaluations.
func (e *Engine) Close() {}

func evaluate(rules []*Rule, in Input) Verdict {
	for _, rule := range rules {
		subject, present := extractSubject(rule, in)
		if !present {
			continue
		}
		if !rule.Match(subject) {
			continue
		}
		return Verdict{
			Allowed:       !rule.Deny(),
			MatchedRuleID: rule.ID,
			MatchedVar:    rule.Variable,
			MatchedValue:  subject,
			Reason:        rule.Msg,
			Message:       rule.Msg,
			Status:        rule.EffectiveStatus(),
		}
	}
	return Verdict{Allowed: true, MatchedRuleID: 0, Status: 200}
}

func extractSubject(rule *Rule, in Input) (string, bool) {
	switch {
	case rule.Variable == "REQUEST_URI":
		return in.URI, true
	case rule.Variable == "REQUEST_LINE":
		return in.RequestLine, true
	case rule.headerKey != "":
		if in.Headers == nil {
			return "", false
		}
		values := in.Headers.Values(rule.headerKey)
		if len(values) == 0 {
			return "", false
		}
		return values[0], true
	case rule.Variable == "REQUEST_BODY":
		if in.Body == nil {
			return "", false
		}
		return string(in.Body), true
	default:
		return "", false
	}
}
