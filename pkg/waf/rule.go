package waf

import (
	"regexp"
	"strings"
)

// Rule is a single compiled match specification. Once returned from the
// parser its fields are immutable; Compile fills in the precompiled regex
// for "rx" operators.
type Rule struct {
	ID        uint32
	Phase     uint8
	Variable  string
	Operator  string
	Pattern   string
	Actions   map[string]string
	Msg       string
	Status    int
	regex     *regexp.Regexp
	regexOK   bool
	headerKey string // lower-cased header name, set for REQUEST_HEADERS:<name>
}

// Deny reports whether the rule, once matched, blocks the request. Any
// action value other than "deny" is logging-only.
func (r *Rule) Deny() bool {
	return r.Actions["action"] == "deny"
}

// EffectiveStatus returns the status to answer with when this rule denies,
// defaulting to 403.
func (r *Rule) EffectiveStatus() int {
	if r.Status > 0 {
		return r.Status
	}
	return 403
}

// Compile prepares derived fields. A malformed "rx" pattern demotes the
// rule to "never matches" instead of failing the load.
func (r *Rule) Compile() {
	r.Operator = strings.ToLower(r.Operator)
	if r.Operator == "rx" {
		if re, err := regexp.Compile("(?i)" + r.Pattern); err == nil {
			r.regex = re
			r.regexOK = true
		}
	}
	const headerPrefix = "REQUEST_HEADERS:"
	if upper := strings.ToUpper(r.Variable); strings.HasPrefix(upper, headerPrefix) {
		r.headerKey = strings.ToLower(r.Variable[len(headerPrefix):])
	}
}

// Match applies the rule's operator to subject, which the caller has
// already extracted for this rule's variable.
func (r *Rule) Match(subject string) bool {
	if r.Operator == "rx" {
		if !r.regexOK {
			return false
		}
		return r.regex.MatchString(subject)
	}
	return Matches(r.Operator, strings.ToLower(subject), strings.ToLower(r.Pattern))
}

// RuleSet is an ordered, evaluation-order sequence of rules.
type RuleSet struct {
	Rules []*Rule
}

// NewRuleSet compiles every rule and returns the set in source order. No
// deduplication by ID is performed: with duplicate IDs the earlier rule
// wins because evaluation is first-match-wins.
func NewRuleSet(rules []*Rule) *RuleSet {
	for _, r := range rules {
		r.Compile()
	}
	return &RuleSet{Rules: rules}
}

// Summary is the aggregate rule-set counters exposed by Engine.Summary and
// the admin /stats and /info endpoints.
type Summary struct {
	Total        int
	Blocking     int
	LoggingOnly  int
	URIScoped    int
	HeaderScoped int
}

// Summary reports the rule set's aggregate counters.
func (rs *RuleSet) Summary() Summary {
	return rs.summary()
}

func (rs *RuleSet) summary() Summary {
	var s Summary
	for _, r := range rs.Rules {
		s.Total++
		if r.Deny() {
			s.Blocking++
		} else {
			s.LoggingOnly++
		}
		switch {
		case r.Variable == "REQUEST_URI":
			s.URIScoped++
		case strings.HasPrefix(strings.ToUpper(r.Variable), "REQUEST_HEADERS:"):
			s.HeaderScoped++
		}
	}
	return s
}

func (rs *RuleSet) phaseBuckets() (phase1, phase2 []*Rule) {
	for _, r := range rs.Rules {
		if r.Phase == 2 {
			phase2 = append(phase2, r)
		} else {
			phase1 = append(phase1, r)
		}
	}
	return phase1, phase2
}
