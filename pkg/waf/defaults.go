package waf

// DefaultRules returns a small built-in OWASP-style rule set, ported from
// the teacher's hand-coded engine.addDefaultRules. It backs `rules list`
// with no path argument; rules/default/default.conf holds the same rules
// in SecRule-text form for the registry's fallback.
func DefaultRules() []*Rule {
	rules := []*Rule{
		{
			ID:       1001,
			Phase:    2,
			Variable: "REQUEST_BODY",
			Operator: "rx",
			Pattern:  `(?i)('\s*or\s*'?1'?\s*=\s*'?1|union\s+select|;\s*drop\s+table|xp_cmdshell)`,
			Actions:  map[string]string{"action": "deny"},
			Msg:      "SQL injection - common patterns",
			Status:   403,
		},
		{
			ID:       1002,
			Phase:    2,
			Variable: "REQUEST_BODY",
			Operator: "rx",
			Pattern:  `(?i)(<script|javascript:|onerror=|onload=|<iframe|<svg)`,
			Actions:  map[string]string{"action": "deny"},
			Msg:      "Cross-site scripting (XSS)",
			Status:   403,
		},
		{
			ID:       1003,
			Phase:    1,
			Variable: "REQUEST_URI",
			Operator: "rx",
			Pattern:  `\.\.[/\\]|\.\.%2[fF]`,
			Actions:  map[string]string{"action": "deny"},
			Msg:      "Path traversal",
			Status:   403,
		},
		{
			ID:       1004,
			Phase:    2,
			Variable: "REQUEST_BODY",
			Operator: "rx",
			Pattern:  `[;&|\n]\s*(cat|ls|rm|wget|curl|bash|sh|cmd|powershell)`,
			Actions:  map[string]string{"action": "deny"},
			Msg:      "Command injection",
			Status:   403,
		},
		{
			ID:       1005,
			Phase:    1,
			Variable: "REQUEST_HEADERS:User-Agent",
			Operator: "contains",
			Pattern:  "badbot",
			Actions:  map[string]string{"action": "deny"},
			Msg:      "Suspicious User-Agent",
			Status:   403,
		},
	}
	return rules
}

// DefaultRuleSet compiles DefaultRules into a ready RuleSet.
func DefaultRuleSet() *RuleSet {
	return NewRuleSet(DefaultRules())
}
