package waf

import (
	"regexp"
	"strings"
)

// Matches evaluates a single operator against a subject/argument pair. It is
// a pure predicate: no rule state, no compiled-regex cache. Rule evaluation
// inside Engine uses the precompiled regex on Rule instead of calling this
// for the "rx" operator on a hot path; Matches recompiles the regex on every
// call. Rule.Match calls it for every other operator.
func Matches(operator, subject, argument string) bool {
	switch operator {
	case "contains", "pm":
		return strings.Contains(subject, argument)
	case "streq":
		return subject == argument
	case "beginswith":
		return strings.HasPrefix(subject, argument)
	case "!beginswith":
		return !strings.HasPrefix(subject, argument)
	case "rx":
		re, err := regexp.Compile("(?i)" + argument)
		if err != nil {
			return false
		}
		return re.MatchString(subject)
	default:
		return false
	}
}

// Describe returns a stable human-readable phrase for an operator; unknown
// operators yield "has unknown operator".
func Describe(operator string) string {
	switch operator {
	case "contains", "pm":
		return "contains"
	case "streq":
		return "equals"
	case "beginswith":
		return "begins with"
	case "!beginswith":
		return "does not begin with"
	case "rx":
		return "matches regex"
	default:
		return "has unknown operator"
	}
}
