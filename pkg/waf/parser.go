package waf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// tomlRule is the tabular on-disk shape, grounded on
// centaur-core/src/waf/parser.rs's TomlRule/TomlRulesFile.
type tomlRule struct {
	ID        uint32 `toml:"id"`
	Phase     uint32 `toml:"phase"`
	Variables string `toml:"variables"`
	Operators string `toml:"operators"`
	Pattern   string `toml:"pattern"`
	Actions   string `toml:"actions"`
	Status    uint16 `toml:"status"`
	Msg       string `toml:"msg"`
}

type tomlRulesFile struct {
	Rule []tomlRule `toml:"rule"`
}

// ParseRulesFile reads and parses a rules file, accepting either the
// tabular TOML form or the textual SecRule form. An empty path yields an
// empty rule set.
func ParseRulesFile(path string) (*RuleSet, error) {
	if path == "" {
		return NewRuleSet(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file %s: %w", path, err)
	}
	return ParseRules(data)
}

// ParseRules parses in-memory rules-file content.
func ParseRules(data []byte) (*RuleSet, error) {
	content := strings.TrimSpace(string(data))
	if content == "" {
		return NewRuleSet(nil), nil
	}
	if looksTabular(content) {
		return parseTabular(data)
	}
	return parseSecRuleText(content), nil
}

// looksTabular inspects the first non-blank, non-comment line: tabular
// rule files open with a "[[rule]]" (or "[rule]") TOML table header.
func looksTabular(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return strings.HasPrefix(line, "[[rule") || strings.HasPrefix(line, "[rule")
	}
	return false
}

func parseTabular(data []byte) (*RuleSet, error) {
	var file tomlRulesFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse tabular rules: %w", err)
	}

	rules := make([]*Rule, 0, len(file.Rule))
	for _, tr := range file.Rule {
		actions := parseActionList(tr.Actions)
		rules = append(rules, &Rule{
			ID:       tr.ID,
			Phase:    normalizePhase(uint8(tr.Phase)),
			Variable: tr.Variables,
			Operator: strings.ToLower(tr.Operators),
			Pattern:  tr.Pattern,
			Actions:  actions,
			Msg:      tr.Msg,
			Status:   int(tr.Status),
		})
	}
	return NewRuleSet(rules), nil
}

// parseSecRuleText parses one rule per "SecRule <VAR> \"@<op> <arg>\"
// \"<actions>\"" line. Blank lines and "#" comments are ignored; malformed
// lines are skipped with no error — a failing load is reserved for
// structural failures in the tabular form.
func parseSecRuleText(content string) *RuleSet {
	var rules []*Rule
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		rule, ok := parseSecRuleLine(trimmed)
		if !ok {
			continue
		}
		rules = append(rules, rule)
	}
	return NewRuleSet(rules)
}

func parseSecRuleLine(line string) (*Rule, bool) {
	if !strings.HasPrefix(strings.ToUpper(line), "SECRULE") {
		return nil, false
	}
	fields := splitQuoted(line)
	if len(fields) != 4 {
		return nil, false
	}
	variable := fields[1]

	opArg := strings.TrimSpace(fields[2])
	if !strings.HasPrefix(opArg, "@") {
		return nil, false
	}
	opArg = opArg[1:]
	operator, argument, _ := strings.Cut(opArg, " ")
	argument = strings.TrimSpace(argument)

	actionsMap := parseActionList(fields[3])

	id, _ := strconv.ParseUint(actionsMap["id"], 10, 32)
	phase, _ := strconv.ParseUint(actionsMap["phase"], 10, 8)
	status, _ := strconv.Atoi(actionsMap["status"])

	return &Rule{
		ID:       uint32(id),
		Phase:    normalizePhase(uint8(phase)),
		Variable: variable,
		Operator: strings.ToLower(operator),
		Pattern:  argument,
		Actions:  actionsMap,
		Msg:      actionsMap["msg"],
		Status:   status,
	}, true
}

// splitQuoted splits a SecRule line into ["SecRule", VAR, "@op arg", actions]
// respecting double-quoted fields.
func splitQuoted(line string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields
}

// parseActionList parses a comma-separated "key[:value]" action list. A
// bare token among {deny,allow,pass,block,log} sets the "action" key;
// quoted values have their surrounding quotes stripped.
func parseActionList(raw string) map[string]string {
	actions := make(map[string]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return actions
	}
	if !strings.Contains(raw, ",") && !strings.Contains(raw, ":") {
		actions["action"] = strings.ToLower(raw)
		return actions
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, val, hasVal := strings.Cut(part, ":")
		key = strings.ToLower(strings.TrimSpace(key))
		if !hasVal {
			switch key {
			case "deny", "allow", "pass", "block", "log":
				actions["action"] = key
			default:
				actions[key] = ""
			}
			continue
		}
		val = strings.TrimSpace(val)
		val = strings.Trim(val, "'\"")
		actions[key] = val
	}
	return actions
}

func normalizePhase(phase uint8) uint8 {
	if phase == 2 {
		return 2
	}
	return 1
}
