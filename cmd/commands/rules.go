package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shieldcli/shieldproxy/pkg/waf"
	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate WAF rule files",
}

var rulesListCmd = &cobra.Command{
	Use:   "list [path]",
	Short: "List the rules a file compiles to, or the built-in defaults with no path",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		return rulesList(path)
	},
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Parse a rules file and report errors without starting the proxy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return rulesValidate(args[0])
	},
}

func init() {
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesValidateCmd)
}

func rulesList(path string) error {
	var set *waf.RuleSet
	if path == "" {
		set = waf.DefaultRuleSet()
		fmt.Println("Built-in default rules:")
	} else {
		var err error
		set, err = waf.ParseRulesFile(path)
		if err != nil {
			fmt.Printf("Error: failed to parse %s: %v\n", path, err)
			return err
		}
		fmt.Printf("Rules from %s:\n", path)
	}

	if len(set.Rules) == 0 {
		fmt.Println("No rules found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPHASE\tVARIABLE\tOPERATOR\tPATTERN\tACTION\tSTATUS")
	fmt.Fprintln(w, "--\t-----\t--------\t--------\t-------\t------\t------")
	for _, r := range set.Rules {
		action := "log"
		if r.Deny() {
			action = "deny"
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t%d\n",
			r.ID, r.Phase, r.Variable, r.Operator, r.Pattern, action, r.EffectiveStatus())
	}
	w.Flush()

	sum := set.Summary()
	fmt.Printf("\nTotal: %d rules (%d blocking, %d logging-only)\n", sum.Total, sum.Blocking, sum.LoggingOnly)
	return nil
}

func rulesValidate(path string) error {
	set, err := waf.ParseRulesFile(path)
	if err != nil {
		fmt.Printf("✗ %s: %v\n", path, err)
		return err
	}
	sum := set.Summary()
	fmt.Printf("✓ %s: %d rules parsed (%d blocking, %d logging-only)\n", path, sum.Total, sum.Blocking, sum.LoggingOnly)
	return nil
}
