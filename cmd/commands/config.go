package commands

import (
	"fmt"
	"os"

	"github.com/shieldcli/shieldproxy/pkg/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage shieldproxy configuration files",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInit()
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Load a configuration file and report errors without starting the proxy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return configValidate(args[0])
	},
}

var configOutputFile string

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVar(&configOutputFile, "output", "shieldproxy.yaml", "output file path")
}

func configInit() error {
	if _, err := os.Stat(configOutputFile); err == nil {
		fmt.Printf("File %s already exists. Overwrite? (y/n): ", configOutputFile)
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := config.Save(configOutputFile, config.Default()); err != nil {
		fmt.Printf("Error: %v\n", err)
		return err
	}

	fmt.Printf("Configuration file created: %s\n", configOutputFile)
	fmt.Println("Edit it to point upstream.address at your backend and adjust waf_rules per upstream.")
	return nil
}

func configValidate(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Printf("✗ %s: %v\n", path, err)
		return err
	}

	upstreamCount := len(cfg.Upstream)
	serverCount := len(cfg.Servers)
	if serverCount == 0 {
		serverCount = 1
	}
	fmt.Printf("✓ %s: %d server(s), %d upstream(s)\n", path, serverCount, upstreamCount)
	for _, u := range cfg.Upstream {
		if u.FirstAddr() == "" {
			return fmt.Errorf("upstream %q has no address", u.Key())
		}
		fmt.Printf("  - %s -> %s (rules: %s)\n", u.Key(), u.FirstAddr(), u.WAFRules)
	}
	return nil
}
