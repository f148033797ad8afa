package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads and parses path directly with yaml.v3, the same library
// the teacher uses for the literal file shape, then applies defaults.
// A missing or unparseable file is a fatal ConfigError per §7.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// LoadWithOverrides builds a Viper instance over path (search path and
// name resolution are still Viper's job, matching the teacher's
// initConfig) and lets CLI flags and SHIELDPROXY_-prefixed environment
// variables override individual fields before unmarshalling into
// Config.
func LoadWithOverrides(path string, flags *viper.Viper) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("shieldproxy")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("SHIELDPROXY")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if flags != nil {
		if err := v.MergeConfigMap(flags.AllSettings()); err != nil {
			return nil, fmt.Errorf("merge flag overrides: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Save writes cfg back out as YAML, used by `config init`.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Default returns a minimal single-server, single-upstream starter
// configuration for `config init`.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{ProxyPort: 8080, AdminPort: 8081},
		Upstream: []UpstreamConfig{
			{Name: "default", SNI: "default", Address: "127.0.0.1:3000", WAFRules: "default/default.conf"},
		},
		Tracing: TracingConfig{Level: "info", Output: "console", EnableANSI: true},
	}
	cfg.ApplyDefaults()
	return cfg
}
