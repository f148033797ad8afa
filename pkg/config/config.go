// Package config defines shieldproxy's on-disk configuration shape and
// loads it the way the teacher does: viper for file discovery and env
// overlay, a plain YAML-tagged struct for the shape itself.
package config

// Config is the parsed configuration file. It supports both a single
// implicit server (top-level `server` + `upstream[]`) and the
// supplemented multi-server fan-out (`servers[]`, each naming a subset
// of `upstream[]` by key), mirroring the original's per-server-name
// proxy map.
type Config struct {
	Server   ServerConfig     `yaml:"server" mapstructure:"server"`
	Servers  []NamedServer    `yaml:"servers" mapstructure:"servers"`
	Upstream []UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`
	Tracing  TracingConfig    `yaml:"tracing" mapstructure:"tracing"`
}

// ServerConfig is the implicit single-server shape.
type ServerConfig struct {
	ProxyPort   uint16 `yaml:"proxy_port" mapstructure:"proxy_port"`
	AdminPort   uint16 `yaml:"admin_port" mapstructure:"admin_port"`
	ListenAddr  string `yaml:"listen_addr" mapstructure:"listen_addr"`
	MaxBodySize int    `yaml:"max_body_size" mapstructure:"max_body_size"`
}

// NamedServer is one entry of the supplemented multi-server fan-out: a
// named listener bound to a subset of the configured upstreams.
type NamedServer struct {
	Name      string       `yaml:"name" mapstructure:"name"`
	Listen    ServerConfig `yaml:"listen" mapstructure:"listen"`
	Upstreams []string     `yaml:"upstreams" mapstructure:"upstreams"`
}

// UpstreamConfig describes one backend and the WAF engine guarding it.
// Name and SNI are interchangeable per §4.5's router policy; both tags
// are accepted so either configuration shape parses.
type UpstreamConfig struct {
	Name     string   `yaml:"name" mapstructure:"name"`
	SNI      string   `yaml:"sni" mapstructure:"sni"`
	Address  string   `yaml:"address" mapstructure:"address"`
	Addrs    []string `yaml:"addrs" mapstructure:"addrs"`
	UseTLS   bool     `yaml:"use_tls" mapstructure:"use_tls"`
	WAFRules string   `yaml:"waf_rules" mapstructure:"waf_rules"`
	Engine   string   `yaml:"waf_engine" mapstructure:"waf_engine"` // "" or "native", or "coraza"
}

// Key returns the identifier the router and registry index this
// upstream by: SNI when set, falling back to Name.
func (u UpstreamConfig) Key() string {
	if u.SNI != "" {
		return u.SNI
	}
	return u.Name
}

// FirstAddr returns the address to dial: Address if set, else the first
// of Addrs, else "".
func (u UpstreamConfig) FirstAddr() string {
	if u.Address != "" {
		return u.Address
	}
	if len(u.Addrs) > 0 {
		return u.Addrs[0]
	}
	return ""
}

// TracingConfig controls the logging package.
type TracingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Output     string `yaml:"output" mapstructure:"output"` // console, json, both, file
	File       string `yaml:"file" mapstructure:"file"`
	EnableANSI bool   `yaml:"enable_ansi" mapstructure:"enable_ansi"`
}

// Defaults applied to any field left zero after parsing.
const (
	DefaultListenAddr    = "0.0.0.0"
	DefaultMaxBodySize   = 10 * 1024 * 1024
	DefaultTracingLevel  = "info"
	DefaultTracingOutput = "console"
)

// ApplyDefaults fills in zero-valued fields with the documented
// defaults so callers never need to special-case "unset".
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.MaxBodySize == 0 {
		c.Server.MaxBodySize = DefaultMaxBodySize
	}
	if c.Tracing.Level == "" {
		c.Tracing.Level = DefaultTracingLevel
	}
	if c.Tracing.Output == "" {
		c.Tracing.Output = DefaultTracingOutput
	}
	for i := range c.Servers {
		if c.Servers[i].Listen.ListenAddr == "" {
			c.Servers[i].Listen.ListenAddr = DefaultListenAddr
		}
		if c.Servers[i].Listen.MaxBodySize == 0 {
			c.Servers[i].Listen.MaxBodySize = DefaultMaxBodySize
		}
	}
}

// UpstreamByKey looks up a configured upstream by its router key.
func (c *Config) UpstreamByKey(key string) (UpstreamConfig, bool) {
	for _, u := range c.Upstream {
		if u.Key() == key {
			return u, true
		}
	}
	return UpstreamConfig{}, false
}
