package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shieldcli/shieldproxy/pkg/admin"
	"github.com/shieldcli/shieldproxy/pkg/config"
	"github.com/shieldcli/shieldproxy/pkg/logging"
	"github.com/shieldcli/shieldproxy/pkg/pipeline"
	"github.com/shieldcli/shieldproxy/pkg/proxy"
	"github.com/shieldcli/shieldproxy/pkg/reload"
	"github.com/shieldcli/shieldproxy/pkg/router"
	"github.com/shieldcli/shieldproxy/pkg/wafreg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the shieldproxy WAF proxy",
	Long: `Start the shieldproxy reverse proxy and its WAF engine registry.

Example:
  shieldproxy run --config shieldproxy.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProxy()
	},
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "path to the configuration file (overrides --config on root)")
}

func runProxy() error {
	path := configPath
	if path == "" {
		path = cfgFile
	}
	if path == "" {
		path = viper.GetString("config")
	}
	if path == "" {
		path = "shieldproxy.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return err
	}

	log, err := logging.New(logging.Config{
		Level:      cfg.Tracing.Level,
		Output:     cfg.Tracing.Output,
		File:       cfg.Tracing.File,
		EnableANSI: cfg.Tracing.EnableANSI,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("shieldproxy starting")

	servers, err := buildServers(cfg, log)
	if err != nil {
		log.Error("failed to build servers: %v", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, s := range servers {
		go reload.WatchSIGHUP(ctx, s.registry, log)
		go runAdmin(s, log)
		go runProxyServer(s, log)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("received signal %v, shutting down", sig)
	cancel()
	for _, s := range servers {
		s.proxyServer.Stop()
	}
	return nil
}

// runningServer bundles one named server's wired components so runProxy
// can start them all uniformly whether the config is single- or
// multi-server.
type runningServer struct {
	name        string
	listenAddr  string
	adminAddr   string
	registry    *wafreg.Registry
	proxyServer *proxy.Server
}

func buildServers(cfg *config.Config, log *logging.Logger) ([]*runningServer, error) {
	if len(cfg.Servers) == 0 {
		rs, err := buildOneServer("default", cfg.Server, cfg.Upstream, log)
		if err != nil {
			return nil, err
		}
		return []*runningServer{rs}, nil
	}

	var out []*runningServer
	for _, named := range cfg.Servers {
		var upstreams []config.UpstreamConfig
		for _, key := range named.Upstreams {
			u, ok := cfg.UpstreamByKey(key)
			if !ok {
				return nil, fmt.Errorf("server %s references unknown upstream %q", named.Name, key)
			}
			upstreams = append(upstreams, u)
		}
		rs, err := buildOneServer(named.Name, named.Listen, upstreams, log)
		if err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, nil
}

func buildOneServer(name string, listen config.ServerConfig, upstreams []config.UpstreamConfig, log *logging.Logger) (*runningServer, error) {
	var upstreamRules []wafreg.UpstreamRules
	var routerUpstreams []router.Upstream
	for _, u := range upstreams {
		upstreamRules = append(upstreamRules, wafreg.UpstreamRules{Key: u.Key(), Path: resolveRulesPath(u.WAFRules), Engine: u.Engine})
		routerUpstreams = append(routerUpstreams, router.Upstream{Key: u.Key(), SNI: u.Key()})
	}

	reg := wafreg.New(upstreamRules, log)
	r := router.New(routerUpstreams)
	pl := pipeline.New(r, reg, listen.MaxBodySize, log)

	proxySrv, err := proxy.NewServer(upstreams, pl, log)
	if err != nil {
		return nil, fmt.Errorf("server %s: %w", name, err)
	}

	return &runningServer{
		name:        name,
		listenAddr:  fmt.Sprintf("%s:%d", listen.ListenAddr, listen.ProxyPort),
		adminAddr:   fmt.Sprintf("%s:%d", listen.ListenAddr, listen.AdminPort),
		registry:    reg,
		proxyServer: proxySrv,
	}, nil
}

func resolveRulesPath(fragment string) string {
	if fragment == "" {
		return ""
	}
	return "rules/" + fragment
}

func runAdmin(s *runningServer, log *logging.Logger) {
	log.Info("server %s: admin listening on %s", s.name, s.adminAddr)
	if err := http.ListenAndServe(s.adminAddr, admin.New(s.registry)); err != nil {
		log.Error("server %s: admin server error: %v", s.name, err)
	}
}

func runProxyServer(s *runningServer, log *logging.Logger) {
	log.Info("server %s: proxy listening on %s", s.name, s.listenAddr)
	if err := s.proxyServer.Start(s.listenAddr); err != nil && err != http.ErrServerClosed {
		log.Error("server %s: proxy server error: %v", s.name, err)
	}
}
