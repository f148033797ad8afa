// Package reload watches for SIGHUP and triggers a bulk rule reload
// across every upstream cell in the registry, the Go-idiomatic
// counterpart to the original watch_sighup task.
package reload

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shieldcli/shieldproxy/pkg/logging"
	"github.com/shieldcli/shieldproxy/pkg/wafreg"
)

// WatchSIGHUP blocks until ctx is cancelled, reloading every registry
// cell once per received SIGHUP. Intended to run in its own goroutine
// for the life of the process.
func WatchSIGHUP(ctx context.Context, reg *wafreg.Registry, log *logging.Logger) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP)
	defer signal.Stop(sig)

	log.Info("watching for SIGHUP to reload WAF rules")
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			log.Info("received SIGHUP, reloading WAF rules")
			if failures := reg.ReloadAll(); len(failures) > 0 {
				log.Warn("reload completed with %d upstream failures", len(failures))
			} else {
				log.Info("reload completed successfully")
			}
		}
	}
}
