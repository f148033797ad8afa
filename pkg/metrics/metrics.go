// Package metrics exposes the proxy's request and reload counters as
// Prometheus collectors, registered against the default registry so
// the admin server can serve them at /metrics with promhttp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shieldproxy_requests_total",
		Help: "Requests that reached the headers phase, by upstream.",
	}, []string{"upstream"})

	BlockedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shieldproxy_blocked_total",
		Help: "Requests denied by a WAF rule, by upstream and phase.",
	}, []string{"upstream", "phase"})

	ReloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shieldproxy_reloads_total",
		Help: "Rule reload attempts, by upstream and result.",
	}, []string{"upstream", "result"})
)

func init() {
	prometheus.MustRegister(RequestsTotal, BlockedTotal, ReloadsTotal)
}

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
