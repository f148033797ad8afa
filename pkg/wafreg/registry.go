package wafreg

import (
	"fmt"
	"sync"

	"github.com/shieldcli/shieldproxy/pkg/logging"
	"github.com/shieldcli/shieldproxy/pkg/metrics"
	"github.com/shieldcli/shieldproxy/pkg/waf"
)

// Registry maps an upstream key to its SharedEngine. It is built once
// at startup with one cell per configured upstream and is otherwise
// read-only; ReloadAll and ReloadOne mutate the cells it already holds,
// never the map itself, so lookups need no lock.
type Registry struct {
	cells map[string]*SharedEngine
	log   *logging.Logger
}

// UpstreamRules is the minimal shape the registry needs per upstream:
// its key and the rules file it was configured with.
type UpstreamRules struct {
	Key   string
	Path  string
	Engine string // "native" (default) or "coraza"
}

// DefaultRulesPath is tried when an upstream's own rules file fails to
// load; it ships with the module as a conservative baseline.
const DefaultRulesPath = "rules/default/default.conf"

// New builds one SharedEngine per upstream, applying the fallback
// ladder at construction: the upstream's own rules file, then
// DefaultRulesPath, then an empty (allow-all) engine. Each step is
// logged; construction itself never fails since the empty engine always
// loads successfully. A cell built from a fallback still remembers the
// upstream's own path and engine kind, so a later reload retries that
// file and reports its failure instead of reloading the fallback.
func New(upstreams []UpstreamRules, log *logging.Logger) *Registry {
	r := &Registry{cells: make(map[string]*SharedEngine, len(upstreams)), log: log}
	for _, u := range upstreams {
		r.cells[u.Key] = buildCell(u, log)
	}
	return r
}

func buildCell(u UpstreamRules, log *logging.Logger) *SharedEngine {
	kind := "native"
	if u.Engine == "coraza" {
		kind = "coraza"
	}
	if u.Engine == "coraza" {
		if ce, err := waf.LoadCoraza(u.Path); err == nil {
			log.Info("upstream %s: loaded coraza rules from %s", u.Key, u.Path)
			return NewShared(ce, u.Path, "coraza")
		} else {
			log.Error("upstream %s: failed to load coraza rules from %s: %v", u.Key, u.Path, err)
		}
		// Coraza upstreams fall through to the same native-engine ladder
		// below rather than a second Coraza attempt; the default and
		// empty rule sets are only ever expressed in the native format.
	} else if engine, err := waf.Load(u.Path); err == nil {
		log.Info("upstream %s: loaded rules from %s", u.Key, u.Path)
		return NewShared(engine, u.Path, "native")
	} else {
		log.Error("upstream %s: failed to load rules from %s: %v", u.Key, u.Path, err)
	}

	if engine, err := waf.Load(DefaultRulesPath); err == nil {
		log.Warn("upstream %s: using default rules from %s", u.Key, DefaultRulesPath)
		return NewShared(engine, u.Path, kind)
	} else {
		log.Error("upstream %s: failed to load default rules: %v", u.Key, err)
	}

	log.Warn("upstream %s: using empty rule set as last-resort fallback", u.Key)
	engine, _ := waf.Load("")
	return NewShared(engine, u.Path, kind)
}

// Get returns the cell for an upstream key, or (nil, false) if no such
// upstream is registered.
func (r *Registry) Get(key string) (*SharedEngine, bool) {
	cell, ok := r.cells[key]
	return cell, ok
}

// ReloadAll re-reads every cell's rules file, continuing past individual
// failures and returning the combined set of per-upstream errors.
func (r *Registry) ReloadAll() map[string]error {
	failures := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for key, cell := range r.cells {
		wg.Add(1)
		go func(key string, cell *SharedEngine) {
			defer wg.Done()
			if err := cell.ReloadNow(); err != nil {
				mu.Lock()
				failures[key] = err
				mu.Unlock()
				metrics.ReloadsTotal.WithLabelValues(key, "failure").Inc()
				r.log.Error("reload failed for upstream %s: %v", key, err)
			} else {
				metrics.ReloadsTotal.WithLabelValues(key, "success").Inc()
				r.log.Info("reloaded rules for upstream %s", key)
			}
		}(key, cell)
	}
	wg.Wait()
	return failures
}

// ReloadOne reloads a single upstream's cell.
func (r *Registry) ReloadOne(key string) error {
	cell, ok := r.cells[key]
	if !ok {
		return fmt.Errorf("unknown upstream %q", key)
	}
	return cell.ReloadNow()
}

// Keys returns the registered upstream keys in no particular order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.cells))
	for k := range r.cells {
		keys = append(keys, k)
	}
	return keys
}

// Summaries reports each upstream's current rule-set summary.
func (r *Registry) Summaries() map[string]waf.Summary {
	out := make(map[string]waf.Summary, len(r.cells))
	for k, cell := range r.cells {
		out[k] = cell.Summary()
	}
	return out
}
