// Package wafreg holds the reloadable engine cell and the per-upstream
// registry built on top of it: the concurrency seam between the proxy's
// hot request path and rule-file reloads triggered by SIGHUP or the
// admin HTTP endpoint.
package wafreg

import (
	"fmt"
	"sync"

	"github.com/shieldcli/shieldproxy/pkg/waf"
)

// SharedEngine holds one upstream's current Evaluator behind a
// RWMutex. Reads (the request path) take the read lock only long enough
// to copy the pointer out; evaluation itself runs outside the lock so a
// slow rule (a catastrophic regex, in principle) cannot hold reload
// back indefinitely. A reload takes the write lock only to swap the
// pointer, so in-flight reads finish against whichever engine they
// already observed.
type SharedEngine struct {
	mu     sync.RWMutex
	path   string
	kind   string // "native" or "coraza"; picks ReloadNow's loader
	engine waf.Evaluator
}

// NewShared wraps an already-loaded engine. path is remembered so
// ReloadNow knows what to re-read, and kind ("native" or "coraza") so it
// calls back into the same loader that built engine rather than
// guessing.
func NewShared(engine waf.Evaluator, path, kind string) *SharedEngine {
	return &SharedEngine{engine: engine, path: path, kind: kind}
}

// Current returns the engine in effect at the moment of the call. The
// caller evaluates against it without further locking.
func (s *SharedEngine) Current() waf.Evaluator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Path reports the upstream's own rules file, the one ReloadNow re-reads.
// A cell that fell back to the default or empty rule set at construction
// still reports that file; it is "" only when none was configured.
func (s *SharedEngine) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// ReloadNow reloads the engine from its current path and swaps it in
// only on success. A failed reload leaves the existing engine serving
// traffic; the cell is never left partially updated.
func (s *SharedEngine) ReloadNow() error {
	s.mu.RLock()
	path := s.path
	kind := s.kind
	s.mu.RUnlock()

	var engine waf.Evaluator
	var err error
	if kind == "coraza" {
		engine, err = waf.LoadCoraza(path)
	} else {
		engine, err = waf.Load(path)
	}
	if err != nil {
		return fmt.Errorf("reload %s: %w", path, err)
	}

	s.mu.Lock()
	old := s.engine
	s.engine = engine
	s.mu.Unlock()

	// In-flight reads hold a copy of old's interface value directly,
	// not the lock, so it must stay usable after this swap. Both
	// Evaluator implementations' Close is safe to call here because it
	// only releases idle resources, never state a concurrent
	// evaluation reads.
	old.Close()
	return nil
}

// Summary reports the current engine's rule-set summary for admin and
// CLI surfaces.
func (s *SharedEngine) Summary() waf.Summary {
	return s.Current().Summary()
}
