package wafreg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shieldcli/shieldproxy/pkg/logging"
	"github.com/shieldcli/shieldproxy/pkg/waf"
)

func writeRules(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	return path
}

func TestRegistry_LoadsConfiguredRules(t *testing.T) {
	dir := t.TempDir()
	path := writeRules(t, dir, "a.conf", `SecRule REQUEST_URI "@contains admin" "id:1,phase:1,deny"`)

	r := New([]UpstreamRules{{Key: "api", Path: path}}, logging.NewNop())
	cell, ok := r.Get("api")
	if !ok {
		t.Fatal("expected upstream 'api' registered")
	}
	if cell.Path() != path {
		t.Fatalf("expected path %s, got %s", path, cell.Path())
	}
	if cell.Summary().Total != 1 {
		t.Fatalf("expected 1 rule loaded, got %+v", cell.Summary())
	}
}

func TestRegistry_FallsBackToEmptyWhenNothingLoads(t *testing.T) {
	r := New([]UpstreamRules{{Key: "api", Path: "/nonexistent/rules.conf"}}, logging.NewNop())
	cell, ok := r.Get("api")
	if !ok {
		t.Fatal("expected upstream 'api' registered even on fallback")
	}
	if cell.Summary().Total != 0 {
		t.Fatalf("expected empty fallback engine, got %+v", cell.Summary())
	}
}

func TestRegistry_ReloadNowPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeRules(t, dir, "a.conf", ``)

	r := New([]UpstreamRules{{Key: "api", Path: path}}, logging.NewNop())
	cell, _ := r.Get("api")
	if cell.Summary().Total != 0 {
		t.Fatalf("expected empty rule set initially, got %+v", cell.Summary())
	}

	writeRules(t, dir, "a.conf", `SecRule REQUEST_URI "@contains admin" "id:1,phase:1,deny"`)
	if err := r.ReloadOne("api"); err != nil {
		t.Fatalf("ReloadOne: %v", err)
	}
	if cell.Summary().Total != 1 {
		t.Fatalf("expected reload to pick up new rule, got %+v", cell.Summary())
	}
}

func TestRegistry_ReloadNowKeepsOldEngineOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeRules(t, dir, "a.conf", `SecRule REQUEST_URI "@contains admin" "id:1,phase:1,deny"`)

	r := New([]UpstreamRules{{Key: "api", Path: path}}, logging.NewNop())
	cell, _ := r.Get("api")

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove rules file: %v", err)
	}
	if err := cell.ReloadNow(); err == nil {
		t.Fatal("expected reload of missing file to error")
	}
	if cell.Summary().Total != 1 {
		t.Fatalf("expected prior engine retained after failed reload, got %+v", cell.Summary())
	}
}

func TestRegistry_ReloadAllReportsPartialFailure(t *testing.T) {
	dir := t.TempDir()
	goodPath := writeRules(t, dir, "good.conf", ``)

	r := New([]UpstreamRules{
		{Key: "good", Path: goodPath},
		{Key: "bad", Path: filepath.Join(dir, "missing.conf")},
	}, logging.NewNop())

	// The "bad" upstream fell back to the empty engine at construction,
	// but its cell still holds the missing path, so reloading it fails
	// while "good" reloads successfully.
	failures := r.ReloadAll()
	if len(failures) != 1 || failures["bad"] == nil {
		t.Fatalf("expected exactly one reload failure, for \"bad\", got %v", failures)
	}
}

func TestRegistry_ReloadKeepsCorazaEngineCoraza(t *testing.T) {
	dir := t.TempDir()
	path := writeRules(t, dir, "crs.conf", `SecRule REQUEST_URI "@contains admin" "id:1,phase:1,deny"`)

	r := New([]UpstreamRules{{Key: "api", Path: path, Engine: "coraza"}}, logging.NewNop())
	cell, ok := r.Get("api")
	if !ok {
		t.Fatal("expected upstream 'api' registered")
	}
	if _, ok := cell.Current().(*waf.CorazaEngine); !ok {
		t.Fatalf("expected initial engine to be *waf.CorazaEngine, got %T", cell.Current())
	}

	writeRules(t, dir, "crs.conf", `SecRule REQUEST_URI "@contains admin" "id:1,phase:1,deny"
SecRule REQUEST_URI "@contains login" "id:2,phase:1,deny"`)
	if err := r.ReloadOne("api"); err != nil {
		t.Fatalf("ReloadOne: %v", err)
	}

	if _, ok := cell.Current().(*waf.CorazaEngine); !ok {
		t.Fatalf("reload replaced coraza engine with %T; ReloadNow must call waf.LoadCoraza for coraza cells", cell.Current())
	}
}

func TestRegistry_UnknownUpstream(t *testing.T) {
	r := New(nil, logging.NewNop())
	if _, ok := r.Get("missing"); ok {
		t.Fatal("expected no cell for unregistered upstream")
	}
	if err := r.ReloadOne("missing"); err == nil {
		t.Fatal("expected error reloading unknown upstream")
	}
}
