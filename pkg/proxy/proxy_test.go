package proxy

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/shieldcli/shieldproxy/pkg/config"
	"github.com/shieldcli/shieldproxy/pkg/logging"
	"github.com/shieldcli/shieldproxy/pkg/pipeline"
	"github.com/shieldcli/shieldproxy/pkg/router"
	"github.com/shieldcli/shieldproxy/pkg/wafreg"
)

func TestNewServer_RejectsUpstreamWithoutAddress(t *testing.T) {
	p := pipeline.New(router.New(nil), wafreg.New(nil, logging.NewNop()), 0, logging.NewNop())
	_, err := NewServer([]config.UpstreamConfig{{Name: "api", SNI: "api"}}, p, logging.NewNop())
	if err == nil {
		t.Fatal("expected error for upstream missing an address")
	}
}

func TestHandleRequest_BlockedByHeaderRuleNeverReachesBackend(t *testing.T) {
	backendHit := false
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backendHit = true
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.conf")
	if err := os.WriteFile(rulesPath, []byte(`SecRule REQUEST_HEADERS:User-Agent "@contains sqlmap" "id:1001,phase:1,deny"`), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	reg := wafreg.New([]wafreg.UpstreamRules{{Key: "api", Path: rulesPath}}, logging.NewNop())
	r := router.New([]router.Upstream{{Key: "api", SNI: "default"}})
	pl := pipeline.New(r, reg, 0, logging.NewNop())

	srv, err := NewServer([]config.UpstreamConfig{{Name: "api", SNI: "api", Address: backend.Listener.Addr().String()}}, pl, logging.NewNop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "http://whatever/", nil)
	req.Header.Set("User-Agent", "sqlmap/1.8")
	rec := httptest.NewRecorder()
	srv.handleRequest(rec, req)

	if rec.Code != http.StatusForbidden && rec.Code != 403 {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if backendHit {
		t.Fatal("blocked request should never reach the backend")
	}
}

func TestHandleRequest_AllowedForwardsToBackend(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer backend.Close()

	reg := wafreg.New([]wafreg.UpstreamRules{{Key: "api", Path: ""}}, logging.NewNop())
	r := router.New([]router.Upstream{{Key: "api", SNI: "default"}})
	pl := pipeline.New(r, reg, 0, logging.NewNop())

	srv, err := NewServer([]config.UpstreamConfig{{Name: "api", SNI: "api", Address: backend.Listener.Addr().String()}}, pl, logging.NewNop())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "http://whatever/", nil)
	rec := httptest.NewRecorder()
	srv.handleRequest(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected forwarded response 418, got %d", rec.Code)
	}
}
