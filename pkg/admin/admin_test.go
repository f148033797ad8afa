package admin

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/shieldcli/shieldproxy/pkg/logging"
	"github.com/shieldcli/shieldproxy/pkg/wafreg"
)

func newTestRegistry(t *testing.T) *wafreg.Registry {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.conf")
	if err := os.WriteFile(path, []byte(`SecRule REQUEST_URI "@contains admin" "id:1,phase:1,deny"`), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	return wafreg.New([]wafreg.UpstreamRules{{Key: "api", Path: path}}, logging.NewNop())
}

func doGet(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestAdmin_Health(t *testing.T) {
	s := New(newTestRegistry(t))
	rec := doGet(t, s, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAdmin_Stats(t *testing.T) {
	s := New(newTestRegistry(t))
	rec := doGet(t, s, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected non-empty stats body")
	}
}

func TestAdmin_Reload(t *testing.T) {
	s := New(newTestRegistry(t))
	rec := doGet(t, s, "/reload")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAdmin_ServerSummary(t *testing.T) {
	s := New(newTestRegistry(t))
	rec := doGet(t, s, "/server/api")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = doGet(t, s, "/server/missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown server, got %d", rec.Code)
	}
}

func TestAdmin_Metrics(t *testing.T) {
	s := New(newTestRegistry(t))
	rec := doGet(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected non-empty metrics body")
	}
}

func TestAdmin_NotFoundFallback(t *testing.T) {
	s := New(newTestRegistry(t))
	rec := doGet(t, s, "/nonsense")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
