package pipeline

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/shieldcli/shieldproxy/pkg/logging"
	"github.com/shieldcli/shieldproxy/pkg/router"
	"github.com/shieldcli/shieldproxy/pkg/wafreg"
)

func newTestPipeline(t *testing.T, rulesContent string, maxBody int) *Pipeline {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/rules.conf"
	if err := os.WriteFile(path, []byte(rulesContent), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	reg := wafreg.New([]wafreg.UpstreamRules{{Key: "api", Path: path}}, logging.NewNop())
	r := router.New([]router.Upstream{{Key: "api", SNI: "default"}})
	return New(r, reg, maxBody, logging.NewNop())
}

func TestPipeline_UserAgentBlockScenario(t *testing.T) {
	p := newTestPipeline(t, `SecRule REQUEST_HEADERS:User-Agent "@contains sqlmap" "id:1001,phase:1,deny,status:403"`, 0)

	req := httptest.NewRequest(http.MethodGet, "http://host.example/", nil)
	req.Header.Set("User-Agent", "sqlmap/1.8")
	ctx := p.NewContext("127.0.0.1")
	out := p.HeadersPhase(ctx, req)
	if out.Allowed || out.StatusCode != 403 {
		t.Fatalf("expected block 403, got %+v", out)
	}
	if len(ctx.Violations) != 1 || ctx.Violations[0].RuleID != 1001 {
		t.Fatalf("expected violation rule_id=1001, got %+v", ctx.Violations)
	}
}

func TestPipeline_AllowedUserAgent(t *testing.T) {
	p := newTestPipeline(t, `SecRule REQUEST_HEADERS:User-Agent "@contains sqlmap" "id:1001,phase:1,deny"`, 0)
	req := httptest.NewRequest(http.MethodGet, "http://host.example/", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0")
	ctx := p.NewContext("127.0.0.1")
	out := p.HeadersPhase(ctx, req)
	if !out.Allowed {
		t.Fatalf("expected allow, got %+v", out)
	}
}

func TestPipeline_BodyTooLarge(t *testing.T) {
	p := newTestPipeline(t, ``, 8)
	ctx := p.NewContext("127.0.0.1")
	out := p.AppendBody(ctx, []byte("012345678")) // 9 bytes > max 8
	if out.Allowed || out.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %+v", out)
	}
	if len(ctx.Violations) != 1 || ctx.Violations[0].RuleID != 413 || ctx.Violations[0].Source != "body" {
		t.Fatalf("expected synthetic 413 violation, got %+v", ctx.Violations)
	}
}

func TestPipeline_BodyPhaseRegexBlock(t *testing.T) {
	p := newTestPipeline(t, `SecRule REQUEST_BODY "@rx (?i)select\s+.*\s+from" "id:3001,phase:2,deny"`, 0)
	req := httptest.NewRequest(http.MethodPost, "http://host.example/q", nil)
	ctx := p.NewContext("127.0.0.1")

	headerOutcome := p.HeadersPhase(ctx, req)
	if !headerOutcome.Allowed {
		t.Fatalf("expected headers phase allow, got %+v", headerOutcome)
	}

	if out := p.AppendBody(ctx, []byte("select id from users")); !out.Allowed {
		t.Fatalf("append should not itself block: %+v", out)
	}
	out := p.BodyPhase(ctx, req)
	if out.Allowed || out.StatusCode != 403 {
		t.Fatalf("expected body phase block 403, got %+v", out)
	}
}

func TestPipeline_EmptyBodySkipsEvaluation(t *testing.T) {
	p := newTestPipeline(t, `SecRule REQUEST_BODY "@contains anything" "id:1,phase:2,deny"`, 0)
	req := httptest.NewRequest(http.MethodGet, "http://host.example/", nil)
	ctx := p.NewContext("127.0.0.1")
	p.HeadersPhase(ctx, req)
	out := p.BodyPhase(ctx, req)
	if !out.Allowed {
		t.Fatalf("expected allow for empty body, got %+v", out)
	}
}

func TestPipeline_NoHostHeaderRoutesAsUnknown(t *testing.T) {
	p := newTestPipeline(t, ``, 0)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = ""
	ctx := p.NewContext("127.0.0.1")
	out := p.HeadersPhase(ctx, req)
	if !out.Allowed {
		t.Fatalf("expected fallthrough to default upstream, got %+v", out)
	}
}

func TestRequestLine_DefaultsUnknownVersion(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/path?x=1", nil)
	req.ProtoMajor, req.ProtoMinor = 0, 0
	line := RequestLine(req)
	if !strings.HasPrefix(line, "GET /path") {
		t.Fatalf("unexpected request line: %q", line)
	}
	if line != "GET /path?x=1 HTTP/1.1" {
		t.Fatalf("expected unknown version to default to HTTP/1.1, got %q", line)
	}
}
