package internal

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/logbridge/internal/testutil"
)

func TestRun_ConvertsVault(t *testing.T) {
	cfg := validConfig(t)
	cfg.Convert.CategoryTag = "wiki"
	cfg.Convert.CategoryFolder = "Wiki"
	cfg.Ledger.Path = filepath.Join(t.TempDir(), "ledger.db")
	if err := os.MkdirAll(cfg.Source.Path, 0o755); err != nil {
		t.Fatal(err)
	}
	testutil.WriteFiles(t, cfg.Source.Path, map[string]string{
		"pages/X.md":    "- target\n  id:: u1\n",
		"pages/Y.md":    "- see ((u1))\n",
		"pages/Term.md": "- #wiki some text\n",
	})

	var out bytes.Buffer
	err := Run(context.Background(), WithConfig(cfg), WithOutput(&out), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(strings.ToLower(out.String()), "3/3 converted") {
		t.Errorf("summary table missing totals:\n%s", out.String())
	}

	if got := testutil.ReadFile(t, cfg.Output.Path, "pages/Y.md"); got != "- see [[X#^block1]]\n" {
		t.Errorf("Y = %q", got)
	}
	if got := testutil.ReadFile(t, cfg.Output.Path, "pages/X.md"); got != "- target ^block1\n" {
		t.Errorf("X = %q", got)
	}
	if got := testutil.ReadFile(t, cfg.Output.Path, "Wiki/Term.md"); got != "- some text\n" {
		t.Errorf("Term = %q", got)
	}
	if _, err := os.Stat(filepath.Join(cfg.Output.Path, "conversion_report.md")); err != nil {
		t.Errorf("report file: %v", err)
	}
}

func TestRun_MissingSource(t *testing.T) {
	cfg := validConfig(t)
	err := Run(context.Background(), WithConfig(cfg), WithOutput(io.Discard), WithLogOutput(io.Discard))
	if err == nil {
		t.Fatal("expected error for missing source vault")
	}
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background(), WithLogOutput(io.Discard)); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestRouter_Health(t *testing.T) {
	cfg := validConfig(t)
	if err := os.MkdirAll(cfg.Source.Path, 0o755); err != nil {
		t.Fatal(err)
	}
	rt, err := setup(WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer rt.close()

	router := newRouter(cfg, rt.svc, nil)

	get := func(target string) int {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		return w.Code
	}

	if code := get("/health/live"); code != http.StatusOK {
		t.Errorf("live = %d", code)
	}
	if code := get("/health/ready"); code != http.StatusServiceUnavailable {
		t.Errorf("ready before run = %d, want 503", code)
	}
	if _, err := rt.svc.Convert(context.Background()); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if code := get("/health/ready"); code != http.StatusOK {
		t.Errorf("ready after run = %d", code)
	}
	if code := get("/api/report"); code != http.StatusOK {
		t.Errorf("report = %d", code)
	}
}
