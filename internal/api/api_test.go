package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/logbridge/internal/convert"
	"github.com/starford/logbridge/internal/ledger"
	"github.com/starford/logbridge/internal/runservice"
	"github.com/starford/logbridge/internal/testutil"
)

var corpus = map[string]string{
	"pages/X.md": "- target\n  id:: u1\n",
	"pages/Y.md": "- see ((u1))\n",
}

// testEnv sets up source and output vaults, a ledger, the run service and
// the router. A non-empty token enables auth.
func testEnv(t *testing.T, token string) (*runservice.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, token, nil)
}

func testEnvWithSSE(t *testing.T, token string, sseHandler http.Handler) (*runservice.Service, http.Handler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srcDir, src := testutil.TestVault(t)
	_, dst := testutil.TestVault(t)
	testutil.WriteFiles(t, srcDir, corpus)

	db, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svc := runservice.NewService(func(extra ...convert.Option) *convert.Pipeline {
		return convert.New(src, dst, append([]convert.Option{convert.WithLogger(logger)}, extra...)...)
	}, db, logger)
	return svc, NewRouter(svc, token != "", token, sseHandler)
}

func do(t *testing.T, router http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestConvertAndReport(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/runs")
	if w.Code != http.StatusOK {
		t.Fatalf("convert status = %d, body = %s", w.Code, w.Body.String())
	}
	var run RunResponse
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatal(err)
	}
	if run.RunID == "" || run.Totals.Converted != 2 || run.Totals.Anchors != 1 {
		t.Errorf("run = %+v", run)
	}

	w = do(t, router, http.MethodGet, "/report")
	if w.Code != http.StatusOK {
		t.Fatalf("report status = %d", w.Code)
	}
	var report convert.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.RunID != run.RunID || len(report.Documents) != 2 {
		t.Errorf("report = %+v", report)
	}

	w = do(t, router, http.MethodGet, "/report?format=markdown")
	if !strings.HasPrefix(w.Body.String(), "# Conversion report") {
		t.Errorf("markdown report = %q", w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/runs")
	var runs struct {
		Runs []ledger.RunRow `json:"runs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs.Runs) != 1 || runs.Runs[0].ID != run.RunID {
		t.Errorf("runs = %+v", runs.Runs)
	}
}

func TestReportBeforeFirstRun(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/report"); w.Code != http.StatusNotFound {
		t.Errorf("report before run = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/preview?path=pages/Y.md"); w.Code != http.StatusNotFound {
		t.Errorf("preview before run = %d, want 404", w.Code)
	}
}

func TestLookupBlock(t *testing.T) {
	svc, router := testEnv(t, "")
	if _, err := svc.Convert(context.Background()); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodGet, "/blocks/u1")
	if w.Code != http.StatusOK {
		t.Fatalf("lookup status = %d", w.Code)
	}
	var got struct {
		Link string `json:"link"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Link != "[[X#^block1]]" {
		t.Errorf("link = %q, want [[X#^block1]]", got.Link)
	}

	if w := do(t, router, http.MethodGet, "/blocks/nope"); w.Code != http.StatusNotFound {
		t.Errorf("unknown block = %d, want 404", w.Code)
	}
}

func TestPreview(t *testing.T) {
	svc, router := testEnv(t, "")
	if _, err := svc.Convert(context.Background()); err != nil {
		t.Fatal(err)
	}

	w := do(t, router, http.MethodGet, "/preview?path=pages/Y.md")
	if w.Code != http.StatusOK {
		t.Fatalf("preview status = %d", w.Code)
	}
	var p runservice.Preview
	_ = json.Unmarshal(w.Body.Bytes(), &p)
	if p.Content != "- see [[X#^block1]]\n" {
		t.Errorf("preview content = %q", p.Content)
	}

	if w := do(t, router, http.MethodGet, "/preview"); w.Code != http.StatusBadRequest {
		t.Errorf("preview without path = %d, want 400", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/preview?path=pages/ghost.md"); w.Code != http.StatusNotFound {
		t.Errorf("preview of missing file = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodPost, "/runs", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed convert = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	w := do(t, router, http.MethodGet, "/runs")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
	if !strings.HasPrefix(w.Header().Get("WWW-Authenticate"), "Bearer") {
		t.Errorf("WWW-Authenticate = %q", w.Header().Get("WWW-Authenticate"))
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/runs"); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// stubSSE writes headers and blocks until the request context is done.
var stubSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, "secret", stubSSE)
	if w := do(t, router, http.MethodGet, "/events"); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, "tok", stubSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
