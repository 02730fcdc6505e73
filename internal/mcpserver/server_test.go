package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/logbridge/internal/convert"
	"github.com/starford/logbridge/internal/runservice"
	"github.com/starford/logbridge/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srcDir, src := testutil.TestVault(t)
	_, dst := testutil.TestVault(t)
	testutil.WriteFiles(t, srcDir, map[string]string{
		"pages/X.md": "- target\n  id:: u1\n",
		"pages/Y.md": "- see ((u1))\n- and ((ghost))\n",
	})

	svc := runservice.NewService(func(extra ...convert.Option) *convert.Pipeline {
		return convert.New(src, dst, append([]convert.Option{convert.WithLogger(logger)}, extra...)...)
	}, nil, logger)
	return New(svc)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no in-process "call tool" helper, so handlers are invoked
	// directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "convert_vault":
		result, err = srv.convertVault(ctx, req)
	case "conversion_report":
		result, err = srv.conversionReport(ctx, req)
	case "lookup_block":
		result, err = srv.lookupBlock(ctx, req)
	case "preview_document":
		result, err = srv.previewDocument(ctx, req)
	case "get_output_contract":
		result, err = srv.getOutputContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestConvertVault(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "convert_vault", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("convert_vault failed: %s", resultText(r))
	}
	var got struct {
		Totals convert.Totals `json:"totals"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Totals.Converted != 2 || got.Totals.Anchors != 1 || got.Totals.Unresolved != 1 {
		t.Errorf("totals = %+v", got.Totals)
	}
}

func TestConversionReport(t *testing.T) {
	srv := testServer(t)

	if r := callTool(t, srv, "conversion_report", map[string]interface{}{}); !r.IsError {
		t.Error("expected error before the first run")
	}

	callTool(t, srv, "convert_vault", map[string]interface{}{})

	r := callTool(t, srv, "conversion_report", map[string]interface{}{"format": "markdown"})
	if text := resultText(r); !strings.HasPrefix(text, "# Conversion report") {
		t.Errorf("markdown report = %q", text)
	}
	r = callTool(t, srv, "conversion_report", map[string]interface{}{"format": "xml"})
	if !r.IsError {
		t.Error("expected error for unknown format")
	}
}

func TestLookupBlock(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "convert_vault", map[string]interface{}{})

	r := callTool(t, srv, "lookup_block", map[string]interface{}{"id": "u1"})
	if text := resultText(r); !strings.Contains(text, `"link": "[[X#^block1]]"`) {
		t.Errorf("lookup = %s", text)
	}

	r = callTool(t, srv, "lookup_block", map[string]interface{}{"id": "ghost"})
	if !r.IsError || !strings.Contains(resultText(r), "unresolved") {
		t.Errorf("ghost lookup = %+v", r)
	}

	r = callTool(t, srv, "lookup_block", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error without id")
	}
}

func TestPreviewDocument(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "convert_vault", map[string]interface{}{})

	r := callTool(t, srv, "preview_document", map[string]interface{}{"path": "pages/Y.md"})
	want := "<!-- pages/Y.md -->\n- see [[X#^block1]]\n- and <!-- unresolved reference: ghost -->\n"
	if text := resultText(r); text != want {
		t.Errorf("preview = %q, want %q", text, want)
	}

	r = callTool(t, srv, "preview_document", map[string]interface{}{"path": "pages/nope.md"})
	if !r.IsError {
		t.Error("expected error for missing document")
	}
}

func TestGetOutputContract(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_output_contract", map[string]interface{}{})
	if !strings.Contains(resultText(r), "unresolved reference") {
		t.Error("contract should document the unresolved marker")
	}
}
