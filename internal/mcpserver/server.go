// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the converter to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/logbridge/internal/apperr"
	"github.com/starford/logbridge/internal/convert"
	"github.com/starford/logbridge/internal/resolver"
	"github.com/starford/logbridge/internal/runservice"
)

const contractURI = "logbridge://output-format"

// Runner is the run service as seen by the MCP tools.
type Runner interface {
	Convert(ctx context.Context) (*convert.Report, error)
	Latest() (*convert.Report, error)
	LookupBlock(id string) (resolver.Target, error)
	Preview(source string) (*runservice.Preview, error)
}

// Server wraps the MCP server with the conversion tools.
type Server struct {
	mcp *server.MCPServer
	svc Runner
}

// New creates a new MCP server with all tools registered.
func New(svc Runner) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Logbridge",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("convert_vault",
		mcp.WithDescription("Convert the whole source vault. Identifiers are resolved across "+
			"every document before any document is rewritten. Returns the run totals."),
	), s.convertVault)

	s.mcp.AddTool(mcp.NewTool("conversion_report",
		mcp.WithDescription("Return the report of the latest conversion run."),
		mcp.WithString("format", mcp.Description("json (default) or markdown")),
	), s.conversionReport)

	s.mcp.AddTool(mcp.NewTool("lookup_block",
		mcp.WithDescription("Find the output document and anchor a source block identifier was published under."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Block identifier as written in id:: properties")),
	), s.lookupBlock)

	s.mcp.AddTool(mcp.NewTool("preview_document",
		mcp.WithDescription("Render one source document against the latest identifier map without writing it."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Source path relative to the vault (e.g. pages/note.md)")),
	), s.previewDocument)

	s.mcp.AddTool(mcp.NewTool("get_output_contract",
		mcp.WithDescription("Describe the link, anchor and marker forms used in converted notes."),
	), s.getOutputContract)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Output Format",
			mcp.WithResourceDescription("Link and marker forms produced by the converter."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) convertVault(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.svc.Convert(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"run_id":     report.RunID,
		"dry_run":    report.DryRun,
		"totals":     report.Totals,
		"duplicates": report.Duplicates,
	}), nil
}

func (s *Server) conversionReport(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.svc.Latest()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	switch format := req.GetString("format", "json"); format {
	case "markdown":
		return mcp.NewToolResultText(report.Markdown()), nil
	case "json", "":
		return jsonResult(report), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown format: %s", format)), nil
	}
}

func (s *Server) lookupBlock(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := s.svc.LookupBlock(id)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("unresolved: %s is not referenced anywhere or not declared", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"id":     id,
		"target": target,
		"link":   fmt.Sprintf("[[%s#^%s]]", target.Document, target.Anchor),
	}), nil
}

func (s *Server) previewDocument(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.svc.Preview(path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("<!-- %s -->\n%s", p.Output, p.Content)), nil
}

func (s *Server) getOutputContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(OutputFormatContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     OutputFormatContract,
		},
	}, nil
}
