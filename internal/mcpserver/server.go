// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Jenkinsfile validation tools for LLM integration via
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/history"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/validator"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/workspace"
)

// adhocURI labels validations of content passed directly to a tool, as
// opposed to content read from a workspace file.
const adhocURI = "mcp://adhoc"

// Server wraps the MCP server with validation tools.
type Server struct {
	mcp    *server.MCPServer
	svc    *validator.Service
	hist   history.Recorder // nil when history is disabled
	finder workspace.Finder // nil when no workspace root is configured
}

// New creates a new MCP server with all validation tools registered.
// hist and finder may be nil; the tools that need them then report why
// they are unavailable.
func New(svc *validator.Service, hist history.Recorder, finder workspace.Finder, version string) *Server {
	s := &Server{svc: svc, hist: hist, finder: finder}

	s.mcp = server.NewMCPServer(
		"jenkinsfile-lint-lsp",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("validate_jenkinsfile",
		mcp.WithDescription("Validate Jenkinsfile content against the configured Jenkins controller. "+
			"Returns the outcome (accepted/rejected) and parsed diagnostics with zero-based positions."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full Jenkinsfile content to validate")),
	), s.validateJenkinsfile)

	s.mcp.AddTool(mcp.NewTool("validate_file",
		mcp.WithDescription("Validate a Jenkinsfile from the workspace by path."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative path to the Jenkinsfile")),
	), s.validateFile)

	s.mcp.AddTool(mcp.NewTool("list_jenkinsfiles",
		mcp.WithDescription("List Jenkinsfiles found in the workspace."),
		mcp.WithString("dir", mcp.Description("Optional subdirectory to search (empty for the whole workspace)")),
	), s.listJenkinsfiles)

	s.mcp.AddTool(mcp.NewTool("recent_validations",
		mcp.WithDescription("List recent validation attempts from history, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of entries to return (default 10)")),
	), s.recentValidations)

	s.mcp.AddTool(mcp.NewTool("get_pipeline_guide",
		mcp.WithDescription("Returns the Declarative Pipeline authoring guide. "+
			"Call this before writing a Jenkinsfile to ensure correct structure."),
	), s.getPipelineGuide)

	// Resource: pipeline authoring guide.
	s.mcp.AddResource(
		mcp.NewResource("jenkinsfile://pipeline-guide", "Declarative Pipeline Guide",
			mcp.WithResourceDescription("Structure and rules for Jenkinsfiles accepted by the validator."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPipelineGuideResource,
	)

	return s
}

// Serve runs the MCP server on stdin/stdout until ctx is cancelled or the
// client disconnects.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) validateJenkinsfile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if strings.TrimSpace(content) == "" {
		return mcp.NewToolResultError("content is empty"), nil
	}
	return s.runValidation(ctx, adhocURI, content)
}

func (s *Server) validateFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if s.finder == nil {
		return mcp.NewToolResultError("no workspace configured"), nil
	}
	data, err := s.finder.Read(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read %s: %v", path, err)), nil
	}
	return s.runValidation(ctx, path, string(data))
}

func (s *Server) runValidation(ctx context.Context, uri, content string) (*mcp.CallToolResult, error) {
	rec, err := s.svc.Validate(ctx, uri, content)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("validation request failed: %v", err)), nil
	}
	out, _ := json.MarshalIndent(rec, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listJenkinsfiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir := ""
	if d, err := req.RequireString("dir"); err == nil {
		dir = d
	}
	if s.finder == nil {
		return mcp.NewToolResultError("no workspace configured"), nil
	}

	files, err := s.finder.Discover(dir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(files) == 0 {
		return mcp.NewToolResultText("no Jenkinsfiles found"), nil
	}

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) recentValidations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.hist == nil {
		return mcp.NewToolResultError("history is disabled"), nil
	}

	limit := req.GetInt("limit", 10)
	items, _, err := s.hist.Recent(limit, 0, "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no validations recorded"), nil
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getPipelineGuide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PipelineGuide), nil
}

func (s *Server) readPipelineGuideResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "jenkinsfile://pipeline-guide",
			MIMEType: "text/markdown",
			Text:     PipelineGuide,
		},
	}, nil
}
