// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the parkwatch issue tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/parkwatch/internal/apperr"
	"github.com/starford/parkwatch/internal/codec"
	"github.com/starford/parkwatch/internal/issueservice"
)

// Server wraps the MCP server with the issue tools.
type Server struct {
	mcp *server.MCPServer
	svc *issueservice.Service
}

// New creates a new MCP server with all issue tools registered.
func New(svc *issueservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Parkwatch",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("submit_issue",
		mcp.WithDescription("Report a new anonymous park issue. Read the reporting guide first via "+
			"the "+GuideURI+" resource. Returns the new issue id."),
		mcp.WithString("category", mcp.Required(), mcp.Description("Issue category, e.g. Safety")),
		mcp.WithString("description", mcp.Required(), mcp.Description("What is wrong")),
		mcp.WithString("location", mcp.Description("Optional place in the park")),
	), s.submitIssue)

	s.mcp.AddTool(mcp.NewTool("vote_issue",
		mcp.WithDescription("Add one vote to an existing issue."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Issue id as returned by list_issues")),
	), s.voteIssue)

	s.mcp.AddTool(mcp.NewTool("list_issues",
		mcp.WithDescription("List issues newest first, optionally filtered by a search term."),
		mcp.WithString("query", mcp.Description("Optional case-insensitive category filter")),
	), s.listIssues)

	s.mcp.AddTool(mcp.NewTool("issue_stats",
		mcp.WithDescription("Count issues per moderation status."),
	), s.issueStats)

	s.mcp.AddResource(
		mcp.NewResource(GuideURI, "Reporting Guide",
			mcp.WithResourceDescription("Categories and fields expected in an issue report."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuideResource,
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

func (s *Server) submitIssue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category, err := req.RequireString("category")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	description, err := req.RequireString("description")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	payload := codec.Payload{"description": description}
	if loc := req.GetString("location", ""); loc != "" {
		payload["location"] = loc
	}

	id, err := s.svc.Submit(ctx, category, payload)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("submitted: %s", id)), nil
}

func (s *Server) voteIssue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Vote(ctx, id); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("voted: %s", id)), nil
}

func (s *Server) listIssues(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	all, err := s.svc.ListSorted(ctx)
	if err != nil {
		return toolError(err), nil
	}
	items := issueservice.Filter(all, req.GetString("query", ""))
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) issueStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	all, err := s.svc.ListSorted(ctx)
	if err != nil {
		return toolError(err), nil
	}
	counts := issueservice.AggregateByStatus(all)
	out, _ := json.MarshalIndent(map[string]int{
		"pending":  counts.Pending,
		"approved": counts.Approved,
		"rejected": counts.Rejected,
		"total":    counts.Total(),
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readGuideResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      GuideURI,
			MIMEType: "text/markdown",
			Text:     ReportingGuide,
		},
	}, nil
}

// toolError turns a service error into a tool-level error result with a
// message the model can act on.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrRecordNotFound):
		return mcp.NewToolResultError("issue not found")
	case errors.Is(err, apperr.ErrWriteRejected):
		return mcp.NewToolResultError("write rejected: no signing account configured")
	case errors.Is(err, apperr.ErrBackendUnavailable):
		return mcp.NewToolResultError("ledger unavailable, try again later")
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError("concurrent update, try again")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}
