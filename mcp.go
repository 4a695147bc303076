package pagedrive

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pagedrive/drive"
	"github.com/hazyhaar/pagedrive/kit"
)

// RegisterMCP registers the session's navigation tools on an MCP server.
// Every tool answers with the resulting Page.
func (s *Session) RegisterMCP(srv *mcp.Server) {
	s.registerVisitTool(srv)
	s.registerFollowTool(srv)
	s.registerSubmitTool(srv)
	s.registerHistoryTool(srv, "pagedrive_back", "Go back one entry in the session history.", s.Back)
	s.registerHistoryTool(srv, "pagedrive_forward", "Go forward one entry in the session history.", s.Forward)
	s.registerPageTool(srv)
	s.registerClearCacheTool(srv)
}

var formatProperty = map[string]any{
	"type":        "string",
	"enum":        []any{string(FormatMarkdown), string(FormatHTML), string(FormatNone)},
	"description": "Body format of the returned page (default markdown)",
}

func (s *Session) tool(name string, endpoint kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Logging(s.logger, name))(endpoint)
}

func (s *Session) settled(ctx context.Context, format string) (any, error) {
	if format == "" {
		format = string(FormatMarkdown)
	}
	return s.Page(ctx, Format(format))
}

// --- visit ---

type visitRequest struct {
	URL    string `json:"url"`
	Action string `json:"action,omitempty"`
	Format string `json:"format,omitempty"`
}

func (s *Session) registerVisitTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagedrive_visit",
		Description: "Visit a URL. Relative URLs resolve against the current page.",
		InputSchema: kit.InputSchema(map[string]any{
			"url":    map[string]any{"type": "string", "description": "Absolute or relative URL"},
			"action": map[string]any{"type": "string", "enum": []any{"advance", "replace"}, "description": "History action (default advance)"},
			"format": formatProperty,
		}, "url"),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*visitRequest)
		action := drive.Advance
		if r.Action != "" {
			a, ok := drive.ParseAction(r.Action)
			if !ok || a == drive.Restore {
				return nil, fmt.Errorf("pagedrive: action %q: want advance or replace", r.Action)
			}
			action = a
		}
		if err := s.Visit(ctx, r.URL, action); err != nil {
			return nil, err
		}
		return s.settled(ctx, r.Format)
	}

	kit.RegisterMCPTool(srv, tool, s.tool(tool.Name, endpoint), kit.DecodeJSON[visitRequest])
}

// --- follow ---

type followRequest struct {
	Selector string `json:"selector"`
	Format   string `json:"format,omitempty"`
}

func (s *Session) registerFollowTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagedrive_follow",
		Description: "Follow the first link matching a CSS selector (tag, #id, .class, [attr=value]).",
		InputSchema: kit.InputSchema(map[string]any{
			"selector": map[string]any{"type": "string", "description": "Selector of an a[href] element"},
			"format":   formatProperty,
		}, "selector"),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*followRequest)
		if err := s.FollowLink(ctx, r.Selector); err != nil {
			return nil, err
		}
		return s.settled(ctx, r.Format)
	}

	kit.RegisterMCPTool(srv, tool, s.tool(tool.Name, endpoint), kit.DecodeJSON[followRequest])
}

// --- submit ---

type submitRequest struct {
	Form      string            `json:"form"`
	Values    map[string]string `json:"values,omitempty"`
	Submitter string            `json:"submitter,omitempty"`
	Format    string            `json:"format,omitempty"`
}

func (s *Session) registerSubmitTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagedrive_submit",
		Description: "Fill a form by field name and submit it.",
		InputSchema: kit.InputSchema(map[string]any{
			"form":      map[string]any{"type": "string", "description": "Selector of the form element"},
			"values":    map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}, "description": "Field values by name"},
			"submitter": map[string]any{"type": "string", "description": "Selector of the submit button inside the form"},
			"format":    formatProperty,
		}, "form"),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*submitRequest)
		if err := s.SubmitForm(ctx, r.Form, r.Values, r.Submitter); err != nil {
			return nil, err
		}
		return s.settled(ctx, r.Format)
	}

	kit.RegisterMCPTool(srv, tool, s.tool(tool.Name, endpoint), kit.DecodeJSON[submitRequest])
}

// --- back / forward ---

type pageRequest struct {
	Format string `json:"format,omitempty"`
}

func (s *Session) registerHistoryTool(srv *mcp.Server, name, description string, move func(context.Context) error) {
	tool := &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: kit.InputSchema(map[string]any{"format": formatProperty}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*pageRequest)
		if err := move(ctx); err != nil {
			return nil, err
		}
		return s.settled(ctx, r.Format)
	}

	kit.RegisterMCPTool(srv, tool, s.tool(name, endpoint), kit.DecodeJSON[pageRequest])
}

// --- page ---

func (s *Session) registerPageTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagedrive_page",
		Description: "Return the current page.",
		InputSchema: kit.InputSchema(map[string]any{"format": formatProperty}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return s.settled(ctx, req.(*pageRequest).Format)
	}

	kit.RegisterMCPTool(srv, tool, s.tool(tool.Name, endpoint), kit.DecodeJSON[pageRequest])
}

// --- clear_cache ---

func (s *Session) registerClearCacheTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagedrive_clear_cache",
		Description: "Drop every cached page snapshot.",
		InputSchema: kit.InputSchema(map[string]any{}),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		if err := s.ClearCache(ctx); err != nil {
			return nil, err
		}
		return map[string]bool{"cleared": true}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.tool(tool.Name, endpoint), kit.DecodeJSON[pageRequest])
}
