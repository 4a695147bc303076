package pagedrive

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func setupMCP(t *testing.T, s *Session) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(&mcp.Implementation{Name: "pagedrive-test", Version: "0.1.0"}, nil)
	s.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.1.0"}, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) (*mcp.CallToolResult, Page) {
	t.Helper()
	result, err := session.CallTool(testContext(t), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool %s: %v", name, err)
	}
	var p Page
	if !result.IsError && len(result.Content) > 0 {
		text := result.Content[0].(*mcp.TextContent).Text
		_ = json.Unmarshal([]byte(text), &p)
	}
	return result, p
}

func TestMCP_ListTools(t *testing.T) {
	s := newTestSession(t, nil)
	session := setupMCP(t, s)

	res, err := session.ListTools(testContext(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{
		"pagedrive_visit": false, "pagedrive_follow": false, "pagedrive_submit": false,
		"pagedrive_back": false, "pagedrive_forward": false, "pagedrive_page": false,
		"pagedrive_clear_cache": false,
	}
	for _, tool := range res.Tools {
		want[tool.Name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestMCP_VisitSubmitBack(t *testing.T) {
	site := newTestSite(t)
	s := newTestSession(t, nil)
	session := setupMCP(t, s)

	res, p := callTool(t, session, "pagedrive_visit", map[string]any{"url": site.URL + "/one"})
	if res.IsError || p.Title != "One" {
		t.Fatalf("visit: %+v", res.Content)
	}

	res, p = callTool(t, session, "pagedrive_submit", map[string]any{
		"form":   "#login",
		"values": map[string]any{"user": "cid"},
	})
	if res.IsError || p.Title != "Welcome" || !strings.Contains(p.Markdown, "hi cid") {
		t.Fatalf("submit: %+v %+v", res.Content, p)
	}

	res, p = callTool(t, session, "pagedrive_back", map[string]any{"format": "none"})
	if res.IsError || p.Title != "One" {
		t.Fatalf("back: %+v", res.Content)
	}

	res, _ = callTool(t, session, "pagedrive_follow", map[string]any{"selector": "#nope"})
	if !res.IsError {
		t.Fatal("follow of a missing link succeeded")
	}

	res, _ = callTool(t, session, "pagedrive_visit", map[string]any{"url": "/two", "action": "restore"})
	if !res.IsError {
		t.Fatal("restore action accepted")
	}

	res, _ = callTool(t, session, "pagedrive_clear_cache", nil)
	if res.IsError || s.cacheLen(t) != 0 {
		t.Fatalf("clear cache: %+v", res.Content)
	}
}
