package sgx

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "sgx-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	s, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func callTool(t *testing.T, s *mcp.ClientSession, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	res, err := s.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	if out != nil && !res.IsError {
		text := res.Content[0].(*mcp.TextContent).Text
		if err := json.Unmarshal([]byte(text), out); err != nil {
			t.Fatalf("%s: decode %q: %v", name, text, err)
		}
	}
	return res
}

func TestMCP_ListTools(t *testing.T) {
	svc, _ := setupTestService(t, nil)
	s := mcpSession(t, svc)

	res, err := s.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{
		"sgx_resolve_day": true, "sgx_download_day": true, "sgx_download_range": true,
		"sgx_replay_journal": true, "sgx_fetch_history": true,
	}
	for _, tool := range res.Tools {
		delete(want, tool.Name)
	}
	if len(want) != 0 {
		t.Errorf("missing tools: %v", want)
	}
}

func TestMCP_ResolveAndDownload(t *testing.T) {
	svc, _ := setupTestService(t, nil)
	s := mcpSession(t, svc)

	var resolved resolveResponse
	callTool(t, s, "sgx_resolve_day", map[string]any{"day": "20230523"}, &resolved)
	if resolved.Identifier != 5426 || resolved.Status != "confirmed" || resolved.Label != "20230523" {
		t.Errorf("resolve = %+v", resolved)
	}

	var sum Summary
	callTool(t, s, "sgx_download_range", map[string]any{"start": "2023-05-18", "end": "2023-05-19"}, &sum)
	if sum.Days != 2 || sum.Failed != 0 {
		t.Errorf("range = %+v", sum)
	}

	var hist []FetchRecord
	callTool(t, s, "sgx_fetch_history", map[string]any{"limit": 3}, &hist)
	if len(hist) != 3 {
		t.Errorf("history = %d rows, want 3", len(hist))
	}

	var rep Report
	callTool(t, s, "sgx_replay_journal", map[string]any{}, &rep)
	if rep.Remaining != 0 {
		t.Errorf("replay = %+v", rep)
	}
}

func TestMCP_BadDayIsToolError(t *testing.T) {
	svc, _ := setupTestService(t, nil)
	s := mcpSession(t, svc)

	res := callTool(t, s, "sgx_download_day", map[string]any{"day": "someday"}, nil)
	if !res.IsError {
		t.Error("expected tool error for an unparseable day")
	}
}
