package sgx

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/sgxhist/kit"
)

// RegisterMCP registers the downloader tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerResolveDay(srv)
	s.registerDownloadDay(srv)
	s.registerDownloadRange(srv)
	s.registerReplayJournal(srv)
	s.registerFetchHistory(srv)
}

type resolveResponse struct {
	Day        string `json:"day"`
	Label      string `json:"label,omitempty"`
	Identifier int    `json:"identifier"`
	Status     string `json:"status"`
	Reason     string `json:"reason"`
	Probes     int    `json:"probes"`
	Error      string `json:"error,omitempty"`
}

func (s *Service) registerResolveDay(srv *mcp.Server) {
	type req struct {
		Day string `json:"day"`
	}
	tool := &mcp.Tool{
		Name:        "sgx_resolve_day",
		Description: "Resolve a calendar day to its SGX portal day identifier",
		InputSchema: kit.InputSchema(map[string]any{
			"day": map[string]any{"type": "string", "description": "YYYYMMDD, YYYY-MM-DD or yesterday"},
		}, []string{"day"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		d, err := s.ParseDay(r.(*req).Day)
		if err != nil {
			return nil, err
		}
		res := s.Resolve(ctx, d)
		out := resolveResponse{
			Day:        d.Format("2006-01-02"),
			Label:      res.Label,
			Identifier: res.Identifier,
			Status:     res.Status.String(),
			Reason:     string(res.Reason),
			Probes:     res.Probes,
		}
		if res.Err != nil {
			out.Error = res.Err.Error()
		}
		return out, nil
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[req]())
}

func (s *Service) registerDownloadDay(srv *mcp.Server) {
	type req struct {
		Day string `json:"day"`
	}
	tool := &mcp.Tool{
		Name:        "sgx_download_day",
		Description: "Download every configured file of one trading day",
		InputSchema: kit.InputSchema(map[string]any{
			"day": map[string]any{"type": "string", "description": "YYYYMMDD, YYYY-MM-DD or yesterday"},
		}, []string{"day"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		d, err := s.ParseDay(r.(*req).Day)
		if err != nil {
			return nil, err
		}
		return s.Day(ctx, d), nil
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[req]())
}

func (s *Service) registerDownloadRange(srv *mcp.Server) {
	type req struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	tool := &mcp.Tool{
		Name:        "sgx_download_range",
		Description: "Download every business day between start and end, inclusive",
		InputSchema: kit.InputSchema(map[string]any{
			"start": map[string]any{"type": "string", "description": "First day"},
			"end":   map[string]any{"type": "string", "description": "Last day"},
		}, []string{"start", "end"}),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		start, err := s.ParseDay(p.Start)
		if err != nil {
			return nil, err
		}
		end, err := s.ParseDay(p.End)
		if err != nil {
			return nil, err
		}
		if end.Before(start) {
			return nil, fmt.Errorf("%w: end %s before start %s", ErrInvalidInput, p.End, p.Start)
		}
		return s.Range(ctx, start, end), nil
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[req]())
}

func (s *Service) registerReplayJournal(srv *mcp.Server) {
	type req struct {
		Journal string `json:"journal"`
	}
	tool := &mcp.Tool{
		Name:        "sgx_replay_journal",
		Description: "Retry every download recorded in a failure journal and keep only the rows still failing",
		InputSchema: kit.InputSchema(map[string]any{
			"journal": map[string]any{"type": "string", "description": "Journal path (default: configured journal)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		return s.Retry(ctx, r.(*req).Journal)
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[req]())
}

func (s *Service) registerFetchHistory(srv *mcp.Server) {
	type req struct {
		Limit int `json:"limit"`
	}
	tool := &mcp.Tool{
		Name:        "sgx_fetch_history",
		Description: "List recent download attempts recorded in the ledger",
		InputSchema: kit.InputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max rows (default 50)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, r any) (any, error) {
		return s.History(ctx, r.(*req).Limit)
	}
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[req]())
}
