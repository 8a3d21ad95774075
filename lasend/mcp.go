package lasend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/lasen/correction"
)

// RegisterMCP registers the lasen tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerCorrectTool(srv)
	s.registerValidateTool(srv)
	s.registerConvertTool(srv)
	s.registerHistoryTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

// endpoint handles one decoded tool request.
type endpoint func(ctx context.Context, req any) (any, error)

// addTool registers endpoint as tool. Decode and endpoint errors become
// tool errors rather than protocol errors; results are returned as JSON
// text.
func addTool(srv *mcp.Server, tool *mcp.Tool, ep endpoint, decode func(*mcp.CallToolRequest) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		decoded, err := decode(req)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("invalid arguments: %w", err))
			return &res, nil
		}
		resp, err := ep(ctx, decoded)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func decodeArgs[T any](req *mcp.CallToolRequest) (any, error) {
	var v T
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &v); err != nil {
			return nil, err
		}
	}
	return &v, nil
}

// --- correct ---

type textArgs struct {
	Text string `json:"text"`
}

func (s *Service) registerCorrectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "lasen_correct",
		Description: "Correct spelling, grammar and language errors in Arabic text. Returns the corrected text.",
		InputSchema: inputSchema(map[string]any{
			"text": map[string]any{"type": "string", "description": "Arabic text to correct"},
		}, []string{"text"}),
	}
	ep := func(ctx context.Context, req any) (any, error) {
		r := req.(*textArgs)
		out, err := s.Correct(ctx, r.Text, correction.SourceOther)
		if err != nil {
			return nil, err
		}
		return correction.CorrectResponse{CorrectedText: out}, nil
	}
	addTool(srv, tool, ep, decodeArgs[textArgs])
}

// --- validate ---

func (s *Service) registerValidateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "lasen_validate",
		Description: "Find erroneous words in Arabic text. Returns word spans with character indexes (end exclusive) and suggestions.",
		InputSchema: inputSchema(map[string]any{
			"text": map[string]any{"type": "string", "description": "Arabic text to check"},
		}, []string{"text"}),
	}
	ep := func(ctx context.Context, req any) (any, error) {
		r := req.(*textArgs)
		ranges, err := s.Validate(ctx, r.Text)
		if err != nil {
			return nil, err
		}
		return correction.ValidateResponse{Success: true, IncorrectWords: ranges}, nil
	}
	addTool(srv, tool, ep, decodeArgs[textArgs])
}

// --- convert_dialect ---

type dialectArgs struct {
	Text    string `json:"text"`
	Dialect string `json:"dialect"`
}

func (s *Service) registerConvertTool(srv *mcp.Server) {
	enum := make([]any, 0, len(correction.Dialects))
	for _, d := range correction.Dialects {
		enum = append(enum, string(d))
	}
	tool := &mcp.Tool{
		Name:        "lasen_convert_dialect",
		Description: "Rewrite Arabic text in a regional dialect while keeping its meaning.",
		InputSchema: inputSchema(map[string]any{
			"text":    map[string]any{"type": "string", "description": "Text to convert"},
			"dialect": map[string]any{"type": "string", "enum": enum, "description": "Target dialect"},
		}, []string{"text", "dialect"}),
	}
	ep := func(ctx context.Context, req any) (any, error) {
		r := req.(*dialectArgs)
		out, err := s.ConvertDialect(ctx, r.Text, r.Dialect)
		if err != nil {
			return nil, err
		}
		return correction.DialectResponse{ConvertedText: out}, nil
	}
	addTool(srv, tool, ep, decodeArgs[dialectArgs])
}

// --- history ---

type historyArgs struct {
	Page  int `json:"page,omitempty"`
	Limit int `json:"limit,omitempty"`
}

func (s *Service) registerHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "lasen_history",
		Description: "List recorded corrections and dialect conversions, newest first.",
		InputSchema: inputSchema(map[string]any{
			"page":  map[string]any{"type": "integer", "description": "Page number (default 1)"},
			"limit": map[string]any{"type": "integer", "description": "Page size (default 20, max 100)"},
		}, nil),
	}
	ep := func(ctx context.Context, req any) (any, error) {
		r := req.(*historyArgs)
		return s.History(ctx, r.Page, r.Limit)
	}
	addTool(srv, tool, ep, decodeArgs[historyArgs])
}
