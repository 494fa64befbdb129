package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/outervoid/god/indexer"
	"github.com/outervoid/god/query"
	"github.com/outervoid/god/types"
)

// mockHelpHandler implements HelpHandler for testing
type mockHelpHandler struct {
	searchFunc func(ctx context.Context, req *types.SearchRequest) (*types.SearchResponse, error)
	lastSearch *types.SearchRequest
}

func (m *mockHelpHandler) Search(ctx context.Context, req *types.SearchRequest) (*types.SearchResponse, error) {
	m.lastSearch = req
	if m.searchFunc != nil {
		return m.searchFunc(ctx, req)
	}
	return &types.SearchResponse{
		Hits: []types.SearchHit{
			{Command: "tar", Kind: types.KindFlag, Field: "--extract", Text: "extract files", Score: 2.5},
		},
		TotalHits: 1,
	}, nil
}

func (m *mockHelpHandler) Show(command string) (types.HelpEntry, error) {
	if command == "tar" {
		return types.HelpEntry{Command: "tar", Summary: "an archiving utility", Usage: "tar [OPTION...]"}, nil
	}
	return types.HelpEntry{}, &query.NotFoundError{Command: command, Suggestions: []string{"tar"}}
}

func (m *mockHelpHandler) List(prefix string) ([]types.HelpEntry, error) {
	all := []types.HelpEntry{
		{Command: "git", Summary: "the stupid content tracker"},
		{Command: "tar", Summary: "an archiving utility"},
	}
	var out []types.HelpEntry
	for _, e := range all {
		if strings.HasPrefix(e.Command, prefix) {
			out = append(out, e)
		}
	}
	return out, nil
}

func toolCall(t *testing.T, name string, args interface{}) *Request {
	t.Helper()
	params, err := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	if err != nil {
		t.Fatal(err)
	}
	return &Request{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params}
}

func toolText(t *testing.T, resp *Response) *ToolResult {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}
	result, ok := resp.Result.(*ToolResult)
	if !ok {
		t.Fatalf("Expected *ToolResult, got %T", resp.Result)
	}
	if len(result.Content) != 1 || result.Content[0].Type != "text" {
		t.Fatalf("Expected one text block, got %+v", result.Content)
	}
	return result
}

func TestServer_HandleInitialize(t *testing.T) {
	server := NewServerIO(&mockHelpHandler{}, nil, nil, nil)

	resp := server.handleRequest(context.Background(), &Request{JSONRPC: "2.0", ID: 1, Method: "initialize"})
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}

	result := resp.Result.(map[string]interface{})
	if result["protocolVersion"] != ProtocolVersion {
		t.Errorf("Expected protocol %s, got %v", ProtocolVersion, result["protocolVersion"])
	}
	info := result["serverInfo"].(map[string]interface{})
	if info["name"] != "god" {
		t.Errorf("Expected server name 'god', got %v", info["name"])
	}
}

func TestServer_HandleToolsList(t *testing.T) {
	server := NewServerIO(&mockHelpHandler{}, nil, nil, nil)

	resp := server.handleRequest(context.Background(), &Request{JSONRPC: "2.0", ID: 1, Method: "tools/list"})
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}

	tools, ok := resp.Result.(map[string]interface{})["tools"].([]ToolDefinition)
	if !ok {
		t.Fatal("Expected tools list")
	}

	var names []string
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	if got := strings.Join(names, ","); got != "help_search,help_show,help_list" {
		t.Errorf("Unexpected tools: %s", got)
	}
}

func TestServer_HelpSearch(t *testing.T) {
	handler := &mockHelpHandler{}
	server := NewServerIO(handler, nil, nil, nil)

	resp := server.handleRequest(context.Background(), toolCall(t, "help_search", map[string]interface{}{
		"query": "extract", "command": "tar", "top_k": 5,
	}))
	result := toolText(t, resp)

	if handler.lastSearch.Query != "extract" || handler.lastSearch.Command != "tar" || handler.lastSearch.TopK != 5 {
		t.Errorf("Arguments not passed through: %+v", handler.lastSearch)
	}

	var searchResp types.SearchResponse
	if err := json.Unmarshal([]byte(result.Content[0].Text), &searchResp); err != nil {
		t.Fatalf("Expected JSON search response: %v", err)
	}
	if len(searchResp.Hits) != 1 || searchResp.Hits[0].Field != "--extract" {
		t.Errorf("Unexpected hits: %+v", searchResp.Hits)
	}
}

func TestServer_HelpSearchError(t *testing.T) {
	handler := &mockHelpHandler{
		searchFunc: func(ctx context.Context, req *types.SearchRequest) (*types.SearchResponse, error) {
			return nil, context.DeadlineExceeded
		},
	}
	server := NewServerIO(handler, nil, nil, nil)

	resp := server.handleRequest(context.Background(), toolCall(t, "help_search", map[string]interface{}{"query": "x"}))
	if resp.Error == nil || resp.Error.Code != CodeInternalError {
		t.Fatalf("Expected internal error, got %+v", resp.Error)
	}
}

func TestServer_HelpSearchBadArguments(t *testing.T) {
	tests := []struct {
		name  string
		query string
		err   error
	}{
		{"empty query", "", indexer.ErrEmptyQuery},
		{"bad regex", "re:([", fmt.Errorf("%w: missing closing ]", indexer.ErrInvalidQuery)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &mockHelpHandler{
				searchFunc: func(ctx context.Context, req *types.SearchRequest) (*types.SearchResponse, error) {
					return nil, tt.err
				},
			}
			server := NewServerIO(handler, nil, nil, nil)

			resp := server.handleRequest(context.Background(), toolCall(t, "help_search", map[string]interface{}{"query": tt.query}))
			if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
				t.Fatalf("Expected invalid params error, got %+v", resp.Error)
			}
			if resp.Error.Message != tt.err.Error() {
				t.Errorf("Expected message %q, got %q", tt.err.Error(), resp.Error.Message)
			}
		})
	}
}

func TestServer_HelpShow(t *testing.T) {
	server := NewServerIO(&mockHelpHandler{}, nil, nil, nil)

	result := toolText(t, server.handleRequest(context.Background(), toolCall(t, "help_show", map[string]string{"command": "tar"})))
	if result.IsError {
		t.Error("Expected success")
	}
	if !strings.HasPrefix(result.Content[0].Text, "# tar") {
		t.Errorf("Expected markdown for tar, got %q", result.Content[0].Text)
	}

	result = toolText(t, server.handleRequest(context.Background(), toolCall(t, "help_show", map[string]string{"command": "tra"})))
	if !result.IsError {
		t.Error("Expected tool error for unknown command")
	}
	if !strings.Contains(result.Content[0].Text, "did you mean tar") {
		t.Errorf("Expected suggestion in %q", result.Content[0].Text)
	}
}

func TestServer_HelpList(t *testing.T) {
	server := NewServerIO(&mockHelpHandler{}, nil, nil, nil)

	result := toolText(t, server.handleRequest(context.Background(), toolCall(t, "help_list", map[string]string{"prefix": "g"})))
	if result.Content[0].Text != "git\tthe stupid content tracker\n" {
		t.Errorf("Unexpected listing %q", result.Content[0].Text)
	}
}

func TestServer_UnknownTool(t *testing.T) {
	server := NewServerIO(&mockHelpHandler{}, nil, nil, nil)

	resp := server.handleRequest(context.Background(), toolCall(t, "code_context", map[string]string{}))
	if resp.Error == nil || resp.Error.Code != CodeInvalidParams {
		t.Fatalf("Expected invalid params error, got %+v", resp.Error)
	}
}

func TestServer_InvalidRequest(t *testing.T) {
	server := NewServerIO(&mockHelpHandler{}, nil, nil, nil)

	tests := []struct {
		name string
		line string
	}{
		{"wrong version", `{"jsonrpc":"1.0","id":7,"method":"ping"}`},
		{"missing version", `{"id":7,"method":"ping"}`},
		{"missing method", `{"jsonrpc":"2.0","id":7}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := server.handleLine(context.Background(), []byte(tt.line))
			if resp == nil || resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
				t.Fatalf("Expected invalid request error, got %+v", resp)
			}
			if id, ok := resp.ID.(float64); !ok || id != 7 {
				t.Errorf("Expected id 7 echoed back, got %v", resp.ID)
			}
		})
	}
}

func TestServer_Run(t *testing.T) {
	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		``,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`not json`,
		`{"jsonrpc":"2.0","id":2,"method":"bogus"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"help_list"}}`,
	}, "\n") + "\n"
	output := &bytes.Buffer{}

	server := NewServerIO(&mockHelpHandler{}, strings.NewReader(input), output, nil)
	if err := server.Run(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected 4 responses, got %d:\n%s", len(lines), output.String())
	}

	var responses []Response
	for _, line := range lines {
		var r Response
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("Invalid response line %q: %v", line, err)
		}
		responses = append(responses, r)
	}

	if responses[0].Error != nil {
		t.Errorf("initialize failed: %+v", responses[0].Error)
	}
	if responses[1].Error == nil || responses[1].Error.Code != CodeParseError || responses[1].ID != nil {
		t.Errorf("Expected parse error with null id, got %+v", responses[1])
	}
	if responses[2].Error == nil || responses[2].Error.Code != CodeMethodNotFound {
		t.Errorf("Expected method not found, got %+v", responses[2].Error)
	}
	if responses[3].Error != nil {
		t.Errorf("help_list without arguments failed: %+v", responses[3].Error)
	}
}

func TestServer_RunTwice(t *testing.T) {
	server := NewServerIO(&mockHelpHandler{}, strings.NewReader(""), &bytes.Buffer{}, nil)
	if err := server.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := server.Run(context.Background()); err == nil {
		t.Error("Expected error on second run")
	}
}
