// Package mcp serves the help index to BLUX agents over stdio using MCP
// style JSON-RPC 2.0, one message per line.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/outervoid/god/indexer"
	"github.com/outervoid/god/logger"
	"github.com/outervoid/god/render"
	"github.com/outervoid/god/types"
)

// ProtocolVersion is the MCP revision this server speaks
const ProtocolVersion = "2024-11-05"

// JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// maxLineBytes bounds a single request line
const maxLineBytes = 4 * 1024 * 1024

// Version is reported in serverInfo
var Version = "dev"

// Request represents an MCP JSON-RPC request
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents an MCP JSON-RPC response
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents a JSON-RPC error
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// ToolDefinition represents an MCP tool
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// Content is one block of a tool result
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the result of tools/call
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// HelpHandler is the part of the query service exposed to agents
type HelpHandler interface {
	Search(ctx context.Context, req *types.SearchRequest) (*types.SearchResponse, error)
	Show(command string) (types.HelpEntry, error)
	List(prefix string) ([]types.HelpEntry, error)
}

// Server implements the MCP stdio protocol
type Server struct {
	input   io.Reader
	output  io.Writer
	help    HelpHandler
	log     *slog.Logger
	mu      sync.Mutex
	running bool
}

// NewServer creates a new MCP server on stdin and stdout
func NewServer(help HelpHandler, log *slog.Logger) *Server {
	return NewServerIO(help, os.Stdin, os.Stdout, log)
}

// NewServerIO creates a server on the given streams
func NewServerIO(help HelpHandler, in io.Reader, out io.Writer, log *slog.Logger) *Server {
	return &Server{
		input:  in,
		output: out,
		help:   help,
		log:    logger.OrDefault(log),
	}
}

// Run processes requests until the input ends or ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	scanner := bufio.NewScanner(s.input)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	encoder := json.NewEncoder(s.output)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		resp := s.handleLine(ctx, []byte(line))
		if resp == nil {
			continue
		}
		if err := encoder.Encode(resp); err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

func (s *Server) handleLine(ctx context.Context, line []byte) *Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.log.Debug("unparseable request", "error", err)
		return &Response{
			JSONRPC: "2.0",
			Error:   &Error{Code: CodeParseError, Message: "Parse error", Data: err.Error()},
		}
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &Error{Code: CodeInvalidRequest, Message: "Invalid request"},
		}
	}
	return s.handleRequest(ctx, &req)
}

// handleRequest processes a single request. Notifications get no response.
func (s *Server) handleRequest(ctx context.Context, req *Request) *Response {
	if req.ID == nil {
		s.log.Debug("notification", "method", req.Method)
		return nil
	}

	resp := &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	switch req.Method {
	case "initialize":
		resp.Result = s.handleInitialize()
	case "ping":
		resp.Result = map[string]interface{}{}
	case "tools/list":
		resp.Result = s.handleToolsList()
	case "tools/call":
		result, err := s.handleToolCall(ctx, req.Params)
		if err != nil {
			var rpcErr *Error
			if errors.As(err, &rpcErr) {
				resp.Error = rpcErr
			} else {
				resp.Error = &Error{Code: CodeInternalError, Message: err.Error()}
			}
		} else {
			resp.Result = result
		}
	default:
		resp.Error = &Error{
			Code:    CodeMethodNotFound,
			Message: "Method not found",
			Data:    req.Method,
		}
	}

	return resp
}

func (s *Server) handleInitialize() interface{} {
	return map[string]interface{}{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    "god",
			"version": Version,
		},
	}
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func (s *Server) handleToolsList() interface{} {
	return map[string]interface{}{
		"tools": []ToolDefinition{
			{
				Name:        "help_search",
				Description: "Search the help text of every command installed on this machine",
				InputSchema: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"query":   stringProp("Search query; prefix with re: for a regular expression"),
						"command": stringProp("Restrict to this command and its subcommands (optional)"),
						"top_k": map[string]interface{}{
							"type":        "integer",
							"description": "Number of results to return",
							"default":     20,
						},
					},
					"required": []string{"query"},
				},
			},
			{
				Name:        "help_show",
				Description: "Show the parsed help of one command path, e.g. \"git commit\"",
				InputSchema: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"command": stringProp("Command path"),
					},
					"required": []string{"command"},
				},
			},
			{
				Name:        "help_list",
				Description: "List indexed commands, optionally filtered by prefix",
				InputSchema: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"prefix": stringProp("Command prefix (optional)"),
					},
				},
			},
		},
	}
}

func (s *Server) handleToolCall(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var callParams struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	if err := json.Unmarshal(params, &callParams); err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid tool call params: " + err.Error()}
	}
	if len(callParams.Arguments) == 0 {
		callParams.Arguments = json.RawMessage("{}")
	}

	switch callParams.Name {
	case "help_search":
		var args struct {
			Query   string `json:"query"`
			Command string `json:"command"`
			TopK    int    `json:"top_k"`
		}
		if err := json.Unmarshal(callParams.Arguments, &args); err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "invalid search arguments: " + err.Error()}
		}
		resp, err := s.help.Search(ctx, &types.SearchRequest{Query: args.Query, Command: args.Command, TopK: args.TopK})
		if errors.Is(err, indexer.ErrEmptyQuery) || errors.Is(err, indexer.ErrInvalidQuery) {
			return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
		if err != nil {
			return nil, err
		}
		return jsonResult(resp)

	case "help_show":
		var args struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(callParams.Arguments, &args); err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "invalid show arguments: " + err.Error()}
		}
		entry, err := s.help.Show(args.Command)
		if err != nil {
			// an unknown command is a tool-level failure the agent can act on
			return &ToolResult{Content: []Content{{Type: "text", Text: err.Error()}}, IsError: true}, nil
		}
		return &ToolResult{Content: []Content{{Type: "text", Text: render.Markdown(entry)}}}, nil

	case "help_list":
		var args struct {
			Prefix string `json:"prefix"`
		}
		if err := json.Unmarshal(callParams.Arguments, &args); err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: "invalid list arguments: " + err.Error()}
		}
		entries, err := s.help.List(args.Prefix)
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		for _, e := range entries {
			fmt.Fprintf(&b, "%s\t%s\n", e.Command, e.Summary)
		}
		return &ToolResult{Content: []Content{{Type: "text", Text: b.String()}}}, nil
	}

	return nil, &Error{Code: CodeInvalidParams, Message: "unknown tool: " + callParams.Name}
}

func jsonResult(v interface{}) (*ToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &ToolResult{Content: []Content{{Type: "text", Text: string(data)}}}, nil
}
