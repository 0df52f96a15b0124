/*
Package mcp exposes the triage core as an MCP server over stdio.

The server speaks line-delimited JSON-RPC 2.0 and exposes four tools:
  - triage_draft: match a message, score it and draft a reply
  - triage_record_sent: record the text that was actually sent for a draft
  - triage_similar: find sent replies to similar messages
  - triage_patterns: list the pattern library with success rates
*/
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/derek809/mailtriage/internal/learning"
	"github.com/derek809/mailtriage/internal/search"
	"github.com/derek809/mailtriage/internal/storage"
	"github.com/derek809/mailtriage/internal/triage"
	"github.com/derek809/mailtriage/internal/version"
)

// ProtocolVersion is the MCP revision the server implements.
const ProtocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeToolFailed     = -32000
)

// Drafter drafts one reply; *triage.Pipeline satisfies it.
type Drafter interface {
	Draft(ctx context.Context, msg triage.Message, instruction string) (*triage.Draft, error)
}

// Recorder records sent replies; *learning.Loop satisfies it.
type Recorder interface {
	RecordSent(ctx context.Context, draftID, finalText string) (*learning.Result, error)
}

// Server is the mailtriage MCP server.
type Server struct {
	drafter  Drafter
	recorder Recorder
	similar  triage.SimilarFinder
	patterns storage.PatternRepository
	logger   *zap.Logger
}

// NewServer creates a server. similar may be nil, which disables triage_similar.
func NewServer(drafter Drafter, recorder Recorder, similar triage.SimilarFinder, patterns storage.PatternRepository, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		drafter:  drafter,
		recorder: recorder,
		similar:  similar,
		patterns: patterns,
		logger:   logger,
	}
}

// Run serves requests from in until it is closed or ctx is cancelled.
// Responses are written to out, one per line.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		response, err := s.handleRequest(ctx, line)
		if err != nil {
			response = &Response{
				JSONRPC: "2.0",
				Error:   &Error{Code: codeParseError, Message: err.Error()},
			}
		}
		if response == nil {
			continue
		}
		if err := enc.Encode(response); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}

	return scanner.Err()
}

// Request is an incoming JSON-RPC request or notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is an outgoing JSON-RPC response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleRequest returns nil for notifications, which get no response.
func (s *Server) handleRequest(ctx context.Context, data []byte) (*Response, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON-RPC request: %w", err)
	}

	if strings.HasPrefix(req.Method, "notifications/") {
		return nil, nil
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(&req), nil
	case "tools/list":
		return s.handleToolsList(&req), nil
	case "tools/call":
		return s.handleToolsCall(ctx, &req), nil
	default:
		return errorResponse(req.ID, codeMethodNotFound, "Method not found"), nil
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "mailtriage",
				"version": version.Get().Version,
			},
		},
	}
}

type schema map[string]interface{}

func stringProp(description string) schema {
	return schema{"type": "string", "description": description}
}

func (s *Server) handleToolsList(req *Request) *Response {
	tools := []schema{
		{
			"name": "triage_draft",
			"description": `Match an email against the pattern library, score confidence and draft a reply.

Returns the draft id, matched pattern, confidence (0-100), the action policy
(draft_ready, draft_flagged or summary_only) and the draft text. Keep the
draft id: pass it to triage_record_sent once the reply has been sent.`,
			"inputSchema": schema{
				"type": "object",
				"properties": schema{
					"sender_email": stringProp("Sender address"),
					"sender_name":  stringProp("Sender display name"),
					"subject":      stringProp("Email subject"),
					"body":         stringProp("Email body"),
					"instruction":  stringProp("Extra instruction from the operator"),
				},
				"required": []string{"sender_email"},
			},
		},
		{
			"name": "triage_record_sent",
			"description": `Record the reply that was actually sent for a draft.

The difference between draft and sent text updates pattern and template
success rates, learned phrases and the sender's contact. Each draft can be
recorded once.`,
			"inputSchema": schema{
				"type": "object",
				"properties": schema{
					"draft_id":   stringProp("Id returned by triage_draft"),
					"final_text": stringProp("Text that was sent"),
				},
				"required": []string{"draft_id", "final_text"},
			},
		},
		{
			"name":        "triage_similar",
			"description": "Find previously sent replies to messages similar to the query text.",
			"inputSchema": schema{
				"type": "object",
				"properties": schema{
					"query":   stringProp("Message text to compare against"),
					"pattern": stringProp("Only replies drafted for this pattern"),
					"limit":   schema{"type": "integer", "description": "Maximum results (default 5)"},
				},
				"required": []string{"query"},
			},
		},
		{
			"name":        "triage_patterns",
			"description": "List the pattern library with keywords, usage counts and success rates.",
			"inputSchema": schema{
				"type":       "object",
				"properties": schema{},
			},
		},
	}

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  map[string]interface{}{"tools": tools},
	}
}

// toolArgs holds the union of all tool arguments.
type toolArgs struct {
	SenderEmail string `json:"sender_email"`
	SenderName  string `json:"sender_name"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	Instruction string `json:"instruction"`
	DraftID     string `json:"draft_id"`
	FinalText   string `json:"final_text"`
	Query       string `json:"query"`
	Pattern     string `json:"pattern"`
	Limit       int    `json:"limit"`
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params struct {
		Name      string   `json:"name"`
		Arguments toolArgs `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, fmt.Sprintf("invalid params: %v", err))
	}

	var (
		result string
		err    error
	)
	args := params.Arguments

	switch params.Name {
	case "triage_draft":
		result, err = s.execDraft(ctx, args)
	case "triage_record_sent":
		result, err = s.execRecordSent(ctx, args)
	case "triage_similar":
		result, err = s.execSimilar(args)
	case "triage_patterns":
		result, err = s.execPatterns(ctx)
	default:
		return errorResponse(req.ID, codeInvalidParams, fmt.Sprintf("Unknown tool: %s", params.Name))
	}

	if err != nil {
		s.logger.Warn("tool call failed", zap.String("tool", params.Name), zap.Error(err))
		return errorResponse(req.ID, codeToolFailed, err.Error())
	}

	return &Response{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": result},
			},
		},
	}
}

func (s *Server) execDraft(ctx context.Context, args toolArgs) (string, error) {
	d, err := s.drafter.Draft(ctx, triage.Message{
		Subject:     args.Subject,
		Body:        args.Body,
		SenderEmail: args.SenderEmail,
		SenderName:  args.SenderName,
	}, args.Instruction)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if d.Recorded {
		fmt.Fprintf(&b, "Draft id: %s\n", d.ID)
	} else {
		b.WriteString("Draft id: (not recorded, store unavailable)\n")
	}
	pattern := d.PatternName()
	if pattern == "" {
		pattern = "(none)"
	}
	fmt.Fprintf(&b, "Pattern: %s\n", pattern)
	fmt.Fprintf(&b, "Confidence: %d (%s)\n", d.Confidence, d.Policy)
	if len(d.MissingVariables) > 0 {
		fmt.Fprintf(&b, "Missing: %s\n", strings.Join(d.MissingVariables, ", "))
	}
	if len(d.Attachments) > 0 {
		fmt.Fprintf(&b, "Attach: %s\n", strings.Join(d.Attachments, ", "))
	}
	if d.Text != "" {
		fmt.Fprintf(&b, "\n%s\n", d.Text)
	}
	return b.String(), nil
}

func (s *Server) execRecordSent(ctx context.Context, args toolArgs) (string, error) {
	if args.DraftID == "" {
		return "", fmt.Errorf("draft_id is required")
	}
	res, err := s.recorder.RecordSent(ctx, args.DraftID, args.FinalText)
	if err != nil {
		return "", err
	}

	out := fmt.Sprintf("Recorded %s: %.2f%% edited, outcome %s", res.DraftID, res.EditPercentage, res.Outcome)
	for _, w := range res.Warnings {
		out += "\nwarning: " + w
	}
	return out, nil
}

func (s *Server) execSimilar(args toolArgs) (string, error) {
	if s.similar == nil {
		return "", fmt.Errorf("reply search is not available")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 5
	}

	matches, err := s.similar.Similar(search.Query{Text: args.Query, Pattern: args.Pattern, Limit: limit})
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No sent replies similar to '%s'.", args.Query), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Similar sent replies (%d):\n", len(matches))
	for _, m := range matches {
		fmt.Fprintf(&b, "\n- %s [%s, %s, score %.3f]\n%s\n", m.DraftID, m.Pattern, m.Outcome, m.Score, m.FinalText)
	}
	return b.String(), nil
}

func (s *Server) execPatterns(ctx context.Context) (string, error) {
	patterns, err := s.patterns.ListPatterns(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Patterns (%d):\n", len(patterns))
	for _, p := range patterns {
		fmt.Fprintf(&b, "  - %s: used %d, success %d%%, keywords: %s\n",
			p.Name, p.UsageCount, p.SuccessRate, strings.Join(p.Keywords, ", "))
	}
	return b.String(), nil
}

func errorResponse(id interface{}, code int, msg string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: msg},
	}
}
