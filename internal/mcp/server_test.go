package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derek809/mailtriage/internal/learning"
	"github.com/derek809/mailtriage/internal/search"
	"github.com/derek809/mailtriage/internal/storage"
	"github.com/derek809/mailtriage/internal/triage"
)

type stubSimilar struct {
	query   search.Query
	matches []search.Match
}

func (s *stubSimilar) Similar(q search.Query) ([]search.Match, error) {
	s.query = q
	return s.matches, nil
}

func newTestServer(t *testing.T) (*Server, *storage.MemoryStorage, *stubSimilar) {
	t.Helper()
	store := storage.NewMemoryStorage()
	_, err := storage.SeedDefaults(context.Background(), store)
	require.NoError(t, err)

	loop := learning.NewLoop(store)
	t.Cleanup(loop.Close)

	similar := &stubSimilar{}
	return NewServer(triage.New(store), loop, similar, store, nil), store, similar
}

func call(t *testing.T, s *Server, req string) *Response {
	t.Helper()
	resp, err := s.handleRequest(context.Background(), []byte(req))
	require.NoError(t, err)
	return resp
}

func toolText(t *testing.T, resp *Response) string {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected error: %+v", resp.Error)
	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	require.Len(t, content, 1)
	return content[0]["text"].(string)
}

func TestHandleInitialize(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp := call(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]interface{})
	assert.Equal(t, ProtocolVersion, result["protocolVersion"])
	assert.Equal(t, float64(1), resp.ID)
}

func TestNotificationsGetNoResponse(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp := call(t, s, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Nil(t, resp)
}

func TestUnknownMethod(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp := call(t, s, `{"jsonrpc":"2.0","id":2,"method":"resources/list"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestInvalidJSON(t *testing.T) {
	s, _, _ := newTestServer(t)

	_, err := s.handleRequest(context.Background(), []byte(`{not json`))
	assert.Error(t, err)
}

func TestToolsList(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp := call(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`)
	require.Nil(t, resp.Error)

	tools := resp.Result.(map[string]interface{})["tools"].([]schema)
	var names []string
	for _, tool := range tools {
		names = append(names, tool["name"].(string))
	}
	assert.Equal(t, []string{"triage_draft", "triage_record_sent", "triage_similar", "triage_patterns"}, names)
}

func TestUnknownTool(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp := call(t, s, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"hub_list"}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestDraftThenRecordSent(t *testing.T) {
	s, store, _ := newTestServer(t)

	resp := call(t, s, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"triage_draft",
		"arguments":{"sender_email":"ana@vendor.com","sender_name":"Ana","subject":"W9 request","body":"please send the w9"}}}`)
	text := toolText(t, resp)
	assert.Contains(t, text, "Pattern: w9_wiring_request")

	drafts, err := store.ListDrafts(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	id := drafts[0].ID
	assert.Contains(t, text, "Draft id: "+id)

	args, err := json.Marshal(map[string]interface{}{
		"name":      "triage_record_sent",
		"arguments": map[string]string{"draft_id": id, "final_text": drafts[0].DraftText},
	})
	require.NoError(t, err)
	resp = call(t, s, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":`+string(args)+`}`)
	assert.Contains(t, toolText(t, resp), "outcome success")

	// A draft is scored once.
	resp = call(t, s, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":`+string(args)+`}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeToolFailed, resp.Error.Code)
}

func TestDraftValidationError(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp := call(t, s, `{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"triage_draft","arguments":{"subject":"hi"}}}`)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "sender")
}

func TestRecordSentRequiresDraftID(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp := call(t, s, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"triage_record_sent","arguments":{"final_text":"x"}}}`)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "draft_id")
}

func TestSimilar(t *testing.T) {
	s, _, similar := newTestServer(t)
	similar.matches = []search.Match{{DraftID: "d1", Pattern: "meeting_request", Outcome: "success", FinalText: "Thursday works.", Score: 1.5}}

	resp := call(t, s, `{"jsonrpc":"2.0","id":10,"method":"tools/call","params":{"name":"triage_similar","arguments":{"query":"meet thursday","pattern":"meeting_request"}}}`)
	text := toolText(t, resp)
	assert.Contains(t, text, "Thursday works.")
	assert.Equal(t, 5, similar.query.Limit)
	assert.Equal(t, "meeting_request", similar.query.Pattern)

	similar.matches = nil
	resp = call(t, s, `{"jsonrpc":"2.0","id":11,"method":"tools/call","params":{"name":"triage_similar","arguments":{"query":"zzz","limit":2}}}`)
	assert.Contains(t, toolText(t, resp), "No sent replies")
	assert.Equal(t, 2, similar.query.Limit)
}

func TestSimilarDisabled(t *testing.T) {
	store := storage.NewMemoryStorage()
	loop := learning.NewLoop(store)
	defer loop.Close()
	s := NewServer(triage.New(store), loop, nil, store, nil)

	resp := call(t, s, `{"jsonrpc":"2.0","id":12,"method":"tools/call","params":{"name":"triage_similar","arguments":{"query":"x"}}}`)
	require.NotNil(t, resp.Error)
}

func TestPatterns(t *testing.T) {
	s, _, _ := newTestServer(t)

	resp := call(t, s, `{"jsonrpc":"2.0","id":13,"method":"tools/call","params":{"name":"triage_patterns"}}`)
	text := toolText(t, resp)
	assert.Contains(t, text, "Patterns (7):")
	assert.Contains(t, text, "meeting_request")
}

func TestRun(t *testing.T) {
	s, _, _ := newTestServer(t)

	in := strings.NewReader(strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`garbage`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"triage_patterns"}}`,
	}, "\n"))
	out := new(bytes.Buffer)

	require.NoError(t, s.Run(context.Background(), in, out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var parseErr Response
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &parseErr))
	require.NotNil(t, parseErr.Error)
	assert.Equal(t, codeParseError, parseErr.Error.Code)

	assert.Contains(t, lines[2], "Patterns (7):")
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`+"\n"), new(bytes.Buffer))
	assert.ErrorIs(t, err, context.Canceled)
}
