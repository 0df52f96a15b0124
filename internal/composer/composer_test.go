package composer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/derek809/mailtriage/internal/matcher"
	"github.com/derek809/mailtriage/internal/triage"
)

// helperCommand re-executes the test binary as a fake drafter in the given mode.
func helperCommand(mode string) func(string, ...string) *exec.Cmd {
	return func(name string, args ...string) *exec.Cmd {
		cs := []string{"-test.run=TestHelperProcess", "--", name}
		cs = append(cs, args...)
		cmd := exec.Command(os.Args[0], cs...)
		cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1", "HELPER_MODE=" + mode}
		return cmd
	}
}

func withHelper(t *testing.T, mode string) {
	t.Helper()
	orig := execCommand
	execCommand = helperCommand(mode)
	t.Cleanup(func() { execCommand = orig })
}

// TestHelperProcess is not a real test. It acts as the drafter program.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	mode := os.Getenv("HELPER_MODE")
	fmt.Fprintln(os.Stderr, "helper ready")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		var req struct {
			ID     int64           `json:"id"`
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			os.Exit(2)
		}

		var params composeParams
		_ = json.Unmarshal(req.Params, &params)

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		switch mode {
		case "error":
			resp["error"] = map[string]interface{}{"code": -32000, "message": "model overloaded"}
		case "hang":
			time.Sleep(10 * time.Second)
			continue
		case "empty":
			resp["result"] = map[string]string{"text": "  "}
		default:
			text := fmt.Sprintf("Hi %s, re %s [%s] #%d", params.SenderName, params.Subject, params.Pattern, req.ID)
			resp["result"] = map[string]string{"text": text}
		}

		out, _ := json.Marshal(resp)
		fmt.Println(string(out))
	}
}

func sampleRequest() triage.DraftRequest {
	return triage.DraftRequest{
		Message: triage.Message{
			Subject:     "W9 request",
			Body:        "Please send your W9",
			SenderEmail: "ana@vendor.com",
			SenderName:  "Ana",
		},
		Match:      &matcher.MatchResult{PatternName: "w9_wiring_request", MatchedKeywords: []string{"w9"}},
		Confidence: 75,
	}
}

func TestComposeRoundTrip(t *testing.T) {
	withHelper(t, "ok")
	core, logs := observer.New(zap.InfoLevel)
	c := New(Command{Path: "drafter"}, zap.New(core))
	defer c.Close()

	text, err := c.Compose(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Hi Ana, re W9 request [w9_wiring_request] #1", text)

	// The process is reused, so the request id advances.
	text, err = c.Compose(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(text, "#2"), "got %q", text)
	assert.Equal(t, 1, logs.FilterMessage("drafter started").Len())
}

func TestComposeRPCErrorKeepsProcess(t *testing.T) {
	withHelper(t, "error")
	c := New(Command{Path: "drafter"}, zap.NewNop())
	defer c.Close()

	_, err := c.Compose(context.Background(), sampleRequest())
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr), "got %v", err)
	assert.Equal(t, -32000, rpcErr.Code)

	c.mu.Lock()
	assert.NotNil(t, c.proc)
	c.mu.Unlock()
}

func TestComposeEmptyText(t *testing.T) {
	withHelper(t, "empty")
	c := New(Command{Path: "drafter"}, zap.NewNop())
	defer c.Close()

	_, err := c.Compose(context.Background(), sampleRequest())
	assert.Error(t, err)
}

func TestComposeTimeoutResetsProcess(t *testing.T) {
	withHelper(t, "hang")
	c := New(Command{Path: "drafter", Timeout: 200 * time.Millisecond}, zap.NewNop())
	defer c.Close()

	_, err := c.Compose(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")

	c.mu.Lock()
	assert.Nil(t, c.proc)
	c.mu.Unlock()
}

func TestComposeContextCancelled(t *testing.T) {
	withHelper(t, "hang")
	c := New(Command{Path: "drafter"}, zap.NewNop())
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Compose(ctx, sampleRequest())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestComposeWithoutCommand(t *testing.T) {
	c := New(Command{}, nil)
	_, err := c.Compose(context.Background(), sampleRequest())
	assert.Error(t, err)
}

func TestCloseWithoutProcess(t *testing.T) {
	c := New(Command{Path: "drafter"}, nil)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestNewAppliesDefaultTimeout(t *testing.T) {
	c := New(Command{Path: "drafter"}, nil)
	assert.Equal(t, DefaultTimeout, c.command.Timeout)
}

func TestToParamsWithoutMatch(t *testing.T) {
	req := sampleRequest()
	req.Match = nil
	req.Filled = "Hi Ana"

	p := toParams(req)
	assert.Empty(t, p.Pattern)
	assert.Nil(t, p.MatchedKeywords)
	assert.Equal(t, "Hi Ana", p.Template)
}
