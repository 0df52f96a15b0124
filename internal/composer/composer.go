/*
Package composer drafts reply bodies by delegating to an external program.

The program is spawned lazily on the first draft and kept running. It
speaks line-delimited JSON-RPC 2.0 on stdio:

	-> {"jsonrpc":"2.0","id":1,"method":"draft/compose","params":{...}}
	<- {"jsonrpc":"2.0","id":1,"result":{"text":"Hi Ana, ..."}}

Any model-backed drafter (a local LLM wrapper, a script calling a hosted
API) can sit behind this protocol. Stderr is drained and logged at debug
level. A process that stops answering is killed and respawned on the next
request.
*/
package composer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/derek809/mailtriage/internal/search"
	"github.com/derek809/mailtriage/internal/triage"
)

// DefaultTimeout bounds a single compose request.
const DefaultTimeout = 60 * time.Second

// MethodCompose is the JSON-RPC method sent for each draft.
const MethodCompose = "draft/compose"

// Command describes the drafter program.
type Command struct {
	Path    string
	Args    []string
	Env     map[string]string
	Timeout time.Duration
}

// Composer implements triage.Drafter on top of a child process.
type Composer struct {
	command Command
	logger  *zap.Logger

	mu   sync.Mutex
	proc *process
}

var _ triage.Drafter = (*Composer)(nil)

// process is one running drafter program.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	// reqID is a counter rather than a timestamp so ids stay small integers.
	reqID  int64
	cancel context.CancelFunc
}

// execCommand is replaced in tests.
var execCommand = exec.Command

// New creates a Composer. Nothing is spawned until the first Compose call.
func New(command Command, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if command.Timeout <= 0 {
		command.Timeout = DefaultTimeout
	}
	return &Composer{command: command, logger: logger}
}

// composeParams is the wire form of a triage.DraftRequest.
type composeParams struct {
	Subject         string         `json:"subject"`
	Body            string         `json:"body"`
	SenderEmail     string         `json:"sender_email"`
	SenderName      string         `json:"sender_name,omitempty"`
	Instruction     string         `json:"instruction,omitempty"`
	Pattern         string         `json:"pattern,omitempty"`
	MatchedKeywords []string       `json:"matched_keywords,omitempty"`
	Confidence      int            `json:"confidence"`
	Template        string         `json:"template,omitempty"`
	Similar         []search.Match `json:"similar,omitempty"`
}

func toParams(req triage.DraftRequest) composeParams {
	p := composeParams{
		Subject:     req.Message.Subject,
		Body:        req.Message.Body,
		SenderEmail: req.Message.SenderEmail,
		SenderName:  req.Message.SenderName,
		Instruction: req.Instruction,
		Confidence:  req.Confidence,
		Template:    req.Filled,
		Similar:     req.Similar,
	}
	if req.Match != nil {
		p.Pattern = req.Match.PatternName
		p.MatchedKeywords = req.Match.MatchedKeywords
	}
	return p
}

// Compose sends the request to the drafter program and returns its text.
func (c *Composer) Compose(ctx context.Context, req triage.DraftRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	proc, err := c.getOrSpawn()
	if err != nil {
		return "", err
	}

	raw, err := proc.sendRequest(ctx, MethodCompose, toParams(req), c.command.Timeout)
	if err != nil {
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			// The stream may be out of step now; start fresh next time.
			c.logger.Warn("drafter process reset", zap.Error(err))
			proc.kill()
			go proc.cmd.Wait()
			c.proc = nil
		}
		return "", err
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("failed to parse drafter result: %w", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		return "", errors.New("drafter returned empty text")
	}
	return result.Text, nil
}

// Close stops the drafter program. It closes stdin first and kills the
// process if it has not exited within two seconds.
func (c *Composer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	proc := c.proc
	c.proc = nil
	if proc == nil {
		return nil
	}

	if proc.stdin != nil {
		if err := proc.stdin.Close(); err != nil {
			c.logger.Debug("failed to close drafter stdin", zap.Error(err))
		}
	}

	done := make(chan error, 1)
	go func() {
		done <- proc.cmd.Wait()
	}()

	select {
	case err := <-done:
		proc.cancel()
		if err != nil && !strings.Contains(err.Error(), "signal: killed") {
			return fmt.Errorf("drafter exited: %w", err)
		}
	case <-time.After(2 * time.Second):
		c.logger.Warn("drafter did not exit, killing", zap.String("command", c.command.Path))
		proc.kill()
		<-done
	}
	return nil
}

// getOrSpawn must be called with mu held.
func (c *Composer) getOrSpawn() (*process, error) {
	if c.proc != nil {
		return c.proc, nil
	}
	proc, err := c.spawn()
	if err != nil {
		return nil, err
	}
	c.proc = proc
	return proc, nil
}

func (c *Composer) spawn() (*process, error) {
	if c.command.Path == "" {
		return nil, errors.New("no drafter command configured")
	}

	cmd := execCommand(c.command.Path, c.command.Args...)
	cmd.Env = os.Environ()
	for key, value := range c.command.Env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	// An undrained stderr pipe blocks the child once its buffer fills.
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start drafter %q: %w", c.command.Path, err)
	}
	c.logger.Info("drafter started", zap.String("command", c.command.Path), zap.Int("pid", cmd.Process.Pid))

	ctx, cancel := context.WithCancel(context.Background())
	go c.drainStderr(ctx, stderr)

	return &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
		cancel: cancel,
	}, nil
}

func (c *Composer) drainStderr(ctx context.Context, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		c.logger.Debug("drafter stderr", zap.String("line", scanner.Text()))
	}
}

// RPCError is an error reported by the drafter program itself.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("drafter error %d: %s", e.Code, e.Message)
}

// sendRequest writes one request and waits for its response line.
func (proc *process) sendRequest(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	proc.reqID++
	reqID := proc.reqID

	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      reqID,
		"method":  method,
		"params":  params,
	}
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	reqBytes = append(reqBytes, '\n')

	if _, err := proc.stdin.Write(reqBytes); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	lines := make(chan []byte, 1)
	errs := make(chan error, 1)
	go func() {
		line, err := proc.stdout.ReadBytes('\n')
		if err != nil {
			errs <- fmt.Errorf("failed to read response: %w", err)
			return
		}
		lines <- line
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line := <-lines:
		var resp struct {
			ID     int64           `json:"id"`
			Result json.RawMessage `json:"result"`
			Error  *RPCError       `json:"error"`
		}
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if resp.ID != reqID {
			return nil, fmt.Errorf("response id %d does not match request %d", resp.ID, reqID)
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil

	case err := <-errs:
		return nil, err

	case <-timer.C:
		return nil, fmt.Errorf("timeout after %v waiting for drafter", timeout)

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// kill terminates the process and stops the stderr reader.
func (proc *process) kill() {
	if proc.cancel != nil {
		proc.cancel()
	}
	if proc.cmd != nil && proc.cmd.Process != nil {
		_ = proc.cmd.Process.Kill()
	}
}
