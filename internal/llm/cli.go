package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrCLINotFound is returned when the configured CLI binary is not on PATH.
var ErrCLINotFound = errors.New("LLM CLI not found")

const defaultCLITimeout = 120 * time.Second

// CLIClient invokes a local LLM command-line tool as a subprocess. The
// tool must accept --print and --model flags, read the prompt on stdin,
// and write the response to stdout.
type CLIClient struct {
	path    string
	model   string
	timeout time.Duration
}

// NewCLIClient resolves the named binary on PATH. A missing binary is an
// ErrCLINotFound so callers can suggest installation.
func NewCLIClient(binary, model string, timeout time.Duration) (*CLIClient, error) {
	if binary == "" {
		binary = "claude"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not on PATH (install it or set llm.cli)", ErrCLINotFound, binary)
	}
	if timeout <= 0 {
		timeout = defaultCLITimeout
	}
	return &CLIClient{path: path, model: ResolveModel(model), timeout: timeout}, nil
}

func (c *CLIClient) Name() string { return "cli:" + c.path }

// Complete runs one subprocess call. Non-zero exit surfaces stderr
// verbatim; a timeout kills the process and reports how long it ran.
func (c *CLIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	model := ResolveModel(req.Model)
	if model == "" {
		model = c.model
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := []string{"--print", "--model", model}
	cmd := exec.CommandContext(ctx, c.path, args...)

	prompt := req.Prompt
	if req.System != "" {
		prompt = req.System + "\n\n" + prompt
	}
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("LLM call timed out after %s", c.timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("LLM CLI failed: %s", msg)
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return nil, fmt.Errorf("LLM CLI produced no output")
	}

	// The CLI does not report token usage; estimate both sides.
	return &Response{
		Text:         text,
		Model:        model,
		InputTokens:  EstimateTokens(prompt),
		OutputTokens: EstimateTokens(text),
	}, nil
}
