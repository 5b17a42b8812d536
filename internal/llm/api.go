package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
)

// ErrAPIKeyRequired is returned when the API backend is requested without
// a key in the environment or config.
var ErrAPIKeyRequired = errors.New("API key required")

const (
	defaultAPIModel    = "claude-sonnet-4-5"
	defaultMaxTokens   = 4096
	apiInitialBackoff  = 1 * time.Second
	apiMaxElapsedRetry = 2 * time.Minute
)

// APIClient talks to the Anthropic API directly. Env var ANTHROPIC_API_KEY
// takes precedence over an explicit key.
type APIClient struct {
	client anthropic.Client
	model  string
}

// NewAPIClient builds an API-backed client.
func NewAPIClient(apiKey, model string) (*APIClient, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY or configure llm.api-key", ErrAPIKeyRequired)
	}
	if model == "" {
		model = defaultAPIModel
	}
	return &APIClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  ResolveModel(model),
	}, nil
}

func (a *APIClient) Name() string { return "anthropic-api" }

// Complete sends one message, retrying rate limits and server errors with
// exponential backoff.
func (a *APIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	model := ResolveModel(req.Model)
	if model == "" {
		model = a.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	var message *anthropic.Message
	operation := func() error {
		m, err := a.client.Messages.New(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		message = m
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = apiInitialBackoff
	policy.MaxElapsedTime = apiMaxElapsedRetry
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	if len(message.Content) == 0 {
		return nil, fmt.Errorf("unexpected response format: no content blocks")
	}
	content := message.Content[0]
	if content.Type != "text" {
		return nil, fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
	}

	return &Response{
		Text:         content.Text,
		Model:        model,
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
