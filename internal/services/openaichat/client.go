// Package openaichat generates notes through the official OpenAI Go SDK.
//
// The SDK's own retries are disabled; rate limited calls (HTTP 429) are
// retried here with exponential backoff so the wait honors the job context.
package openaichat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	DefaultModel = "gpt-4o-mini"
	MaxRetries   = 3
	BaseBackoff  = 2 * time.Second
	MaxBackoff   = 32 * time.Second
)

// ErrAPIKeyNotSet is returned when the client is constructed without a key.
var ErrAPIKeyNotSet = errors.New("openai api key not set")

// Config holds the connection settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
	Temperature    float64
	MaxTokens      int
}

// Client implements note generation on the chat completions API.
type Client struct {
	client  openai.Client
	cfg     Config
	timeout time.Duration
	sleep   func(context.Context, time.Duration) error
}

// Option customizes a Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient *http.Client
	sleep      func(context.Context, time.Duration) error
}

// WithHTTPClient overrides the SDK transport.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = client }
}

// WithSleep overrides how backoff waits are performed (tests).
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(o *clientOptions) { o.sleep = fn }
}

// New constructs a client.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	o := clientOptions{sleep: sleepContext}
	for _, opt := range opts {
		opt(&o)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	if o.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(o.httpClient))
	}
	timeout := 120 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		client:  openai.NewClient(reqOpts...),
		cfg:     cfg,
		timeout: timeout,
		sleep:   o.sleep,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Complete sends the prompts and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(c.cfg.Temperature),
	}
	if c.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.cfg.MaxTokens))
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, Backoff(attempt)); err != nil {
				return "", err
			}
		}
		content, err := c.once(ctx, params)
		if err == nil {
			return content, nil
		}
		if !isRateLimitError(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("openai chat: rate limited after %d retries: %w", MaxRetries, lastErr)
}

func (c *Client) once(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("openai chat: no completion choices returned")
	}
	return completion.Choices[0].Message.Content, nil
}

// HealthCheck issues a minimal completion to verify credentials and model.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.Complete(ctx, "Reply with the single word ok.", "ping")
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return errors.New("openai chat: empty health response")
	}
	return nil
}

// Backoff returns the wait before the given retry: 2s, 4s, 8s, capped at 32s.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := BaseBackoff << (attempt - 1)
	if delay <= 0 || delay > MaxBackoff {
		return MaxBackoff
	}
	return delay
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
