// Package provider implements feedback.Provider over an OpenAI-compatible
// chat completions endpoint.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jonwraymond/feedbackops/feedback"
)

// DefaultBaseURL is the API root used when none is configured.
const DefaultBaseURL = "https://api.openai.com/v1"

// DefaultModel is the model requested when none is configured.
const DefaultModel = "gpt-4o-mini"

// DefaultPrompt is the system prompt for tags without their own.
const DefaultPrompt = "You are a helpful reviewer. Give concise, specific, actionable feedback on the user's submission."

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

var (
	ErrMissingAPIKey = errors.New("provider: api key is required")
	ErrNoFeedback    = errors.New("provider: response carried no feedback")
)

// Result is the JSON payload Client.Generate returns.
type Result struct {
	Tag      string `json:"tag"`
	Model    string `json:"model"`
	Feedback string `json:"feedback"`
}

// Client calls a chat completions API.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Context: requests honor ctx cancellation/deadlines.
// - Errors: every failure is a *feedback.ProviderError. Timeouts, throttling
// and 5xx responses are Transient; other 4xx responses and unusable bodies
// are Permanent.
type Client struct {
	http          *http.Client
	baseURL       *url.URL
	apiKey        string
	model         string
	prompts       map[string]string
	defaultPrompt string
	maxTokens     int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client. Default: a client with a 60s timeout.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithBaseURL sets the API root. Invalid URLs are ignored.
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(raw); err == nil && raw != "" {
			c.baseURL = u
		}
	}
}

// WithModel sets the requested model.
func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithPrompts sets per-tag system prompts.
func WithPrompts(prompts map[string]string) Option {
	return func(c *Client) {
		for tag, p := range prompts {
			c.prompts[tag] = p
		}
	}
}

// WithDefaultPrompt sets the system prompt for tags without their own.
func WithDefaultPrompt(prompt string) Option {
	return func(c *Client) {
		if prompt != "" {
			c.defaultPrompt = prompt
		}
	}
}

// WithMaxTokens caps the completion length. Zero leaves it to the API.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// New creates a Client authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	u, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		http:          &http.Client{Timeout: 60 * time.Second},
		baseURL:       u,
		apiKey:        apiKey,
		model:         DefaultModel,
		prompts:       make(map[string]string),
		defaultPrompt: DefaultPrompt,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Prompt returns the system prompt used for tag.
func (c *Client) Prompt(tag string) string {
	if p, ok := c.prompts[tag]; ok {
		return p
	}
	return c.defaultPrompt
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// Generate asks the API for feedback on content and returns a JSON-encoded
// Result.
func (c *Client) Generate(ctx context.Context, tag string, content []byte) ([]byte, error) {
	body, err := json.Marshal(completionRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: c.Prompt(tag)},
			{Role: "user", Content: string(content)},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return nil, feedback.PermanentError(fmt.Errorf("provider: encode request: %w", err))
	}

	u := *c.baseURL
	u.Path = path.Join(u.Path, "chat/completions")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, feedback.PermanentError(fmt.Errorf("provider: build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, feedback.TransientError(fmt.Errorf("provider: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, feedback.TransientError(fmt.Errorf("provider: read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &feedback.ProviderError{
			Kind:       Classify(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("provider: %s: %s", resp.Status, errorMessage(raw)),
		}
	}

	if !gjson.ValidBytes(raw) {
		return nil, feedback.PermanentError(fmt.Errorf("provider: response is not JSON"))
	}
	text := gjson.GetBytes(raw, "choices.0.message.content").String()
	if strings.TrimSpace(text) == "" {
		return nil, feedback.PermanentError(ErrNoFeedback)
	}

	model := gjson.GetBytes(raw, "model").String()
	if model == "" {
		model = c.model
	}
	out, err := json.Marshal(Result{Tag: tag, Model: model, Feedback: text})
	if err != nil {
		return nil, feedback.PermanentError(fmt.Errorf("provider: encode result: %w", err))
	}
	return out, nil
}

// Classify maps an HTTP status to a failure kind: request timeouts,
// throttling and server errors are worth retrying.
func Classify(status int) feedback.FailureKind {
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooEarly,
		status == http.StatusTooManyRequests,
		status >= 500:
		return feedback.Transient
	default:
		return feedback.Permanent
	}
}

// errorMessage extracts the API's error message, or a trimmed body.
func errorMessage(raw []byte) string {
	if msg := gjson.GetBytes(raw, "error.message"); msg.Exists() {
		return msg.String()
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}

var _ feedback.Provider = (*Client)(nil)
