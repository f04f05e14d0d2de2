// Package genai provides the streaming client for the Gemini generate-content API.
//
// All generation in TeleGem goes through Client.StreamGenerate: it posts the
// accumulated conversation history to the streaming endpoint, decodes the
// chunked response incrementally, and returns the assembled text.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/telegem/telegem/internal/models"
)

// Default client configuration constants
const (
	// DefaultModel is the generation model used unless overridden.
	DefaultModel = "gemini-1.5-flash"
	// DefaultBaseURL is the base URL of the generative language API.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultMaxAttempts is the total number of attempts for a stream request.
	DefaultMaxAttempts = 3
	// DefaultRetryDelay is the fixed delay between attempts.
	DefaultRetryDelay = 2 * time.Second
	// DefaultSafetyThreshold disables blocking for all harm categories.
	DefaultSafetyThreshold = "BLOCK_NONE"

	// streamReadBufferSize is the size of the chunk buffer used when reading
	// the response body.
	streamReadBufferSize = 4096
)

// harmCategories are the four independently configurable harm categories every
// request declares a threshold for.
var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// HTTPError is a non-2xx response from the generation endpoint. It is never
// retried: the body is read fully and surfaced to the caller.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("generation endpoint returned HTTP %d: %s", e.StatusCode, e.Body)
}

// ClientInterface defines the generation operations used by the conversation
// engine, allowing a mock implementation in tests.
type ClientInterface interface {
	// StreamGenerate issues a streaming generate-content request for the full
	// ordered history and returns the accumulated response text.
	StreamGenerate(ctx context.Context, history []models.Turn) (string, error)
}

// Opts holds configuration options for the client.
type Opts struct {
	APIKey          string
	Model           string
	BaseURL         string
	MaxAttempts     int
	RetryDelay      time.Duration
	SafetyThreshold string
	HTTPClient      *http.Client
}

// Option defines a configuration option for the client.
type Option func(*Opts)

// WithAPIKey sets the API key, overriding the GEMINI_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel sets the generation model.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithBaseURL overrides the API base URL. Used by tests to point at a local server.
func WithBaseURL(url string) Option {
	return func(o *Opts) {
		o.BaseURL = url
	}
}

// WithMaxAttempts sets the total number of attempts for transient failures.
func WithMaxAttempts(n int) Option {
	return func(o *Opts) {
		o.MaxAttempts = n
	}
}

// WithRetryDelay sets the fixed delay between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Opts) {
		o.RetryDelay = d
	}
}

// WithSafetyThreshold sets the blocking threshold applied to all harm categories.
func WithSafetyThreshold(threshold string) Option {
	return func(o *Opts) {
		o.SafetyThreshold = threshold
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) {
		o.HTTPClient = c
	}
}

// Client issues streaming generate-content requests.
type Client struct {
	apiKey          string
	model           string
	baseURL         string
	maxAttempts     int
	retryDelay      time.Duration
	safetyThreshold string
	httpClient      *http.Client
}

// NewClient initializes a client, reading GEMINI_API_KEY when no key option is given.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:           DefaultModel,
		BaseURL:         DefaultBaseURL,
		MaxAttempts:     DefaultMaxAttempts,
		RetryDelay:      DefaultRetryDelay,
		SafetyThreshold: DefaultSafetyThreshold,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, models.ErrMissingAPIKey
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	slog.Debug("GenAI NewClient options set", "model", cfg.Model, "maxAttempts", cfg.MaxAttempts, "safetyThreshold", cfg.SafetyThreshold)
	return &Client{
		apiKey:          cfg.APIKey,
		model:           cfg.Model,
		baseURL:         cfg.BaseURL,
		maxAttempts:     cfg.MaxAttempts,
		retryDelay:      cfg.RetryDelay,
		safetyThreshold: cfg.SafetyThreshold,
		httpClient:      cfg.HTTPClient,
	}, nil
}

// Wire types for the generate-content request body.
type wireInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"` // base64-encoded by encoding/json
}

type wirePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *wireInlineData `json:"inline_data,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type wireSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generateRequest struct {
	Contents       []wireContent       `json:"contents"`
	SafetySettings []wireSafetySetting `json:"safetySettings"`
}

// StreamGenerate posts the history to the streaming endpoint and returns the
// accumulated response text.
//
// Connection-level failures (request send, mid-stream read) are retried up to
// the configured attempt limit with a fixed delay, re-issuing the identical
// request. Non-2xx responses are read fully and returned as *HTTPError without
// retrying.
func (c *Client) StreamGenerate(ctx context.Context, history []models.Turn) (string, error) {
	if len(history) == 0 {
		return "", models.ErrEmptyHistory
	}

	body, err := json.Marshal(c.buildRequest(history))
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", c.baseURL, c.model, c.apiKey)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		text, err := c.attempt(ctx, url, body)
		if err == nil {
			slog.Debug("GenAI StreamGenerate succeeded", "attempt", attempt, "length", len(text))
			return text, nil
		}

		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			slog.Error("GenAI StreamGenerate upstream HTTP error", "status", httpErr.StatusCode, "attempt", attempt)
			return "", err
		}

		lastErr = err
		slog.Warn("GenAI StreamGenerate transient failure", "error", err, "attempt", attempt, "maxAttempts", c.maxAttempts)
		if attempt < c.maxAttempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}
	return "", fmt.Errorf("stream request failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// attempt performs a single streaming request and decodes the full response.
func (c *Client) attempt(ctx context.Context, url string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Read the body fully so the connection can be reused.
		errBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			slog.Warn("GenAI failed to read error response body", "error", readErr, "status", resp.StatusCode)
		}
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	decoder := NewStreamDecoder()
	buf := make([]byte, streamReadBufferSize)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			decoder.Feed(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("stream read failed: %w", err)
		}
	}
	decoder.Flush()
	if decoder.Skipped() > 0 {
		slog.Warn("GenAI stream contained unparseable records", "skipped", decoder.Skipped())
	}
	return decoder.Text(), nil
}

// buildRequest converts the history into the generate-content request body,
// attaching the safety configuration for all harm categories.
func (c *Client) buildRequest(history []models.Turn) generateRequest {
	contents := make([]wireContent, 0, len(history))
	for _, turn := range history {
		parts := make([]wirePart, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			wp := wirePart{Text: p.Text}
			if p.InlineData != nil {
				wp.InlineData = &wireInlineData{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}
			}
			parts = append(parts, wp)
		}
		contents = append(contents, wireContent{Role: string(turn.Role), Parts: parts})
	}

	settings := make([]wireSafetySetting, 0, len(harmCategories))
	for _, category := range harmCategories {
		settings = append(settings, wireSafetySetting{Category: category, Threshold: c.safetyThreshold})
	}
	return generateRequest{Contents: contents, SafetySettings: settings}
}
