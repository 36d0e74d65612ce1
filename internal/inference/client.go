// ABOUTME: HTTP chat-completion client for one endpoint + model identity
// ABOUTME: Ollama-native body first, OpenAI-compatible fallback on 404

package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// defaultTimeout bounds a single completion call when the endpoint config
// does not say otherwise.
const defaultTimeout = 60 * time.Second

// Role values for chat messages, matching the wire protocol.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message in a request payload.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are the runtime options forwarded with a completion. Zero values
// are omitted from the payload rather than rejected: unsupported options
// are dropped, not errored.
type Options struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
	Stop        []string
	Stream      bool
}

// set reports whether any option was given. Slice fields rule out a plain
// struct comparison against the zero value.
func (o Options) set() bool {
	return o.Temperature != 0 || o.MaxTokens != 0 || o.TopP != 0 || len(o.Stop) > 0
}

// Endpoint identifies one remote inference server + model.
type Endpoint struct {
	BaseURL string        // e.g. http://localhost:11434
	APIPath string        // optional path prefix in front of the API routes
	Model   string        // model identifier on that server
	Timeout time.Duration // per-call bound; defaultTimeout when zero
}

// Client issues chat completions and admin calls against one endpoint.
// It holds no mutable state and is safe for concurrent use.
type Client struct {
	endpoint Endpoint
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a client for the endpoint. Pass nil logger for the
// default.
func NewClient(endpoint Endpoint, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := endpoint.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.With("component", "inference", "endpoint", endpoint.BaseURL, "model", endpoint.Model),
	}
}

// Model returns the endpoint's model identifier.
func (c *Client) Model() string {
	return c.endpoint.Model
}

// url joins the base URL, optional API path prefix, and route.
func (c *Client) url(route string) string {
	base := strings.TrimRight(c.endpoint.BaseURL, "/")
	prefix := strings.Trim(c.endpoint.APIPath, "/")
	if prefix != "" {
		return base + "/" + prefix + route
	}
	return base + route
}

// chatRequest is the Ollama-native chat payload.
type chatRequest struct {
	Model    string       `json:"model"`
	Messages []Message    `json:"messages"`
	Stream   bool         `json:"stream"`
	Options  *chatOptions `json:"options,omitempty"`
}

// chatOptions carries only the options the caller actually set.
type chatOptions struct {
	Temperature float64  `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// openAIRequest is the OpenAI-compatible fallback payload.
type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// Complete sends the history to the endpoint and returns the reply text.
// Failures are always a *Error; the call has no side effects and is safe
// to retry.
func (c *Client) Complete(ctx context.Context, history []Message, opts Options) (string, error) {
	body := chatRequest{
		Model:    c.endpoint.Model,
		Messages: history,
		Stream:   false,
	}
	if opts.set() {
		body.Options = &chatOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
			TopP:        opts.TopP,
			Stop:        opts.Stop,
		}
	}

	start := time.Now()
	status, respBody, err := c.post(ctx, c.url("/api/chat"), body)
	if err != nil {
		return "", err
	}

	// Some local servers only expose the OpenAI-compatible surface.
	if status == http.StatusNotFound {
		c.logger.Debug("native chat route missing, trying openai-compatible path")
		status, respBody, err = c.post(ctx, c.url("/v1/chat/completions"), openAIRequest{
			Model:       c.endpoint.Model,
			Messages:    history,
			Stream:      false,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
			TopP:        opts.TopP,
			Stop:        opts.Stop,
		})
		if err != nil {
			return "", err
		}
	}

	if status != http.StatusOK {
		return "", malformed(c.endpoint.BaseURL, fmt.Errorf("status %d: %s", status, snippet(respBody)))
	}

	text, err := extractReply(respBody)
	if err != nil {
		return "", malformed(c.endpoint.BaseURL, err)
	}

	c.logger.Debug("completion finished",
		"elapsed", time.Since(start),
		"history_len", len(history),
		"reply_chars", len(text),
	)
	return text, nil
}

// post sends a JSON body and returns the status and response bytes.
func (c *Client) post(ctx context.Context, url string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, malformed(c.endpoint.BaseURL, fmt.Errorf("encoding request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, nil, malformed(c.endpoint.BaseURL, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, classify(c.endpoint.BaseURL, ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, classify(c.endpoint.BaseURL, ctx, err)
	}
	return resp.StatusCode, respBody, nil
}

// extractReply pulls the reply text out of any of the known response
// shapes. Unknown shapes are an error, not a guess.
func extractReply(body []byte) (string, error) {
	var shape struct {
		// Ollama native
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
		// bare content
		Content string `json:"content"`
		// OpenAI-compatible
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &shape); err != nil {
		return "", fmt.Errorf("decoding reply: %w", err)
	}

	switch {
	case shape.Message != nil && shape.Message.Content != "":
		return shape.Message.Content, nil
	case len(shape.Choices) > 0 && shape.Choices[0].Message.Content != "":
		return shape.Choices[0].Message.Content, nil
	case shape.Content != "":
		return shape.Content, nil
	}
	return "", fmt.Errorf("no reply content in response: %s", snippet(body))
}

// Ping checks endpoint reachability with a cheap GET. Used by the
// connectivity poll; failures carry the usual kinds.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/version"), nil)
	if err != nil {
		return malformed(c.endpoint.BaseURL, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return classify(c.endpoint.BaseURL, ctx, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}

// snippet truncates a response body for error messages.
func snippet(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
