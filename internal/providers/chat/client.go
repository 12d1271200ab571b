package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"courtside/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("chat: api key is required")

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-image"
	defaultTimeout = 120 * time.Second

	// Completions that embed base64 images run to a few MiB.
	defaultMaxResponseBytes = 32 << 20

	logPreviewChars = 500
)

// Options configures the OpenAI-compatible chat client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration

	// MaxResponseBytes caps the upstream body; larger answers are an error.
	MaxResponseBytes int64
}

// Client calls an OpenAI-compatible /chat/completions endpoint and hands the
// raw body back without interpreting it.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	maxBytes   int64
	logger     *infra.Logger
}

// Request is one generation call: a prompt and the images it applies to.
type Request struct {
	Prompt string
	// Images are data URLs (or plain http(s) URLs) sent as image_url parts.
	Images []string
	// Model overrides the client's default model when set.
	Model string
}

// Response is the untouched upstream answer.
type Response struct {
	StatusCode  int
	ContentType string
	Body        string
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	maxBytes := opts.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxResponseBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		maxBytes:   maxBytes,
		logger:     logger,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Complete performs one non-streaming completion carrying the prompt and the
// images as multimodal content. The body is returned whatever the HTTP status;
// only transport failures produce an error. There are no retries.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	parts := make([]contentPart, 0, len(req.Images)+1)
	parts = append(parts, contentPart{Type: "text", Text: req.Prompt})
	for _, img := range req.Images {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: img}})
	}
	return c.post(ctx, c.modelFor(req.Model), parts)
}

// Ping sends a short text-only message. It is used to check that the base
// URL, key and model are accepted by the upstream.
func (c *Client) Ping(ctx context.Context, model, text string) (*Response, error) {
	return c.post(ctx, c.modelFor(model), text)
}

func (c *Client) modelFor(override string) string {
	if m := strings.TrimSpace(override); m != "" {
		return m
	}
	return c.model
}

func (c *Client) post(ctx context.Context, model string, content any) (*Response, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	payload := completionRequest{
		Model:    model,
		Messages: []message{{Role: "user", Content: content}},
		Stream:   false,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, fmt.Errorf("chat: encode request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/chat/completions", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("chat: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat: http request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("chat: read response: %w", err)
	}
	if int64(len(raw)) > c.maxBytes {
		return nil, fmt.Errorf("chat: response from %s exceeds %d bytes", endpoint, c.maxBytes)
	}
	body := string(raw)

	c.logger.Debug().
		Str("model", model).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Str("body_preview", truncate(body, logPreviewChars)).
		Msg("chat: upstream responded")

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
