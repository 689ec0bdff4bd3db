package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Config holds everything the client needs to reach the upstream API. The
// key ring is part of the configuration object rather than process state, so
// two clients never share a rotation position.
type Config struct {
	BaseURL string        `yaml:"base_url"`
	APIKeys []string      `yaml:"api_keys"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`

	// Advisory client-side request rate. Zero disables the check. Exceeding
	// the rate is logged, never enforced; the upstream quota is authoritative.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// Client is a thin HTTP client for the generateContent family of endpoints.
type Client struct {
	cfg     Config
	client  *http.Client
	keys    *Keyring
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a client. A nil logger is replaced with a no-op logger.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		keys:    NewKeyring(cfg.APIKeys),
		limiter: limiter,
		logger:  logger,
	}
}

// Wire types for the generateContent request/response shapes.
type generateRequest struct {
	Contents         []contentPayload  `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type contentPayload struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text,omitempty"`
}

type generationConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`
	TopP            float32 `json:"topP,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type candidate struct {
	Content      *contentPayload `json:"content"`
	FinishReason string          `json:"finishReason,omitempty"`
	Index        int             `json:"index"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GenerateOptions tune one request. The zero value uses upstream defaults.
type GenerateOptions struct {
	Model           string
	Temperature     float32
	TopP            float32
	MaxOutputTokens int
}

// GenerateText posts a prompt to :generateContent and returns the text of
// the first candidate. A well-formed document without the expected nested
// fields fails with an ErrResponseShape-coded error; callers treat that case
// as an empty result.
func (c *Client) GenerateText(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	resp, err := c.post(ctx, c.endpoint(opts.Model, "generateContent"), prompt, opts)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", c.upstreamError(resp)
	}

	var doc generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", &Error{
			Code:       ErrParseError,
			Message:    fmt.Sprintf("decode generateContent response: %v", err),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
		}
	}
	return extractFirstText(doc)
}

// StreamText posts a prompt to :streamGenerateContent and feeds the chunked
// body through a StreamDecoder. onDelta may be nil; the final accumulated
// text is returned either way.
func (c *Client) StreamText(ctx context.Context, prompt string, opts GenerateOptions, onDelta func(string)) (string, error) {
	resp, err := c.post(ctx, c.endpoint(opts.Model, "streamGenerateContent"), prompt, opts)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", c.upstreamError(resp)
	}

	return NewStreamDecoder(onDelta).Decode(resp.Body)
}

func (c *Client) endpoint(model, method string) string {
	if model == "" {
		model = c.cfg.Model
	}
	return fmt.Sprintf("%s/v1beta/models/%s:%s", strings.TrimRight(c.cfg.BaseURL, "/"), model, method)
}

func (c *Client) post(ctx context.Context, endpoint, prompt string, opts GenerateOptions) (*http.Response, error) {
	if c.limiter != nil && !c.limiter.Allow() {
		c.logger.Warn("advisory request rate exceeded",
			zap.Float64("requests_per_second", c.cfg.RequestsPerSecond))
	}

	body := generateRequest{
		Contents: []contentPayload{{
			Role:  "user",
			Parts: []part{{Text: prompt}},
		}},
	}
	if opts.Temperature > 0 || opts.TopP > 0 || opts.MaxOutputTokens > 0 {
		body.GenerationConfig = &generationConfig{
			Temperature:     opts.Temperature,
			TopP:            opts.TopP,
			MaxOutputTokens: opts.MaxOutputTokens,
		}
	}

	payload, _ := json.Marshal(body)
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	httpReq.Header.Set("Content-Type", "application/json")
	if key := c.keys.Next(); key != "" {
		httpReq.Header.Set("x-goog-api-key", key)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &Error{
			Code:       ErrUpstreamError,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Retryable:  true,
		}
	}
	return resp, nil
}

// upstreamError drains the body and classifies a non-2xx status. The raw
// body travels in Detail so operators can see exactly what the API said.
func (c *Client) upstreamError(resp *http.Response) *Error {
	data, _ := io.ReadAll(resp.Body)
	msg := string(data)

	var parsed errorResponse
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error.Message != "" {
		msg = fmt.Sprintf("%s (status: %s)", parsed.Error.Message, parsed.Error.Status)
	}

	return mapStatus(resp.StatusCode, msg, string(data))
}

func mapStatus(status int, msg, detail string) *Error {
	switch status {
	case http.StatusUnauthorized:
		return &Error{Code: ErrUnauthorized, Message: msg, HTTPStatus: status, Detail: detail}
	case http.StatusForbidden:
		return &Error{Code: ErrForbidden, Message: msg, HTTPStatus: status, Detail: detail}
	case http.StatusTooManyRequests:
		return &Error{Code: ErrRateLimited, Message: msg, HTTPStatus: status, Retryable: true, Detail: detail}
	case http.StatusBadRequest:
		if strings.Contains(msg, "quota") || strings.Contains(msg, "limit") {
			return &Error{Code: ErrQuotaExceeded, Message: msg, HTTPStatus: status, Detail: detail}
		}
		return &Error{Code: ErrInvalidRequest, Message: msg, HTTPStatus: status, Detail: detail}
	default:
		return &Error{Code: ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: status >= 500, Detail: detail}
	}
}

// extractFirstText pulls candidates[0].content.parts[].text out of a decoded
// document, concatenating multiple parts in order.
func extractFirstText(doc generateResponse) (string, error) {
	if len(doc.Candidates) == 0 || doc.Candidates[0].Content == nil {
		return "", &Error{
			Code:    ErrResponseShape,
			Message: "response has no candidates with content",
		}
	}

	var b strings.Builder
	for _, p := range doc.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	if b.Len() == 0 {
		return "", &Error{
			Code:    ErrResponseShape,
			Message: "candidate content has no text parts",
		}
	}
	return b.String(), nil
}
