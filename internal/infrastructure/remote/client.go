// Package remote implements the remote resource collaborator over JSON HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spacehub/core/internal/domain/resource"
)

// maxResponseSize is the maximum allowed response size from the API (10MB)
const maxResponseSize = 10 * 1024 * 1024

const tracerName = "spacehub.remote"

// Config holds the HTTP collaborator settings.
type Config struct {
	BaseURL        string
	TimeoutSeconds int
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("remote: base URL is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("remote: invalid base URL: %w", err)
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 15
	}
	return nil
}

// Client implements resource.Remote against the platform's JSON API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	tracer     trace.Tracer
}

// ClientOption is a functional option for configuring the client
type ClientOption func(*Client)

// WithClientLogger sets the logger for the client
func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a remote collaborator client with the given configuration.
func NewClient(cfg *Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		logger: zap.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchList retrieves a filtered collection view.
func (c *Client) FetchList(ctx context.Context, t resource.Type, filters map[string]string) (*resource.List, error) {
	q := url.Values{}
	for name, value := range filters {
		q.Set(name, value)
	}
	endpoint := c.endpoint(t, "")
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}

	body, err := c.do(ctx, http.MethodGet, endpoint, t, nil)
	if err != nil {
		return nil, err
	}
	list, err := resource.DecodeList(body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", t, err)
	}
	return list, nil
}

// FetchOne retrieves a single resource by ID.
func (c *Client) FetchOne(ctx context.Context, t resource.Type, id string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, c.endpoint(t, id), t, nil)
}

// Create stores a new resource and returns the server's representation.
func (c *Client) Create(ctx context.Context, t resource.Type, input any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, c.endpoint(t, ""), t, input)
}

// Update patches an existing resource.
func (c *Client) Update(ctx context.Context, t resource.Type, id string, patch any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, c.endpoint(t, id), t, patch)
}

// Delete removes a resource.
func (c *Client) Delete(ctx context.Context, t resource.Type, id string) error {
	_, err := c.do(ctx, http.MethodDelete, c.endpoint(t, id), t, nil)
	return err
}

func (c *Client) endpoint(t resource.Type, id string) string {
	if id == "" {
		return c.baseURL + "/" + string(t)
	}
	return c.baseURL + "/" + string(t) + "/" + url.PathEscape(id)
}

// do performs one HTTP exchange and decodes error payloads into
// resource.RemoteError.
func (c *Client) do(ctx context.Context, method, endpoint string, t resource.Type, payload any) (json.RawMessage, error) {
	ctx, span := c.tracer.Start(ctx, method+" "+string(t),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("resource.type", string(t)),
		))
	defer span.End()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			span.SetStatus(codes.Error, "encode request")
			return nil, fmt.Errorf("%s %s: encode request: %w", method, t, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		span.SetStatus(codes.Error, "build request")
		return nil, fmt.Errorf("%s %s: %w", method, t, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, "transport")
		return nil, fmt.Errorf("%s %s: %w", method, t, err)
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		span.SetStatus(codes.Error, "read response")
		return nil, fmt.Errorf("%s %s: read response: %w", method, t, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		remoteErr := decodeError(resp.StatusCode, raw)
		span.SetStatus(codes.Error, remoteErr.Message)
		c.logger.Debug("remote call rejected",
			zap.String("method", method),
			zap.String("resource", string(t)),
			zap.Int("status", resp.StatusCode),
			zap.String("message", remoteErr.Message))
		return nil, remoteErr
	}

	if resp.StatusCode == http.StatusNoContent || len(raw) == 0 {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

// decodeError extracts the server's {message, code} payload, falling back to
// the HTTP status text when the body is not JSON.
func decodeError(statusCode int, raw []byte) *resource.RemoteError {
	var payload struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		message := payload.Message
		if message == "" {
			message = payload.Error
		}
		if message != "" {
			return resource.NewRemoteError(statusCode, payload.Code, message)
		}
	}
	return resource.NewRemoteError(statusCode, "", http.StatusText(statusCode))
}

// Ensure Client implements resource.Remote
var _ resource.Remote = (*Client)(nil)
