// Package client is a Go SDK for the extra-points portal REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultBaseURL is the same-origin API prefix
	DefaultBaseURL = "/api"
	// DefaultOrigin is prepended when the base URL is relative
	DefaultOrigin = "http://localhost:5001"
	// DefaultTimeout bounds every request unless overridden
	DefaultTimeout = 10 * time.Second
)

// Client talks to the portal backend. It supports bearer tokens and
// cookie sessions at the same time.
type Client struct {
	baseURL    string
	origin     string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger

	mu    sync.RWMutex
	token string
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the default per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithToken sets the bearer token sent with every request
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithOrigin sets the origin used to resolve a relative base URL
func WithOrigin(origin string) Option {
	return func(c *Client) {
		c.origin = strings.TrimRight(origin, "/")
	}
}

// WithSessionCookies keeps backend session cookies between requests
func WithSessionCookies() Option {
	return func(c *Client) {
		if c.httpClient.Jar != nil {
			return
		}
		c.httpClient.Jar = newSessionJar()
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a new portal client. baseURL may be an absolute
// backend URL or a path such as "/api" resolved against the origin.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		origin:     DefaultOrigin,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SetToken replaces the bearer token. An empty token disables the header.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// HasSessionCookies reports whether cookie sessions are enabled
func (c *Client) HasSessionCookies() bool {
	return c.httpClient.Jar != nil
}

// ClearCookies drops all stored session cookies
func (c *Client) ClearCookies() {
	if jar, ok := c.httpClient.Jar.(*sessionJar); ok {
		jar.reset()
	}
}

// sessionJar is a cookie jar that can be emptied on logout
type sessionJar struct {
	mu  sync.Mutex
	jar *cookiejar.Jar
}

func newSessionJar() *sessionJar {
	jar, _ := cookiejar.New(nil)
	return &sessionJar{jar: jar}
}

func (j *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar.SetCookies(u, cookies)
}

func (j *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

func (j *sessionJar) reset() {
	jar, _ := cookiejar.New(nil)
	j.mu.Lock()
	j.jar = jar
	j.mu.Unlock()
}

// Origin returns the origin relative URLs are resolved against
func (c *Client) Origin() string {
	if isAbsolute(c.baseURL) {
		if u, err := url.Parse(c.baseURL); err == nil {
			return u.Scheme + "://" + u.Host
		}
	}
	return c.origin
}

// URL builds the full URL of an endpoint
func (c *Client) URL(endpoint string) string {
	if isAbsolute(endpoint) {
		return endpoint
	}
	if endpoint != "" && !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	if isAbsolute(c.baseURL) {
		return c.baseURL + endpoint
	}
	return c.origin + c.baseURL + endpoint
}

func isAbsolute(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// CallOption overrides request settings for a single call
type CallOption func(*callOptions)

type callOptions struct {
	token   *string
	timeout time.Duration
}

// WithCallToken sends token instead of the client's token. An empty token
// sends no Authorization header.
func WithCallToken(token string) CallOption {
	return func(o *callOptions) {
		o.token = &token
	}
}

// WithCallTimeout overrides the timeout for one call
func WithCallTimeout(timeout time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = timeout
	}
}

// Request performs an API call and returns the raw JSON response.
// body may be nil, a *Multipart, a json.RawMessage, or any value that
// encodes to JSON. An empty success body is returned as "{}".
func (c *Client) Request(ctx context.Context, method, endpoint string, body interface{}, opts ...CallOption) (json.RawMessage, error) {
	o := callOptions{timeout: c.timeout}
	for _, opt := range opts {
		opt(&o)
	}

	reader, contentType, err := encodeBody(body)
	if err != nil {
		return nil, &RequestError{Kind: KindEncode, Method: method, Endpoint: endpoint, Message: err.Error(), Cause: err}
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(endpoint), reader)
	if err != nil {
		return nil, &RequestError{Kind: KindNetwork, Method: method, Endpoint: endpoint, Message: "failed to create request", Cause: err}
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	token := c.Token()
	if o.token != nil {
		token = *o.token
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		rerr := transportError(ctx, method, endpoint, err)
		c.logger.Debug("request failed",
			"method", method,
			"endpoint", endpoint,
			"kind", rerr.Kind.String(),
			"error", err,
		)
		return nil, rerr
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, method, endpoint, err)
	}

	c.logger.Debug("request completed",
		"method", method,
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= 400 {
		return nil, &RequestError{
			Kind:       KindHTTP,
			Method:     method,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
	}

	respBody = bytes.TrimSpace(respBody)
	if len(respBody) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(respBody) {
		return nil, &RequestError{
			Kind:       KindDecode,
			Method:     method,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    "response is not valid JSON",
		}
	}
	return json.RawMessage(respBody), nil
}

// RequestInto performs an API call and decodes the response into out
func (c *Client) RequestInto(ctx context.Context, method, endpoint string, body, out interface{}, opts ...CallOption) error {
	raw, err := c.Request(ctx, method, endpoint, body, opts...)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &RequestError{Kind: KindDecode, Method: method, Endpoint: endpoint, Message: "failed to decode response", Cause: err}
	}
	return nil
}

// Health checks whether the backend answers
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Request(ctx, http.MethodGet, "/health", nil)
	return err
}

func encodeBody(body interface{}) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case *Multipart:
		buf, contentType, err := b.encode()
		if err != nil {
			return nil, "", err
		}
		return buf, contentType, nil
	case json.RawMessage:
		return bytes.NewReader(b), "application/json", nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func transportError(ctx context.Context, method, endpoint string, err error) *RequestError {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &RequestError{Kind: KindTimeout, Method: method, Endpoint: endpoint, Message: "request timed out", Cause: err}
	}
	return &RequestError{Kind: KindNetwork, Method: method, Endpoint: endpoint, Message: "network error", Cause: err}
}

// errorMessage extracts the server message from a failed response body.
// Backends use message, error (string or {code,message}) or msg.
func errorMessage(body []byte) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return GenericMessage
	}
	for _, key := range []string{"message", "error", "msg"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return GenericMessage
}

// maskToken returns the first characters of a token for logging
func maskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "..."
}
