// Package resource is the authenticated HTTP client for the upstream
// domain API. Every request is scoped by the bearer token and active
// company carried in the request context; failures are converted into
// ErrorEnvelopes with the backend's own message extracted canonically.
package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cargolog/console/internal/config"
	"github.com/cargolog/console/internal/observability"
	"github.com/cargolog/console/model"
)

const maxResponseBytes = 10 << 20

// Observer receives backend call telemetry. Implemented by the metrics
// registry; a nil observer disables recording.
type Observer interface {
	RecordBackendRequest(method, route string, status int, duration time.Duration)
	RecordBackendRetry(route string)
	SetBackendCircuitBreakerState(state float64)
}

// Client issues requests against the configured backend base URL.
type Client struct {
	baseURL  string
	http     *http.Client
	breaker  *CircuitBreaker
	retry    config.RetryConfig
	timeout  time.Duration
	logger   *zap.Logger
	observer Observer
}

// Option customizes a Client.
type Option func(*Client)

// WithObserver attaches a telemetry observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client for the given backend configuration.
func New(cfg config.BackendConfig, logger *zap.Logger, opts ...Option) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:80"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxConnsPerHost:     50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		breaker: NewCircuitBreaker(
			cfg.CircuitBreaker.FailureThreshold,
			cfg.CircuitBreaker.SuccessThreshold,
			cfg.CircuitBreaker.Timeout,
		),
		retry:   cfg.Retry,
		timeout: timeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.observer != nil {
		c.breaker.OnStateChange(func(s BreakerState) {
			c.observer.SetBackendCircuitBreakerState(float64(s))
		})
	}
	return c
}

// Get fetches a single record.
func (c *Client) Get(ctx context.Context, rctx *model.RequestContext, route string) (model.Record, error) {
	data, err := c.execute(ctx, rctx, http.MethodGet, route, nil, nil, "")
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

// List fetches a collection, encoding the filter map as query parameters.
func (c *Client) List(ctx context.Context, rctx *model.RequestContext, route string, filter map[string]string) ([]model.Record, error) {
	target := route
	if len(filter) > 0 {
		params := url.Values{}
		for k, v := range filter {
			params.Set(k, v)
		}
		target += "?" + params.Encode()
	}

	data, err := c.execute(ctx, rctx, http.MethodGet, target, nil, nil, "")
	if err != nil {
		return nil, err
	}

	var rows []model.Record
	if len(data) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, model.NewBackendError("Resposta inesperada do servidor.")
	}
	return rows, nil
}

// Create submits a new record (POST route).
func (c *Client) Create(ctx context.Context, rctx *model.RequestContext, route string, body any) (model.Record, error) {
	return c.writeJSON(ctx, rctx, http.MethodPost, route, body)
}

// Update submits a partial update (PATCH route/:id).
func (c *Client) Update(ctx context.Context, rctx *model.RequestContext, route string, body any) (model.Record, error) {
	return c.writeJSON(ctx, rctx, http.MethodPatch, route, body)
}

// Replace submits a full update (PUT route/:id).
func (c *Client) Replace(ctx context.Context, rctx *model.RequestContext, route string, body any) (model.Record, error) {
	return c.writeJSON(ctx, rctx, http.MethodPut, route, body)
}

// Delete removes a record (DELETE route/:id).
func (c *Client) Delete(ctx context.Context, rctx *model.RequestContext, route string) error {
	_, err := c.execute(ctx, rctx, http.MethodDelete, route, nil, nil, "")
	return err
}

// Upload posts a prepared multipart payload as one unit.
func (c *Client) Upload(ctx context.Context, rctx *model.RequestContext, route string, contentType string, payload io.Reader) (model.Record, error) {
	body, err := io.ReadAll(payload)
	if err != nil {
		return nil, fmt.Errorf("resource: reading upload payload: %w", err)
	}
	data, err := c.execute(ctx, rctx, http.MethodPost, route, body, nil, contentType)
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

func (c *Client) writeJSON(ctx context.Context, rctx *model.RequestContext, method, route string, body any) (model.Record, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("resource: marshal body: %w", err)
		}
	}
	data, err := c.execute(ctx, rctx, method, route, payload, nil, "application/json")
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

// execute runs a request with retry for idempotent methods. The final
// attempt's outcome is returned.
func (c *Client) execute(ctx context.Context, rctx *model.RequestContext, method, route string, body []byte, _ url.Values, contentType string) ([]byte, error) {
	maxAttempts := 1
	if isIdempotent(method) && c.retry.MaxAttempts > 1 {
		maxAttempts = c.retry.MaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if c.observer != nil {
				c.observer.RecordBackendRetry(route)
			}
			select {
			case <-ctx.Done():
				return nil, model.NewBackendTimeoutError()
			case <-time.After(c.backoff(attempt)):
			}
		}

		data, err := c.executeOnce(ctx, rctx, method, route, body, contentType)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) executeOnce(ctx context.Context, rctx *model.RequestContext, method, route string, body []byte, contentType string) ([]byte, error) {
	if !c.breaker.Allow() {
		return nil, model.NewBackendUnavailableError()
	}

	// Requests without a caller deadline get the configured default so a
	// stuck backend can never pin the loading indicator forever.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+route, reader)
	if err != nil {
		return nil, fmt.Errorf("resource: build request: %w", err)
	}
	c.setHeaders(req, rctx, contentType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		if c.observer != nil {
			c.observer.RecordBackendRequest(method, route, 0, time.Since(start))
		}
		if ctx.Err() != nil {
			return nil, model.NewBackendTimeoutError()
		}
		if isConnectionError(err) {
			return nil, model.NewBackendUnavailableError()
		}
		return nil, fmt.Errorf("resource: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("resource: read response: %w", err)
	}

	if c.observer != nil {
		c.observer.RecordBackendRequest(method, route, resp.StatusCode, time.Since(start))
	}

	switch {
	case resp.StatusCode >= 500:
		c.breaker.RecordFailure()
	case resp.StatusCode < 400:
		// 4xx are caller mistakes, not infrastructure failures; they
		// neither trip nor heal the breaker.
		c.breaker.RecordSuccess()
	}

	if resp.StatusCode >= 400 {
		return nil, envelopeForStatus(resp.StatusCode, data, route, c.logger)
	}
	return data, nil
}

// setHeaders attaches the authentication and tenancy headers. Absent
// values omit the header entirely rather than serializing a placeholder.
func (c *Client) setHeaders(req *http.Request, rctx *model.RequestContext, contentType string) {
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if rctx != nil {
		if rctx.Token != "" {
			req.Header.Set("Authorization", "Bearer "+sanitizeHeader(rctx.Token))
		}
		if rctx.CompanyID != "" {
			req.Header.Set("x-company", sanitizeHeader(rctx.CompanyID))
		}
		if rctx.CorrelationID != "" {
			req.Header.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
		}
	}
	observability.InjectTraceHeaders(req.Context(), req.Header)
}

// sanitizeHeader strips newlines to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

func (c *Client) backoff(attempt int) time.Duration {
	initial := c.retry.BackoffInitial
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	max := c.retry.BackoffMax
	if max <= 0 {
		max = 2 * time.Second
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > max {
			return max
		}
	}
	return delay
}

func decodeRecord(data []byte) (model.Record, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rec model.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, model.NewBackendError("Resposta inesperada do servidor.")
	}
	return rec, nil
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodHead:
		return true
	}
	return false
}

// isRetryable reports whether a failed attempt may be repeated. Envelope
// errors below 500 are final; infrastructure errors are worth a retry.
func isRetryable(err error) bool {
	var ee *model.ErrorEnvelope
	if errors.As(err, &ee) {
		switch ee.Code {
		case model.ErrBackendUnavailable, model.ErrBackendTimeout, model.ErrBackendError:
			return true
		}
		return false
	}
	return true
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
