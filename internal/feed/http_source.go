package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"solana-wallet-analytics/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout    = 5 * time.Minute
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
	DefaultMaxDelay   = 30 * time.Second
)

var errTransient = errors.New("transient")

// HTTPSource queries a feed endpoint that executes trade-window queries.
type HTTPSource struct {
	endpoint   string
	apiKey     string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
}

// Compile-time interface check.
var _ Source = (*HTTPSource)(nil)

// Option configures HTTPSource.
type Option func(*HTTPSource)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *HTTPSource) {
		s.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for transient failures.
func WithMaxRetries(n int) Option {
	return func(s *HTTPSource) {
		s.maxRetries = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(s *HTTPSource) {
		s.retryDelay = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *HTTPSource) {
		s.client = c
	}
}

// NewHTTPSource creates a source authenticated with apiKey.
func NewHTTPSource(endpoint, apiKey string, opts ...Option) *HTTPSource {
	s := &HTTPSource{
		endpoint:   endpoint,
		apiKey:     apiKey,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchTradeWindow implements Source.
func (s *HTTPSource) FetchTradeWindow(ctx context.Context, q Query) (*Page, error) {
	if !q.Kind.IsValid() {
		return nil, fmt.Errorf("unknown feed kind %q", q.Kind)
	}
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	delay := s.retryDelay
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
		}

		page, err := s.do(ctx, body)
		if err == nil {
			observability.RecordFeedRequest(string(q.Kind), observability.StatusOK, len(page.Records))
			return page, nil
		}
		lastErr = err
		if !errors.Is(err, errTransient) {
			break
		}
	}

	observability.RecordFeedRequest(string(q.Kind), observability.StatusError, 0)
	if errors.Is(lastErr, errTransient) {
		return nil, fmt.Errorf("%w: %v", ErrFeedExecution, lastErr)
	}
	return nil, lastErr
}

func (s *HTTPSource) do(ctx context.Context, body []byte) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: http request: %v", errTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", errTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d", ErrQuotaExceeded, resp.StatusCode)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d: %s", errTransient, resp.StatusCode, string(respBody))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d: %s", ErrFeedExecution, resp.StatusCode, string(respBody))
	}

	var page Page
	if err := json.Unmarshal(respBody, &page); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrValidation, err)
	}
	for i := range page.Records {
		if err := Validate(&page.Records[i]); err != nil {
			return nil, err
		}
	}
	return &page, nil
}
