// Package httpx is the outbound HTTP client shared by the catalog, search and
// aggregator adapters.
package httpx

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultMaxBody   = 8 << 20
)

var (
	// ErrStatus matches every StatusError.
	ErrStatus = errors.New("httpx: unexpected status")

	// ErrBodyTooLarge is returned when a response exceeds Client.MaxBody.
	ErrBodyTooLarge = errors.New("httpx: body exceeds limit")
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpx: status %d from %s body=%q", e.Status, e.URL, e.Body)
}

func (e *StatusError) Is(target error) bool { return target == ErrStatus }

type Client struct {
	HTTPClient *http.Client
	CB         *gobreaker.CircuitBreaker
	Log        *zap.Logger
	Header     http.Header
	MaxBody    int64
}

// Option configures the Client.
type Option func(*Client)

func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(c *Client) { c.CB = cb }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.Log = log }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.Header.Set(key, value) }
}

func WithUserAgent(ua string) Option {
	return WithHeader("User-Agent", ua)
}

// WithMaxBody caps how many response bytes are accepted. Larger bodies fail
// with ErrBodyTooLarge.
func WithMaxBody(n int64) Option {
	return func(c *Client) { c.MaxBody = n }
}

func New(opts ...Option) *Client {
	c := &Client{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Log:        zap.NewNop(),
		Header:     http.Header{},
		MaxBody:    defaultMaxBody,
	}
	c.Header.Set("User-Agent", DefaultUserAgent)
	for _, o := range opts {
		o(c)
	}
	return c
}

// BreakerConfig tunes NewBreaker.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

var DefaultBreaker = BreakerConfig{MaxRequests: 5, Interval: time.Minute, Timeout: 30 * time.Second, FailureThreshold: 5}

// NewBreaker builds a breaker that trips after cfg.FailureThreshold
// consecutive failures. Client errors (4xx) and oversized bodies count as
// successes: the upstream is alive.
func NewBreaker(name string, cfg BreakerConfig, log *zap.Logger) *gobreaker.CircuitBreaker {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreaker.FailureThreshold
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.Status < 500
			}
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrBodyTooLarge)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", zap.String("breaker", name), zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})
}

// Get fetches u and returns its decoded body. header entries override the
// client defaults.
func (c *Client) Get(ctx context.Context, u string, header http.Header) ([]byte, error) {
	if c.CB == nil {
		return c.do(ctx, u, header)
	}
	result, err := c.CB.Execute(func() (interface{}, error) {
		return c.do(ctx, u, header)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// GetJSON fetches u and decodes its body into T.
func GetJSON[T any](ctx context.Context, c *Client, u string, header http.Header) (*T, error) {
	b, err := c.Get(ctx, u, header)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("httpx: decode %s: %w body=%q", u, err, snippet(b))
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, u string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range c.Header {
		req.Header[k] = append([]string(nil), vs...)
	}
	for k, vs := range header {
		req.Header[k] = append([]string(nil), vs...)
	}
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	switch enc := strings.ToLower(resp.Header.Get("Content-Encoding")); {
	case strings.Contains(enc, "gzip"):
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case strings.Contains(enc, "br"):
		reader = brotli.NewReader(resp.Body)
	}

	b, err := io.ReadAll(io.LimitReader(reader, c.MaxBody+1))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.Log.Debug("upstream status", zap.String("url", u), zap.Int("status", resp.StatusCode))
		return nil, &StatusError{URL: u, Status: resp.StatusCode, Body: snippet(b)}
	}
	if int64(len(b)) > c.MaxBody {
		c.Log.Warn("upstream body too large", zap.String("url", u), zap.Int64("limit", c.MaxBody))
		return nil, fmt.Errorf("%w: %s over %d bytes", ErrBodyTooLarge, u, c.MaxBody)
	}
	return b, nil
}

func snippet(b []byte) string {
	return string(b[:min(len(b), 200)])
}
