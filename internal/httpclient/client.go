// Package httpclient is the shared outbound HTTP client for source, target and
// mapping services. Every call goes through a rate limiter and a circuit breaker,
// and non-2xx answers are turned into categorized errors.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/tphakala/syncbridge/internal/conf"
	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/logger"
	"github.com/tphakala/syncbridge/internal/privacy"
)

const (
	// DefaultTimeout is the per-call timeout when none is configured.
	DefaultTimeout = 30 * time.Second

	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 90 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
	defaultDialTimeout         = 30 * time.Second
	defaultDialKeepAlive       = 30 * time.Second
	defaultRetryWait           = 200 * time.Millisecond
	defaultFailureThreshold    = 5

	defaultUserAgent = "syncbridge"
)

// BreakerConfig tunes the circuit breaker of one client.
type BreakerConfig struct {
	MaxRequests      uint32 // requests allowed while half-open
	Interval         time.Duration
	Timeout          time.Duration // how long the breaker stays open
	FailureThreshold uint32        // consecutive failures that open the breaker
}

// Config describes one remote service.
type Config struct {
	Name       string
	BaseURL    string
	Token      string
	Timeout    time.Duration
	RateLimit  float64 // requests per second, 0 disables limiting
	Burst      int
	RetryCount int
	RetryWait  time.Duration
	Breaker    BreakerConfig
}

// ConfigFrom builds a client configuration from the shared HTTP settings.
func ConfigFrom(name, baseURL, token string, s conf.HTTPSettings) Config {
	return Config{
		Name:       name,
		BaseURL:    baseURL,
		Token:      token,
		Timeout:    s.Timeout,
		RateLimit:  s.RateLimit,
		Burst:      s.Burst,
		RetryCount: s.RetryCount,
		Breaker: BreakerConfig{
			MaxRequests:      s.Breaker.MaxRequests,
			Interval:         s.Breaker.Interval,
			Timeout:          s.Breaker.Timeout,
			FailureThreshold: s.Breaker.FailureThreshold,
		},
	}
}

// Observer is notified after every call. status is 0 when no response arrived.
type Observer interface {
	ObserveCall(client, method string, status int, duration time.Duration, err error)
}

// Option customizes a Client.
type Option func(*Client)

// WithObserver registers a call observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithTransport replaces the HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.rest.SetTransport(rt) }
}

// Request describes one call relative to the base URL.
type Request struct {
	Method     string
	Path       string
	PathParams map[string]string
	Query      map[string]string
	Body       any
	Result     any // decoded from 2xx JSON answers
}

// Response is the raw answer of a call.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client is a rate limited, circuit broken JSON client for one service.
type Client struct {
	name     string
	rest     *resty.Client
	breaker  *gobreaker.CircuitBreaker
	limiter  *rate.Limiter
	log      logger.Logger
	observer Observer
}

// New creates a client for cfg.
func New(cfg Config, log logger.Logger, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = defaultRetryWait
	}
	if log == nil {
		log = logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
	}

	rest := resty.New().
		SetTransport(newTransport()).
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", defaultUserAgent).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(10 * cfg.RetryWait).
		AddRetryCondition(retryIdempotent)
	if cfg.Token != "" {
		rest.SetAuthToken(cfg.Token)
	}

	c := &Client{
		name: cfg.Name,
		rest: rest,
		log:  log.Module("httpclient").With(logger.String("client", cfg.Name)),
	}

	threshold := cfg.Breaker.FailureThreshold
	if threshold == 0 {
		threshold = defaultFailureThreshold
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			c.log.Warn("circuit breaker state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})

	if cfg.RateLimit > 0 {
		burst := max(cfg.Burst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newTransport returns a pooled transport shared by all requests of one client.
func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: defaultDialKeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		TLSHandshakeTimeout: defaultTLSHandshakeTimeout,
	}
}

// retryIdempotent retries GET requests that failed in transport or with a 5xx.
func retryIdempotent(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
		return false
	}
	return err != nil || r.StatusCode() >= http.StatusInternalServerError
}

// Name returns the service name the client was created for.
func (c *Client) Name() string {
	return c.name
}

// BreakerState returns the current circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Do performs req. A response is returned whenever the server answered, also
// together with the error of a non-2xx status, so callers can decode error bodies.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := c.do(ctx, req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if c.observer != nil {
		c.observer.ObserveCall(c.name, req.Method, status, time.Since(start), err)
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.New(fmt.Errorf("rate limiter wait: %w", err)).
				Component("httpclient").
				Category(errors.CategoryCancellation).
				Context("client", c.name).
				Build()
		}
	}

	out, err := c.breaker.Execute(func() (any, error) {
		r := c.rest.R().SetContext(ctx)
		if req.PathParams != nil {
			r.SetPathParams(req.PathParams)
		}
		if req.Query != nil {
			r.SetQueryParams(req.Query)
		}
		if req.Body != nil {
			r.SetBody(req.Body)
		}
		if req.Result != nil {
			r.SetResult(req.Result).ExpectContentType("application/json")
		}

		resp, err := r.Execute(req.Method, req.Path)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			// Server failures count against the breaker; client errors do not.
			return resp, &serverError{status: resp.StatusCode()}
		}
		return resp, nil
	})

	var resp *resty.Response
	if r, ok := out.(*resty.Response); ok {
		resp = r
	}
	var response *Response
	if resp != nil {
		response = &Response{StatusCode: resp.StatusCode(), Body: resp.Body()}
	}

	if err != nil {
		return response, c.callError(req, response, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return response, c.statusError(req, response)
	}
	return response, nil
}

type serverError struct{ status int }

func (e *serverError) Error() string { return fmt.Sprintf("server responded %d", e.status) }

func (c *Client) callError(req Request, resp *Response, err error) error {
	category := errors.CategoryNetwork
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.log.Debug("call rejected by circuit breaker", logger.String("path", req.Path))
	case errors.Is(err, context.DeadlineExceeded):
		category = errors.CategoryTimeout
	case errors.Is(err, context.Canceled):
		category = errors.CategoryCancellation
	}
	var se *serverError
	if errors.As(err, &se) {
		category = errors.CategoryHTTP
	}

	b := errors.New(fmt.Errorf("%s %s %s: %w", c.name, req.Method, req.Path, privacy.WrapError(err))).
		Component("httpclient").
		Category(category).
		Context("client", c.name).
		Context("method", req.Method)
	if resp != nil {
		b = b.Context("status", resp.StatusCode)
	}
	return b.Build()
}

func (c *Client) statusError(req Request, resp *Response) error {
	category := errors.CategoryHTTP
	switch resp.StatusCode {
	case http.StatusNotFound:
		category = errors.CategoryNotFound
	case http.StatusConflict:
		category = errors.CategoryConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		category = errors.CategoryValidation
	}
	return errors.Newf("%s %s %s: status %d", c.name, req.Method, req.Path, resp.StatusCode).
		Component("httpclient").
		Category(category).
		Context("client", c.name).
		Context("method", req.Method).
		Context("status", resp.StatusCode).
		Build()
}
