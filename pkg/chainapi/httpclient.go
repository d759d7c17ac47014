package chainapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/canopy-network/defisnap/pkg/utils"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	// ErrNotFound is returned for a 404 answer. Blockfrost uses it for addresses and
	// assets it has never seen, which callers treat as empty.
	ErrNotFound = errors.New("provider: not found")
	// ErrCircuitOpen is returned when every endpoint's breaker is open.
	ErrCircuitOpen = errors.New("provider: circuit open on all endpoints")
)

// StatusError is a non-2xx answer other than 404.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d from %s", e.Code, e.URL)
}

// HTTPClient is a JSON client over a list of equivalent endpoints. Each call is rate
// limited, retried with bounded exponential backoff and guarded by a per-endpoint
// circuit breaker.
type HTTPClient struct {
	endpoints []string
	client    *retryablehttp.Client
	limiter   *rate.Limiter
	timeout   time.Duration
	headers   map[string]string
	logger    *zap.Logger

	// circuit-breaker
	mu       sync.Mutex
	failures map[string]int
	opened   map[string]time.Time

	breakerThreshold int
	breakerCooldown  time.Duration
}

// Opts is the set of options for a new HTTPClient.
type Opts struct {
	Endpoints       []string
	Headers         map[string]string
	Timeout         time.Duration
	RPS             float64
	Burst           int
	MaxAttempts     int
	BackoffMin      time.Duration
	BackoffMax      time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
	Logger          *zap.Logger
}

// NewHTTPWithOpts creates a new HTTPClient with the given options.
func NewHTTPWithOpts(o Opts) *HTTPClient {
	if o.RPS <= 0 {
		o.RPS = 10
	}
	if o.Burst <= 0 {
		o.Burst = 10
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 4
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = 500 * time.Millisecond
	}
	if o.BackoffMax < o.BackoffMin {
		o.BackoffMax = o.BackoffMin
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Limit(o.RPS), o.Burst)

	rc := retryablehttp.NewClient()
	rc.RetryMax = o.MaxAttempts - 1
	rc.RetryWaitMin = o.BackoffMin
	rc.RetryWaitMax = o.BackoffMax
	rc.Logger = leveledLogger{o.Logger.Sugar()}
	// Hand exhausted 5xx/429 answers back to doJSON so the breaker sees them.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	// Every attempt, retries included, takes a limiter token.
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, _ int) {
		_ = limiter.Wait(req.Context())
	}
	if o.HTTPClient != nil {
		rc.HTTPClient = o.HTTPClient
	}

	return &HTTPClient{
		endpoints:        utils.Dedup(o.Endpoints),
		client:           rc,
		limiter:          limiter,
		timeout:          o.Timeout,
		headers:          o.Headers,
		logger:           o.Logger,
		failures:         map[string]int{},
		opened:           map[string]time.Time{},
		breakerThreshold: o.BreakerFailures,
		breakerCooldown:  o.BreakerCooldown,
	}
}

// isOpen returns true if the endpoint's breaker is OPEN.
func (c *HTTPClient) isOpen(ep string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.opened[ep]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.opened, ep)
		c.failures[ep] = 0
		return false
	}
	return true
}

// noteFailure counts a failed call and opens the endpoint's breaker at the threshold.
func (c *HTTPClient) noteFailure(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep]++
	if c.failures[ep] >= c.breakerThreshold {
		c.opened[ep] = time.Now().Add(c.breakerCooldown)
		c.logger.Warn("provider endpoint circuit opened",
			zap.String("endpoint", ep),
			zap.Duration("cooldown", c.breakerCooldown),
		)
	}
}

func (c *HTTPClient) noteSuccess(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep] = 0
}

// doJSON sends method+path to the first healthy endpoint and decodes the JSON answer
// into out. The whole call, retries included, is bounded by the client timeout.
// Transport errors and 5xx answers fail over to the next endpoint.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	if len(c.endpoints) == 0 {
		return fmt.Errorf("no endpoints configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = b
	}

	lastErr := ErrCircuitOpen
	for _, ep := range c.endpoints {
		if c.isOpen(ep) {
			continue
		}

		req, err := retryablehttp.NewRequestWithContext(ctx, method, ep+path, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return fmt.Errorf("%s %s: %w", method, path, ctx.Err())
			}
			c.noteFailure(ep)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			_ = utils.DrainAndClose(resp.Body)
			c.noteSuccess(ep)
			return ErrNotFound
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			_ = utils.DrainAndClose(resp.Body)
			lastErr = &StatusError{Code: resp.StatusCode, URL: ep + path}
			c.noteFailure(ep)
			continue
		case resp.StatusCode >= 300:
			_ = utils.DrainAndClose(resp.Body)
			return &StatusError{Code: resp.StatusCode, URL: ep + path}
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				_ = utils.DrainAndClose(resp.Body)
				return fmt.Errorf("decode %s: %w", path, err)
			}
		}
		c.noteSuccess(ep)
		return utils.DrainAndClose(resp.Body)
	}

	return lastErr
}

// leveledLogger routes retryablehttp's attempt logging into zap.
type leveledLogger struct {
	l *zap.SugaredLogger
}

func (z leveledLogger) Error(msg string, kv ...interface{}) { z.l.Errorw(msg, kv...) }
func (z leveledLogger) Info(msg string, kv ...interface{})  { z.l.Debugw(msg, kv...) }
func (z leveledLogger) Debug(msg string, kv ...interface{}) { z.l.Debugw(msg, kv...) }
func (z leveledLogger) Warn(msg string, kv ...interface{})  { z.l.Warnw(msg, kv...) }
