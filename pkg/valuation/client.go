// Package valuation is a client for the property valuation service's
// POST /predict endpoint.
package valuation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/valuation-console/internal/property"
	"github.com/sells-group/valuation-console/internal/resilience"
)

const (
	// DefaultEndpoint is where the service listens when run locally.
	DefaultEndpoint = "http://127.0.0.1:10000/predict"

	maxResponseBytes = 1 << 20
)

// ErrServiceUnavailable is in the chain of every error Predict returns. The
// console does not distinguish failure causes beyond this.
var ErrServiceUnavailable = eris.New("valuation service unreachable")

// Result is the service's estimate for one property.
type Result struct {
	PredictedPrice float64 `json:"predicted_price"`
	Tier           string  `json:"tier"`
	ClusterID      int     `json:"cluster_id"`
}

// wireResult uses pointers so a missing field can be told apart from zero.
type wireResult struct {
	PredictedPrice *float64 `json:"predicted_price"`
	Tier           *string  `json:"tier"`
	ClusterID      *int     `json:"cluster_id"`
}

// Client requests valuations.
type Client interface {
	Predict(ctx context.Context, desc property.Description) (*Result, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetry sets the retry policy. The default makes a single attempt.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithCircuitBreaker routes calls through cb.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *httpClient) {
		c.breaker = cb
	}
}

type httpClient struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
}

// NewClient creates a client posting to endpoint.
func NewClient(endpoint string, opts ...Option) Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &httpClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Inf, 1),
		retry:    resilience.NoRetry(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("valuation")
	}
	return c
}

// Predict sends desc to the service and returns its estimate.
func (c *httpClient) Predict(ctx context.Context, desc property.Description) (*Result, error) {
	body, err := json.Marshal(desc)
	if err != nil {
		return nil, eris.Wrap(ErrServiceUnavailable, "valuation: marshal request")
	}

	call := func(ctx context.Context) (*Result, error) {
		return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*Result, error) {
			return c.post(ctx, body)
		})
	}

	var res *Result
	if c.breaker != nil {
		res, err = resilience.ExecuteVal(ctx, c.breaker, call)
	} else {
		res, err = call(ctx)
	}
	if err != nil {
		if !errors.Is(err, ErrServiceUnavailable) {
			err = eris.Wrap(ErrServiceUnavailable, err.Error())
		}
		return nil, err
	}
	return res, nil
}

func (c *httpClient) post(ctx context.Context, body []byte) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(ErrServiceUnavailable, "valuation: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(ErrServiceUnavailable, "valuation: create request: %v", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		wrapped := eris.Wrapf(ErrServiceUnavailable, "valuation: send request: %v", err)
		if resilience.IsTransient(err) {
			return nil, resilience.NewTransientError(wrapped, 0)
		}
		return nil, wrapped
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resilience.NewTransientError(
			eris.Wrapf(ErrServiceUnavailable, "valuation: read response: %v", err), 0)
	}

	zap.L().Debug("valuation: response",
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := eris.Wrapf(ErrServiceUnavailable, "valuation: unexpected status %d: %s", resp.StatusCode, truncate(respBody, 200))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	return decodeResult(respBody)
}

func decodeResult(body []byte) (*Result, error) {
	var w wireResult
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, eris.Wrapf(ErrServiceUnavailable, "valuation: unmarshal response: %v", err)
	}
	if w.PredictedPrice == nil || w.Tier == nil || w.ClusterID == nil {
		return nil, eris.Wrap(ErrServiceUnavailable, "valuation: malformed response: missing predicted_price, tier or cluster_id")
	}
	return &Result{
		PredictedPrice: *w.PredictedPrice,
		Tier:           *w.Tier,
		ClusterID:      *w.ClusterID,
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
