package geocode

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/routelab/routeplan-cli/internal/model"
	"github.com/routelab/routeplan-cli/internal/resilience"
)

// Client resolves addresses through the configured provider, mediated by the
// persistent cache. Provider calls are serialized by the rate limiter and
// retried per the shared policy; cache hits return immediately.
type Client struct {
	provider Provider
	cache    *Cache
	limiter  *rate.Limiter
	retry    resilience.RetryConfig
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithMinInterval sets the minimum spacing between provider requests.
func WithMinInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) ClientOption {
	return func(c *Client) { c.retry = cfg }
}

// NewClient creates a cache-backed geocoding client.
func NewClient(provider Provider, cache *Cache, opts ...ClientOption) *Client {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("geocode", "resolve")

	c := &Client{
		provider: provider,
		cache:    cache,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		retry:    retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve geocodes one address: normalize, probe the cache, then ask the
// provider under rate pacing and bounded retries. The returned error carries
// a pipeline error kind; the caller attaches the offending stop.
func (c *Client) Resolve(ctx context.Context, address string) (model.Coordinate, error) {
	normalized := Normalize(address)

	if coord, ok := c.cache.Lookup(normalized); ok {
		zap.L().Debug("geocode: cache hit", zap.String("address", normalized))
		return coord, nil
	}

	coord, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (model.Coordinate, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return model.Coordinate{}, err
		}
		return c.provider.Geocode(ctx, normalized)
	})
	if err != nil {
		return model.Coordinate{}, classify(err)
	}

	c.cache.Insert(normalized, coord, c.provider.Name())
	return coord, nil
}

// classify maps provider failures to typed pipeline errors.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return model.NewError(model.KindGeocodeNotFound, "", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case resilience.StatusOf(err) == http.StatusTooManyRequests:
		return model.NewError(model.KindGeocodeRateLimited, "", err)
	default:
		return model.NewError(model.KindGeocodeUnavailable, "", err)
	}
}
