package search

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jarvas-assistant/jarvas/cache"
	errorskg "github.com/jarvas-assistant/jarvas/errors"
	"github.com/jarvas-assistant/jarvas/pkg/logging"
)

// Provider is one search engine. Implementations live in the subpackages;
// anything satisfying this interface can be plugged in.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Client default tuning.
const (
	DefaultMaxResults     = 5
	DefaultMaxRetries     = 3
	DefaultAttemptTimeout = 10 * time.Second
	DefaultCacheTTL       = 5 * time.Minute
)

// Client retries a primary provider with exponential backoff, falls back to
// a secondary provider exactly once, and caches results for a short window.
type Client struct {
	primary        Provider
	fallback       Provider
	store          cache.Backend
	cacheTTL       time.Duration
	attemptTimeout time.Duration
	backoffUnit    time.Duration
	logger         *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithFallback sets the one-shot fallback provider.
func WithFallback(p Provider) ClientOption {
	return func(c *Client) {
		c.fallback = p
	}
}

// WithStore sets the result cache backend.
func WithStore(b cache.Backend) ClientOption {
	return func(c *Client) {
		c.store = b
	}
}

// WithCacheTTL overrides the result cache lifetime.
func WithCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithAttemptTimeout bounds each individual provider attempt.
func WithAttemptTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.attemptTimeout = d
		}
	}
}

// WithBackoffUnit scales the 2^attempt backoff sleeps. Tests set this to
// zero to run without waiting.
func WithBackoffUnit(d time.Duration) ClientOption {
	return func(c *Client) {
		c.backoffUnit = d
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a search client around a primary provider.
func NewClient(primary Provider, opts ...ClientOption) *Client {
	c := &Client{
		primary:        primary,
		cacheTTL:       DefaultCacheTTL,
		attemptTimeout: DefaultAttemptTimeout,
		backoffUnit:    time.Second,
		logger:         logging.WithComponent("search"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = cache.NewMemoryBackend(nil)
	}
	return c
}

// Search runs the retry/fallback algorithm and returns up to maxResults
// results. An empty slice means "no information available"; it is never an
// error. Results for a given (query, maxResults) pair are cached.
func (c *Client) Search(ctx context.Context, query string, maxResults, maxRetries int) []Result {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	ctx, span := otel.Tracer("jarvas/search").Start(ctx, "search.Search")
	defer span.End()

	key := cacheKey(query, maxResults)
	if cached, ok := c.cached(ctx, key); ok {
		c.logger.Debug("search cache hit", "query", query)
		span.SetAttributes(attribute.Bool("search.cache_hit", true))
		return cached
	}

	results, err := c.searchPrimary(ctx, query, maxResults, maxRetries)
	if err != nil && c.fallback != nil {
		results = c.attempt(ctx, c.fallback, query, maxResults)
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	if len(results) > 0 {
		c.storeResults(ctx, key, results)
	}
	span.SetAttributes(attribute.Int("search.results", len(results)))
	return results
}

// searchPrimary retries the primary provider. Any successful response is
// terminal, including an empty one: no results is an answer, not a failure.
func (c *Client) searchPrimary(ctx context.Context, query string, maxResults, maxRetries int) ([]Result, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		results, err := c.try(ctx, c.primary, query, maxResults)
		if err == nil {
			return results, nil
		}
		lastErr = err
		c.logAttempt(c.primary.Name(), attempt, err)
		if errors.Is(err, errorskg.ErrRateLimited) && attempt == maxRetries-1 {
			// No point waiting out the last backoff slot against a
			// rate-limiting engine; go straight to the fallback.
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < maxRetries-1 {
			c.sleep(ctx, (1<<attempt)*c.backoffUnit)
		}
	}
	return nil, lastErr
}

// attempt runs a provider once, absorbing the error into logs.
func (c *Client) attempt(ctx context.Context, p Provider, query string, maxResults int) []Result {
	results, err := c.try(ctx, p, query, maxResults)
	if err != nil {
		c.logAttempt(p.Name(), 0, err)
		return nil
	}
	return results
}

func (c *Client) try(ctx context.Context, p Provider, query string, maxResults int) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()
	return p.Search(ctx, query, maxResults)
}

func (c *Client) logAttempt(provider string, attempt int, err error) {
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		c.logger.Warn("search response undecodable",
			"provider", provider,
			"attempt", attempt,
			"content_type", decodeErr.ContentType,
			"body_preview", decodeErr.Preview,
		)
		return
	}
	c.logger.Warn("search attempt failed", "provider", provider, "attempt", attempt, "error", err)
}

func (c *Client) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (c *Client) cached(ctx context.Context, key string) ([]Result, bool) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, false
	}
	var results []Result
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, false
	}
	return results, true
}

func (c *Client) storeResults(ctx context.Context, key string, results []Result) {
	raw, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, raw, c.cacheTTL); err != nil {
		c.logger.Warn("search cache write failed", "error", err)
	}
}

func cacheKey(query string, maxResults int) string {
	sum := md5.Sum([]byte(query))
	return fmt.Sprintf("search:%s:%d", hex.EncodeToString(sum[:])[:8], maxResults)
}
