// Package cache provides the tiered prompt/context cache used by the
// assistant. Three tiers with distinct lifetimes keep model-call latency down:
//
//   - static: prompt sections that never change at runtime (1h)
//   - user: per-user context that changes occasionally (10m)
//   - query: per-query derived data such as relevant memories (60s)
//
// Values are stored as JSON in a pluggable Backend; the query tier is guarded
// by a Gate so that only queries which plausibly reference the past pay for a
// memory search.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	errorskg "github.com/jarvas-assistant/jarvas/errors"
	"github.com/jarvas-assistant/jarvas/pkg/logging"
)

// Clock supplies the current time; injectable for tests.
type Clock func() time.Time

// Tier identifies a cache tier with its own key namespace and TTL.
type Tier int

const (
	TierStatic Tier = iota
	TierUser
	TierQuery
)

func (t Tier) String() string {
	switch t {
	case TierStatic:
		return "static"
	case TierUser:
		return "user"
	case TierQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Default tier lifetimes.
const (
	DefaultStaticTTL = time.Hour
	DefaultUserTTL   = 10 * time.Minute
	DefaultQueryTTL  = 60 * time.Second
)

// Layered is the tiered cache facade.
type Layered struct {
	backend   Backend
	clock     Clock
	gate      *Gate
	logger    *slog.Logger
	staticTTL time.Duration
	userTTL   time.Duration
	queryTTL  time.Duration
}

// Option configures a Layered cache.
type Option func(*Layered)

// WithBackend sets the storage backend.
func WithBackend(b Backend) Option {
	return func(l *Layered) {
		l.backend = b
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(c Clock) Option {
	return func(l *Layered) {
		l.clock = c
	}
}

// WithTTLs overrides the per-tier lifetimes. Zero values keep the default.
func WithTTLs(static, user, query time.Duration) Option {
	return func(l *Layered) {
		if static > 0 {
			l.staticTTL = static
		}
		if user > 0 {
			l.userTTL = user
		}
		if query > 0 {
			l.queryTTL = query
		}
	}
}

// WithGate replaces the query-tier gate.
func WithGate(g *Gate) Option {
	return func(l *Layered) {
		if g != nil {
			l.gate = g
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Layered) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Layered cache. Without options it uses an in-process backend,
// the default TTLs and the default Portuguese gate terms.
func New(opts ...Option) *Layered {
	l := &Layered{
		clock:     time.Now,
		gate:      NewGate(),
		logger:    logging.WithComponent("cache"),
		staticTTL: DefaultStaticTTL,
		userTTL:   DefaultUserTTL,
		queryTTL:  DefaultQueryTTL,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.backend == nil {
		l.backend = NewMemoryBackend(l.clock)
	}
	return l
}

// TTL returns the lifetime of a tier.
func (l *Layered) TTL(tier Tier) time.Duration {
	switch tier {
	case TierStatic:
		return l.staticTTL
	case TierUser:
		return l.userTTL
	default:
		return l.queryTTL
	}
}

// Key builds a namespaced cache key for a tier.
func (l *Layered) Key(tier Tier, parts ...string) string {
	return tier.String() + ":" + strings.Join(parts, ":")
}

// QueryKey builds the query-tier key for a user and query. The query is
// hashed so arbitrary text never ends up in key space.
func (l *Layered) QueryKey(userID, query string) string {
	sum := md5.Sum([]byte(query))
	return l.Key(TierQuery, userID, hex.EncodeToString(sum[:])[:8])
}

// Gate returns the query-tier gate.
func (l *Layered) Gate() *Gate {
	return l.gate
}

// Invalidate removes a single key built from tier and parts.
func (l *Layered) Invalidate(ctx context.Context, tier Tier, parts ...string) error {
	return l.backend.Delete(ctx, l.Key(tier, parts...))
}

// InvalidateUser drops every user-tier and query-tier entry for a user, e.g.
// after the user's context or memories change. The trailing separator keeps
// the match on key boundaries, so "alice" never sweeps "alice2".
func (l *Layered) InvalidateUser(ctx context.Context, userID string) error {
	if err := l.backend.DeletePrefix(ctx, l.Key(TierUser, userID)+":"); err != nil {
		return err
	}
	return l.backend.DeletePrefix(ctx, l.Key(TierQuery, userID)+":")
}

// Fetch returns the cached value under (tier, parts), loading and caching it
// on a miss. Loader errors are returned unchanged and nothing is cached.
func Fetch[T any](ctx context.Context, l *Layered, tier Tier, loader func(context.Context) (T, error), parts ...string) (T, error) {
	var zero T
	key := l.Key(tier, parts...)
	if v, ok := lookup[T](ctx, l, key); ok {
		return v, nil
	}

	v, err := loader(ctx)
	if err != nil {
		return zero, err
	}
	l.store(ctx, key, v, l.TTL(tier))
	return v, nil
}

// FetchQuery serves the query tier with its two special behaviors: queries
// the gate rejects are answered by the cheap loader and never cached, and a
// failing expensive loader caches the zero value for the tier TTL so a broken
// dependency is not hammered on every turn. A nil cheap loader answers
// rejected queries with the zero value.
func FetchQuery[T any](ctx context.Context, l *Layered, userID, query string, loader, cheap func(context.Context) (T, error)) (T, error) {
	var zero T
	if !l.gate.Allows(query) {
		if cheap == nil {
			return zero, nil
		}
		return cheap(ctx)
	}

	key := l.QueryKey(userID, query)
	if v, ok := lookup[T](ctx, l, key); ok {
		return v, nil
	}

	v, err := loader(ctx)
	if err != nil {
		l.logger.Warn("query loader failed, caching empty result", "user_id", userID, "error", err)
		l.store(ctx, key, zero, l.queryTTL)
		return zero, nil
	}
	l.store(ctx, key, v, l.queryTTL)
	return v, nil
}

func lookup[T any](ctx context.Context, l *Layered, key string) (T, bool) {
	var v T
	raw, err := l.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, errorskg.ErrNotFound) {
			l.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		l.logger.Warn("cache entry undecodable, dropping", "key", key, "error", err)
		_ = l.backend.Delete(ctx, key)
		var zero T
		return zero, false
	}
	return v, true
}

func (l *Layered) store(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		l.logger.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := l.backend.Set(ctx, key, raw, ttl); err != nil {
		l.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// Gate decides whether a query justifies the expensive query-tier path. It
// looks for terms that suggest the user is referencing earlier conversation
// or stored preferences.
type Gate struct {
	terms []string
}

var defaultGateTerms = []string{
	"lembra", "lembras", "recorda",
	"disseste", "dissemos", "falámos", "falamos",
	"preferência", "preferências", "gosto", "gostos",
	"memória", "memórias",
	"anteriormente", "antes", "passado",
	"costumo", "costumas",
}

// NewGate creates a gate over the given trigger terms; with no terms it uses
// the default Portuguese set.
func NewGate(terms ...string) *Gate {
	if len(terms) == 0 {
		terms = defaultGateTerms
	}
	lowered := make([]string, len(terms))
	for i, t := range terms {
		lowered[i] = strings.ToLower(t)
	}
	return &Gate{terms: lowered}
}

// Allows reports whether query contains any trigger term.
func (g *Gate) Allows(query string) bool {
	q := strings.ToLower(query)
	for _, term := range g.terms {
		if strings.Contains(q, term) {
			return true
		}
	}
	return false
}
