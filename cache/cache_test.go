package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock is a settable time source shared by the cache and its backend.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(clock *fakeClock) *Layered {
	return New(
		WithClock(clock.Now),
		WithBackend(NewMemoryBackend(clock.Now)),
	)
}

func TestFetchCachesLoaderResult(t *testing.T) {
	ctx := context.Background()
	l := newTestCache(newFakeClock())

	calls := 0
	loader := func(context.Context) (string, error) {
		calls++
		return "base prompt", nil
	}

	for i := 0; i < 3; i++ {
		got, err := Fetch(ctx, l, TierStatic, loader, "base_prompt")
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if got != "base prompt" {
			t.Errorf("Expected cached value, got %q", got)
		}
	}
	if calls != 1 {
		t.Errorf("Expected a single loader call, got %d", calls)
	}
}

func TestFetchExpiresByTier(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newTestCache(clock)

	calls := 0
	loader := func(context.Context) (string, error) {
		calls++
		return "user context", nil
	}

	if _, err := Fetch(ctx, l, TierUser, loader, "alice", "context"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	clock.Advance(9 * time.Minute)
	if _, err := Fetch(ctx, l, TierUser, loader, "alice", "context"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Entry expired too early: %d loader calls", calls)
	}

	clock.Advance(2 * time.Minute)
	if _, err := Fetch(ctx, l, TierUser, loader, "alice", "context"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected reload after TTL, got %d loader calls", calls)
	}
}

func TestFetchLoaderErrorNotCached(t *testing.T) {
	ctx := context.Background()
	l := newTestCache(newFakeClock())

	calls := 0
	loader := func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("db down")
		}
		return "recovered", nil
	}

	if _, err := Fetch(ctx, l, TierStatic, loader, "base_prompt"); err == nil {
		t.Fatalf("Expected loader error to propagate")
	}
	got, err := Fetch(ctx, l, TierStatic, loader, "base_prompt")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if got != "recovered" {
		t.Errorf("Error result must not be cached, got %q", got)
	}
}

func TestFetchQueryGateBypass(t *testing.T) {
	ctx := context.Background()
	l := newTestCache(newFakeClock())

	expensive := 0
	cheap := 0
	loader := func(context.Context) ([]string, error) {
		expensive++
		return []string{"memória relevante"}, nil
	}
	fallback := func(context.Context) ([]string, error) {
		cheap++
		return []string{"recente"}, nil
	}

	// No trigger term: the cheap path answers and nothing is cached.
	got, err := FetchQuery(ctx, l, "alice", "que horas são?", loader, fallback)
	if err != nil {
		t.Fatalf("FetchQuery failed: %v", err)
	}
	if expensive != 0 || cheap != 1 {
		t.Errorf("Expected cheap path only, expensive=%d cheap=%d", expensive, cheap)
	}
	if len(got) != 1 || got[0] != "recente" {
		t.Errorf("Unexpected cheap result: %v", got)
	}
	if _, err := l.backend.Get(ctx, l.QueryKey("alice", "que horas são?")); err == nil {
		t.Errorf("Cheap path result must not be cached")
	}

	// Trigger term present: expensive path runs and is cached.
	for i := 0; i < 2; i++ {
		got, err = FetchQuery(ctx, l, "alice", "lembras-te do jogo?", loader, fallback)
		if err != nil {
			t.Fatalf("FetchQuery failed: %v", err)
		}
	}
	if expensive != 1 {
		t.Errorf("Expected one expensive call, got %d", expensive)
	}
	if len(got) != 1 || got[0] != "memória relevante" {
		t.Errorf("Unexpected expensive result: %v", got)
	}
}

func TestFetchQueryFailureCachesEmpty(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := newTestCache(clock)

	calls := 0
	loader := func(context.Context) ([]string, error) {
		calls++
		return nil, errors.New("memory store down")
	}
	cheap := func(context.Context) ([]string, error) {
		t.Fatalf("Cheap path must not run for gated queries")
		return nil, nil
	}

	got, err := FetchQuery(ctx, l, "alice", "lembras-te disto?", loader, cheap)
	if err != nil {
		t.Fatalf("Loader failure must be absorbed, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected empty result on failure, got %v", got)
	}

	// The empty result holds for the query TTL, so the store is not hammered.
	if _, err := FetchQuery(ctx, l, "alice", "lembras-te disto?", loader, cheap); err != nil {
		t.Fatalf("FetchQuery failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected failure to be cached, got %d loader calls", calls)
	}

	clock.Advance(61 * time.Second)
	if _, err := FetchQuery(ctx, l, "alice", "lembras-te disto?", loader, cheap); err != nil {
		t.Fatalf("FetchQuery failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected retry after TTL, got %d loader calls", calls)
	}
}

func TestQueryKeyStableAndNamespaced(t *testing.T) {
	l := newTestCache(newFakeClock())

	k1 := l.QueryKey("alice", "lembras-te do jogo?")
	k2 := l.QueryKey("alice", "lembras-te do jogo?")
	if k1 != k2 {
		t.Errorf("Query key must be deterministic: %q vs %q", k1, k2)
	}
	if k1 == l.QueryKey("bob", "lembras-te do jogo?") {
		t.Errorf("Query keys must be namespaced per user")
	}
	if k1 == l.QueryKey("alice", "outra pergunta") {
		t.Errorf("Different queries must hash differently")
	}
}

func TestInvalidateUser(t *testing.T) {
	ctx := context.Background()
	l := newTestCache(newFakeClock())

	stat := func(context.Context) (string, error) { return "s", nil }
	if _, err := Fetch(ctx, l, TierStatic, stat, "base_prompt"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if _, err := Fetch(ctx, l, TierUser, stat, "alice", "context"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if _, err := FetchQuery(ctx, l, "alice", "lembras?", func(context.Context) (string, error) { return "m", nil }, nil); err != nil {
		t.Fatalf("FetchQuery failed: %v", err)
	}

	if err := l.InvalidateUser(ctx, "alice"); err != nil {
		t.Fatalf("InvalidateUser failed: %v", err)
	}

	if _, err := l.backend.Get(ctx, l.Key(TierUser, "alice", "context")); err == nil {
		t.Errorf("User tier entry survived invalidation")
	}
	if _, err := l.backend.Get(ctx, l.QueryKey("alice", "lembras?")); err == nil {
		t.Errorf("Query tier entry survived invalidation")
	}
	if _, err := l.backend.Get(ctx, l.Key(TierStatic, "base_prompt")); err != nil {
		t.Errorf("Static tier must survive user invalidation: %v", err)
	}
}

func TestInvalidateUserKeepsPrefixSiblings(t *testing.T) {
	ctx := context.Background()
	l := newTestCache(newFakeClock())

	loader := func(context.Context) (string, error) { return "c", nil }
	if _, err := Fetch(ctx, l, TierUser, loader, "alice", "context"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if _, err := Fetch(ctx, l, TierUser, loader, "alice2", "context"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if _, err := FetchQuery(ctx, l, "alice2", "lembras?", loader, nil); err != nil {
		t.Fatalf("FetchQuery failed: %v", err)
	}

	if err := l.InvalidateUser(ctx, "alice"); err != nil {
		t.Fatalf("InvalidateUser failed: %v", err)
	}

	if _, err := l.backend.Get(ctx, l.Key(TierUser, "alice", "context")); err == nil {
		t.Errorf("alice's user tier entry survived invalidation")
	}
	if _, err := l.backend.Get(ctx, l.Key(TierUser, "alice2", "context")); err != nil {
		t.Errorf("alice2's user tier entry must survive alice's invalidation: %v", err)
	}
	if _, err := l.backend.Get(ctx, l.QueryKey("alice2", "lembras?")); err != nil {
		t.Errorf("alice2's query tier entry must survive alice's invalidation: %v", err)
	}
}

func TestFetchQueryNilCheapLoader(t *testing.T) {
	ctx := context.Background()
	l := newTestCache(newFakeClock())

	loader := func(context.Context) ([]string, error) {
		t.Fatalf("Expensive loader must not run for ungated queries")
		return nil, nil
	}

	got, err := FetchQuery(ctx, l, "alice", "que horas são?", loader, nil)
	if err != nil {
		t.Fatalf("FetchQuery failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected zero value without a cheap loader, got %v", got)
	}
}

func TestGateDefaults(t *testing.T) {
	g := NewGate()
	allowed := []string{
		"Lembras-te do que disse ontem?",
		"qual é a minha preferência de música?",
		"o que é que eu disseste sobre o carro", // mixed up but contains a term
	}
	for _, q := range allowed {
		if !g.Allows(q) {
			t.Errorf("Expected gate to allow %q", q)
		}
	}
	blocked := []string{
		"que horas são?",
		"liga a luz da sala",
		"",
	}
	for _, q := range blocked {
		if g.Allows(q) {
			t.Errorf("Expected gate to block %q", q)
		}
	}
}

func TestGateCustomTerms(t *testing.T) {
	g := NewGate("remember", "earlier")
	if !g.Allows("Do you REMEMBER my name?") {
		t.Errorf("Custom term matching must be case-insensitive")
	}
	if g.Allows("lembras-te?") {
		t.Errorf("Default terms must be replaced by custom ones")
	}
}
