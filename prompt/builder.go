package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jarvas-assistant/jarvas/cache"
	"github.com/jarvas-assistant/jarvas/memory"
	"github.com/jarvas-assistant/jarvas/message"
	"github.com/jarvas-assistant/jarvas/pkg/logging"
	"github.com/jarvas-assistant/jarvas/search"
)

// ToolCatalog supplies the tool list rendered into the base prompt.
type ToolCatalog interface {
	Catalog() string
}

// UserContextLoader builds the per-user context section (device listings,
// aliases, household state). It is called on cache misses only.
type UserContextLoader func(ctx context.Context, userID string) (string, error)

// Builder assembles the message list for a model call. The expensive parts
// go through the layered cache: the instruction preamble on the static tier,
// the user context on the user tier and relevant memories on the gated query
// tier.
type Builder struct {
	name        string
	cache       *cache.Layered
	memories    memory.Store
	tools       ToolCatalog
	manager     *Manager
	counter     TokenCounter
	userLoader  UserContextLoader
	clock       func() time.Time
	maxTokens   int
	memoryLimit int
	logger      *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithName sets the assistant's name in the base prompt.
func WithName(name string) BuilderOption {
	return func(b *Builder) {
		if name != "" {
			b.name = name
		}
	}
}

// WithMemories sets the memory store consulted for relevant memories.
func WithMemories(store memory.Store) BuilderOption {
	return func(b *Builder) {
		b.memories = store
	}
}

// WithTools sets the tool catalog rendered into the base prompt.
func WithTools(catalog ToolCatalog) BuilderOption {
	return func(b *Builder) {
		b.tools = catalog
	}
}

// WithManager replaces the template manager.
func WithManager(m *Manager) BuilderOption {
	return func(b *Builder) {
		if m != nil {
			b.manager = m
		}
	}
}

// WithTokenCounter replaces the token counter used for history trimming.
func WithTokenCounter(c TokenCounter) BuilderOption {
	return func(b *Builder) {
		if c != nil {
			b.counter = c
		}
	}
}

// WithUserContextLoader sets the loader for the per-user context section.
func WithUserContextLoader(loader UserContextLoader) BuilderOption {
	return func(b *Builder) {
		b.userLoader = loader
	}
}

// WithClockFunc overrides the time source for the temporal section.
func WithClockFunc(clock func() time.Time) BuilderOption {
	return func(b *Builder) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithMaxTokens sets the history token budget.
func WithMaxTokens(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.maxTokens = n
		}
	}
}

// NewBuilder creates a Builder over a layered cache.
func NewBuilder(layered *cache.Layered, opts ...BuilderOption) *Builder {
	b := &Builder{
		name:        "Jarvas",
		cache:       layered,
		manager:     NewManager(),
		counter:     NewBPECounter(),
		clock:       time.Now,
		maxTokens:   3000,
		memoryLimit: 5,
		logger:      logging.WithComponent("prompt"),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.cache == nil {
		b.cache = cache.New()
	}
	return b
}

// BasePrompt returns the instruction preamble, cached on the static tier.
func (b *Builder) BasePrompt(ctx context.Context) (string, error) {
	return cache.Fetch(ctx, b.cache, cache.TierStatic, func(context.Context) (string, error) {
		catalog := "(nenhuma)"
		if b.tools != nil {
			if c := b.tools.Catalog(); c != "" {
				catalog = c
			}
		}
		return b.manager.Render(TemplateBasePrompt, map[string]any{
			"Name":  b.name,
			"Tools": catalog,
		})
	}, "base_prompt")
}

// UserContext returns the per-user context section, cached on the user tier.
// Without a loader it returns an empty section.
func (b *Builder) UserContext(ctx context.Context, userID string) (string, error) {
	if b.userLoader == nil {
		return "", nil
	}
	return cache.Fetch(ctx, b.cache, cache.TierUser, func(ctx context.Context) (string, error) {
		return b.userLoader(ctx, userID)
	}, userID, "context")
}

// InvalidateUserContext drops the cached user context after the underlying
// state changes (device renamed, configuration updated).
func (b *Builder) InvalidateUserContext(ctx context.Context, userID string) error {
	return b.cache.Invalidate(ctx, cache.TierUser, userID, "context")
}

// RelevantMemories returns memory lines for the query. Queries that do not
// look like they reference the past skip the search and get the most recent
// entries instead, uncached.
func (b *Builder) RelevantMemories(ctx context.Context, userID, query string) ([]string, error) {
	if b.memories == nil {
		return nil, nil
	}
	return cache.FetchQuery(ctx, b.cache, userID, query,
		func(ctx context.Context) ([]string, error) {
			mems, err := b.memories.Search(ctx, userID, query, b.memoryLimit)
			if err != nil {
				return nil, err
			}
			return memoryLines(mems), nil
		},
		func(ctx context.Context) ([]string, error) {
			limit := b.memoryLimit
			if limit > 3 {
				limit = 3
			}
			mems, err := b.memories.Recent(ctx, userID, limit)
			if err != nil {
				// The cheap path is best effort; a reply without memories
				// beats no reply.
				b.logger.Warn("recent memories unavailable", "user_id", userID, "error", err)
				return nil, nil
			}
			return memoryLines(mems), nil
		},
	)
}

// BuildMessages assembles the full message list for a model call: system
// message, trimmed history, and the new user message.
func (b *Builder) BuildMessages(ctx context.Context, userID string, history []*message.Message, userText string) ([]*message.Message, error) {
	base, err := b.BasePrompt(ctx)
	if err != nil {
		return nil, fmt.Errorf("prompt: build base prompt: %w", err)
	}

	var sections []string
	sections = append(sections, base)

	userCtx, err := b.UserContext(ctx, userID)
	if err != nil {
		b.logger.Warn("user context unavailable", "user_id", userID, "error", err)
	} else if userCtx != "" {
		sections = append(sections, "Contexto do utilizador:\n"+userCtx)
	}

	memLines, err := b.RelevantMemories(ctx, userID, userText)
	if err != nil {
		b.logger.Warn("memories unavailable", "user_id", userID, "error", err)
	} else if len(memLines) > 0 {
		sections = append(sections, "O que sabes sobre o utilizador:\n- "+strings.Join(memLines, "\n- "))
	}

	sections = append(sections, b.temporalSection())

	system := message.New(message.RoleSystem, strings.Join(sections, "\n\n"))

	budget := b.maxTokens - b.counter.Count(system.Content) - b.counter.Count(userText)
	trimmed := b.trimHistory(history, budget)

	msgs := make([]*message.Message, 0, len(trimmed)+2)
	msgs = append(msgs, system)
	msgs = append(msgs, trimmed...)
	msgs = append(msgs, message.New(message.RoleUser, userText))
	return msgs, nil
}

// trimHistory drops the oldest turns until the remainder fits the budget.
func (b *Builder) trimHistory(history []*message.Message, budget int) []*message.Message {
	if budget <= 0 || len(history) == 0 {
		return nil
	}
	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := b.counter.Count(history[i].Content)
		if total+cost > budget {
			break
		}
		total += cost
		start = i
	}
	if start == len(history) {
		return nil
	}
	return message.CloneAll(history[start:])
}

// SearchInjection renders the second-pass user message carrying search
// results back to the model.
func (b *Builder) SearchInjection(results []search.Result) (string, error) {
	var lines []string
	for i, r := range results {
		lines = append(lines, fmt.Sprintf("%d. %s\n%s\n%s", i+1, r.Title, r.Snippet, r.URL))
	}
	if len(lines) == 0 {
		lines = append(lines, "(sem resultados)")
	}
	return b.manager.Render(TemplateSearchInjection, map[string]any{
		"Results": strings.Join(lines, "\n\n"),
	})
}

var ptWeekdays = [...]string{"domingo", "segunda-feira", "terça-feira", "quarta-feira", "quinta-feira", "sexta-feira", "sábado"}

var ptMonths = [...]string{"", "janeiro", "fevereiro", "março", "abril", "maio", "junho", "julho", "agosto", "setembro", "outubro", "novembro", "dezembro"}

// temporalSection gives the model the current date, time and season so it
// can answer temporal questions and suggest sensible climate actions.
func (b *Builder) temporalSection() string {
	now := b.clock()
	season, hvac := seasonOf(now.Month())
	return fmt.Sprintf("Agora: %s, %d de %s de %d, %02d:%02d. Estação: %s. Modo de climatização sugerido: %s.",
		ptWeekdays[int(now.Weekday())],
		now.Day(), ptMonths[int(now.Month())], now.Year(),
		now.Hour(), now.Minute(),
		season, hvac,
	)
}

// seasonOf maps a month to the northern-hemisphere season and the climate
// mode the house usually wants in it.
func seasonOf(m time.Month) (string, string) {
	switch m {
	case time.December, time.January, time.February:
		return "inverno", "heat"
	case time.March, time.April, time.May:
		return "primavera", "off"
	case time.June, time.July, time.August:
		return "verão", "cool"
	default:
		return "outono", "off"
	}
}

func memoryLines(mems []*memory.Memory) []string {
	lines := make([]string, 0, len(mems))
	for _, m := range mems {
		lines = append(lines, m.Content)
	}
	return lines
}
