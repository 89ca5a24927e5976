// Package session runs one conversational turn end to end: it streams the
// model's reply to the client, extracts the trailing directive once the
// stream finishes, dispatches tools, and for deferred web searches performs
// a second, non-streaming model pass with the results injected.
package session

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jarvas-assistant/jarvas/directive"
	"github.com/jarvas-assistant/jarvas/memory"
	"github.com/jarvas-assistant/jarvas/message"
	"github.com/jarvas-assistant/jarvas/pkg/logging"
	"github.com/jarvas-assistant/jarvas/pkg/telemetry"
	"github.com/jarvas-assistant/jarvas/prompt"
	"github.com/jarvas-assistant/jarvas/search"
	"github.com/jarvas-assistant/jarvas/tool"
)

// State tracks where a turn is in its lifecycle. Done and Failed are
// terminal; the turn object is discarded after either.
type State string

const (
	StateIdle              State = "idle"
	StateStreaming         State = "streaming"
	StateDirectiveDetected State = "directive_detected"
	StateDispatching       State = "dispatching"
	StateSecondPass        State = "second_pass"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// ModelClient is the slice of a provider the orchestrator needs: a streaming
// call for the first pass and a plain call for the second.
type ModelClient interface {
	Chat(ctx context.Context, msgs []*message.Message) (string, error)
	ChatStream(ctx context.Context, msgs []*message.Message) iter.Seq2[string, error]
}

// Searcher runs the deferred web search between the two model passes.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults, maxRetries int) []search.Result
}

// TurnResult is the orchestrator's record of one finished turn, handed to
// the persistence hook and returned to the caller.
type TurnResult struct {
	TurnID     string               `json:"turn_id"`
	UserID     string               `json:"user_id"`
	State      State                `json:"state"`
	UserText   string               `json:"user_text"`
	FinalText  string               `json:"final_text"`
	Directive  *directive.Directive `json:"directive,omitempty"`
	Dispatch   *tool.DispatchResult `json:"dispatch,omitempty"`
	SecondPass bool                 `json:"second_pass"`
	Err        error                `json:"-"`
}

// PersistFunc receives finished turns, e.g. to append them to conversation
// history. Best effort; errors are logged, not surfaced.
type PersistFunc func(ctx context.Context, result *TurnResult) error

// Orchestrator drives turns. One instance is shared across users; all
// per-turn state lives on the stack of RunTurn.
type Orchestrator struct {
	model             ModelClient
	registry          *tool.Registry
	searcher          Searcher
	prompts           *prompt.Builder
	memories          memory.Store
	persist           PersistFunc
	tracer            trace.Tracer
	logger            *slog.Logger
	maxSearchResults  int
	maxSearchRetries  int
	secondPassTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRegistry sets the tool registry.
func WithRegistry(r *tool.Registry) Option {
	return func(o *Orchestrator) {
		o.registry = r
	}
}

// WithSearcher sets the client used for deferred web searches.
func WithSearcher(s Searcher) Option {
	return func(o *Orchestrator) {
		o.searcher = s
	}
}

// WithPrompts sets the prompt builder.
func WithPrompts(b *prompt.Builder) Option {
	return func(o *Orchestrator) {
		o.prompts = b
	}
}

// WithMemories enables post-turn memory extraction into store.
func WithMemories(store memory.Store) Option {
	return func(o *Orchestrator) {
		o.memories = store
	}
}

// WithPersist sets the finished-turn hook.
func WithPersist(fn PersistFunc) Option {
	return func(o *Orchestrator) {
		o.persist = fn
	}
}

// WithSearchLimits tunes the deferred search call.
func WithSearchLimits(maxResults, maxRetries int) Option {
	return func(o *Orchestrator) {
		if maxResults > 0 {
			o.maxSearchResults = maxResults
		}
		if maxRetries > 0 {
			o.maxSearchRetries = maxRetries
		}
	}
}

// WithSecondPassTimeout bounds the second model call.
func WithSecondPassTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.secondPassTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an orchestrator around a model client.
func New(model ModelClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		model:             model,
		registry:          tool.NewRegistry(),
		tracer:            otel.Tracer("jarvas/session"),
		logger:            logging.WithComponent("session"),
		maxSearchResults:  search.DefaultMaxResults,
		maxSearchRetries:  search.DefaultMaxRetries,
		secondPassTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.prompts == nil {
		o.prompts = prompt.NewBuilder(nil)
	}
	return o
}

// RunTurn executes one user turn. Events flow to sink as they happen; the
// returned TurnResult summarizes the turn regardless of client connectivity.
// The returned error is non-nil only for upstream model failures, mirroring
// the terminal error event.
func (o *Orchestrator) RunTurn(ctx context.Context, user tool.UserContext, history []*message.Message, userText string, sink Sink) (*TurnResult, error) {
	turnID := uuid.NewString()
	ctx, span := o.tracer.Start(ctx, "session.RunTurn", trace.WithAttributes(
		attribute.String("turn.id", turnID),
		attribute.String("user.id", user.UserID),
	))

	result := &TurnResult{
		TurnID:   turnID,
		UserID:   user.UserID,
		State:    StateIdle,
		UserText: userText,
	}
	out := newEmitter(sink, o.logger.With("turn_id", turnID))

	err := o.runTurn(ctx, span, user, history, userText, result, out)
	result.Err = err
	telemetry.End(span, err)
	o.finish(ctx, result)
	return result, err
}

func (o *Orchestrator) runTurn(ctx context.Context, span trace.Span, user tool.UserContext, history []*message.Message, userText string, result *TurnResult, out *emitter) error {
	msgs, err := o.prompts.BuildMessages(ctx, user.UserID, history, userText)
	if err != nil {
		return o.fail(result, out, fmt.Errorf("build messages: %w", err))
	}

	fullText, err := o.streamFirstPass(ctx, msgs, result, out)
	if err != nil {
		return o.fail(result, out, err)
	}

	dir, clean := directive.Extract(fullText)
	if dir == nil {
		result.State = StateDone
		result.FinalText = clean
		out.emit(Event{Type: EventDone})
		return nil
	}

	result.State = StateDirectiveDetected
	result.Directive = dir
	span.SetAttributes(attribute.String("directive.tool", dir.Tool))
	// The client may have rendered the raw marker during passthrough; the
	// correction event carries the stripped text to reconcile against.
	out.emit(Event{Type: EventFinalText, Content: clean})

	result.State = StateDispatching
	out.emit(Event{Type: EventAction, Tool: dir.Tool, Args: dir.Args})

	if o.registry.IsDeferred(dir.Tool) && o.searcher != nil {
		return o.secondPass(ctx, user, msgs, clean, dir, result, out)
	}

	dispatched := o.registry.Dispatch(ctx, dir.Tool, dir.Args, user)
	result.Dispatch = dispatched
	result.State = StateDone
	result.FinalText = clean
	out.emit(Event{Type: EventActionResult, Result: dispatched})
	out.emit(Event{Type: EventDone})
	return nil
}

// streamFirstPass forwards chunks verbatim and accumulates the full text.
// The extractor is deliberately not run per chunk; it runs once on the
// accumulated text after the stream ends.
func (o *Orchestrator) streamFirstPass(ctx context.Context, msgs []*message.Message, result *TurnResult, out *emitter) (string, error) {
	var buf []byte
	var seq uint64
	for chunk, err := range o.model.ChatStream(ctx, msgs) {
		if err != nil {
			return "", fmt.Errorf("model stream: %w", err)
		}
		if result.State == StateIdle {
			result.State = StateStreaming
		}
		seq++
		buf = append(buf, chunk...)
		out.emit(Event{Type: EventChunk, Sequence: seq, Content: chunk})
	}
	return string(buf), nil
}

// secondPass performs the deferred web search, feeds the results back to the
// model in a non-streaming call, and emits the final reply. A directive in
// the second response is dispatched synchronously; there is never a third
// model call.
func (o *Orchestrator) secondPass(ctx context.Context, user tool.UserContext, msgs []*message.Message, clean string, dir *directive.Directive, result *TurnResult, out *emitter) error {
	result.State = StateSecondPass
	result.SecondPass = true

	query, _ := dir.Args["query"].(string)
	if query == "" {
		query = result.UserText
	}
	results := o.searcher.Search(ctx, query, o.maxSearchResults, o.maxSearchRetries)
	o.logger.Debug("deferred search finished", "turn_id", result.TurnID, "query", query, "results", len(results))

	injection, err := o.prompts.SearchInjection(results)
	if err != nil {
		return o.fail(result, out, fmt.Errorf("render search injection: %w", err))
	}

	followUp := make([]*message.Message, 0, len(msgs)+2)
	followUp = append(followUp, msgs...)
	if clean != "" {
		followUp = append(followUp, message.New(message.RoleAssistant, clean))
	}
	followUp = append(followUp, message.New(message.RoleUser, injection))

	callCtx, cancel := context.WithTimeout(ctx, o.secondPassTimeout)
	defer cancel()
	reply, err := o.model.Chat(callCtx, followUp)
	if err != nil {
		return o.fail(result, out, fmt.Errorf("second pass model call: %w", err))
	}

	secondDir, finalText := directive.Extract(reply)
	if secondDir != nil {
		dispatched := o.registry.Dispatch(ctx, secondDir.Tool, secondDir.Args, user)
		result.Dispatch = dispatched
		out.emit(Event{Type: EventAction, Tool: secondDir.Tool, Args: secondDir.Args})
		out.emit(Event{Type: EventActionResult, Result: dispatched})
	}

	result.State = StateDone
	result.FinalText = finalText
	out.emit(Event{Type: EventFinalText, Content: finalText})
	out.emit(Event{Type: EventDone})
	return nil
}

// fail moves the turn to Failed and emits the terminal error event with a
// generic message; the detailed cause stays in logs and the returned error.
func (o *Orchestrator) fail(result *TurnResult, out *emitter, err error) error {
	result.State = StateFailed
	o.logger.Error("turn failed", "turn_id", result.TurnID, "error", err)
	out.emit(Event{Type: EventError, Error: "não consegui processar o pedido"})
	return err
}

// finish runs the post-turn bookkeeping: memory extraction and persistence.
// Both are best effort and independent of client connectivity.
func (o *Orchestrator) finish(ctx context.Context, result *TurnResult) {
	if o.memories != nil && result.State == StateDone {
		for _, mem := range memory.ExtractFromTurn(result.UserID, result.UserText) {
			if err := o.memories.Add(ctx, mem); err != nil {
				o.logger.Warn("memory write failed", "turn_id", result.TurnID, "error", err)
			}
		}
	}
	if o.persist != nil {
		if err := o.persist(ctx, result); err != nil {
			o.logger.Warn("turn persistence failed", "turn_id", result.TurnID, "error", err)
		}
	}
}
