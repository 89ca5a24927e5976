package session

import (
	"log/slog"

	"github.com/jarvas-assistant/jarvas/tool"
)

// EventType identifies one entry of the output event protocol.
type EventType string

const (
	// EventChunk carries one verbatim stream fragment during passthrough.
	EventChunk EventType = "chunk"
	// EventFinalText carries the directive-stripped text the client should
	// replace its rendered passthrough with.
	EventFinalText EventType = "final_text"
	// EventAction announces the directive about to be dispatched.
	EventAction EventType = "action"
	// EventActionResult carries the dispatch outcome.
	EventActionResult EventType = "action_result"
	// EventDone terminates every successful turn.
	EventDone EventType = "done"
	// EventError terminates a failed turn; never emitted together with done.
	EventError EventType = "error"
)

// Event is one protocol message on the output channel.
type Event struct {
	Type     EventType            `json:"type"`
	Sequence uint64               `json:"sequence,omitempty"`
	Content  string               `json:"content,omitempty"`
	Tool     string               `json:"tool,omitempty"`
	Args     map[string]any       `json:"args,omitempty"`
	Result   *tool.DispatchResult `json:"result,omitempty"`
	Error    string               `json:"error,omitempty"`
}

// Sink receives the turn's events, typically bridging to SSE or a WebSocket.
// A Send error marks the client as gone; the orchestrator stops forwarding
// but finishes its bookkeeping.
type Sink interface {
	Send(Event) error
}

// ChannelSink is a Sink over a buffered channel.
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Send delivers an event to the channel, blocking until the consumer keeps
// up.
func (s *ChannelSink) Send(ev Event) error {
	s.ch <- ev
	return nil
}

// Events exposes the consumer side of the channel.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Close closes the channel; call after RunTurn returns.
func (s *ChannelSink) Close() {
	close(s.ch)
}

// emitter wraps a Sink and downgrades delivery failures to log lines, so a
// disconnected client never aborts a turn.
type emitter struct {
	sink      Sink
	connected bool
	logger    *slog.Logger
}

func newEmitter(sink Sink, logger *slog.Logger) *emitter {
	return &emitter{sink: sink, connected: sink != nil, logger: logger}
}

func (e *emitter) emit(ev Event) {
	if !e.connected {
		return
	}
	if err := e.sink.Send(ev); err != nil {
		e.connected = false
		e.logger.Warn("client disconnected, dropping remaining events", "event", ev.Type, "error", err)
	}
}
