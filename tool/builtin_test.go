package tool

import (
	"context"
	"testing"
	"time"

	"github.com/jarvas-assistant/jarvas/search"
)

type fakeShopping struct {
	items map[string][]string
}

func (f *fakeShopping) Add(_ context.Context, userID, item string) error {
	if f.items == nil {
		f.items = map[string][]string{}
	}
	f.items[userID] = append(f.items[userID], item)
	return nil
}

func (f *fakeShopping) Items(_ context.Context, userID string) ([]string, error) {
	return f.items[userID], nil
}

type fakeAgenda struct {
	title string
	when  time.Time
}

func (f *fakeAgenda) AddEvent(_ context.Context, _, title string, when time.Time) error {
	f.title, f.when = title, when
	return nil
}

type fakeSearcher struct {
	queries []string
	results []search.Result
}

func (f *fakeSearcher) Search(_ context.Context, query string, _, _ int) []search.Result {
	f.queries = append(f.queries, query)
	return f.results
}

func TestBuiltinShoppingTools(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	shopping := &fakeShopping{}
	if err := RegisterBuiltins(registry, Builtins{Shopping: shopping}); err != nil {
		t.Fatalf("RegisterBuiltins failed: %v", err)
	}

	user := UserContext{UserID: "alice"}
	result := registry.Dispatch(ctx, "add_shopping_item", map[string]any{"item": "leite"}, user)
	if !result.Success {
		t.Fatalf("add_shopping_item failed: %+v", result)
	}

	result = registry.Dispatch(ctx, "show_shopping_list", nil, user)
	if !result.Success {
		t.Fatalf("show_shopping_list failed: %+v", result)
	}
	items, ok := result.Data["items"].([]string)
	if !ok || len(items) != 1 || items[0] != "leite" {
		t.Errorf("Unexpected list contents: %v", result.Data)
	}

	// Other users see their own (empty) list.
	result = registry.Dispatch(ctx, "show_shopping_list", nil, UserContext{UserID: "bob"})
	if !result.Success || result.Data != nil {
		t.Errorf("Expected empty list for another user, got %+v", result)
	}
}

func TestBuiltinAgendaParsesWhen(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()
	agenda := &fakeAgenda{}
	if err := RegisterBuiltins(registry, Builtins{Agenda: agenda}); err != nil {
		t.Fatalf("RegisterBuiltins failed: %v", err)
	}

	result := registry.Dispatch(ctx, "add_agenda_event",
		map[string]any{"title": "Dentista", "when": "2025-07-01 09:30"}, UserContext{UserID: "alice"})
	if !result.Success {
		t.Fatalf("add_agenda_event failed: %+v", result)
	}
	if agenda.title != "Dentista" {
		t.Errorf("Unexpected title: %q", agenda.title)
	}
	if agenda.when.Hour() != 9 || agenda.when.Minute() != 30 {
		t.Errorf("Unexpected event time: %v", agenda.when)
	}

	result = registry.Dispatch(ctx, "add_agenda_event",
		map[string]any{"title": "X", "when": "amanhã talvez"}, UserContext{UserID: "alice"})
	if result.Success {
		t.Errorf("Expected failure for unparsable time, got %+v", result)
	}
}

func TestBuiltinWebSearchIsDeferred(t *testing.T) {
	registry := NewRegistry()
	searcher := &fakeSearcher{results: []search.Result{{Title: "t", URL: "https://u", Engine: "stub"}}}
	if err := RegisterBuiltins(registry, Builtins{Searcher: searcher}); err != nil {
		t.Fatalf("RegisterBuiltins failed: %v", err)
	}

	if !registry.IsDeferred("web_search") {
		t.Fatalf("web_search must be deferred")
	}

	// Synchronous dispatch still works for second-pass responses.
	result := registry.Dispatch(context.Background(), "web_search",
		map[string]any{"query": "resultado jogo"}, UserContext{UserID: "alice"})
	if !result.Success {
		t.Fatalf("web_search dispatch failed: %+v", result)
	}
	if len(searcher.queries) != 1 || searcher.queries[0] != "resultado jogo" {
		t.Errorf("Unexpected searcher calls: %v", searcher.queries)
	}
}

func TestBuiltinsSkipMissingCollaborators(t *testing.T) {
	registry := NewRegistry()
	if err := RegisterBuiltins(registry, Builtins{}); err != nil {
		t.Fatalf("RegisterBuiltins failed: %v", err)
	}
	if tools := registry.List(); len(tools) != 0 {
		t.Errorf("Expected no tools without collaborators, got %d", len(tools))
	}
}
