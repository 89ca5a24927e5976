package tool

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry()

	err := registry.Register(&Tool{
		Name:        "echo",
		Description: "Echoes its input",
		Parameters: []Parameter{
			{Name: "text", Type: "string", Description: "Text to echo", Required: true},
		},
		Handler: func(_ context.Context, args map[string]any, user UserContext) (*DispatchResult, error) {
			return &DispatchResult{
				Success: true,
				Message: args["text"].(string),
				Data:    map[string]any{"user": user.UserID},
			}, nil
		},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	result := registry.Dispatch(ctx, "echo", map[string]any{"text": "olá"}, UserContext{UserID: "alice"})
	if !result.Success {
		t.Fatalf("Expected success, got %+v", result)
	}
	if result.Message != "olá" {
		t.Errorf("Expected message 'olá', got %q", result.Message)
	}
	if result.Data["user"] != "alice" {
		t.Errorf("Expected user context passed through, got %v", result.Data)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	registry := NewRegistry()

	result := registry.Dispatch(context.Background(), "nonexistent", nil, UserContext{})
	if result.Success {
		t.Fatalf("Expected failure for unknown tool")
	}
	if result.Message != "Unknown tool: nonexistent" {
		t.Errorf("Unexpected message: %q", result.Message)
	}
}

func TestDispatchMissingRequiredArg(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&Tool{
		Name:       "strict",
		Parameters: []Parameter{{Name: "needed", Type: "string", Required: true}},
		Handler: func(context.Context, map[string]any, UserContext) (*DispatchResult, error) {
			return &DispatchResult{Success: true}, nil
		},
	})

	result := registry.Dispatch(context.Background(), "strict", map[string]any{}, UserContext{})
	if result.Success {
		t.Fatalf("Expected failure for missing argument")
	}
	if !strings.Contains(result.Message, "needed") {
		t.Errorf("Expected message to name the parameter, got %q", result.Message)
	}
}

func TestDispatchHandlerError(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&Tool{
		Name: "failing",
		Handler: func(context.Context, map[string]any, UserContext) (*DispatchResult, error) {
			return nil, errors.New("downstream unavailable")
		},
	})

	result := registry.Dispatch(context.Background(), "failing", nil, UserContext{})
	if result.Success {
		t.Fatalf("Expected failure")
	}
	if !strings.Contains(result.Message, "downstream unavailable") {
		t.Errorf("Expected the error surfaced in the message, got %q", result.Message)
	}
}

func TestDispatchHandlerPanicContained(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&Tool{
		Name: "panicky",
		Handler: func(context.Context, map[string]any, UserContext) (*DispatchResult, error) {
			panic("boom")
		},
	})

	result := registry.Dispatch(context.Background(), "panicky", nil, UserContext{})
	if result == nil || result.Success {
		t.Fatalf("Expected a failed result, got %+v", result)
	}
}

func TestIsDeferred(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&Tool{Name: "sync_tool", Handler: func(context.Context, map[string]any, UserContext) (*DispatchResult, error) {
		return &DispatchResult{Success: true}, nil
	}})
	registry.Register(&Tool{Name: "web_search", Deferred: true, Handler: func(context.Context, map[string]any, UserContext) (*DispatchResult, error) {
		return &DispatchResult{Success: true}, nil
	}})

	if registry.IsDeferred("sync_tool") {
		t.Errorf("sync_tool must not be deferred")
	}
	if !registry.IsDeferred("web_search") {
		t.Errorf("web_search must be deferred")
	}
	if registry.IsDeferred("missing") {
		t.Errorf("unknown tools are not deferred")
	}
}

func TestRegistryDuplicateAndList(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register(&Tool{Name: "a"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register(&Tool{Name: "a"}); err == nil {
		t.Error("Expected error for duplicate registration, got nil")
	}
	if err := registry.Upsert(&Tool{Name: "a", Description: "replaced"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, ok := registry.Get("a")
	if !ok || got.Description != "replaced" {
		t.Errorf("Upsert did not replace the tool: %+v", got)
	}
	if tools := registry.List(); len(tools) != 1 {
		t.Errorf("Expected 1 tool, got %d", len(tools))
	}
}

func TestCatalog(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&Tool{
		Name:        "save_note",
		Description: "Guarda uma nota",
		Parameters:  []Parameter{{Name: "text", Type: "string", Required: true}},
	})
	registry.Register(&Tool{Name: "show_shopping_list", Description: "Mostra a lista"})

	catalog := registry.Catalog()
	lines := strings.Split(catalog, "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 catalog lines, got %d", len(lines))
	}
	if lines[0] != "- save_note(text): Guarda uma nota" {
		t.Errorf("Unexpected catalog line: %q", lines[0])
	}
	if lines[1] != "- show_shopping_list: Mostra a lista" {
		t.Errorf("Unexpected catalog line: %q", lines[1])
	}
}
