package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jarvas-assistant/jarvas/message"
)

func testMessages() []*message.Message {
	return []*message.Message{
		message.New(message.RoleSystem, "És o Jarvas."),
		message.New(message.RoleUser, "Olá!"),
	}
}

func TestChatSendsModelAndOptions(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Message: chatMessage{Role: "assistant", Content: "Olá, tudo bem?"},
			Done:    true,
		})
	}))
	defer server.Close()

	p := New(&Config{BaseURL: server.URL, Model: "llama3.1", Temperature: 0.2, NumCtx: 4096})
	reply, err := p.Chat(context.Background(), testMessages())
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply != "Olá, tudo bem?" {
		t.Errorf("Unexpected reply %q", reply)
	}

	if got.Model != "llama3.1" {
		t.Errorf("Expected model llama3.1, got %q", got.Model)
	}
	if got.Stream {
		t.Errorf("Chat must not request streaming")
	}
	if got.Options.Temperature != 0.2 {
		t.Errorf("Expected temperature 0.2, got %v", got.Options.Temperature)
	}
	if got.Options.NumCtx != 4096 {
		t.Errorf("Expected num_ctx 4096, got %d", got.Options.NumCtx)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "Olá!" {
		t.Errorf("Unexpected messages: %+v", got.Messages)
	}
}

func TestChatStreamYieldsChunksInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Errorf("ChatStream must request streaming")
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"Está "},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"sol."},"done":false}`)
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer server.Close()

	p := New(&Config{BaseURL: server.URL})
	var chunks []string
	for chunk, err := range p.ChatStream(context.Background(), testMessages()) {
		if err != nil {
			t.Fatalf("Unexpected stream error: %v", err)
		}
		chunks = append(chunks, chunk)
	}
	if len(chunks) != 2 || chunks[0] != "Está " || chunks[1] != "sol." {
		t.Errorf("Unexpected chunks: %q", chunks)
	}
}

func TestChatStreamSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":"parte"},"done":false}`)
		fmt.Fprintln(w, `{"error":"model runner has unexpectedly stopped"}`)
	}))
	defer server.Close()

	p := New(&Config{BaseURL: server.URL})
	var chunks []string
	var streamErr error
	for chunk, err := range p.ChatStream(context.Background(), testMessages()) {
		if err != nil {
			streamErr = err
			break
		}
		chunks = append(chunks, chunk)
	}
	if streamErr == nil {
		t.Fatalf("Expected stream error")
	}
	if len(chunks) != 1 {
		t.Errorf("Expected 1 chunk before failure, got %d", len(chunks))
	}
}

func TestChatErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	p := New(&Config{BaseURL: server.URL})
	if _, err := p.Chat(context.Background(), testMessages()); err == nil {
		t.Fatalf("Expected error for 404 response")
	}
}

func TestDefaultsApplied(t *testing.T) {
	p := New(&Config{})
	if p.config.BaseURL != DefaultURL {
		t.Errorf("Expected default base URL, got %q", p.config.BaseURL)
	}
	if p.config.Model != "llama3.1" {
		t.Errorf("Expected default model, got %q", p.config.Model)
	}
	if p.config.NumCtx != 4096 {
		t.Errorf("Expected default num_ctx, got %d", p.config.NumCtx)
	}
}
