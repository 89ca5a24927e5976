package searxng

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	errorskg "github.com/jarvas-assistant/jarvas/errors"
	"github.com/jarvas-assistant/jarvas/search"
)

func TestSearchParsesResults(t *testing.T) {
	var gotQuery, gotFormat, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotFormat = r.URL.Query().Get("format")
		gotLang = r.URL.Query().Get("language")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results": [
			{"title": "Resultado do jogo", "url": "https://example.pt/jogo", "content": "3-1 para o Porto", "engine": "google"},
			{"title": "Outro", "url": "https://example.pt/outro", "content": "snippet"}
		]}`))
	}))
	defer srv.Close()

	p := New(srv.URL)
	results, err := p.Search(context.Background(), "resultado jogo", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if gotQuery != "resultado jogo" || gotFormat != "json" || gotLang != "pt-PT" {
		t.Errorf("Unexpected request params: q=%q format=%q language=%q", gotQuery, gotFormat, gotLang)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[0].Engine != "google" {
		t.Errorf("Expected upstream engine name preserved, got %q", results[0].Engine)
	}
	if results[1].Engine != "searxng" {
		t.Errorf("Expected provider name for missing engine, got %q", results[1].Engine)
	}
	if results[0].Snippet != "3-1 para o Porto" {
		t.Errorf("Unexpected snippet: %q", results[0].Snippet)
	}
}

func TestSearchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := New(srv.URL)
	_, err := p.Search(context.Background(), "q", 5)
	if !errors.Is(err, errorskg.ErrRateLimited) {
		t.Errorf("Expected rate-limit error, got %v", err)
	}
}

func TestSearchHTMLBodyYieldsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>blocked</body></html>"))
	}))
	defer srv.Close()

	p := New(srv.URL)
	_, err := p.Search(context.Background(), "q", 5)
	var decodeErr *search.DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("Expected DecodeError, got %v", err)
	}
	if decodeErr.ContentType != "text/html" {
		t.Errorf("Expected content type captured, got %q", decodeErr.ContentType)
	}
	if decodeErr.Preview == "" {
		t.Errorf("Expected a body preview")
	}
}

func TestSearchTruncatesToMaxResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results": [
			{"title": "1", "url": "https://a"}, {"title": "2", "url": "https://b"},
			{"title": "3", "url": "https://c"}, {"title": "4", "url": "https://d"}
		]}`))
	}))
	defer srv.Close()

	p := New(srv.URL)
	results, err := p.Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Expected 2 results, got %d", len(results))
	}
}
