package store

import (
	"context"
	"errors"
	"testing"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Dimension() int {
	return len(s.vec)
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return s.vec, s.err
}

func TestVectorLiteral(t *testing.T) {
	got := vectorLiteral([]float32{0.5, -1, 2})
	if got != "[0.5,-1,2]" {
		t.Errorf("Unexpected vector literal: %q", got)
	}
	if got := vectorLiteral(nil); got != "[]" {
		t.Errorf("Expected empty literal, got %q", got)
	}
}

func TestEmbedQueryWithoutEmbedder(t *testing.T) {
	s := &PostgresStore{}
	if _, ok := s.embedQuery(context.Background(), "lembras-te?"); ok {
		t.Errorf("Expected a miss without an embedder")
	}
}

func TestEmbedQueryFailureDegradesToTextPath(t *testing.T) {
	s := &PostgresStore{embedder: &stubEmbedder{err: errors.New("api down")}}
	if _, ok := s.embedQuery(context.Background(), "lembras-te?"); ok {
		t.Errorf("Expected embedding failure to report a miss")
	}

	s = &PostgresStore{embedder: &stubEmbedder{vec: []float32{}}}
	if _, ok := s.embedQuery(context.Background(), "lembras-te?"); ok {
		t.Errorf("Expected empty vector to report a miss")
	}
}

func TestEmbedQuerySuccess(t *testing.T) {
	s := &PostgresStore{embedder: &stubEmbedder{vec: []float32{0.1, 0.2}}}
	vec, ok := s.embedQuery(context.Background(), "lembras-te?")
	if !ok || len(vec) != 2 {
		t.Errorf("Expected embedding, got ok=%v vec=%v", ok, vec)
	}
}
