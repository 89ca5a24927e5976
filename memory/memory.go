// Package memory models the assistant's long-term memory about its users:
// stated preferences, facts and notable events distilled from conversation
// turns. Stores are pluggable; the prompt builder is the main consumer.
package memory

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type classifies a memory entry.
type Type string

const (
	TypeFact         Type = "fact"
	TypePreference   Type = "preference"
	TypeEvent        Type = "event"
	TypeConversation Type = "conversation"
)

// Memory is one stored entry about a user.
type Memory struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	Content    string         `json:"content"`
	Type       Type           `json:"type"`
	Importance int            `json:"importance"` // 1 (incidental) to 5 (core fact)
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// New creates a memory with a fresh ID and timestamp.
func New(userID, content string, typ Type) *Memory {
	return &Memory{
		ID:         uuid.NewString(),
		UserID:     userID,
		Content:    content,
		Type:       typ,
		Importance: 2,
		CreatedAt:  time.Now(),
	}
}

// Store persists and retrieves memories. Search ranks by relevance to the
// query; Recent returns the newest entries first. Both scope to one user.
type Store interface {
	Add(ctx context.Context, mem *Memory) error
	Search(ctx context.Context, userID, query string, limit int) ([]*Memory, error)
	Recent(ctx context.Context, userID string, limit int) ([]*Memory, error)
}

// Patterns that mark a user utterance as worth remembering. Matching is done
// per sentence against the lowercased text.
var extractionPatterns = []struct {
	re         *regexp.Regexp
	typ        Type
	importance int
}{
	{regexp.MustCompile(`\b(gosto de|adoro|prefiro|detesto|não gosto)\b`), TypePreference, 3},
	{regexp.MustCompile(`\b(chamo-me|o meu nome é)\b`), TypeFact, 5},
	{regexp.MustCompile(`\b(trabalho|moro|vivo) (em|na|no|como)\b`), TypeFact, 4},
	{regexp.MustCompile(`\b(o meu|a minha) [\p{L}]+ (é|são|chama-se)\b`), TypeFact, 3},
	{regexp.MustCompile(`\b(amanhã|na próxima semana|no sábado|no domingo) (vou|tenho|vamos)\b`), TypeEvent, 2},
	{regexp.MustCompile(`\b(vou|tenho de|tenho que) [\p{L}]+ (amanhã|hoje|logo)\b`), TypeEvent, 2},
}

var sentenceSplit = regexp.MustCompile(`[.!?\n]+`)

// ExtractFromTurn applies the remember-worthiness heuristics to a user turn
// and returns the memories it yields. The assistant's reply is not mined;
// only what the user actually said is trusted.
func ExtractFromTurn(userID, userText string) []*Memory {
	var out []*Memory
	for _, sentence := range sentenceSplit.Split(userText, -1) {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) < 8 {
			continue
		}
		lowered := strings.ToLower(sentence)
		for _, p := range extractionPatterns {
			if p.re.MatchString(lowered) {
				mem := New(userID, sentence, p.typ)
				mem.Importance = p.importance
				out = append(out, mem)
				break
			}
		}
	}
	return out
}
