package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	errorskg "github.com/jarvas-assistant/jarvas/errors"
	"github.com/jarvas-assistant/jarvas/memory"
	"github.com/jarvas-assistant/jarvas/pkg/logging"
)

// PostgresStore implements memory.Store using PostgreSQL. With an Embedder
// configured it stores pgvector embeddings alongside each memory and serves
// Search by cosine similarity, falling back to text matching when the
// embedding path is unavailable.
type PostgresStore struct {
	db       *sql.DB
	embedder memory.Embedder
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithEmbedder enables similarity search backed by the pgvector extension.
func WithEmbedder(e memory.Embedder) PostgresOption {
	return func(s *PostgresStore) {
		s.embedder = e
	}
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultPostgresConfig returns default PostgreSQL configuration
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		DBName:   "jarvas",
		SSLMode:  "disable",
	}
}

// NewPostgresStore creates a new PostgreSQL-based memory store
func NewPostgresStore(config *PostgresConfig, opts ...PostgresOption) (*PostgresStore, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db}
	for _, opt := range opts {
		opt(store)
	}
	if err := store.createTable(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return store, nil
}

// createTable creates the memories table if it doesn't exist
func (s *PostgresStore) createTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS memories (
		id VARCHAR(255) PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		content TEXT NOT NULL,
		memory_type VARCHAR(32) NOT NULL DEFAULT 'fact',
		importance SMALLINT NOT NULL DEFAULT 2,
		metadata JSONB,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_user_created ON memories(user_id, created_at DESC);
	`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return err
	}
	if s.embedder == nil {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	alter := fmt.Sprintf(
		"ALTER TABLE memories ADD COLUMN IF NOT EXISTS embedding vector(%d)",
		s.embedder.Dimension())
	if _, err := s.db.ExecContext(ctx, alter); err != nil {
		return fmt.Errorf("failed to add embedding column: %w", err)
	}
	return nil
}

// Add inserts a memory.
func (s *PostgresStore) Add(ctx context.Context, mem *memory.Memory) error {
	if mem == nil {
		return fmt.Errorf("memory cannot be nil")
	}
	if mem.UserID == "" {
		return fmt.Errorf("memory user ID cannot be empty")
	}

	var metadataJSON []byte
	if len(mem.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(mem.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	} else {
		metadataJSON = []byte("{}")
	}

	args := []any{
		mem.ID,
		mem.UserID,
		mem.Content,
		string(mem.Type),
		mem.Importance,
		string(metadataJSON),
		mem.CreatedAt,
	}

	query := `
	INSERT INTO memories (id, user_id, content, memory_type, importance, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		content = EXCLUDED.content,
		memory_type = EXCLUDED.memory_type,
		importance = EXCLUDED.importance,
		metadata = EXCLUDED.metadata
	`

	// Embedding failures degrade to a text-only row rather than losing the
	// memory.
	if vec, ok := s.embedQuery(ctx, mem.Content); ok {
		query = `
		INSERT INTO memories (id, user_id, content, memory_type, importance, metadata, created_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			memory_type = EXCLUDED.memory_type,
			importance = EXCLUDED.importance,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding
		`
		args = append(args, vectorLiteral(vec))
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to add memory to PostgreSQL: %w", err)
	}
	return nil
}

// embedQuery runs the embedder when one is configured; failures are logged
// and reported as a miss.
func (s *PostgresStore) embedQuery(ctx context.Context, text string) ([]float32, bool) {
	if s.embedder == nil {
		return nil, false
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil || len(vec) == 0 {
		logging.WithComponent("memory").Warn("embedding failed, using text path", "error", err)
		return nil, false
	}
	return vec, true
}

// vectorLiteral renders a vector in pgvector's input format: [1,2,3].
func vectorLiteral(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Search returns up to limit memories relevant to the query. With an
// embedder it ranks by cosine similarity of the stored embeddings; without
// one, or when embedding the query fails, it matches content text, newest
// and most important first.
func (s *PostgresStore) Search(ctx context.Context, userID, query string, limit int) ([]*memory.Memory, error) {
	if limit <= 0 {
		limit = 10
	}

	if vec, ok := s.embedQuery(ctx, query); ok {
		results, err := s.searchByVector(ctx, userID, vec, limit)
		if err == nil {
			return results, nil
		}
		logging.WithComponent("memory").Warn("vector search failed, using text path", "error", err)
	}

	searchQuery := fmt.Sprintf("%%%s%%", query)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, content, memory_type, importance, metadata, created_at
		 FROM memories
		 WHERE user_id = $1 AND content ILIKE $2
		 ORDER BY importance DESC, created_at DESC
		 LIMIT $3`,
		userID, searchQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// searchByVector ranks a user's embedded memories by cosine distance to the
// query vector. Rows without an embedding are left to the text path.
func (s *PostgresStore) searchByVector(ctx context.Context, userID string, vec []float32, limit int) ([]*memory.Memory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, content, memory_type, importance, metadata, created_at
		 FROM memories
		 WHERE user_id = $1 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $2::vector
		 LIMIT $3`,
		userID, vectorLiteral(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search memories by vector: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// Recent returns the newest memories first.
func (s *PostgresStore) Recent(ctx context.Context, userID string, limit int) ([]*memory.Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, content, memory_type, importance, metadata, created_at
		 FROM memories
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent memories: %w", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

func scanMemories(rows *sql.Rows) ([]*memory.Memory, error) {
	memories := make([]*memory.Memory, 0)
	for rows.Next() {
		mem := &memory.Memory{}
		var typ string
		var metadataJSON string

		err := rows.Scan(&mem.ID, &mem.UserID, &mem.Content, &typ, &mem.Importance, &metadataJSON, &mem.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		mem.Type = memory.Type(typ)

		mem.Metadata = make(map[string]any)
		if metadataJSON != "" && metadataJSON != "{}" {
			if err := json.Unmarshal([]byte(metadataJSON), &mem.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		memories = append(memories, mem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memories: %w", err)
	}
	return memories, nil
}

// Delete deletes a memory by ID.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	return nil
}

// GetByID retrieves a specific memory by ID.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*memory.Memory, error) {
	mem := &memory.Memory{}
	var typ string
	var metadataJSON string

	query := `SELECT id, user_id, content, memory_type, importance, metadata, created_at
	          FROM memories WHERE id = $1`
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&mem.ID, &mem.UserID, &mem.Content, &typ, &mem.Importance, &metadataJSON, &mem.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("memory %s: %w", id, errorskg.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	mem.Type = memory.Type(typ)

	mem.Metadata = make(map[string]any)
	if metadataJSON != "" && metadataJSON != "{}" {
		if err := json.Unmarshal([]byte(metadataJSON), &mem.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return mem, nil
}

// Clear removes all memories for a user.
func (s *PostgresStore) Clear(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE user_id = $1", userID)
	if err != nil {
		return fmt.Errorf("failed to clear memories: %w", err)
	}
	return nil
}

// Count returns the number of memories stored for a user.
func (s *PostgresStore) Count(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories WHERE user_id = $1", userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return count, nil
}

// Close closes the PostgreSQL connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks if PostgreSQL connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
