package memory

import "context"

// Embedder turns text into a fixed-size vector. Stores that support
// similarity search use it for both stored memories and incoming queries;
// stores without one fall back to text matching.
type Embedder interface {
	// Dimension returns the number of components in produced vectors.
	Dimension() int
	// Embed converts text to a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)
}
