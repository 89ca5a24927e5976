// Package embed provides memory.Embedder implementations.
package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Embedding defaults.
const (
	DefaultModel     = "text-embedding-3-small"
	DefaultDimension = 1536
)

// OpenAI embeds text through the OpenAI embeddings API.
type OpenAI struct {
	client    openaisdk.Client
	model     openaisdk.EmbeddingModel
	dimension int
}

// NewOpenAI creates an OpenAI embedder. Empty model and non-positive
// dimension fall back to the defaults.
func NewOpenAI(apiKey, baseURL, model string, dimension int) *OpenAI {
	if model == "" {
		model = DefaultModel
	}
	if dimension <= 0 {
		dimension = DefaultDimension
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{
		client:    openaisdk.NewClient(opts...),
		model:     openaisdk.EmbeddingModel(model),
		dimension: dimension,
	}
}

// Dimension returns the number of embedding dimensions.
func (e *OpenAI) Dimension() int {
	return e.dimension
}

// Embed converts text to a vector embedding.
func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openaisdk.EmbeddingNewParams{
		Model: e.model,
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding returned")
	}
	return convertVector(resp.Data[0].Embedding, e.dimension), nil
}

// convertVector narrows to float32 and pads or truncates to the expected
// dimension.
func convertVector(input []float64, expected int) []float32 {
	vec := make([]float32, expected)
	for i := 0; i < len(input) && i < expected; i++ {
		vec[i] = float32(input[i])
	}
	return vec
}
