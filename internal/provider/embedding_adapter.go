package provider

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/rigger/core/internal/logging"
	"github.com/rigger/core/internal/types"
)

// genAIMaxBatchSize caps a single embed call: the GenAI API rejects batches
// over 100 items.
const genAIMaxBatchSize = 100

// GenAIEmbedding adapts the Gemini embeddings API to the Embedding port
// (spec §4.2.3).
type GenAIEmbedding struct {
	client    *genai.Client
	model     string
	dimension int
}

// NewGenAIEmbedding constructs a GenAIEmbedding for the given model and
// output dimensionality.
func NewGenAIEmbedding(ctx context.Context, apiKey, model string, dimension int) (*GenAIEmbedding, error) {
	if apiKey == "" {
		return nil, types.NewError(types.CodeProviderUnavailable, "genai API key is not configured")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if dimension <= 0 {
		dimension = 768
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, types.Wrap(types.CodeProviderUnavailable, "failed to create genai client", err)
	}
	return &GenAIEmbedding{client: client, model: model, dimension: dimension}, nil
}

func (e *GenAIEmbedding) Dimension() int { return e.dimension }

func (e *GenAIEmbedding) Generate(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.GenerateMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, types.NewError(types.CodeProviderUnavailable, "genai returned no embeddings")
	}
	return vecs[0], nil
}

// GenerateMany batches texts into chunks of genAIMaxBatchSize.
func (e *GenAIEmbedding) GenerateMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out [][]float32
	for start := 0; start < len(texts); start += genAIMaxBatchSize {
		end := start + genAIMaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := e.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch [%d:%d]: %w", start, end, err)
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (e *GenAIEmbedding) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	start := time.Now()
	dim := int32(e.dimension)
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		logging.Provider.Warn("genai embed failed after %v: %v", time.Since(start), err)
		return nil, types.Wrap(types.CodeProviderUnavailable, "genai embed failed", err)
	}
	vecs := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vecs[i] = emb.Values
	}
	return vecs, nil
}
