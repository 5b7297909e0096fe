package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rigger/core/internal/types"
)

// LocalEmbedding adapts a local Ollama-compatible embeddings endpoint to the
// Embedding port, so a project can run fully offline (spec §4.2.3, §9).
// There is no ecosystem client for this wire format among the retrieved
// examples, so this speaks the documented Ollama /api/embeddings JSON
// contract directly over net/http (see DESIGN.md).
type LocalEmbedding struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
}

// NewLocalEmbedding constructs a LocalEmbedding pointed at baseURL (e.g.
// "http://localhost:11434").
func NewLocalEmbedding(baseURL, model string, dimension int) *LocalEmbedding {
	return &LocalEmbedding{
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (l *LocalEmbedding) Dimension() int { return l.dimension }

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (l *LocalEmbedding) Generate(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: l.model, Prompt: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, types.Wrap(types.CodeProviderUnavailable, "local embedding endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewError(types.CodeProviderUnavailable, fmt.Sprintf("local embedding endpoint returned status %d", resp.StatusCode))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.Wrap(types.CodeUnparseableOutput, "malformed local embedding response", err)
	}
	return out.Embedding, nil
}

// GenerateMany calls Generate sequentially; the local endpoint has no
// native batch API.
func (l *LocalEmbedding) GenerateMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := l.Generate(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
