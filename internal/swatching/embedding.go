package swatching

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"time"
)

// EmbeddingService produces an embedding vector for a chunk of text.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
	ModelVersion() string
}

// StubEmbeddingService produces deterministic, low-cost embeddings from a
// hash of the input text. Useful for tests and for running the pipeline
// without a live embedding backend.
type StubEmbeddingService struct {
	dimensions int
}

// NewStubEmbeddingService creates a stub producing vectors of the given
// dimensionality.
func NewStubEmbeddingService(dimensions int) *StubEmbeddingService {
	if dimensions <= 0 {
		dimensions = 8
	}
	return &StubEmbeddingService{dimensions: dimensions}
}

func (s *StubEmbeddingService) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, s.dimensions)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed>>40)%1000) / 1000.0
	}
	return vec, nil
}

func (s *StubEmbeddingService) ModelName() string    { return "stub" }
func (s *StubEmbeddingService) ModelVersion() string { return "v1" }

var _ EmbeddingService = (*StubEmbeddingService)(nil)

// OllamaEmbeddingService calls an Ollama server's /api/embeddings
// endpoint, adapted from a former gRPC embedding client in the same
// codebase family this pipeline descends from.
type OllamaEmbeddingService struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaEmbeddingService creates an embedding service backed by an
// Ollama server at baseURL using the named model.
func NewOllamaEmbeddingService(baseURL, model string) *OllamaEmbeddingService {
	return &OllamaEmbeddingService{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type ollamaEmbedReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResp struct {
	Embedding []float64 `json:"embedding"`
}

func (o *OllamaEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedReq{Model: o.model, Prompt: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed: status %d", resp.StatusCode)
	}

	var result ollamaEmbedResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}

	out := make([]float32, len(result.Embedding))
	for i, v := range result.Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

func (o *OllamaEmbeddingService) ModelName() string    { return o.model }
func (o *OllamaEmbeddingService) ModelVersion() string { return "ollama" }

var _ EmbeddingService = (*OllamaEmbeddingService)(nil)
