package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// EmbeddingDim is the fixed dimension of the embedding vector.
const EmbeddingDim = 768

// DefaultEmbeddingModel is the Ollama model used when none is configured.
const DefaultEmbeddingModel = "nomic-embed-text"

const defaultOllamaURL = "http://localhost:11434"

// Embedder turns text into vectors of EmbeddingDim floats.
type Embedder interface {
	EmbedChunks(ctx context.Context, chunks []string) ([][]float32, error)
	QueryEmbedding(ctx context.Context, query string) ([]float32, error)
}

// request struct for Ollama API
type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// response struct from Ollama API
type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// OllamaEmbedder calls the /api/embeddings endpoint of an Ollama server.
type OllamaEmbedder struct {
	BaseURL string
	Model   string
	HTTP    *http.Client
}

// NewOllamaEmbedder returns an embedder for model. Empty arguments use the defaults.
func NewOllamaEmbedder(baseURL, model string) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OllamaEmbedder{BaseURL: strings.TrimSuffix(baseURL, "/"), Model: model, HTTP: http.DefaultClient}
}

// WithModel returns a copy of e using model, or e itself when model is empty.
func (e *OllamaEmbedder) WithModel(model string) *OllamaEmbedder {
	if model == "" || model == e.Model {
		return e
	}
	c := *e
	c.Model = model
	return &c
}

// EmbedChunks produces embeddings for each chunk by calling Ollama.
func (e *OllamaEmbedder) EmbedChunks(ctx context.Context, chunks []string) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, errors.New("no chunks")
	}

	out := make([][]float32, len(chunks))
	for i, chunk := range chunks {
		emb, err := e.embed(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("failed embedding chunk %d: %w", i, err)
		}
		out[i] = emb
	}

	return out, nil
}

// QueryEmbedding produces an embedding for a query string.
func (e *OllamaEmbedder) QueryEmbedding(ctx context.Context, query string) ([]float32, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("empty query")
	}
	return e.embed(ctx, query)
}

func (e *OllamaEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
	data, err := json.Marshal(ollamaRequest{Model: e.Model, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/api/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama error: %s", strings.TrimSpace(string(bodyBytes)))
	}

	var oResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return nil, fmt.Errorf("failed decode response: %w", err)
	}

	if len(oResp.Embedding) != EmbeddingDim {
		return nil, fmt.Errorf("expected embedding dim %d, got %d", EmbeddingDim, len(oResp.Embedding))
	}

	return oResp.Embedding, nil
}
