// Package embedding turns text into dense vectors through an Ollama server.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/RAG-HealthBot/internal/config"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// DefaultBatchParallelism bounds concurrent requests in EmbedBatch.
const DefaultBatchParallelism = 4

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// OllamaEmbedder calls POST /api/embeddings.
type OllamaEmbedder struct {
	client      *http.Client
	baseURL     string
	model       string
	dimension   int
	parallelism int
	metrics     *prom.AppMetrics
	logger      logging.Logger
}

// NewOllamaEmbedder builds an embedder. dimension is the expected vector
// length; 0 disables the check. metrics may be nil.
func NewOllamaEmbedder(cfg config.EmbeddingConfig, dimension int, metrics *prom.AppMetrics, logger logging.Logger) *OllamaEmbedder {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultEmbeddingBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultEmbeddingModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = config.DefaultEmbeddingTimeout
	}
	return &OllamaEmbedder{
		client:      &http.Client{Timeout: timeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		dimension:   dimension,
		parallelism: DefaultBatchParallelism,
		metrics:     metrics,
		logger:      logger.Named("embedding"),
	}
}

// Model returns the embedding model name.
func (e *OllamaEmbedder) Model() string { return e.model }

// Dimension returns the expected vector length.
func (e *OllamaEmbedder) Dimension() int { return e.dimension }

// Embed returns the embedding of text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embed(ctx, text)
	prom.RecordEmbedding(e.metrics, e.model, err == nil)
	return vec, err
}

func (e *OllamaEmbedder) embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "marshal embedding request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "create embedding request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "send embedding request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Newf(errors.ErrCodeEmbeddingFailed, "ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEmbeddingFailed, "decode embedding response")
	}
	if out.Error != "" {
		return nil, errors.Newf(errors.ErrCodeEmbeddingFailed, "ollama error: %s", out.Error)
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New(errors.ErrCodeEmbeddingFailed, "ollama returned an empty embedding")
	}
	if e.dimension > 0 && len(out.Embedding) != e.dimension {
		return nil, errors.Newf(errors.ErrCodeEmbeddingDimMismatch,
			"model %s returned %d dimensions, expected %d", e.model, len(out.Embedding), e.dimension)
	}

	vec := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// EmbedBatch embeds texts concurrently and returns vectors in input order.
// The first failure cancels the remaining requests.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := e.Embed(gctx, text)
			if err != nil {
				return err
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Debug("embedded batch", logging.Int("texts", len(texts)), logging.String("model", e.model))
	return out, nil
}

// Ping checks that the server answers GET /api/tags.
func (e *OllamaEmbedder) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "create ping request")
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "ollama ping failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Newf(errors.ErrCodeExternalService, "ollama ping status %d", resp.StatusCode)
	}
	return nil
}
