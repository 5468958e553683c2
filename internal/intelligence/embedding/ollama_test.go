package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/RAG-HealthBot/internal/config"
	"github.com/turtacn/RAG-HealthBot/internal/testutil"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// lengthVector encodes len(prompt) into the first component.
func lengthVector(prompt string, dim int) []float64 {
	v := make([]float64, dim)
	v[0] = float64(len(prompt))
	return v
}

func newServer(t *testing.T, dim int, fail func(prompt string) bool) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
			return
		case "/api/embeddings":
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		atomic.AddInt32(&calls, 1)
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model != "mxbai-embed-large" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if fail != nil && fail(req.Prompt) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"model crashed"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": lengthVector(req.Prompt, dim)})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newEmbedder(url string, dim int) *OllamaEmbedder {
	return NewOllamaEmbedder(config.EmbeddingConfig{
		BaseURL: url + "/",
		Model:   "mxbai-embed-large",
		Timeout: 5 * time.Second,
	}, dim, nil, testutil.NewMockLogger())
}

func TestEmbed(t *testing.T) {
	srv, _ := newServer(t, 8, nil)
	e := newEmbedder(srv.URL, 8)

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, vec, 8)
	assert.Equal(t, float32(5), vec[0])
	assert.Equal(t, "mxbai-embed-large", e.Model())
	assert.Equal(t, 8, e.Dimension())
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	srv, _ := newServer(t, 4, nil)
	e := newEmbedder(srv.URL, 8)

	_, err := e.Embed(context.Background(), "hello")
	assert.True(t, errors.IsCode(err, errors.ErrCodeEmbeddingDimMismatch))
}

func TestEmbed_ServerError(t *testing.T) {
	srv, _ := newServer(t, 4, func(string) bool { return true })
	e := newEmbedder(srv.URL, 4)

	_, err := e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeEmbeddingFailed))
	assert.Contains(t, err.Error(), "model crashed")
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	srv, calls := newServer(t, 3, nil)
	e := newEmbedder(srv.URL, 3)

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 10)
	for i, v := range vecs {
		assert.Equal(t, float32(i+1), v[0], fmt.Sprintf("vector %d", i))
	}
	assert.Equal(t, int32(10), atomic.LoadInt32(calls))
}

func TestEmbedBatch_FailsOnAnyError(t *testing.T) {
	srv, _ := newServer(t, 3, func(p string) bool { return p == "bad" })
	e := newEmbedder(srv.URL, 3)

	_, err := e.EmbedBatch(context.Background(), []string{"ok", "bad", "ok2"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeEmbeddingFailed))
}

func TestEmbedBatch_Empty(t *testing.T) {
	e := newEmbedder("http://127.0.0.1:1", 3)
	vecs, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestPing(t *testing.T) {
	srv, _ := newServer(t, 3, nil)
	assert.NoError(t, newEmbedder(srv.URL, 3).Ping(context.Background()))

	assert.Error(t, newEmbedder("http://127.0.0.1:1", 3).Ping(context.Background()))
}
