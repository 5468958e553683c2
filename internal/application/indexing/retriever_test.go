package indexing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

func TestRetriever_Search(t *testing.T) {
	e, cs := new(MockEmbedder), new(MockChunkStore)
	ctx := context.Background()
	hits := []report.ScoredChunk{{Chunk: report.Chunk{ReportID: 3, Index: 1, Text: "Metformin 500mg."}, Distance: 0.12}}

	e.On("Embed", ctx, "what dose of metformin?").Return([]float32{0.1, 0.2}, nil)
	cs.On("SearchChunks", ctx, int64(3), []float32{0.1, 0.2}, DefaultTopK).Return(hits, nil)

	got, err := NewRetriever(e, cs, 0).Search(ctx, 3, "  what dose of metformin? ", 0)

	require.NoError(t, err)
	assert.Equal(t, hits, got)
	cs.AssertExpectations(t)
}

func TestRetriever_ExplicitTopK(t *testing.T) {
	e, cs := new(MockEmbedder), new(MockChunkStore)
	ctx := context.Background()
	e.On("Embed", ctx, "q").Return([]float32{1}, nil)
	cs.On("SearchChunks", ctx, int64(0), []float32{1}, 2).Return([]report.ScoredChunk{}, nil)

	got, err := NewRetriever(e, cs, 6).Search(ctx, 0, "q", 2)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetriever_EmptyQuery(t *testing.T) {
	_, err := NewRetriever(new(MockEmbedder), new(MockChunkStore), 0).Search(context.Background(), 1, "  ", 0)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestRetriever_EmbedError(t *testing.T) {
	e := new(MockEmbedder)
	e.On("Embed", context.Background(), "q").Return(nil, errors.New(errors.ErrCodeEmbeddingFailed, "down"))

	_, err := NewRetriever(e, new(MockChunkStore), 0).Search(context.Background(), 1, "q", 0)

	assert.True(t, errors.IsCode(err, errors.ErrCodeEmbeddingFailed))
}

func TestFormatExcerpts(t *testing.T) {
	hits := []report.ScoredChunk{
		{Chunk: report.Chunk{Text: " first chunk "}},
		{Chunk: report.Chunk{Text: "   "}},
		{Chunk: report.Chunk{Text: "third chunk"}},
	}
	assert.Equal(t, "[Excerpt 1]\nfirst chunk\n\n[Excerpt 3]\nthird chunk", FormatExcerpts(hits))
	assert.Equal(t, "", FormatExcerpts(nil))
}
