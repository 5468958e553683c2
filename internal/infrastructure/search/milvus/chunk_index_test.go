package milvus

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/RAG-HealthBot/pkg/errors"
)

func newTestIndex(fake *fakeMilvus) *ChunkIndex {
	return NewChunkIndex(NewClientWithSDK(fake, logging.NewNopLogger()), "report_chunks", 3, logging.NewNopLogger())
}

func TestEnsureCollection_Creates(t *testing.T) {
	fake := &fakeMilvus{}
	require.NoError(t, newTestIndex(fake).EnsureCollection(context.Background()))

	require.NotNil(t, fake.created)
	assert.Equal(t, "report_chunks", fake.created.CollectionName)
	names := make([]string, 0, len(fake.created.Fields))
	for _, f := range fake.created.Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{FieldID, FieldReportID, FieldChunkIndex, FieldText, FieldEmbedding}, names)
	assert.Equal(t, FieldEmbedding, fake.indexed)
	assert.True(t, fake.loaded)
}

func TestEnsureCollection_Existing(t *testing.T) {
	fake := &fakeMilvus{hasCollection: true}
	require.NoError(t, newTestIndex(fake).EnsureCollection(context.Background()))
	assert.Nil(t, fake.created)
	assert.True(t, fake.loaded)
}

func TestReplaceChunks(t *testing.T) {
	fake := &fakeMilvus{}
	err := newTestIndex(fake).ReplaceChunks(context.Background(), 7, []report.Chunk{
		{Index: 0, Text: "a", Embedding: []float32{1, 0, 0}},
		{Index: 1, Text: "b", Embedding: []float32{0, 1, 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"report_id == 7"}, fake.deletes)
	require.Len(t, fake.inserted, 4)
	assert.Equal(t, []int64{7, 7}, fake.inserted[0].(*entity.ColumnInt64).Data())
	assert.Equal(t, []int64{0, 1}, fake.inserted[1].(*entity.ColumnInt64).Data())
	assert.Equal(t, []string{"a", "b"}, fake.inserted[2].(*entity.ColumnVarChar).Data())
}

func TestReplaceChunks_EmptyOnlyDeletes(t *testing.T) {
	fake := &fakeMilvus{}
	require.NoError(t, newTestIndex(fake).ReplaceChunks(context.Background(), 7, nil))
	assert.Len(t, fake.deletes, 1)
	assert.Nil(t, fake.inserted)
}

func TestReplaceChunks_DimensionMismatch(t *testing.T) {
	fake := &fakeMilvus{}
	err := newTestIndex(fake).ReplaceChunks(context.Background(), 7, []report.Chunk{{Embedding: []float32{1}}})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeEmbeddingDimMismatch))
	assert.Empty(t, fake.deletes)
}

func TestReplaceChunks_InsertError(t *testing.T) {
	fake := &fakeMilvus{insertErr: errors.New("quota")}
	err := newTestIndex(fake).ReplaceChunks(context.Background(), 7, []report.Chunk{{Embedding: []float32{1, 2, 3}}})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSearchIndexFailed))
}

func TestSearchChunks(t *testing.T) {
	fake := &fakeMilvus{searchResult: []client.SearchResult{{
		ResultCount: 2,
		Scores:      []float32{0.9, 0.25},
		Fields: client.ResultSet{
			entity.NewColumnInt64(FieldReportID, []int64{7, 7}),
			entity.NewColumnInt64(FieldChunkIndex, []int64{3, 1}),
			entity.NewColumnVarChar(FieldText, []string{"near", "far"}),
		},
	}}}
	hits, err := newTestIndex(fake).SearchChunks(context.Background(), 7, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, "report_id == 7", fake.searchExpr)
	assert.Equal(t, 2, fake.searchTopK)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].Text)
	assert.Equal(t, 3, hits[0].Index)
	assert.InDelta(t, 0.1, hits[0].Distance, 1e-6)
	assert.InDelta(t, 0.75, hits[1].Distance, 1e-6)
}

func TestSearchChunks_AllReportsAndErrors(t *testing.T) {
	fake := &fakeMilvus{}
	idx := newTestIndex(fake)

	hits, err := idx.SearchChunks(context.Background(), 0, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, "", fake.searchExpr)

	_, err = idx.SearchChunks(context.Background(), 0, []float32{1}, 5)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeEmbeddingDimMismatch))

	fake.searchResult = []client.SearchResult{{Err: errors.New("partial")}}
	_, err = idx.SearchChunks(context.Background(), 0, []float32{1, 0, 0}, 5)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSearchIndexFailed))

	fake.searchResult = []client.SearchResult{{ResultCount: 1, Scores: []float32{1}}}
	_, err = idx.SearchChunks(context.Background(), 0, []float32{1, 0, 0}, 5)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeSearchIndexFailed))
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "short", truncateText("short"))
	long := strings.Repeat("a", maxTextLength-1) + "é"
	out := truncateText(long)
	assert.LessOrEqual(t, len(out), maxTextLength)
	assert.True(t, strings.HasPrefix(long, out))
	assert.Equal(t, maxTextLength-1, len(out))
}
