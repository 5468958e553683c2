package milvus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// Field names of the chunk collection.
const (
	FieldID         = "id"
	FieldReportID   = "report_id"
	FieldChunkIndex = "chunk_index"
	FieldText       = "text"
	FieldEmbedding  = "embedding"

	maxTextLength = 65535
	hnswM         = 16
	hnswEfBuild   = 64
	searchEf      = 64
)

// ChunkIndex stores report chunks in a Milvus collection. It implements
// report.ChunkStore.
type ChunkIndex struct {
	client     *Client
	collection string
	dimension  int
	logger     logging.Logger
}

// NewChunkIndex returns an index over collection with vectors of dimension.
func NewChunkIndex(c *Client, collection string, dimension int, logger logging.Logger) *ChunkIndex {
	return &ChunkIndex{client: c, collection: collection, dimension: dimension, logger: logger}
}

var _ report.ChunkStore = (*ChunkIndex)(nil)

// EnsureCollection creates, indexes and loads the collection when missing.
func (x *ChunkIndex) EnsureCollection(ctx context.Context) error {
	mc := x.client.SDK()
	if mc == nil {
		return ErrConnectionFailed
	}
	has, err := mc.HasCollection(ctx, x.collection)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "failed to check collection").WithDetail(x.collection)
	}
	if !has {
		schema := entity.NewSchema().
			WithName(x.collection).
			WithDescription("report text chunks").
			WithAutoID(true).
			WithField(entity.NewField().WithName(FieldID).WithDataType(entity.FieldTypeInt64).WithIsPrimaryKey(true).WithIsAutoID(true)).
			WithField(entity.NewField().WithName(FieldReportID).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(FieldChunkIndex).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(FieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxTextLength)).
			WithField(entity.NewField().WithName(FieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(x.dimension)))
		if err := mc.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "failed to create collection").WithDetail(x.collection)
		}

		idx, err := entity.NewIndexHNSW(entity.COSINE, hnswM, hnswEfBuild)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "invalid index parameters")
		}
		if err := mc.CreateIndex(ctx, x.collection, FieldEmbedding, idx, false); err != nil {
			return errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "failed to create index").WithDetail(x.collection)
		}
		x.logger.Info("milvus collection created",
			logging.String("collection", x.collection),
			logging.Int("dimension", x.dimension))
	}
	if err := mc.LoadCollection(ctx, x.collection, false); err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "failed to load collection").WithDetail(x.collection)
	}
	return nil
}

// ReplaceChunks deletes the report's chunks and inserts chunks.
func (x *ChunkIndex) ReplaceChunks(ctx context.Context, reportID int64, chunks []report.Chunk) error {
	for _, c := range chunks {
		if err := x.checkDim(c.Embedding); err != nil {
			return err
		}
	}
	if err := x.DeleteChunks(ctx, reportID); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	reportIDs := make([]int64, len(chunks))
	indexes := make([]int64, len(chunks))
	texts := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))
	for i, c := range chunks {
		reportIDs[i] = reportID
		indexes[i] = int64(c.Index)
		texts[i] = truncateText(c.Text)
		vectors[i] = c.Embedding
	}

	mc := x.client.SDK()
	if mc == nil {
		return ErrConnectionFailed
	}
	_, err := mc.Insert(ctx, x.collection, "",
		entity.NewColumnInt64(FieldReportID, reportIDs),
		entity.NewColumnInt64(FieldChunkIndex, indexes),
		entity.NewColumnVarChar(FieldText, texts),
		entity.NewColumnFloatVector(FieldEmbedding, x.dimension, vectors),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "failed to insert chunks").
			WithDetail("report " + strconv.FormatInt(reportID, 10))
	}
	x.logger.Debug("chunks indexed", logging.Int64("report_id", reportID), logging.Int("count", len(chunks)))
	return nil
}

// SearchChunks returns up to topK nearest chunks. reportID 0 searches every
// report. Distance is 1 - cosine similarity, matching pgvector's <=>.
func (x *ChunkIndex) SearchChunks(ctx context.Context, reportID int64, embedding []float32, topK int) ([]report.ScoredChunk, error) {
	if err := x.checkDim(embedding); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	mc := x.client.SDK()
	if mc == nil {
		return nil, ErrConnectionFailed
	}

	sp, err := entity.NewIndexHNSWSearchParam(searchEf)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "invalid search parameters")
	}
	expr := ""
	if reportID > 0 {
		expr = reportFilter(reportID)
	}

	results, err := mc.Search(ctx, x.collection, nil, expr,
		[]string{FieldReportID, FieldChunkIndex, FieldText},
		[]entity.Vector{entity.FloatVector(embedding)},
		FieldEmbedding, entity.COSINE, topK, sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "vector search failed")
	}
	if len(results) == 0 {
		return nil, nil
	}
	return toScoredChunks(results[0])
}

// DeleteChunks removes every chunk of reportID.
func (x *ChunkIndex) DeleteChunks(ctx context.Context, reportID int64) error {
	mc := x.client.SDK()
	if mc == nil {
		return ErrConnectionFailed
	}
	if err := mc.Delete(ctx, x.collection, "", reportFilter(reportID)); err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "failed to delete chunks").
			WithDetail("report " + strconv.FormatInt(reportID, 10))
	}
	return nil
}

func (x *ChunkIndex) checkDim(v []float32) error {
	if len(v) != x.dimension {
		return errors.Newf(errors.ErrCodeEmbeddingDimMismatch,
			"embedding has %d dimensions, collection expects %d", len(v), x.dimension)
	}
	return nil
}

func reportFilter(reportID int64) string {
	return fmt.Sprintf("%s == %d", FieldReportID, reportID)
}

func toScoredChunks(res client.SearchResult) ([]report.ScoredChunk, error) {
	if res.Err != nil {
		return nil, errors.Wrap(res.Err, errors.ErrCodeSearchIndexFailed, "vector search failed")
	}
	reportCol, ok1 := res.Fields.GetColumn(FieldReportID).(*entity.ColumnInt64)
	indexCol, ok2 := res.Fields.GetColumn(FieldChunkIndex).(*entity.ColumnInt64)
	textCol, ok3 := res.Fields.GetColumn(FieldText).(*entity.ColumnVarChar)
	if !ok1 || !ok2 || !ok3 {
		return nil, errors.New(errors.ErrCodeSearchIndexFailed, "search result is missing output fields")
	}

	reportIDs, indexes, texts := reportCol.Data(), indexCol.Data(), textCol.Data()
	n := res.ResultCount
	if n > len(res.Scores) {
		n = len(res.Scores)
	}
	out := make([]report.ScoredChunk, 0, n)
	for i := 0; i < n && i < len(reportIDs) && i < len(indexes) && i < len(texts); i++ {
		out = append(out, report.ScoredChunk{
			Chunk: report.Chunk{
				ReportID: reportIDs[i],
				Index:    int(indexes[i]),
				Text:     texts[i],
			},
			Distance: 1 - float64(res.Scores[i]),
		})
	}
	return out, nil
}

// truncateText keeps text within the VARCHAR limit on a rune boundary.
func truncateText(s string) string {
	if len(s) <= maxTextLength {
		return s
	}
	cut := maxTextLength
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
