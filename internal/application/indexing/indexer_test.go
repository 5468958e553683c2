package indexing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/RAG-HealthBot/internal/domain/medication"
	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/search/opensearch"
	"github.com/turtacn/RAG-HealthBot/internal/testutil"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

type MockChunkStore struct {
	mock.Mock
}

func (m *MockChunkStore) ReplaceChunks(ctx context.Context, reportID int64, chunks []report.Chunk) error {
	return m.Called(ctx, reportID, chunks).Error(0)
}

func (m *MockChunkStore) SearchChunks(ctx context.Context, reportID int64, embedding []float32, topK int) ([]report.ScoredChunk, error) {
	args := m.Called(ctx, reportID, embedding, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]report.ScoredChunk), args.Error(1)
}

func (m *MockChunkStore) DeleteChunks(ctx context.Context, reportID int64) error {
	return m.Called(ctx, reportID).Error(0)
}

type MockDocumentIndex struct {
	mock.Mock
}

func (m *MockDocumentIndex) IndexReport(ctx context.Context, doc opensearch.ReportDocument) error {
	return m.Called(ctx, doc).Error(0)
}

type MockReportReader struct {
	mock.Mock
}

func (m *MockReportReader) GetByID(ctx context.Context, id int64) (*report.Report, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*report.Report), args.Error(1)
}

func storedReport() *report.Report {
	text := "Stored text."
	return &report.Report{
		ID:            7,
		FileName:      "labs.pdf",
		Summary:       "Stable.",
		ExtractedText: &text,
		CreatedAt:     time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Medications: []report.ReportMedication{
			{MedicationName: "Metformin", Dosage: medication.StrPtr("500mg")},
			{MedicationName: "Lisinopril"},
		},
	}
}

func newTestIndexer(e *MockEmbedder, cs *MockChunkStore, docs DocumentIndex, rr *MockReportReader) *Indexer {
	return NewIndexer(IndexerOptions{
		Chunker:  NewSentenceChunker(2, 1),
		Embedder: e,
		Chunks:   cs,
		Docs:     docs,
		Reports:  rr,
		Backend:  "postgres",
		Logger:   testutil.NewMockLogger(),
	})
}

func TestIndexer_Index(t *testing.T) {
	e, cs, docs, rr := new(MockEmbedder), new(MockChunkStore), new(MockDocumentIndex), new(MockReportReader)
	ix := newTestIndexer(e, cs, docs, rr)
	ctx := context.Background()

	rr.On("GetByID", ctx, int64(7)).Return(storedReport(), nil)
	e.On("EmbedBatch", ctx, []string{"A. B.", "B. C."}).Return([][]float32{{1, 0}, {0, 1}}, nil)
	cs.On("ReplaceChunks", ctx, int64(7), []report.Chunk{
		{ReportID: 7, Index: 0, Text: "A. B.", Embedding: []float32{1, 0}},
		{ReportID: 7, Index: 1, Text: "B. C.", Embedding: []float32{0, 1}},
	}).Return(nil)
	docs.On("IndexReport", ctx, mock.MatchedBy(func(d opensearch.ReportDocument) bool {
		return d.ReportID == 7 && d.FileName == "labs.pdf" && d.Summary == "Stable." &&
			d.ExtractedText == "A. B. C." && assert.ObjectsAreEqual([]string{"Metformin", "Lisinopril"}, d.Medications)
	})).Return(nil)

	res, err := ix.Index(ctx, kafka.EmbeddingJob{ReportID: 7, ExtractedText: "A. B. C.", JobID: "j"})

	require.NoError(t, err)
	assert.Equal(t, Result{ReportID: 7, Chunks: 2}, res)
	mock.AssertExpectationsForObjects(t, e, cs, docs, rr)
}

func TestIndexer_FallsBackToStoredText(t *testing.T) {
	e, cs, rr := new(MockEmbedder), new(MockChunkStore), new(MockReportReader)
	ix := newTestIndexer(e, cs, nil, rr)
	ctx := context.Background()

	rr.On("GetByID", ctx, int64(7)).Return(storedReport(), nil)
	e.On("EmbedBatch", ctx, []string{"Stored text."}).Return([][]float32{{1}}, nil)
	cs.On("ReplaceChunks", ctx, int64(7), mock.AnythingOfType("[]report.Chunk")).Return(nil)

	res, err := ix.Index(ctx, kafka.EmbeddingJob{ReportID: 7})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Chunks)
}

func TestIndexer_EmptyTextClearsChunks(t *testing.T) {
	e, cs, rr := new(MockEmbedder), new(MockChunkStore), new(MockReportReader)
	ix := newTestIndexer(e, cs, nil, rr)
	ctx := context.Background()
	rep := storedReport()
	rep.ExtractedText = nil

	rr.On("GetByID", ctx, int64(7)).Return(rep, nil)
	cs.On("ReplaceChunks", ctx, int64(7), []report.Chunk{}).Return(nil)

	res, err := ix.Index(ctx, kafka.EmbeddingJob{ReportID: 7})

	require.NoError(t, err)
	assert.Zero(t, res.Chunks)
	e.AssertNotCalled(t, "EmbedBatch", mock.Anything, mock.Anything)
}

func TestIndexer_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing report id", func(t *testing.T) {
		ix := newTestIndexer(new(MockEmbedder), new(MockChunkStore), nil, new(MockReportReader))
		_, err := ix.Index(ctx, kafka.EmbeddingJob{})
		assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	})

	t.Run("report not found", func(t *testing.T) {
		rr := new(MockReportReader)
		rr.On("GetByID", ctx, int64(9)).Return(nil, errors.New(errors.ErrCodeReportNotFound, "gone"))
		ix := newTestIndexer(new(MockEmbedder), new(MockChunkStore), nil, rr)
		_, err := ix.Index(ctx, kafka.EmbeddingJob{ReportID: 9})
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("embedding failure stores nothing", func(t *testing.T) {
		e, cs, rr := new(MockEmbedder), new(MockChunkStore), new(MockReportReader)
		rr.On("GetByID", ctx, int64(7)).Return(storedReport(), nil)
		e.On("EmbedBatch", ctx, mock.Anything).Return(nil, errors.New(errors.ErrCodeEmbeddingFailed, "ollama down"))
		ix := newTestIndexer(e, cs, nil, rr)

		_, err := ix.Index(ctx, kafka.EmbeddingJob{ReportID: 7, ExtractedText: "x."})

		assert.True(t, errors.IsCode(err, errors.ErrCodeEmbeddingFailed))
		cs.AssertNotCalled(t, "ReplaceChunks", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("short vector batch", func(t *testing.T) {
		e, cs, rr := new(MockEmbedder), new(MockChunkStore), new(MockReportReader)
		rr.On("GetByID", ctx, int64(7)).Return(storedReport(), nil)
		e.On("EmbedBatch", ctx, mock.Anything).Return([][]float32{}, nil)
		ix := newTestIndexer(e, cs, nil, rr)

		_, err := ix.Index(ctx, kafka.EmbeddingJob{ReportID: 7, ExtractedText: "x."})

		assert.True(t, errors.IsCode(err, errors.ErrCodeEmbeddingFailed))
	})

	t.Run("search index failure", func(t *testing.T) {
		e, cs, docs, rr := new(MockEmbedder), new(MockChunkStore), new(MockDocumentIndex), new(MockReportReader)
		rr.On("GetByID", ctx, int64(7)).Return(storedReport(), nil)
		e.On("EmbedBatch", ctx, mock.Anything).Return([][]float32{{1}}, nil)
		cs.On("ReplaceChunks", ctx, int64(7), mock.Anything).Return(nil)
		docs.On("IndexReport", ctx, mock.Anything).Return(errors.New(errors.ErrCodeSearchIndexFailed, "503"))
		ix := newTestIndexer(e, cs, docs, rr)

		_, err := ix.Index(ctx, kafka.EmbeddingJob{ReportID: 7, ExtractedText: "x."})

		assert.True(t, errors.IsCode(err, errors.ErrCodeSearchIndexFailed))
	})
}
