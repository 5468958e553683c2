package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/turtacn/RAG-HealthBot/internal/application/indexing"
	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/database/redis"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/search/opensearch"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

const (
	defaultReportCacheTTL = 5 * time.Minute
	defaultSearchSize     = 10
	maxSearchSize         = 50
	maxExcerpts           = 20
	reportCacheKeyPrefix  = "report:"
)

// UploadArchiver stores raw upload bytes for the worker to fetch.
type UploadArchiver interface {
	Put(ctx context.Context, jobID, fileName, contentType string, data []byte) (string, error)
}

// JobTracker is the job status view the API writes and polls.
type JobTracker interface {
	Create(ctx context.Context, id, fileName string) error
	Get(ctx context.Context, id string) (*redis.Job, error)
	Fail(ctx context.Context, id, message string) error
}

type IntakeEnqueuer interface {
	EnqueueIntake(ctx context.Context, job kafka.IntakeJob) error
}

type ReportReader interface {
	GetByID(ctx context.Context, id int64) (*report.Report, error)
	List(ctx context.Context) ([]*report.Report, error)
}

// ReportPurger deletes a report and everything derived from it.
type ReportPurger interface {
	Purge(ctx context.Context, id int64) error
}

type ReportSearcher interface {
	Search(ctx context.Context, query string, size int) ([]opensearch.ReportHit, error)
}

type ExcerptRetriever interface {
	Search(ctx context.Context, reportID int64, query string, topK int) ([]report.ScoredChunk, error)
}

// ReportHandlerDeps wires the report API. Search, Retriever, Purger and
// Cache are optional.
type ReportHandlerDeps struct {
	Uploads     UploadArchiver
	Jobs        JobTracker
	Queue       IntakeEnqueuer
	Reports     ReportReader
	Search      ReportSearcher
	Retriever   ExcerptRetriever
	Purger      ReportPurger
	Cache       redis.Cache
	CacheTTL    time.Duration
	MaxBodySize int64
	Logger      logging.Logger
}

type ReportHandler struct {
	uploads   UploadArchiver
	jobs      JobTracker
	queue     IntakeEnqueuer
	reports   ReportReader
	search    ReportSearcher
	retriever ExcerptRetriever
	purger    ReportPurger
	cache     redis.Cache
	cacheTTL  time.Duration
	maxBody   int64
	logger    logging.Logger
	now       func() time.Time
}

func NewReportHandler(d ReportHandlerDeps) *ReportHandler {
	h := &ReportHandler{
		uploads:   d.Uploads,
		jobs:      d.Jobs,
		queue:     d.Queue,
		reports:   d.Reports,
		search:    d.Search,
		retriever: d.Retriever,
		purger:    d.Purger,
		cache:     d.Cache,
		cacheTTL:  d.CacheTTL,
		maxBody:   d.MaxBodySize,
		logger:    d.Logger,
		now:       time.Now,
	}
	if h.cacheTTL <= 0 {
		h.cacheTTL = defaultReportCacheTTL
	}
	if h.logger == nil {
		h.logger = logging.NewNopLogger()
	}
	return h
}

// RegisterRoutes mounts the report API on rg. uploadMW runs only in front
// of the upload endpoint.
func (h *ReportHandler) RegisterRoutes(rg *gin.RouterGroup, uploadMW ...gin.HandlerFunc) {
	upload := append(append([]gin.HandlerFunc{}, uploadMW...), h.Upload)
	rg.POST("/report", upload...)
	rg.GET("/report", h.List)
	rg.GET("/report/search", h.SearchReports)
	rg.GET("/report/jobs/:id", h.GetJob)
	rg.GET("/report/:id", h.Get)
	rg.DELETE("/report/:id", h.Delete)
	rg.GET("/report/:id/excerpts", h.Excerpts)
}

// ─── Request / response shapes ───────────────────────────────────────────────

type FileIn struct {
	FileName    string `json:"file_name"`
	MimeType    string `json:"mime_type"`
	FileContent string `json:"file_content"`
}

type UploadRequest struct {
	Files []FileIn `json:"files"`
}

type JobRef struct {
	JobID    string `json:"job_id"`
	FileName string `json:"file_name"`
}

type UploadResponse struct {
	Jobs []JobRef `json:"jobs"`
}

type JobStatusOut struct {
	JobID  string          `json:"job_id"`
	Status string          `json:"status"`
	Stage  *string         `json:"stage"`
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// MedicationOut is one medication line of a report. Text is the canonical
// medication name.
type MedicationOut struct {
	Text      string  `json:"text"`
	Dosage    *string `json:"dosage"`
	Frequency *string `json:"frequency"`
	Purpose   *string `json:"purpose"`
}

type ReportOut struct {
	ID            int64           `json:"id"`
	FileName      string          `json:"file_name"`
	Summary       string          `json:"summary"`
	ExtractedText *string         `json:"extracted_text"`
	CreatedAt     time.Time       `json:"created_at"`
	Medications   []MedicationOut `json:"medications"`
}

type SearchResponse struct {
	Query string                 `json:"query"`
	Hits  []opensearch.ReportHit `json:"hits"`
}

type ExcerptOut struct {
	Index    int     `json:"chunk_index"`
	Text     string  `json:"text"`
	Distance float64 `json:"distance"`
}

type ExcerptsResponse struct {
	ReportID int64        `json:"report_id"`
	Query    string       `json:"query"`
	Excerpts []ExcerptOut `json:"excerpts"`
	Context  string       `json:"context"`
}

func toReportOut(r *report.Report) ReportOut {
	out := ReportOut{
		ID:            r.ID,
		FileName:      r.FileName,
		Summary:       r.Summary,
		ExtractedText: r.ExtractedText,
		CreatedAt:     r.CreatedAt,
		Medications:   make([]MedicationOut, 0, len(r.Medications)),
	}
	for _, link := range r.Medications {
		out.Medications = append(out.Medications, MedicationOut{
			Text:      link.MedicationName,
			Dosage:    link.Dosage,
			Frequency: link.Frequency,
			Purpose:   link.Purpose,
		})
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ─── Handlers ────────────────────────────────────────────────────────────────

type preparedFile struct {
	name string
	mime string
	data []byte
}

// Upload archives each file, registers a queued job and publishes it. Every
// file is validated before anything is stored.
func (h *ReportHandler) Upload(c *gin.Context) {
	if h.maxBody > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	}

	var req UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if len(req.Files) == 0 {
		badRequest(c, "No files provided")
		return
	}

	files := make([]preparedFile, 0, len(req.Files))
	for i, f := range req.Files {
		name := strings.TrimSpace(f.FileName)
		if name == "" {
			badRequest(c, "files["+strconv.Itoa(i)+"]: file_name is required")
			return
		}
		data := report.DecodeContent(f.FileContent)
		if len(data) == 0 {
			badRequest(c, "files["+strconv.Itoa(i)+"]: file_content is empty or not valid base64")
			return
		}
		files = append(files, preparedFile{name: name, mime: strings.TrimSpace(f.MimeType), data: data})
	}

	ctx := c.Request.Context()
	resp := UploadResponse{Jobs: make([]JobRef, 0, len(files))}
	for _, f := range files {
		jobID := uuid.NewString()
		if err := h.submit(ctx, jobID, f); err != nil {
			h.logger.Error("failed to queue upload",
				logging.String("job_id", jobID),
				logging.String("file_name", f.name),
				logging.Err(err))
			respondError(c, err)
			return
		}
		resp.Jobs = append(resp.Jobs, JobRef{JobID: jobID, FileName: f.name})
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ReportHandler) submit(ctx context.Context, jobID string, f preparedFile) error {
	key, err := h.uploads.Put(ctx, jobID, f.name, f.mime, f.data)
	if err != nil {
		return err
	}
	if err := h.jobs.Create(ctx, jobID, f.name); err != nil {
		return err
	}

	job := kafka.IntakeJob{
		JobID:     jobID,
		RunID:     uuid.NewString(),
		FileName:  f.name,
		MimeType:  f.mime,
		ObjectKey: key,
		QueuedAt:  h.now().UTC(),
	}
	if err := h.queue.EnqueueIntake(ctx, job); err != nil {
		if failErr := h.jobs.Fail(ctx, jobID, "failed to enqueue job"); failErr != nil {
			h.logger.Warn("failed to mark job as failed", logging.String("job_id", jobID), logging.Err(failErr))
		}
		if errors.GetCode(err) == errors.CodeUnknown {
			err = errors.Wrap(err, errors.ErrCodeEnqueueFailed, "failed to enqueue intake job")
		}
		return err
	}

	h.logger.Info("upload queued",
		logging.String("job_id", jobID),
		logging.String("file_name", f.name),
		logging.String("object_key", key),
		logging.Int("bytes", len(f.data)))
	return nil
}

// GetJob reports the polled status of one intake job.
func (h *ReportHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, JobStatusOut{
		JobID:  job.ID,
		Status: string(job.Status),
		Stage:  optional(job.Stage),
		Result: job.Result,
		Error:  optional(job.Error),
	})
}

// List returns every report newest first.
func (h *ReportHandler) List(c *gin.Context) {
	reports, err := h.reports.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]ReportOut, 0, len(reports))
	for _, r := range reports {
		out = append(out, toReportOut(r))
	}
	c.JSON(http.StatusOK, out)
}

// Get returns one report, read through the cache when one is configured.
func (h *ReportHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	out, err := h.loadReport(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Delete removes a report with its medication links, chunks and search
// document, then drops the cached read.
func (h *ReportHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if h.purger == nil {
		respondError(c, errors.New(errors.ErrCodeServiceUnavailable, "report deletion is not configured"))
		return
	}
	ctx := c.Request.Context()
	if err := h.purger.Purge(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.Delete(ctx, reportCacheKeyPrefix+strconv.FormatInt(id, 10)); err != nil {
			h.logger.Warn("failed to evict cached report", logging.Int64("report_id", id), logging.Err(err))
		}
	}
	c.Status(http.StatusNoContent)
}

func (h *ReportHandler) loadReport(ctx context.Context, id int64) (ReportOut, error) {
	load := func(ctx context.Context) (interface{}, error) {
		r, err := h.reports.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return toReportOut(r), nil
	}

	if h.cache == nil {
		v, err := load(ctx)
		if err != nil {
			return ReportOut{}, err
		}
		return v.(ReportOut), nil
	}

	var out ReportOut
	err := h.cache.GetOrSet(ctx, reportCacheKeyPrefix+strconv.FormatInt(id, 10), &out, h.cacheTTL, load)
	if errors.Is(err, redis.ErrCacheMiss) {
		return ReportOut{}, errors.New(errors.ErrCodeReportNotFound, "report not found")
	}
	return out, err
}

// SearchReports runs a full-text query over indexed reports.
func (h *ReportHandler) SearchReports(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		badRequest(c, "query parameter q is required")
		return
	}
	if h.search == nil {
		respondError(c, errors.New(errors.ErrCodeServiceUnavailable, "full-text search is not configured"))
		return
	}
	hits, err := h.search.Search(c.Request.Context(), q, queryInt(c, "size", defaultSearchSize, maxSearchSize))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SearchResponse{Query: q, Hits: hits})
}

// Excerpts returns the report chunks closest to q.
func (h *ReportHandler) Excerpts(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		badRequest(c, "query parameter q is required")
		return
	}
	if h.retriever == nil {
		respondError(c, errors.New(errors.ErrCodeServiceUnavailable, "excerpt retrieval is not configured"))
		return
	}

	ctx := c.Request.Context()
	if _, err := h.loadReport(ctx, id); err != nil {
		respondError(c, err)
		return
	}

	hits, err := h.retriever.Search(ctx, id, q, queryInt(c, "top_k", indexing.DefaultTopK, maxExcerpts))
	if err != nil {
		respondError(c, err)
		return
	}
	resp := ExcerptsResponse{
		ReportID: id,
		Query:    q,
		Excerpts: make([]ExcerptOut, 0, len(hits)),
		Context:  indexing.FormatExcerpts(hits),
	}
	for _, hit := range hits {
		resp.Excerpts = append(resp.Excerpts, ExcerptOut{Index: hit.Index, Text: hit.Text, Distance: hit.Distance})
	}
	c.JSON(http.StatusOK, resp)
}
