package intake

import (
	"context"
	"strconv"
	"time"

	"github.com/turtacn/RAG-HealthBot/internal/domain/medication"
	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	prom "github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// Pipeline stages, written to the job before each step runs.
const (
	StageLockAcquisition  = "lock_acquisition"
	StageDupCheckContent  = "dup_check_content"
	StageOCR              = "ocr"
	StageDupCheckText     = "dup_check_text"
	StageSummarize        = "summarize"
	StageExtractEntities  = "extract_entities"
	StagePersist          = "persist"
	StageEmbeddingEnqueue = "embeddings_enqueue"
	StageCompleted        = "completed"
	StageFailedTerminal   = "failed"
	StageDuplicateSkipped = "duplicate_skipped"
)

// MetaExistingReportID names the job attribute set on duplicate uploads.
const MetaExistingReportID = "existing_report_id"

// unlockTimeout bounds the lock release, which runs even after ctx is done.
const unlockTimeout = 5 * time.Second

// RunStatus is the final outcome of a run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunRequest is one document to ingest. JobID may be empty when no job
// record exists (CLI ingestion).
type RunRequest struct {
	FileName      string
	MimeType      string
	Base64Content string
	RunID         string
	JobID         string
}

// RunResult is returned by Run. Duplicate results carry the stored
// report's summary and medications.
type RunResult struct {
	Status      RunStatus            `json:"status"`
	ReportID    int64                `json:"report_id,omitempty"`
	Summary     string               `json:"summary,omitempty"`
	Medications []medication.Mention `json:"medications,omitempty"`
	Reason      ReasonCode           `json:"reason_code,omitempty"`
	Error       string               `json:"error,omitempty"`
	Duplicate   bool                 `json:"duplicate,omitempty"`
}

// Locker takes the per-document processing lock.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, name, token string) error
}

// StageRecorder receives run metadata for polling clients.
type StageRecorder interface {
	SetStage(ctx context.Context, id, stage string) error
	SetError(ctx context.Context, id, message string) error
	SetMeta(ctx context.Context, id, key, value string) error
}

// DuplicateFinder looks up a stored report by fingerprint.
type DuplicateFinder interface {
	Find(ctx context.Context, contentFP, textFP *string) (*report.Report, error)
}

// EmbeddingEnqueuer schedules chunk embedding for a stored report.
type EmbeddingEnqueuer interface {
	EnqueueEmbedding(ctx context.Context, job kafka.EmbeddingJob) error
}

// Deps wires an Orchestrator. Recorder and Metrics may be nil.
type Deps struct {
	Locker    Locker
	Recorder  StageRecorder
	Dedup     DuplicateFinder
	OCR       OCRExecutor
	Summarize Summarizer
	Extract   EntityExtractor
	Persist   Persister
	Enqueuer  EmbeddingEnqueuer
	Metrics   *prom.AppMetrics
	Logger    logging.Logger
	LockTTL   time.Duration
}

// Orchestrator runs the intake state machine. Runs for the same content
// are serialized by the lock; the loser fails fast.
type Orchestrator struct {
	locker    Locker
	recorder  StageRecorder
	dedup     DuplicateFinder
	ocr       OCRExecutor
	summarize Summarizer
	extract   EntityExtractor
	persist   Persister
	enqueuer  EmbeddingEnqueuer
	metrics   *prom.AppMetrics
	logger    logging.Logger
	lockTTL   time.Duration
	now       func() time.Time
}

func NewOrchestrator(d Deps) *Orchestrator {
	ttl := d.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	logger := d.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Orchestrator{
		locker:    d.Locker,
		recorder:  d.Recorder,
		dedup:     d.Dedup,
		ocr:       d.OCR,
		summarize: d.Summarize,
		extract:   d.Extract,
		persist:   d.Persist,
		enqueuer:  d.Enqueuer,
		metrics:   d.Metrics,
		logger:    logger,
		lockTTL:   ttl,
		now:       time.Now,
	}
}

// run carries per-run state through the helpers.
type run struct {
	req    RunRequest
	start  time.Time
	logger logging.Logger
}

// Run executes the pipeline for req. It never panics on stage failures and
// always releases the lock it took.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) RunResult {
	r := &run{
		req:   req,
		start: o.now(),
		logger: o.logger.With(
			logging.String("run_id", req.RunID),
			logging.String("job_id", req.JobID),
			logging.String("file_name", req.FileName)),
	}

	o.setStage(ctx, r, StageLockAcquisition)
	contentFP := report.ContentFingerprint(req.Base64Content)
	lockName := req.FileName
	if contentFP != nil {
		lockName = *contentFP
	}

	token, err := o.locker.TryLock(ctx, lockName, o.lockTTL)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeLockHeld) {
			prom.RecordLockContention(o.metrics)
			r.logger.Warn("document already being processed", logging.String("lock", lockName))
		}
		return o.fail(ctx, r, ReasonProcessingError, err)
	}
	defer o.release(ctx, r, lockName, token)

	o.setStage(ctx, r, StageDupCheckContent)
	if contentFP != nil {
		existing, err := o.dedup.Find(ctx, contentFP, nil)
		if err != nil {
			return o.fail(ctx, r, ReasonProcessingError, err)
		}
		if existing != nil {
			return o.duplicate(ctx, r, existing, prom.CheckpointContent)
		}
	}

	o.setStage(ctx, r, StageOCR)
	stageStart := o.now()
	ocr := o.ocr.Execute(ctx, OCRInput{FileName: req.FileName, Base64Content: req.Base64Content, MimeType: req.MimeType})
	prom.RecordStage(o.metrics, StageOCR, ocr.OK(), o.now().Sub(stageStart))
	if !ocr.OK() {
		return o.fail(ctx, r, ocr.Reason, ocr.Err)
	}
	text := ocr.Output.ExtractedText
	textFP := report.TextFingerprint(text)

	o.setStage(ctx, r, StageDupCheckText)
	existing, err := o.dedup.Find(ctx, nil, &textFP)
	if err != nil {
		return o.fail(ctx, r, ReasonProcessingError, err)
	}
	if existing != nil {
		return o.duplicate(ctx, r, existing, prom.CheckpointText)
	}

	o.setStage(ctx, r, StageSummarize)
	stageStart = o.now()
	summary := o.summarize.Execute(ctx, text)
	prom.RecordStage(o.metrics, StageSummarize, summary.OK(), o.now().Sub(stageStart))
	if !summary.OK() {
		return o.fail(ctx, r, ReasonProcessingError, summary.Err)
	}

	o.setStage(ctx, r, StageExtractEntities)
	stageStart = o.now()
	extracted := o.extract.Execute(ctx, text)
	prom.RecordStage(o.metrics, StageExtractEntities, extracted.OK(), o.now().Sub(stageStart))
	if !extracted.OK() {
		return o.fail(ctx, r, ReasonProcessingError, extracted.Err)
	}
	merged := medication.Merge(extracted.Output)

	o.setStage(ctx, r, StagePersist)
	saved, err := o.persist.Save(ctx, SaveRequest{
		FileName:      req.FileName,
		Summary:       summary.Output,
		ExtractedText: text,
		ContentHash:   contentFP,
		TextHash:      &textFP,
		Medications:   merged,
	})
	if err != nil {
		return o.fail(ctx, r, ReasonProcessingError, err)
	}
	if saved.Existing {
		// The concurrent writer owns embedding for its record.
		o.setMeta(ctx, r, MetaExistingReportID, strconv.FormatInt(saved.Report.ID, 10))
		return o.finish(ctx, r, RunResult{
			Status:      RunCompleted,
			ReportID:    saved.Report.ID,
			Summary:     saved.Report.Summary,
			Medications: saved.Report.Mentions(),
			Reason:      ReasonNone,
			Duplicate:   true,
		}, prom.OutcomeDuplicate)
	}

	o.setStage(ctx, r, StageEmbeddingEnqueue)
	if err := o.enqueuer.EnqueueEmbedding(ctx, kafka.EmbeddingJob{
		ReportID:      saved.Report.ID,
		FileName:      req.FileName,
		ExtractedText: text,
		JobID:         req.JobID,
		QueuedAt:      o.now().UTC(),
	}); err != nil {
		return o.fail(ctx, r, ReasonProcessingError, err)
	}

	return o.finish(ctx, r, RunResult{
		Status:      RunCompleted,
		ReportID:    saved.Report.ID,
		Summary:     summary.Output,
		Medications: merged,
		Reason:      ReasonNone,
	}, prom.OutcomeSucceeded)
}

func (o *Orchestrator) duplicate(ctx context.Context, r *run, existing *report.Report, checkpoint string) RunResult {
	prom.RecordDuplicate(o.metrics, checkpoint)
	o.setStage(ctx, r, StageDuplicateSkipped)
	o.setMeta(ctx, r, MetaExistingReportID, strconv.FormatInt(existing.ID, 10))
	r.logger.Info("duplicate upload, reusing stored report",
		logging.Int64("report_id", existing.ID),
		logging.String("checkpoint", checkpoint))

	res := RunResult{
		Status:      RunCompleted,
		ReportID:    existing.ID,
		Summary:     existing.Summary,
		Medications: existing.Mentions(),
		Reason:      ReasonNone,
		Duplicate:   true,
	}
	prom.RecordIntakeRun(o.metrics, prom.OutcomeDuplicate, o.now().Sub(r.start))
	return res
}

func (o *Orchestrator) finish(ctx context.Context, r *run, res RunResult, outcome string) RunResult {
	o.setStage(ctx, r, StageCompleted)
	elapsed := o.now().Sub(r.start)
	prom.RecordIntakeRun(o.metrics, outcome, elapsed)
	r.logger.Info("intake run completed",
		logging.Int64("report_id", res.ReportID),
		logging.Int("medications", len(res.Medications)),
		logging.Duration("elapsed", elapsed))
	return res
}

func (o *Orchestrator) fail(ctx context.Context, r *run, reason ReasonCode, err error) RunResult {
	if reason == "" || reason == ReasonNone {
		reason = ReasonProcessingError
	}
	if err == nil {
		err = errors.New(errors.ErrCodeStageFailed, "stage failed without error detail")
	}
	msg := err.Error()

	o.setStage(ctx, r, StageFailedTerminal)
	if o.recorder != nil && r.req.JobID != "" {
		if werr := o.recorder.SetError(ctx, r.req.JobID, msg); werr != nil {
			r.logger.Warn("failed to record run error", logging.Err(werr))
		}
	}
	prom.RecordIntakeRun(o.metrics, prom.OutcomeFailed, o.now().Sub(r.start))
	r.logger.Error("intake run failed",
		logging.String("reason_code", string(reason)),
		logging.String("error_code", string(errors.GetCode(err))),
		logging.Err(err))
	return RunResult{Status: RunFailed, Reason: reason, Error: msg}
}

func (o *Orchestrator) release(ctx context.Context, r *run, name, token string) {
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
	defer cancel()
	if err := o.locker.Unlock(uctx, name, token); err != nil {
		r.logger.Warn("failed to release processing lock", logging.String("lock", name), logging.Err(err))
	}
}

func (o *Orchestrator) setStage(ctx context.Context, r *run, stage string) {
	if o.recorder == nil || r.req.JobID == "" {
		return
	}
	if err := o.recorder.SetStage(ctx, r.req.JobID, stage); err != nil {
		r.logger.Warn("failed to record stage", logging.String("stage", stage), logging.Err(err))
	}
}

func (o *Orchestrator) setMeta(ctx context.Context, r *run, key, value string) {
	if o.recorder == nil || r.req.JobID == "" {
		return
	}
	if err := o.recorder.SetMeta(ctx, r.req.JobID, key, value); err != nil {
		r.logger.Warn("failed to record run metadata", logging.String("key", key), logging.Err(err))
	}
}
