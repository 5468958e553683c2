package intake

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/RAG-HealthBot/internal/domain/medication"
	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/internal/testutil"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

const extractionJSON = `{"medications":[
	{"text":"Metformin 500 mg","dosage":"500mg","frequency":"twice daily","purpose":"type 2 diabetes"},
	{"text":"Lisinopril","dosage":"10mg","frequency":"once daily","purpose":"hypertension"},
	{"text":"metformin","dosage":null,"start_date":"2024-01-01"}
]}`

type OrchestratorSuite struct {
	suite.Suite
	store  *memStore
	locker *memLocker
	stages *stageLog
	queue  *memQueue
	llm    *scriptedLLM
	log    *testutil.MockLogger
	orch   *Orchestrator
	pdf    string
}

func (s *OrchestratorSuite) SetupTest() {
	s.store = newMemStore()
	s.locker = newMemLocker()
	s.stages = newStageLog()
	s.queue = &memQueue{}
	s.llm = newScriptedLLM()
	s.llm.responses["summarize"] = "Type 2 diabetes and hypertension, stable."
	s.llm.responses["extract"] = extractionJSON
	s.log = testutil.NewMockLogger()

	s.orch = NewOrchestrator(Deps{
		Locker:    s.locker,
		Recorder:  s.stages,
		Dedup:     report.NewDedupLookup(s.store),
		OCR:       NewOCRStage(s.llm, "vision", s.log),
		Summarize: NewSummarizeStage(s.llm, 0.2),
		Extract:   NewExtractStage(s.llm),
		Persist:   NewGateway(s.store, medStore{s.store}, linkStore{s.store}, nil, s.log),
		Enqueuer:  s.queue,
		Logger:    s.log,
	})
	s.pdf = encode(testutil.BuildTextPDF([]string{
		"Discharge summary",
		"Metformin 500 mg twice daily for type 2 diabetes",
		"Lisinopril 10 mg once daily for hypertension",
	}))
}

func (s *OrchestratorSuite) request(jobID string) RunRequest {
	return RunRequest{FileName: "discharge.pdf", MimeType: "application/pdf", Base64Content: s.pdf, RunID: "run-" + jobID, JobID: jobID}
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) TestEndToEndPDF() {
	res := s.orch.Run(context.Background(), s.request("job-1"))

	s.Require().Equal(RunCompleted, res.Status, res.Error)
	s.Equal(ReasonNone, res.Reason)
	s.False(res.Duplicate)
	s.NotZero(res.ReportID)
	s.Equal("Type 2 diabetes and hypertension, stable.", res.Summary)

	s.Require().Len(res.Medications, 2)
	s.Equal("Metformin", res.Medications[0].Name)
	s.Equal("500mg", medication.Deref(res.Medications[0].Dosage))
	s.Equal("2024-01-01", medication.Deref(res.Medications[0].StartDate))
	s.Equal("Lisinopril", res.Medications[1].Name)

	s.Equal([]string{"Lisinopril", "Metformin"}, medStore{s.store}.names())
	s.Require().Len(s.queue.jobs, 1)
	s.Equal(res.ReportID, s.queue.jobs[0].ReportID)
	s.Equal("job-1", s.queue.jobs[0].JobID)
	s.Contains(s.queue.jobs[0].ExtractedText, "Lisinopril 10 mg once daily")

	s.Equal([]string{
		StageLockAcquisition, StageDupCheckContent, StageOCR, StageDupCheckText,
		StageSummarize, StageExtractEntities, StagePersist, StageEmbeddingEnqueue, StageCompleted,
	}, s.stages.stages)
	s.Zero(s.llm.calls["ocr"])
	s.Empty(s.locker.held, "lock must be released")
}

func (s *OrchestratorSuite) TestReuploadReturnsSameReportWithoutStages() {
	first := s.orch.Run(context.Background(), s.request("job-1"))
	s.Require().Equal(RunCompleted, first.Status)
	callsBefore := s.llm.total()
	s.stages.stages = nil

	second := s.orch.Run(context.Background(), s.request("job-2"))

	s.Equal(RunCompleted, second.Status)
	s.True(second.Duplicate)
	s.Equal(first.ReportID, second.ReportID)
	s.Equal(first.Summary, second.Summary)
	s.Equal(first.Medications, second.Medications)
	s.Equal(callsBefore, s.llm.total(), "no stage may run for a duplicate")
	s.Len(s.queue.jobs, 1)
	s.Equal(1, s.store.reportCount())
	s.Equal([]string{StageLockAcquisition, StageDupCheckContent, StageDuplicateSkipped}, s.stages.stages)
	s.Equal(strconv.FormatInt(first.ReportID, 10), s.stages.meta[MetaExistingReportID])
}

func (s *OrchestratorSuite) TestTextDuplicateSkipsModelStages() {
	first := s.orch.Run(context.Background(), s.request("job-1"))
	s.Require().Equal(RunCompleted, first.Status)

	// Same text, different bytes: a re-rendered PDF with an extra empty page.
	other := encode(testutil.BuildTextPDF([]string{
		"Discharge summary",
		"Metformin 500 mg twice daily for type 2 diabetes",
		"Lisinopril 10 mg once daily for hypertension",
	}, []string{}))
	s.Require().NotEqual(s.pdf, other)

	res := s.orch.Run(context.Background(), RunRequest{FileName: "copy.pdf", MimeType: "application/pdf", Base64Content: other, JobID: "job-2"})

	s.Equal(RunCompleted, res.Status)
	s.True(res.Duplicate)
	s.Equal(first.ReportID, res.ReportID)
	s.Equal(1, s.llm.calls["summarize"])
	s.Equal(1, s.llm.calls["extract"])
	s.Equal(1, s.store.reportCount())
}

func (s *OrchestratorSuite) TestLockContentionFailsWithoutTouchingStore() {
	fp := report.ContentFingerprint(s.pdf)
	s.Require().NotNil(fp)
	_, err := s.locker.TryLock(context.Background(), *fp, 0)
	s.Require().NoError(err)

	res := s.orch.Run(context.Background(), s.request("job-1"))

	s.Equal(RunFailed, res.Status)
	s.Equal(ReasonProcessingError, res.Reason)
	s.NotEmpty(res.Error)
	s.Zero(s.store.reportCreates)
	s.Zero(s.llm.total())
	s.True(s.locker.isHeld(*fp), "contended lock must stay with its owner")
	s.Empty(s.locker.unlocks)
	s.True(s.log.HasMessage("warn", "document already being processed"))
	s.Equal(StageFailedTerminal, s.stages.stages[len(s.stages.stages)-1])
}

func (s *OrchestratorSuite) TestUndecodableContentLocksOnFileName() {
	res := s.orch.Run(context.Background(), RunRequest{FileName: "bad.pdf", MimeType: "application/pdf", Base64Content: "%%%", JobID: "j"})

	s.Equal(RunFailed, res.Status)
	s.Equal(ReasonProcessingError, res.Reason)
	s.Equal([]string{"bad.pdf"}, s.locker.unlocks)
}

func (s *OrchestratorSuite) TestInvalidMimeType() {
	res := s.orch.Run(context.Background(), RunRequest{
		FileName:      "notes.txt",
		MimeType:      "text/plain",
		Base64Content: encode([]byte("plain text")),
		JobID:         "job-1",
	})

	s.Equal(RunFailed, res.Status)
	s.Equal(ReasonInvalidInput, res.Reason)
	s.Zero(s.store.reportCreates)
	s.Zero(s.llm.total())
	s.Require().Len(s.stages.errs, 1)
	s.Equal(res.Error, s.stages.errs[0])
	s.Empty(s.locker.held)
}

func (s *OrchestratorSuite) TestSummaryFailureStopsBeforePersist() {
	s.llm.errs["summarize"] = errors.New(errors.ErrCodeLLMCallFailed, "rate limited")

	res := s.orch.Run(context.Background(), s.request("job-1"))

	s.Equal(RunFailed, res.Status)
	s.Equal(ReasonProcessingError, res.Reason)
	s.Contains(res.Error, "rate limited")
	s.Zero(s.llm.calls["extract"])
	s.Zero(s.store.reportCreates)
}

func (s *OrchestratorSuite) TestExtractionParseFailure() {
	s.llm.responses["extract"] = "I found metformin"

	res := s.orch.Run(context.Background(), s.request("job-1"))

	s.Equal(RunFailed, res.Status)
	s.Equal(ReasonProcessingError, res.Reason)
	s.Zero(s.store.reportCreates)
}

func (s *OrchestratorSuite) TestEnqueueFailureFailsRunAfterPersist() {
	s.queue.err = errors.New(errors.ErrCodeEnqueueFailed, "broker down")

	res := s.orch.Run(context.Background(), s.request("job-1"))

	s.Equal(RunFailed, res.Status)
	s.Equal(ReasonProcessingError, res.Reason)
	s.Equal(1, s.store.reportCount(), "report row is kept")
	s.Empty(s.locker.held)
}

func (s *OrchestratorSuite) TestConcurrentWriterWinsPersist() {
	hash := report.ContentFingerprint(s.pdf)
	s.store.beforeCreate = func(r *report.Report) {
		s.store.beforeCreate = nil
		_ = s.store.Create(context.Background(), &report.Report{FileName: "winner.pdf", Summary: "winner summary", ContentHash: hash})
	}

	res := s.orch.Run(context.Background(), s.request("job-1"))

	s.Equal(RunCompleted, res.Status)
	s.True(res.Duplicate)
	s.Equal("winner summary", res.Summary)
	s.Equal(1, s.store.reportCount())
	s.Empty(s.queue.jobs, "the winner owns embedding")
	s.Equal(strconv.FormatInt(res.ReportID, 10), s.stages.meta[MetaExistingReportID])
}

func (s *OrchestratorSuite) TestNoJobIDSkipsRecorder() {
	res := s.orch.Run(context.Background(), RunRequest{FileName: "cli.pdf", MimeType: "application/pdf", Base64Content: s.pdf})

	s.Equal(RunCompleted, res.Status)
	s.Empty(s.stages.stages)
}

func TestOrchestrator_ConcurrentSameUploadSinglePersist(t *testing.T) {
	store := newMemStore()
	locker := newMemLocker()
	c := newScriptedLLM()
	c.responses["summarize"] = "s"
	c.responses["extract"] = `{"medications":[]}`
	queue := &memQueue{}
	log := testutil.NewMockLogger()
	orch := NewOrchestrator(Deps{
		Locker:    locker,
		Dedup:     report.NewDedupLookup(store),
		OCR:       NewOCRStage(c, "vision", log),
		Summarize: NewSummarizeStage(c, 0.2),
		Extract:   NewExtractStage(c),
		Persist:   NewGateway(store, medStore{store}, linkStore{store}, nil, log),
		Enqueuer:  queue,
		Logger:    log,
	})
	payload := encode(testutil.BuildTextPDF([]string{"Atorvastatin 20 mg nightly"}))

	const n = 8
	results := make([]RunResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = orch.Run(context.Background(), RunRequest{FileName: "x.pdf", MimeType: "application/pdf", Base64Content: payload})
		}(i)
	}
	wg.Wait()

	var ids []int64
	for _, r := range results {
		if r.Status == RunCompleted {
			ids = append(ids, r.ReportID)
		} else {
			assert.Equal(t, ReasonProcessingError, r.Reason)
		}
	}
	require.NotEmpty(t, ids)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, store.reportCount())
	assert.Len(t, queue.jobs, 1)
}
