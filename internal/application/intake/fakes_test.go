package intake

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/RAG-HealthBot/internal/intelligence/llm"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// memStore is an in-memory implementation of the three report repositories
// with the same uniqueness rules as the SQL schema.
type memStore struct {
	mu      sync.Mutex
	reports []*report.Report
	meds    []*report.Medication
	links   []report.ReportMedication
	nextID  int64

	reportCreates int
	// beforeCreate runs inside Create before the uniqueness check.
	beforeCreate func(r *report.Report)
}

func newMemStore() *memStore { return &memStore{} }

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) withLinks(r *report.Report) *report.Report {
	cp := *r
	cp.Medications = nil
	for _, l := range s.links {
		if l.ReportID == r.ID {
			cp.Medications = append(cp.Medications, l)
		}
	}
	return &cp
}

func (s *memStore) Create(ctx context.Context, r *report.Report) error {
	s.mu.Lock()
	hook := s.beforeCreate
	s.mu.Unlock()
	if hook != nil {
		hook(r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reportCreates++
	if r.ContentHash != nil {
		for _, existing := range s.reports {
			if existing.ContentHash != nil && *existing.ContentHash == *r.ContentHash {
				return errors.New(errors.ErrCodeReportDuplicate, "content hash already stored")
			}
		}
	}
	r.ID = s.id()
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	s.reports = append(s.reports, &cp)
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id int64) (*report.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reports {
		if r.ID == id {
			return s.withLinks(r), nil
		}
	}
	return nil, errors.New(errors.ErrCodeReportNotFound, "report not found")
}

func (s *memStore) GetByContentHash(ctx context.Context, hash string) (*report.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reports {
		if r.ContentHash != nil && *r.ContentHash == hash {
			return s.withLinks(r), nil
		}
	}
	return nil, errors.New(errors.ErrCodeReportNotFound, "report not found")
}

func (s *memStore) GetByTextHash(ctx context.Context, hash string) (*report.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reports {
		if r.ExtractedTextHash != nil && *r.ExtractedTextHash == hash {
			return s.withLinks(r), nil
		}
	}
	return nil, errors.New(errors.ErrCodeReportNotFound, "report not found")
}

func (s *memStore) List(ctx context.Context) ([]*report.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*report.Report, 0, len(s.reports))
	for i := len(s.reports) - 1; i >= 0; i-- {
		out = append(out, s.withLinks(s.reports[i]))
	}
	return out, nil
}

func (s *memStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.reports {
		if r.ID == id {
			s.reports = append(s.reports[:i], s.reports[i+1:]...)
			return nil
		}
	}
	return errors.New(errors.ErrCodeReportNotFound, "report not found")
}

func (s *memStore) reportCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

// medStore exposes memStore as a MedicationRepository.
type medStore struct{ *memStore }

func (m medStore) GetByName(ctx context.Context, name string) (*report.Medication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, med := range m.meds {
		if strings.EqualFold(med.Name, name) {
			cp := *med
			return &cp, nil
		}
	}
	return nil, errors.New(errors.ErrCodeMedicationNotFound, "medication not found")
}

func (m medStore) FindByNamePrefix(ctx context.Context, prefix string, limit int) ([]*report.Medication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*report.Medication
	for _, med := range m.meds {
		if strings.HasPrefix(strings.ToLower(med.Name), strings.ToLower(prefix)) {
			cp := *med
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m medStore) Create(ctx context.Context, med *report.Medication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.meds {
		if strings.EqualFold(existing.Name, med.Name) {
			return errors.New(errors.ErrCodeMedicationDuplicate, "medication exists")
		}
	}
	med.ID = m.id()
	cp := *med
	m.meds = append(m.meds, &cp)
	return nil
}

func (m medStore) Rename(ctx context.Context, id int64, name string) (*report.Medication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.meds {
		if existing.ID != id && strings.EqualFold(existing.Name, name) {
			return nil, errors.New(errors.ErrCodeMedicationDuplicate, "medication exists")
		}
	}
	for _, med := range m.meds {
		if med.ID == id {
			med.Name = name
			for i := range m.links {
				if m.links[i].MedicationID == id {
					m.links[i].MedicationName = name
				}
			}
			cp := *med
			return &cp, nil
		}
	}
	return nil, errors.New(errors.ErrCodeMedicationNotFound, "medication not found")
}

func (m medStore) List(ctx context.Context) ([]*report.Medication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*report.Medication, 0, len(m.meds))
	for _, med := range m.meds {
		cp := *med
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m medStore) names() []string {
	meds, _ := m.List(context.Background())
	out := make([]string, len(meds))
	for i, med := range meds {
		out[i] = med.Name
	}
	return out
}

// linkStore exposes memStore as a ReportMedicationRepository.
type linkStore struct{ *memStore }

func (l linkStore) Create(ctx context.Context, link *report.ReportMedication) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	link.ID = l.id()
	l.links = append(l.links, *link)
	return nil
}

func (l linkStore) ListByReport(ctx context.Context, reportID int64) ([]report.ReportMedication, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []report.ReportMedication
	for _, link := range l.links {
		if link.ReportID == reportID {
			out = append(out, link)
		}
	}
	return out, nil
}

// memLocker mirrors the Redis SET NX lock.
type memLocker struct {
	mu      sync.Mutex
	held    map[string]string
	n       int
	unlocks []string
}

func newMemLocker() *memLocker { return &memLocker{held: map[string]string{}} }

func (l *memLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[name]; ok {
		return "", errors.New(errors.ErrCodeLockHeld, "lock held")
	}
	l.n++
	token := "tok-" + name
	l.held[name] = token
	return token, nil
}

func (l *memLocker) Unlock(ctx context.Context, name, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] == token {
		delete(l.held, name)
	}
	l.unlocks = append(l.unlocks, name)
	return nil
}

func (l *memLocker) isHeld(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[name]
	return ok
}

// stageLog records job updates.
type stageLog struct {
	mu     sync.Mutex
	stages []string
	errs   []string
	meta   map[string]string
}

func newStageLog() *stageLog { return &stageLog{meta: map[string]string{}} }

func (s *stageLog) SetStage(ctx context.Context, id, stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stages = append(s.stages, stage)
	return nil
}

func (s *stageLog) SetError(ctx context.Context, id, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, message)
	return nil
}

func (s *stageLog) SetMeta(ctx context.Context, id, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[key] = value
	return nil
}

// memQueue collects embedding jobs.
type memQueue struct {
	mu   sync.Mutex
	jobs []kafka.EmbeddingJob
	err  error
}

func (q *memQueue) EnqueueEmbedding(ctx context.Context, job kafka.EmbeddingJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

// scriptedLLM answers per operation and counts calls.
type scriptedLLM struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     map[string]int
	requests  []llm.CompletionRequest
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{responses: map[string]string{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (s *scriptedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.Operation]++
	s.requests = append(s.requests, req)
	if err := s.errs[req.Operation]; err != nil {
		return "", err
	}
	return s.responses[req.Operation], nil
}

func (s *scriptedLLM) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}
