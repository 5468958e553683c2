package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// Job statuses reported by GetJob.
const (
	JobQueued   = "queued"
	JobStarted  = "started"
	JobFinished = "finished"
	JobFailed   = "failed"
)

// UploadFile is one document to upload.
type UploadFile struct {
	FileName string
	MimeType string
	Data     []byte
}

type uploadFileBody struct {
	FileName    string `json:"file_name"`
	MimeType    string `json:"mime_type"`
	FileContent string `json:"file_content"`
}

// JobRef identifies a queued intake job.
type JobRef struct {
	JobID    string `json:"job_id"`
	FileName string `json:"file_name"`
}

// Job is the status of one intake job. Result holds the pipeline result
// once the job has finished or failed.
type Job struct {
	JobID  string          `json:"job_id"`
	Status string          `json:"status"`
	Stage  *string         `json:"stage"`
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// Done reports whether the job reached a terminal status.
func (j *Job) Done() bool { return j.Status == JobFinished || j.Status == JobFailed }

// RunResult is the pipeline outcome stored on a finished job.
type RunResult struct {
	Status      string          `json:"status"`
	ReportID    int64           `json:"report_id,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	Medications []RunMedication `json:"medications,omitempty"`
	Reason      string          `json:"reason_code,omitempty"`
	Error       string          `json:"error,omitempty"`
	Duplicate   bool            `json:"duplicate,omitempty"`
}

type RunMedication struct {
	Name      string  `json:"name"`
	Dosage    *string `json:"dosage,omitempty"`
	Frequency *string `json:"frequency,omitempty"`
	StartDate *string `json:"start_date,omitempty"`
	EndDate   *string `json:"end_date,omitempty"`
	Purpose   *string `json:"purpose,omitempty"`
}

// RunResult decodes the job result. It returns nil while the job is running.
func (j *Job) RunResult() (*RunResult, error) {
	if len(j.Result) == 0 || string(j.Result) == "null" {
		return nil, nil
	}
	var r RunResult
	if err := json.Unmarshal(j.Result, &r); err != nil {
		return nil, fmt.Errorf("decode job result: %w", err)
	}
	return &r, nil
}

type Medication struct {
	Text      string  `json:"text"`
	Dosage    *string `json:"dosage"`
	Frequency *string `json:"frequency"`
	Purpose   *string `json:"purpose"`
}

type Report struct {
	ID            int64        `json:"id"`
	FileName      string       `json:"file_name"`
	Summary       string       `json:"summary"`
	ExtractedText *string      `json:"extracted_text"`
	CreatedAt     time.Time    `json:"created_at"`
	Medications   []Medication `json:"medications"`
}

type SearchHit struct {
	ReportID   int64    `json:"report_id"`
	FileName   string   `json:"file_name"`
	Summary    string   `json:"summary"`
	Score      float64  `json:"score"`
	Highlights []string `json:"highlights,omitempty"`
}

type Excerpt struct {
	Index    int     `json:"chunk_index"`
	Text     string  `json:"text"`
	Distance float64 `json:"distance"`
}

// Excerpts are the chunks of one report closest to a question. Context is
// the prompt-ready rendering of the excerpts.
type Excerpts struct {
	ReportID int64     `json:"report_id"`
	Query    string    `json:"query"`
	Excerpts []Excerpt `json:"excerpts"`
	Context  string    `json:"context"`
}

// ReportsClient covers the /api/report endpoints.
type ReportsClient struct {
	client *Client
}

// Upload queues files for intake and returns one job per file, in order.
func (r *ReportsClient) Upload(ctx context.Context, files ...UploadFile) ([]JobRef, error) {
	if len(files) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "no files to upload")
	}
	body := struct {
		Files []uploadFileBody `json:"files"`
	}{Files: make([]uploadFileBody, len(files))}
	for i, f := range files {
		body.Files[i] = uploadFileBody{
			FileName:    f.FileName,
			MimeType:    f.MimeType,
			FileContent: base64.StdEncoding.EncodeToString(f.Data),
		}
	}

	var resp struct {
		Jobs []JobRef `json:"jobs"`
	}
	if err := r.client.post(ctx, "/api/report", body, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

func (r *ReportsClient) GetJob(ctx context.Context, jobID string) (*Job, error) {
	if jobID == "" {
		return nil, errors.New(errors.ErrCodeValidation, "job id is required")
	}
	var job Job
	if err := r.client.get(ctx, "/api/report/jobs/"+url.PathEscape(jobID), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// WaitForJob polls GetJob every interval until the job is done or ctx ends.
func (r *ReportsClient) WaitForJob(ctx context.Context, jobID string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := r.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.Done() {
			return job, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return job, ctx.Err()
		}
	}
}

func (r *ReportsClient) Get(ctx context.Context, id int64) (*Report, error) {
	var rep Report
	if err := r.client.get(ctx, "/api/report/"+strconv.FormatInt(id, 10), &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// Delete removes a report with its chunks and search document.
func (r *ReportsClient) Delete(ctx context.Context, id int64) error {
	return r.client.delete(ctx, "/api/report/"+strconv.FormatInt(id, 10))
}

// List returns every report, newest first.
func (r *ReportsClient) List(ctx context.Context) ([]Report, error) {
	var reps []Report
	if err := r.client.get(ctx, "/api/report", &reps); err != nil {
		return nil, err
	}
	return reps, nil
}

// Search runs a full-text query over report summaries. size <= 0 uses the
// server default.
func (r *ReportsClient) Search(ctx context.Context, query string, size int) ([]SearchHit, error) {
	q := url.Values{"q": {query}}
	if size > 0 {
		q.Set("size", strconv.Itoa(size))
	}
	var resp struct {
		Hits []SearchHit `json:"hits"`
	}
	if err := r.client.get(ctx, "/api/report/search?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Hits, nil
}

// Excerpts retrieves the chunks of report id most relevant to query.
func (r *ReportsClient) Excerpts(ctx context.Context, id int64, query string, topK int) (*Excerpts, error) {
	q := url.Values{"q": {query}}
	if topK > 0 {
		q.Set("top_k", strconv.Itoa(topK))
	}
	var ex Excerpts
	path := fmt.Sprintf("/api/report/%d/excerpts?%s", id, q.Encode())
	if err := r.client.get(ctx, path, &ex); err != nil {
		return nil, err
	}
	return &ex, nil
}
