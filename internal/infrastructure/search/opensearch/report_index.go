package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// DefaultSearchSize caps Search results when the caller passes size <= 0.
const DefaultSearchSize = 10

// reportMapping indexes prose fields with the english analyzer and keeps
// medication names both analyzed and as exact keywords.
const reportMapping = `{
  "settings": {"number_of_shards": 1, "number_of_replicas": 0},
  "mappings": {
    "properties": {
      "report_id":      {"type": "long"},
      "file_name":      {"type": "text", "fields": {"raw": {"type": "keyword", "ignore_above": 512}}},
      "summary":        {"type": "text", "analyzer": "english"},
      "extracted_text": {"type": "text", "analyzer": "english"},
      "medications":    {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "created_at":     {"type": "date"}
    }
  }
}`

// ReportDocument is the full-text projection of a persisted report.
type ReportDocument struct {
	ReportID      int64     `json:"report_id"`
	FileName      string    `json:"file_name"`
	Summary       string    `json:"summary"`
	ExtractedText string    `json:"extracted_text"`
	Medications   []string  `json:"medications"`
	CreatedAt     time.Time `json:"created_at"`
}

// ReportHit is one full-text match.
type ReportHit struct {
	ReportID   int64    `json:"report_id"`
	FileName   string   `json:"file_name"`
	Summary    string   `json:"summary"`
	Score      float64  `json:"score"`
	Highlights []string `json:"highlights,omitempty"`
}

// ReportIndex maintains the report full-text index.
type ReportIndex struct {
	client *Client
	index  string
	logger logging.Logger
}

// NewReportIndex returns a ReportIndex writing to the named index.
func NewReportIndex(client *Client, index string, logger logging.Logger) *ReportIndex {
	return &ReportIndex{client: client, index: index, logger: logger}
}

// Index returns the index name.
func (r *ReportIndex) Index() string { return r.index }

// EnsureIndex creates the index with its mapping when it does not exist.
func (r *ReportIndex) EnsureIndex(ctx context.Context) error {
	existsResp, err := opensearchapi.IndicesExistsRequest{Index: []string{r.index}}.Do(ctx, r.client.SDK())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "failed to check index existence")
	}
	existsResp.Body.Close()

	if existsResp.StatusCode == 200 {
		return nil
	}
	if existsResp.StatusCode != 404 {
		return errors.Newf(errors.ErrCodeSearchIndexFailed, "unexpected status %d checking index %s", existsResp.StatusCode, r.index)
	}

	resp, err := opensearchapi.IndicesCreateRequest{
		Index: r.index,
		Body:  strings.NewReader(reportMapping),
	}.Do(ctx, r.client.SDK())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "failed to create index")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		// A concurrent creator may have won.
		if resp.StatusCode == 400 && bodyContains(resp.Body, "resource_already_exists_exception") {
			return nil
		}
		return errors.Newf(errors.ErrCodeSearchIndexFailed, "create index %s returned status %d", r.index, resp.StatusCode)
	}

	r.logger.Info("Report index created", logging.String("index", r.index))
	return nil
}

// IndexReport upserts doc under its report id.
func (r *ReportIndex) IndexReport(ctx context.Context, doc ReportDocument) error {
	if doc.ReportID <= 0 {
		return errors.New(errors.ErrCodeValidation, "report id is required")
	}
	if doc.Medications == nil {
		doc.Medications = []string{}
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal report document")
	}

	resp, err := opensearchapi.IndexRequest{
		Index:      r.index,
		DocumentID: strconv.FormatInt(doc.ReportID, 10),
		Body:       bytes.NewReader(body),
		Refresh:    "wait_for",
	}.Do(ctx, r.client.SDK())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "failed to index report")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return errors.Newf(errors.ErrCodeSearchIndexFailed, "index report %d returned status %d", doc.ReportID, resp.StatusCode)
	}

	r.logger.Debug("Report indexed",
		logging.String("index", r.index),
		logging.Int64("report_id", doc.ReportID))
	return nil
}

// DeleteReport removes the report document. A missing document is not an error.
func (r *ReportIndex) DeleteReport(ctx context.Context, reportID int64) error {
	resp, err := opensearchapi.DeleteRequest{
		Index:      r.index,
		DocumentID: strconv.FormatInt(reportID, 10),
		Refresh:    "true",
	}.Do(ctx, r.client.SDK())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "failed to delete report document")
	}
	defer resp.Body.Close()

	if resp.IsError() && resp.StatusCode != 404 {
		return errors.Newf(errors.ErrCodeSearchIndexFailed, "delete report %d returned status %d", reportID, resp.StatusCode)
	}
	return nil
}

// Search runs a multi_match query over file name, summary, text and
// medication names. Empty queries return no hits.
func (r *ReportIndex) Search(ctx context.Context, query string, size int) ([]ReportHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []ReportHit{}, nil
	}
	if size <= 0 {
		size = DefaultSearchSize
	}

	dsl := map[string]interface{}{
		"size":    size,
		"_source": []string{"report_id", "file_name", "summary"},
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query,
				"fields":    []string{"file_name^2", "summary^2", "extracted_text", "medications^3"},
				"type":      "best_fields",
				"fuzziness": "AUTO",
			},
		},
		"highlight": map[string]interface{}{
			"fields": map[string]interface{}{
				"extracted_text": map[string]interface{}{"fragment_size": 160, "number_of_fragments": 2},
			},
		},
	}
	body, err := json.Marshal(dsl)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal query DSL")
	}

	start := time.Now()
	resp, err := opensearchapi.SearchRequest{
		Index: []string{r.index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, r.client.SDK())
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.New(errors.ErrCodeTimeout, "search request timed out")
		}
		return nil, errors.Wrap(err, errors.ErrCodeSearchIndexFailed, "search request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, errors.Newf(errors.ErrCodeSearchIndexFailed, "search returned status %d", resp.StatusCode)
	}

	hits, err := parseSearchResponse(resp.Body)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("Report search executed",
		logging.String("index", r.index),
		logging.Int64("took_ms", time.Since(start).Milliseconds()),
		logging.Int("hits", len(hits)))
	return hits, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score     float64             `json:"_score"`
			Source    ReportDocument      `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

func parseSearchResponse(body io.Reader) ([]ReportHit, error) {
	var sr searchResponse
	if err := json.NewDecoder(body).Decode(&sr); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode search response")
	}
	hits := make([]ReportHit, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		hits = append(hits, ReportHit{
			ReportID:   h.Source.ReportID,
			FileName:   h.Source.FileName,
			Summary:    h.Source.Summary,
			Score:      h.Score,
			Highlights: h.Highlight["extracted_text"],
		})
	}
	return hits, nil
}

func bodyContains(body io.Reader, needle string) bool {
	b, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte(needle))
}
