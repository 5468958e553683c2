package repositories

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/database/postgres"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

const reportColumns = `id, file_name, summary, extracted_text, content_hash, extracted_text_hash, created_at, updated_at`

const linkSelect = `
	SELECT rm.id, rm.report_id, rm.medication_id, m.name,
	       rm.dosage, rm.frequency, rm.start_date, rm.end_date, rm.purpose
	FROM report_medication rm
	JOIN medication m ON m.id = rm.medication_id`

type postgresReportRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

func NewPostgresReportRepo(conn *postgres.Connection, log logging.Logger) report.ReportRepository {
	return &postgresReportRepo{conn: conn, log: log}
}

func (r *postgresReportRepo) executor() queryExecutor {
	return r.conn.DB()
}

// Create inserts the report. A content_hash collision returns
// ErrCodeReportDuplicate so callers can treat it as a concurrent insert.
func (r *postgresReportRepo) Create(ctx context.Context, rep *report.Report) error {
	query := `
		INSERT INTO report (file_name, summary, extracted_text, content_hash, extracted_text_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.executor().QueryRowContext(ctx, query,
		rep.FileName, rep.Summary, nullString(rep.ExtractedText), nullString(rep.ContentHash), nullString(rep.ExtractedTextHash),
	).Scan(&rep.ID, &rep.CreatedAt, &rep.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrap(err, errors.ErrCodeReportDuplicate, "report with this content hash already exists")
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create report")
	}
	return nil
}

func (r *postgresReportRepo) GetByID(ctx context.Context, id int64) (*report.Report, error) {
	return r.getOne(ctx, `SELECT `+reportColumns+` FROM report WHERE id = $1`, id)
}

func (r *postgresReportRepo) GetByContentHash(ctx context.Context, hash string) (*report.Report, error) {
	return r.getOne(ctx, `SELECT `+reportColumns+` FROM report WHERE content_hash = $1`, hash)
}

func (r *postgresReportRepo) GetByTextHash(ctx context.Context, hash string) (*report.Report, error) {
	return r.getOne(ctx, `SELECT `+reportColumns+` FROM report WHERE extracted_text_hash = $1 ORDER BY id LIMIT 1`, hash)
}

func (r *postgresReportRepo) getOne(ctx context.Context, query string, arg interface{}) (*report.Report, error) {
	rep, err := scanReport(r.executor().QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	links, err := listLinks(ctx, r.executor(), rep.ID)
	if err != nil {
		return nil, err
	}
	rep.Medications = links
	return rep, nil
}

// List returns every report newest first with its medication links.
func (r *postgresReportRepo) List(ctx context.Context) ([]*report.Report, error) {
	rows, err := r.executor().QueryContext(ctx, `SELECT `+reportColumns+` FROM report ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list reports")
	}
	defer rows.Close()

	var reports []*report.Report
	byID := make(map[int64]*report.Report)
	ids := make([]int64, 0)
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
		byID[rep.ID] = rep
		ids = append(ids, rep.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate reports")
	}
	if len(ids) == 0 {
		return reports, nil
	}

	linkRows, err := r.executor().QueryContext(ctx, linkSelect+` WHERE rm.report_id = ANY($1) ORDER BY rm.report_id, rm.id`, pq.Array(ids))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list report medications")
	}
	defer linkRows.Close()
	for linkRows.Next() {
		link, err := scanLink(linkRows)
		if err != nil {
			return nil, err
		}
		if rep, ok := byID[link.ReportID]; ok {
			rep.Medications = append(rep.Medications, link)
		}
	}
	if err := linkRows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate report medications")
	}
	return reports, nil
}

// Delete removes the report; links and chunks cascade.
func (r *postgresReportRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.executor().ExecContext(ctx, `DELETE FROM report WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete report")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New(errors.ErrCodeReportNotFound, "report not found")
	}
	return nil
}

func scanReport(row scanner) (*report.Report, error) {
	rep := &report.Report{}
	var text, contentHash, textHash sql.NullString
	err := row.Scan(&rep.ID, &rep.FileName, &rep.Summary, &text, &contentHash, &textHash, &rep.CreatedAt, &rep.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.ErrCodeReportNotFound, "report not found")
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan report")
	}
	rep.ExtractedText = stringPtr(text)
	rep.ContentHash = stringPtr(contentHash)
	rep.ExtractedTextHash = stringPtr(textHash)
	return rep, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Report medication links
// ─────────────────────────────────────────────────────────────────────────────

type postgresReportMedicationRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

func NewPostgresReportMedicationRepo(conn *postgres.Connection, log logging.Logger) report.ReportMedicationRepository {
	return &postgresReportMedicationRepo{conn: conn, log: log}
}

func (r *postgresReportMedicationRepo) Create(ctx context.Context, link *report.ReportMedication) error {
	query := `
		INSERT INTO report_medication (report_id, medication_id, dosage, frequency, start_date, end_date, purpose)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := r.conn.DB().QueryRowContext(ctx, query,
		link.ReportID, link.MedicationID,
		nullString(link.Dosage), nullString(link.Frequency),
		nullString(link.StartDate), nullString(link.EndDate), nullString(link.Purpose),
	).Scan(&link.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to link medication to report")
	}
	return nil
}

func (r *postgresReportMedicationRepo) ListByReport(ctx context.Context, reportID int64) ([]report.ReportMedication, error) {
	return listLinks(ctx, r.conn.DB(), reportID)
}

func listLinks(ctx context.Context, exec queryExecutor, reportID int64) ([]report.ReportMedication, error) {
	rows, err := exec.QueryContext(ctx, linkSelect+` WHERE rm.report_id = $1 ORDER BY rm.id`, reportID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list report medications")
	}
	defer rows.Close()

	var links []report.ReportMedication
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate report medications")
	}
	return links, nil
}

func scanLink(row scanner) (report.ReportMedication, error) {
	var link report.ReportMedication
	var dosage, frequency, start, end, purpose sql.NullString
	if err := row.Scan(&link.ID, &link.ReportID, &link.MedicationID, &link.MedicationName,
		&dosage, &frequency, &start, &end, &purpose); err != nil {
		return link, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan report medication")
	}
	link.Dosage = stringPtr(dosage)
	link.Frequency = stringPtr(frequency)
	link.StartDate = stringPtr(start)
	link.EndDate = stringPtr(end)
	link.Purpose = stringPtr(purpose)
	return link, nil
}
