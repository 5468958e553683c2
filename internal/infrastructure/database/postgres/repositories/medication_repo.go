package repositories

import (
	"context"
	"database/sql"

	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/database/postgres"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

const medicationColumns = `id, name, rxnorm_code, ndc_code, created_at, updated_at`

type postgresMedicationRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

func NewPostgresMedicationRepo(conn *postgres.Connection, log logging.Logger) report.MedicationRepository {
	return &postgresMedicationRepo{conn: conn, log: log}
}

func (r *postgresMedicationRepo) GetByName(ctx context.Context, name string) (*report.Medication, error) {
	query := `SELECT ` + medicationColumns + ` FROM medication WHERE lower(name) = lower($1) ORDER BY id LIMIT 1`
	return scanMedication(r.conn.DB().QueryRowContext(ctx, query, name))
}

// FindByNamePrefix matches case-insensitively and literally; LIKE
// metacharacters in prefix are escaped. Shorter names come first.
func (r *postgresMedicationRepo) FindByNamePrefix(ctx context.Context, prefix string, limit int) ([]*report.Medication, error) {
	query := `
		SELECT ` + medicationColumns + `
		FROM medication
		WHERE lower(name) LIKE lower($1) || '%' ESCAPE '\'
		ORDER BY length(name), id
		LIMIT $2
	`
	rows, err := r.conn.DB().QueryContext(ctx, query, escapeLike(prefix), limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to search medications")
	}
	defer rows.Close()

	var meds []*report.Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		meds = append(meds, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate medications")
	}
	return meds, nil
}

func (r *postgresMedicationRepo) Create(ctx context.Context, m *report.Medication) error {
	query := `
		INSERT INTO medication (name, rxnorm_code, ndc_code)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.conn.DB().QueryRowContext(ctx, query, m.Name, nullString(m.RxNormCode), nullString(m.NDCCode)).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrap(err, errors.ErrCodeMedicationDuplicate, "medication already exists")
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create medication")
	}
	return nil
}

// Rename changes the canonical name of an existing medication.
func (r *postgresMedicationRepo) Rename(ctx context.Context, id int64, name string) (*report.Medication, error) {
	query := `UPDATE medication SET name = $1, updated_at = NOW() WHERE id = $2 RETURNING ` + medicationColumns
	m, err := scanMedication(r.conn.DB().QueryRowContext(ctx, query, name, id))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Wrap(err, errors.ErrCodeMedicationDuplicate, "medication name already taken")
		}
		return nil, err
	}
	return m, nil
}

func (r *postgresMedicationRepo) List(ctx context.Context) ([]*report.Medication, error) {
	rows, err := r.conn.DB().QueryContext(ctx, `SELECT `+medicationColumns+` FROM medication ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list medications")
	}
	defer rows.Close()

	var meds []*report.Medication
	for rows.Next() {
		m, err := scanMedication(rows)
		if err != nil {
			return nil, err
		}
		meds = append(meds, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate medications")
	}
	return meds, nil
}

// scanMedication passes unique violations through untouched so Rename can
// classify them.
func scanMedication(row scanner) (*report.Medication, error) {
	m := &report.Medication{}
	var rxnorm, ndc sql.NullString
	err := row.Scan(&m.ID, &m.Name, &rxnorm, &ndc, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.ErrCodeMedicationNotFound, "medication not found")
		}
		if isUniqueViolation(err) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan medication")
	}
	m.RxNormCode = stringPtr(rxnorm)
	m.NDCCode = stringPtr(ndc)
	return m, nil
}
