package repositories

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"

	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/database/postgres"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// postgresChunkRepo stores chunk embeddings in the pgvector report_embedding
// table and ranks them by cosine distance.
type postgresChunkRepo struct {
	conn      *postgres.Connection
	dimension int
	log       logging.Logger
}

func NewPostgresChunkRepo(conn *postgres.Connection, dimension int, log logging.Logger) report.ChunkStore {
	return &postgresChunkRepo{conn: conn, dimension: dimension, log: log}
}

func (r *postgresChunkRepo) checkDim(v []float32) error {
	if r.dimension > 0 && len(v) != r.dimension {
		return errors.Newf(errors.ErrCodeEmbeddingDimMismatch,
			"embedding has %d dimensions, store expects %d", len(v), r.dimension)
	}
	return nil
}

func (r *postgresChunkRepo) ReplaceChunks(ctx context.Context, reportID int64, chunks []report.Chunk) error {
	for _, c := range chunks {
		if err := r.checkDim(c.Embedding); err != nil {
			return err
		}
	}

	return r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM report_embedding WHERE report_id = $1`, reportID); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to clear report chunks")
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO report_embedding (report_id, chunk_index, text, embedding)
			VALUES ($1, $2, $3, $4)
		`)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to prepare chunk insert")
		}
		defer stmt.Close()

		for _, c := range chunks {
			if _, err := stmt.ExecContext(ctx, reportID, c.Index, c.Text, pgvector.NewVector(c.Embedding)); err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert report chunk")
			}
		}
		r.log.Debug("stored report chunks", logging.Int64("report_id", reportID), logging.Int("chunks", len(chunks)))
		return nil
	})
}

func (r *postgresChunkRepo) SearchChunks(ctx context.Context, reportID int64, embedding []float32, topK int) ([]report.ScoredChunk, error) {
	if err := r.checkDim(embedding); err != nil {
		return nil, err
	}
	vec := pgvector.NewVector(embedding)

	var rows *sql.Rows
	var err error
	if reportID > 0 {
		rows, err = r.conn.DB().QueryContext(ctx, `
			SELECT report_id, chunk_index, text, embedding <=> $1 AS distance
			FROM report_embedding
			WHERE report_id = $2
			ORDER BY embedding <=> $1
			LIMIT $3
		`, vec, reportID, topK)
	} else {
		rows, err = r.conn.DB().QueryContext(ctx, `
			SELECT report_id, chunk_index, text, embedding <=> $1 AS distance
			FROM report_embedding
			ORDER BY embedding <=> $1
			LIMIT $2
		`, vec, topK)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to search report chunks")
	}
	defer rows.Close()

	var hits []report.ScoredChunk
	for rows.Next() {
		var h report.ScoredChunk
		if err := rows.Scan(&h.ReportID, &h.Index, &h.Text, &h.Distance); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan report chunk")
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate report chunks")
	}
	return hits, nil
}

func (r *postgresChunkRepo) DeleteChunks(ctx context.Context, reportID int64) error {
	if _, err := r.conn.DB().ExecContext(ctx, `DELETE FROM report_embedding WHERE report_id = $1`, reportID); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete report chunks")
	}
	return nil
}
