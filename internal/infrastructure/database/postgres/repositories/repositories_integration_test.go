//go:build integration

// Integration tests for the PostgreSQL repositories. They require Docker and
// run against a pgvector-enabled PostgreSQL container.
package repositories_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/turtacn/RAG-HealthBot/internal/config"
	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/database/postgres"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// startPostgres launches pgvector on PostgreSQL 16, migrates it and returns
// a connection using driver.
func startPostgres(t *testing.T, driver string) *postgres.Connection {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "healthbot_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	log := logging.NewNopLogger()
	conn, err := postgres.NewConnection(config.PostgresConfig{
		Driver: driver,
		DSN:    fmt.Sprintf("postgres://test:test@%s:%s/healthbot_test?sslmode=disable", host, port.Port()),
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	mg, err := postgres.NewMigrator(ctx, conn, log)
	require.NoError(t, err)
	require.NoError(t, mg.Up())
	version, dirty, err := mg.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
	require.NoError(t, mg.Close())
	return conn
}

func strp(s string) *string { return &s }

func TestRepositories_EndToEnd(t *testing.T) {
	for _, driver := range []string{config.DriverPQ, config.DriverPGX} {
		t.Run(driver, func(t *testing.T) {
			conn := startPostgres(t, driver)
			ctx := context.Background()
			log := logging.NewNopLogger()

			reports := repositories.NewPostgresReportRepo(conn, log)
			meds := repositories.NewPostgresMedicationRepo(conn, log)
			links := repositories.NewPostgresReportMedicationRepo(conn, log)
			chunks := repositories.NewPostgresChunkRepo(conn, 1024, log)

			rep := &report.Report{
				FileName:          "labs.pdf",
				Summary:           "summary",
				ExtractedText:     strp("Patient takes Metformin."),
				ContentHash:       strp(report.MD5Hex([]byte("bytes"))),
				ExtractedTextHash: strp(report.TextFingerprint("Patient takes Metformin.")),
			}
			require.NoError(t, reports.Create(ctx, rep))
			require.NotZero(t, rep.ID)

			err := reports.Create(ctx, &report.Report{FileName: "again.pdf", ContentHash: rep.ContentHash})
			assert.True(t, errors.IsCode(err, errors.ErrCodeReportDuplicate))

			med := &report.Medication{Name: "Metformin"}
			require.NoError(t, meds.Create(ctx, med))
			assert.True(t, errors.IsCode(meds.Create(ctx, &report.Medication{Name: "Metformin"}), errors.ErrCodeMedicationDuplicate))

			found, err := meds.GetByName(ctx, "metformin")
			require.NoError(t, err)
			assert.Equal(t, med.ID, found.ID)

			verbose := &report.Medication{Name: "Lisinopril 10mg tablet"}
			require.NoError(t, meds.Create(ctx, verbose))
			cands, err := meds.FindByNamePrefix(ctx, "lisinopril", 5)
			require.NoError(t, err)
			require.Len(t, cands, 1)
			renamed, err := meds.Rename(ctx, cands[0].ID, "Lisinopril")
			require.NoError(t, err)
			assert.Equal(t, "Lisinopril", renamed.Name)

			require.NoError(t, links.Create(ctx, &report.ReportMedication{
				ReportID: rep.ID, MedicationID: med.ID, Dosage: strp("500mg"), Frequency: strp("twice daily"),
			}))

			byHash, err := reports.GetByContentHash(ctx, *rep.ContentHash)
			require.NoError(t, err)
			require.Len(t, byHash.Medications, 1)
			assert.Equal(t, "Metformin", byHash.Medications[0].MedicationName)

			byText, err := reports.GetByTextHash(ctx, *rep.ExtractedTextHash)
			require.NoError(t, err)
			assert.Equal(t, rep.ID, byText.ID)

			vec := make([]float32, 1024)
			vec[0] = 1
			other := make([]float32, 1024)
			other[1] = 1
			require.NoError(t, chunks.ReplaceChunks(ctx, rep.ID, []report.Chunk{
				{Index: 0, Text: "metformin chunk", Embedding: vec},
				{Index: 1, Text: "unrelated chunk", Embedding: other},
			}))
			hits, err := chunks.SearchChunks(ctx, rep.ID, vec, 1)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "metformin chunk", hits[0].Text)
			assert.InDelta(t, 0, hits[0].Distance, 1e-6)

			all, err := reports.List(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)

			require.NoError(t, reports.Delete(ctx, rep.ID))
			_, err = reports.GetByID(ctx, rep.ID)
			assert.True(t, errors.IsNotFound(err))
			hits, err = chunks.SearchChunks(ctx, 0, vec, 5)
			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}
