package cli

import (
	"context"

	"github.com/turtacn/RAG-HealthBot/internal/application/intake"
	"github.com/turtacn/RAG-HealthBot/internal/bootstrap"
	"github.com/turtacn/RAG-HealthBot/internal/config"
	"github.com/turtacn/RAG-HealthBot/internal/domain/report"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/database/postgres"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/database/redis"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
)

// Migrator is the schema migration surface used by `healthbot migrate`.
type Migrator interface {
	Up() error
	Down(steps int) error
	Version() (uint, bool, error)
	Force(version int) error
}

// PipelineRunner runs one document through the intake pipeline.
type PipelineRunner interface {
	Run(ctx context.Context, req intake.RunRequest) intake.RunResult
}

// JobReader reads job status records.
type JobReader interface {
	Get(ctx context.Context, id string) (*redis.Job, error)
}

// MedicationLister lists canonical medications.
type MedicationLister interface {
	List(ctx context.Context) ([]*report.Medication, error)
}

// Dependencies opens the backends each command needs. Every factory returns
// a release func the command defers.
type Dependencies struct {
	OpenMigrator func(ctx context.Context, cfg *config.Config, log logging.Logger) (Migrator, func(), error)
	OpenPipeline func(ctx context.Context, cfg *config.Config, log logging.Logger) (PipelineRunner, func(), error)
	OpenJobs     func(ctx context.Context, cfg *config.Config, log logging.Logger) (JobReader, func(), error)

	OpenMedications func(ctx context.Context, cfg *config.Config, log logging.Logger) (MedicationLister, func(), error)
}

// DefaultDependencies connects to the configured backends.
func DefaultDependencies() Dependencies {
	return Dependencies{
		OpenMigrator: openMigrator,
		OpenPipeline: openPipeline,
		OpenJobs:     openJobs,

		OpenMedications: openMedications,
	}
}

func openMigrator(ctx context.Context, cfg *config.Config, log logging.Logger) (Migrator, func(), error) {
	in, err := bootstrap.Open(cfg, log, nil, bootstrap.Postgres)
	if err != nil {
		return nil, nil, err
	}
	mg, err := postgres.NewMigrator(ctx, in.Postgres, log)
	if err != nil {
		in.Close()
		return nil, nil, err
	}
	return mg, func() {
		_ = mg.Close()
		in.Close()
	}, nil
}

func openPipeline(ctx context.Context, cfg *config.Config, log logging.Logger) (PipelineRunner, func(), error) {
	in, err := bootstrap.Open(cfg, log, nil, bootstrap.Postgres|bootstrap.Redis|bootstrap.Kafka)
	if err != nil {
		return nil, nil, err
	}
	p, err := in.Pipeline()
	if err != nil {
		in.Close()
		return nil, nil, err
	}
	return p, in.Close, nil
}

func openJobs(ctx context.Context, cfg *config.Config, log logging.Logger) (JobReader, func(), error) {
	in, err := bootstrap.Open(cfg, log, nil, bootstrap.Redis)
	if err != nil {
		return nil, nil, err
	}
	return in.JobStore(), in.Close, nil
}

func openMedications(ctx context.Context, cfg *config.Config, log logging.Logger) (MedicationLister, func(), error) {
	in, err := bootstrap.Open(cfg, log, nil, bootstrap.Postgres)
	if err != nil {
		return nil, nil, err
	}
	return repositories.NewPostgresMedicationRepo(in.Postgres, log), in.Close, nil
}
