package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/RAG-HealthBot/internal/config"
	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

func stubOpen(t *testing.T, db *sql.DB, openErr error) (*string, *string) {
	t.Helper()
	var driver, dsn string
	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })
	sqlOpen = func(d, s string) (*sql.DB, error) {
		driver, dsn = d, s
		return db, openErr
	}
	return &driver, &dsn
}

func TestNewConnection_Success(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	driver, dsn := stubOpen(t, db, nil)
	mock.ExpectPing()

	conn, err := NewConnection(config.PostgresConfig{
		Host: "db", Port: 5432, User: "hb", Password: "pw", DBName: "healthbot", SSLMode: "disable",
		MaxOpenConns: 7,
	}, logging.NewNopLogger())
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, config.DriverPQ, *driver)
	assert.Equal(t, "host=db port=5432 user=hb password=pw dbname=healthbot sslmode=disable", *dsn)
	assert.Equal(t, config.DriverPQ, conn.Driver())
	assert.Equal(t, 7, conn.DB().Stats().MaxOpenConnections)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewConnection_PGXDriverAndDSN(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	driver, dsn := stubOpen(t, db, nil)
	mock.ExpectPing()

	conn, err := NewConnection(config.PostgresConfig{
		Driver: config.DriverPGX,
		DSN:    "postgres://u:p@h:5432/db?sslmode=disable",
	}, logging.NewNopLogger())
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "pgx", *driver)
	assert.Equal(t, "postgres://u:p@h:5432/db?sslmode=disable", *dsn)
}

func TestNewConnection_UnsupportedDriver(t *testing.T) {
	_, err := NewConnection(config.PostgresConfig{Driver: "mysql"}, logging.NewNopLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestNewConnection_OpenError(t *testing.T) {
	stubOpen(t, nil, stderrors.New("bad dsn"))

	_, err := NewConnection(config.PostgresConfig{Host: "h", Port: 1}, logging.NewNopLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatabaseError))
}

func TestNewConnection_PingError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	stubOpen(t, db, nil)
	mock.ExpectPing().WillReturnError(stderrors.New("connection refused"))
	mock.ExpectClose()

	_, err = NewConnection(config.PostgresConfig{Host: "h", Port: 1}, logging.NewNopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnection_HealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	conn := NewConnectionWithDB(db, logging.NewNopLogger())

	mock.ExpectPing()
	assert.NoError(t, conn.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(stderrors.New("down"))
	err = conn.HealthCheck(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatabaseError))
}

func TestConnection_WithTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	conn := NewConnectionWithDB(db, logging.NewNopLogger())
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM report_embedding").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()
	err = conn.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM report_embedding WHERE report_id = $1", 1)
		return err
	})
	assert.NoError(t, err)

	boom := stderrors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	err = conn.WithTx(ctx, func(*sql.Tx) error { return boom })
	assert.Equal(t, boom, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnection_CloseOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	conn := NewConnectionWithDB(db, logging.NewNopLogger())

	mock.ExpectClose()
	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
