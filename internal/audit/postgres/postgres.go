// Package postgres provides a PostgreSQL-backed audit sink with metrics.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/manishnupt/mynx-file-hive/internal/audit"
	"github.com/manishnupt/mynx-file-hive/internal/logging"
	"github.com/manishnupt/mynx-file-hive/internal/metrics"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Sink stores audit records in the file_operation_logs table.
type Sink struct {
	db *sql.DB
}

var _ audit.Sink = (*Sink)(nil)

// New opens the database and verifies the connection.
func New(ctx context.Context, databaseURL string) (*Sink, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Sink{db: db}, nil
}

// NewWithDB wraps an open connection.
func NewWithDB(db *sql.DB) *Sink {
	return &Sink{db: db}
}

// Migrate applies the embedded goose migrations.
func (s *Sink) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logging.Info("audit migrations applied")
	return nil
}

// Close closes the database connection.
func (s *Sink) Close() error {
	return s.db.Close()
}

// UpdateConnectionMetrics updates the database connection metrics.
func (s *Sink) UpdateConnectionMetrics() {
	metrics.SetDBConnectionsOpen(s.db.Stats().OpenConnections)
}

// Append inserts rec.
func (s *Sink) Append(ctx context.Context, rec audit.Record) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_operation_logs
			(id, username, operation, file_path, destination_path, timestamp, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.Username, string(rec.Operation), rec.SourcePath,
		nullString(rec.DestinationPath), rec.Timestamp, string(rec.Status), nullString(rec.ErrorDetail),
	)
	metrics.RecordDBQuery("audit_append", time.Since(start))
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, username, operation, file_path, destination_path, timestamp, status, error_message
	FROM file_operation_logs`

// QueryByPathSubstring returns records whose file or destination path contains text.
func (s *Sink) QueryByPathSubstring(ctx context.Context, text string) ([]audit.Record, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE strpos(file_path, $1) > 0 OR strpos(COALESCE(destination_path, ''), $1) > 0
		ORDER BY timestamp DESC`, text)
	metrics.RecordDBQuery("audit_by_path", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("query audit by path: %w", err)
	}
	return scanRecords(rows)
}

// QueryByUsername returns records of username.
func (s *Sink) QueryByUsername(ctx context.Context, username string) ([]audit.Record, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE username = $1
		ORDER BY timestamp DESC`, username)
	metrics.RecordDBQuery("audit_by_user", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("query audit by user: %w", err)
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]audit.Record, error) {
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var (
			rec       audit.Record
			op, st    string
			dest, msg sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Username, &op, &rec.SourcePath, &dest, &rec.Timestamp, &st, &msg); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Operation = audit.Operation(op)
		rec.Status = audit.Status(st)
		rec.DestinationPath = dest.String
		rec.ErrorDetail = msg.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		logging.Error("audit rows iteration failed", zap.Error(err))
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
