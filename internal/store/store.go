// Package store persists analysis outcomes to Postgres.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bimmerbailey/triage/internal/dispatch"
	"github.com/bimmerbailey/triage/internal/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS analysis_reports (
	run_id      TEXT PRIMARY KEY,
	file_path   TEXT NOT NULL,
	provider    TEXT NOT NULL DEFAULT '',
	model       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	error_kind  TEXT NOT NULL DEFAULT '',
	error_text  TEXT NOT NULL DEFAULT '',
	confidence  DOUBLE PRECISION NOT NULL DEFAULT 0,
	report      JSONB,
	created_at  TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0
)`

const insertRecord = `
INSERT INTO analysis_reports
	(run_id, file_path, provider, model, status, error_kind, error_text, confidence, report, created_at, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (run_id) DO NOTHING`

// Status values stored per run.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Record is one row of analysis_reports.
type Record struct {
	RunID      string
	FilePath   string
	Provider   string
	Model      string
	Status     string
	ErrorKind  string
	ErrorText  string
	Confidence float64
	Report     []byte
	CreatedAt  time.Time
	DurationMS int64
}

// NewRecord builds the row for one run. rep is nil when runErr is set; the
// error text is bounded the same way as every user-visible message.
func NewRecord(filePath string, rep *report.AnalysisReport, runErr error, now time.Time) (Record, error) {
	if rep != nil && runErr == nil {
		body, err := json.Marshal(rep)
		if err != nil {
			return Record{}, fmt.Errorf("encoding report: %w", err)
		}
		return Record{
			RunID:      rep.RunID,
			FilePath:   rep.FilePath,
			Provider:   rep.Provider,
			Model:      rep.Model,
			Status:     StatusOK,
			Confidence: rep.Confidence,
			Report:     body,
			CreatedAt:  rep.CreatedAt,
			DurationMS: rep.DurationMS,
		}, nil
	}

	rec := Record{
		RunID:     uuid.NewString(),
		FilePath:  filePath,
		Status:    StatusFailed,
		ErrorText: dispatch.ErrorText(runErr),
		CreatedAt: now.UTC(),
	}
	if runErr != nil {
		rec.ErrorKind = report.KindOf(runErr).String()
	}
	var ae *report.AnalysisError
	if errors.As(runErr, &ae) {
		rec.Provider = ae.Provider
	}
	return rec, nil
}

// Postgres writes records through a connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Postgres store.
type Option func(*Postgres)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Postgres) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New connects to dsn and creates the table when missing.
func New(ctx context.Context, dsn string, opts ...Option) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	p := &Postgres{
		pool:   pool,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating analysis_reports: %w", err)
	}
	return p, nil
}

// Save stores the outcome of one run.
func (p *Postgres) Save(ctx context.Context, filePath string, rep *report.AnalysisReport, runErr error) error {
	rec, err := NewRecord(filePath, rep, runErr, p.now())
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, insertRecord,
		rec.RunID, rec.FilePath, rec.Provider, rec.Model, rec.Status,
		rec.ErrorKind, rec.ErrorText, rec.Confidence, rec.Report,
		rec.CreatedAt, rec.DurationMS)
	if err != nil {
		return fmt.Errorf("inserting report %s: %w", rec.RunID, err)
	}
	p.logger.Debug("report stored", "run_id", rec.RunID, "status", rec.Status)
	return nil
}

// Recent returns the newest records, newest first.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := p.pool.Query(ctx, `
SELECT run_id, file_path, provider, model, status, error_kind, error_text, confidence, report, created_at, duration_ms
FROM analysis_reports ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.RunID, &r.FilePath, &r.Provider, &r.Model, &r.Status,
			&r.ErrorKind, &r.ErrorText, &r.Confidence, &r.Report, &r.CreatedAt, &r.DurationMS); err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
