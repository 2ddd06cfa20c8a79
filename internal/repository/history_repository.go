package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// SQLiteHistoryRepository implements HistoryRepository on a SQLite file.
type SQLiteHistoryRepository struct {
	db *sql.DB
}

var _ HistoryRepository = (*SQLiteHistoryRepository)(nil)

// OpenHistory opens (and creates if needed) the history database.
func OpenHistory(dbPath string) (*SQLiteHistoryRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// One writer at a time; readers share the same connection.
	db.SetMaxOpenConns(1)

	repo := &SQLiteHistoryRepository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	return repo, nil
}

// Close closes the database connection.
func (r *SQLiteHistoryRepository) Close() error {
	return r.db.Close()
}

// Ping checks database connectivity.
func (r *SQLiteHistoryRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteHistoryRepository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS invocations (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL,
			destination TEXT NOT NULL,
			flags TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL,
			output_path TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			error_kind TEXT NOT NULL DEFAULT '',
			media TEXT,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS attempts (
			invocation_id TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			exit_code INTEGER NOT NULL DEFAULT 0,
			output_path TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (invocation_id, attempt),
			FOREIGN KEY (invocation_id) REFERENCES invocations(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invocations_started ON invocations(started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_invocations_status ON invocations(status)`,
	}

	for _, m := range migrations {
		if _, err := r.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Record stores an invocation with its attempts in one transaction.
func (r *SQLiteHistoryRepository) Record(ctx context.Context, rec *domain.InvocationRecord) error {
	flags, err := json.Marshal(nonNil(rec.Flags))
	if err != nil {
		return fmt.Errorf("encode flags: %w", err)
	}
	var media sql.NullString
	if rec.Media != nil {
		data, err := json.Marshal(rec.Media)
		if err != nil {
			return fmt.Errorf("encode media: %w", err)
		}
		media = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO invocations
		(id, job_id, url, destination, flags, status, output_path, reason, error_kind, media, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.JobID), rec.URL, rec.Destination, string(flags), string(rec.Status),
		rec.OutputPath, rec.Reason, string(rec.ErrKind), media,
		rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}

	for _, a := range rec.Attempts {
		_, err = tx.ExecContext(ctx, `INSERT INTO attempts
			(invocation_id, attempt, outcome, reason, exit_code, output_path, started_at, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, a.Attempt, string(a.Outcome.Kind), a.Outcome.Reason, a.Outcome.ExitCode,
			a.Outcome.OutputPath, a.StartedAt.UnixMilli(), a.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert attempt %d: %w", a.Attempt, err)
		}
	}

	return tx.Commit()
}

const selectInvocation = `SELECT id, job_id, url, destination, flags, status, output_path, reason,
	error_kind, media, started_at, finished_at FROM invocations`

// Get retrieves an invocation by ID.
func (r *SQLiteHistoryRepository) Get(ctx context.Context, id string) (*domain.InvocationRecord, error) {
	row := r.db.QueryRowContext(ctx, selectInvocation+` WHERE id = ?`, id)
	rec, err := scanInvocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadAttempts(ctx, []*domain.InvocationRecord{rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns invocations newest first.
func (r *SQLiteHistoryRepository) List(ctx context.Context, filter HistoryFilter) ([]*domain.InvocationRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.URL != "" {
		where = append(where, "url = ?")
		args = append(args, filter.URL)
	}

	query := selectInvocation
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	var records []*domain.InvocationRecord
	for rows.Next() {
		rec, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocations: %w", err)
	}
	rows.Close()

	if err := r.loadAttempts(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *SQLiteHistoryRepository) loadAttempts(ctx context.Context, records []*domain.InvocationRecord) error {
	for _, rec := range records {
		rows, err := r.db.QueryContext(ctx, `SELECT attempt, outcome, reason, exit_code, output_path, started_at, duration_ms
			FROM attempts WHERE invocation_id = ? ORDER BY attempt`, rec.ID)
		if err != nil {
			return fmt.Errorf("query attempts: %w", err)
		}

		for rows.Next() {
			var (
				a          domain.AttemptRecord
				kind       string
				startedAt  int64
				durationMs int64
			)
			if err := rows.Scan(&a.Attempt, &kind, &a.Outcome.Reason, &a.Outcome.ExitCode,
				&a.Outcome.OutputPath, &startedAt, &durationMs); err != nil {
				rows.Close()
				return fmt.Errorf("scan attempt: %w", err)
			}
			a.Outcome.Kind = domain.OutcomeKind(kind)
			a.Outcome.Metadata.Attempt = a.Attempt
			a.StartedAt = time.UnixMilli(startedAt)
			a.Duration = time.Duration(durationMs) * time.Millisecond
			rec.Attempts = append(rec.Attempts, a)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("iterate attempts: %w", err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvocation(s scanner) (*domain.InvocationRecord, error) {
	var (
		rec                   domain.InvocationRecord
		jobID, status, kind   string
		flags                 string
		media                 sql.NullString
		startedAt, finishedAt int64
	)
	err := s.Scan(&rec.ID, &jobID, &rec.URL, &rec.Destination, &flags, &status,
		&rec.OutputPath, &rec.Reason, &kind, &media, &startedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan invocation: %w", err)
	}

	rec.JobID = domain.JobID(jobID)
	rec.Status = domain.JobStatus(status)
	rec.ErrKind = domain.ErrorKind(kind)
	rec.StartedAt = time.UnixMilli(startedAt)
	rec.FinishedAt = time.UnixMilli(finishedAt)

	if err := json.Unmarshal([]byte(flags), &rec.Flags); err != nil {
		return nil, fmt.Errorf("decode flags: %w", err)
	}
	if media.Valid {
		rec.Media = &domain.MediaInfo{}
		if err := json.Unmarshal([]byte(media.String), rec.Media); err != nil {
			return nil, fmt.Errorf("decode media: %w", err)
		}
	}
	return &rec, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
