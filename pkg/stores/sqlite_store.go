package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/kilnbuild/kiln/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite. Fingerprint
// records are replaced in a single upsert statement, which gives the
// atomic record-replace guarantee the executor relies on.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &SQLiteStore{cfg: cfg}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// GetFingerprint returns the record for a task, or (nil, nil) if no
// successful run has been recorded.
func (s *SQLiteStore) GetFingerprint(ctx context.Context, id engine.TaskID) (*engine.FingerprintRecord, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM fingerprints WHERE task_id = ?`, string(id)).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fingerprint: %w", err)
	}

	record := &engine.FingerprintRecord{}
	if err := json.Unmarshal([]byte(blob), record); err != nil {
		return nil, fmt.Errorf("failed to decode fingerprint record: %w", err)
	}
	return record, nil
}

// PutFingerprint atomically replaces the record for a task.
func (s *SQLiteStore) PutFingerprint(ctx context.Context, record *engine.FingerprintRecord) error {
	blob, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode fingerprint record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fingerprints (task_id, record, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at
	`, string(record.TaskID), string(blob), time.Now())
	if err != nil {
		return fmt.Errorf("failed to put fingerprint: %w", err)
	}
	return nil
}

// DeleteFingerprint removes the record for a task.
func (s *SQLiteStore) DeleteFingerprint(ctx context.Context, id engine.TaskID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM fingerprints WHERE task_id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to delete fingerprint: %w", err)
	}
	return nil
}

// ResetFingerprints deletes all fingerprint records.
func (s *SQLiteStore) ResetFingerprints(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM fingerprints`); err != nil {
		return fmt.Errorf("failed to reset fingerprints: %w", err)
	}
	return nil
}

// RecordRunStart persists the initial state of an invocation.
func (s *SQLiteStore) RecordRunStart(ctx context.Context, report *engine.RunReport) error {
	targets, err := json.Marshal(report.Targets)
	if err != nil {
		return fmt.Errorf("failed to encode targets: %w", err)
	}

	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, targets, status, started_at, summary, created_at, updated_at)
		VALUES (?, ?, ?, ?, '{}', ?, ?)
	`, report.ID, string(targets), string(report.Status), report.StartedAt, now, now)
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// RecordRunFinish persists the final state of an invocation: the run row,
// one task_results row per scheduled task, and an event per failure.
func (s *SQLiteStore) RecordRunFinish(ctx context.Context, report *engine.RunReport) error {
	summary, err := json.Marshal(report.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE runs SET status = ?, completed_at = ?, summary = ?, updated_at = ?
		WHERE id = ?
	`, string(report.Status), report.CompletedAt, string(summary), now, report.ID)
	if err != nil {
		return fmt.Errorf("failed to record run finish: %w", err)
	}

	for _, result := range report.Results {
		var exitCode *int
		if result.Action != nil {
			code := result.Action.ExitCode
			exitCode = &code
		}
		var errText *string
		if result.Error != nil {
			msg := result.Error.Error()
			errText = &msg
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_results (run_id, task_id, status, exit_code, duration_ms, error, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, task_id) DO UPDATE SET
				status = excluded.status, exit_code = excluded.exit_code,
				duration_ms = excluded.duration_ms, error = excluded.error,
				recorded_at = excluded.recorded_at
		`, report.ID, string(result.TaskID), string(result.Status), exitCode,
			result.Duration.Milliseconds(), errText, now)
		if err != nil {
			return fmt.Errorf("failed to record task result: %w", err)
		}

		if result.Status == engine.TaskStatusFailed && errText != nil {
			taskID := string(result.TaskID)
			_, err = tx.ExecContext(ctx, `
				INSERT INTO events (run_id, task_id, level, message, timestamp)
				VALUES (?, ?, ?, ?, ?)
			`, report.ID, taskID, string(EventLevelError), *errText, now)
			if err != nil {
				return fmt.Errorf("failed to record failure event: %w", err)
			}
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	run := &RunRecord{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, targets, status, started_at, completed_at, summary, created_at, updated_at
		FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &run.Targets, &run.Status, &run.StartedAt,
		&run.CompletedAt, &run.Summary, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, targets, status, started_at, completed_at, summary, created_at, updated_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*RunRecord, 0)
	for rows.Next() {
		run := &RunRecord{}
		if err := rows.Scan(&run.ID, &run.Targets, &run.Status, &run.StartedAt,
			&run.CompletedAt, &run.Summary, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListTaskResults returns the per-task outcomes of a run.
func (s *SQLiteStore) ListTaskResults(ctx context.Context, runID string) ([]*TaskResultRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, task_id, status, exit_code, duration_ms, error, recorded_at
		FROM task_results WHERE run_id = ? ORDER BY task_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task results: %w", err)
	}
	defer rows.Close()

	results := make([]*TaskResultRecord, 0)
	for rows.Next() {
		r := &TaskResultRecord{}
		var durationMs int64
		if err := rows.Scan(&r.RunID, &r.TaskID, &r.Status, &r.ExitCode,
			&durationMs, &r.Error, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task result: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, r)
	}
	return results, rows.Err()
}

// AppendEvent appends an event to the log.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, task_id, level, message, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, event.RunID, event.TaskID, string(event.Level), event.Message, event.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ListEvents returns events for a run, oldest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, task_id, level, message, timestamp
		FROM events WHERE run_id = ? ORDER BY id LIMIT ?
	`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.ID, &e.RunID, &e.TaskID, &e.Level, &e.Message, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// HealthCheck verifies the database is reachable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
