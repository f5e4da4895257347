package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
)

const schema = `
CREATE TABLE IF NOT EXISTS connector_runs (
	id UUID PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	pulses_fetched INTEGER NOT NULL DEFAULT 0,
	bundles_sent INTEGER NOT NULL DEFAULT 0,
	indicators_sent INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS import_errors (
	id UUID PRIMARY KEY,
	run_id UUID REFERENCES connector_runs(id),
	stage TEXT NOT NULL,
	pulse_id TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL,
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	resolved BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_connector_runs_started_at ON connector_runs (started_at DESC);
CREATE INDEX IF NOT EXISTS idx_import_errors_run_id ON import_errors (run_id);
`

// Postgres implements Journal on top of PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects to the database, verifies the connection and ensures
// the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return &Postgres{db: db}, nil
}

// StartRun opens a run record and returns its ID.
func (j *Postgres) StartRun(ctx context.Context, startedAt time.Time) (string, error) {
	id := uuid.New().String()
	query := `
		INSERT INTO connector_runs (id, started_at, status)
		VALUES ($1, $2, $3)
	`
	if _, err := j.db.ExecContext(ctx, query, id, startedAt, RunStatusRunning); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun closes a run record with its final counters and status.
func (j *Postgres) FinishRun(ctx context.Context, record RunRecord) error {
	query := `
		UPDATE connector_runs
		SET finished_at = $2,
			pulses_fetched = $3,
			bundles_sent = $4,
			indicators_sent = $5,
			status = $6,
			error = $7
		WHERE id = $1
	`
	_, err := j.db.ExecContext(ctx, query,
		record.ID,
		record.FinishedAt,
		record.PulsesFetched,
		record.BundlesSent,
		record.IndicatorsSent,
		record.Status,
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// LogError records an import error.
func (j *Postgres) LogError(ctx context.Context, importErr ImportError) error {
	if importErr.ID == "" {
		importErr.ID = uuid.New().String()
	}
	if importErr.CreatedAt.IsZero() {
		importErr.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO import_errors (id, run_id, stage, pulse_id, message, metadata, created_at, resolved)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, NULLIF($6, '')::jsonb, $7, $8)
	`
	_, err := j.db.ExecContext(ctx, query,
		importErr.ID,
		importErr.RunID,
		importErr.Stage,
		importErr.PulseID,
		importErr.Message,
		importErr.Metadata,
		importErr.CreatedAt,
		importErr.Resolved,
	)
	if err != nil {
		return fmt.Errorf("insert import error: %w", err)
	}
	return nil
}

// RecentRuns lists the most recent runs, newest first.
func (j *Postgres) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT id, started_at, finished_at, pulses_fetched, bundles_sent, indicators_sent, status, error
		FROM connector_runs
		ORDER BY started_at DESC
		LIMIT $1
	`

	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var finishedAt sql.NullTime

		if err := rows.Scan(
			&r.ID,
			&r.StartedAt,
			&finishedAt,
			&r.PulsesFetched,
			&r.BundlesSent,
			&r.IndicatorsSent,
			&r.Status,
			&r.Error,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		if finishedAt.Valid {
			r.FinishedAt = &finishedAt.Time
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// HealthCheck verifies database responsiveness.
func (j *Postgres) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := j.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("journal health check: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (j *Postgres) Close() error {
	return j.db.Close()
}
