package journal

import (
	"context"
	"time"
)

// RunStatus is the terminal state of an import run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// RunRecord is one import run of the connector.
type RunRecord struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	PulsesFetched  int        `json:"pulses_fetched"`
	BundlesSent    int        `json:"bundles_sent"`
	IndicatorsSent int        `json:"indicators_sent"`
	Status         RunStatus  `json:"status"`
	Error          string     `json:"error,omitempty"`
}

// ImportError is a single failure recorded during a run.
type ImportError struct {
	ID        string
	RunID     string
	Stage     string
	PulseID   string
	Message   string
	Metadata  string
	CreatedAt time.Time
	Resolved  bool
}

// Journal records run history and import errors for audit. Implementations
// must be safe for use from a single run loop.
type Journal interface {
	// StartRun opens a run record and returns its ID.
	StartRun(ctx context.Context, startedAt time.Time) (string, error)

	// FinishRun closes a run record with its final counters and status.
	FinishRun(ctx context.Context, record RunRecord) error

	// LogError records an import error.
	LogError(ctx context.Context, importErr ImportError) error

	// RecentRuns lists the most recent runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// Close releases underlying resources.
	Close() error
}

// Nop is a Journal that records nothing, used when no database is configured.
type Nop struct{}

func (Nop) StartRun(ctx context.Context, startedAt time.Time) (string, error) { return "", nil }
func (Nop) FinishRun(ctx context.Context, record RunRecord) error             { return nil }
func (Nop) LogError(ctx context.Context, importErr ImportError) error         { return nil }
func (Nop) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)    { return nil, nil }
func (Nop) Close() error                                                      { return nil }
