package storage

import (
	"context"
	"errors"
	"time"

	"cgr/internal/config"
	"cgr/internal/domain"
)

// Storage persists and loads the last run output (e.g. for the faills viewer).
type Storage interface {
	Save(output *domain.RunOutput) error
	Load() (*domain.RunOutput, error)
}

// JSONStorage stores results in a JSON file under the configured output path.
type JSONStorage struct {
	cfg *config.Config
}

// NewJSONStorage returns a Storage that reads/writes the config's output JSON path.
func NewJSONStorage(cfg *config.Config) *JSONStorage {
	return &JSONStorage{cfg: cfg}
}

// ErrNotFound is returned when a run is not found.
var ErrNotFound = errors.New("run not found")

// Run status constants.
const (
	RunRunning = "running"
	RunPassed  = "passed"
	RunFailed  = "failed"
	RunAborted = "aborted"
)

// Run is one recorded execution of the suite.
type Run struct {
	ID         string                `json:"id"`
	Status     string                `json:"status"`
	TotalCases int                   `json:"total_cases"`
	Groups     int                   `json:"groups"`
	Counts     map[domain.Status]int `json:"counts"`
	Warnings   int                   `json:"warnings"`
	DurationMS int64                 `json:"duration_ms"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt *time.Time            `json:"finished_at,omitempty"`
}

// ReportRecord is a persisted phase report.
type ReportRecord struct {
	ID         int64         `json:"id"`
	RunID      string        `json:"run_id"`
	CaseID     string        `json:"case_id"`
	Phase      domain.Phase  `json:"phase"`
	Outcome    string        `json:"outcome"`
	Status     domain.Status `json:"status,omitempty"`
	WasXFail   string        `json:"was_xfail,omitempty"`
	Message    string        `json:"message,omitempty"`
	DurationMS int64         `json:"duration_ms"`
	StartedAt  time.Time     `json:"started_at"`
}

// Stats holds aggregate history statistics.
type Stats struct {
	Runs          int            `json:"runs"`
	RunsByStatus  map[string]int `json:"runs_by_status"`
	CasesByStatus map[string]int `json:"cases_by_status"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// History defines the persistence operations for run history.
type History interface {
	CreateRun(ctx context.Context, run *Run) error
	InsertReports(ctx context.Context, runID string, reports []domain.Report) error
	FinishRun(ctx context.Context, runID, status string, meta domain.RunMeta) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, int, error)
	ListReports(ctx context.Context, runID string) ([]ReportRecord, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
