package execution

import (
	"context"
	"time"

	"cgr/internal/domain"
	"cgr/internal/report"
)

// Executor runs a selection of cases and returns the run result
type Executor interface {
	Run(ctx context.Context, cases []*domain.Case, sel Selection) (*Result, error)
}

// Selection narrows the cases of a run
type Selection struct {
	NamePattern string
	Group       string
	// Only keeps the listed case IDs when non-empty
	Only []string
}

// Result is the outcome of one run
type Result struct {
	RunID       string
	Cases       []*domain.Case
	Groups      int
	Passthrough int
	Duration    time.Duration
	Summary     *report.Summary
	Output      domain.RunOutput
}
