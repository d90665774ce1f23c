package domain

import "time"

// Phase is one step of the per-case run protocol.
type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseCall     Phase = "call"
	PhaseTeardown Phase = "teardown"
)

// Outcome is the raw result of one phase.
type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Status is the user-facing classification of a report.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
	StatusXFailed Status = "xfailed"
	StatusXPassed Status = "xpassed"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusPassed, StatusFailed, StatusSkipped, StatusError, StatusXFailed, StatusXPassed}

// CallOutcome captures the result of invoking one phase of one case.
// It is immutable once created.
type CallOutcome struct {
	CaseID   string
	Phase    Phase
	Err      error
	Start    time.Time
	Stop     time.Time
	Duration time.Duration
}

// Report is the record handed to the reporting sink for one phase.
type Report struct {
	CaseID   string        `json:"case_id"`
	Phase    Phase         `json:"phase"`
	Outcome  Outcome       `json:"outcome"`
	WasXFail string        `json:"was_xfail,omitempty"`
	Message  string        `json:"message,omitempty"`
	Err      error         `json:"-"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
}

// Status classifies the report. Passing setup and teardown reports
// return an empty status because they are not counted.
func (r Report) Status() Status {
	switch {
	case r.Outcome == OutcomeSkipped && r.WasXFail != "":
		return StatusXFailed
	case r.Outcome == OutcomePassed && r.WasXFail != "" && r.Phase == PhaseCall:
		return StatusXPassed
	case r.Outcome == OutcomeFailed && r.Phase != PhaseCall:
		return StatusError
	case r.Outcome == OutcomeFailed:
		return StatusFailed
	case r.Outcome == OutcomeSkipped:
		return StatusSkipped
	case r.Outcome == OutcomePassed && r.Phase == PhaseCall:
		return StatusPassed
	}
	return ""
}

// Warning kinds.
const (
	WarningGrouping    = "grouping"
	WarningInvalidMark = "invalid-mark"
)

// Warning is a structured signal for the warning sink.
type Warning struct {
	Kind    string `json:"kind"`
	Group   string `json:"group,omitempty"`
	CaseID  string `json:"case_id,omitempty"`
	Message string `json:"message"`
}

// RunMeta contains metadata about a run
type RunMeta struct {
	RunID           string         `json:"run_id,omitempty"`
	TotalCases      int            `json:"total_cases"`
	Groups          int            `json:"groups"`
	Counts          map[Status]int `json:"counts"`
	Warnings        int            `json:"warnings"`
	Duration        string         `json:"duration"`
	DurationSeconds float64        `json:"duration_seconds"`
	Timestamp       string         `json:"timestamp"`
}

// RunOutput is the complete output structure for a run
type RunOutput struct {
	Meta    RunMeta   `json:"meta"`
	Details []Failure `json:"details"`
}
