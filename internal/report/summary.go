package report

import (
	"strings"
	"sync"
	"time"

	"cgr/internal/domain"
)

// Summary collects reports and warnings of one run.
type Summary struct {
	mu       sync.Mutex
	counts   map[domain.Status]int
	reports  []domain.Report
	warnings []domain.Warning
	started  []string
	finished []string
}

// NewSummary creates an empty Summary.
func NewSummary() *Summary {
	return &Summary{counts: make(map[domain.Status]int)}
}

func (s *Summary) LogStart(caseID string) {
	s.mu.Lock()
	s.started = append(s.started, caseID)
	s.mu.Unlock()
}

func (s *Summary) LogReport(r domain.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	if st := r.Status(); st != "" {
		s.counts[st]++
	}
}

func (s *Summary) LogFinish(caseID string) {
	s.mu.Lock()
	s.finished = append(s.finished, caseID)
	s.mu.Unlock()
}

func (s *Summary) Warn(w domain.Warning) {
	s.mu.Lock()
	s.warnings = append(s.warnings, w)
	s.mu.Unlock()
}

// Counts returns a copy of the per-status counters.
func (s *Summary) Counts() map[domain.Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Status]int, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Count returns the counter of one status.
func (s *Summary) Count(st domain.Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[st]
}

// Reports returns every report in the order it was logged.
func (s *Summary) Reports() []domain.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Report(nil), s.reports...)
}

// ReportsFor returns the reports of one case.
func (s *Summary) ReportsFor(caseID string) []domain.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Report
	for _, r := range s.reports {
		if r.CaseID == caseID {
			out = append(out, r)
		}
	}
	return out
}

// Warnings returns every warning in the order it was raised.
func (s *Summary) Warnings() []domain.Warning {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Warning(nil), s.warnings...)
}

// Started returns case IDs in LogStart order.
func (s *Summary) Started() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.started...)
}

// Finished returns case IDs in LogFinish order.
func (s *Summary) Finished() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.finished...)
}

// Failed reports whether any case failed or errored.
func (s *Summary) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[domain.StatusFailed] > 0 || s.counts[domain.StatusError] > 0
}

// Failures converts failed and errored reports into failure records. Cases
// are looked up in index for their name, path and group.
func (s *Summary) Failures(index map[string]*domain.Case) []domain.Failure {
	reports := s.Reports()
	var out []domain.Failure
	for _, r := range reports {
		st := r.Status()
		if st != domain.StatusFailed && st != domain.StatusError {
			continue
		}
		f := domain.Failure{
			CaseID:  r.CaseID,
			Name:    r.CaseID,
			Phase:   r.Phase,
			Status:  st,
			Message: firstLine(r.Message),
			Errors:  domain.ErrorLines(r.Err),
		}
		if c, ok := index[r.CaseID]; ok {
			f.Name = c.Name
			f.NodePath = c.Parent.ID
			if c.Group != nil {
				f.Group = c.Group.Key
			}
			if c.GroupID != "" {
				f.Group = c.GroupID
			}
		}
		out = append(out, f)
	}
	return out
}

// Output builds the persisted form of the run.
func (s *Summary) Output(runID string, cases []*domain.Case, groups int, elapsed time.Duration) domain.RunOutput {
	index := make(map[string]*domain.Case, len(cases))
	for _, c := range cases {
		index[c.ID] = c
	}
	details := s.Failures(index)
	if details == nil {
		details = []domain.Failure{}
	}
	return domain.RunOutput{
		Meta: domain.RunMeta{
			RunID:           runID,
			TotalCases:      len(cases),
			Groups:          groups,
			Counts:          s.Counts(),
			Warnings:        len(s.Warnings()),
			Duration:        elapsed.Round(time.Millisecond).String(),
			DurationSeconds: elapsed.Seconds(),
			Timestamp:       time.Now().Format(time.RFC3339),
		},
		Details: details,
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
