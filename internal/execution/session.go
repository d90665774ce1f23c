package execution

import (
	"context"
	"time"

	"cgr/internal/discovery"
	"cgr/internal/domain"
	"cgr/internal/engine"
	"cgr/internal/fixture"
	"cgr/internal/report"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// Session runs a whole selection: concurrent groups through the engine,
// then the remaining cases through the Runner, all sharing one setup stack.
type Session struct {
	registry *fixture.Registry
	filter   *discovery.Filter
	log      *logrus.Logger

	sinks    report.Tee
	warnings report.Warnings
	observer engine.Observer
}

// NewSession creates a new Session over the resources of registry
func NewSession(registry *fixture.Registry, log *logrus.Logger) *Session {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{
		registry: registry,
		filter:   discovery.NewFilter(),
		log:      log,
	}
}

// AddSink adds a sink that receives every report of the run
func (s *Session) AddSink(sink report.Sink) {
	s.sinks = append(s.sinks, sink)
}

// AddWarningSink adds a sink that receives every warning of the run
func (s *Session) AddWarningSink(w report.WarningSink) {
	s.warnings = append(s.warnings, w)
}

// SetObserver sets the observer of group runs
func (s *Session) SetObserver(o engine.Observer) {
	s.observer = o
}

// Select applies sel to cases, keeping declaration order
func (s *Session) Select(cases []*domain.Case, sel Selection) []*domain.Case {
	cases = s.filter.FilterByName(cases, sel.NamePattern)
	cases = s.filter.FilterByGroup(cases, sel.Group)
	if len(sel.Only) == 0 {
		return cases
	}
	keep := make(map[string]bool, len(sel.Only))
	for _, id := range sel.Only {
		keep[id] = true
	}
	var out []*domain.Case
	for _, c := range cases {
		if keep[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// Run executes the selected cases. Groups run first, in first-seen order;
// ungrouped cases follow in declaration order. A fatal error stops the run
// and is returned together with the partial result.
func (s *Session) Run(ctx context.Context, cases []*domain.Case, sel Selection) (*Result, error) {
	cases = s.Select(cases, sel)
	start := time.Now()

	summary := report.NewSummary()
	sink := append(report.Tee{summary}, s.sinks...)
	warn := append(report.Warnings{summary}, s.warnings...)
	state := fixture.NewSetupState()

	eng := engine.New(s.registry, state, sink, warn, s.log)
	if s.observer != nil {
		eng.SetObserver(s.observer)
	}
	groups, passthrough := eng.Plan(cases)

	res := &Result{
		RunID:       ulid.Make().String(),
		Cases:       cases,
		Groups:      len(groups),
		Passthrough: len(passthrough),
		Summary:     summary,
	}
	log := s.log.WithFields(logrus.Fields{"run": res.RunID, "cases": len(cases), "groups": len(groups)})
	log.Info("run started")

	err := eng.Run(ctx, groups, passthrough)
	if err == nil {
		err = NewRunner(s.registry, state, sink, s.log).Run(ctx, passthrough)
	}

	res.Duration = time.Since(start)
	res.Output = summary.Output(res.RunID, cases, len(groups), res.Duration)
	if err != nil {
		log.WithError(err).Error("run aborted")
		return res, err
	}
	log.WithField("duration_ms", res.Duration.Milliseconds()).Info("run finished")
	return res, nil
}

var _ Executor = (*Session)(nil)
