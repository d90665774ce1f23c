// Package runtest holds the per-phase protocol shared by the group
// coordinator and the sequential runner, so both produce the same reports
// for the same case.
package runtest

import (
	"context"
	"runtime/debug"
	"time"

	"cgr/internal/domain"
	"cgr/internal/fixture"
)

// FromCall runs fn as the given phase of caseID, timing it and recovering a
// panic into the outcome error. A fatal error is returned as the second value
// and must abort the run.
func FromCall(caseID string, phase domain.Phase, fn func() error) (domain.CallOutcome, error) {
	start := time.Now()
	err := protect(fn)
	stop := time.Now()

	outcome := domain.CallOutcome{
		CaseID:   caseID,
		Phase:    phase,
		Err:      err,
		Start:    start,
		Stop:     stop,
		Duration: stop.Sub(start),
	}
	if domain.IsFatal(err) {
		return outcome, err
	}
	return outcome, nil
}

func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return fn()
}

// Setup pushes the collectors of c onto state, evaluates the skip mark and
// materializes every argument of c from table. Per-case finalizers go to
// caseSink. A case that declares fixture.RequestArg receives the request
// itself.
func Setup(ctx context.Context, reg *fixture.Registry, c *domain.Case, table fixture.Table, state *fixture.SetupState, caseSink fixture.Sink) (domain.Args, error) {
	if err := state.Setup(c.Parent.Chain()); err != nil {
		return nil, err
	}
	if c.Marks.Skip != nil {
		return nil, domain.Skip(c.Marks.Skip.Reason)
	}

	req := reg.NewRequest(ctx, c, table, state.Owner(c.Parent, caseSink))
	names := c.ArgNames()
	args := make(domain.Args, len(names))
	for _, name := range names {
		if name == fixture.RequestArg {
			args[name] = req
			continue
		}
		v, err := req.Resource(name)
		if err != nil {
			return nil, err
		}
		args[name] = v
	}
	return args, nil
}

// MakeReport turns an outcome into the report for its phase.
func MakeReport(c *domain.Case, outcome domain.CallOutcome) domain.Report {
	r := domain.Report{
		CaseID:   c.ID,
		Phase:    outcome.Phase,
		Start:    outcome.Start,
		Duration: outcome.Duration,
	}
	xfail := c.Marks.XFail
	if outcome.Phase != domain.PhaseCall {
		xfail = nil
	}

	err := outcome.Err
	if se, ok := domain.IsSkip(err); ok {
		r.Outcome = domain.OutcomeSkipped
		r.Message = se.Reason
		return r
	}

	switch {
	case err == nil && xfail != nil && xfail.Strict:
		r.Outcome = domain.OutcomeFailed
		r.Message = "[XPASS(strict)] " + xfailReason(xfail)
	case err == nil && xfail != nil:
		r.Outcome = domain.OutcomePassed
		r.WasXFail = xfailReason(xfail)
	case err == nil:
		r.Outcome = domain.OutcomePassed
	case xfail != nil:
		r.Outcome = domain.OutcomeSkipped
		r.WasXFail = xfailReason(xfail)
		r.Message = err.Error()
	default:
		r.Outcome = domain.OutcomeFailed
		r.Message = err.Error()
		r.Err = err
	}
	return r
}

func xfailReason(m *domain.XFailMark) string {
	if m.Reason == "" {
		return "expected failure"
	}
	return m.Reason
}
