package execution

import (
	"context"

	"cgr/internal/coop"
	"cgr/internal/domain"
	"cgr/internal/fixture"
	"cgr/internal/report"
	"cgr/internal/runtest"

	"github.com/sirupsen/logrus"
)

// Runner executes ungrouped cases one at a time with the same phase
// protocol the group coordinator uses
type Runner struct {
	registry *fixture.Registry
	state    *fixture.SetupState
	sink     report.Sink
	log      *logrus.Logger
}

// NewRunner creates a new Runner
func NewRunner(registry *fixture.Registry, state *fixture.SetupState, sink report.Sink, log *logrus.Logger) *Runner {
	if sink == nil {
		sink = report.Discard
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{registry: registry, state: state, sink: sink, log: log}
}

// Run executes cases in order. The last case tears down every collector.
func (r *Runner) Run(ctx context.Context, cases []*domain.Case) error {
	for i, c := range cases {
		var next *domain.Case
		if i+1 < len(cases) {
			next = cases[i+1]
		}
		if err := r.RunCase(ctx, c, next); err != nil {
			return err
		}
	}
	return nil
}

// RunCase runs setup, call and teardown of c. next is the case that runs
// afterwards, or nil; collectors it does not share are torn down with c.
// Only fatal errors are returned.
func (r *Runner) RunCase(ctx context.Context, c *domain.Case, next *domain.Case) error {
	log := r.log.WithField("case", c.ID)
	if err := ctx.Err(); err != nil {
		return domain.Fatal(err)
	}
	r.sink.LogStart(c.ID)

	fins := &fixture.FinalizerList{}
	var args domain.Args
	setup, fatal := runtest.FromCall(c.ID, domain.PhaseSetup, func() error {
		table, err := r.registry.Table(c)
		if err != nil {
			return err
		}
		args, err = runtest.Setup(ctx, r.registry, c, table, r.state, fins)
		return err
	})
	if fatal != nil {
		return fatal
	}
	r.report(log, runtest.MakeReport(c, setup))

	if setup.Err == nil {
		call, err := r.call(ctx, c, args)
		if err != nil {
			log.WithError(err).Error("call aborted")
			return err
		}
		r.report(log, runtest.MakeReport(c, call))
	}

	var nextChain []*domain.Node
	if next != nil {
		nextChain = next.Parent.Chain()
	}
	teardown, fatal := runtest.FromCall(c.ID, domain.PhaseTeardown, func() error {
		var errs []error
		if err := fins.Run("errors while tearing down " + c.ID); err != nil {
			if domain.IsFatal(err) {
				return err
			}
			errs = append(errs, err)
		}
		if err := r.state.TeardownExact(nextChain); err != nil {
			if domain.IsFatal(err) {
				return err
			}
			errs = append(errs, err)
		}
		return domain.Combine("errors during teardown of "+c.ID, errs)
	})
	if fatal != nil {
		return fatal
	}
	r.report(log, runtest.MakeReport(c, teardown))
	r.sink.LogFinish(c.ID)
	return nil
}

// call runs the body. Async bodies get a loop of their own.
func (r *Runner) call(ctx context.Context, c *domain.Case, args domain.Args) (domain.CallOutcome, error) {
	if !c.IsAsync() {
		return runtest.FromCall(c.ID, domain.PhaseCall, func() error {
			return c.Sync(args)
		})
	}

	var out domain.CallOutcome
	err := coop.Run(ctx, func(t *coop.Task) error {
		var fatal error
		out, fatal = runtest.FromCall(c.ID, domain.PhaseCall, func() error {
			return c.Async(t, args)
		})
		return fatal
	})
	if err != nil {
		return out, domain.Fatal(err)
	}
	return out, nil
}

func (r *Runner) report(log *logrus.Entry, rep domain.Report) {
	r.sink.LogReport(rep)
	log.WithFields(logrus.Fields{
		"phase":       rep.Phase,
		"outcome":     rep.Outcome,
		"duration_ms": rep.Duration.Milliseconds(),
	}).Debug("phase finished")
}
