package engine

import (
	"context"
	"time"

	"cgr/internal/domain"
	"cgr/internal/fixture"
	"cgr/internal/report"
	"cgr/internal/runtest"

	"github.com/sirupsen/logrus"
)

// Observer is notified about group runs. metrics.Collector implements it.
type Observer interface {
	GroupRun(key string, members int)
	GroupInvalidated(key string, members int)
	CallPhase(key string, d time.Duration)
}

// Coordinator drives one group through setup, the concurrent call phase and
// teardown.
type Coordinator struct {
	registry *fixture.Registry
	state    *fixture.SetupState
	sink     report.Sink
	warn     report.WarningSink
	executor *Executor
	observer Observer
	log      *logrus.Logger
}

// NewCoordinator creates a Coordinator. Shared resources are materialized
// from registry and owned by the collectors on state.
func NewCoordinator(registry *fixture.Registry, state *fixture.SetupState, sink report.Sink, warn report.WarningSink, log *logrus.Logger) *Coordinator {
	if sink == nil {
		sink = report.Discard
	}
	if warn == nil {
		warn = report.Discard
	}
	return &Coordinator{
		registry: registry,
		state:    state,
		sink:     sink,
		warn:     warn,
		executor: NewExecutor(warn),
		log:      log,
	}
}

// SetObserver sets the group observer.
func (co *Coordinator) SetObserver(o Observer) {
	co.observer = o
}

// RunGroup runs every member of g. next is the first case that will run
// after g, or nil; the last member tears down every collector next does
// not need. Only fatal errors are returned.
func (co *Coordinator) RunGroup(ctx context.Context, g *Group, next *domain.Case) error {
	log := co.log.WithFields(logrus.Fields{"group": g.Key, "members": g.Len()})
	members := g.Members()

	if g.State() == StateInvalidated {
		co.warn.Warn(groupingWarning(g))
		if co.observer != nil {
			co.observer.GroupInvalidated(g.Key, g.Len())
		}
		log.Warn("group invalidated, skipping all members")
		co.skipAll(members)
		return nil
	}
	if co.observer != nil {
		co.observer.GroupRun(g.Key, g.Len())
	}

	for _, c := range members {
		co.sink.LogStart(c.ID)
	}

	if err := g.transition(StateSetupRunning); err != nil {
		return domain.Fatal(err)
	}
	ready, err := co.setupAll(ctx, g, members, log)
	if err != nil {
		return err
	}
	if err := g.transition(StateReady); err != nil {
		return domain.Fatal(err)
	}

	if err := g.transition(StateCallRunning); err != nil {
		return domain.Fatal(err)
	}
	start := time.Now()
	outcomes, err := co.executor.CallAll(ctx, ready)
	if err != nil {
		log.WithError(err).Error("call phase aborted")
		return err
	}
	elapsed := time.Since(start)
	if co.observer != nil {
		co.observer.CallPhase(g.Key, elapsed)
	}
	log.WithField("duration_ms", elapsed.Milliseconds()).Debug("call phase finished")
	for i, out := range outcomes {
		co.logReport(log, runtest.MakeReport(ready[i].Case, out))
	}

	if err := g.transition(StateTeardownRunning); err != nil {
		return domain.Fatal(err)
	}
	if err := co.teardownAll(ctx, g, members, next, log); err != nil {
		return err
	}

	for _, c := range members {
		co.sink.LogFinish(c.ID)
	}
	return nil
}

// setupAll sets up members in order and returns those whose setup passed.
func (co *Coordinator) setupAll(ctx context.Context, g *Group, members []*domain.Case, log *logrus.Entry) ([]Member, error) {
	var ready []Member
	for _, c := range members {
		if err := ctx.Err(); err != nil {
			return nil, domain.Fatal(err)
		}
		var args domain.Args
		out, fatal := runtest.FromCall(c.ID, domain.PhaseSetup, func() error {
			table, err := co.registry.Table(c)
			if err != nil {
				return err
			}
			table = Rewrite(table)
			if err := g.bind(c, table); err != nil {
				return err
			}
			args, err = runtest.Setup(ctx, co.registry, c, table, co.state, g.Sink(c))
			return err
		})
		if fatal != nil {
			log.WithField("case", c.ID).WithError(fatal).Error("setup aborted")
			return nil, fatal
		}
		co.logReport(log, runtest.MakeReport(c, out))
		if out.Err == nil {
			ready = append(ready, Member{Case: c, Args: args})
		}
	}
	return ready, nil
}

// teardownAll tears down members in declaration order. The last member also
// tears down the collectors that next does not share.
func (co *Coordinator) teardownAll(ctx context.Context, g *Group, members []*domain.Case, next *domain.Case, log *logrus.Entry) error {
	var nextChain []*domain.Node
	if next != nil {
		nextChain = next.Parent.Chain()
	}
	for i, c := range members {
		last := i == len(members)-1
		out, fatal := runtest.FromCall(c.ID, domain.PhaseTeardown, func() error {
			var errs []error
			if err := g.TeardownChild(c); err != nil {
				if domain.IsFatal(err) {
					return err
				}
				errs = append(errs, err)
			}
			if last {
				if err := co.state.TeardownExact(nextChain); err != nil {
					if domain.IsFatal(err) {
						return err
					}
					errs = append(errs, err)
				}
			}
			return domain.Combine("errors during teardown of "+c.ID, errs)
		})
		if fatal != nil {
			log.WithField("case", c.ID).WithError(fatal).Error("teardown aborted")
			return fatal
		}
		co.logReport(log, runtest.MakeReport(c, out))
	}
	if err := ctx.Err(); err != nil {
		return domain.Fatal(err)
	}
	return nil
}

// skipAll reports every member of an invalidated group as skipped.
func (co *Coordinator) skipAll(members []*domain.Case) {
	for _, c := range members {
		co.sink.LogStart(c.ID)
	}
	now := time.Now()
	for _, c := range members {
		co.sink.LogReport(domain.Report{
			CaseID:  c.ID,
			Phase:   domain.PhaseSetup,
			Outcome: domain.OutcomeSkipped,
			Message: "concurrent group members do not share a parent",
			Start:   now,
		})
		co.sink.LogReport(domain.Report{
			CaseID:  c.ID,
			Phase:   domain.PhaseTeardown,
			Outcome: domain.OutcomePassed,
			Start:   now,
		})
	}
	for _, c := range members {
		co.sink.LogFinish(c.ID)
	}
}

func (co *Coordinator) logReport(log *logrus.Entry, r domain.Report) {
	co.sink.LogReport(r)
	entry := log.WithFields(logrus.Fields{
		"case":        r.CaseID,
		"phase":       r.Phase,
		"outcome":     r.Outcome,
		"duration_ms": r.Duration.Milliseconds(),
	})
	if r.Outcome == domain.OutcomeFailed {
		entry.WithField("error", r.Message).Info("phase failed")
		return
	}
	entry.Debug("phase finished")
}
