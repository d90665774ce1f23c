package execution

import (
	"context"
	"errors"
	"io"
	"testing"

	"cgr/internal/coop"
	"cgr/internal/domain"
	"cgr/internal/engine"
	"cgr/internal/fixture"
	"cgr/internal/report"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func phases(s *report.Summary, id string) []string {
	var out []string
	for _, r := range s.ReportsFor(id) {
		out = append(out, string(r.Phase)+":"+string(r.Outcome)+":"+r.WasXFail)
	}
	return out
}

func TestRunnerModuleResourceShared(t *testing.T) {
	session := domain.NewSession("suite")
	modA := session.Child(domain.KindModule, "a_test")
	modB := session.Child(domain.KindModule, "b_test")

	var events []string
	reg := fixture.NewRegistry()
	reg.MustRegister(fixture.Definition{Name: "conn", Scope: fixture.ScopeModule, Factory: func(r *fixture.Request) (any, error) {
		events = append(events, "open "+r.Node().ID)
		r.AddFinalizer(func() error { events = append(events, "close "+r.Node().ID); return nil })
		return r.Node().ID, nil
	}})

	var seen []string
	body := func(args domain.Args) error {
		seen = append(seen, domain.MustArg[string](args, "conn"))
		return nil
	}
	mk := func(parent *domain.Node, name string) *domain.Case {
		c := domain.NewCase(parent, name)
		c.Resources = []string{"conn"}
		c.Sync = body
		return c
	}

	state := fixture.NewSetupState()
	summary := report.NewSummary()
	runner := NewRunner(reg, state, summary, quietLogger())
	err := runner.Run(context.Background(), []*domain.Case{mk(modA, "test_1"), mk(modA, "test_2"), mk(modB, "test_3")})
	require.NoError(t, err)

	assert.Equal(t, []string{"a_test", "a_test", "b_test"}, seen)
	assert.Equal(t, []string{"open a_test", "close a_test", "open b_test", "close b_test"}, events)
	assert.Empty(t, state.Stacked())
	assert.Equal(t, 3, summary.Count(domain.StatusPassed))
}

func TestRunnerOutcomes(t *testing.T) {
	mod := domain.NewSession("suite").Child(domain.KindModule, "m")
	panics := domain.NewCase(mod, "test_panic")
	panics.Sync = func(domain.Args) error { panic("bad") }
	skipped := domain.NewCase(mod, "test_skipped")
	skipped.Marks.Skip = &domain.SkipMark{Reason: "wip"}
	skipped.Sync = func(domain.Args) error { t.Fatal("skipped body ran"); return nil }
	async := domain.NewCase(mod, "test_async")
	async.Async = func(t *coop.Task, _ domain.Args) error { return t.Yield() }

	summary := report.NewSummary()
	runner := NewRunner(fixture.NewRegistry(), fixture.NewSetupState(), summary, quietLogger())
	require.NoError(t, runner.Run(context.Background(), []*domain.Case{panics, skipped, async}))

	assert.Equal(t, []string{"setup:passed:", "call:failed:", "teardown:passed:"}, phases(summary, panics.ID))
	assert.Equal(t, []string{"setup:skipped:", "teardown:passed:"}, phases(summary, skipped.ID))
	assert.Equal(t, []string{"setup:passed:", "call:passed:", "teardown:passed:"}, phases(summary, async.ID))
}

func TestRunnerFatal(t *testing.T) {
	mod := domain.NewSession("suite").Child(domain.KindModule, "m")
	c := domain.NewCase(mod, "test_interrupt")
	c.Sync = func(domain.Args) error { return domain.Fatal(errors.New("interrupt")) }
	after := domain.NewCase(mod, "test_after")
	ran := false
	after.Sync = func(domain.Args) error { ran = true; return nil }

	summary := report.NewSummary()
	err := NewRunner(fixture.NewRegistry(), fixture.NewSetupState(), summary, quietLogger()).
		Run(context.Background(), []*domain.Case{c, after})
	assert.True(t, domain.IsFatal(err))
	assert.False(t, ran)
	assert.Empty(t, summary.Finished())
}

// buildRoundTrip returns a fresh registry and case exercising per-case
// teardown errors and an xfail mark.
func buildRoundTrip(grouped bool) (*fixture.Registry, *domain.Case) {
	mod := domain.NewSession("suite").Child(domain.KindModule, "roundtrip_test")
	reg := fixture.NewRegistry()
	reg.MustRegister(
		fixture.Definition{Name: "conn", Factory: func(r *fixture.Request) (any, error) {
			r.AddFinalizer(func() error { return errors.New("close one") })
			r.AddFinalizer(func() error { return errors.New("close two") })
			return "conn", nil
		}},
		fixture.Definition{Name: "shared", Scope: fixture.ScopeModule, Factory: func(r *fixture.Request) (any, error) {
			r.AddFinalizer(func() error { return errors.New("shared close") })
			return "shared", nil
		}},
	)
	c := domain.NewCase(mod, "test_roundtrip").WithParams("x", map[string]any{"p": "x"})
	c.Resources = []string{"conn", "shared"}
	c.Marks.XFail = &domain.XFailMark{Reason: "flaky"}
	c.Async = func(t *coop.Task, args domain.Args) error {
		if err := t.Yield(); err != nil {
			return err
		}
		return errors.New("expected")
	}
	if grouped {
		c.Group = &domain.GroupMark{Key: "solo"}
	}
	return reg, c
}

func TestSingletonGroupMatchesHostRun(t *testing.T) {
	regHost, host := buildRoundTrip(false)
	hostSummary := report.NewSummary()
	require.NoError(t, NewRunner(regHost, fixture.NewSetupState(), hostSummary, quietLogger()).
		Run(context.Background(), []*domain.Case{host}))

	regGroup, member := buildRoundTrip(true)
	groupSummary := report.NewSummary()
	eng := engine.New(regGroup, fixture.NewSetupState(), groupSummary, groupSummary, quietLogger())
	passthrough, err := eng.Execute(context.Background(), []*domain.Case{member})
	require.NoError(t, err)
	require.Empty(t, passthrough)

	assert.Equal(t, phases(hostSummary, host.ID), phases(groupSummary, member.ID))
	assert.Equal(t, hostSummary.Counts(), groupSummary.Counts())

	hostReports, groupReports := hostSummary.Reports(), groupSummary.Reports()
	require.Len(t, groupReports, len(hostReports))
	for i := range hostReports {
		assert.Equal(t, hostReports[i].Message, groupReports[i].Message)
	}
	last := groupReports[len(groupReports)-1]
	assert.Equal(t, domain.PhaseTeardown, last.Phase)
	assert.Equal(t, []string{"close two", "close one", "shared close"}, domain.ErrorLines(last.Err))
}
