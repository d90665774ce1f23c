package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cgr/internal/coop"
	"cgr/internal/domain"
	"cgr/internal/fixture"
	"cgr/internal/report"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	reg     *fixture.Registry
	state   *fixture.SetupState
	summary *report.Summary
	engine  *Engine
}

func newHarness(extra ...report.Sink) *harness {
	log := logrus.New()
	log.SetOutput(io.Discard)

	h := &harness{
		reg:     fixture.NewRegistry(),
		state:   fixture.NewSetupState(),
		summary: report.NewSummary(),
	}
	sinks := append(report.Tee{h.summary}, extra...)
	h.engine = New(h.reg, h.state, sinks, h.summary, log)
	return h
}

func (h *harness) status(t *testing.T, c *domain.Case) []domain.Status {
	t.Helper()
	var out []domain.Status
	for _, r := range h.summary.ReportsFor(c.ID) {
		if st := r.Status(); st != "" {
			out = append(out, st)
		}
	}
	return out
}

func grouped(parent *domain.Node, name, key string, body domain.AsyncFunc) *domain.Case {
	c := domain.NewCase(parent, name)
	c.Group = &domain.GroupMark{Key: key}
	c.Async = body
	return c
}

func pass(*coop.Task, domain.Args) error { return nil }

func testModule() *domain.Node {
	return domain.NewSession("suite").Child(domain.KindPackage, "pkg").Child(domain.KindModule, "mod_test")
}

func TestExecuteGroupingViolation(t *testing.T) {
	h := newHarness()
	session := domain.NewSession("suite")
	modA := session.Child(domain.KindModule, "a_test")
	modB := session.Child(domain.KindModule, "b_test")

	called := false
	body := func(*coop.Task, domain.Args) error { called = true; return nil }
	cases := []*domain.Case{
		grouped(modA, "test_1", "g", body),
		grouped(modA, "test_2", "g", body),
		grouped(modB, "test_3", "g", body),
	}

	passthrough, err := h.engine.Execute(context.Background(), cases)
	require.NoError(t, err)
	assert.Empty(t, passthrough)
	assert.False(t, called)

	for _, c := range cases {
		assert.Equal(t, []domain.Status{domain.StatusSkipped}, h.status(t, c), c.ID)
	}
	warnings := h.summary.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, domain.WarningGrouping, warnings[0].Kind)
	assert.Equal(t, "g", warnings[0].Group)
}

func TestExecuteCallPhaseIsConcurrent(t *testing.T) {
	h := newHarness()
	mod := testModule()
	sleeper := func(d time.Duration) domain.AsyncFunc {
		return func(t *coop.Task, _ domain.Args) error { return t.Sleep(d) }
	}
	a := grouped(mod, "test_slow", "g", sleeper(150*time.Millisecond))
	b := grouped(mod, "test_fast", "g", sleeper(100*time.Millisecond))

	start := time.Now()
	_, err := h.engine.Execute(context.Background(), []*domain.Case{a, b})
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, 240*time.Millisecond)
	assert.Equal(t, []domain.Status{domain.StatusPassed}, h.status(t, a))
	assert.Equal(t, []domain.Status{domain.StatusPassed}, h.status(t, b))
}

func TestExecutePerCaseIsolation(t *testing.T) {
	h := newHarness()
	mod := testModule()
	newList := func(*fixture.Request) (any, error) { return &[]int{}, nil }
	h.reg.MustRegister(
		fixture.Definition{Name: "items", Factory: newList},
		fixture.Definition{Name: "shared", Scope: fixture.ScopeModule, Factory: newList},
	)

	var perCase, cumulative []int
	body := func(_ *coop.Task, args domain.Args) error {
		n := domain.MustArg[int](args, "n")
		items := domain.MustArg[*[]int](args, "items")
		shared := domain.MustArg[*[]int](args, "shared")
		*items = append(*items, n)
		*shared = append(*shared, n)
		perCase = append(perCase, len(*items))
		cumulative = append(cumulative, len(*shared))
		return nil
	}

	var cases []*domain.Case
	for n := 1; n <= 3; n++ {
		c := grouped(mod, "test_append", "lists", body).WithParams(fmt.Sprint(n), map[string]any{"n": n})
		c.Resources = []string{"items", "shared"}
		cases = append(cases, c)
	}

	_, err := h.engine.Execute(context.Background(), cases)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1}, perCase)
	assert.Equal(t, []int{1, 2, 3}, cumulative)
	assert.Equal(t, 3, h.summary.Count(domain.StatusPassed))
}

func TestExecuteTeardownFailures(t *testing.T) {
	tests := []struct {
		name       string
		scope      fixture.Scope
		wantErrors int
	}{
		{"per-case resource fails once per member", fixture.ScopeFunction, 3},
		{"shared resource fails once", fixture.ScopeModule, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			mod := testModule()
			h.reg.MustRegister(fixture.Definition{Name: "conn", Scope: tt.scope, Factory: func(r *fixture.Request) (any, error) {
				r.AddFinalizer(func() error { return errors.New("close failed") })
				return "conn", nil
			}})

			var cases []*domain.Case
			for i := 0; i < 3; i++ {
				c := grouped(mod, fmt.Sprintf("test_%d", i), "g", pass)
				c.Resources = []string{"conn"}
				cases = append(cases, c)
			}
			_, err := h.engine.Execute(context.Background(), cases)
			require.NoError(t, err)

			assert.Equal(t, 3, h.summary.Count(domain.StatusPassed))
			assert.Equal(t, tt.wantErrors, h.summary.Count(domain.StatusError))
			last := h.status(t, cases[2])
			assert.Equal(t, []domain.Status{domain.StatusPassed, domain.StatusError}, last)
		})
	}
}

func TestExecuteSetupErrors(t *testing.T) {
	t.Run("per-case factory failure is isolated", func(t *testing.T) {
		h := newHarness()
		mod := testModule()
		h.reg.MustRegister(fixture.Definition{Name: "value", Factory: func(r *fixture.Request) (any, error) {
			n, _ := r.Param("n")
			if n == 2 {
				return nil, errors.New("cannot build 2")
			}
			return n, nil
		}, Deps: []string{"n"}})

		var cases []*domain.Case
		for n := 1; n <= 3; n++ {
			c := grouped(mod, "test_value", "g", pass).WithParams(fmt.Sprint(n), map[string]any{"n": n})
			c.Resources = []string{"value"}
			cases = append(cases, c)
		}
		_, err := h.engine.Execute(context.Background(), cases)
		require.NoError(t, err)

		assert.Equal(t, []domain.Status{domain.StatusPassed}, h.status(t, cases[0]))
		assert.Equal(t, []domain.Status{domain.StatusError}, h.status(t, cases[1]))
		assert.Equal(t, []domain.Status{domain.StatusPassed}, h.status(t, cases[2]))
	})

	t.Run("shared factory failure repeats per member", func(t *testing.T) {
		h := newHarness()
		mod := testModule()
		calls := 0
		h.reg.MustRegister(fixture.Definition{Name: "db", Scope: fixture.ScopePackage, Factory: func(*fixture.Request) (any, error) {
			calls++
			return nil, errors.New("db unavailable")
		}})

		called := false
		body := func(*coop.Task, domain.Args) error { called = true; return nil }
		var cases []*domain.Case
		for i := 0; i < 3; i++ {
			c := grouped(mod, fmt.Sprintf("test_%d", i), "g", body)
			c.Resources = []string{"db"}
			cases = append(cases, c)
		}
		_, err := h.engine.Execute(context.Background(), cases)
		require.NoError(t, err)

		assert.Equal(t, 3, calls)
		assert.Equal(t, 3, h.summary.Count(domain.StatusError))
		assert.False(t, called)
	})
}

func TestExecuteSyncBodyRejected(t *testing.T) {
	h := newHarness()
	mod := testModule()

	called := false
	syncCase := domain.NewCase(mod, "test_sync")
	syncCase.Group = &domain.GroupMark{Key: "g"}
	syncCase.Sync = func(domain.Args) error { called = true; return nil }
	sibling := grouped(mod, "test_async", "g", func(t *coop.Task, _ domain.Args) error { return t.Yield() })

	_, err := h.engine.Execute(context.Background(), []*domain.Case{syncCase, sibling})
	require.NoError(t, err)

	assert.False(t, called)
	assert.Equal(t, []domain.Status{domain.StatusSkipped}, h.status(t, syncCase))
	assert.Equal(t, []domain.Status{domain.StatusPassed}, h.status(t, sibling))
	warnings := h.summary.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, domain.WarningInvalidMark, warnings[0].Kind)
	assert.Equal(t, syncCase.ID, warnings[0].CaseID)
}

func TestExecuteCallFailuresAreIndependent(t *testing.T) {
	h := newHarness()
	mod := testModule()
	failing := grouped(mod, "test_fail", "g", func(t *coop.Task, _ domain.Args) error {
		if err := t.Yield(); err != nil {
			return err
		}
		return errors.New("assertion failed")
	})
	panicking := grouped(mod, "test_panic", "g", func(*coop.Task, domain.Args) error { panic("boom") })
	finished := false
	slow := grouped(mod, "test_slow", "g", func(t *coop.Task, _ domain.Args) error {
		if err := t.Sleep(20 * time.Millisecond); err != nil {
			return err
		}
		finished = true
		return nil
	})
	xfail := grouped(mod, "test_known", "g", func(*coop.Task, domain.Args) error { return errors.New("bug") })
	xfail.Marks.XFail = &domain.XFailMark{Reason: "known bug"}

	_, err := h.engine.Execute(context.Background(), []*domain.Case{failing, panicking, slow, xfail})
	require.NoError(t, err)

	assert.True(t, finished)
	assert.Equal(t, []domain.Status{domain.StatusFailed}, h.status(t, failing))
	assert.Equal(t, []domain.Status{domain.StatusFailed}, h.status(t, panicking))
	assert.Equal(t, []domain.Status{domain.StatusPassed}, h.status(t, slow))
	assert.Equal(t, []domain.Status{domain.StatusXFailed}, h.status(t, xfail))
}

func TestExecuteFatalAborts(t *testing.T) {
	h := newHarness()
	mod := testModule()
	fatal := grouped(mod, "test_interrupt", "g", func(*coop.Task, domain.Args) error {
		return domain.Fatal(errors.New("interrupted"))
	})
	other := grouped(mod, "test_other", "g", func(t *coop.Task, _ domain.Args) error {
		return t.Sleep(time.Second)
	})

	start := time.Now()
	_, err := h.engine.Execute(context.Background(), []*domain.Case{fatal, other})
	require.Error(t, err)
	assert.True(t, domain.IsFatal(err))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Empty(t, h.summary.Finished())
}

func TestExecuteContextCancelled(t *testing.T) {
	h := newHarness()
	mod := testModule()
	c := grouped(mod, "test_hang", "g", func(t *coop.Task, _ domain.Args) error {
		return t.Sleep(5 * time.Second)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := h.engine.Execute(ctx, []*domain.Case{c})
	require.Error(t, err)
	assert.True(t, domain.IsFatal(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) LogStart(id string) { r.add("start " + id) }
func (r *recorder) LogReport(rep domain.Report) {
	r.add(fmt.Sprintf("%s %s", rep.Phase, rep.CaseID))
}
func (r *recorder) LogFinish(id string) { r.add("finish " + id) }
func (r *recorder) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func TestExecuteSignalOrder(t *testing.T) {
	rec := &recorder{}
	h := newHarness(rec)
	mod := session().Child(domain.KindModule, "m")
	a := grouped(mod, "a", "g", func(t *coop.Task, _ domain.Args) error { return t.Sleep(30 * time.Millisecond) })
	b := grouped(mod, "b", "g", pass)

	_, err := h.engine.Execute(context.Background(), []*domain.Case{a, b})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"start m::a", "start m::b",
		"setup m::a", "setup m::b",
		"call m::a", "call m::b",
		"teardown m::a", "teardown m::b",
		"finish m::a", "finish m::b",
	}, rec.events)
}

func session() *domain.Node { return domain.NewSession("suite") }

func TestExecuteCollectorTeardownFollowsNextGroup(t *testing.T) {
	h := newHarness()
	s := session()
	mod1 := s.Child(domain.KindModule, "one_test")
	mod2 := s.Child(domain.KindModule, "two_test")

	var events []string
	h.reg.MustRegister(fixture.Definition{Name: "conn", Scope: fixture.ScopeModule, Factory: func(r *fixture.Request) (any, error) {
		id := r.Node().ID
		events = append(events, "open "+id)
		r.AddFinalizer(func() error { events = append(events, "close "+id); return nil })
		return id, nil
	}})
	withConn := func(c *domain.Case) *domain.Case {
		c.Resources = []string{"conn"}
		return c
	}
	cases := []*domain.Case{
		withConn(grouped(mod1, "test_a", "first", pass)),
		withConn(grouped(mod1, "test_b", "second", pass)),
		withConn(grouped(mod2, "test_c", "third", pass)),
	}
	plain := domain.NewCase(mod2, "test_plain")
	cases = append(cases, plain)

	passthrough, err := h.engine.Execute(context.Background(), cases)
	require.NoError(t, err)
	assert.Equal(t, []*domain.Case{plain}, passthrough)
	assert.Equal(t, []string{"open one_test", "close one_test", "open two_test"}, events)
	assert.Equal(t, []string{"suite", "two_test"}, h.state.Stacked())

	require.NoError(t, h.state.TeardownExact(nil))
	assert.Equal(t, "close two_test", events[len(events)-1])
}

func TestExecuteSharedResourceOnParametrizedValue(t *testing.T) {
	h := newHarness()
	mod := testModule()
	calls := 0
	h.reg.MustRegister(fixture.Definition{
		Name:  "conn",
		Scope: fixture.ScopeModule,
		Deps:  []string{"n"},
		Factory: func(r *fixture.Request) (any, error) {
			calls++
			n, _ := r.Param("n")
			return n, nil
		},
	})

	var cases []*domain.Case
	for n := 1; n <= 3; n++ {
		c := grouped(mod, "test_conn", "g", pass).WithParams(fmt.Sprint(n), map[string]any{"n": n})
		c.Resources = []string{"conn"}
		cases = append(cases, c)
	}
	_, err := h.engine.Execute(context.Background(), cases)
	require.NoError(t, err)

	assert.Zero(t, calls)
	for _, c := range cases {
		assert.Equal(t, []domain.Status{domain.StatusError}, h.status(t, c), c.ID)
	}
	for _, r := range h.summary.ReportsFor(cases[0].ID) {
		if r.Phase == domain.PhaseSetup {
			assert.Contains(t, r.Message, "conn")
		}
	}
}

func TestExecuteLazySharedResourceBuiltOnce(t *testing.T) {
	h := newHarness()
	mod := testModule()
	var calls atomic.Int32
	closed := false
	h.reg.MustRegister(fixture.Definition{
		Name:  "pool",
		Scope: fixture.ScopeModule,
		Factory: func(r *fixture.Request) (any, error) {
			calls.Add(1)
			time.Sleep(30 * time.Millisecond)
			r.AddFinalizer(func() error { closed = true; return nil })
			return &struct{ name string }{"pool"}, nil
		},
	})

	var got []any
	body := func(t *coop.Task, args domain.Args) error {
		req := domain.MustArg[*fixture.Request](args, fixture.RequestArg)
		var v any
		err := t.Await(func(context.Context) error {
			var err error
			v, err = req.Resource("pool")
			return err
		})
		if err != nil {
			return err
		}
		got = append(got, v)
		return nil
	}
	var cases []*domain.Case
	for i := 0; i < 2; i++ {
		c := grouped(mod, fmt.Sprintf("test_pool_%d", i), "g", body)
		c.Resources = []string{fixture.RequestArg}
		cases = append(cases, c)
	}

	_, err := h.engine.Execute(context.Background(), cases)
	require.NoError(t, err)

	assert.EqualValues(t, 1, calls.Load())
	require.Len(t, got, 2)
	assert.Same(t, got[0], got[1])
	for _, c := range cases {
		assert.Equal(t, []domain.Status{domain.StatusPassed}, h.status(t, c), c.ID)
	}
	assert.True(t, closed)
}

func TestExecuteFatalInSetupAndTeardown(t *testing.T) {
	interrupted := func() error { return domain.Fatal(errors.New("interrupted")) }
	tests := []struct {
		name      string
		scope     fixture.Scope
		inSetup   bool
		wantCalls int
	}{
		{"setup factory", fixture.ScopeFunction, true, 1},
		{"per-case finalizer", fixture.ScopeFunction, false, 3},
		{"shared finalizer", fixture.ScopeModule, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			h := newHarness(rec)
			mod := testModule()
			calls := 0
			h.reg.MustRegister(fixture.Definition{Name: "conn", Scope: tt.scope, Factory: func(r *fixture.Request) (any, error) {
				calls++
				if tt.inSetup {
					return nil, interrupted()
				}
				r.AddFinalizer(interrupted)
				return "conn", nil
			}})

			bodies := 0
			body := func(*coop.Task, domain.Args) error { bodies++; return nil }
			var cases []*domain.Case
			for i := 0; i < 3; i++ {
				c := grouped(mod, fmt.Sprintf("test_%d", i), "g", body)
				c.Resources = []string{"conn"}
				cases = append(cases, c)
			}

			_, err := h.engine.Execute(context.Background(), cases)
			require.Error(t, err)
			assert.True(t, domain.IsFatal(err))
			assert.Equal(t, tt.wantCalls, calls)
			assert.Empty(t, h.summary.Finished())
			for _, ev := range rec.events {
				assert.NotContains(t, ev, "finish ")
			}
			if tt.inSetup {
				assert.Zero(t, bodies)
				for _, ev := range rec.events {
					assert.NotContains(t, ev, "call ")
				}
			} else {
				assert.Equal(t, 3, bodies)
			}
		})
	}
}

func TestExecuteGroupMemberWithoutParent(t *testing.T) {
	h := newHarness()
	mod := testModule()

	called := false
	body := func(*coop.Task, domain.Args) error { called = true; return nil }
	orphan := &domain.Case{ID: "orphan", Name: "orphan", Group: &domain.GroupMark{Key: "g"}, Async: body}
	cases := []*domain.Case{grouped(mod, "test_a", "g", body), orphan}

	_, err := h.engine.Execute(context.Background(), cases)
	require.NoError(t, err)

	assert.False(t, called)
	for _, c := range cases {
		assert.Equal(t, []domain.Status{domain.StatusSkipped}, h.status(t, c), c.ID)
	}
	warnings := h.summary.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "<none>")
	assert.Contains(t, warnings[0].Message, mod.ID)

	h = newHarness()
	alone := &domain.Case{ID: "alone", Name: "alone", Group: &domain.GroupMark{Key: "solo"}, Async: body}
	_, err = h.engine.Execute(context.Background(), []*domain.Case{alone})
	require.NoError(t, err)
	assert.Equal(t, []domain.Status{domain.StatusSkipped}, h.status(t, alone))
}
