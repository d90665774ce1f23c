package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeChainAndIDs(t *testing.T) {
	session := NewSession("suite")
	pkg := session.Child(KindPackage, "pkg")
	mod := pkg.Child(KindModule, "mod_test.go")
	class := mod.Child(KindClass, "TestClass")

	assert.Equal(t, "pkg", pkg.ID)
	assert.Equal(t, "pkg/mod_test.go", mod.ID)
	assert.Equal(t, "pkg/mod_test.go::TestClass", class.ID)
	assert.Equal(t, []*Node{session, pkg, mod, class}, class.Chain())

	c := NewCase(class, "test_a").WithParams("1", map[string]any{"x": 1})
	assert.Equal(t, "pkg/mod_test.go::TestClass::test_a[1]", c.ID)
	assert.Equal(t, KindCase, c.Node().Kind)
}

func TestCaseArgNames(t *testing.T) {
	c := NewCase(NewSession("s"), "t")
	c.Resources = []string{"db", "x", "db"}
	c.Params = map[string]any{"x": 1, "b": 2, "a": 3}

	assert.Equal(t, []string{"db", "x", "a", "b"}, c.ArgNames())
}

func TestReportStatus(t *testing.T) {
	tests := []struct {
		name   string
		report Report
		want   Status
	}{
		{"call passed", Report{Phase: PhaseCall, Outcome: OutcomePassed}, StatusPassed},
		{"call failed", Report{Phase: PhaseCall, Outcome: OutcomeFailed}, StatusFailed},
		{"setup failed", Report{Phase: PhaseSetup, Outcome: OutcomeFailed}, StatusError},
		{"teardown failed", Report{Phase: PhaseTeardown, Outcome: OutcomeFailed}, StatusError},
		{"setup skipped", Report{Phase: PhaseSetup, Outcome: OutcomeSkipped}, StatusSkipped},
		{"xfailed", Report{Phase: PhaseCall, Outcome: OutcomeSkipped, WasXFail: "flaky"}, StatusXFailed},
		{"xpassed", Report{Phase: PhaseCall, Outcome: OutcomePassed, WasXFail: "flaky"}, StatusXPassed},
		{"setup passed", Report{Phase: PhaseSetup, Outcome: OutcomePassed}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.report.Status())
		})
	}
}

func TestCombine(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")

	assert.NoError(t, Combine("x", nil))
	assert.Same(t, first, Combine("x", []error{first}))

	err := Combine("tearing down case", []error{first, second})
	var ce *CompoundError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []error{first, second}, ce.Errs)
	assert.ErrorIs(t, err, second)
	assert.Equal(t, []string{"first", "second"}, ErrorLines(err))
	assert.Contains(t, err.Error(), "(2 errors)")
}

func TestFatalAndSkip(t *testing.T) {
	base := errors.New("interrupted")
	err := Fatal(base)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, base)
	assert.Same(t, err, Fatal(err))
	assert.NoError(t, Fatal(nil))
	assert.False(t, IsFatal(base))

	se, ok := IsSkip(Skip("not today"))
	require.True(t, ok)
	assert.Equal(t, "not today", se.Reason)
}

func TestArg(t *testing.T) {
	args := Args{"n": 3, "s": "x"}

	n, err := Arg[int](args, "n")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = Arg[int](args, "s")
	assert.Error(t, err)
	_, err = Arg[int](args, "missing")
	assert.Error(t, err)
	assert.Panics(t, func() { MustArg[string](args, "n") })
}
