package engine

import (
	"context"
	"fmt"

	"cgr/internal/coop"
	"cgr/internal/domain"
	"cgr/internal/report"
	"cgr/internal/runtest"
)

// Member is a group member whose setup passed, with its resolved arguments.
type Member struct {
	Case *domain.Case
	Args domain.Args
}

// Executor runs the call phase of a group.
type Executor struct {
	warn report.WarningSink
}

// NewExecutor creates an Executor that reports rejected bodies to warn.
func NewExecutor(warn report.WarningSink) *Executor {
	if warn == nil {
		warn = report.Discard
	}
	return &Executor{warn: warn}
}

// CallAll runs every member body on one cooperative loop and waits for all
// of them. It returns one outcome per member, in member order. A failing
// body never stops its siblings; a fatal error or a cancelled ctx aborts
// the wait and is returned.
func (x *Executor) CallAll(ctx context.Context, members []Member) ([]domain.CallOutcome, error) {
	outcomes := make([]domain.CallOutcome, len(members))

	var tasks []coop.TaskFunc
	for i, m := range members {
		i, c, args := i, m.Case, m.Args
		if !c.IsAsync() {
			x.warn.Warn(domain.Warning{
				Kind:    domain.WarningInvalidMark,
				Group:   c.GroupID,
				CaseID:  c.ID,
				Message: fmt.Sprintf("%s is marked for concurrent execution but its body cannot suspend; skipped", c.ID),
			})
			outcomes[i], _ = runtest.FromCall(c.ID, domain.PhaseCall, func() error {
				return domain.Skip("body cannot suspend: marked for concurrent execution")
			})
			continue
		}
		tasks = append(tasks, func(t *coop.Task) error {
			out, fatal := runtest.FromCall(c.ID, domain.PhaseCall, func() error {
				return c.Async(t, args)
			})
			outcomes[i] = out
			return fatal
		})
	}

	if err := coop.Run(ctx, tasks...); err != nil {
		return outcomes, domain.Fatal(err)
	}
	return outcomes, nil
}
