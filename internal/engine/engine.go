package engine

import (
	"context"

	"cgr/internal/domain"
	"cgr/internal/fixture"
	"cgr/internal/report"

	"github.com/sirupsen/logrus"
)

// Engine groups cases and runs each group through a Coordinator.
type Engine struct {
	builder     *GroupBuilder
	coordinator *Coordinator
	log         *logrus.Logger
}

// New creates an Engine. state must be the same SetupState the host uses
// for the cases Execute returns, so collector teardown stays consistent.
func New(registry *fixture.Registry, state *fixture.SetupState, sink report.Sink, warn report.WarningSink, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		builder:     NewGroupBuilder(),
		coordinator: NewCoordinator(registry, state, sink, warn, log),
		log:         log,
	}
}

// SetObserver sets the observer notified about group runs.
func (e *Engine) SetObserver(o Observer) {
	e.coordinator.SetObserver(o)
}

// Plan splits cases into groups and passthrough cases without running them.
func (e *Engine) Plan(cases []*domain.Case) ([]*Group, []*domain.Case) {
	return e.builder.Build(cases)
}

// Execute runs every group and returns the ungrouped cases, in input order,
// for the host to run sequentially. It stops at the first fatal error.
func (e *Engine) Execute(ctx context.Context, cases []*domain.Case) ([]*domain.Case, error) {
	groups, passthrough := e.builder.Build(cases)
	if err := e.Run(ctx, groups, passthrough); err != nil {
		return nil, err
	}
	return passthrough, nil
}

// Run runs already built groups. after are the cases the host runs next;
// the first of them bounds the collector teardown of the last group.
func (e *Engine) Run(ctx context.Context, groups []*Group, after []*domain.Case) error {
	e.log.WithField("groups", len(groups)).Debug("running concurrent groups")
	for i, g := range groups {
		if err := e.coordinator.RunGroup(ctx, g, nextCase(groups[i+1:], after)); err != nil {
			return err
		}
	}
	return nil
}

// nextCase returns the first case that will set up after the current group.
// Invalidated groups never set up and are skipped.
func nextCase(groups []*Group, after []*domain.Case) *domain.Case {
	for _, g := range groups {
		if g.State() != StateInvalidated && g.Len() > 0 {
			return g.members[0]
		}
	}
	if len(after) > 0 {
		return after[0]
	}
	return nil
}
