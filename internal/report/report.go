// Package report defines the sinks that receive per-case run signals and
// the in-memory summary built from them.
package report

import (
	"cgr/internal/domain"
)

// Sink receives the run signals of every case. LogStart and LogFinish are
// batched per group in member order; LogReport is called once per phase.
type Sink interface {
	LogStart(caseID string)
	LogReport(r domain.Report)
	LogFinish(caseID string)
}

// WarningSink receives structured warnings.
type WarningSink interface {
	Warn(w domain.Warning)
}

// Tee forwards every signal to each of its sinks in order.
type Tee []Sink

func (t Tee) LogStart(caseID string) {
	for _, s := range t {
		s.LogStart(caseID)
	}
}

func (t Tee) LogReport(r domain.Report) {
	for _, s := range t {
		s.LogReport(r)
	}
}

func (t Tee) LogFinish(caseID string) {
	for _, s := range t {
		s.LogFinish(caseID)
	}
}

// Warnings forwards a warning to each of its sinks.
type Warnings []WarningSink

func (w Warnings) Warn(warning domain.Warning) {
	for _, s := range w {
		s.Warn(warning)
	}
}

// Discard drops every signal.
var Discard discard

type discard struct{}

func (discard) LogStart(string)         {}
func (discard) LogReport(domain.Report) {}
func (discard) LogFinish(string)        {}
func (discard) Warn(domain.Warning)     {}
