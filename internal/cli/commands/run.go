package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cgr/internal/config"
	"cgr/internal/domain"
	"cgr/internal/execution"
	"cgr/internal/metrics"
	"cgr/internal/report"
	"cgr/internal/storage"
	"cgr/internal/ui"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// ErrCasesFailed is returned by run when at least one case failed or errored.
var ErrCasesFailed = errors.New("some cases failed")

// RunCommand handles the run command
type RunCommand struct {
	config    *config.Config
	suite     SuiteFunc
	storage   storage.Storage
	formatter *ui.Formatter
	viewer    ui.Viewer
	log       *logrus.Logger
}

// NewRunCommand creates a new RunCommand
func NewRunCommand(
	cfg *config.Config,
	suite SuiteFunc,
	st storage.Storage,
	formatter *ui.Formatter,
	viewer ui.Viewer,
	log *logrus.Logger,
) *RunCommand {
	return &RunCommand{
		config:    cfg,
		suite:     suite,
		storage:   st,
		formatter: formatter,
		viewer:    viewer,
		log:       log,
	}
}

// Execute runs the command
func (rc *RunCommand) Execute(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sel := execution.Selection{
		NamePattern: rc.config.Flags.NameFilter,
		Group:       rc.config.Flags.Group,
	}
	if rc.config.Flags.OnlyFailed {
		prev, err := rc.storage.Load()
		if err != nil {
			return fmt.Errorf("load last run: %w", err)
		}
		sel.Only = failedCaseIDs(prev)
		if len(sel.Only) == 0 {
			color.Green("No failed cases in the last run")
			return nil
		}
	}

	var history storage.History
	if !rc.config.Flags.NoHistory {
		h, err := openHistory(rc.config)
		if err != nil {
			return err
		}
		defer h.Close()
		history = h
	}

	res, err := rc.run(ctx, sel, nil, history)
	if res == nil {
		return err
	}

	rc.formatter.PrintSummary(&res.Output)
	if err != nil {
		return fmt.Errorf("run aborted: %w", err)
	}
	if !res.Summary.Failed() {
		return nil
	}
	if rc.config.Flags.Open {
		if err := rc.viewer.View(&res.Output); err != nil {
			return err
		}
	}
	return ErrCasesFailed
}

// run builds the suite, executes the selection and records the result. It
// returns a nil result only when nothing was executed. collector and history
// may be nil.
func (rc *RunCommand) run(ctx context.Context, sel execution.Selection, collector *metrics.Collector, history storage.History) (*execution.Result, error) {
	suite, err := rc.suite(rc.config)
	if err != nil {
		return nil, fmt.Errorf("build suite: %w", err)
	}

	session := execution.NewSession(suite.Registry, rc.log)
	cases := session.Select(suite.Cases(), sel)
	if len(cases) == 0 {
		color.Yellow("No cases to execute")
		return nil, nil
	}

	console := ui.NewConsole(os.Stdout, rc.config.Flags.Verbose)
	sinks := []report.Sink{console}
	session.AddWarningSink(console)
	if collector != nil {
		sinks = append(sinks, collector)
		session.AddWarningSink(collector)
		session.SetObserver(collector)
	}
	if rc.config.Flags.Progress {
		bar := ui.NewProgressBar(os.Stderr, len(cases))
		defer bar.Finish()
		sinks = append(sinks, bar)
	}
	for _, s := range sinks {
		session.AddSink(s)
	}

	started := time.Now()
	res, runErr := session.Run(ctx, cases, execution.Selection{})

	if err := rc.storage.Save(&res.Output); err != nil {
		return res, fmt.Errorf("failed to save run results: %w", err)
	}
	if history != nil {
		if err := recordRun(context.WithoutCancel(ctx), history, res, started, runErr); err != nil {
			rc.log.WithError(err).Warn("record run history")
		}
	}
	return res, runErr
}

// recordRun stores a finished run and its reports.
func recordRun(ctx context.Context, h storage.History, res *execution.Result, started time.Time, runErr error) error {
	run := &storage.Run{
		ID:         res.RunID,
		Status:     storage.RunRunning,
		TotalCases: len(res.Cases),
		Groups:     res.Groups,
		StartedAt:  started.UTC(),
	}
	if err := h.CreateRun(ctx, run); err != nil {
		return err
	}
	if err := h.InsertReports(ctx, res.RunID, res.Summary.Reports()); err != nil {
		return err
	}

	status := storage.RunPassed
	switch {
	case runErr != nil:
		status = storage.RunAborted
	case res.Summary.Failed():
		status = storage.RunFailed
	}
	return h.FinishRun(ctx, res.RunID, status, res.Output.Meta)
}

func failedCaseIDs(out *domain.RunOutput) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, f := range out.Details {
		if f.Resolved || seen[f.CaseID] {
			continue
		}
		seen[f.CaseID] = true
		ids = append(ids, f.CaseID)
	}
	return ids
}
