package commands

import (
	"cgr/internal/config"
	"cgr/internal/execution"
	"cgr/internal/storage"
	"cgr/internal/ui"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// ListCommand handles the list command
type ListCommand struct {
	config    *config.Config
	suite     SuiteFunc
	storage   storage.Storage
	formatter *ui.Formatter
}

// NewListCommand creates a new ListCommand
func NewListCommand(cfg *config.Config, suite SuiteFunc, st storage.Storage, formatter *ui.Formatter) *ListCommand {
	return &ListCommand{
		config:    cfg,
		suite:     suite,
		storage:   st,
		formatter: formatter,
	}
}

// Execute runs the command
func (lc *ListCommand) Execute(cmd *cobra.Command, args []string) error {
	suite, err := lc.suite(lc.config)
	if err != nil {
		return err
	}

	session := execution.NewSession(suite.Registry, nil)
	cases := session.Select(suite.Cases(), execution.Selection{
		NamePattern: lc.config.Flags.NameFilter,
		Group:       lc.config.Flags.Group,
	})
	if len(cases) == 0 {
		color.Yellow("No cases found")
		return nil
	}

	// The last run is optional; without it nothing is marked.
	failed := make(map[string]struct{})
	if prev, err := lc.storage.Load(); err == nil {
		for _, id := range failedCaseIDs(prev) {
			failed[id] = struct{}{}
		}
	}

	lc.formatter.PrintCaseList(cases, failed)
	return nil
}
