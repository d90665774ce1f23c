package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"cgr/internal/config"
	"cgr/internal/domain"
	"cgr/internal/storage"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// HistoryCommand handles the history command
type HistoryCommand struct {
	config *config.Config
}

// NewHistoryCommand creates a new HistoryCommand
func NewHistoryCommand(cfg *config.Config) *HistoryCommand {
	return &HistoryCommand{config: cfg}
}

// Execute runs the command
func (hc *HistoryCommand) Execute(cmd *cobra.Command, args []string) error {
	h, err := openHistory(hc.config)
	if err != nil {
		return err
	}
	defer h.Close()

	limit := hc.config.Flags.Limit
	if limit <= 0 {
		limit = 10
	}
	runs, total, err := h.ListRuns(cmd.Context(), limit, 0)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		color.Yellow("No runs recorded")
		return nil
	}

	color.Cyan("Showing %d of %d run(s):\n", len(runs), total)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTATUS\tCASES\tPASSED\tFAILED\tERRORS\tDURATION\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%.2fs\t%s\n",
			r.ID, statusText(r.Status), r.TotalCases,
			r.Counts[domain.StatusPassed], r.Counts[domain.StatusFailed], r.Counts[domain.StatusError],
			float64(r.DurationMS)/1000, r.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func statusText(status string) string {
	switch status {
	case storage.RunPassed:
		return color.GreenString(status)
	case storage.RunFailed, storage.RunAborted:
		return color.RedString(status)
	default:
		return color.YellowString(status)
	}
}
