package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"cgr/internal/cli"
	"cgr/internal/config"
	"cgr/internal/discovery"
	"cgr/internal/storage"
	"cgr/internal/ui"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// SuiteFunc builds the suite to run once the configuration is loaded.
type SuiteFunc func(cfg *config.Config) (*discovery.Suite, error)

// Commands holds all CLI commands
type Commands struct {
	Run     *RunCommand
	List    *ListCommand
	Faills  *FaillsCommand
	History *HistoryCommand
	Serve   *ServeCommand

	log *logrus.Logger
}

// NewCommands creates all commands with dependencies
func NewCommands(cfg *config.Config, suite SuiteFunc) *Commands {
	log := config.NewLogger(os.Stderr, cfg.Level())
	jsonStorage := storage.NewJSONStorage(cfg)
	formatter := ui.NewFormatter(os.Stdout)
	errorViewer := ui.NewErrorViewer(jsonStorage, log)

	run := NewRunCommand(cfg, suite, jsonStorage, formatter, errorViewer, log)
	return &Commands{
		Run:     run,
		List:    NewListCommand(cfg, suite, jsonStorage, formatter),
		Faills:  NewFaillsCommand(jsonStorage, errorViewer),
		History: NewHistoryCommand(cfg),
		Serve:   NewServeCommand(cfg, run, log),
		log:     log,
	}
}

// Register registers all commands with cobra
func (c *Commands) Register(rootCmd *cobra.Command, flags *cli.Flags, cfg *config.Config) {
	rootCmd.PersistentFlags().StringVar(&flags.ConfigFile, "config", "", "Path to the YAML configuration file (default <project>/cgr.yaml)")
	rootCmd.PersistentFlags().StringVarP(&flags.ProjectPath, "project", "p", "", "Project directory holding the configuration, .env and output files")
	rootCmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	// Every command reloads the configuration after its flags are parsed.
	loadConfig := func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(flags.ToConfigFlags())
		if err != nil {
			return err
		}
		*cfg = *loaded
		c.log.SetLevel(cfg.Level())
		return nil
	}

	runCmd := &cobra.Command{
		Use:     "run",
		Short:   "Run the suite",
		Long:    "Execute the suite: concurrent groups first, then the remaining cases one by one",
		RunE:    c.Run.Execute,
		PreRunE: loadConfig,
	}
	runCmd.Flags().StringVarP(&flags.NameFilter, "filter", "f", "", "Filter cases by name or ID pattern (supports wildcards, e.g. '*login*')")
	runCmd.Flags().StringVarP(&flags.Group, "group", "g", "", "Run only the cases of one concurrency group")
	runCmd.Flags().BoolVar(&flags.OnlyFailed, "failed", false, "Run only cases that failed in the last run")
	runCmd.Flags().BoolVar(&flags.Progress, "progress", false, "Show a progress bar")
	runCmd.Flags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Print passing cases too")
	runCmd.Flags().BoolVar(&flags.NoHistory, "no-history", false, "Do not record the run in the history database")
	runCmd.Flags().BoolVar(&flags.OpenFaills, "open-faills", false, "Open the faills viewer when the run finishes with failures")
	rootCmd.AddCommand(runCmd)

	listCmd := &cobra.Command{
		Use:     "list",
		Short:   "List collected cases",
		Long:    "List the cases of the suite under their collectors without executing them",
		RunE:    c.List.Execute,
		PreRunE: loadConfig,
	}
	listCmd.Flags().StringVarP(&flags.NameFilter, "filter", "f", "", "Filter cases by name or ID pattern (supports wildcards, e.g. '*login*')")
	listCmd.Flags().StringVarP(&flags.Group, "group", "g", "", "List only the cases of one concurrency group")
	rootCmd.AddCommand(listCmd)

	faillsCmd := &cobra.Command{
		Use:     "faills",
		Short:   "View failures interactively",
		Long:    "Display failures from the last run in an interactive viewer",
		RunE:    c.Faills.Execute,
		PreRunE: loadConfig,
	}
	rootCmd.AddCommand(faillsCmd)

	historyCmd := &cobra.Command{
		Use:     "history",
		Short:   "Show recorded runs",
		Long:    "List the most recent runs recorded in the history database",
		RunE:    c.History.Execute,
		PreRunE: loadConfig,
	}
	historyCmd.Flags().IntVarP(&flags.Limit, "limit", "n", 10, "Number of runs to show")
	rootCmd.AddCommand(historyCmd)

	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve run history and metrics over HTTP",
		Long:    "Start an HTTP server exposing recorded runs, history statistics and Prometheus metrics",
		RunE:    c.Serve.Execute,
		PreRunE: loadConfig,
	}
	serveCmd.Flags().StringVarP(&flags.Listen, "listen", "l", "", "Address to listen on (default :8080)")
	serveCmd.Flags().BoolVar(&flags.RunOnStart, "run", false, "Execute the suite once at startup and record it")
	rootCmd.AddCommand(serveCmd)
}

// openHistory opens the history database, creating its directory.
func openHistory(cfg *config.Config) (*storage.SQLiteStore, error) {
	path := cfg.GetHistoryPath()
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	return storage.NewSQLiteStore(path)
}
