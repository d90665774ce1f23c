package commands

import (
	"os"
	"os/signal"
	"syscall"

	"cgr/internal/api"
	"cgr/internal/config"
	"cgr/internal/execution"
	"cgr/internal/metrics"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// ServeCommand handles the serve command
type ServeCommand struct {
	config *config.Config
	run    *RunCommand
	log    *logrus.Logger
}

// NewServeCommand creates a new ServeCommand
func NewServeCommand(cfg *config.Config, run *RunCommand, log *logrus.Logger) *ServeCommand {
	return &ServeCommand{config: cfg, run: run, log: log}
}

// Execute runs the command
func (sc *ServeCommand) Execute(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := openHistory(sc.config)
	if err != nil {
		return err
	}
	defer h.Close()

	collector := metrics.NewCollector()
	srv := api.NewServer(sc.config.ListenAddr, h, collector, sc.log)

	done := make(chan struct{})
	if sc.config.Flags.RunOnStart {
		go func() {
			defer close(done)
			if _, err := sc.run.run(ctx, execution.Selection{}, collector, h); err != nil {
				sc.log.WithError(err).Error("startup run")
			}
		}()
	} else {
		close(done)
	}

	err = srv.Run(ctx)
	<-done
	return err
}
