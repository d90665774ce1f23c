package main

import (
	"errors"
	"fmt"
	"os"

	"cgr/internal/cli"
	"cgr/internal/cli/commands"
	"cgr/internal/config"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "cgr",
		Short:         "Concurrent group runner",
		Long:          `Runs a suite of cases where async cases sharing a group key execute concurrently on one cooperative loop, with resources shared across the group and torn down per case.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cfg := config.New()
	var flags cli.Flags

	cmds := commands.NewCommands(cfg, buildSuite)
	cmds.Register(rootCmd, &flags, cfg)

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, commands.ErrCasesFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
