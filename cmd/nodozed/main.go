// Command nodozed is the no-doze daemon: it holds the host's sleep
// inhibit lock on behalf of bound clients. Grounded on
// arthur404dev-heimdall-cli/cmd/heimdall/main.go's cobra-root-command
// shape and coltwillcox-inhibitor's signal-driven shutdown.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ericghara/no-doze/internal/config"
	"github.com/ericghara/no-doze/internal/daemon"
)

const defaultConfigPath = "resources/no-dozed.yml"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "nodozed",
		Short:         "Sleep inhibition-as-a-service daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "nodozed:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadDaemon(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LoggingLevel)

	d := daemon.New(cfg, log)
	if err := d.Open(); err != nil {
		return err
	}
	defer d.Close()

	d.Run()
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	l := slog.New(h)
	slog.SetDefault(l)
	return l
}
