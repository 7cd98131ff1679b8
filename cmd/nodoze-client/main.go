// Command nodoze-client runs the registered plugin conditions on a
// schedule and tells nodozed when to keep the host awake. Grounded on
// original_source/client/no_doze_client.py's main() and
// arthur404dev-heimdall-cli/cmd/heimdall/main.go's cobra shape.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ericghara/no-doze/internal/client"
	"github.com/ericghara/no-doze/internal/condition"
	"github.com/ericghara/no-doze/internal/config"
	"github.com/ericghara/no-doze/internal/trayicon"
)

const defaultConfigPath = "resources/no-doze-client.yml"
const defaultPluginDir = "plugins"

func main() {
	var configPath string
	var pluginDir string
	var tray bool

	root := &cobra.Command{
		Use:           "nodoze-client",
		Short:         "Runs inhibiting-condition plugins and reports to nodozed",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, pluginDir, tray)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	root.Flags().StringVar(&pluginDir, "plugin-dir", defaultPluginDir, "directory to scan for compiled plugin conditions")
	root.Flags().BoolVar(&tray, "tray", false, "show a status tray icon reflecting inhibition state")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "nodoze-client:", err)
		os.Exit(1)
	}
}

func run(configPath, pluginDir string, tray bool) error {
	cfg, err := config.LoadClient(configPath)
	if err != nil {
		return err
	}
	log := newLogger(cfg.General.LoggingLevel)

	registrar := condition.NewStaticRegistrar()
	if errs := condition.Discover(pluginDir, registrar); len(errs) > 0 {
		for _, e := range errs {
			log.Warn("nodoze-client: plugin discovery error", "err", e)
		}
	}
	conditions := registrar.All()
	if len(conditions) == 0 {
		return fmt.Errorf("no inhibiting conditions registered; check --plugin-dir and your configuration")
	}

	loop := client.New(cfg, conditions, log)
	loop.Open()
	defer loop.Close()

	if tray {
		icon := trayicon.New(loop, log)
		stop := icon.Start()
		defer stop()
	}

	loop.Run()
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
