package logcmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/rzbill/flolog/internal/config"
	"github.com/rzbill/flolog/internal/runtime"
	logpkg "github.com/rzbill/flolog/pkg/log"
)

// NewRoot constructs the root flolog command with every subcommand registered.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "flolog",
		Short:         "Framed record log tools",
		Long:          "flolog reads, verifies, merges and archives CRC-framed record logs.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.String("config", os.Getenv("FLOLOG_CONFIG"), "Config file (.json, .yaml or .yml)")
	pf.String("data-dir", "", "Event log data directory (overrides store.dataDir)")
	pf.String("log-level", "", "Log level: debug|info|warn|error")
	pf.String("log-format", "", "Log format: text|json")

	root.AddCommand(
		newCatCommand(),
		newVerifyCommand(),
		newImportCommand(),
		newExportCommand(),
		newTailCommand(),
		newTrimCommand(),
		newLogsCommand(),
		newArchiveCommand(),
	)
	return root
}

// loadConfig layers defaults, the --config file, FLOLOG_* variables and the
// persistent flags, in that order.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfg, err
	}
	cfgpkg.FromEnv(&cfg)
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.Store.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	return cfg, nil
}

// openRuntime builds a runtime whose logger writes to the command's stderr.
// mutate, when set, applies command-specific flags before validation.
func openRuntime(cmd *cobra.Command, mutate func(*cfgpkg.Config)) (*runtime.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(&cfg)
	}
	level, err := logpkg.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	var formatter logpkg.Formatter = &logpkg.TextFormatter{}
	if strings.EqualFold(cfg.Log.Format, "json") {
		formatter = &logpkg.JSONFormatter{}
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(level),
		logpkg.WithFormatter(formatter),
		logpkg.WithOutput(&logpkg.ConsoleOutput{W: cmd.ErrOrStderr()}),
	).With(logpkg.Component("cli"), logpkg.Operation(cmd.Name()))
	return runtime.Open(runtime.Options{Config: cfg, Logger: logger})
}
