// Package cli implements the rsibot command line.
package cli

import (
	"io"

	"github.com/spf13/cobra"

	"rsibot/config"
	"rsibot/internal/logger"
)

// app carries state shared by the subcommands.
type app struct {
	cfg          *config.Config
	strategyFile string
	logLevel     string
}

// NewRootCmd builds the rsibot command tree.
func NewRootCmd(version string, out io.Writer) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "rsibot",
		Short: "RSI/Bollinger tick strategy: backtests and live paper trading",
		Long: `rsibot folds ticks into candles, derives RSI, Bollinger and ATR indicators,
and trades a long/short/flat position on RSI threshold crossings.

Configuration comes from the environment (and .env). STRATEGY_FILE or
--strategy-file points to a YAML file overriding the strategy parameters.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.SetOut(out)
	root.SetErr(out)

	root.PersistentFlags().StringVar(&a.strategyFile, "strategy-file", "", "YAML strategy parameters (overrides STRATEGY_FILE)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")

	root.AddCommand(
		newBacktestCmd(a),
		newLiveCmd(a),
		newStatusCmd(a),
		newVersionCmd(version),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.strategyFile != "" {
		if err := cfg.ApplyStrategyFile(a.strategyFile); err != nil {
			return err
		}
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Init("rsibot", level, cfg.LogFormat)
	a.cfg = cfg
	return nil
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("rsibot version %s\n", version)
		},
	}
}
