package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"rsibot/internal/driver/backtest"
	"rsibot/internal/marketdata/replay"
	sqlitestore "rsibot/internal/store/sqlite"
	"rsibot/internal/strategy"
)

type backtestFlags struct {
	db       string
	symbol   string
	from     string
	to       string
	perDay   bool
	maxRuns  int
	parallel int
	speed    float64
	save     bool
	asJSON   bool
}

func newBacktestCmd(a *app) *cobra.Command {
	var f backtestFlags

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay recorded ticks through the strategy",
		Long: `Backtest replays ticks recorded in SQLite through a fresh engine and prints
Sharpe, equity, trades, candles, ticks and entry/exit counts.

With --per-day every UTC day is a separate run on its own engine, followed
by a summary (mean/median/min/max Sharpe and PnL, profitable days and the
compounded equity).

Examples:
  rsibot backtest --symbol BTCUSDT --from 2024-07-01 --to 2024-07-02
  rsibot backtest --symbol BTCUSDT --per-day --max-runs 10 --save`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBacktest(cmd, a, f)
		},
	}

	cmd.Flags().StringVarP(&f.db, "db", "d", "", "tick database (default SQLITE_PATH)")
	cmd.Flags().StringVarP(&f.symbol, "symbol", "s", "", "symbol to replay (default SYMBOL)")
	cmd.Flags().StringVar(&f.from, "from", "", "first day, YYYY-MM-DD (default: all history)")
	cmd.Flags().StringVar(&f.to, "to", "", "day after the last one, YYYY-MM-DD (default: open)")
	cmd.Flags().BoolVar(&f.perDay, "per-day", false, "one run per UTC day plus a summary")
	cmd.Flags().IntVar(&f.maxRuns, "max-runs", 0, "with --per-day, only the first N days (0 = all)")
	cmd.Flags().IntVarP(&f.parallel, "parallel", "p", 1, "runs executed concurrently")
	cmd.Flags().Float64Var(&f.speed, "speed", 0, "playback speed, 1 = real time, 0 = as fast as possible")
	cmd.Flags().BoolVar(&f.save, "save", false, "persist runs to the database")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print reports as JSON")
	return cmd
}

func runBacktest(cmd *cobra.Command, a *app, f backtestFlags) error {
	cfg := a.cfg
	if f.db == "" {
		f.db = cfg.SQLitePath
	}
	if f.symbol == "" {
		f.symbol = cfg.Symbol
	}
	from, err := parseDay(f.from)
	if err != nil {
		return err
	}
	to, err := parseDay(f.to)
	if err != nil {
		return err
	}

	sc, err := cfg.Strategy()
	if err != nil {
		return err
	}

	reader, err := sqlitestore.NewReader(f.db)
	if err != nil {
		return err
	}
	defer reader.Close()

	rp := replay.New(reader, f.speed)
	windows := []replay.Window{{Symbol: f.symbol, From: from, To: to}}
	if f.perDay {
		windows, err = dayWindows(rp, f.symbol, from, to, f.maxRuns)
		if err != nil {
			return err
		}
		if len(windows) == 0 {
			return fmt.Errorf("%w: %s has no recorded days in range", backtest.ErrNoTicks, f.symbol)
		}
	}

	sources := make([]backtest.Source, len(windows))
	for i, w := range windows {
		sources[i] = backtest.ReplaySource(rp, w, 1024)
	}
	newEngine := func() (*strategy.Engine, error) { return strategy.New(sc) }

	slog.Info("backtest: starting", "symbol", f.symbol, "runs", len(sources), "db", f.db)
	reports, err := backtest.RunMany(cmd.Context(), newEngine, sources, f.parallel)
	if err != nil {
		return err
	}

	if f.save {
		if err := saveReports(f.db, reports); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if f.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if !f.perDay {
			return enc.Encode(reports[0])
		}
		return enc.Encode(struct {
			Runs    []backtest.Report `json:"runs"`
			Summary backtest.Summary  `json:"summary"`
		}{reports, backtest.Summarize(reports)})
	}

	for _, r := range reports {
		backtest.WriteReport(out, r)
	}
	if f.perDay {
		backtest.WriteSummary(out, backtest.Summarize(reports))
	}
	if !f.perDay && reports[0].Failed() {
		return reports[0].Err
	}
	return nil
}

func dayWindows(rp *replay.Replayer, symbol string, from, to time.Time, max int) ([]replay.Window, error) {
	days, err := rp.Days(symbol)
	if err != nil {
		return nil, err
	}
	var out []replay.Window
	for _, w := range days {
		if w.From.Before(from) || (!to.IsZero() && !w.From.Before(to)) {
			continue
		}
		out = append(out, w)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out, nil
}

func saveReports(db string, reports []backtest.Report) error {
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: db})
	if err != nil {
		return err
	}
	defer w.Close()

	for _, r := range reports {
		if r.RunID == "" {
			continue
		}
		if err := w.SaveRun(r.Record()); err != nil {
			return err
		}
	}
	slog.Info("backtest: runs saved", "db", db, "runs", len(reports))
	return nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q, want YYYY-MM-DD", s)
	}
	return t, nil
}
