package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"rsibot/config"
	"rsibot/internal/model"
	redisstore "rsibot/internal/store/redis"
	sqlitestore "rsibot/internal/store/sqlite"
	"rsibot/internal/strategy"
)

func newStatusCmd(a *app) *cobra.Command {
	var (
		signals int64
		runs    int
		db      string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the environment and show the last published engine state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			checkEnv(out, a.cfg)

			if runs > 0 {
				if db == "" {
					db = a.cfg.SQLitePath
				}
				if err := showSavedRuns(out, db, runs); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			client, err := redisstore.NewClient(ctx, redisstore.Config{Addr: a.cfg.RedisAddr, Password: a.cfg.RedisPassword})
			if err != nil {
				fmt.Fprintf(out, "\nredis %s: unavailable (%v)\n", a.cfg.RedisAddr, err)
				return nil
			}
			r := redisstore.NewStateReader(client)
			defer r.Close()
			return showState(ctx, out, r, a.cfg.Symbol, signals)
		},
	}
	cmd.Flags().Int64VarP(&signals, "signals", "n", 5, "recent signal events to show")
	cmd.Flags().IntVar(&runs, "runs", 0, "also list the last N backtest runs saved with backtest --save")
	cmd.Flags().StringVarP(&db, "db", "d", "", "run database (default SQLITE_PATH)")
	return cmd
}

// checkEnv reports which credentials are configured without printing them.
func checkEnv(w io.Writer, cfg *config.Config) {
	set := func(v string) string {
		if v == "" {
			return "not set"
		}
		return "set"
	}
	testnet := "yes"
	if cfg.Testnet == "0" {
		testnet = "no (MAINNET)"
	}

	fmt.Fprintln(w, "environment:")
	fmt.Fprintf(w, "  API_KEY:            %s\n", set(cfg.APIKey))
	fmt.Fprintf(w, "  API_SECRET:         %s\n", set(cfg.APISecret))
	fmt.Fprintf(w, "  TESTNET:            %s\n", testnet)
	fmt.Fprintf(w, "  TELEGRAM_BOT_TOKEN: %s\n", set(cfg.TelegramBotToken))
	fmt.Fprintf(w, "  TELEGRAM_CHAT_ID:   %s\n", set(cfg.TelegramChatID))
	fmt.Fprintf(w, "  SYMBOL:             %s\n", cfg.Symbol)
}

type stateSource interface {
	ReadState(ctx context.Context, symbol string) ([]byte, error)
	RecentSignals(ctx context.Context, symbol string, n int64) ([][]byte, error)
}

func showState(ctx context.Context, w io.Writer, r stateSource, symbol string, n int64) error {
	data, err := r.ReadState(ctx, symbol)
	if errors.Is(err, redisstore.ErrStateNotFound) {
		fmt.Fprintf(w, "\nno published state for %s (is the live bot running?)\n", symbol)
		return nil
	}
	if err != nil {
		return err
	}

	var st strategy.State
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("status: decode state: %w", err)
	}
	fmt.Fprintf(w, "\nengine %s:\n", symbol)
	fmt.Fprintf(w, "  position:    %s\n", st.Position)
	if st.EntryPrice > 0 {
		fmt.Fprintf(w, "  entry price: %.2f\n", st.EntryPrice)
	}
	fmt.Fprintf(w, "  equity:      %.4f\n", st.Equity)
	fmt.Fprintf(w, "  sharpe:      %.4f\n", st.Sharpe)
	fmt.Fprintf(w, "  trades:      %d\n", st.Trades)
	fmt.Fprintf(w, "  candles:     %d\n", st.Candles)
	fmt.Fprintf(w, "  ticks:       %d\n", st.Ticks)
	if !st.LastTick.IsZero() {
		fmt.Fprintf(w, "  last tick:   %s\n", st.LastTick.Format(time.DateTime))
	}
	if s := st.Snapshot; s != nil {
		fmt.Fprintf(w, "  rsi:         %.2f\n", s.RSI)
		if b := s.Bands; b != nil {
			fmt.Fprintf(w, "  bollinger:   %.2f / %.2f / %.2f\n", b.Lower, b.Mean, b.Upper)
		}
	}

	if n <= 0 {
		return nil
	}
	sigs, err := r.RecentSignals(ctx, symbol, n)
	if err != nil {
		return err
	}
	if len(sigs) > 0 {
		fmt.Fprintln(w, "\nrecent events:")
	}
	for _, s := range sigs {
		fmt.Fprintf(w, "  %s\n", s)
	}
	return nil
}

type runSource interface {
	RecentRuns(n int) ([]string, error)
	ReadRun(runID string) (model.RunRecord, error)
}

func showSavedRuns(w io.Writer, db string, n int) error {
	r, err := sqlitestore.NewReader(db)
	if err != nil {
		return err
	}
	defer r.Close()
	return showRuns(w, r, n)
}

// showRuns lists saved backtest runs, newest first.
func showRuns(w io.Writer, r runSource, n int) error {
	ids, err := r.RecentRuns(n)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "\nno saved backtest runs")
		return nil
	}

	fmt.Fprintf(w, "\nsaved backtest runs (%d):\n", len(ids))
	for _, id := range ids {
		rec, err := r.ReadRun(id)
		if err != nil {
			return err
		}
		if rec.Err != "" {
			fmt.Fprintf(w, "  %s  %-24s error: %s\n", rec.RunID, rec.Source, rec.Err)
			continue
		}
		fmt.Fprintf(w, "  %s  %-24s sharpe %8.4f  equity %.4f (%+6.2f%%)  trades %d  entries %d  exits %d\n",
			rec.RunID, rec.Source, rec.Sharpe, rec.Equity, rec.PnLPercent,
			len(rec.Trades), len(rec.Entries), len(rec.Exits))
	}
	return nil
}
