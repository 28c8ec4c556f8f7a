package backtest

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Summary aggregates the successful runs of a batch.
type Summary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Profitable int `json:"profitable"`

	MeanSharpe   float64 `json:"mean_sharpe"`
	MedianSharpe float64 `json:"median_sharpe"`
	MinSharpe    float64 `json:"min_sharpe"`
	MaxSharpe    float64 `json:"max_sharpe"`

	MeanPnL   float64 `json:"mean_pnl_percent"`
	MedianPnL float64 `json:"median_pnl_percent"`
	MinPnL    float64 `json:"min_pnl_percent"`
	MaxPnL    float64 `json:"max_pnl_percent"`

	// CumulativeEquity compounds the runs: the product of their equities.
	CumulativeEquity float64 `json:"cumulative_equity"`
}

// Summarize aggregates reports. Failed runs count toward Total only.
func Summarize(reports []Report) Summary {
	s := Summary{Total: len(reports), CumulativeEquity: 1}

	var sharpes, pnls []float64
	for _, r := range reports {
		if r.Failed() {
			continue
		}
		sharpes = append(sharpes, r.Sharpe)
		pnls = append(pnls, r.PnLPercent)
		s.CumulativeEquity *= r.Equity
		if r.PnLPercent > 0 {
			s.Profitable++
		}
	}
	s.Successful = len(sharpes)
	if s.Successful == 0 {
		return s
	}

	s.MeanSharpe, s.MedianSharpe, s.MinSharpe, s.MaxSharpe = stats(sharpes)
	s.MeanPnL, s.MedianPnL, s.MinPnL, s.MaxPnL = stats(pnls)
	return s
}

// stats returns mean, median (upper middle for even counts), min and max.
func stats(vs []float64) (mean, median, lo, hi float64) {
	sorted := append([]float64(nil), vs...)
	sort.Float64s(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted)), sorted[len(sorted)/2], sorted[0], sorted[len(sorted)-1]
}

// WriteReport prints one run the way the backtest command shows it.
func WriteReport(w io.Writer, r Report) {
	if r.Failed() {
		fmt.Fprintf(w, "%s\n  error: %v\n", r.Source, r.Err)
		return
	}
	fmt.Fprintf(w, "%s (run %s)\n", r.Source, r.RunID)
	fmt.Fprintf(w, "  sharpe:  %8.4f\n", r.Sharpe)
	fmt.Fprintf(w, "  equity:  %8.4f (%+6.2f%%)\n", r.Equity, r.PnLPercent)
	fmt.Fprintf(w, "  trades:  %d\n", len(r.Trades))
	fmt.Fprintf(w, "  candles: %d\n", r.Candles)
	fmt.Fprintf(w, "  ticks:   %d\n", r.Ticks)
	fmt.Fprintf(w, "  entries: %d  exits: %d\n", len(r.Entries), len(r.Exits))
}

// WriteSummary prints s.
func WriteSummary(w io.Writer, s Summary) {
	line := strings.Repeat("=", 60)
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "successful runs:   %d/%d\n", s.Successful, s.Total)
	if s.Successful > 0 {
		fmt.Fprintf(w, "sharpe mean/med:   %8.4f / %8.4f\n", s.MeanSharpe, s.MedianSharpe)
		fmt.Fprintf(w, "sharpe min/max:    %8.4f / %8.4f\n", s.MinSharpe, s.MaxSharpe)
		fmt.Fprintf(w, "pnl mean/med:      %+6.2f%% / %+6.2f%%\n", s.MeanPnL, s.MedianPnL)
		fmt.Fprintf(w, "pnl min/max:       %+6.2f%% / %+6.2f%%\n", s.MinPnL, s.MaxPnL)
		fmt.Fprintf(w, "profitable runs:   %d/%d (%.1f%%)\n", s.Profitable, s.Successful,
			float64(s.Profitable)/float64(s.Successful)*100)
	}
	fmt.Fprintf(w, "cumulative equity: %.4f (%+6.2f%%)\n", s.CumulativeEquity, (s.CumulativeEquity-1)*100)
	fmt.Fprintln(w, line)
}
