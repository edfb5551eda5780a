package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alejandrodnm/polybacktest/internal/domain"
	"github.com/alejandrodnm/polybacktest/internal/ports"
	"github.com/olekukonko/tablewriter"
)

// Formatos de salida soportados.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// Console implementa ports.Reporter.
type Console struct {
	out    io.Writer
	format string
}

// NewConsole crea un reporter que escribe a stdout. format vacío = tabla.
func NewConsole(format string) *Console {
	return NewConsoleWriter(os.Stdout, format)
}

// NewConsoleWriter crea un reporter sobre un writer arbitrario (tests, ficheros).
func NewConsoleWriter(w io.Writer, format string) *Console {
	if format == "" {
		format = FormatTable
	}
	return &Console{out: w, format: format}
}

// Report imprime una corrida como resumen o varias como tabla comparativa.
func (c *Console) Report(_ context.Context, results []*domain.Result) error {
	if len(results) == 0 {
		fmt.Fprintln(c.out, "no backtest results")
		return nil
	}

	if c.format == FormatJSON {
		return c.writeJSON(results)
	}

	if len(results) == 1 {
		c.printSummary(results[0])
		return nil
	}
	c.printComparison(results)
	return nil
}

// jsonReport es la forma estable del output JSON.
type jsonReport struct {
	RunID   string             `json:"run_id"`
	Name    string             `json:"name"`
	Metrics map[string]float64 `json:"metrics"`
	Stats   domain.RunStats    `json:"stats"`
}

func (c *Console) writeJSON(results []*domain.Result) error {
	out := make([]jsonReport, 0, len(results))
	for _, r := range results {
		out = append(out, jsonReport{
			RunID:   r.RunID,
			Name:    r.Name,
			Metrics: r.Metrics.Report(),
			Stats:   r.Stats,
		})
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("notify.Report: encode json: %w", err)
	}
	return nil
}

// printSummary imprime el bloque de métricas de una corrida.
func (c *Console) printSummary(res *domain.Result) {
	rep := res.Metrics.Report()
	cfg := res.Config

	fmt.Fprintf(c.out, "\n")
	fmt.Fprintf(c.out, "========================================================\n")
	fmt.Fprintf(c.out, "  BACKTEST %s (%s)\n", res.Name, shortID(res.RunID))
	fmt.Fprintf(c.out, "  capital $%.0f | max pos %.1f%% | kelly %.2f | slip %.1f%% | gas $%.2f\n",
		cfg.StartingCapital, cfg.MaxPositionSizePct, cfg.KellyFraction,
		cfg.SlippagePct*100, cfg.GasCostPerTrade)
	fmt.Fprintf(c.out, "========================================================\n\n")

	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Metric", "Value")
	for _, row := range []struct {
		label string
		key   string
		unit  string
	}{
		{"Trades", "total_trades", ""},
		{"Winning", "winning_trades", ""},
		{"Losing", "losing_trades", ""},
		{"Win rate", "win_rate", "%"},
		{"Total PnL", "total_pnl", "$"},
		{"Total return", "total_return_pct", "%"},
		{"Annualized", "annualized_return_pct", "%"},
		{"Sharpe", "sharpe_ratio", ""},
		{"Sortino", "sortino_ratio", ""},
		{"Max drawdown", "max_drawdown_pct", "%"},
		{"Profit factor", "profit_factor", ""},
		{"Avg win", "avg_win", "$"},
		{"Avg loss", "avg_loss", "$"},
		{"Gas", "total_gas_costs", "$"},
		{"Slippage", "total_slippage_cost", "$"},
		{"Gas / PnL", "gas_pct_of_pnl", "%"},
		{"Final capital", "final_capital", "$"},
	} {
		tbl.Append(row.label, formatValue(rep[row.key], row.unit))
	}
	tbl.Render()

	st := res.Stats
	fmt.Fprintf(c.out, "\n  %d timestamps | %d signals (%d unmatched) | %d opened | %d closed | %d still open\n",
		st.Timestamps, st.Signals, st.UnmatchedSignals, st.Opened, st.Closed, st.StillOpen)
	if st.Rejected() > 0 {
		fmt.Fprintf(c.out, "  rejected %d: liq %d | cap %d | size %d | dup %d | edge %d | daily %d | breaker %d\n",
			st.Rejected(), st.RejectedLiquidity, st.RejectedCapital, st.RejectedNotional,
			st.RejectedDuplicate, st.RejectedEdge, st.RejectedDaily, st.RejectedBreaker)
	}
	fmt.Fprintln(c.out)
}

// printComparison imprime una fila por escenario.
func (c *Console) printComparison(results []*domain.Result) {
	fmt.Fprintf(c.out, "\n%d scenarios\n", len(results))

	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Scenario", "Trades", "Win%", "PnL", "Return%", "Annual%", "Sharpe", "Sortino", "MaxDD%", "PF", "Final$")
	for _, r := range results {
		rep := r.Metrics.Report()
		tbl.Append(
			r.Name,
			fmt.Sprintf("%d", r.Metrics.TotalTrades),
			fmt.Sprintf("%.2f", rep["win_rate"]),
			fmt.Sprintf("$%.2f", rep["total_pnl"]),
			fmt.Sprintf("%.2f", rep["total_return_pct"]),
			fmt.Sprintf("%.2f", rep["annualized_return_pct"]),
			fmt.Sprintf("%.2f", rep["sharpe_ratio"]),
			fmt.Sprintf("%.2f", rep["sortino_ratio"]),
			fmt.Sprintf("%.2f", rep["max_drawdown_pct"]),
			fmt.Sprintf("%.2f", rep["profit_factor"]),
			fmt.Sprintf("$%.2f", rep["final_capital"]),
		)
	}
	tbl.Render()
	fmt.Fprintln(c.out)
}

// PrintTrades imprime el log de trades cerrados. limit <= 0 = todos.
func (c *Console) PrintTrades(res *domain.Result, limit int) {
	trades := res.Trades
	if len(trades) == 0 {
		fmt.Fprintln(c.out, "  no closed trades")
		return
	}
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}

	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Entry", "Exit", "Market", "Side", "Entry$", "Exit$", "Qty", "PnL", "PnL%", "Hold")
	for _, t := range trades {
		tbl.Append(
			t.EntryTime.Format("01-02 15:04"),
			t.ExitTime.Format("01-02 15:04"),
			compactName(t.MarketID, 20),
			string(t.Side),
			fmt.Sprintf("%.4f", t.EntryPrice),
			fmt.Sprintf("%.4f", t.ExitPrice),
			fmt.Sprintf("%.2f", t.Quantity),
			fmt.Sprintf("$%.2f", t.PnL),
			fmt.Sprintf("%.2f", t.PnLPct),
			t.HoldingPeriod().String(),
		)
	}
	tbl.Render()
	if len(trades) < len(res.Trades) {
		fmt.Fprintf(c.out, "  ... %d more trades\n", len(res.Trades)-len(trades))
	}
}

// PrintRuns lista las corridas guardadas.
func (c *Console) PrintRuns(runs []ports.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "  no saved runs")
		return
	}

	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Run", "Name", "Started", "Trades", "PnL", "Sharpe", "MaxDD%", "Final$")
	for _, r := range runs {
		tbl.Append(
			r.RunID,
			r.Name,
			r.StartedAt.Format("2006-01-02 15:04"),
			fmt.Sprintf("%d", r.TotalTrades),
			fmt.Sprintf("$%.2f", r.TotalPnL),
			fmt.Sprintf("%.2f", r.SharpeRatio),
			fmt.Sprintf("%.2f", r.MaxDrawdown*100),
			fmt.Sprintf("$%.2f", r.FinalCapital),
		)
	}
	tbl.Render()
}

func formatValue(v float64, unit string) string {
	switch unit {
	case "$":
		return fmt.Sprintf("$%.2f", v)
	case "%":
		return fmt.Sprintf("%.2f%%", v)
	}
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

// compactName recorta a max runas añadiendo "...".
func compactName(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
