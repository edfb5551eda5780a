package backtest

// engine.go — simulación walk-forward sobre el histórico de mercados.
//
// Por cada timestamp distinto del histórico, en orden ascendente:
//  1. Entradas: cada señal del timestamp pasa los filtros (liquidez, capital,
//     límites de riesgo) y se abre con sizing Kelly + slippage.
//  2. Update: las posiciones cuyo mercado trae resolución se cierran; el resto
//     se marca a mercado solo para el snapshot.
//  3. Snapshot: capital + PnL no realizado.

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polybacktest/internal/domain"
	"github.com/google/uuid"
)

// Engine ejecuta corridas con una configuración fija.
type Engine struct {
	cfg  domain.BacktestConfig
	name string
}

// New crea un engine. name identifica la corrida en reportes y storage.
func New(cfg domain.BacktestConfig, name string) *Engine {
	if name == "" {
		name = "default"
	}
	return &Engine{cfg: cfg, name: name}
}

// Config devuelve la configuración de la corrida.
func (e *Engine) Config() domain.BacktestConfig {
	return e.cfg
}

// Run simula el input completo y devuelve el bundle de resultados.
// Devuelve error solo si la config o el input violan precondiciones;
// los rechazos de señales nunca son errores.
func (e *Engine) Run(in Input) (*domain.Result, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("backtest.Run: %w: %v", ErrInvalidConfig, err)
	}

	markets := filterMarkets(in.Markets, in.Window)
	signals := filterSignals(in.Signals, in.Window)
	if err := validateInput(markets, signals); err != nil {
		return nil, fmt.Errorf("backtest.Run: %w", err)
	}

	started := time.Now().UTC()
	steps, unmatched := buildSteps(markets, signals)

	st := newState(e.cfg)
	st.stats.Signals = len(signals)
	st.stats.UnmatchedSignals = unmatched
	st.stats.Timestamps = len(steps)

	if e.cfg.ExecutionLatencyMs > 0 {
		slog.Debug("backtest: execution latency is informational, fills use the signal timestamp",
			"latency_ms", e.cfg.ExecutionLatencyMs)
	}

	for _, s := range steps {
		st.breaker.Roll(s.ts, st.capital)
		e.enter(st, s)
		unrealized := e.update(st, s)
		st.snapshot(s.ts, unrealized)
	}
	st.stats.StillOpen = len(st.open)

	metrics := CalculateMetrics(e.cfg, st.trades, st.snapshots, st.capital)

	slog.Info("backtest: run complete",
		"name", e.name,
		"timestamps", st.stats.Timestamps,
		"signals", st.stats.Signals,
		"opened", st.stats.Opened,
		"closed", st.stats.Closed,
		"rejected", st.stats.Rejected(),
		"still_open", st.stats.StillOpen,
		"final_capital", fmt.Sprintf("$%.2f", st.capital),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)

	return &domain.Result{
		RunID:     uuid.New().String(),
		Name:      e.name,
		StartedAt: started,
		Config:    e.cfg,
		Metrics:   metrics,
		Stats:     st.stats,
		Trades:    st.trades,
		Snapshots: st.snapshots,
	}, nil
}

// enter evalúa y abre las señales de un timestamp.
func (e *Engine) enter(st *simulationState, s step) {
	for _, sig := range s.signals {
		if reason := e.reject(st, s, sig); reason != "" {
			slog.Debug("backtest: signal rejected",
				"ts", s.ts.Format(time.RFC3339),
				"market", sig.MarketID,
				"strategy", sig.Strategy,
				"reason", reason,
			)
			continue
		}

		pos, ok := openPosition(e.cfg, st.capital, sig, s.ts)
		if !ok {
			st.stats.RejectedNotional++
			slog.Debug("backtest: position below notional floor",
				"market", sig.MarketID,
				"fair_value", sig.FairValue,
				"entry_price", sig.EntryPrice,
			)
			continue
		}

		st.putPosition(pos)
		st.breaker.RecordEntry()
		st.stats.Opened++
		slog.Debug("backtest: opened position",
			"ts", s.ts.Format(time.RFC3339),
			"market", pos.MarketID,
			"side", pos.Side,
			"fill", fmt.Sprintf("%.4f", pos.EntryPrice),
			"notional", fmt.Sprintf("$%.2f", pos.CostBasis),
		)
	}
}

// reject devuelve el motivo de rechazo de una señal, o "" si es elegible.
// Incrementa el contador correspondiente en las stats.
func (e *Engine) reject(st *simulationState, s step, sig domain.Signal) string {
	row := s.rows[sig.MarketID] // sin fila → liquidez 0
	switch {
	case row.Liquidity < e.cfg.MinLiquidity:
		st.stats.RejectedLiquidity++
		return "insufficient liquidity"
	case e.cfg.MaxPositionUSDC(st.capital) < domain.MinPositionUSDC:
		st.stats.RejectedCapital++
		return "insufficient capital"
	case e.cfg.MinEdge > 0 && sig.EdgeSize < e.cfg.MinEdge:
		st.stats.RejectedEdge++
		return "edge below minimum"
	case !st.breaker.IsOpen(s.ts):
		st.stats.RejectedBreaker++
		return "circuit breaker: " + st.breaker.TriggeredReason
	case st.breaker.DailyLimitReached():
		st.stats.RejectedDaily++
		return "daily trade limit"
	case st.hasPosition(sig.MarketID) && e.cfg.Duplicates == domain.DuplicateReject:
		st.stats.RejectedDuplicate++
		return "position already open"
	}
	return ""
}

// update cierra las posiciones resueltas y devuelve el PnL no realizado del resto.
func (e *Engine) update(st *simulationState, s step) float64 {
	for _, marketID := range append([]string(nil), st.order...) {
		row, ok := s.rows[marketID]
		if !ok || !row.Resolution.Resolved() {
			continue
		}
		trade := closePosition(e.cfg, st.open[marketID], row.Resolution, s.ts)
		st.applyClose(trade)
		slog.Debug("backtest: closed position",
			"ts", s.ts.Format(time.RFC3339),
			"market", marketID,
			"resolution", row.Resolution,
			"exit", fmt.Sprintf("%.4f", trade.ExitPrice),
			"pnl", fmt.Sprintf("$%.2f", trade.PnL),
		)
	}

	unrealized := 0.0
	for _, marketID := range st.order {
		if row, ok := s.rows[marketID]; ok {
			unrealized += st.open[marketID].UnrealizedPnL(markPrice(row))
		}
	}
	return unrealized
}
