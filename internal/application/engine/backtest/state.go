package backtest

import (
	"slices"
	"time"

	"github.com/alejandrodnm/polybacktest/internal/domain"
)

// simulationState es el agregado mutable de una corrida. Una instancia por Run,
// nunca compartida entre corridas.
type simulationState struct {
	capital   float64
	open      map[string]domain.OpenPosition
	order     []string // market_ids abiertos en orden de inserción
	trades    []domain.Trade
	snapshots []domain.PortfolioSnapshot
	breaker   *domain.CircuitBreaker
	stats     domain.RunStats
}

func newState(cfg domain.BacktestConfig) *simulationState {
	return &simulationState{
		capital: cfg.StartingCapital,
		open:    make(map[string]domain.OpenPosition),
		breaker: domain.NewCircuitBreaker(cfg),
	}
}

// hasPosition devuelve true si hay una posición abierta para el mercado.
func (s *simulationState) hasPosition(marketID string) bool {
	_, ok := s.open[marketID]
	return ok
}

// putPosition inserta o reemplaza la posición del mercado.
// Un reemplazo conserva el lugar original en el orden de actualización.
func (s *simulationState) putPosition(pos domain.OpenPosition) {
	if !s.hasPosition(pos.MarketID) {
		s.order = append(s.order, pos.MarketID)
	}
	s.open[pos.MarketID] = pos
}

// applyClose registra el trade, saca la posición y mueve el capital.
// Es el único punto donde cambia el capital.
func (s *simulationState) applyClose(trade domain.Trade) {
	delete(s.open, trade.MarketID)
	if i := slices.Index(s.order, trade.MarketID); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	s.capital += trade.PnL
	s.trades = append(s.trades, trade)
	s.stats.Closed++
	s.breaker.RecordClose(trade.ExitTime, trade.PnL, s.capital)
}

// snapshot agrega la foto del portfolio para ts.
func (s *simulationState) snapshot(ts time.Time, unrealized float64) {
	s.snapshots = append(s.snapshots, domain.PortfolioSnapshot{
		Timestamp:     ts,
		Capital:       s.capital,
		UnrealizedPnL: unrealized,
		OpenPositions: len(s.open),
	})
}
