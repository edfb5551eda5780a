package domain

import "time"

// PortfolioSnapshot es el estado del portfolio en un timestamp del histórico.
// Se produce uno por timestamp distinto, haya o no actividad.
type PortfolioSnapshot struct {
	Timestamp     time.Time
	Capital       float64 // capital realizado
	UnrealizedPnL float64
	OpenPositions int
}

// TotalValue es capital realizado + PnL no realizado.
func (s PortfolioSnapshot) TotalValue() float64 {
	return s.Capital + s.UnrealizedPnL
}

// RunStats cuenta lo que pasó con las señales durante una corrida.
type RunStats struct {
	Timestamps       int
	Signals          int
	UnmatchedSignals int // señales cuyo timestamp no aparece en el histórico de mercados
	Opened           int
	Closed           int
	StillOpen        int

	RejectedLiquidity int
	RejectedCapital   int // tope por capital < $100
	RejectedNotional  int // Kelly dio un notional < $100
	RejectedDuplicate int
	RejectedEdge      int
	RejectedDaily     int // límite de trades diarios
	RejectedBreaker   int // drawdown diario o cooldown por pérdidas
}

// Rejected devuelve el total de señales rechazadas.
func (s RunStats) Rejected() int {
	return s.RejectedLiquidity + s.RejectedCapital + s.RejectedNotional +
		s.RejectedDuplicate + s.RejectedEdge + s.RejectedDaily + s.RejectedBreaker
}

// Result es el bundle de salida de una corrida.
type Result struct {
	RunID     string
	Name      string
	StartedAt time.Time
	Config    BacktestConfig
	Metrics   Metrics
	Stats     RunStats
	Trades    []Trade
	Snapshots []PortfolioSnapshot
}

// FinalCapital devuelve el capital realizado al final de la corrida.
func (r Result) FinalCapital() float64 {
	return r.Metrics.FinalCapital
}
