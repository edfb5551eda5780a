package domain

import "time"

// OpenPosition es una posición abierta. Vive en el mapa de posiciones
// del estado de la simulación, indexada por MarketID.
type OpenPosition struct {
	EntryTime  time.Time
	MarketID   string
	Strategy   string
	Side       Side
	EntryPrice float64 // precio de fill, ya con slippage
	Quantity   float64 // CostBasis / EntryPrice
	CostBasis  float64 // notional comprometido en USDC
	Slippage   float64 // slippage por unidad acumulado hasta ahora
}

// UnrealizedPnL marca la posición a un precio dado.
func (p OpenPosition) UnrealizedPnL(markPrice float64) float64 {
	return p.Quantity*markPrice - p.CostBasis
}

// Trade es una posición ya cerrada. Se crea una sola vez, al cerrar.
type Trade struct {
	EntryTime  time.Time
	ExitTime   time.Time
	MarketID   string
	Strategy   string
	Side       Side
	EntryPrice float64
	ExitPrice  float64 // precio de salida real, con slippage
	Quantity   float64
	PnL        float64 // neto, después de gas
	PnLPct     float64
	GasCost    float64
	Slippage   float64 // entrada + salida, por unidad
}

// SlippageCost devuelve el coste total en USDC del slippage del trade.
func (t Trade) SlippageCost() float64 {
	return t.Slippage * t.Quantity
}

// HoldingPeriod devuelve cuánto tiempo estuvo abierta la posición.
func (t Trade) HoldingPeriod() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}
