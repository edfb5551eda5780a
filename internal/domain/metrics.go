package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// Metrics son las estadísticas post-corrida. Los ratios se guardan sin
// redondear; Report() da la vista redondeada a 2 decimales.
type Metrics struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // fracción 0..1

	TotalPnL         float64
	TotalReturnPct   float64
	AnnualizedReturn float64 // fracción: 0.10 = 10%

	SharpeRatio  float64
	SortinoRatio float64
	MaxDrawdown  float64 // fracción 0..1
	ProfitFactor float64

	AvgWin  float64
	AvgLoss float64 // negativo

	TotalGas          float64
	TotalSlippageCost float64
	GasPctOfPnL       float64

	FinalCapital float64
}

// Report devuelve el mapa de métricas para reporting, redondeado a 2 decimales.
func (m Metrics) Report() map[string]float64 {
	return map[string]float64{
		"total_trades":          float64(m.TotalTrades),
		"winning_trades":        float64(m.WinningTrades),
		"losing_trades":         float64(m.LosingTrades),
		"win_rate":              Round2(m.WinRate * 100),
		"total_pnl":             Round2(m.TotalPnL),
		"total_return_pct":      Round2(m.TotalReturnPct),
		"annualized_return_pct": Round2(m.AnnualizedReturn * 100),
		"sharpe_ratio":          Round2(m.SharpeRatio),
		"sortino_ratio":         Round2(m.SortinoRatio),
		"max_drawdown_pct":      Round2(m.MaxDrawdown * 100),
		"profit_factor":         Round2(m.ProfitFactor),
		"avg_win":               Round2(m.AvgWin),
		"avg_loss":              Round2(m.AvgLoss),
		"total_gas_costs":       Round2(m.TotalGas),
		"total_slippage_cost":   Round2(m.TotalSlippageCost),
		"gas_pct_of_pnl":        Round2(m.GasPctOfPnL),
		"final_capital":         Round2(m.FinalCapital),
	}
}

// Round2 redondea a 2 decimales (half away from zero) usando aritmética decimal,
// así 2.675 queda en 2.68 y no en 2.67 como con math.Round sobre float64.
// Valores no finitos se reportan como 0.
func Round2(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
