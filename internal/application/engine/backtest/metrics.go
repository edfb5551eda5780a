package backtest

import (
	"math"

	"github.com/alejandrodnm/polybacktest/internal/domain"
)

// CalculateMetrics calcula las métricas post-corrida. Función pura sobre la
// lista final de trades y snapshots; con cero trades devuelve métricas neutras.
func CalculateMetrics(
	cfg domain.BacktestConfig,
	trades []domain.Trade,
	snapshots []domain.PortfolioSnapshot,
	finalCapital float64,
) domain.Metrics {
	m := domain.Metrics{FinalCapital: finalCapital}
	if len(trades) == 0 {
		return m
	}

	var winSum, lossSum float64
	returns := make([]float64, len(trades))
	for i, t := range trades {
		m.TotalPnL += t.PnL
		m.TotalGas += t.GasCost
		m.TotalSlippageCost += t.SlippageCost()
		returns[i] = t.PnLPct

		switch {
		case t.PnL > 0:
			m.WinningTrades++
			winSum += t.PnL
		case t.PnL < 0:
			m.LosingTrades++
			lossSum += t.PnL
		}
	}
	m.TotalTrades = len(trades)
	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)

	if cfg.StartingCapital > 0 {
		m.TotalReturnPct = m.TotalPnL / cfg.StartingCapital * 100
	}
	m.AnnualizedReturn = annualizedReturn(cfg.StartingCapital, finalCapital, snapshots)

	excess := excessReturns(returns, cfg.RiskFreeRate)
	m.SharpeRatio = sharpeRatio(excess)
	m.SortinoRatio = sortinoRatio(excess)
	m.MaxDrawdown = maxDrawdown(snapshots)

	if m.WinningTrades > 0 {
		m.AvgWin = winSum / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = lossSum / float64(m.LosingTrades)
	}
	m.ProfitFactor = profitFactor(m.AvgWin, m.AvgLoss, m.WinningTrades, m.LosingTrades)

	if m.TotalPnL != 0 {
		m.GasPctOfPnL = m.TotalGas / math.Abs(m.TotalPnL) * 100
	}
	return m
}

// annualizedReturn = (final/start)^(365/días) - 1, con días de calendario
// completos entre el primer y el último snapshot. 0 si no pasó al menos un día
// o si el exponente desborda a ±Inf/NaN.
func annualizedReturn(start, final float64, snapshots []domain.PortfolioSnapshot) float64 {
	if len(snapshots) == 0 || start <= 0 || final < 0 {
		return 0
	}
	elapsed := snapshots[len(snapshots)-1].Timestamp.Sub(snapshots[0].Timestamp)
	days := math.Floor(elapsed.Hours() / 24)
	if days <= 0 {
		return 0
	}
	r := math.Pow(final/start, 365/days) - 1
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return 0
	}
	return r
}

// excessReturns resta la tasa libre de riesgo por período (anual / 252).
func excessReturns(returns []float64, annualRiskFree float64) []float64 {
	perPeriod := annualRiskFree / domain.TradingDays
	out := make([]float64, len(returns))
	for i, r := range returns {
		out[i] = r - perPeriod
	}
	return out
}

// sharpeRatio = mean/stdev × √252. 0 si la desviación es 0.
func sharpeRatio(excess []float64) float64 {
	sd := stdDev(excess)
	if sd == 0 {
		return 0
	}
	return mean(excess) / sd * math.Sqrt(domain.TradingDays)
}

// sortinoRatio usa solo la desviación de los excesos negativos. 0 si no hay.
func sortinoRatio(excess []float64) float64 {
	var downside []float64
	for _, r := range excess {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	sd := stdDev(downside)
	if sd == 0 {
		return 0
	}
	return mean(excess) / sd * math.Sqrt(domain.TradingDays)
}

// maxDrawdown es la mayor caída relativa desde el pico previo del valor total.
func maxDrawdown(snapshots []domain.PortfolioSnapshot) float64 {
	values := make([]float64, len(snapshots))
	for i, s := range snapshots {
		values[i] = s.TotalValue()
	}
	return maxDrawdownOf(values)
}

func maxDrawdownOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	peak := values[0]
	maxDD := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// profitFactor = |avgWin × wins / (avgLoss × losses)|. 0 sin pérdidas.
func profitFactor(avgWin, avgLoss float64, wins, losses int) float64 {
	if losses == 0 || avgLoss == 0 {
		return 0
	}
	return math.Abs(avgWin * float64(wins) / (avgLoss * float64(losses)))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdDev es la desviación estándar poblacional.
func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mu := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - mu
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}
