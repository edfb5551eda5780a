package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBacktestConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultBacktestConfig().Validate())
}

func TestBacktestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*BacktestConfig)
	}{
		{"zero capital", func(c *BacktestConfig) { c.StartingCapital = 0 }},
		{"position pct above 100", func(c *BacktestConfig) { c.MaxPositionSizePct = 150 }},
		{"negative liquidity", func(c *BacktestConfig) { c.MinLiquidity = -1 }},
		{"slippage 100%", func(c *BacktestConfig) { c.SlippagePct = 1 }},
		{"negative gas", func(c *BacktestConfig) { c.GasCostPerTrade = -0.1 }},
		{"kelly fraction above 1", func(c *BacktestConfig) { c.KellyFraction = 2 }},
		{"negative latency", func(c *BacktestConfig) { c.ExecutionLatencyMs = -5 }},
		{"unknown odds source", func(c *BacktestConfig) { c.KellyOdds = "mid" }},
		{"unknown duplicate policy", func(c *BacktestConfig) { c.Duplicates = "merge" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultBacktestConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBacktestConfig_MaxPositionUSDC(t *testing.T) {
	cfg := DefaultBacktestConfig()
	assert.InDelta(t, 1000.0, cfg.MaxPositionUSDC(50000), 1e-9)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 2.68, Round2(2.675))
	assert.Equal(t, -1.24, Round2(-1.235))
	assert.Equal(t, 0.0, Round2(0.004))
}

func TestRound2_NonFiniteIsZero(t *testing.T) {
	assert.Equal(t, 0.0, Round2(math.Inf(1)))
	assert.Equal(t, 0.0, Round2(math.Inf(-1)))
	assert.Equal(t, 0.0, Round2(math.NaN()))
}

func TestMetrics_ReportWithInfiniteValueDoesNotPanic(t *testing.T) {
	m := Metrics{AnnualizedReturn: math.Inf(1), FinalCapital: 430313.13}
	var r map[string]float64
	require.NotPanics(t, func() { r = m.Report() })
	assert.Equal(t, 0.0, r["annualized_return_pct"])
	assert.Equal(t, 430313.13, r["final_capital"])
}

func TestMetrics_ReportKeysAndRounding(t *testing.T) {
	m := Metrics{TotalTrades: 3, WinRate: 2.0 / 3.0, MaxDrawdown: 0.5, AnnualizedReturn: 0.1234}
	r := m.Report()
	assert.Equal(t, 3.0, r["total_trades"])
	assert.Equal(t, 66.67, r["win_rate"])
	assert.Equal(t, 50.0, r["max_drawdown_pct"])
	assert.Equal(t, 12.34, r["annualized_return_pct"])
	assert.Len(t, r, 17)
}
