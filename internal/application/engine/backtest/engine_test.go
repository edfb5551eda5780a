package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/alejandrodnm/polybacktest/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func at(h int) time.Time { return t0.Add(time.Duration(h) * time.Hour) }

func row(ts time.Time, market string, yes, liq float64, res domain.Resolution) domain.MarketRow {
	return domain.MarketRow{
		Timestamp:  ts,
		MarketID:   market,
		YesPrice:   yes,
		NoPrice:    1 - yes,
		Liquidity:  liq,
		Resolution: res,
	}
}

func signal(ts time.Time, market string, fair, entry float64) domain.Signal {
	return domain.Signal{
		Timestamp:  ts,
		MarketID:   market,
		SignalType: domain.SideYes,
		Confidence: 0.8,
		EdgeSize:   fair - entry,
		EntryPrice: entry,
		FairValue:  fair,
		Strategy:   "clv_arb",
	}
}

func e2eConfig() domain.BacktestConfig {
	cfg := domain.DefaultBacktestConfig()
	cfg.StartingCapital = 50000
	cfg.KellyFraction = 0.5
	cfg.SlippagePct = 0.02
	cfg.GasCostPerTrade = 0.15
	return cfg
}

func TestRun_EndToEndSingleResolvedTrade(t *testing.T) {
	in := Input{
		Markets: []domain.MarketRow{
			row(at(0), "m1", 0.5, 5000, domain.ResolutionNone),
			row(at(24), "m1", 0.99, 5000, domain.ResolutionYes),
		},
		Signals: []domain.Signal{signal(at(0), "m1", 0.6, 0.5)},
	}

	res, err := New(e2eConfig(), "e2e").Run(in)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	tr := res.Trades[0]
	// Kelly con b=1, p=0.6 → f=0.2 → 50000×0.2×0.5 = 5000, tope 2% → $1000
	notional := 1000.0
	qty := notional / 0.51
	wantPnL := qty*0.98 - notional - 0.15

	assert.InDelta(t, 0.51, tr.EntryPrice, 1e-12)
	assert.InDelta(t, 0.98, tr.ExitPrice, 1e-12)
	assert.InDelta(t, qty, tr.Quantity, 1e-9)
	assert.InDelta(t, wantPnL, tr.PnL, 1e-9)
	assert.InDelta(t, wantPnL/notional*100, tr.PnLPct, 1e-9)
	assert.Equal(t, 0.15, tr.GasCost)
	assert.InDelta(t, 0.01+0.02, tr.Slippage, 1e-12)
	assert.Equal(t, at(0), tr.EntryTime)
	assert.Equal(t, at(24), tr.ExitTime)
	assert.Equal(t, domain.SideYes, tr.Side)
	assert.Equal(t, "clv_arb", tr.Strategy)

	assert.InDelta(t, 50000+wantPnL, res.Metrics.FinalCapital, 1e-9)
	assert.Len(t, res.Snapshots, 2)
	assert.Equal(t, 1, res.Stats.Opened)
	assert.Equal(t, 1, res.Stats.Closed)
	assert.Equal(t, 0, res.Stats.StillOpen)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "e2e", res.Name)
}

func TestRun_ExtremeOneDayGainKeepsMetricsFinite(t *testing.T) {
	cfg := e2eConfig()
	cfg.DailyDrawdownLimitPct = 0

	var in Input
	for _, m := range []string{"m1", "m2", "m3", "m4"} {
		in.Markets = append(in.Markets, row(at(0), m, 0.01, 5000, domain.ResolutionNone))
		in.Signals = append(in.Signals, signal(at(0), m, 0.6, 0.01))
	}
	for _, m := range []string{"m1", "m2", "m3", "m4"} {
		in.Markets = append(in.Markets, row(at(24), m, 0.99, 5000, domain.ResolutionYes))
	}

	res, err := New(cfg, "moonshot").Run(in)
	require.NoError(t, err)
	require.Len(t, res.Trades, 4)
	assert.Greater(t, res.Metrics.FinalCapital, 300000.0)

	// (final/start)^365 desborda: se reporta 0 en vez de +Inf
	assert.Equal(t, 0.0, res.Metrics.AnnualizedReturn)

	var report map[string]float64
	require.NotPanics(t, func() { report = res.Metrics.Report() })
	for k, v := range report {
		assert.False(t, math.IsInf(v, 0) || math.IsNaN(v), k)
	}
	_, err = json.Marshal(res.Metrics)
	assert.NoError(t, err)
}

func TestRun_NaNFairValueNeverOpens(t *testing.T) {
	in := Input{
		Markets: []domain.MarketRow{
			row(at(0), "m1", 0.5, 5000, domain.ResolutionNone),
			row(at(1), "m1", 0.99, 5000, domain.ResolutionYes),
		},
		Signals: []domain.Signal{signal(at(0), "m1", math.NaN(), 0.5)},
	}

	res, err := New(e2eConfig(), "nan").Run(in)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, 1, res.Stats.RejectedNotional)
	assert.Equal(t, 50000.0, res.Metrics.FinalCapital)
	for _, s := range res.Snapshots {
		assert.Equal(t, 50000.0, s.TotalValue())
	}
}

func TestRun_SnapshotPerDistinctTimestamp(t *testing.T) {
	in := Input{
		Markets: []domain.MarketRow{
			row(at(0), "m1", 0.5, 5000, ""),
			row(at(0), "m2", 0.3, 5000, ""),
			row(at(1), "m1", 0.5, 5000, ""),
			row(at(2), "m2", 0.4, 5000, ""),
			row(at(2), "m1", 0.5, 5000, ""),
		},
	}

	res, err := New(e2eConfig(), "").Run(in)
	require.NoError(t, err)
	require.Len(t, res.Snapshots, 3)
	for _, s := range res.Snapshots {
		assert.Equal(t, 50000.0, s.Capital)
		assert.Equal(t, 0.0, s.UnrealizedPnL)
	}
	assert.Empty(t, res.Trades)
	assert.Equal(t, 3, res.Stats.Timestamps)
}

func TestRun_UnrealizedPnLMarkedAtYesPrice(t *testing.T) {
	in := Input{
		Markets: []domain.MarketRow{
			row(at(0), "m1", 0.5, 5000, ""),
			row(at(1), "m1", 0.6, 5000, ""),
			row(at(2), "m2", 0.6, 5000, ""), // m1 sin fila → aporta 0
		},
		Signals: []domain.Signal{signal(at(0), "m1", 0.6, 0.5)},
	}

	res, err := New(e2eConfig(), "").Run(in)
	require.NoError(t, err)
	require.Len(t, res.Snapshots, 3)

	qty := 1000.0 / 0.51
	assert.InDelta(t, qty*0.5-1000, res.Snapshots[0].UnrealizedPnL, 1e-9)
	assert.InDelta(t, qty*0.6-1000, res.Snapshots[1].UnrealizedPnL, 1e-9)
	assert.Equal(t, 0.0, res.Snapshots[2].UnrealizedPnL)
	assert.Equal(t, 1, res.Snapshots[2].OpenPositions)
	assert.Equal(t, 1, res.Stats.StillOpen)
	assert.Equal(t, 50000.0, res.Metrics.FinalCapital, "capital only moves on close")
}

func TestRun_ResolutionNoAndVoid(t *testing.T) {
	in := Input{
		Markets: []domain.MarketRow{
			row(at(0), "lose", 0.5, 5000, ""),
			row(at(0), "void", 0.5, 5000, ""),
			row(at(1), "lose", 0.01, 5000, domain.ResolutionNo),
			row(at(1), "void", 0.5, 5000, domain.Resolution("cancelled")),
		},
		Signals: []domain.Signal{
			signal(at(0), "lose", 0.6, 0.5),
			signal(at(0), "void", 0.6, 0.5),
		},
	}

	res, err := New(e2eConfig(), "").Run(in)
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)

	// cierre en orden de apertura
	lose, void := res.Trades[0], res.Trades[1]
	assert.Equal(t, "lose", lose.MarketID)
	assert.Equal(t, 0.0, lose.ExitPrice)
	assert.InDelta(t, -1000.15, lose.PnL, 1e-9)

	// break-even antes de costes: referencia = precio de fill
	assert.Equal(t, "void", void.MarketID)
	assert.InDelta(t, 0.51*0.98, void.ExitPrice, 1e-12)
	assert.InDelta(t, -0.02*1000-0.15, void.PnL, 1e-9)
}

func TestRun_CapitalConservation(t *testing.T) {
	var markets []domain.MarketRow
	var signals []domain.Signal
	resolutions := []domain.Resolution{domain.ResolutionYes, domain.ResolutionNo, domain.ResolutionVoid}
	for i := 0; i < 12; i++ {
		id := string(rune('a' + i))
		open, closeAt := at(i*2), at(i*2+1)
		markets = append(markets,
			row(open, id, 0.45, 10000, ""),
			row(closeAt, id, 0.5, 10000, resolutions[i%3]),
		)
		signals = append(signals, signal(open, id, 0.55+float64(i%4)*0.05, 0.45))
	}

	cfg := e2eConfig()
	cfg.DailyDrawdownLimitPct = 0
	res, err := New(cfg, "").Run(Input{Markets: markets, Signals: signals})
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)

	sum := 0.0
	for _, tr := range res.Trades {
		sum += tr.PnL
	}
	assert.InDelta(t, cfg.StartingCapital+sum, res.Metrics.FinalCapital, 1e-6)
	assert.InDelta(t, res.Metrics.FinalCapital, res.Snapshots[len(res.Snapshots)-1].Capital, 1e-9)
}

func TestRun_NeverOpensBelowNotionalFloor(t *testing.T) {
	cfg := e2eConfig()
	cfg.KellyFraction = 0.01 // 50000 × 0.04 × 0.01 = $20

	in := Input{
		Markets: []domain.MarketRow{row(at(0), "m1", 0.5, 5000, "")},
		Signals: []domain.Signal{signal(at(0), "m1", 0.52, 0.5)},
	}
	res, err := New(cfg, "").Run(in)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Stats.Opened)
	assert.Equal(t, 1, res.Stats.RejectedNotional)
	assert.Equal(t, 0, res.Snapshots[0].OpenPositions)
}

func TestRun_RejectsOnCapitalFloor(t *testing.T) {
	cfg := e2eConfig()
	cfg.StartingCapital = 4000 // 2% = $80 < $100

	in := Input{
		Markets: []domain.MarketRow{row(at(0), "m1", 0.5, 5000, "")},
		Signals: []domain.Signal{signal(at(0), "m1", 0.7, 0.5)},
	}
	res, err := New(cfg, "").Run(in)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.RejectedCapital)
	assert.Equal(t, 0, res.Stats.Opened)
}

func TestRun_RejectsOnLiquidity(t *testing.T) {
	in := Input{
		Markets: []domain.MarketRow{
			row(at(0), "thin", 0.5, 1999, ""),
			row(at(0), "other", 0.5, 9000, ""),
		},
		Signals: []domain.Signal{
			signal(at(0), "thin", 0.6, 0.5),
			signal(at(0), "norow", 0.6, 0.5), // sin fila de mercado → liquidez 0
		},
	}
	res, err := New(e2eConfig(), "").Run(in)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stats.RejectedLiquidity)
	assert.Equal(t, 0, res.Stats.Opened)
}

func TestRun_DuplicatePolicies(t *testing.T) {
	in := Input{
		Markets: []domain.MarketRow{
			row(at(0), "m1", 0.5, 5000, ""),
			row(at(1), "m1", 0.4, 5000, ""),
			row(at(2), "m1", 0.4, 5000, domain.ResolutionYes),
		},
		Signals: []domain.Signal{
			signal(at(0), "m1", 0.6, 0.5),
			signal(at(1), "m1", 0.6, 0.4),
		},
	}

	t.Run("reject", func(t *testing.T) {
		res, err := New(e2eConfig(), "").Run(in)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Stats.RejectedDuplicate)
		require.Len(t, res.Trades, 1)
		assert.InDelta(t, 0.51, res.Trades[0].EntryPrice, 1e-12)
	})

	t.Run("replace", func(t *testing.T) {
		cfg := e2eConfig()
		cfg.Duplicates = domain.DuplicateReplace
		res, err := New(cfg, "").Run(in)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Stats.RejectedDuplicate)
		assert.Equal(t, 2, res.Stats.Opened)
		require.Len(t, res.Trades, 1, "the first position is discarded, not closed")
		assert.InDelta(t, 0.408, res.Trades[0].EntryPrice, 1e-12)
	})
}

func TestRun_FairValueOddsNeverTrade(t *testing.T) {
	cfg := e2eConfig()
	cfg.KellyOdds = domain.OddsFromFairValue

	in := Input{
		Markets: []domain.MarketRow{row(at(0), "m1", 0.5, 5000, "")},
		Signals: []domain.Signal{signal(at(0), "m1", 0.6, 0.5)},
	}
	res, err := New(cfg, "").Run(in)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.RejectedNotional)
}

func TestRun_UnmatchedSignalsAreCounted(t *testing.T) {
	in := Input{
		Markets: []domain.MarketRow{row(at(1), "m1", 0.5, 5000, "")},
		Signals: []domain.Signal{
			signal(at(0), "m1", 0.6, 0.5),
			signal(at(1), "m1", 0.6, 0.5),
			signal(at(5), "m1", 0.6, 0.5),
		},
	}
	res, err := New(e2eConfig(), "").Run(in)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.Signals)
	assert.Equal(t, 2, res.Stats.UnmatchedSignals)
	assert.Equal(t, 1, res.Stats.Opened)
}

func TestRun_WindowFilterIsInclusive(t *testing.T) {
	in := Input{
		Markets: []domain.MarketRow{
			row(at(0), "m1", 0.5, 5000, ""),
			row(at(1), "m1", 0.5, 5000, ""),
			row(at(2), "m1", 0.5, 5000, ""),
			row(at(3), "m1", 0.5, 5000, ""),
		},
		Signals: []domain.Signal{signal(at(0), "m1", 0.6, 0.5)},
		Window:  Window{From: at(1), To: at(2)},
	}
	res, err := New(e2eConfig(), "").Run(in)
	require.NoError(t, err)
	require.Len(t, res.Snapshots, 2)
	assert.Equal(t, at(1), res.Snapshots[0].Timestamp)
	assert.Equal(t, at(2), res.Snapshots[1].Timestamp)
	assert.Equal(t, 0, res.Stats.Signals)
}

func TestRun_DailyDrawdownBlocksEntries(t *testing.T) {
	cfg := e2eConfig()
	cfg.StartingCapital = 10000
	cfg.MaxPositionSizePct = 10
	cfg.DailyDrawdownLimitPct = 5

	in := Input{
		Markets: []domain.MarketRow{
			row(at(0), "m1", 0.5, 5000, ""),
			row(at(1), "m1", 0.5, 5000, domain.ResolutionNo), // pierde $1000 → -10%
			row(at(2), "m2", 0.5, 5000, ""),
			row(at(30), "m3", 0.5, 5000, ""), // día siguiente
		},
		Signals: []domain.Signal{
			signal(at(0), "m1", 0.7, 0.5),
			signal(at(2), "m2", 0.7, 0.5),
			signal(at(30), "m3", 0.7, 0.5),
		},
	}
	res, err := New(cfg, "").Run(in)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.RejectedBreaker)
	assert.Equal(t, 2, res.Stats.Opened)
}

func TestRun_MinEdgeAndDailyTradeLimit(t *testing.T) {
	cfg := e2eConfig()
	cfg.MinEdge = 0.05
	cfg.MaxDailyTrades = 1

	low := signal(at(0), "m1", 0.6, 0.5)
	low.EdgeSize = 0.01
	in := Input{
		Markets: []domain.MarketRow{
			row(at(0), "m1", 0.5, 5000, ""),
			row(at(0), "m2", 0.5, 5000, ""),
			row(at(0), "m3", 0.5, 5000, ""),
		},
		Signals: []domain.Signal{low, signal(at(0), "m2", 0.6, 0.5), signal(at(0), "m3", 0.6, 0.5)},
	}
	res, err := New(cfg, "").Run(in)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.RejectedEdge)
	assert.Equal(t, 1, res.Stats.RejectedDaily)
	assert.Equal(t, 1, res.Stats.Opened)
	assert.Equal(t, 2, res.Stats.Rejected())
}

func TestRun_PreconditionErrors(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want error
	}{
		{
			name: "unsorted markets",
			in:   Input{Markets: []domain.MarketRow{row(at(2), "m1", 0.5, 1, ""), row(at(1), "m1", 0.5, 1, "")}},
			want: ErrUnsortedInput,
		},
		{
			name: "unsorted signals",
			in:   Input{Signals: []domain.Signal{signal(at(2), "m1", 0.6, 0.5), signal(at(1), "m1", 0.6, 0.5)}},
			want: ErrUnsortedInput,
		},
		{
			name: "missing market id",
			in:   Input{Markets: []domain.MarketRow{row(at(0), "", 0.5, 1, "")}},
			want: ErrMissingField,
		},
		{
			name: "missing timestamp",
			in:   Input{Signals: []domain.Signal{signal(time.Time{}, "m1", 0.6, 0.5)}},
			want: ErrMissingField,
		},
		{
			name: "bad side",
			in: Input{Signals: []domain.Signal{func() domain.Signal {
				s := signal(at(0), "m1", 0.6, 0.5)
				s.SignalType = "maybe"
				return s
			}()}},
			want: ErrInvalidRow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(e2eConfig(), "").Run(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := e2eConfig()
	cfg.StartingCapital = -1
	_, err := New(cfg, "").Run(Input{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRun_EmptyInput(t *testing.T) {
	res, err := New(e2eConfig(), "").Run(Input{})
	require.NoError(t, err)
	assert.Empty(t, res.Snapshots)
	assert.Empty(t, res.Trades)
	assert.Equal(t, 50000.0, res.Metrics.FinalCapital)
}

func TestRunAll_IndependentRunsKeepOrder(t *testing.T) {
	in := Input{
		Markets: []domain.MarketRow{
			row(at(0), "m1", 0.5, 5000, ""),
			row(at(24), "m1", 0.99, 5000, domain.ResolutionYes),
		},
		Signals: []domain.Signal{signal(at(0), "m1", 0.6, 0.5)},
	}

	var jobs []Job
	for _, slip := range []float64{0, 0.01, 0.02, 0.05} {
		cfg := e2eConfig()
		cfg.SlippagePct = slip
		jobs = append(jobs, Job{Name: "slip", Config: cfg})
	}

	results, err := RunAll(context.Background(), jobs, in, 2)
	require.NoError(t, err)
	require.Len(t, results, len(jobs))

	for i, res := range results {
		require.Len(t, res.Trades, 1)
		assert.Equal(t, jobs[i].Config.SlippagePct, res.Config.SlippagePct)
		if i > 0 {
			assert.Less(t, res.Trades[0].PnL, results[i-1].Trades[0].PnL, "more slippage, less pnl")
		}
	}
	assert.Len(t, in.Markets, 2, "shared input untouched")
}

func TestRunAll_PropagatesErrors(t *testing.T) {
	bad := e2eConfig()
	bad.KellyFraction = 3
	_, err := RunAll(context.Background(), []Job{{Name: "ok", Config: e2eConfig()}, {Name: "bad", Config: bad}}, Input{}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
