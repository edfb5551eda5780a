package backtest

import (
	"time"

	"github.com/alejandrodnm/polybacktest/internal/domain"
)

// sizePosition devuelve el notional para una señal según Kelly y el tope por capital.
// Devuelve 0 si el notional queda por debajo del suelo de $100.
func sizePosition(cfg domain.BacktestConfig, capital float64, sig domain.Signal) float64 {
	odds := domain.ImpliedOdds(sig.EntryPrice)
	if cfg.KellyOdds == domain.OddsFromFairValue {
		odds = domain.ImpliedOdds(sig.FairValue)
	}

	notional := capital * domain.KellyFraction(sig.FairValue, odds) * cfg.KellyFraction
	if limit := cfg.MaxPositionUSDC(capital); notional > limit {
		notional = limit
	}
	if notional < domain.MinPositionUSDC {
		return 0
	}
	return notional
}

// openPosition convierte una señal en posición: sizing Kelly + slippage de entrada.
// ok=false significa rechazo (notional bajo el suelo o precio inválido), no error.
func openPosition(cfg domain.BacktestConfig, capital float64, sig domain.Signal, ts time.Time) (pos domain.OpenPosition, ok bool) {
	notional := sizePosition(cfg, capital, sig)
	if notional == 0 {
		return domain.OpenPosition{}, false
	}

	fill, slippage := domain.ApplyEntrySlippage(sig.EntryPrice, cfg.SlippagePct)
	if fill <= 0 {
		return domain.OpenPosition{}, false
	}

	return domain.OpenPosition{
		EntryTime:  ts,
		MarketID:   sig.MarketID,
		Strategy:   sig.Strategy,
		Side:       sig.SignalType,
		EntryPrice: fill,
		Quantity:   notional / fill,
		CostBasis:  notional,
		Slippage:   slippage,
	}, true
}

// closePosition cierra una posición contra la resolución del mercado:
// precio de referencia, slippage de salida y gas.
func closePosition(cfg domain.BacktestConfig, pos domain.OpenPosition, res domain.Resolution, ts time.Time) domain.Trade {
	ref := domain.ExitReference(res, pos.EntryPrice)
	exit, exitSlippage := domain.ApplyExitSlippage(ref, cfg.SlippagePct)

	gross := pos.Quantity*exit - pos.CostBasis
	net := gross - cfg.GasCostPerTrade

	pnlPct := 0.0
	if pos.CostBasis > 0 {
		pnlPct = net / pos.CostBasis * 100
	}

	return domain.Trade{
		EntryTime:  pos.EntryTime,
		ExitTime:   ts,
		MarketID:   pos.MarketID,
		Strategy:   pos.Strategy,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exit,
		Quantity:   pos.Quantity,
		PnL:        net,
		PnLPct:     pnlPct,
		GasCost:    cfg.GasCostPerTrade,
		Slippage:   pos.Slippage + exitSlippage,
	}
}

// markPrice es el precio con el que se marca una posición abierta.
// Se usa el precio YES para ambos lados, igual que el cierre no distingue lado.
func markPrice(row domain.MarketRow) float64 {
	return row.YesPrice
}
