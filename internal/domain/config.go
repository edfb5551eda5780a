package domain

import (
	"fmt"
	"time"
)

// DuplicatePolicy decide qué pasa cuando llega una señal para un mercado
// que ya tiene una posición abierta.
type DuplicatePolicy string

const (
	DuplicateReject  DuplicatePolicy = "reject"  // la nueva señal se descarta
	DuplicateReplace DuplicatePolicy = "replace" // la posición previa se pisa sin cerrar
)

// KellyOddsSource indica de dónde salen las odds b usadas por Kelly.
type KellyOddsSource string

const (
	OddsFromEntryPrice KellyOddsSource = "entry_price" // b = 1/entry_price - 1
	OddsFromFairValue  KellyOddsSource = "fair_value"  // b = 1/p - 1 (edge siempre 0)
)

// Constantes del modelo de ejecución.
const (
	MinPositionUSDC  = 100.0 // suelo de notional por posición
	MaxKellyFraction = 0.25  // techo de f* antes de aplicar kelly_fraction
	TradingDays      = 252
)

// BacktestConfig es el conjunto inmutable de constantes de una corrida.
// Se pasa por valor: el engine nunca la modifica.
type BacktestConfig struct {
	StartingCapital       float64
	MaxPositionSizePct    float64 // % del capital por posición
	DailyDrawdownLimitPct float64 // 0 = sin circuit breaker diario
	MinLiquidity          float64
	SlippagePct           float64 // fracción: 0.02 = 2%
	GasCostPerTrade       float64
	ExecutionLatencyMs    int // informativo, no afecta precios ni timing
	KellyFraction         float64
	RiskFreeRate          float64 // anual, para Sharpe/Sortino

	KellyOdds            KellyOddsSource
	Duplicates           DuplicatePolicy
	MinEdge              float64       // 0 = sin filtro
	MaxDailyTrades       int           // 0 = sin límite
	MaxConsecutiveLosses int           // 0 = sin cooldown
	Cooldown             time.Duration // pausa tras MaxConsecutiveLosses pérdidas
}

// DefaultBacktestConfig devuelve los valores por defecto de una corrida.
func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{
		StartingCapital:       50000,
		MaxPositionSizePct:    2,
		DailyDrawdownLimitPct: 8,
		MinLiquidity:          2000,
		SlippagePct:           0.02,
		GasCostPerTrade:       0.15,
		ExecutionLatencyMs:    500,
		KellyFraction:         0.5,
		RiskFreeRate:          0.04,
		KellyOdds:             OddsFromEntryPrice,
		Duplicates:            DuplicateReject,
		Cooldown:              time.Hour,
	}
}

// MaxPositionUSDC es el tope de notional derivado del capital actual.
func (c BacktestConfig) MaxPositionUSDC(capital float64) float64 {
	return capital * c.MaxPositionSizePct / 100
}

// Validate comprueba que los valores tengan sentido antes de simular.
func (c BacktestConfig) Validate() error {
	switch {
	case c.StartingCapital <= 0:
		return fmt.Errorf("starting_capital must be > 0, got %v", c.StartingCapital)
	case c.MaxPositionSizePct < 0 || c.MaxPositionSizePct > 100:
		return fmt.Errorf("max_position_size_pct must be in [0,100], got %v", c.MaxPositionSizePct)
	case c.DailyDrawdownLimitPct < 0 || c.DailyDrawdownLimitPct > 100:
		return fmt.Errorf("daily_drawdown_limit_pct must be in [0,100], got %v", c.DailyDrawdownLimitPct)
	case c.MinLiquidity < 0:
		return fmt.Errorf("min_liquidity must be >= 0, got %v", c.MinLiquidity)
	case c.SlippagePct < 0 || c.SlippagePct >= 1:
		return fmt.Errorf("slippage_pct must be in [0,1), got %v", c.SlippagePct)
	case c.GasCostPerTrade < 0:
		return fmt.Errorf("gas_cost_per_trade must be >= 0, got %v", c.GasCostPerTrade)
	case c.ExecutionLatencyMs < 0:
		return fmt.Errorf("execution_latency_ms must be >= 0, got %v", c.ExecutionLatencyMs)
	case c.KellyFraction < 0 || c.KellyFraction > 1:
		return fmt.Errorf("kelly_fraction must be in [0,1], got %v", c.KellyFraction)
	case c.MaxDailyTrades < 0 || c.MaxConsecutiveLosses < 0 || c.Cooldown < 0:
		return fmt.Errorf("risk limits must be >= 0")
	}
	switch c.KellyOdds {
	case OddsFromEntryPrice, OddsFromFairValue:
	default:
		return fmt.Errorf("unknown kelly_odds_source %q", c.KellyOdds)
	}
	switch c.Duplicates {
	case DuplicateReject, DuplicateReplace:
	default:
		return fmt.Errorf("unknown duplicate_policy %q", c.Duplicates)
	}
	return nil
}
