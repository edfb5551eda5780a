package domain

import "time"

// CircuitBreaker aplica los límites de riesgo sobre el reloj simulado:
// drawdown diario, cooldown por pérdidas consecutivas y máximo de trades por día.
// Nunca bloquea cierres, solo entradas nuevas.
type CircuitBreaker struct {
	DailyDrawdownLimitPct float64
	MaxConsecutiveLosses  int
	CooldownDuration      time.Duration
	MaxDailyTrades        int

	Day               time.Time // inicio (UTC) del día en curso
	DayStartCapital   float64
	TradesToday       int
	ConsecutiveLosses int
	CooldownUntil     time.Time
	Triggered         bool // drawdown diario alcanzado, se resetea al cambiar de día
	TriggeredReason   string
}

const reasonConsecutiveLosses = "consecutive losses"

// NewCircuitBreaker crea un breaker con los límites de la config.
func NewCircuitBreaker(cfg BacktestConfig) *CircuitBreaker {
	return &CircuitBreaker{
		DailyDrawdownLimitPct: cfg.DailyDrawdownLimitPct,
		MaxConsecutiveLosses:  cfg.MaxConsecutiveLosses,
		CooldownDuration:      cfg.Cooldown,
		MaxDailyTrades:        cfg.MaxDailyTrades,
	}
}

// Roll avanza el reloj. Al entrar en un día nuevo guarda el capital de apertura
// y resetea el contador diario y el disparo por drawdown. Un cooldown por
// pérdidas sigue vigente a través del cambio de día.
func (cb *CircuitBreaker) Roll(now time.Time, capital float64) {
	day := now.UTC().Truncate(24 * time.Hour)
	if day.Equal(cb.Day) {
		return
	}
	cb.Day = day
	cb.DayStartCapital = capital
	cb.TradesToday = 0
	cb.Triggered = false
	cb.TriggeredReason = ""
	if now.Before(cb.CooldownUntil) {
		cb.TriggeredReason = reasonConsecutiveLosses
	}
}

// IsOpen devuelve true si se permiten entradas nuevas en `now`.
func (cb *CircuitBreaker) IsOpen(now time.Time) bool {
	if cb.Triggered {
		return false
	}
	return !now.Before(cb.CooldownUntil)
}

// DailyLimitReached devuelve true si ya se alcanzó el máximo de entradas del día.
func (cb *CircuitBreaker) DailyLimitReached() bool {
	return cb.MaxDailyTrades > 0 && cb.TradesToday >= cb.MaxDailyTrades
}

// RecordEntry cuenta una entrada del día.
func (cb *CircuitBreaker) RecordEntry() {
	cb.TradesToday++
}

// RecordClose registra el PnL de un cierre y puede disparar el breaker.
func (cb *CircuitBreaker) RecordClose(now time.Time, pnl, capital float64) {
	if pnl < 0 {
		cb.ConsecutiveLosses++
		if cb.MaxConsecutiveLosses > 0 && cb.ConsecutiveLosses >= cb.MaxConsecutiveLosses {
			cb.CooldownUntil = now.Add(cb.CooldownDuration)
			cb.ConsecutiveLosses = 0
			cb.TriggeredReason = reasonConsecutiveLosses
		}
	} else {
		cb.ConsecutiveLosses = 0
	}

	if dd := cb.DailyDrawdownPct(capital); cb.DailyDrawdownLimitPct > 0 && dd >= cb.DailyDrawdownLimitPct {
		cb.Triggered = true
		cb.TriggeredReason = "daily drawdown limit reached"
	}
}

// DailyDrawdownPct es la caída % del capital respecto a la apertura del día.
func (cb *CircuitBreaker) DailyDrawdownPct(capital float64) float64 {
	if cb.DayStartCapital <= 0 || capital >= cb.DayStartCapital {
		return 0
	}
	return (cb.DayStartCapital - capital) / cb.DayStartCapital * 100
}
