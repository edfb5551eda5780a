package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var day0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestCircuitBreaker_DailyDrawdownTripsAndResets(t *testing.T) {
	cb := NewCircuitBreaker(BacktestConfig{DailyDrawdownLimitPct: 8})
	cb.Roll(day0, 1000)
	assert.True(t, cb.IsOpen(day0))

	cb.RecordClose(day0.Add(time.Hour), -50, 950)
	assert.True(t, cb.IsOpen(day0.Add(time.Hour)), "5% < 8%")

	cb.RecordClose(day0.Add(2*time.Hour), -30, 920)
	assert.False(t, cb.IsOpen(day0.Add(2*time.Hour)), "8% reached")
	assert.Equal(t, "daily drawdown limit reached", cb.TriggeredReason)

	// mismo día: sigue disparado
	cb.Roll(day0.Add(5*time.Hour), 920)
	assert.False(t, cb.IsOpen(day0.Add(5*time.Hour)))

	// día siguiente: nuevo capital de apertura
	next := day0.Add(24 * time.Hour)
	cb.Roll(next, 920)
	assert.True(t, cb.IsOpen(next))
	assert.Equal(t, 920.0, cb.DayStartCapital)
}

func TestCircuitBreaker_DisabledLimit(t *testing.T) {
	cb := NewCircuitBreaker(BacktestConfig{})
	cb.Roll(day0, 1000)
	cb.RecordClose(day0, -900, 100)
	assert.True(t, cb.IsOpen(day0))
}

func TestCircuitBreaker_ConsecutiveLossCooldown(t *testing.T) {
	cb := NewCircuitBreaker(BacktestConfig{MaxConsecutiveLosses: 2, Cooldown: time.Hour})
	cb.Roll(day0, 1000)

	cb.RecordClose(day0, -1, 999)
	cb.RecordClose(day0, 5, 1004) // una ganancia resetea la racha
	cb.RecordClose(day0, -1, 1003)
	assert.True(t, cb.IsOpen(day0))

	cb.RecordClose(day0, -1, 1002)
	assert.False(t, cb.IsOpen(day0.Add(30*time.Minute)))
	assert.True(t, cb.IsOpen(day0.Add(time.Hour)))
}

func TestCircuitBreaker_CooldownReasonSurvivesDayRollover(t *testing.T) {
	cb := NewCircuitBreaker(BacktestConfig{MaxConsecutiveLosses: 1, Cooldown: 6 * time.Hour})
	late := time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)
	cb.Roll(late, 1000)
	cb.RecordClose(late, -10, 990)

	nextDay := late.Add(3 * time.Hour)
	cb.Roll(nextDay, 990)
	assert.False(t, cb.IsOpen(nextDay))
	assert.Equal(t, "consecutive losses", cb.TriggeredReason)

	// cooldown vencido: el día siguiente arranca limpio
	after := late.Add(30 * time.Hour)
	cb.Roll(after, 990)
	assert.True(t, cb.IsOpen(after))
	assert.Empty(t, cb.TriggeredReason)
}

func TestCircuitBreaker_DailyTradeLimit(t *testing.T) {
	cb := NewCircuitBreaker(BacktestConfig{MaxDailyTrades: 2})
	cb.Roll(day0, 1000)
	cb.RecordEntry()
	assert.False(t, cb.DailyLimitReached())
	cb.RecordEntry()
	assert.True(t, cb.DailyLimitReached())

	cb.Roll(day0.Add(24*time.Hour), 1000)
	assert.False(t, cb.DailyLimitReached())
}
