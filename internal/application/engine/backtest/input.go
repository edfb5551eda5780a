package backtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/polybacktest/internal/domain"
)

// Errores de precondición: la corrida no arranca si el input no los cumple.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrUnsortedInput = errors.New("input not in chronological order")
	ErrMissingField  = errors.New("missing required field")
	ErrInvalidRow    = errors.New("invalid row")
)

// Window es el filtro temporal inclusivo aplicado a ambas tablas.
// Un extremo en cero significa sin límite por ese lado.
type Window struct {
	From time.Time
	To   time.Time
}

// Contains devuelve true si t cae dentro de la ventana (extremos incluidos).
func (w Window) Contains(t time.Time) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && t.After(w.To) {
		return false
	}
	return true
}

// Input son las dos tablas ya cargadas y ordenadas, más la ventana opcional.
// El engine solo las lee: varias corridas pueden compartir el mismo Input.
type Input struct {
	Markets []domain.MarketRow
	Signals []domain.Signal
	Window  Window
}

// filterMarkets devuelve una copia con las filas dentro de la ventana.
func filterMarkets(rows []domain.MarketRow, w Window) []domain.MarketRow {
	out := make([]domain.MarketRow, 0, len(rows))
	for _, r := range rows {
		if w.Contains(r.Timestamp) {
			out = append(out, r)
		}
	}
	return out
}

// filterSignals devuelve una copia con las señales dentro de la ventana.
func filterSignals(signals []domain.Signal, w Window) []domain.Signal {
	out := make([]domain.Signal, 0, len(signals))
	for _, s := range signals {
		if w.Contains(s.Timestamp) {
			out = append(out, s)
		}
	}
	return out
}

// validateInput comprueba orden cronológico y campos de identidad.
func validateInput(markets []domain.MarketRow, signals []domain.Signal) error {
	for i, r := range markets {
		if r.Timestamp.IsZero() {
			return fmt.Errorf("market row %d: timestamp: %w", i, ErrMissingField)
		}
		if r.MarketID == "" {
			return fmt.Errorf("market row %d: market_id: %w", i, ErrMissingField)
		}
		if i > 0 && r.Timestamp.Before(markets[i-1].Timestamp) {
			return fmt.Errorf("market row %d (%s before %s): %w",
				i, r.Timestamp.Format(time.RFC3339), markets[i-1].Timestamp.Format(time.RFC3339), ErrUnsortedInput)
		}
	}
	for i, s := range signals {
		if s.Timestamp.IsZero() {
			return fmt.Errorf("signal %d: timestamp: %w", i, ErrMissingField)
		}
		if s.MarketID == "" {
			return fmt.Errorf("signal %d: market_id: %w", i, ErrMissingField)
		}
		if !s.SignalType.Valid() {
			return fmt.Errorf("signal %d: signal_type %q: %w", i, s.SignalType, ErrInvalidRow)
		}
		if i > 0 && s.Timestamp.Before(signals[i-1].Timestamp) {
			return fmt.Errorf("signal %d (%s before %s): %w",
				i, s.Timestamp.Format(time.RFC3339), signals[i-1].Timestamp.Format(time.RFC3339), ErrUnsortedInput)
		}
	}
	return nil
}

// step agrupa todo lo que ocurre en un timestamp del histórico de mercados.
type step struct {
	ts      time.Time
	rows    map[string]domain.MarketRow // market_id → primera fila en ts
	signals []domain.Signal
}

// buildSteps recorre ambas tablas ordenadas y agrupa por timestamp de mercado.
// Las señales cuyo timestamp no existe en el histórico se cuentan como unmatched.
func buildSteps(markets []domain.MarketRow, signals []domain.Signal) (steps []step, unmatched int) {
	j := 0
	for i := 0; i < len(markets); {
		ts := markets[i].Timestamp
		st := step{ts: ts, rows: make(map[string]domain.MarketRow)}
		for ; i < len(markets) && markets[i].Timestamp.Equal(ts); i++ {
			if _, seen := st.rows[markets[i].MarketID]; !seen {
				st.rows[markets[i].MarketID] = markets[i]
			}
		}
		for ; j < len(signals) && signals[j].Timestamp.Before(ts); j++ {
			unmatched++
		}
		for ; j < len(signals) && signals[j].Timestamp.Equal(ts); j++ {
			st.signals = append(st.signals, signals[j])
		}
		steps = append(steps, st)
	}
	unmatched += len(signals) - j
	return steps, unmatched
}
