package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polybacktest/internal/domain"
)

// SignalProvider carga las señales producidas aguas arriba.
type SignalProvider interface {
	// LoadSignals devuelve las señales con timestamp en [from, to], ordenadas.
	LoadSignals(ctx context.Context, from, to time.Time) ([]domain.Signal, error)
}
