package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polybacktest/internal/domain"
)

// MarketDataProvider carga el histórico de mercados.
type MarketDataProvider interface {
	// LoadMarkets devuelve las filas con timestamp en [from, to], ordenadas
	// por timestamp ascendente. from/to en cero = sin límite.
	LoadMarkets(ctx context.Context, from, to time.Time) ([]domain.MarketRow, error)
}
