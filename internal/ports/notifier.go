package ports

import (
	"context"

	"github.com/alejandrodnm/polybacktest/internal/domain"
)

// Reporter presenta los resultados de una o varias corridas.
type Reporter interface {
	// Report muestra las métricas; con varias corridas, una tabla comparativa.
	Report(ctx context.Context, results []*domain.Result) error
}
