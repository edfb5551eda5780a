package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polybacktest/internal/domain"
)

// RunSummary es la fila resumida de una corrida guardada.
type RunSummary struct {
	RunID        string
	Name         string
	StartedAt    time.Time
	TotalTrades  int
	TotalPnL     float64
	SharpeRatio  float64
	MaxDrawdown  float64
	FinalCapital float64
}

// ResultStorage persiste los bundles de resultados.
type ResultStorage interface {
	// SaveRun guarda config, métricas, trades y snapshots de una corrida.
	SaveRun(ctx context.Context, res *domain.Result) error

	// GetRun reconstruye el bundle completo de una corrida.
	GetRun(ctx context.Context, runID string) (*domain.Result, error)

	// ListRuns devuelve las corridas más recientes primero.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
