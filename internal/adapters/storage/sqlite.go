package storage

// sqlite.go — persistencia de corridas de backtest.
//
// Estrategia:
//   - `runs`: una fila por corrida con config/métricas/stats en JSON y las
//     columnas de resumen desnormalizadas para listar sin decodificar nada.
//   - `trades` y `snapshots`: hijas de `runs`, se borran junto con ella.
//   - Timestamps como unix nanos (INTEGER): orden y filtros por rango exactos.
//   - Las tablas de datos de mercado importados viven en marketdata.go.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id        TEXT PRIMARY KEY,
    name          TEXT    NOT NULL,
    started_at    INTEGER NOT NULL,
    config_json   TEXT    NOT NULL,
    metrics_json  TEXT    NOT NULL,
    stats_json    TEXT    NOT NULL,
    total_trades  INTEGER NOT NULL DEFAULT 0,
    total_pnl     REAL    NOT NULL DEFAULT 0,
    sharpe_ratio  REAL    NOT NULL DEFAULT 0,
    max_drawdown  REAL    NOT NULL DEFAULT 0,
    final_capital REAL    NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS trades (
    run_id      TEXT    NOT NULL,
    seq         INTEGER NOT NULL,
    entry_time  INTEGER NOT NULL,
    exit_time   INTEGER NOT NULL,
    market_id   TEXT    NOT NULL,
    strategy    TEXT    NOT NULL DEFAULT '',
    side        TEXT    NOT NULL,
    entry_price REAL    NOT NULL,
    exit_price  REAL    NOT NULL,
    quantity    REAL    NOT NULL,
    pnl         REAL    NOT NULL,
    pnl_pct     REAL    NOT NULL,
    gas_cost    REAL    NOT NULL,
    slippage    REAL    NOT NULL,
    PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS snapshots (
    run_id         TEXT    NOT NULL,
    ts             INTEGER NOT NULL,
    capital        REAL    NOT NULL,
    unrealized_pnl REAL    NOT NULL,
    open_positions INTEGER NOT NULL,
    PRIMARY KEY (run_id, ts)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`

// SQLiteStorage implementa ports.ResultStorage y los providers de datos
// usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica
// los schemas de corridas y de datos de mercado.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	for _, stmt := range []string{schema, marketDataSchema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
		}
	}
	return &SQLiteStorage{db: db}, nil
}

// PruneRuns borra las corridas iniciadas antes de now-olderThan, con sus
// trades y snapshots. Devuelve cuántas corridas eliminó.
func (s *SQLiteStorage) PruneRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := toNanos(time.Now().UTC().Add(-olderThan))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.PruneRuns: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, child := range []string{"trades", "snapshots"} {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+child+` WHERE run_id IN (SELECT run_id FROM runs WHERE started_at < ?)`, cutoff,
		); err != nil {
			return 0, fmt.Errorf("storage.PruneRuns: delete %s: %w", child, err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("storage.PruneRuns: delete runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("storage.PruneRuns: rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.PruneRuns: commit: %w", err)
	}
	return n, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
