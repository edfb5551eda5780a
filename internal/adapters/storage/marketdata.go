package storage

// marketdata.go — cache local de históricos de mercado y señales.
//
// Permite importar una vez (desde CSV o la API de Polymarket) y repetir
// backtests sin red. Clave natural (ts, market_id): reimportar pisa la fila.

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/alejandrodnm/polybacktest/internal/domain"
)

const marketDataSchema = `
CREATE TABLE IF NOT EXISTS market_rows (
    ts         INTEGER NOT NULL,
    market_id  TEXT    NOT NULL,
    yes_price  REAL    NOT NULL,
    no_price   REAL    NOT NULL,
    liquidity  REAL    NOT NULL DEFAULT 0,
    resolution TEXT    NOT NULL DEFAULT '',
    PRIMARY KEY (ts, market_id)
);

CREATE TABLE IF NOT EXISTS signals (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    ts          INTEGER NOT NULL,
    market_id   TEXT    NOT NULL,
    signal_type TEXT    NOT NULL,
    confidence  REAL    NOT NULL DEFAULT 0,
    edge_size   REAL    NOT NULL DEFAULT 0,
    entry_price REAL    NOT NULL,
    fair_value  REAL    NOT NULL,
    strategy    TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(ts);
`

// ImportMarkets guarda filas de mercado. Devuelve cuántas escribió.
func (s *SQLiteStorage) ImportMarkets(ctx context.Context, rows []domain.MarketRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.ImportMarkets: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO market_rows (ts, market_id, yes_price, no_price, liquidity, resolution)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(ts, market_id) DO UPDATE SET
			yes_price  = excluded.yes_price,
			no_price   = excluded.no_price,
			liquidity  = excluded.liquidity,
			resolution = excluded.resolution`)
	if err != nil {
		return 0, fmt.Errorf("storage.ImportMarkets: prepare: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			toNanos(r.Timestamp), r.MarketID, r.YesPrice, r.NoPrice, r.Liquidity, string(r.Resolution),
		); err != nil {
			return 0, fmt.Errorf("storage.ImportMarkets: upsert %s: %w", r.MarketID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.ImportMarkets: commit: %w", err)
	}
	return len(rows), nil
}

// ImportSignals agrega señales. No deduplica: la misma señal importada dos
// veces aparece dos veces.
func (s *SQLiteStorage) ImportSignals(ctx context.Context, signals []domain.Signal) (int, error) {
	if len(signals) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.ImportSignals: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO signals
			(ts, market_id, signal_type, confidence, edge_size, entry_price, fair_value, strategy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("storage.ImportSignals: prepare: %w", err)
	}
	defer stmt.Close()

	for _, sig := range signals {
		if _, err := stmt.ExecContext(ctx,
			toNanos(sig.Timestamp), sig.MarketID, string(sig.SignalType),
			sig.Confidence, sig.EdgeSize, sig.EntryPrice, sig.FairValue, sig.Strategy,
		); err != nil {
			return 0, fmt.Errorf("storage.ImportSignals: insert %s: %w", sig.MarketID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.ImportSignals: commit: %w", err)
	}
	return len(signals), nil
}

// LoadMarkets implementa ports.MarketDataProvider. Límites cero = sin límite.
func (s *SQLiteStorage) LoadMarkets(ctx context.Context, from, to time.Time) ([]domain.MarketRow, error) {
	lo, hi := bounds(from, to)
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, market_id, yes_price, no_price, liquidity, resolution
		FROM market_rows
		WHERE ts BETWEEN ? AND ?
		ORDER BY ts, market_id`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadMarkets: query: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketRow
	for rows.Next() {
		var r domain.MarketRow
		var ts int64
		var res string
		if err := rows.Scan(&ts, &r.MarketID, &r.YesPrice, &r.NoPrice, &r.Liquidity, &res); err != nil {
			return nil, fmt.Errorf("storage.LoadMarkets: scan row: %w", err)
		}
		r.Timestamp = fromNanos(ts)
		r.Resolution = domain.Resolution(res)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadSignals implementa ports.SignalProvider, en orden de importación dentro
// de cada timestamp.
func (s *SQLiteStorage) LoadSignals(ctx context.Context, from, to time.Time) ([]domain.Signal, error) {
	lo, hi := bounds(from, to)
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, market_id, signal_type, confidence, edge_size, entry_price, fair_value, strategy
		FROM signals
		WHERE ts BETWEEN ? AND ?
		ORDER BY ts, id`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadSignals: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var ts int64
		var side string
		if err := rows.Scan(&ts, &sig.MarketID, &side, &sig.Confidence, &sig.EdgeSize,
			&sig.EntryPrice, &sig.FairValue, &sig.Strategy); err != nil {
			return nil, fmt.Errorf("storage.LoadSignals: scan row: %w", err)
		}
		sig.Timestamp = fromNanos(ts)
		sig.SignalType = domain.Side(side)
		out = append(out, sig)
	}
	return out, rows.Err()
}

func bounds(from, to time.Time) (int64, int64) {
	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if !from.IsZero() {
		lo = toNanos(from)
	}
	if !to.IsZero() {
		hi = toNanos(to)
	}
	return lo, hi
}
