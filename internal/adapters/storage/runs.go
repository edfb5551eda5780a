package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alejandrodnm/polybacktest/internal/domain"
	"github.com/alejandrodnm/polybacktest/internal/ports"
)

// ErrRunNotFound se devuelve cuando GetRun no encuentra el run_id.
var ErrRunNotFound = errors.New("run not found")

// SaveRun persiste el bundle completo en una sola transacción.
// Guardar dos veces el mismo run_id reemplaza la corrida anterior.
func (s *SQLiteStorage) SaveRun(ctx context.Context, res *domain.Result) error {
	if res == nil || res.RunID == "" {
		return errors.New("storage.SaveRun: result without run_id")
	}

	cfgJSON, err := json.Marshal(res.Config)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: marshal config: %w", err)
	}
	metricsJSON, err := json.Marshal(res.Metrics)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: marshal metrics: %w", err)
	}
	statsJSON, err := json.Marshal(res.Stats)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: marshal stats: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"trades", "snapshots", "runs"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, res.RunID); err != nil {
			return fmt.Errorf("storage.SaveRun: clear previous %s: %w", table, err)
		}
	}

	m := res.Metrics
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs
			(run_id, name, started_at, config_json, metrics_json, stats_json,
			 total_trades, total_pnl, sharpe_ratio, max_drawdown, final_capital)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Name, toNanos(res.StartedAt),
		string(cfgJSON), string(metricsJSON), string(statsJSON),
		m.TotalTrades, m.TotalPnL, m.SharpeRatio, m.MaxDrawdown, m.FinalCapital,
	); err != nil {
		return fmt.Errorf("storage.SaveRun: insert run: %w", err)
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades
			(run_id, seq, entry_time, exit_time, market_id, strategy, side,
			 entry_price, exit_price, quantity, pnl, pnl_pct, gas_cost, slippage)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: prepare trades: %w", err)
	}
	defer tradeStmt.Close()

	for i, tr := range res.Trades {
		if _, err := tradeStmt.ExecContext(ctx,
			res.RunID, i, toNanos(tr.EntryTime), toNanos(tr.ExitTime),
			tr.MarketID, tr.Strategy, string(tr.Side),
			tr.EntryPrice, tr.ExitPrice, tr.Quantity,
			tr.PnL, tr.PnLPct, tr.GasCost, tr.Slippage,
		); err != nil {
			return fmt.Errorf("storage.SaveRun: insert trade %d: %w", i, err)
		}
	}

	snapStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshots (run_id, ts, capital, unrealized_pnl, open_positions)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: prepare snapshots: %w", err)
	}
	defer snapStmt.Close()

	for _, sn := range res.Snapshots {
		if _, err := snapStmt.ExecContext(ctx,
			res.RunID, toNanos(sn.Timestamp), sn.Capital, sn.UnrealizedPnL, sn.OpenPositions,
		); err != nil {
			return fmt.Errorf("storage.SaveRun: insert snapshot: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveRun: commit: %w", err)
	}
	return nil
}

// GetRun reconstruye una corrida guardada. Devuelve ErrRunNotFound si no existe.
func (s *SQLiteStorage) GetRun(ctx context.Context, runID string) (*domain.Result, error) {
	var (
		res                             domain.Result
		startedAt                       int64
		cfgJSON, metricsJSON, statsJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, name, started_at, config_json, metrics_json, stats_json
		FROM runs WHERE run_id = ?`, runID,
	).Scan(&res.RunID, &res.Name, &startedAt, &cfgJSON, &metricsJSON, &statsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("storage.GetRun: %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage.GetRun: query run: %w", err)
	}
	res.StartedAt = fromNanos(startedAt)

	if err := json.Unmarshal([]byte(cfgJSON), &res.Config); err != nil {
		return nil, fmt.Errorf("storage.GetRun: decode config: %w", err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &res.Metrics); err != nil {
		return nil, fmt.Errorf("storage.GetRun: decode metrics: %w", err)
	}
	if err := json.Unmarshal([]byte(statsJSON), &res.Stats); err != nil {
		return nil, fmt.Errorf("storage.GetRun: decode stats: %w", err)
	}

	if res.Trades, err = s.runTrades(ctx, runID); err != nil {
		return nil, err
	}
	if res.Snapshots, err = s.runSnapshots(ctx, runID); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListRuns devuelve los resúmenes más recientes primero. limit <= 0 = todas.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	if limit <= 0 {
		limit = -1 // SQLite: LIMIT -1 = sin límite
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, name, started_at, total_trades, total_pnl,
		       sharpe_ratio, max_drawdown, final_capital
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListRuns: query: %w", err)
	}
	defer rows.Close()

	var out []ports.RunSummary
	for rows.Next() {
		var rs ports.RunSummary
		var startedAt int64
		if err := rows.Scan(&rs.RunID, &rs.Name, &startedAt, &rs.TotalTrades,
			&rs.TotalPnL, &rs.SharpeRatio, &rs.MaxDrawdown, &rs.FinalCapital); err != nil {
			return nil, fmt.Errorf("storage.ListRuns: scan row: %w", err)
		}
		rs.StartedAt = fromNanos(startedAt)
		out = append(out, rs)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) runTrades(ctx context.Context, runID string) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_time, exit_time, market_id, strategy, side,
		       entry_price, exit_price, quantity, pnl, pnl_pct, gas_cost, slippage
		FROM trades WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetRun: query trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var tr domain.Trade
		var entry, exit int64
		var side string
		if err := rows.Scan(&entry, &exit, &tr.MarketID, &tr.Strategy, &side,
			&tr.EntryPrice, &tr.ExitPrice, &tr.Quantity,
			&tr.PnL, &tr.PnLPct, &tr.GasCost, &tr.Slippage); err != nil {
			return nil, fmt.Errorf("storage.GetRun: scan trade: %w", err)
		}
		tr.EntryTime, tr.ExitTime = fromNanos(entry), fromNanos(exit)
		tr.Side = domain.Side(side)
		trades = append(trades, tr)
	}
	return trades, rows.Err()
}

func (s *SQLiteStorage) runSnapshots(ctx context.Context, runID string) ([]domain.PortfolioSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, capital, unrealized_pnl, open_positions
		FROM snapshots WHERE run_id = ? ORDER BY ts`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetRun: query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.PortfolioSnapshot
	for rows.Next() {
		var sn domain.PortfolioSnapshot
		var ts int64
		if err := rows.Scan(&ts, &sn.Capital, &sn.UnrealizedPnL, &sn.OpenPositions); err != nil {
			return nil, fmt.Errorf("storage.GetRun: scan snapshot: %w", err)
		}
		sn.Timestamp = fromNanos(ts)
		snaps = append(snaps, sn)
	}
	return snaps, rows.Err()
}
