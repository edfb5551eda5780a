package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polybacktest/config"
	"github.com/alejandrodnm/polybacktest/internal/adapters/csvdata"
	"github.com/alejandrodnm/polybacktest/internal/adapters/notify"
	"github.com/alejandrodnm/polybacktest/internal/adapters/polymarket"
	"github.com/alejandrodnm/polybacktest/internal/adapters/storage"
	"github.com/alejandrodnm/polybacktest/internal/application/engine/backtest"
	"github.com/alejandrodnm/polybacktest/internal/domain"
	"github.com/alejandrodnm/polybacktest/internal/ports"
)

const (
	sourceCSV        = "csv"
	sourcePolymarket = "polymarket"
	sourceSQLite     = "sqlite"
)

// providers resuelve de dónde salen mercados y señales según data.source.
// Con polymarket las señales siguen viniendo del CSV.
func providers(cfg *config.Config, store *storage.SQLiteStorage) (ports.MarketDataProvider, ports.SignalProvider, error) {
	csvLoader := csvdata.NewLoader(cfg.Data.MarketsCSV, cfg.Data.SignalsCSV)

	switch cfg.Data.Source {
	case sourceCSV:
		return csvLoader, csvLoader, nil
	case sourcePolymarket:
		if len(cfg.Data.ConditionIDs) == 0 {
			return nil, nil, errors.New("source polymarket needs condition ids (-conditions or data.condition_ids)")
		}
		client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)
		return polymarket.NewHistoryProvider(client, cfg.Data.ConditionIDs, cfg.Data.Fidelity), csvLoader, nil
	case sourceSQLite:
		return store, store, nil
	}
	return nil, nil, fmt.Errorf("unknown data source %q", cfg.Data.Source)
}

// loadInput carga ambas tablas dentro de la ventana configurada.
func loadInput(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage) (backtest.Input, error) {
	window, err := cfg.Window()
	if err != nil {
		return backtest.Input{}, err
	}
	mp, sp, err := providers(cfg, store)
	if err != nil {
		return backtest.Input{}, err
	}

	markets, err := mp.LoadMarkets(ctx, window.From, window.To)
	if err != nil {
		return backtest.Input{}, fmt.Errorf("load markets: %w", err)
	}
	signals, err := sp.LoadSignals(ctx, window.From, window.To)
	if err != nil {
		return backtest.Input{}, fmt.Errorf("load signals: %w", err)
	}

	slog.Info("input loaded",
		"source", cfg.Data.Source,
		"market_rows", len(markets),
		"signals", len(signals),
		"from", window.From,
		"to", window.To,
	)
	return backtest.Input{Markets: markets, Signals: signals, Window: window}, nil
}

// runBacktest ejecuta una corrida (o todos los escenarios) y reporta.
func runBacktest(ctx context.Context, cfg *config.Config, opts options, store *storage.SQLiteStorage, reporter *notify.Console) error {
	jobs, err := selectJobs(cfg, opts)
	if err != nil {
		return err
	}

	in, err := loadInput(ctx, cfg, store)
	if err != nil {
		return err
	}

	start := time.Now()
	results, err := backtest.RunAll(ctx, jobs, in, cfg.Base.Workers)
	if err != nil {
		return err
	}
	slog.Info("backtest complete", "runs", len(results), "elapsed", time.Since(start).Round(time.Millisecond))

	if err := reporter.Report(ctx, results); err != nil {
		return err
	}
	if opts.trades != 0 {
		for _, res := range results {
			reporter.PrintTrades(res, opts.trades)
		}
	}

	if opts.save {
		for _, res := range results {
			if err := store.SaveRun(ctx, res); err != nil {
				return err
			}
			slog.Info("run saved", "run_id", res.RunID, "name", res.Name)
		}
	}
	return nil
}

// selectJobs: -scenario elige uno, -scenarios todos, sin flags la base.
func selectJobs(cfg *config.Config, opts options) ([]backtest.Job, error) {
	if opts.scenarios {
		return cfg.Jobs()
	}
	name := opts.scenario
	if name == "" {
		name = "default"
	}
	bt, err := cfg.Backtest(name)
	if err != nil {
		return nil, err
	}
	return []backtest.Job{{Name: name, Config: bt}}, nil
}

// importData guarda en SQLite lo que devuelva la fuente configurada.
func importData(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage) error {
	if cfg.Data.Source == sourceSQLite {
		return errors.New("import: source is already sqlite")
	}
	in, err := loadInput(ctx, cfg, store)
	if err != nil {
		return err
	}

	nm, err := store.ImportMarkets(ctx, in.Markets)
	if err != nil {
		return err
	}
	ns, err := store.ImportSignals(ctx, in.Signals)
	if err != nil {
		return err
	}
	slog.Info("import complete", "market_rows", nm, "signals", ns, "dsn", cfg.Storage.DSN)
	return nil
}

func listRuns(ctx context.Context, store *storage.SQLiteStorage, reporter *notify.Console, limit int) error {
	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	reporter.PrintRuns(runs)
	return nil
}

func showRun(ctx context.Context, store *storage.SQLiteStorage, reporter *notify.Console, runID string, trades int) error {
	res, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if err := reporter.Report(ctx, []*domain.Result{res}); err != nil {
		return err
	}
	if trades != 0 {
		reporter.PrintTrades(res, trades)
	}
	return nil
}

// pruneRuns borra corridas más viejas que la retención. Un fallo solo se loguea.
func pruneRuns(ctx context.Context, store *storage.SQLiteStorage, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	n, err := store.PruneRuns(ctx, time.Duration(retentionDays)*24*time.Hour)
	if err != nil {
		slog.Warn("prune runs failed", "err", err)
		return
	}
	if n > 0 {
		slog.Info("pruned old runs", "count", n, "retention_days", retentionDays)
	}
}
