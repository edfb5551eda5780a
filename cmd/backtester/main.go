package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alejandrodnm/polybacktest/config"
	"github.com/alejandrodnm/polybacktest/internal/adapters/notify"
	"github.com/alejandrodnm/polybacktest/internal/adapters/storage"
)

// options son los flags que afectan a una corrida concreta.
type options struct {
	source     string
	markets    string
	signals    string
	conditions string
	from       string
	to         string
	scenario   string
	scenarios  bool
	save       bool
	importOnly bool
	trades     int
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	output := flag.String("output", notify.FormatTable, "report format: table|json")
	history := flag.Int("history", 0, "list the N most recent saved runs and exit")
	show := flag.String("show", "", "print a saved run by id and exit")

	var opts options
	flag.StringVar(&opts.source, "source", "", "market data source: csv|polymarket|sqlite (overrides config)")
	flag.StringVar(&opts.markets, "markets", "", "markets CSV path (overrides config)")
	flag.StringVar(&opts.signals, "signals", "", "signals CSV path (overrides config)")
	flag.StringVar(&opts.conditions, "conditions", "", "comma-separated condition ids for -source polymarket")
	flag.StringVar(&opts.from, "from", "", "window start: 2006-01-02 or RFC3339")
	flag.StringVar(&opts.to, "to", "", "window end, inclusive: 2006-01-02 or RFC3339")
	flag.StringVar(&opts.scenario, "scenario", "", "run a single named scenario")
	flag.BoolVar(&opts.scenarios, "scenarios", false, "run every configured scenario in parallel")
	flag.BoolVar(&opts.save, "save", false, "persist results to SQLite")
	flag.BoolVar(&opts.importOnly, "import", false, "load markets/signals and store them in SQLite, then exit")
	flag.IntVar(&opts.trades, "trades", 0, "print up to N closed trades per run (-1 = all)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)
	applyFlags(cfg, opts)

	slog.Info("polybacktest starting",
		"config", *configPath,
		"source", cfg.Data.Source,
		"scenario", opts.scenario,
		"scenarios", opts.scenarios,
		"save", opts.save,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reporter := notify.NewConsole(*output)

	// SQLite solo se abre si algún modo lo necesita.
	var store *storage.SQLiteStorage
	if opts.save || opts.importOnly || *history > 0 || *show != "" || cfg.Data.Source == sourceSQLite {
		store, err = storage.NewSQLiteStorage(cfg.Storage.DSN)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
			os.Exit(1)
		}
		defer store.Close()
		pruneRuns(ctx, store, cfg.Storage.RetentionDays)
	}

	switch {
	case *history > 0:
		err = listRuns(ctx, store, reporter, *history)
	case *show != "":
		err = showRun(ctx, store, reporter, *show, opts.trades)
	case opts.importOnly:
		err = importData(ctx, cfg, store)
	default:
		err = runBacktest(ctx, cfg, opts, store, reporter)
	}
	if err != nil {
		slog.Error("polybacktest failed", "err", err)
		os.Exit(1)
	}

	slog.Info("polybacktest finished")
}

// applyFlags sobreescribe la sección data con los flags no vacíos.
func applyFlags(cfg *config.Config, opts options) {
	if opts.source != "" {
		cfg.Data.Source = opts.source
	}
	if opts.markets != "" {
		cfg.Data.MarketsCSV = opts.markets
	}
	if opts.signals != "" {
		cfg.Data.SignalsCSV = opts.signals
	}
	if opts.conditions != "" {
		cfg.Data.ConditionIDs = splitList(opts.conditions)
	}
	if opts.from != "" {
		cfg.Data.From = opts.from
	}
	if opts.to != "" {
		cfg.Data.To = opts.to
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// setupLogger escribe a stderr: stdout queda para los reportes.
func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
