package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polybacktest/internal/application/engine/backtest"
	"github.com/alejandrodnm/polybacktest/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del backtester.
type Config struct {
	Base      BacktestSection  `yaml:"backtest"`
	Risk      RiskSection      `yaml:"risk"`
	Scenarios []ScenarioConfig `yaml:"scenarios"`
	Data      DataConfig       `yaml:"data"`
	API       APIConfig        `yaml:"api"`
	Storage   StorageConfig    `yaml:"storage"`
	Log       LogConfig        `yaml:"log"`
}

// BacktestSection son los parámetros base de simulación.
type BacktestSection struct {
	StartingCapital       float64 `yaml:"starting_capital"`
	MaxPositionSizePct    float64 `yaml:"max_position_size_pct"`
	DailyDrawdownLimitPct float64 `yaml:"daily_drawdown_limit_pct"` // 0 desactiva el breaker diario
	MinLiquidity          float64 `yaml:"min_liquidity"`
	SlippagePct           float64 `yaml:"slippage_pct"` // fracción: 0.02 = 2%
	GasCostPerTrade       float64 `yaml:"gas_cost_per_trade"`
	ExecutionLatencyMs    int     `yaml:"execution_latency_ms"`
	KellyFraction         float64 `yaml:"kelly_fraction"`
	RiskFreeRate          float64 `yaml:"risk_free_rate"`
	KellyOddsSource       string  `yaml:"kelly_odds_source"` // entry_price | fair_value
	DuplicatePolicy       string  `yaml:"duplicate_policy"`  // reject | replace
	Workers               int     `yaml:"workers"`           // corridas en paralelo con -scenarios
}

// RiskSection son los guards opcionales; 0 = desactivado.
type RiskSection struct {
	MinEdge              float64 `yaml:"min_edge"`
	MaxDailyTrades       int     `yaml:"max_daily_trades"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
	CooldownMinutes      int     `yaml:"cooldown_minutes"`
}

// ScenarioConfig es un conjunto nombrado de overrides sobre la base.
// Los campos nil heredan el valor base.
type ScenarioConfig struct {
	Name                  string   `yaml:"name"`
	StartingCapital       *float64 `yaml:"starting_capital"`
	MaxPositionSizePct    *float64 `yaml:"max_position_size_pct"`
	DailyDrawdownLimitPct *float64 `yaml:"daily_drawdown_limit_pct"`
	MinLiquidity          *float64 `yaml:"min_liquidity"`
	SlippagePct           *float64 `yaml:"slippage_pct"`
	GasCostPerTrade       *float64 `yaml:"gas_cost_per_trade"`
	KellyFraction         *float64 `yaml:"kelly_fraction"`
	KellyOddsSource       *string  `yaml:"kelly_odds_source"`
	DuplicatePolicy       *string  `yaml:"duplicate_policy"`
	MinEdge               *float64 `yaml:"min_edge"`
	MaxDailyTrades        *int     `yaml:"max_daily_trades"`
	MaxConsecutiveLosses  *int     `yaml:"max_consecutive_losses"`
}

// DataConfig indica de dónde salen mercados y señales.
type DataConfig struct {
	Source       string   `yaml:"source"` // csv | polymarket | sqlite
	MarketsCSV   string   `yaml:"markets_csv"`
	SignalsCSV   string   `yaml:"signals_csv"`
	ConditionIDs []string `yaml:"condition_ids"` // solo source=polymarket
	Fidelity     int      `yaml:"fidelity"`      // minutos por punto de la serie
	From         string   `yaml:"from"`
	To           string   `yaml:"to"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN           string `yaml:"dsn"`            // ruta al archivo SQLite, o ":memory:"
	RetentionDays int    `yaml:"retention_days"` // 0 = no borrar corridas viejas
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
// Las keys numéricas ausentes del YAML conservan los defaults.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(cfg)

	return cfg, nil
}

// Backtest materializa la config de simulación de un escenario.
// name vacío o "default" = la sección base sin overrides.
func (c *Config) Backtest(name string) (domain.BacktestConfig, error) {
	bt := c.base()
	if name == "" || name == defaultScenario {
		return bt, nil
	}
	for _, sc := range c.Scenarios {
		if sc.Name == name {
			sc.apply(&bt)
			return bt, nil
		}
	}
	return domain.BacktestConfig{}, fmt.Errorf("config.Backtest: unknown scenario %q", name)
}

// Jobs devuelve una corrida por escenario, o solo la base si no hay escenarios.
func (c *Config) Jobs() ([]backtest.Job, error) {
	if len(c.Scenarios) == 0 {
		return []backtest.Job{{Name: defaultScenario, Config: c.base()}}, nil
	}

	jobs := make([]backtest.Job, 0, len(c.Scenarios))
	seen := make(map[string]bool, len(c.Scenarios))
	for _, sc := range c.Scenarios {
		if sc.Name == "" {
			return nil, fmt.Errorf("config.Jobs: scenario without name")
		}
		if seen[sc.Name] {
			return nil, fmt.Errorf("config.Jobs: duplicate scenario %q", sc.Name)
		}
		seen[sc.Name] = true

		bt, err := c.Backtest(sc.Name)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, backtest.Job{Name: sc.Name, Config: bt})
	}
	return jobs, nil
}

// Window parsea data.from / data.to. Una fecha sin hora como `to` cubre el día entero.
func (c *Config) Window() (backtest.Window, error) {
	from, err := ParseDate(c.Data.From, false)
	if err != nil {
		return backtest.Window{}, fmt.Errorf("config.Window: from: %w", err)
	}
	to, err := ParseDate(c.Data.To, true)
	if err != nil {
		return backtest.Window{}, fmt.Errorf("config.Window: to: %w", err)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return backtest.Window{}, fmt.Errorf("config.Window: to %s before from %s", c.Data.To, c.Data.From)
	}
	return backtest.Window{From: from, To: to}, nil
}

// ParseDate acepta "2006-01-02" o RFC3339. Vacío = sin límite.
// Con endOfDay, una fecha sin hora se lleva al último instante de ese día.
func ParseDate(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want 2006-01-02 or RFC3339)", s)
	}
	if endOfDay {
		return d.Add(24*time.Hour - time.Nanosecond), nil
	}
	return d, nil
}

const defaultScenario = "default"

func (c *Config) base() domain.BacktestConfig {
	b := c.Base
	return domain.BacktestConfig{
		StartingCapital:       b.StartingCapital,
		MaxPositionSizePct:    b.MaxPositionSizePct,
		DailyDrawdownLimitPct: b.DailyDrawdownLimitPct,
		MinLiquidity:          b.MinLiquidity,
		SlippagePct:           b.SlippagePct,
		GasCostPerTrade:       b.GasCostPerTrade,
		ExecutionLatencyMs:    b.ExecutionLatencyMs,
		KellyFraction:         b.KellyFraction,
		RiskFreeRate:          b.RiskFreeRate,
		KellyOdds:             domain.KellyOddsSource(b.KellyOddsSource),
		Duplicates:            domain.DuplicatePolicy(b.DuplicatePolicy),
		MinEdge:               c.Risk.MinEdge,
		MaxDailyTrades:        c.Risk.MaxDailyTrades,
		MaxConsecutiveLosses:  c.Risk.MaxConsecutiveLosses,
		Cooldown:              time.Duration(c.Risk.CooldownMinutes) * time.Minute,
	}
}

func (sc ScenarioConfig) apply(bt *domain.BacktestConfig) {
	setIf(&bt.StartingCapital, sc.StartingCapital)
	setIf(&bt.MaxPositionSizePct, sc.MaxPositionSizePct)
	setIf(&bt.DailyDrawdownLimitPct, sc.DailyDrawdownLimitPct)
	setIf(&bt.MinLiquidity, sc.MinLiquidity)
	setIf(&bt.SlippagePct, sc.SlippagePct)
	setIf(&bt.GasCostPerTrade, sc.GasCostPerTrade)
	setIf(&bt.KellyFraction, sc.KellyFraction)
	setIf(&bt.MinEdge, sc.MinEdge)
	setIf(&bt.MaxDailyTrades, sc.MaxDailyTrades)
	setIf(&bt.MaxConsecutiveLosses, sc.MaxConsecutiveLosses)
	if sc.KellyOddsSource != nil {
		bt.KellyOdds = domain.KellyOddsSource(*sc.KellyOddsSource)
	}
	if sc.DuplicatePolicy != nil {
		bt.Duplicates = domain.DuplicatePolicy(*sc.DuplicatePolicy)
	}
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// defaultConfig precarga los defaults numéricos antes de leer el YAML, así un
// 0 explícito (p.ej. daily_drawdown_limit_pct: 0) se respeta.
func defaultConfig() *Config {
	d := domain.DefaultBacktestConfig()
	return &Config{
		Base: BacktestSection{
			StartingCapital:       d.StartingCapital,
			MaxPositionSizePct:    d.MaxPositionSizePct,
			DailyDrawdownLimitPct: d.DailyDrawdownLimitPct,
			MinLiquidity:          d.MinLiquidity,
			SlippagePct:           d.SlippagePct,
			GasCostPerTrade:       d.GasCostPerTrade,
			ExecutionLatencyMs:    d.ExecutionLatencyMs,
			KellyFraction:         d.KellyFraction,
			RiskFreeRate:          d.RiskFreeRate,
		},
		Risk: RiskSection{
			CooldownMinutes: int(d.Cooldown / time.Minute),
		},
	}
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("BACKTEST_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("BACKTEST_STARTING_CAPITAL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("BACKTEST_STARTING_CAPITAL: %w", err)
		}
		cfg.Base.StartingCapital = f
	}
	return nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Base.KellyOddsSource == "" {
		cfg.Base.KellyOddsSource = string(domain.OddsFromEntryPrice)
	}
	if cfg.Base.DuplicatePolicy == "" {
		cfg.Base.DuplicatePolicy = string(domain.DuplicateReject)
	}
	if cfg.Base.Workers <= 0 {
		cfg.Base.Workers = 4
	}
	if cfg.Data.Source == "" {
		cfg.Data.Source = "csv"
	}
	if cfg.Data.MarketsCSV == "" {
		cfg.Data.MarketsCSV = "data/markets.csv"
	}
	if cfg.Data.SignalsCSV == "" {
		cfg.Data.SignalsCSV = "data/signals.csv"
	}
	if cfg.Data.Fidelity <= 0 {
		cfg.Data.Fidelity = 60
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "backtest.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
