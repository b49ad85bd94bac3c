package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the quantflow platform.
type Config struct {
	Storage     Storage           `yaml:"storage"`
	Logging     Logging           `yaml:"logging"`
	Backtest    BacktestConfig    `yaml:"backtest"`
	Optimize    OptimizeConfig    `yaml:"optimize"`
	WalkForward WalkForwardConfig `yaml:"walk_forward"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BacktestConfig defines execution frictions and risk limits applied during
// historical replay.
type BacktestConfig struct {
	InitialCapital      float64 `yaml:"initial_capital"`
	CommissionRate      float64 `yaml:"commission_rate"`
	SlippageRate        float64 `yaml:"slippage_rate"`
	MaxPositionFraction float64 `yaml:"max_position_fraction"`
	AllowShort          bool    `yaml:"allow_short"`
	RiskFreeRate        float64 `yaml:"risk_free_rate"`
}

// OptimizeConfig controls parameter sweeps.
type OptimizeConfig struct {
	Method     string        `yaml:"method"` // "grid", "random", "bayes"
	Metric     string        `yaml:"metric"` // e.g. "sharpe_ratio"
	Workers    int           `yaml:"workers"`
	Seed       int64         `yaml:"seed"`
	Iterations int           `yaml:"iterations"` // random draws / bayes calls
	WarmStart  int           `yaml:"warm_start"` // random samples before surrogate fitting
	Parameters []ParamConfig `yaml:"parameters"`
}

// ParamConfig declares one tunable strategy parameter and its search space.
type ParamConfig struct {
	Name     string    `yaml:"name"`
	Kind     string    `yaml:"kind"` // "choice", "int", "real"
	Choices  []float64 `yaml:"choices"`
	Min      float64   `yaml:"min"`
	Max      float64   `yaml:"max"`
	Step     float64   `yaml:"step"`
	LogScale bool      `yaml:"log_scale"`
}

// WalkForwardConfig sets the rolling train/test window sizes, in bars.
type WalkForwardConfig struct {
	TrainBars int `yaml:"train_bars"`
	TestBars  int `yaml:"test_bars"`
	StepBars  int `yaml:"step_bars"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a Config populated with the standard defaults: 100k initial
// capital, 0.1% commission, 0.05% slippage, 25% max position, no shorting,
// 2% annual risk-free rate.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/quantflow.db",
		},
		Logging: Logging{Level: "info", Format: "json"},
		Backtest: BacktestConfig{
			InitialCapital:      100000,
			CommissionRate:      0.001,
			SlippageRate:        0.0005,
			MaxPositionFraction: 0.25,
			AllowShort:          false,
			RiskFreeRate:        0.02,
		},
		Optimize: OptimizeConfig{
			Method:     "grid",
			Metric:     "sharpe_ratio",
			Iterations: 100,
			WarmStart:  10,
		},
		WalkForward: WalkForwardConfig{
			TrainBars: 252,
			TestBars:  63,
			StepBars:  63,
		},
	}
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct on top of defaults, and then applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that configured values are usable before any run starts.
func (c *Config) Validate() error {
	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital must be positive, got %v", c.Backtest.InitialCapital)
	}
	if c.Backtest.CommissionRate < 0 || c.Backtest.SlippageRate < 0 {
		return fmt.Errorf("commission and slippage rates must be non-negative")
	}
	if c.Backtest.MaxPositionFraction <= 0 || c.Backtest.MaxPositionFraction > 1 {
		return fmt.Errorf("backtest.max_position_fraction must be in (0, 1], got %v", c.Backtest.MaxPositionFraction)
	}
	if c.Optimize.Workers < 0 {
		return fmt.Errorf("optimize.workers must be non-negative, got %d", c.Optimize.Workers)
	}
	return nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("QUANTFLOW_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Optimize.Workers = n
		}
	}
	if v := os.Getenv("QUANTFLOW_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Optimize.Seed = n
		}
	}
}
