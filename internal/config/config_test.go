package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quantflow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
storage:
  data_dir: /tmp/bars
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Storage.DataDir != "/tmp/bars" {
		t.Errorf("DataDir = %q, want /tmp/bars", cfg.Storage.DataDir)
	}
	// Unset fields fall back to defaults.
	if cfg.Backtest.InitialCapital != 100000 {
		t.Errorf("InitialCapital = %v, want 100000", cfg.Backtest.InitialCapital)
	}
	if cfg.Backtest.CommissionRate != 0.001 {
		t.Errorf("CommissionRate = %v, want 0.001", cfg.Backtest.CommissionRate)
	}
	if cfg.Backtest.MaxPositionFraction != 0.25 {
		t.Errorf("MaxPositionFraction = %v, want 0.25", cfg.Backtest.MaxPositionFraction)
	}
	if cfg.Optimize.Metric != "sharpe_ratio" {
		t.Errorf("Metric = %q, want sharpe_ratio", cfg.Optimize.Metric)
	}
}

func TestLoadParameterSpace(t *testing.T) {
	path := writeTempConfig(t, `
optimize:
  method: random
  iterations: 50
  seed: 42
  parameters:
    - name: short_window
      kind: choice
      choices: [5, 10, 15]
    - name: long_window
      kind: int
      min: 20
      max: 60
    - name: position_size
      kind: real
      min: 0.05
      max: 0.25
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Optimize.Method != "random" || cfg.Optimize.Iterations != 50 || cfg.Optimize.Seed != 42 {
		t.Errorf("optimize section not parsed: %+v", cfg.Optimize)
	}
	if len(cfg.Optimize.Parameters) != 3 {
		t.Fatalf("got %d parameters, want 3", len(cfg.Optimize.Parameters))
	}
	p := cfg.Optimize.Parameters[0]
	if p.Name != "short_window" || p.Kind != "choice" || len(p.Choices) != 3 {
		t.Errorf("first parameter not parsed: %+v", p)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
storage:
  data_dir: original
`)
	t.Setenv("DATA_DIR", "/overridden")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("QUANTFLOW_WORKERS", "8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.DataDir != "/overridden" {
		t.Errorf("DataDir = %q, want /overridden", cfg.Storage.DataDir)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Optimize.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Optimize.Workers)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero capital", func(c *Config) { c.Backtest.InitialCapital = 0 }},
		{"negative commission", func(c *Config) { c.Backtest.CommissionRate = -0.01 }},
		{"position fraction above one", func(c *Config) { c.Backtest.MaxPositionFraction = 1.5 }},
		{"negative workers", func(c *Config) { c.Optimize.Workers = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted invalid config")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load succeeded on missing file")
	}
}
