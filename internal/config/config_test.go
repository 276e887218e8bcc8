package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":8080")
	}
	if cfg.UseMemory {
		t.Error("UseMemory = true, want false")
	}
	if cfg.AssetA != "SOL" || cfg.AssetB != "FND" {
		t.Errorf("assets = %q/%q, want SOL/FND", cfg.AssetA, cfg.AssetB)
	}
	if cfg.MinimumFloor != 1000 {
		t.Errorf("MinimumFloor = %d, want 1000", cfg.MinimumFloor)
	}
	if cfg.RatioToleranceBps != 100 {
		t.Errorf("RatioToleranceBps = %d, want 100", cfg.RatioToleranceBps)
	}
	if cfg.MaxSlippageBps != 1000 {
		t.Errorf("MaxSlippageBps = %d, want 1000", cfg.MaxSlippageBps)
	}
	if cfg.MaxFarmPools != 32 {
		t.Errorf("MaxFarmPools = %d, want 32", cfg.MaxFarmPools)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FUNDEX_LISTEN", ":9090")
	t.Setenv("FUNDEX_POSTGRES_DSN", "postgres://env")
	t.Setenv("FUNDEX_USE_MEMORY", "true")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":9090")
	}
	if cfg.PostgresDSN != "postgres://env" {
		t.Errorf("PostgresDSN = %q, want %q", cfg.PostgresDSN, "postgres://env")
	}
	if !cfg.UseMemory {
		t.Error("UseMemory = false, want true")
	}
}

func TestLoadFlagBeatsEnv(t *testing.T) {
	t.Setenv("FUNDEX_LISTEN", ":9090")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("listen", "", "")
	if err := flags.Set("listen", ":7070"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":7070" {
		t.Errorf("Listen = %q, want flag value %q", cfg.Listen, ":7070")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte("listen: \":6060\"\nuse-memory: true\nlog-level: debug\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":6060" {
		t.Errorf("Listen = %q, want %q", cfg.Listen, ":6060")
	}
	if !cfg.UseMemory {
		t.Error("UseMemory = false, want true")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
}

func TestLoadConfigFileMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil); err == nil {
		t.Error("Load with missing explicit config file succeeded, want error")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"equal assets", map[string]string{"FUNDEX_ASSET_A": "FND"}},
		{"negative floor", map[string]string{"FUNDEX_MINIMUM_FLOOR": "-1"}},
		{"slippage above scale", map[string]string{"FUNDEX_MAX_SLIPPAGE_BPS": "10001"}},
		{"zero farm pools", map[string]string{"FUNDEX_MAX_FARM_POOLS": "0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load("", nil); err == nil {
				t.Error("Load succeeded, want validation error")
			}
		})
	}
}
