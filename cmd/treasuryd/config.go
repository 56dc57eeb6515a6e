package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/defistate/liquidity-treasury-go/external"
)

// projectEntry names one (project, pairing token) pair the daemon maintains.
// An empty pairing means the project's primary pairing token, resolved from
// the registry at runtime.
type projectEntry struct {
	ID      uint64 `yaml:"id"`
	Pairing string `yaml:"pairing"`
}

// config holds all daemon configuration.
type config struct {
	Ledger struct {
		URL string `yaml:"url"`
	} `yaml:"ledger"`
	Fee struct {
		Project uint64 `yaml:"project"`
		Bps     uint64 `yaml:"bps"`
		Tier    uint32 `yaml:"tier"`
	} `yaml:"fee"`
	Position struct {
		FallbackBandWidth int64 `yaml:"fallback_band_width"`
	} `yaml:"position"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Schedule struct {
		RebalanceCron string `yaml:"rebalance_cron"`
		CollectCron   string `yaml:"collect_cron"`
	} `yaml:"schedule"`
	Metrics struct {
		Listen string `yaml:"listen"`
	} `yaml:"metrics"`
	Projects []projectEntry `yaml:"projects"`
	LogLevel string         `yaml:"log_level"`
}

// loadConfig reads config from a YAML file, then applies environment
// variable overrides and defaults.
func loadConfig(path string) (*config, error) {
	cfg := &config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("TREASURYD_LEDGER_URL"); v != "" {
		cfg.Ledger.URL = v
	}
	if v := os.Getenv("TREASURYD_SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("TREASURYD_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}
	if v := os.Getenv("TREASURYD_FEE_PROJECT"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Fee.Project = id
		}
	}
	if v := os.Getenv("TREASURYD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if cfg.Schedule.RebalanceCron == "" {
		cfg.Schedule.RebalanceCron = "0 0 */6 * * *"
	}
	if cfg.Schedule.CollectCron == "" {
		cfg.Schedule.CollectCron = "0 30 * * * *"
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9090"
	}

	return cfg, nil
}

// validate checks that all required fields are set.
func (c *config) validate() error {
	if c.Ledger.URL == "" {
		return fmt.Errorf("ledger.url is required")
	}
	if c.Fee.Bps > external.MaxReservedPercent {
		return fmt.Errorf("fee.bps must not exceed %d", external.MaxReservedPercent)
	}
	if len(c.Projects) == 0 {
		return fmt.Errorf("at least one project is required")
	}
	for _, p := range c.Projects {
		if p.Pairing != "" && !common.IsHexAddress(p.Pairing) {
			return fmt.Errorf("project %d: pairing %q is not a hex address", p.ID, p.Pairing)
		}
	}
	return nil
}

func (c *config) slogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
