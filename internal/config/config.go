// Package config exposes strongly typed simulation configuration loaded from YAML.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"barreplay/internal/ingest"
	"barreplay/internal/paper"
	"barreplay/internal/strategy"
)

// Replay modes.
const (
	ModeSequential = "sequential"
	ModeParallel   = "parallel"
)

// App captures process-wide runtime settings such as name, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Ingest configures the parallel parse pipeline.
type Ingest struct {
	Workers       int    `yaml:"workers"`
	Policy        string `yaml:"policy"`   // chunked|queued
	OnError       string `yaml:"on_error"` // fail_fast|lenient
	ChunkBytes    int    `yaml:"chunk_bytes"`
	QueueCapacity int    `yaml:"queue_capacity"`
}

// Replay selects sequential or parallel replay.
type Replay struct {
	Mode    string `yaml:"mode"`
	Workers int    `yaml:"workers"`
}

// StrategyParams groups tunable knobs for a decision rule.
type StrategyParams struct {
	Threshold float64 `yaml:"threshold"`
	Band      float64 `yaml:"band"`
	Fraction  float64 `yaml:"fraction"`
}

// Strategy specifies which rule is active along with the parameter bundle.
type Strategy struct {
	Mode   string         `yaml:"mode"`
	Params StrategyParams `yaml:"params"`
}

// Risk caps the fraction a single signal may move.
type Risk struct {
	MaxFraction float64 `yaml:"max_fraction"`
}

// Paper captures the simulated account settings.
type Paper struct {
	StartingCash float64 `yaml:"starting_cash"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Data     string   `yaml:"data"`
	Ingest   Ingest   `yaml:"ingest"`
	Replay   Replay   `yaml:"replay"`
	Strategy Strategy `yaml:"strategy"`
	Risk     Risk     `yaml:"risk"`
	Paper    Paper    `yaml:"paper"`
}

// Default returns a configuration usable without a file.
func Default() *Config {
	return &Config{
		App:      App{Name: "barreplay", LogLevel: "info"},
		Ingest:   Ingest{Workers: runtime.NumCPU(), Policy: string(ingest.Chunked), OnError: string(ingest.FailFast)},
		Replay:   Replay{Mode: ModeSequential},
		Strategy: Strategy{Mode: "momentum"},
		Risk:     Risk{MaxFraction: 1},
		Paper:    Paper{StartingCash: paper.DefaultStartingCash},
	}
}

// Load reads a YAML file from disk on top of Default.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	config := Default()
	if err := yaml.NewDecoder(file).Decode(config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Environment overrides, read after an optional .env file.
const (
	EnvLogLevel       = "BARREPLAY_LOG_LEVEL"
	EnvData           = "BARREPLAY_DATA"
	EnvIngestWorkers  = "BARREPLAY_INGEST_WORKERS"
	EnvIngestOnError  = "BARREPLAY_INGEST_ON_ERROR"
	EnvReplayMode     = "BARREPLAY_REPLAY_MODE"
	EnvReplayWorkers  = "BARREPLAY_REPLAY_WORKERS"
	EnvStartingCash   = "BARREPLAY_STARTING_CASH"
	EnvMetricsAddress = "BARREPLAY_METRICS_ADDR"
)

// ApplyEnv loads .env files (best-effort) and applies BARREPLAY_* overrides.
func (c *Config) ApplyEnv(files ...string) error {
	_ = godotenv.Load(files...) // best-effort

	if v := os.Getenv(EnvLogLevel); v != "" {
		c.App.LogLevel = v
	}
	if v := os.Getenv(EnvMetricsAddress); v != "" {
		c.App.MetricsAddr = v
	}
	if v := os.Getenv(EnvData); v != "" {
		c.Data = v
	}
	if v := os.Getenv(EnvIngestOnError); v != "" {
		c.Ingest.OnError = v
	}
	if v := os.Getenv(EnvReplayMode); v != "" {
		c.Replay.Mode = v
	}
	if err := envInt(EnvIngestWorkers, &c.Ingest.Workers); err != nil {
		return err
	}
	if err := envInt(EnvReplayWorkers, &c.Replay.Workers); err != nil {
		return err
	}
	if v := os.Getenv(EnvStartingCash); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvStartingCash, err)
		}
		c.Paper.StartingCash = f
	}
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

// Validate checks that the configuration describes a runnable simulation.
func (c *Config) Validate() error {
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("invalid ingest config: workers must be > 0")
	}
	if err := c.IngestConfig().WithDefaults().Validate(); err != nil {
		return err
	}
	switch strings.ToLower(c.Replay.Mode) {
	case "", ModeSequential:
	case ModeParallel:
		if c.Replay.Workers <= 0 {
			return fmt.Errorf("invalid replay config: parallel mode needs workers > 0")
		}
	default:
		return fmt.Errorf("invalid replay config: unknown mode %q", c.Replay.Mode)
	}
	if !strategy.Known(c.Strategy.Mode) {
		return fmt.Errorf("invalid strategy config: unknown mode %q", c.Strategy.Mode)
	}
	if c.Risk.MaxFraction < 0 || c.Risk.MaxFraction > 1 {
		return fmt.Errorf("invalid risk config: max_fraction must be within [0,1]")
	}
	if c.Paper.StartingCash < 0 {
		return fmt.Errorf("invalid paper config: starting_cash must be >= 0")
	}
	return nil
}

// IngestConfig maps the YAML section onto the pipeline config.
func (c *Config) IngestConfig() ingest.Config {
	return ingest.Config{
		Workers:       c.Ingest.Workers,
		Policy:        ingest.Policy(strings.ToLower(c.Ingest.Policy)),
		OnError:       ingest.ErrorPolicy(strings.ToLower(c.Ingest.OnError)),
		ChunkBytes:    c.Ingest.ChunkBytes,
		QueueCapacity: c.Ingest.QueueCapacity,
	}
}

// StrategyParams maps the YAML section onto decider parameters.
func (c *Config) StrategyParams() strategy.Params {
	return strategy.Params{
		Threshold: c.Strategy.Params.Threshold,
		Band:      c.Strategy.Params.Band,
		Fraction:  c.Strategy.Params.Fraction,
	}
}
