package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"barreplay/internal/config"
	"barreplay/internal/ingest"
	"barreplay/internal/metrics"
	"barreplay/internal/report"
	"barreplay/internal/sim"
	"barreplay/internal/util"
)

type flags struct {
	config        string
	env           string
	data          string
	mode          string
	workers       int
	ingestWorkers int
	policy        string
	lenient       bool
	strategy      string
	cash          float64
	logLevel      string
	console       bool
	metricsAddr   string
}

func main() {
	if err := rootCmd(&flags{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "replay [data.csv]",
		Short:        "Replay OHLCV bars through the signal generator and paper ledger",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, f, args)
			if err != nil {
				return err
			}
			return run(cmd, cfg, f.console)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.config, "config", "c", "", "YAML config file")
	fs.StringVar(&f.env, "env", ".env", "dotenv file applied before flags")
	fs.StringVarP(&f.data, "data", "d", "", "bar file to replay")
	fs.StringVarP(&f.mode, "mode", "m", config.ModeSequential, "replay mode: sequential|parallel")
	fs.IntVarP(&f.workers, "workers", "w", 4, "replay workers in parallel mode")
	fs.IntVar(&f.ingestWorkers, "ingest-workers", 0, "parse workers")
	fs.StringVar(&f.policy, "policy", string(ingest.Chunked), "ingest policy: chunked|queued")
	fs.BoolVar(&f.lenient, "lenient", false, "skip malformed records instead of failing")
	fs.StringVar(&f.strategy, "strategy", "", "decision rule: momentum|breakout|hold")
	fs.Float64Var(&f.cash, "cash", 0, "starting cash")
	fs.StringVar(&f.logLevel, "log-level", "", "trace|debug|info|warn|error")
	fs.BoolVar(&f.console, "console", false, "human readable logs")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

// resolveConfig layers defaults, the YAML file, the environment, and explicitly set flags.
func resolveConfig(cmd *cobra.Command, f *flags, args []string) (*config.Config, error) {
	cfg := config.Default()
	if f.config != "" {
		loaded, err := config.Load(f.config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(f.env); err != nil {
		return nil, err
	}

	set := cmd.Flags().Changed
	if len(args) == 1 {
		cfg.Data = args[0]
	}
	if set("data") {
		cfg.Data = f.data
	}
	if set("mode") {
		cfg.Replay.Mode = f.mode
	}
	if set("workers") {
		cfg.Replay.Workers = f.workers
	}
	if cfg.Replay.Mode == config.ModeParallel && cfg.Replay.Workers == 0 {
		cfg.Replay.Workers = f.workers
	}
	if set("ingest-workers") {
		cfg.Ingest.Workers = f.ingestWorkers
	}
	if set("policy") {
		cfg.Ingest.Policy = f.policy
	}
	if set("lenient") {
		cfg.Ingest.OnError = string(ingest.FailFast)
		if f.lenient {
			cfg.Ingest.OnError = string(ingest.Lenient)
		}
	}
	if set("strategy") {
		cfg.Strategy.Mode = f.strategy
	}
	if set("cash") {
		cfg.Paper.StartingCash = f.cash
	}
	if set("log-level") {
		cfg.App.LogLevel = f.logLevel
	}
	if set("metrics-addr") {
		cfg.App.MetricsAddr = f.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cmd *cobra.Command, cfg *config.Config, console bool) error {
	log := util.NewLogger(cfg.App.LogLevel, cmd.ErrOrStderr())
	if console {
		log = util.NewConsoleLogger(cfg.App.LogLevel, cmd.ErrOrStderr())
	}

	ctx, cancel := ossignal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.App.MetricsAddr != "" {
		srv := metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	out, err := sim.Run(ctx, cfg, log)
	if err != nil {
		var ierr *ingest.IngestionError
		if errors.As(err, &ierr) {
			log.Error().Err(ierr.Err).Str("path", ierr.Path).Int("line", ierr.Line).Msg("ingestion failed")
		} else {
			log.Error().Err(err).Msg("run failed")
		}
		if out == nil || out.Ingest == nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s\n", out.RunID)
	report.Render(cmd.OutOrStdout(), report.Summarize(out.Bars(), out.Ledger, out.Replay))
	return err
}
