// Command flakehunt reruns a test command and reports intermittently failing tests.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"genstudio/internal/flaky"
	"genstudio/internal/infra"
)

func main() {
	configPath := flag.String("config", "", "path to flakehunt.yaml (optional)")
	flag.Parse()

	logger := infra.NewLogger(envOr("APP_ENV", "development"))

	path := *configPath
	if path == "" {
		if _, err := os.Stat("flakehunt.yaml"); err == nil {
			path = "flakehunt.yaml"
		}
	}
	cfg, err := flaky.LoadConfig(path)
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := flaky.NewRunner(*cfg, nil, logger)
	if err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		os.Exit(2)
	}
	logger.Info().Str("command", cfg.Command).Int("runs", cfg.Runs).Msg("hunting flaky tests")

	rep, err := runner.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("run failed")
		os.Exit(2)
	}
	if err := rep.WriteFile(cfg.Report); err != nil {
		logger.Error().Err(err).Msg("report not written")
	}
	summarize(logger, rep, cfg.Report)

	if rep.HasFlaky() {
		os.Exit(1)
	}
}

func summarize(logger zerolog.Logger, rep *flaky.Report, path string) {
	for _, t := range rep.Flaky {
		logger.Warn().Str("test", t.Name).Int("failures", t.Failures).Float64("rate", t.Rate).Msg("flaky")
	}
	for _, t := range rep.Broken {
		logger.Error().Str("test", t.Name).Msg("fails every run")
	}
	logger.Info().
		Int("runs", rep.Runs).
		Int("clean_runs", rep.CleanRuns).
		Int("flaky", len(rep.Flaky)).
		Int("broken", len(rep.Broken)).
		Bool("interrupted", rep.Interrupted).
		Str("report", path).
		Msg("done")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
