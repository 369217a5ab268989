package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/onfert/analyst/internal/analysis"
	"github.com/onfert/analyst/internal/audio"
	"github.com/onfert/analyst/internal/config"
	"github.com/onfert/analyst/internal/database"
	"github.com/onfert/analyst/internal/live"
	"github.com/onfert/analyst/internal/metrics"
	"github.com/onfert/analyst/internal/ml"
	"github.com/onfert/analyst/internal/notify"
	"github.com/onfert/analyst/internal/telemetry"
)

// app carries what every subcommand needs after flag parsing.
type app struct {
	configPath string
	debug      bool

	cfg    *config.Config
	logger *slog.Logger
}

func rootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "onfert-analyst",
		Short:         "ON FERT soil analysis and live agronomy assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", config.GetConfigPath(), "path to configuration file")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		serveCommand(a),
		analyzeCommand(a),
		liveCommand(a),
		devicesCommand(a),
	)
	return cmd
}

func (a *app) init() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if a.debug {
		cfg.Debug = true
	}
	a.cfg = cfg
	a.logger = newLogger(os.Stderr, cfg.Debug)
	slog.SetDefault(a.logger)
	if cfg.Debug {
		a.logger.Debug("debug logging enabled")
	}
	return nil
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// newAnalysisService builds the analysis workflow on an in-memory store.
// The returned cleanup releases the recommender, store and publisher.
func (a *app) newAnalysisService(ctx context.Context, m *metrics.AnalysisMetrics) (*analysis.Service, func(), error) {
	rec, err := ml.NewRecommender(ctx, a.cfg.ML, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create recommender: %w", err)
	}
	store, err := database.NewSQLiteDB(database.MemoryDSN, a.logger)
	if err != nil {
		closeQuietly(rec)
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	publisher, err := notify.New(ctx, a.cfg.MQTT, a.logger)
	if err != nil {
		a.logger.Warn("save notifications disabled", slog.Any("error", err))
		publisher = notify.Noop{}
	}

	svc := analysis.NewService(rec, store, analysis.Options{
		MaxImageBytes: a.cfg.ML.MaxImageBytes,
		Publisher:     publisher,
		Metrics:       m,
		Logger:        a.logger,
	})
	cleanup := func() {
		closeQuietly(publisher)
		closeQuietly(store)
		closeQuietly(rec)
	}
	return svc, cleanup, nil
}

// newLiveSession wires the websocket transport and the audio devices.
func (a *app) newLiveSession(devices audio.Devices, m *metrics.LiveMetrics, reporter *telemetry.Reporter, dumpDir string) *live.Session {
	lc := a.cfg.Live
	if dumpDir == "" {
		dumpDir = lc.DumpDir
	}
	return live.NewSession(live.Options{
		Dialer: &live.WSDialer{
			Endpoint: lc.Endpoint,
			APIKey:   a.cfg.ML.APIKey,
			Logger:   a.logger,
		},
		Devices:          devices,
		Setup:            live.SetupConfig{Model: lc.Model, SystemPrompt: lc.SystemPrompt},
		InputSampleRate:  lc.InputSampleRate,
		OutputSampleRate: lc.OutputSampleRate,
		BlockSize:        lc.BlockSize,
		BufferBlocks:     lc.BufferBlocks,
		DumpDir:          dumpDir,
		Logger:           a.logger,
		Metrics:          m,
		ReportError:      reporter.ReportFunc("live"),
	})
}

func (a *app) newReporter() *telemetry.Reporter {
	reporter, err := telemetry.New(a.cfg.Sentry, "onfert-analyst@"+version, a.logger)
	if err != nil {
		a.logger.Warn("error reporting disabled", slog.Any("error", err))
		reporter, _ = telemetry.New(config.SentryConfig{}, "", a.logger)
	}
	return reporter
}

func closeQuietly(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}
