package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/onfert/analyst/internal/audio"
	"github.com/onfert/analyst/internal/live"
	"github.com/onfert/analyst/internal/metrics"
	"github.com/onfert/analyst/internal/server"
)

func serveCommand(a *app) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web application",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				a.cfg.Server.Port = port
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			ctx := cmd.Context()

			m, err := metrics.NewMetrics()
			if err != nil {
				return err
			}
			reporter := a.newReporter()
			defer reporter.Flush()

			svc, cleanup, err := a.newAnalysisService(ctx, m.Analysis)
			if err != nil {
				return err
			}
			defer cleanup()

			var session *live.Session
			if a.cfg.Live.Enabled {
				backend, err := audio.NewBackend(a.logger)
				if err != nil {
					a.logger.Warn("live assistant disabled: no audio backend", slog.Any("error", err))
				} else {
					defer backend.Close()
					session = a.newLiveSession(backend, m.Live, reporter, "")
				}
			}

			srv := server.New(server.Options{
				Analysis:      svc,
				Live:          session,
				Registry:      m.Registry(),
				Reporter:      reporter,
				StaticDir:     a.cfg.Server.StaticDir,
				MaxImageBytes: a.cfg.ML.MaxImageBytes,
				Logger:        a.logger,
			})
			return srv.Start(ctx, ":"+a.cfg.Server.Port)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "override the configured port")
	return cmd
}
