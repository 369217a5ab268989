// Package server exposes the analysis workflow, the company report and the
// live assistant over HTTP and a websocket UI channel.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onfert/analyst/internal/analysis"
	"github.com/onfert/analyst/internal/errors"
	"github.com/onfert/analyst/internal/live"
	"github.com/onfert/analyst/internal/ml"
	"github.com/onfert/analyst/internal/telemetry"
)

const (
	shutdownTimeout = 5 * time.Second
	analyzePath     = "/api/analyze"
)

// Options configures a Server.
type Options struct {
	Analysis      *analysis.Service
	Live          *live.Session // nil disables the live assistant
	Registry      *prometheus.Registry
	Reporter      *telemetry.Reporter
	StaticDir     string
	MaxImageBytes int64
	Location      *time.Location // report dates; defaults to time.Local
	Logger        *slog.Logger
}

type Server struct {
	echo          *echo.Echo
	analysis      *analysis.Service
	live          *live.Session
	reporter      *telemetry.Reporter
	maxImageBytes int64
	loc           *time.Location
	logger        *slog.Logger

	clients     sync.Map // client id -> *client
	unsubscribe func()

	// base is the parent of work that outlives a request, such as a live
	// session started from the websocket.
	base       context.Context
	cancelBase context.CancelFunc
	wg         sync.WaitGroup
}

// New wires the routes. The server subscribes to the live session so every
// connected client sees its transcript and state.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = ml.MaxImageBytes
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		echo:          echo.New(),
		analysis:      opts.Analysis,
		live:          opts.Live,
		reporter:      opts.Reporter,
		maxImageBytes: opts.MaxImageBytes,
		loc:           opts.Location,
		logger:        logger.With(slog.String("component", "server")),
		base:          base,
		cancelBase:    cancel,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleHTTPError
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.BodyLimit(bodyLimit(opts.MaxImageBytes)))

	s.routes(opts)

	if s.live != nil {
		s.unsubscribe = s.live.Subscribe(s.broadcastLiveEvent)
	}
	return s
}

// bodyLimit leaves one megabyte above the image cap for the soil fields.
func bodyLimit(maxImage int64) string {
	return fmt.Sprintf("%dM", maxImage/(1024*1024)+1)
}

// tooLarge turns the body limit rejection into the image size error.
func (s *Server) tooLarge(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
		return errors.Validation("server.analyze", ml.ImageTooLargeMessage(s.maxImageBytes))
	}
	return err
}

func (s *Server) handleHTTPError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if c.Path() == analyzePath {
		if mapped := s.tooLarge(err); mapped != err {
			if werr := respondError(c, mapped); werr != nil {
				s.logger.Debug("error writing response", slog.Any("error", werr))
			}
			return
		}
	}
	s.echo.DefaultHTTPErrorHandler(err, c)
}

func (s *Server) routes(opts Options) {
	s.echo.GET("/health", s.handleHealth)
	if opts.Registry != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	}
	s.echo.GET("/ws", s.handleWebSocket)

	api := s.echo.Group("/api")
	s.echo.POST(analyzePath, s.handleAnalyze)
	api.POST("/analyses/:id/save", s.handleSave)
	api.GET("/report", s.handleReport)
	api.GET("/report.xlsx", s.handleReportXLSX)
	api.POST("/live/start", s.handleLiveStart)
	api.POST("/live/stop", s.handleLiveStop)
	api.GET("/live/transcript", s.handleLiveTranscript)

	if opts.StaticDir != "" {
		s.echo.Static("/", opts.StaticDir)
	}
}

// Handler returns the HTTP handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", slog.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops the HTTP server, ends the live session and waits for
// background work.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	s.cancelBase()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.live != nil {
		s.live.Stop()
	}
	s.clients.Range(func(_, v any) bool {
		v.(*client).close()
		return true
	})
	s.wg.Wait()
	return err
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}
