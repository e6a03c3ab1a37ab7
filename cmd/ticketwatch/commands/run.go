package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/andres10976/ticketwatch/internal/database"
	"github.com/andres10976/ticketwatch/internal/handler"
	"github.com/andres10976/ticketwatch/internal/middleware"
	"github.com/andres10976/ticketwatch/internal/model"
	"github.com/andres10976/ticketwatch/internal/repository"
	"github.com/andres10976/ticketwatch/internal/service/browser"
	"github.com/andres10976/ticketwatch/internal/service/dailylog"
	"github.com/andres10976/ticketwatch/internal/service/monitor"
	"github.com/andres10976/ticketwatch/internal/service/notifier"
)

type stateRepository interface {
	Get(ctx context.Context) (*model.MonitorState, error)
	Update(ctx context.Context, state *model.MonitorState) error
	SetRunning(ctx context.Context, running bool) error
}

// history holds the optional Postgres repositories.
type history struct {
	alerts       *repository.AlertRepository
	observations *repository.ObservationRepository
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	var (
		state stateRepository = repository.NewMemoryMonitorRepository()
		hist  *history
	)
	opts := monitor.Options{ErrorBackoff: cfg.ErrorBackoff}

	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()

		if err := database.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		state = repository.NewMonitorRepository(pool)
		hist = &history{
			alerts:       repository.NewAlertRepository(pool),
			observations: repository.NewObservationRepository(pool),
		}
		opts.Alerts = hist.alerts
		opts.Observations = hist.observations
		slog.Info("history store enabled")
	}

	line := notifier.NewLINE(cfg.LineToken, cfg.LineAPIURL)
	if !line.Enabled() {
		slog.Warn("LINE_CHANNEL_ACCESS_TOKEN is not set, notifications are disabled")
	}

	launcher := browser.NewLauncher(browserOptions(cfg))
	open := func(ctx context.Context) (monitor.PageSession, error) {
		s, err := launcher.Open(ctx)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	mon := monitor.New(cfg.TargetURL, open, loadTargets, line, dailylog.NewWriter(cfg.LogDir), state, opts)

	if cfg.StatusAddr != "" {
		srv := &http.Server{
			Addr:         cfg.StatusAddr,
			Handler:      newRouter(state, mon, hist),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			slog.Info("status server starting", "addr", cfg.StatusAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("status server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	slog.Info("Monitoring started",
		"url", cfg.TargetURL,
		"config", cfg.ConfigFile,
		"log_dir", cfg.LogDir,
	)
	logTargets(loadTargets())

	err := mon.Run(ctx)
	slog.Info("Monitoring stopped")
	return err
}

func newRouter(state stateRepository, mon *monitor.Monitor, hist *history) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORSAllowOrigin))
	r.Use(middleware.Logger)
	r.Use(middleware.Recovery)
	r.Use(chiMiddleware.Timeout(10 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		handler.NewMonitorHandler(state, mon, loadTargets).RegisterRoutes(r)
		if hist != nil {
			handler.NewAlertHandler(hist.alerts).RegisterRoutes(r)
			handler.NewObservationHandler(hist.observations).RegisterRoutes(r)
		}
	})
	return r
}
