package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/multierr"

	"github.com/Ramsey-B/fern/internal/handlers"
	"github.com/Ramsey-B/fern/pkg/middleware"
)

// Router builds the echo server: probes, metrics and the versioned API.
func (a *App) Router(ctx context.Context) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.Logger)

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(a.Config.AppName))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.Config.AllowOrigins,
		AllowMethods: a.Config.AllowMethods,
	}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.Logger))

	a.Health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	if a.Config.AuthEnabled {
		verifier, err := middleware.NewVerifier(ctx, a.Config.AuthIssuerURL, a.Config.AuthClientID)
		if err != nil {
			return nil, err
		}
		api.Use(middleware.Authentication(a.Logger, verifier))
	}

	handlers.NewIntegrationHandler(a.Integrations, a.Runs, a.Orchestrator, a.Publisher, a.Logger).RegisterRoutes(api)
	return e, nil
}

// Serve runs the API, the scheduler and the queue worker until ctx is cancelled, then drains them.
func (a *App) Serve(ctx context.Context) error {
	e, err := a.Router(ctx)
	if err != nil {
		return err
	}

	// In-flight passes keep running through shutdown; Stop waits for them.
	background := context.WithoutCancel(ctx)
	if a.Config.WorkerEnabled {
		if err := a.Processor.Start(background); err != nil {
			return err
		}
	}
	if a.Config.SchedulerEnabled {
		if err := a.Scheduler.Start(background); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Port),
		ReadTimeout:       time.Duration(a.Config.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(a.Config.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(a.Config.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(a.Config.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    a.Config.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.Logger.Infof("Listening on %s", server.Addr)
		if err := e.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	a.Health.SetReady(true)

	select {
	case <-ctx.Done():
		a.Logger.Info("Shutting down")
	case err := <-serverErr:
		if err != nil {
			a.Logger.WithError(err).Error("HTTP server failed")
		}
	}
	a.Health.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(background, a.Config.ShutdownTimeout)
	defer cancel()

	return multierr.Combine(
		e.Shutdown(shutdownCtx),
		a.Scheduler.Stop(shutdownCtx),
		a.Processor.Stop(shutdownCtx),
	)
}
