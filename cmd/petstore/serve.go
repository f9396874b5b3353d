package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/broady/routerpc"
	"github.com/broady/routerpc/internal/petstore"
	"github.com/broady/routerpc/middleware"
	"github.com/broady/routerpc/openapi"
)

type ServeCmd struct {
	Addr            string        `help:"Listen address." default:":8080" env:"PETSTORE_ADDR"`
	Gzip            bool          `help:"Gzip responses for clients that accept it."`
	Trace           bool          `help:"Print spans and metrics to stdout."`
	MaskErrors      bool          `help:"Hide internal error messages from callers." name:"mask-errors"`
	MaxBody         uint64        `help:"Maximum request body size in bytes; 0 disables the limit." default:"1048576" name:"max-body"`
	ShutdownTimeout time.Duration `help:"How long to wait for in-flight calls on shutdown." default:"10s" name:"shutdown-timeout"`
}

// appConfig is everything buildApp needs to assemble the server.
type appConfig struct {
	logger     *slog.Logger
	gzip       bool
	maskErrors bool
	maxBody    uint64
	tracing    *middleware.TracingConfig
}

// buildApp assembles the pet store app with its reflection service.
func buildApp(cfg appConfig) (*routerpc.App, error) {
	app := routerpc.NewApp().
		WithLogger(cfg.logger).
		WithMaxRequestBodySize(cfg.maxBody).
		WithUnaryInterceptor(middleware.LoggingInterceptor(cfg.logger))
	if cfg.tracing != nil {
		app.WithUnaryInterceptor(middleware.TracingInterceptor(*cfg.tracing))
	}
	if cfg.maskErrors {
		app.WithMaskInternalErrors()
	}
	if cfg.gzip {
		app.WithMiddleware(middleware.Compress)
	}
	if err := app.Register(petstore.NewService(petstore.NewStore())); err != nil {
		return nil, err
	}
	if err := openapi.Register(app, openapi.Options{Title: "Pet Store", Version: Version()}); err != nil {
		return nil, err
	}
	return app, nil
}

// stdoutTelemetry returns providers that print to stdout, and a function
// that flushes and stops them.
func stdoutTelemetry(s *streams) (*middleware.TracingConfig, func(context.Context) error, error) {
	spanExp, err := stdouttrace.New(stdouttrace.WithWriter(s.stdout), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, err
	}
	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(s.stdout), stdoutmetric.WithPrettyPrint())
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(spanExp))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
	return &middleware.TracingConfig{TracerProvider: tp, MeterProvider: mp}, shutdown, nil
}

func (c *ServeCmd) Run(g *Globals, s *streams) error {
	logger := g.logger(s)
	cfg := appConfig{
		logger:     logger,
		gzip:       c.Gzip,
		maskErrors: c.MaskErrors,
		maxBody:    c.MaxBody,
	}
	if c.Trace {
		tracing, shutdown, err := stdoutTelemetry(s)
		if err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Error("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
		cfg.tracing = tracing
	}

	app, err := buildApp(cfg)
	if err != nil {
		return err
	}
	for _, r := range app.Routes() {
		logger.Debug("route", slog.String("route", r))
	}

	ln, err := net.Listen("tcp", c.Addr)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, ln, app.Handler(), logger, c.ShutdownTimeout)
}

// serve runs an HTTP server on ln until ctx is done, then shuts it down.
func serve(ctx context.Context, ln net.Listener, h http.Handler, logger *slog.Logger, timeout time.Duration) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", ln.Addr().String()))
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
