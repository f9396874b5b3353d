package middleware

import (
	"log/slog"
	"time"

	"github.com/broady/routerpc"
)

// LoggingInterceptor creates an interceptor that logs calls using slog.
// Each call logs once when it starts and once when it ends. Failures the
// caller caused (4xx) are logged at Warn, the rest at Error.
func LoggingInterceptor(logger *slog.Logger) routerpc.UnaryInterceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx *routerpc.Context, req any, handler routerpc.HandlerFunc) (any, error) {
		start := time.Now()
		attrs := []any{slog.String("endpoint", ctx.EndpointID())}
		if ctx.Route() != "" {
			attrs = append(attrs, slog.String("route", ctx.Route()))
		}

		logger.InfoContext(ctx, "request started", attrs...)

		res, err := handler(ctx, req)
		attrs = append(attrs, slog.Duration("duration", time.Since(start)))

		if err == nil {
			logger.InfoContext(ctx, "request completed", attrs...)
			return res, nil
		}

		rpcErr := routerpc.DefaultErrorTransformer(err)
		status := rpcErr.HTTPStatus()
		attrs = append(attrs,
			slog.String("code", string(rpcErr.Code)),
			slog.Int("status", status),
			slog.Any("error", err))
		level := slog.LevelError
		if status < 500 {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "request failed", attrs...)
		return res, err
	}
}
