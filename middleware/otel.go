package middleware

import (
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/broady/routerpc"
)

const instrumentationName = "github.com/broady/routerpc"

// TracingConfig configures OpenTelemetry instrumentation of an app.
type TracingConfig struct {
	// TracerProvider supplies the tracer. Defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider supplies the meter. Defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// Propagator extracts the caller's trace context from request headers.
	// Defaults to otel.GetTextMapPropagator().
	Propagator propagation.TextMapPropagator
	// DisableMetrics turns off the request counter and duration histogram.
	DisableMetrics bool
	// Attributes are added to every span.
	Attributes []attribute.KeyValue
}

// TracingInterceptor starts a server span around each call and records
// the rpc.server.requests counter and rpc.server.duration histogram.
//
// Spans are named by endpoint ID ("Service.method") and carry the
// rpc.system, rpc.service and rpc.method attributes, plus the HTTP route
// when the call came over HTTP.
// Failed calls get an error status and the envelope's code and status.
// Instruments that cannot be created are reported to the otel error
// handler and replaced with no-ops.
func TracingInterceptor(cfg TracingConfig) routerpc.UnaryInterceptor {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}

	tracer := cfg.TracerProvider.Tracer(instrumentationName)
	var (
		requests metric.Int64Counter
		duration metric.Float64Histogram
	)
	if !cfg.DisableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		var err error
		requests, err = meter.Int64Counter("rpc.server.requests",
			metric.WithUnit("{request}"),
			metric.WithDescription("Number of RPC requests"),
		)
		if err != nil {
			otel.Handle(err)
			requests = noop.Int64Counter{}
		}
		duration, err = meter.Float64Histogram("rpc.server.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of RPC requests"),
		)
		if err != nil {
			otel.Handle(err)
			duration = noop.Float64Histogram{}
		}
	}

	return func(ctx *routerpc.Context, req any, handler routerpc.HandlerFunc) (any, error) {
		start := time.Now()

		parent := ctx.Context
		if r := ctx.HTTPRequest(); r != nil {
			parent = cfg.Propagator.Extract(parent, propagation.HeaderCarrier(r.Header))
		}

		attrs := []attribute.KeyValue{
			attribute.String("rpc.system", "routerpc"),
			attribute.String("rpc.service", ctx.Service()),
			attribute.String("rpc.method", ctx.Method()),
		}
		spanAttrs := slices.Concat(attrs, cfg.Attributes)
		if route := ctx.Route(); route != "" {
			spanAttrs = append(spanAttrs, attribute.String("http.route", route))
		}
		if r := ctx.HTTPRequest(); r != nil && r.UserAgent() != "" {
			spanAttrs = append(spanAttrs, attribute.String("user_agent.original", r.UserAgent()))
		}

		spanCtx, span := tracer.Start(parent, ctx.EndpointID(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(spanAttrs...),
		)
		defer span.End()

		res, err := handler(spanCtx, req)

		status := "ok"
		if err != nil {
			status = "error"
			rpcErr := routerpc.DefaultErrorTransformer(err)
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
			span.SetAttributes(
				attribute.String("rpc.routerpc.error_code", string(rpcErr.Code)),
				attribute.Int("http.response.status_code", rpcErr.HTTPStatus()),
			)
		} else {
			span.SetStatus(codes.Ok, "")
		}

		if !cfg.DisableMetrics {
			metricAttrs := metric.WithAttributes(slices.Concat(attrs, []attribute.KeyValue{attribute.String("status", status)})...)
			requests.Add(spanCtx, 1, metricAttrs)
			duration.Record(spanCtx, time.Since(start).Seconds(), metricAttrs)
		}
		return res, err
	}
}
