package middleware

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/broady/routerpc"
	"github.com/broady/routerpc/testutil"
)

type telemetry struct {
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
	cfg    TracingConfig
}

func newTelemetry(t *testing.T) *telemetry {
	t.Helper()
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		tp.Shutdown(context.Background())
		mp.Shutdown(context.Background())
	})
	return &telemetry{
		spans:  spans,
		reader: reader,
		cfg: TracingConfig{
			TracerProvider: tp,
			MeterProvider:  mp,
			Propagator:     propagation.TraceContext{},
		},
	}
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

// requestCount sums the rpc.server.requests counter for the given status.
func (tel *telemetry) requestCount(t *testing.T, status string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := tel.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "rpc.server.requests" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value("status"); ok && v.AsString() == status {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestTracingInterceptor_Success(t *testing.T) {
	tel := newTelemetry(t)
	interceptor := TracingInterceptor(tel.cfg)
	ctx := routerpc.NewContext(context.Background(), "PetService", "get_pet")

	var handlerSpan trace.SpanContext
	res, err := interceptor(ctx, "request", func(ctx context.Context, req any) (any, error) {
		handlerSpan = trace.SpanContextFromContext(ctx)
		if c, ok := routerpc.FromContext(ctx); !ok || c.EndpointID() != "PetService.get_pet" {
			t.Error("expected call metadata inside the span context")
		}
		return "response", nil
	})
	if err != nil || res != "response" {
		t.Fatalf("unexpected result %v, %v", res, err)
	}

	ended := tel.spans.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	span := ended[0]
	if span.Name() != "PetService.get_pet" {
		t.Errorf("unexpected span name %q", span.Name())
	}
	if span.SpanKind() != trace.SpanKindServer {
		t.Errorf("expected server span, got %v", span.SpanKind())
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("expected ok status, got %v", span.Status())
	}
	if span.SpanContext().SpanID() != handlerSpan.SpanID() {
		t.Error("handler must run inside the span")
	}
	for key, want := range map[string]string{
		"rpc.system":  "routerpc",
		"rpc.service": "PetService",
		"rpc.method":  "get_pet",
	} {
		if v, ok := attrValue(span.Attributes(), key); !ok || v.AsString() != want {
			t.Errorf("attribute %s = %v, want %s", key, v.Emit(), want)
		}
	}
	if got := tel.requestCount(t, "ok"); got != 1 {
		t.Errorf("expected 1 ok request, got %d", got)
	}
}

func TestTracingInterceptor_Error(t *testing.T) {
	tel := newTelemetry(t)
	interceptor := TracingInterceptor(tel.cfg)
	ctx := routerpc.NewContext(context.Background(), "PetService", "get_pet")

	notFound := routerpc.NewError(routerpc.CodeNotFound, "pet 42 not found")
	_, err := interceptor(ctx, "request", func(ctx context.Context, req any) (any, error) {
		return nil, notFound
	})
	if !errors.Is(err, notFound) {
		t.Fatalf("expected error to pass through, got %v", err)
	}

	span := tel.spans.Ended()[0]
	if span.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", span.Status())
	}
	if v, _ := attrValue(span.Attributes(), "rpc.routerpc.error_code"); v.AsString() != "not_found" {
		t.Errorf("unexpected error code attribute %v", v.Emit())
	}
	if v, _ := attrValue(span.Attributes(), "http.response.status_code"); v.AsInt64() != http.StatusNotFound {
		t.Errorf("unexpected status attribute %v", v.Emit())
	}
	if len(span.Events()) == 0 || span.Events()[0].Name != "exception" {
		t.Error("expected the error to be recorded as an exception event")
	}
	if got := tel.requestCount(t, "error"); got != 1 {
		t.Errorf("expected 1 failed request, got %d", got)
	}
}

func TestTracingInterceptor_DisableMetrics(t *testing.T) {
	tel := newTelemetry(t)
	tel.cfg.DisableMetrics = true
	interceptor := TracingInterceptor(tel.cfg)

	interceptor(routerpc.NewContext(context.Background(), "S", "m"), nil, func(ctx context.Context, req any) (any, error) {
		return nil, nil
	})

	if got := tel.requestCount(t, "ok"); got != 0 {
		t.Errorf("expected no metrics, got %d", got)
	}
	if len(tel.spans.Ended()) != 1 {
		t.Error("tracing must still run")
	}
}

type echo struct{}

type message struct {
	ID int `json:"id"`
}

func (echo) Get(ctx context.Context, req *message) (*message, error) { return req, nil }

func TestTracingInterceptor_HTTPParent(t *testing.T) {
	tel := newTelemetry(t)
	app := routerpc.NewApp().
		WithUnaryInterceptor(TracingInterceptor(tel.cfg)).
		MustRegister(routerpc.NewService[echo]("Echo").
			Method("get", routerpc.GET("./echo/{id}", echo.Get)).
			Provide(echo{}))

	const traceparent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	w := testutil.NewRequest().
		GET("/echo/7").
		WithHeader("traceparent", traceparent).
		WithHeader("User-Agent", "routerpc-test").
		Serve(app.Handler())
	testutil.AssertStatus(t, w, http.StatusOK)

	span := tel.spans.Ended()[0]
	if got := span.Parent().TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("expected remote parent trace, got %s", got)
	}
	if !span.Parent().IsRemote() {
		t.Error("expected a remote parent")
	}
	if v, _ := attrValue(span.Attributes(), "http.route"); v.AsString() != "GET /echo/{id}" {
		t.Errorf("unexpected route attribute %v", v.Emit())
	}
	if v, _ := attrValue(span.Attributes(), "user_agent.original"); v.AsString() != "routerpc-test" {
		t.Errorf("unexpected user agent attribute %v", v.Emit())
	}
}

var errInstrument = errors.New("instrument rejected")

type failingMeterProvider struct{ noop.MeterProvider }

func (failingMeterProvider) Meter(string, ...metric.MeterOption) metric.Meter {
	return failingMeter{}
}

type failingMeter struct{ noop.Meter }

func (failingMeter) Int64Counter(string, ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return nil, errInstrument
}

func (failingMeter) Float64Histogram(string, ...metric.Float64HistogramOption) (metric.Float64Histogram, error) {
	return nil, errInstrument
}

func TestTracingInterceptor_InstrumentErrors(t *testing.T) {
	var handled []error
	prev := otel.GetErrorHandler()
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) { handled = append(handled, err) }))
	t.Cleanup(func() { otel.SetErrorHandler(prev) })

	tel := newTelemetry(t)
	tel.cfg.MeterProvider = failingMeterProvider{}
	interceptor := TracingInterceptor(tel.cfg)

	res, err := interceptor(routerpc.NewContext(context.Background(), "S", "m"), nil, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	if err != nil || res != "ok" {
		t.Fatalf("unexpected result %v, %v", res, err)
	}
	if len(handled) != 2 || !errors.Is(handled[0], errInstrument) {
		t.Errorf("expected both instrument errors to be reported, got %v", handled)
	}
	if len(tel.spans.Ended()) != 1 {
		t.Error("tracing must still run")
	}
}
