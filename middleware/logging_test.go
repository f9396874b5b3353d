package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/broady/routerpc"
)

// logLines decodes the JSON log records written to buf.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		lines = append(lines, rec)
	}
	return lines
}

func newJSONLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func TestLoggingInterceptor_Success(t *testing.T) {
	var buf bytes.Buffer
	interceptor := LoggingInterceptor(newJSONLogger(&buf))

	ctx := routerpc.NewContext(context.Background(), "TestService", "TestMethod")

	handler := func(ctx context.Context, req any) (any, error) {
		return "response", nil
	}

	result, err := interceptor(ctx, "request", handler)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if result != "response" {
		t.Errorf("expected response, got %v", result)
	}

	lines := logLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	if lines[0]["msg"] != "request started" || lines[1]["msg"] != "request completed" {
		t.Errorf("unexpected messages %v, %v", lines[0]["msg"], lines[1]["msg"])
	}
	for _, rec := range lines {
		if rec["endpoint"] != "TestService.TestMethod" {
			t.Errorf("expected endpoint in %v", rec)
		}
		if _, ok := rec["route"]; ok {
			t.Error("route must be omitted outside a request")
		}
	}
	if _, ok := lines[1]["duration"]; !ok {
		t.Error("expected duration on completion")
	}
}

func TestLoggingInterceptor_Levels(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel string
		wantCode  string
		wantStat  float64
	}{
		{"client error", routerpc.NewError(routerpc.CodeNotFound, "resource not found"), "WARN", "not_found", 404},
		{"server error", errors.New("disk on fire"), "ERROR", "internal", 500},
		{"explicit status", routerpc.NewError(routerpc.CodeUnavailable, "later").WithStatus(429), "WARN", "unavailable", 429},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			interceptor := LoggingInterceptor(newJSONLogger(&buf))
			ctx := routerpc.NewContext(context.Background(), "TestService", "TestMethod")

			_, err := interceptor(ctx, "request", func(ctx context.Context, req any) (any, error) {
				return nil, tt.err
			})
			if err != tt.err {
				t.Errorf("expected error to pass through, got %v", err)
			}

			lines := logLines(t, &buf)
			last := lines[len(lines)-1]
			if last["msg"] != "request failed" {
				t.Fatalf("expected failure record, got %v", last)
			}
			if last["level"] != tt.wantLevel {
				t.Errorf("expected level %s, got %v", tt.wantLevel, last["level"])
			}
			if last["code"] != tt.wantCode || last["status"] != tt.wantStat {
				t.Errorf("unexpected code/status %v/%v", last["code"], last["status"])
			}
			if !strings.Contains(last["error"].(string), tt.err.Error()) {
				t.Errorf("expected error text, got %v", last["error"])
			}
		})
	}
}

func TestLoggingInterceptor_NilLogger(t *testing.T) {
	// Should not panic with nil logger, should use default
	interceptor := LoggingInterceptor(nil)

	ctx := routerpc.NewContext(context.Background(), "TestService", "TestMethod")

	result, err := interceptor(ctx, "request", func(ctx context.Context, req any) (any, error) {
		return "response", nil
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if result != "response" {
		t.Errorf("expected response, got %v", result)
	}
}

func TestLoggingInterceptor_PropagatesContextAndRequest(t *testing.T) {
	interceptor := LoggingInterceptor(slog.New(slog.DiscardHandler))

	type ctxKey string
	key := ctxKey("test-key")
	baseCtx := context.WithValue(context.Background(), key, "test-value")
	ctx := routerpc.NewContext(baseCtx, "TestService", "TestMethod")

	type testReq struct {
		Key string
	}
	expectedReq := testReq{Key: "value"}
	handler := func(ctx context.Context, req any) (any, error) {
		if ctx.Value(key) != "test-value" {
			t.Error("expected context value to be propagated")
		}
		if req != expectedReq {
			t.Error("expected request to be passed through")
		}
		return "response", nil
	}

	if _, err := interceptor(ctx, expectedReq, handler); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
