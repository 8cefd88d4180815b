package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/cwrk-planet/roulette-service/pkg/logger"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func captureStdOut(fn func()) string {
	orig := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() {
		os.Stdout = orig
	}()

	fn()

	_ = w.Close()
	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	_ = r.Close()
	return buf.String()
}

func TestDetectEnv(t *testing.T) {
	t.Setenv("APP_ENV", "")
	if got := logger.DetectEnv(); got != logger.EnvDev {
		t.Fatalf("default should be dev, got %q", got)
	}

	t.Setenv("APP_ENV", "staging")
	if got := logger.DetectEnv(); got != logger.EnvStage {
		t.Fatalf("expected stage, got %q", got)
	}

	t.Setenv("APP_ENV", "production")
	if got := logger.DetectEnv(); got != logger.EnvProd {
		t.Fatalf("expected prod, got %q", got)
	}
}

func TestInit_DevStd_TextOutput(t *testing.T) {
	out := captureStdOut(func() {
		logger.Init(logger.Config{
			Service: "demo",
			Version: "v0.0.1",
			Env:     logger.EnvDev,
			Backend: logger.BackendStd,
			Level:   slog.LevelDebug,
		})
		slog.Info("round resolved", logger.Room("r1"))
	})

	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected text output in dev/std, got JSON: %s", out)
	}
	for _, want := range []string{"round resolved", "service=demo", "env=dev", "room_id=r1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("%q missing: %s", want, out)
		}
	}
}

func TestInit_ProdZap_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := logger.InitWriter(&buf, logger.Config{
		Service: "demo",
		Env:     logger.EnvProd,
		Backend: logger.BackendZap,
	})
	l.Info("contribution accepted", logger.Player(42))

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "contribution accepted" {
		t.Fatalf("unexpected msg: %v", rec["msg"])
	}
	if rec["service"] != "demo" {
		t.Fatalf("service attr missing: %v", rec)
	}
	if _, ok := rec["ts"]; !ok {
		t.Fatalf("ts missing: %v", rec)
	}
}

func TestAttrsFromCtx_PropagatesTraceIDs(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()
	otel.SetTracerProvider(tp)

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	l := logger.InitWriter(&buf, logger.Config{Service: "demo", Env: logger.EnvProd, Backend: logger.BackendStd})
	l.InfoContext(ctx, "with trace", logger.ArgsFromCtx(ctx)...)

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	if rec["trace_id"] != span.SpanContext().TraceID().String() {
		t.Fatalf("trace_id mismatch: %v", rec["trace_id"])
	}
	if rec["span_id"] != span.SpanContext().SpanID().String() {
		t.Fatalf("span_id mismatch: %v", rec["span_id"])
	}
}

func TestAttrsFromCtx_NoSpan(t *testing.T) {
	if attrs := logger.AttrsFromCtx(context.Background()); attrs != nil {
		t.Fatalf("expected nil attrs, got %v", attrs)
	}
}
