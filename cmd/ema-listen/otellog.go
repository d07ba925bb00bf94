package main

import (
	"context"
	"log/slog"
	"path"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"
)

// slogLoggerProvider hands OpenTelemetry log records to a slog handler, so
// the library packages, which log through otelslog, show up on the console.
type slogLoggerProvider struct {
	embedded.LoggerProvider
	handler slog.Handler
}

func newSlogLoggerProvider(handler slog.Handler) *slogLoggerProvider {
	return &slogLoggerProvider{handler: handler}
}

func (p *slogLoggerProvider) Logger(name string, _ ...otellog.LoggerOption) otellog.Logger {
	handler := p.handler
	if name != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("scope", path.Base(name))})
	}
	return &slogLogger{handler: handler}
}

type slogLogger struct {
	embedded.Logger
	handler slog.Handler
}

// otelslog maps slog.LevelInfo to SeverityInfo; this undoes it.
func slogLevel(severity otellog.Severity) slog.Level {
	return slog.Level(severity - otellog.SeverityInfo)
}

func (l *slogLogger) Enabled(ctx context.Context, param otellog.EnabledParameters) bool {
	return l.handler.Enabled(ctx, slogLevel(param.Severity))
}

func (l *slogLogger) Emit(ctx context.Context, record otellog.Record) {
	timestamp := record.Timestamp()
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	r := slog.NewRecord(timestamp, slogLevel(record.Severity()), record.Body().String(), 0)
	record.WalkAttributes(func(kv otellog.KeyValue) bool {
		r.AddAttrs(slogAttr(kv))
		return true
	})
	_ = l.handler.Handle(ctx, r)
}

func slogAttr(kv otellog.KeyValue) slog.Attr {
	switch kv.Value.Kind() {
	case otellog.KindBool:
		return slog.Bool(kv.Key, kv.Value.AsBool())
	case otellog.KindInt64:
		return slog.Int64(kv.Key, kv.Value.AsInt64())
	case otellog.KindFloat64:
		return slog.Float64(kv.Key, kv.Value.AsFloat64())
	default:
		return slog.String(kv.Key, kv.Value.String())
	}
}
