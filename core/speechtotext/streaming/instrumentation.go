package streaming

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const scopeName = "github.com/koscakluka/ema-listen/core/speechtotext/streaming"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)

	framesWritten     = int64Counter("speechtotext.stream.frames_written", "Frames written to the connection", "{frame}")
	audioBytesWritten = int64Counter("speechtotext.stream.audio_bytes_written", "Audio bytes written to the connection", "By")
	eventsReceived    = int64Counter("speechtotext.stream.events_received", "Events classified from inbound frames", "{event}")
	protocolErrors    = int64Counter("speechtotext.stream.protocol_errors", "Inbound frames that could not be decoded", "{frame}")
)

func int64Counter(name, description, unit string) metric.Int64Counter {
	counter, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		logger.Warn("failed to create counter", "name", name, "error", err)
		return noop.Int64Counter{}
	}
	return counter
}
