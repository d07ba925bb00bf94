package streaming

import (
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-listen/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type messageReader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

// inbound is the only reader on the connection. Every frame becomes exactly
// one event; the events channel is closed by the session once the loop has
// ended.
type inbound struct {
	conn       messageReader
	classifier *classifier
	events     chan events.Event
	abort      <-chan struct{}

	// expectedClose reports whether the session itself severed the
	// connection, in which case the read error is not reported.
	expectedClose func() bool
}

// run reads until the connection ends. It returns the transport error that
// ended the stream, or nil for a clean close.
func (in *inbound) run() error {
	for {
		messageType, payload, err := in.conn.ReadMessage()
		if err != nil {
			ev, failure := in.readFailure(err)
			if ev != nil {
				in.deliver(*ev)
			}
			return failure
		}

		if !in.deliver(in.handle(messageType, payload)) {
			return nil
		}
	}
}

func (in *inbound) handle(messageType int, payload []byte) events.Event {
	message, err := decodeMessage(messageType, payload)
	if err != nil {
		var protocolErr *ProtocolError
		if !errors.As(err, &protocolErr) {
			protocolErr = &ProtocolError{Code: codeMalformedFrame, Err: err, Raw: payload}
		}
		logger.Warn("failed to decode inbound frame", "code", protocolErr.Code, "error", protocolErr.Err)
		protocolErrors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("error.code", protocolErr.Code)))
		return protocolErr.event()
	}
	return in.classifier.classify(message)
}

// readFailure maps the error that ended the read loop to the final event, if
// one should be reported.
func (in *inbound) readFailure(err error) (*events.ServerError, error) {
	if in.expectedClose() {
		return nil, nil
	}
	if errors.Is(err, io.EOF) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
		return nil, nil
	}

	transportErr := &TransportError{Op: "read", Err: err}
	var ev events.ServerError
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		ev = events.NewServerError(events.ErrorCategoryTransport, strconv.Itoa(closeErr.Code), closeErr.Text)
	} else {
		ev = events.NewServerError(events.ErrorCategoryTransport, codeReadFailed, err.Error())
	}
	return &ev, transportErr
}

func (in *inbound) deliver(ev events.Event) bool {
	select {
	case in.events <- ev:
		eventsReceived.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event.kind", string(ev.Kind()))))
		return true
	case <-in.abort:
		return false
	}
}
