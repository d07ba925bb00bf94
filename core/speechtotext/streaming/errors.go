package streaming

import (
	"errors"
	"fmt"

	"github.com/koscakluka/ema-listen/core/events"
)

// ErrClosed is returned by operations attempted after the stream was closed
// or while it is closing.
var ErrClosed = errors.New("streaming session closed")

// TransportError reports an I/O failure on the connection. It is never
// retried; the session moves towards closed once one occurs.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports an inbound frame that could not be turned into an
// event. It reaches the caller as an events.ServerError with the protocol
// category.
type ProtocolError struct {
	Code string
	Err  error
	Raw  []byte
}

const (
	codeMalformedFrame     = "MALFORMED_FRAME"
	codeMissingType        = "MISSING_TYPE"
	codeUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
	codeUnknownTurnEvent   = "UNKNOWN_TURN_EVENT"
	codeInvalidRequestID   = "INVALID_REQUEST_ID"
	codeUnexpectedBinary   = "UNEXPECTED_BINARY_FRAME"
	codeUnexpectedFrame    = "UNEXPECTED_FRAME"
	codeReadFailed         = "READ_FAILED"
)

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error %s: %v", e.Code, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func (e *ProtocolError) event() events.ServerError {
	ev := events.NewServerError(events.ErrorCategoryProtocol, e.Code, e.Err.Error())
	ev.Raw = e.Raw
	return ev
}

// AnomalyWarning describes a turn transition that did not match the tracked
// turn state. It is attached to the forwarded events.TurnEvent and is never
// fatal.
type AnomalyWarning struct {
	Event  events.TurnEventType
	Phase  TurnPhase
	Reason string
}

func (w *AnomalyWarning) Error() string {
	return fmt.Sprintf("unexpected %s while %s: %s", w.Event, w.Phase, w.Reason)
}
