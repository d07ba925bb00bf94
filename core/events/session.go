package events

import "fmt"

const (
	// KindMetadata identifies connection or request metadata.
	KindMetadata Kind = "session.metadata"
	// KindServerError identifies an error surfaced in the event stream.
	KindServerError Kind = "session.error"
)

// Metadata describes the request the session belongs to. Fields the service
// did not send are left zero.
type Metadata struct {
	Base
	RequestID  string
	SequenceID int
	Created    string
	Duration   float64
	Channels   int
}

func (m Metadata) String() string { return "Metadata " + m.RequestID }

// NewMetadata creates a metadata event.
func NewMetadata(requestID string) Metadata {
	return Metadata{Base: NewBase(KindMetadata), RequestID: requestID}
}

// ErrorCategory tells where a ServerError originated.
type ErrorCategory string

const (
	// ErrorCategoryServer is an error message sent by the service.
	ErrorCategoryServer ErrorCategory = "server"
	// ErrorCategoryProtocol is an inbound frame that could not be decoded or
	// was not expected. The session stays usable.
	ErrorCategoryProtocol ErrorCategory = "protocol"
	// ErrorCategoryTransport is a connection failure. It is always the last
	// event of the stream.
	ErrorCategoryTransport ErrorCategory = "transport"
)

// ServerError reports a problem in band, so a single receive loop observes
// everything that happened on the connection.
type ServerError struct {
	Base
	Category ErrorCategory
	Code     string
	Message  string

	// Raw is the offending frame for protocol errors.
	Raw []byte
}

func (e ServerError) String() string { return e.Error() }

func (e ServerError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s error: %s", e.Category, e.Message)
	}
	return fmt.Sprintf("%s error %s: %s", e.Category, e.Code, e.Message)
}

// NewServerError creates an error event.
func NewServerError(category ErrorCategory, code, message string) ServerError {
	return ServerError{Base: NewBase(KindServerError), Category: category, Code: code, Message: message}
}
