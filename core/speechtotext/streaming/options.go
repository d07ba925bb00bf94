package streaming

import "time"

type SessionOptions struct {
	// KeepAliveInterval is how long the connection may stay without any
	// written frame before a keep-alive is injected. Zero disables automatic
	// keep-alives; KeepAlive can still be called explicitly.
	KeepAliveInterval time.Duration

	// CloseTimeout bounds how long the session waits for the peer to close
	// the connection after CloseStream or a write failure. Zero waits until
	// Close is called.
	CloseTimeout time.Duration

	// EventBufferSize is the number of classified events held before the
	// reader stops reading from the connection.
	EventBufferSize int

	// RequestID identifies the request on the service side, if known when
	// the session is created.
	RequestID string
}

type SessionOption func(*SessionOptions)

func WithKeepAliveInterval(interval time.Duration) SessionOption {
	return func(o *SessionOptions) {
		o.KeepAliveInterval = interval
	}
}

func WithCloseTimeout(timeout time.Duration) SessionOption {
	return func(o *SessionOptions) {
		o.CloseTimeout = timeout
	}
}

func WithEventBufferSize(size int) SessionOption {
	return func(o *SessionOptions) {
		o.EventBufferSize = size
	}
}

func WithRequestID(requestID string) SessionOption {
	return func(o *SessionOptions) {
		o.RequestID = requestID
	}
}
