package streaming

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type messageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

type outboundRequest struct {
	frame  Frame
	result chan error
}

// outbound is the only writer on the connection. Frames are handed over one
// at a time and the caller waits until its frame is on the wire, so the
// wire order is the submission order and callers are paced by the transport.
type outbound struct {
	conn      messageWriter
	requests  chan outboundRequest
	stop      chan struct{}
	done      chan struct{}
	keepAlive *keepAliveScheduler

	// onFailure is called from the writer goroutine on the first transport
	// error.
	onFailure func(error)

	// failed is only accessed by the writer goroutine.
	failed error
}

func newOutbound(conn messageWriter, keepAliveInterval time.Duration, onFailure func(error)) *outbound {
	return &outbound{
		conn:      conn,
		requests:  make(chan outboundRequest),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		keepAlive: newKeepAliveScheduler(keepAliveInterval, time.Now()),
		onFailure: onFailure,
	}
}

// submit blocks until the writer has attempted the frame. Once the writer
// has exited, because the close frame went out or the session closed,
// submit returns ErrClosed. ctx only bounds the wait for the writer to take
// the frame: after that the frame is on its way and submit waits for the
// write result, so an error always means nothing was sent and the caller
// may reuse its buffer as soon as submit returns.
func (o *outbound) submit(ctx context.Context, frame Frame) error {
	req := outboundRequest{frame: frame, result: make(chan error, 1)}
	select {
	case o.requests <- req:
	case <-o.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// A stuck write is unblocked by Close or the close timeout, both of
	// which close the connection.
	return <-req.result
}

func (o *outbound) run() {
	defer close(o.done)
	defer o.keepAlive.stop()

	for {
		select {
		case <-o.stop:
			return

		case req := <-o.requests:
			req.result <- o.handle(req.frame)
			if req.frame.Kind == FrameCloseStream {
				return
			}

		case now := <-o.keepAlive.C():
			if o.failed != nil {
				continue
			}
			if !o.keepAlive.due(now) {
				o.keepAlive.postpone(now)
				continue
			}
			if err := o.write(Frame{Kind: FrameKeepAlive}); err != nil {
				logger.Warn("failed to send automatic keep-alive", "error", err)
			}
		}
	}
}

func (o *outbound) handle(frame Frame) error {
	// After a transport failure only a last close attempt is made.
	if o.failed != nil && frame.Kind != FrameCloseStream {
		return o.failed
	}
	return o.write(frame)
}

func (o *outbound) write(frame Frame) error {
	messageType, payload, err := encodeFrame(frame)
	if err != nil {
		return err
	}

	if err := o.conn.WriteMessage(messageType, payload); err != nil {
		transportErr := &TransportError{Op: "write " + frame.Kind.String(), Err: err}
		if o.failed == nil {
			o.failed = transportErr
			if o.onFailure != nil {
				o.onFailure(transportErr)
			}
		}
		return transportErr
	}

	o.keepAlive.touch(time.Now())

	ctx := context.Background()
	framesWritten.Add(ctx, 1, metric.WithAttributes(attribute.String("frame.kind", frame.Kind.String())))
	if frame.Kind == FrameAudio {
		audioBytesWritten.Add(ctx, int64(len(payload)))
	}
	return nil
}
