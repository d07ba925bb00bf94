// Package streaming implements a duplex speech-to-text session over a single
// established connection.
//
// A Session owns the connection. One goroutine writes outgoing frames (audio,
// keep-alives, finalize and close signals) in submission order, another reads
// inbound frames and classifies each one into exactly one events.Event.
// Callers compose the three sources they care about, sending audio, sending
// keep-alives on a timer and receiving events, with an ordinary select:
//
//	for {
//		select {
//		case chunk, ok := <-audio:
//			if !ok {
//				_ = session.CloseStream(ctx)
//				audio = nil
//				continue
//			}
//			if err := session.SendAudio(ctx, chunk); err != nil {
//				return err
//			}
//		case <-ticker.C:
//			_ = session.KeepAlive(ctx)
//		case ev, ok := <-session.Events():
//			if !ok {
//				return nil
//			}
//			handle(ev)
//		}
//	}
package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/koscakluka/ema-listen/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultEventBufferSize = 256

const (
	closeReasonPeer        = "peer closed"
	closeReasonRequested   = "close requested"
	closeReasonWriteFailed = "write failed"
	closeReasonReadFailed  = "read failed"
	closeReasonTimeout     = "close timeout"
	closeReasonCaller      = "closed by caller"
)

type Session struct {
	conn    Conn
	options SessionOptions

	out        *outbound
	in         *inbound
	classifier *classifier
	events     chan events.Event

	mu             sync.Mutex
	state          State
	closeRequested bool
	severed        bool
	closeReason    string
	closeTimer     *time.Timer

	abort     chan struct{}
	abortOnce sync.Once
	connOnce  sync.Once
	connErr   error
	done      chan struct{}

	span trace.Span
}

// NewSession takes ownership of an open connection and starts the reader
// and writer goroutines. ctx only parents the session's trace span; the
// session lives until the peer closes the connection or Close is called.
func NewSession(ctx context.Context, conn Conn, opts ...SessionOption) *Session {
	options := SessionOptions{EventBufferSize: defaultEventBufferSize}
	for _, opt := range opts {
		opt(&options)
	}
	if options.EventBufferSize < 0 {
		options.EventBufferSize = 0
	}

	s := &Session{
		conn:       conn,
		options:    options,
		classifier: &classifier{},
		events:     make(chan events.Event, options.EventBufferSize),
		abort:      make(chan struct{}),
		done:       make(chan struct{}),
	}

	_, s.span = tracer.Start(ctx, "stream session")
	s.span.SetAttributes(
		attribute.String("session.request_id", options.RequestID),
		attribute.Int64("session.keep_alive_interval_ms", options.KeepAliveInterval.Milliseconds()),
		attribute.Int64("session.close_timeout_ms", options.CloseTimeout.Milliseconds()),
	)

	s.out = newOutbound(conn, options.KeepAliveInterval, s.writeFailed)
	s.in = &inbound{
		conn:          conn,
		classifier:    s.classifier,
		events:        s.events,
		abort:         s.abort,
		expectedClose: s.isSevered,
	}

	go s.out.run()
	go s.readLoop()

	logger.Debug("stream session opened", "request_id", options.RequestID)
	return s
}

// SendAudio writes one chunk of audio and returns once it is on the wire.
// It fails with ErrClosed unless the session is open, and with a
// *TransportError when the write fails, which also starts closing the
// session. Empty chunks are not sent: an empty binary message would be read
// by the service as the end of the stream.
//
// ctx can only abandon a chunk the writer has not taken yet. Once taken,
// SendAudio waits for the write, so a nil error means the chunk was sent and
// any error means it was not. audio may be reused after SendAudio returns.
func (s *Session) SendAudio(ctx context.Context, audio []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(audio) == 0 {
		return nil
	}
	return s.out.submit(ctx, AudioFrame(audio))
}

// KeepAlive sends a keep-alive control message regardless of how recently
// audio was sent.
func (s *Session) KeepAlive(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.out.submit(ctx, Frame{Kind: FrameKeepAlive})
}

// Finalize asks the service to flush results for all audio sent so far
// without closing the stream.
func (s *Session) Finalize(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.out.submit(ctx, Frame{Kind: FrameFinalize})
}

// Receive returns the next event. It returns io.EOF once the connection is
// closed and every buffered event was received, and keeps returning io.EOF
// afterwards.
func (s *Session) Receive(ctx context.Context) (events.Event, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return nil, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Events exposes the event stream as a channel. It is closed at the end of
// the stream. Receiving from it and calling Receive draw from the same
// stream.
func (s *Session) Events() <-chan events.Event {
	return s.events
}

// CloseStream tells the service that no more audio will follow. The
// connection stays up so the remaining results can arrive; the session is
// closed once the peer closes it, or when the close timeout expires.
// Calling it again is a no-op.
func (s *Session) CloseStream(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateClosed || s.closeRequested {
		s.mu.Unlock()
		return nil
	}
	s.closeRequested = true
	s.beginClosingLocked(closeReasonRequested)
	s.mu.Unlock()

	s.span.AddEvent("close stream requested")
	if err := s.out.submit(ctx, Frame{Kind: FrameCloseStream}); err != nil {
		if errors.Is(err, ErrClosed) {
			return nil
		}
		return fmt.Errorf("failed to send close stream message: %w", err)
	}
	return nil
}

// Close severs the connection without waiting for the peer and releases
// everything the session holds. Events already buffered can still be
// received before io.EOF. It is safe to call at any time and more than once,
// and should be deferred by whoever created the session.
func (s *Session) Close() error {
	s.abortOnce.Do(func() {
		s.mu.Lock()
		if s.state != StateClosed {
			s.severed = true
			s.closeReason = closeReasonCaller
		}
		s.mu.Unlock()

		close(s.abort)
		s.closeConn()
	})

	<-s.done
	if s.connErr != nil {
		return fmt.Errorf("failed to close connection: %w", s.connErr)
	}
	return nil
}

// Done is closed once the session reached StateClosed and released the
// connection.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) RequestID() string {
	return s.options.RequestID
}

func (s *Session) TurnState() TurnState {
	return s.classifier.turnState()
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return ErrClosed
	}
	return nil
}

func (s *Session) isSevered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.severed
}

func (s *Session) beginClosingLocked(reason string) {
	if s.state != StateOpen {
		return
	}
	s.state = StateClosing
	s.closeReason = reason
	if s.options.CloseTimeout > 0 {
		s.closeTimer = time.AfterFunc(s.options.CloseTimeout, s.closeTimedOut)
	}
}

func (s *Session) writeFailed(err error) {
	s.mu.Lock()
	s.beginClosingLocked(closeReasonWriteFailed)
	s.mu.Unlock()

	s.span.RecordError(err)
	logger.Warn("stream write failed", "request_id", s.options.RequestID, "error", err)
}

func (s *Session) closeTimedOut() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.severed = true
	s.closeReason = closeReasonTimeout
	s.mu.Unlock()

	logger.Warn("peer did not close the stream in time, closing connection",
		"request_id", s.options.RequestID,
		"timeout", s.options.CloseTimeout)
	s.closeConn()
}

func (s *Session) closeConn() {
	s.connOnce.Do(func() {
		s.connErr = s.conn.Close()
	})
}

func (s *Session) readLoop() {
	s.finish(s.in.run())
}

// finish runs once, after the reader stopped. It leaves the session closed
// with both goroutines gone and the connection released.
func (s *Session) finish(readErr error) {
	s.mu.Lock()
	s.state = StateClosed
	if s.closeTimer != nil {
		s.closeTimer.Stop()
	}
	switch {
	case readErr != nil:
		s.closeReason = closeReasonReadFailed
	case s.closeReason == "":
		s.closeReason = closeReasonPeer
	}
	reason := s.closeReason
	s.mu.Unlock()

	close(s.out.stop)
	s.closeConn()
	<-s.out.done
	close(s.events)

	if readErr != nil {
		s.span.RecordError(readErr)
		s.span.SetStatus(codes.Error, readErr.Error())
	}
	s.span.SetAttributes(attribute.String("session.close_reason", reason))
	s.span.End()

	logger.Debug("stream session closed", "request_id", s.options.RequestID, "reason", reason)
	close(s.done)
}
