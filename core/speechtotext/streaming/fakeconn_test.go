package streaming

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type writtenMessage struct {
	messageType int
	payload     []byte
}

type readResult struct {
	messageType int
	payload     []byte
	err         error
}

// fakeConn is an in-memory Conn. Reads are served from a queue filled by the
// test; Close unblocks a pending read the way closing a network connection
// does.
type fakeConn struct {
	mu       sync.Mutex
	writes   []writtenMessage
	writeErr error

	reads      chan readResult
	closed     chan struct{}
	closeOnce  sync.Once
	closeCalls atomic.Int32

	// gate, when set, holds every write until it is closed. writing is
	// signalled as a write starts waiting.
	gate    chan struct{}
	writing chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:  make(chan readResult, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case r := <-c.reads:
		return r.messageType, r.payload, r.err
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	if c.gate != nil {
		select {
		case c.writing <- struct{}{}:
		default:
		}
		select {
		case <-c.gate:
		case <-c.closed:
			return net.ErrClosed
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closed:
		return net.ErrClosed
	default:
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, writtenMessage{messageType: messageType, payload: append([]byte(nil), data...)})
	return nil
}

func (c *fakeConn) Close() error {
	c.closeCalls.Add(1)
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// holdWrites must be called before the session is created.
func (c *fakeConn) holdWrites() {
	c.gate = make(chan struct{})
	c.writing = make(chan struct{}, 1)
}

func (c *fakeConn) releaseWrites() {
	close(c.gate)
}

func (c *fakeConn) messages() []writtenMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]writtenMessage(nil), c.writes...)
}

func (c *fakeConn) countWrites(kind string) int {
	count := 0
	for _, message := range c.messages() {
		if message.messageType == websocket.TextMessage && string(message.payload) == `{"type":"`+kind+`"}` {
			count++
		}
	}
	return count
}

func (c *fakeConn) receiveText(payload string) {
	c.reads <- readResult{messageType: websocket.TextMessage, payload: []byte(payload)}
}

func (c *fakeConn) receiveBinary(payload []byte) {
	c.reads <- readResult{messageType: websocket.BinaryMessage, payload: payload}
}

func (c *fakeConn) peerClose(code int, text string) {
	c.reads <- readResult{err: &websocket.CloseError{Code: code, Text: text}}
}

func (c *fakeConn) failRead(err error) {
	c.reads <- readResult{err: err}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected session to close")
	}
}
