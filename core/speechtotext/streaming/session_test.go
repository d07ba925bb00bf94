package streaming

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-listen/core/events"
)

const requestID = "0b7c3c38-3f54-4c6b-9f9e-3f2d1a6d8e10"

func receiveEvent(t *testing.T, session *Session) events.Event {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ev, err := session.Receive(ctx)
	if err != nil {
		t.Fatalf("expected event, got error %v", err)
	}
	return ev
}

func expectEOF(t *testing.T, session *Session) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if ev, err := session.Receive(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got event %v and error %v", ev, err)
	}
}

func TestSessionWritesAudioInSubmissionOrder(t *testing.T) {
	conn := newFakeConn()
	session := NewSession(context.Background(), conn)
	defer session.Close()

	ctx := context.Background()
	chunks := [][]byte{
		bytes.Repeat([]byte{1}, 320),
		bytes.Repeat([]byte{2}, 320),
		bytes.Repeat([]byte{3}, 160),
	}
	for i, chunk := range chunks {
		if err := session.SendAudio(ctx, chunk); err != nil {
			t.Fatalf("expected audio to be sent, got %v", err)
		}
		if i < len(chunks)-1 {
			if err := session.KeepAlive(ctx); err != nil {
				t.Fatalf("expected keep-alive to be sent, got %v", err)
			}
		}
	}
	if err := session.CloseStream(ctx); err != nil {
		t.Fatalf("expected close stream to succeed, got %v", err)
	}

	expected := []writtenMessage{
		{messageType: websocket.BinaryMessage, payload: chunks[0]},
		{messageType: websocket.TextMessage, payload: []byte(`{"type":"KeepAlive"}`)},
		{messageType: websocket.BinaryMessage, payload: chunks[1]},
		{messageType: websocket.TextMessage, payload: []byte(`{"type":"KeepAlive"}`)},
		{messageType: websocket.BinaryMessage, payload: chunks[2]},
		{messageType: websocket.TextMessage, payload: []byte(`{"type":"CloseStream"}`)},
	}
	messages := conn.messages()
	if len(messages) != len(expected) {
		t.Fatalf("expected %d frames on the wire, got %d", len(expected), len(messages))
	}
	for i := range expected {
		if messages[i].messageType != expected[i].messageType || !bytes.Equal(messages[i].payload, expected[i].payload) {
			t.Fatalf("expected frame %d to be type %d with %d bytes, got type %d with %d bytes",
				i, expected[i].messageType, len(expected[i].payload), messages[i].messageType, len(messages[i].payload))
		}
	}
}

func TestSendAudioWaitsForAcceptedWrite(t *testing.T) {
	conn := newFakeConn()
	conn.holdWrites()
	session := NewSession(context.Background(), conn)
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	buf := []byte{1, 1, 1, 1}
	result := make(chan error, 1)
	go func() {
		result <- session.SendAudio(ctx, buf)
	}()

	select {
	case <-conn.writing:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected the write to start")
	}
	<-ctx.Done()

	select {
	case err := <-result:
		t.Fatalf("expected send to wait for the write in progress, got %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	conn.releaseWrites()
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("expected the frame to be reported as sent, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected send to return once the write finished")
	}
	copy(buf, []byte{9, 9, 9, 9})

	messages := conn.messages()
	if len(messages) != 1 || !bytes.Equal(messages[0].payload, []byte{1, 1, 1, 1}) {
		t.Fatalf("expected the original bytes on the wire once, got %v", messages)
	}
}

func TestCloseUnblocksHeldWrite(t *testing.T) {
	conn := newFakeConn()
	conn.holdWrites()
	session := NewSession(context.Background(), conn)

	result := make(chan error, 1)
	go func() {
		result <- session.SendAudio(context.Background(), []byte{1, 2})
	}()

	select {
	case <-conn.writing:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected the write to start")
	}
	_ = session.Close()

	select {
	case err := <-result:
		var transportErr *TransportError
		if !errors.As(err, &transportErr) {
			t.Fatalf("expected transport error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected close to unblock the send")
	}
}

func TestSessionSkipsEmptyAudio(t *testing.T) {
	conn := newFakeConn()
	session := NewSession(context.Background(), conn)
	defer session.Close()

	if err := session.SendAudio(context.Background(), nil); err != nil {
		t.Fatalf("expected empty audio to be accepted, got %v", err)
	}
	if messages := conn.messages(); len(messages) != 0 {
		t.Fatalf("expected no frames for empty audio, got %d", len(messages))
	}
}

func TestSessionSendsControlFrames(t *testing.T) {
	conn := newFakeConn()
	session := NewSession(context.Background(), conn)
	defer session.Close()

	ctx := context.Background()
	if err := session.KeepAlive(ctx); err != nil {
		t.Fatalf("expected keep-alive to be sent, got %v", err)
	}
	if err := session.Finalize(ctx); err != nil {
		t.Fatalf("expected finalize to be sent, got %v", err)
	}

	if got := conn.countWrites("KeepAlive"); got != 1 {
		t.Fatalf("expected 1 keep-alive frame, got %d", got)
	}
	if got := conn.countWrites("Finalize"); got != 1 {
		t.Fatalf("expected 1 finalize frame, got %d", got)
	}
	if session.State() != StateOpen {
		t.Fatalf("expected session to stay open, got %s", session.State())
	}
}

func TestSessionRejectsSendsAfterCloseStream(t *testing.T) {
	conn := newFakeConn()
	session := NewSession(context.Background(), conn, WithKeepAliveInterval(10*time.Millisecond))
	defer session.Close()

	ctx := context.Background()
	if err := session.CloseStream(ctx); err != nil {
		t.Fatalf("expected close stream to succeed, got %v", err)
	}
	if session.State() != StateClosing {
		t.Fatalf("expected closing state, got %s", session.State())
	}

	if err := session.SendAudio(ctx, []byte{1, 2}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from send audio, got %v", err)
	}
	if err := session.KeepAlive(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from keep-alive, got %v", err)
	}
	if err := session.Finalize(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from finalize, got %v", err)
	}
	if err := session.CloseStream(ctx); err != nil {
		t.Fatalf("expected repeated close stream to be a no-op, got %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if got := conn.countWrites("CloseStream"); got != 1 {
		t.Fatalf("expected exactly 1 close stream frame, got %d", got)
	}
	messages := conn.messages()
	if last := messages[len(messages)-1]; string(last.payload) != `{"type":"CloseStream"}` {
		t.Fatalf("expected close stream to be the last frame, got %q", last.payload)
	}
}

func TestSessionSendsKeepAliveWhenIdle(t *testing.T) {
	conn := newFakeConn()
	session := NewSession(context.Background(), conn, WithKeepAliveInterval(20*time.Millisecond))
	defer session.Close()

	deadline := time.Now().Add(2 * time.Second)
	for conn.countWrites("KeepAlive") < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected automatic keep-alives, got %d", conn.countWrites("KeepAlive"))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionDeliversEventsThenEOF(t *testing.T) {
	conn := newFakeConn()
	session := NewSession(context.Background(), conn)
	defer session.Close()

	conn.receiveText(`{"type":"Results","start":0,"duration":1.2,"is_final":false,"speech_final":false,"channel":{"alternatives":[{"transcript":"hel","confidence":0.8}]}}`)
	conn.receiveText(`{"type":"Results","start":0,"duration":1.5,"is_final":true,"speech_final":true,"from_finalize":true,"channel":{"alternatives":[{"transcript":"hello","confidence":0.95,"words":[{"word":"hello","punctuated_word":"Hello","start":0.1,"end":0.6,"confidence":0.95}]}]}}`)
	conn.peerClose(websocket.CloseNormalClosure, "")

	interim, ok := receiveEvent(t, session).(events.InterimResult)
	if !ok {
		t.Fatalf("expected interim result first")
	}
	if interim.Transcript != "hel" {
		t.Fatalf("expected interim transcript %q, got %q", "hel", interim.Transcript)
	}

	final, ok := receiveEvent(t, session).(events.FinalResult)
	if !ok {
		t.Fatalf("expected final result second")
	}
	if final.Transcript != "hello" || !final.SpeechFinal || !final.FromFinalize {
		t.Fatalf("expected speech-final hello from finalize, got %+v", final)
	}
	if len(final.Words) != 1 || final.Words[0].PunctuatedWord != "Hello" {
		t.Fatalf("expected punctuated word Hello, got %+v", final.Words)
	}

	expectEOF(t, session)
	expectEOF(t, session)
	waitDone(t, session.Done())

	if session.State() != StateClosed {
		t.Fatalf("expected closed state, got %s", session.State())
	}
	if err := session.SendAudio(context.Background(), []byte{1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after peer close, got %v", err)
	}
}

func TestSessionReportsReadFailureOnce(t *testing.T) {
	conn := newFakeConn()
	session := NewSession(context.Background(), conn)
	defer session.Close()

	conn.failRead(errors.New("connection reset by peer"))

	serverErr, ok := receiveEvent(t, session).(events.ServerError)
	if !ok {
		t.Fatalf("expected server error event")
	}
	if serverErr.Category != events.ErrorCategoryTransport || serverErr.Code != codeReadFailed {
		t.Fatalf("expected transport read failure, got %v", serverErr)
	}

	expectEOF(t, session)
	waitDone(t, session.Done())
	if session.State() != StateClosed {
		t.Fatalf("expected closed state, got %s", session.State())
	}
}

func TestSessionReportsAbnormalClose(t *testing.T) {
	conn := newFakeConn()
	session := NewSession(context.Background(), conn)
	defer session.Close()

	conn.peerClose(websocket.CloseInternalServerErr, "upstream failure")

	serverErr, ok := receiveEvent(t, session).(events.ServerError)
	if !ok {
		t.Fatalf("expected server error event")
	}
	if serverErr.Code != "1011" || serverErr.Message != "upstream failure" {
		t.Fatalf("expected close code 1011 with text, got %v", serverErr)
	}
	expectEOF(t, session)
}

func TestSessionContinuesAfterMalformedFrame(t *testing.T) {
	conn := newFakeConn()
	session := NewSession(context.Background(), conn)
	defer session.Close()

	conn.receiveText(`{"type":"Results",`)
	conn.receiveBinary([]byte{0, 1})
	conn.receiveText(`{"type":"Metadata","request_id":"` + requestID + `","created":"2025-01-01T00:00:00Z","duration":3.5,"channels":1}`)
	conn.peerClose(websocket.CloseNormalClosure, "")

	malformed, ok := receiveEvent(t, session).(events.ServerError)
	if !ok {
		t.Fatalf("expected server error for malformed frame")
	}
	if malformed.Category != events.ErrorCategoryProtocol || malformed.Code != codeMalformedFrame {
		t.Fatalf("expected malformed frame protocol error, got %v", malformed)
	}
	if string(malformed.Raw) != `{"type":"Results",` {
		t.Fatalf("expected raw frame to be kept, got %q", malformed.Raw)
	}

	binary, ok := receiveEvent(t, session).(events.ServerError)
	if !ok || binary.Code != codeUnexpectedBinary {
		t.Fatalf("expected unexpected binary frame error, got %v", binary)
	}

	metadata, ok := receiveEvent(t, session).(events.Metadata)
	if !ok {
		t.Fatalf("expected metadata after malformed frames")
	}
	if metadata.RequestID != requestID || metadata.Channels != 1 {
		t.Fatalf("expected metadata for request %s, got %+v", requestID, metadata)
	}

	expectEOF(t, session)
}

func TestSessionForcesCloseAfterTimeout(t *testing.T) {
	conn := newFakeConn()
	session := NewSession(context.Background(), conn, WithCloseTimeout(20*time.Millisecond))
	defer session.Close()

	if err := session.CloseStream(context.Background()); err != nil {
		t.Fatalf("expected close stream to succeed, got %v", err)
	}

	waitDone(t, session.Done())
	expectEOF(t, session)
	if session.State() != StateClosed {
		t.Fatalf("expected closed state, got %s", session.State())
	}
	if conn.closeCalls.Load() != 1 {
		t.Fatalf("expected connection to be closed once, got %d", conn.closeCalls.Load())
	}
}

func TestSessionWaitsForPeerWithoutTimeout(t *testing.T) {
	conn := newFakeConn()
	session := NewSession(context.Background(), conn)
	defer session.Close()

	if err := session.CloseStream(context.Background()); err != nil {
		t.Fatalf("expected close stream to succeed, got %v", err)
	}

	select {
	case <-session.Done():
		t.Fatalf("expected session to wait for the peer")
	case <-time.After(30 * time.Millisecond):
	}

	conn.receiveText(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"late"}]}}`)
	conn.peerClose(websocket.CloseNormalClosure, "")

	final, ok := receiveEvent(t, session).(events.FinalResult)
	if !ok || final.Transcript != "late" {
		t.Fatalf("expected late final result after close stream, got %v", final)
	}
	expectEOF(t, session)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	conn := newFakeConn()
	session := NewSession(context.Background(), conn, WithKeepAliveInterval(10*time.Millisecond))

	if err := session.Close(); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}
	if err := session.Close(); err != nil {
		t.Fatalf("expected repeated close to succeed, got %v", err)
	}

	waitDone(t, session.Done())
	expectEOF(t, session)
	if session.State() != StateClosed {
		t.Fatalf("expected closed state, got %s", session.State())
	}
	if err := session.SendAudio(context.Background(), []byte{1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
	if err := session.CloseStream(context.Background()); err != nil {
		t.Fatalf("expected close stream after close to be a no-op, got %v", err)
	}

	written := len(conn.messages())
	time.Sleep(30 * time.Millisecond)
	if got := len(conn.messages()); got != written {
		t.Fatalf("expected nothing written after close, got %d new frames", got-written)
	}
}

func TestSessionWriteFailureStartsClosing(t *testing.T) {
	conn := newFakeConn()
	session := NewSession(context.Background(), conn)
	defer session.Close()

	conn.failWrites(errors.New("broken pipe"))

	err := session.SendAudio(context.Background(), []byte{1, 2, 3})
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if transportErr.Op != "write audio" {
		t.Fatalf("expected failed op %q, got %q", "write audio", transportErr.Op)
	}
	if session.State() != StateClosing {
		t.Fatalf("expected closing state after write failure, got %s", session.State())
	}
	if err := session.SendAudio(context.Background(), []byte{4}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after write failure, got %v", err)
	}
}

func TestSessionTracksTurnState(t *testing.T) {
	conn := newFakeConn()
	session := NewSession(context.Background(), conn, WithRequestID(requestID))
	defer session.Close()

	conn.receiveText(`{"type":"Connected","request_id":"` + requestID + `","sequence_id":0}`)
	conn.receiveText(`{"type":"TurnInfo","event":"StartOfTurn","turn_index":0,"transcript":"hel"}`)

	if _, ok := receiveEvent(t, session).(events.Metadata); !ok {
		t.Fatalf("expected connected metadata first")
	}
	if _, ok := receiveEvent(t, session).(events.TurnEvent); !ok {
		t.Fatalf("expected turn event second")
	}

	state := session.TurnState()
	if state.Phase != TurnInProgress || state.Transcript != "hel" {
		t.Fatalf("expected turn in progress with transcript hel, got %+v", state)
	}
	if session.RequestID() != requestID {
		t.Fatalf("expected request id %s, got %s", requestID, session.RequestID())
	}
}

func TestReceiveHonorsContext(t *testing.T) {
	conn := newFakeConn()
	session := NewSession(context.Background(), conn)
	defer session.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := session.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
