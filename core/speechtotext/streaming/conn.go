package streaming

// Conn is an established, ordered, message-framed duplex connection.
// *websocket.Conn from gorilla/websocket satisfies it.
//
// A Session calls ReadMessage from one goroutine and WriteMessage from
// another, never concurrently with themselves. Close may be called at any
// time and must unblock a pending ReadMessage. ReadMessage reports a clean
// peer close either as io.EOF or as a *websocket.CloseError with the normal
// closure code.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// State is the lifecycle state of a Session.
type State int32

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
