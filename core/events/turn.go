package events

const (
	// KindTurnStarted identifies the start of a conversational turn.
	KindTurnStarted Kind = "turn.started"
	// KindTurnUpdated identifies a revised hypothesis for the current turn.
	KindTurnUpdated Kind = "turn.updated"
	// KindTurnEagerEnded identifies a provisional, low-latency end of turn.
	KindTurnEagerEnded Kind = "turn.eager_ended"
	// KindTurnResumed identifies a turn continuing after an eager end.
	KindTurnResumed Kind = "turn.resumed"
	// KindTurnEnded identifies the authoritative end of a turn.
	KindTurnEnded Kind = "turn.ended"
)

// TurnEventType is the turn transition as named on the wire.
type TurnEventType string

const (
	StartOfTurn    TurnEventType = "StartOfTurn"
	Update         TurnEventType = "Update"
	EagerEndOfTurn TurnEventType = "EagerEndOfTurn"
	TurnResumed    TurnEventType = "TurnResumed"
	EndOfTurn      TurnEventType = "EndOfTurn"
)

// Kind maps the transition to its event kind. Unknown transitions map to an
// empty kind.
func (t TurnEventType) Kind() Kind {
	switch t {
	case StartOfTurn:
		return KindTurnStarted
	case Update:
		return KindTurnUpdated
	case EagerEndOfTurn:
		return KindTurnEagerEnded
	case TurnResumed:
		return KindTurnResumed
	case EndOfTurn:
		return KindTurnEnded
	}
	return ""
}

func (t TurnEventType) Valid() bool { return t.Kind() != "" }

// TurnEvent carries one turn transition together with the service's current
// hypothesis for the turn.
type TurnEvent struct {
	Base
	Type      TurnEventType
	TurnIndex int

	Transcript          string
	Words               []Word
	EndOfTurnConfidence float64

	// AudioWindowStart and AudioWindowEnd bound the audio, in seconds, the
	// hypothesis covers.
	AudioWindowStart float64
	AudioWindowEnd   float64

	// Warning is non-nil when the transition was unexpected for the turn
	// state tracked by the session. The event is still delivered as received.
	Warning error
}

func (t TurnEvent) String() string {
	if t.Transcript == "" {
		return string(t.Type)
	}
	return string(t.Type) + ": " + t.Transcript
}

// IsProvisional reports whether the transcript may still change within the
// same turn.
func (t TurnEvent) IsProvisional() bool { return t.Type != EndOfTurn }

// NewTurnEvent creates a turn event of the given transition type.
func NewTurnEvent(eventType TurnEventType, turnIndex int, transcript string) TurnEvent {
	return TurnEvent{
		Base:       NewBase(eventType.Kind()),
		Type:       eventType,
		TurnIndex:  turnIndex,
		Transcript: transcript,
	}
}
