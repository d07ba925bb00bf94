package streaming

import (
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/jinzhu/copier"
	"github.com/koscakluka/ema-listen/core/events"
)

// TurnPhase is whether a conversational turn is in progress.
type TurnPhase int

const (
	TurnIdle TurnPhase = iota
	TurnInProgress
)

func (p TurnPhase) String() string {
	if p == TurnInProgress {
		return "in turn"
	}
	return "idle"
}

// TurnState is the classifier's view of the current conversational turn.
type TurnState struct {
	Phase     TurnPhase
	TurnIndex int
	// Transcript is the latest hypothesis for the turn in progress, or the
	// final transcript of the last ended turn when idle.
	Transcript string
	// EagerEndPending is set between an EagerEndOfTurn and either the
	// TurnResumed that retracts it or the EndOfTurn that confirms it.
	EagerEndPending bool
}

// classifier turns decoded server messages into events. Classic results
// pass through independently of the turn state, so either connection mode
// can be served without knowing which one is active.
type classifier struct {
	mu    sync.Mutex
	state TurnState
}

func (c *classifier) turnState() TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *classifier) classify(message any) events.Event {
	switch m := message.(type) {
	case *resultsMessage:
		return resultEvent(m)
	case *api.UtteranceEndResponse:
		return events.NewUtteranceEnd(float64(m.LastWordEnd))
	case *api.SpeechStartedResponse:
		return events.NewSpeechStarted(float64(m.Timestamp))
	case *api.MetadataResponse:
		ev := events.NewMetadata(m.RequestID)
		ev.Created = m.Created
		ev.Duration = float64(m.Duration)
		ev.Channels = int(m.Channels)
		return ev
	case *connectedMessage:
		ev := events.NewMetadata(m.RequestID)
		ev.SequenceID = m.SequenceID
		return ev
	case *turnInfoMessage:
		return c.turnEvent(m)
	case *errorMessage:
		c.mu.Lock()
		c.state.Phase = TurnIdle
		c.state.EagerEndPending = false
		c.mu.Unlock()
		return events.NewServerError(events.ErrorCategoryServer, m.code(), m.text())
	}

	// decodeMessage only returns the types above.
	return events.NewServerError(events.ErrorCategoryProtocol, codeUnknownMessageType, "unclassified message")
}

func resultEvent(m *resultsMessage) events.Event {
	var (
		transcript string
		confidence float64
		words      []events.Word
	)
	if len(m.Channel.Alternatives) > 0 {
		alternative := m.Channel.Alternatives[0]
		transcript = alternative.Transcript
		confidence = float64(alternative.Confidence)
		words = copyWords(alternative.Words)
	}

	if !m.IsFinal {
		ev := events.NewInterimResult(transcript, words, confidence)
		ev.Start = float64(m.Start)
		ev.Duration = float64(m.Duration)
		return ev
	}

	ev := events.NewFinalResult(transcript, words, confidence)
	ev.Start = float64(m.Start)
	ev.Duration = float64(m.Duration)
	ev.SpeechFinal = m.SpeechFinal
	ev.FromFinalize = m.FromFinalize
	return ev
}

func (c *classifier) turnEvent(m *turnInfoMessage) events.TurnEvent {
	ev := events.NewTurnEvent(m.Event, m.TurnIndex, m.Transcript)
	ev.Words = copyWords(m.Words)
	ev.EndOfTurnConfidence = m.EndOfTurnConfidence
	ev.AudioWindowStart = m.AudioWindowStart
	ev.AudioWindowEnd = m.AudioWindowEnd

	if warning := c.transition(m); warning != nil {
		logger.Warn("unexpected turn transition",
			"event", m.Event,
			"turn_index", m.TurnIndex,
			"reason", warning.Reason)
		ev.Warning = warning
	}
	return ev
}

// transition advances the turn state machine. It never refuses an event;
// transitions that do not fit the current state are applied as well as
// possible and reported through the returned warning.
func (c *classifier) transition(m *turnInfoMessage) *AnomalyWarning {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.state
	anomaly := func(reason string) *AnomalyWarning {
		return &AnomalyWarning{Event: m.Event, Phase: previous.Phase, Reason: reason}
	}

	var warning *AnomalyWarning
	switch m.Event {
	case events.StartOfTurn:
		if previous.Phase == TurnInProgress {
			warning = anomaly("turn started before the previous turn ended")
		}
		c.state = TurnState{Phase: TurnInProgress, TurnIndex: m.TurnIndex, Transcript: m.Transcript}
		return warning

	case events.EndOfTurn:
		if previous.Phase == TurnIdle {
			warning = anomaly("no turn in progress")
		}
		c.state = TurnState{Phase: TurnIdle, TurnIndex: m.TurnIndex, Transcript: m.Transcript}
		return warning
	}

	if previous.Phase == TurnIdle {
		warning = anomaly("no turn in progress")
	}
	c.state.Phase = TurnInProgress
	c.state.TurnIndex = m.TurnIndex

	switch m.Event {
	case events.Update:
		c.state.Transcript = m.Transcript
	case events.EagerEndOfTurn:
		c.state.Transcript = m.Transcript
		c.state.EagerEndPending = true
	case events.TurnResumed:
		if warning == nil && !previous.EagerEndPending {
			warning = anomaly("turn resumed without an eager end of turn")
		}
		if m.Transcript != "" {
			c.state.Transcript = m.Transcript
		}
		c.state.EagerEndPending = false
	}
	return warning
}

func copyWords[T any](from []T) []events.Word {
	if len(from) == 0 {
		return nil
	}

	var words []events.Word
	if err := copier.Copy(&words, &from); err != nil {
		logger.Warn("failed to copy words", "error", err)
		return nil
	}
	return words
}
