package events

import "fmt"

const (
	// KindSpeechStarted identifies detected start of voice activity.
	KindSpeechStarted Kind = "speech.started"
	// KindUtteranceEnd identifies a silence gap after the last spoken word.
	KindUtteranceEnd Kind = "speech.utterance_end"
)

// SpeechStarted marks voice activity starting AudioOffset seconds into the
// stream.
type SpeechStarted struct {
	Base
	AudioOffset float64
}

func (s SpeechStarted) String() string { return fmt.Sprintf("Speech Started (%.2fs)", s.AudioOffset) }

// NewSpeechStarted creates a speech started event.
func NewSpeechStarted(audioOffset float64) SpeechStarted {
	return SpeechStarted{Base: NewBase(KindSpeechStarted), AudioOffset: audioOffset}
}

// UtteranceEnd marks the end of an utterance; LastWordEnd is the end offset
// of the last word in seconds.
type UtteranceEnd struct {
	Base
	LastWordEnd float64
}

func (u UtteranceEnd) String() string { return fmt.Sprintf("Utterance Ended (%.2fs)", u.LastWordEnd) }

// NewUtteranceEnd creates an utterance end event.
func NewUtteranceEnd(lastWordEnd float64) UtteranceEnd {
	return UtteranceEnd{Base: NewBase(KindUtteranceEnd), LastWordEnd: lastWordEnd}
}
