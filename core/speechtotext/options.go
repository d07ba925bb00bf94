package speechtotext

import (
	"time"

	"github.com/koscakluka/ema-listen/core/audio"
)

// TranscriptionOptions configures one streaming transcription. Fields left
// zero are not sent, so the service defaults apply.
type TranscriptionOptions struct {
	Model        string
	Language     string
	EncodingInfo audio.EncodingInfo
	Channels     int

	// Classic streaming only.
	InterimResults bool
	VADEvents      bool
	UtteranceEndMs int
	Endpointing    *int
	SmartFormat    bool
	Punctuate      bool

	Keyterms []string

	// Turn-based streaming only.
	EagerEndOfTurnThreshold *float64
	EndOfTurnThreshold      *float64
	EndOfTurnTimeoutMs      int

	// Session lifetime. Both are handed to the streaming session unchanged.
	KeepAliveInterval time.Duration
	CloseTimeout      time.Duration
}

type TranscriptionOption func(*TranscriptionOptions)

func WithModel(model string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Model = model
	}
}

func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Language = language
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EncodingInfo = encodingInfo
	}
}

func WithChannels(channels int) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Channels = channels
	}
}

func WithInterimResults(enabled bool) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.InterimResults = enabled
	}
}

// WithVADEvents asks for SpeechStarted messages.
func WithVADEvents(enabled bool) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.VADEvents = enabled
	}
}

// WithUtteranceEnd asks for UtteranceEnd messages after the given silence.
// The service requires interim results for it, so they are enabled as well.
func WithUtteranceEnd(silence time.Duration) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.UtteranceEndMs = int(silence.Milliseconds())
		o.InterimResults = true
	}
}

// WithEndpointing sets how much silence ends a segment. Zero disables
// endpointing.
func WithEndpointing(silence time.Duration) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		ms := int(silence.Milliseconds())
		o.Endpointing = &ms
	}
}

func WithSmartFormat(enabled bool) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.SmartFormat = enabled
	}
}

func WithPunctuate(enabled bool) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Punctuate = enabled
	}
}

func WithKeyterms(keyterms ...string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.Keyterms = append(o.Keyterms, keyterms...)
	}
}

func WithEagerEndOfTurnThreshold(threshold float64) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EagerEndOfTurnThreshold = &threshold
	}
}

func WithEndOfTurnThreshold(threshold float64) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EndOfTurnThreshold = &threshold
	}
}

func WithEndOfTurnTimeout(timeout time.Duration) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.EndOfTurnTimeoutMs = int(timeout.Milliseconds())
	}
}

func WithKeepAliveInterval(interval time.Duration) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.KeepAliveInterval = interval
	}
}

func WithCloseTimeout(timeout time.Duration) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		o.CloseTimeout = timeout
	}
}
