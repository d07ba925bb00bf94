package events

const (
	// KindInterimResult identifies a provisional transcript hypothesis.
	KindInterimResult Kind = "transcript.interim"
	// KindFinalResult identifies a transcript that will not be revised.
	KindFinalResult Kind = "transcript.final"
)

// Word is a single recognised word. Start and End are offsets in seconds
// from the beginning of the stream; they are zero when the service does not
// report timing (turn-based mode).
type Word struct {
	Word           string
	PunctuatedWord string
	Start          float64
	End            float64
	Confidence     float64
}

// InterimResult carries a hypothesis that later results may replace.
type InterimResult struct {
	Base
	Transcript string
	Words      []Word
	Confidence float64
	Start      float64
	Duration   float64
}

func (r InterimResult) IsFinal() bool  { return false }
func (r InterimResult) String() string { return r.Transcript + "..." }

// NewInterimResult creates an interim transcript event.
func NewInterimResult(transcript string, words []Word, confidence float64) InterimResult {
	return InterimResult{
		Base:       NewBase(KindInterimResult),
		Transcript: transcript,
		Words:      words,
		Confidence: confidence,
	}
}

// FinalResult carries the settled transcript for an audio window.
type FinalResult struct {
	Base
	Transcript string
	Words      []Word
	Confidence float64
	Start      float64
	Duration   float64

	// SpeechFinal is set when the service detected an endpoint after this
	// window.
	SpeechFinal bool
	// FromFinalize is set when the result was forced out by a Finalize
	// control message.
	FromFinalize bool
}

func (r FinalResult) IsFinal() bool  { return true }
func (r FinalResult) String() string { return r.Transcript }

// NewFinalResult creates a final transcript event.
func NewFinalResult(transcript string, words []Word, confidence float64) FinalResult {
	return FinalResult{
		Base:       NewBase(KindFinalResult),
		Transcript: transcript,
		Words:      words,
		Confidence: confidence,
	}
}
