// Package events defines the typed events produced by a streaming
// speech-to-text session.
//
// Every inbound frame is classified into exactly one event. Kinds are grouped
// by namespace:
//
//   - transcript.*
//   - speech.*
//   - turn.*
//   - session.*
//
// transcript events
//
//   - InterimResult (transcript.interim): provisional hypothesis for the
//     current audio window; later results replace it.
//   - FinalResult (transcript.final): the hypothesis for the window will not
//     change any more. SpeechFinal marks an endpoint detected by the service.
//
// speech events
//
//   - SpeechStarted (speech.started): voice activity detected at AudioOffset.
//   - UtteranceEnd (speech.utterance_end): silence gap after the last word,
//     reported independently of endpointing.
//
// turn events (conversational, turn-based mode)
//
//   - TurnEvent (turn.started, turn.updated, turn.eager_ended, turn.resumed,
//     turn.ended): turn transitions. An eager end is provisional until either
//     turn.resumed retracts it or turn.ended confirms it. Warning is set when
//     the transition did not fit the turn state the session was tracking.
//
// session events
//
//   - Metadata (session.metadata): connection or request metadata.
//   - ServerError (session.error): an error reported by the service, a frame
//     that could not be decoded, or a transport failure that ended the stream.
package events
