package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/koscakluka/ema-listen/core/events"
	"github.com/koscakluka/ema-listen/core/speechtotext/streaming"
)

// stream sends frames to the session, keeps it alive while frames are not
// flowing and hands every event to handle. Once frames is closed it asks the
// server to finish, and it returns when the event stream ends.
func stream(ctx context.Context, session *streaming.Session, frames <-chan []byte, keepAlive time.Duration, handle func(events.Event) error) error {
	var tick <-chan time.Time
	if keepAlive > 0 {
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	stopSending := func() {
		frames = nil
		tick = nil
	}

	lastAudio := time.Now()
	incoming := session.Events()
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				stopSending()
				if err := session.CloseStream(ctx); err != nil {
					logger.Warn("failed to close stream", "error", err)
				}
				continue
			}
			if err := session.SendAudio(ctx, frame); err != nil {
				if !errors.Is(err, streaming.ErrClosed) {
					logger.Warn("failed to send audio, waiting for the stream to end", "error", err)
				}
				stopSending()
				continue
			}
			lastAudio = time.Now()

		case now := <-tick:
			if now.Sub(lastAudio) < keepAlive {
				continue
			}
			if err := session.KeepAlive(ctx); err != nil && !errors.Is(err, streaming.ErrClosed) {
				logger.Warn("failed to send keep-alive", "error", err)
			}

		case ev, ok := <-incoming:
			if !ok {
				return nil
			}
			if err := handle(ev); err != nil {
				return err
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// printer writes settled transcripts to out and everything else to the log.
type printer struct {
	out     io.Writer
	interim bool
}

func (p printer) handle(ev events.Event) error {
	switch e := ev.(type) {
	case events.InterimResult:
		if p.interim && e.Transcript != "" {
			logger.Info("interim", "transcript", e.Transcript)
		}
	case events.FinalResult:
		if e.Transcript != "" {
			if _, err := fmt.Fprintln(p.out, e.Transcript); err != nil {
				return err
			}
		}
	case events.TurnEvent:
		if e.Warning != nil {
			logger.Warn("unexpected turn event", "event", e.Type, "warning", e.Warning)
		}
		if e.Type == events.EndOfTurn {
			if _, err := fmt.Fprintf(p.out, "[turn %d] %s\n", e.TurnIndex, e.Transcript); err != nil {
				return err
			}
		} else if p.interim {
			logger.Info(string(e.Type), "turn", e.TurnIndex, "transcript", e.Transcript)
		}
	case events.SpeechStarted:
		logger.Debug("speech started", "offset", e.AudioOffset)
	case events.UtteranceEnd:
		logger.Debug("utterance ended", "last_word_end", e.LastWordEnd)
	case events.Metadata:
		logger.Info("session", "request_id", e.RequestID, "duration", e.Duration)
	case events.ServerError:
		logger.Error("stream error", "category", e.Category, "code", e.Code, "message", e.Message)
	}
	return nil
}
