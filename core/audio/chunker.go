package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Chunker splits a byte stream into frames of a fixed size. Only the last
// frame may be shorter.
type Chunker struct {
	reader    io.Reader
	frameSize int
	done      bool
}

func NewChunker(reader io.Reader, frameSize int) (*Chunker, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("invalid frame size %d", frameSize)
	}
	return &Chunker{reader: reader, frameSize: frameSize}, nil
}

// Next returns the next frame, or io.EOF once the stream is exhausted. Each
// returned frame is a new slice the caller may keep.
func (c *Chunker) Next() ([]byte, error) {
	if c.done {
		return nil, io.EOF
	}

	frame := make([]byte, c.frameSize)
	n, err := io.ReadFull(c.reader, frame)
	switch {
	case err == nil:
		return frame, nil
	case errors.Is(err, io.EOF):
		c.done = true
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		c.done = true
		return frame[:n], nil
	default:
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
}

// Pace sends the chunker's frames to out, at most one per frameDelay. A zero
// delay sends as fast as out is drained. Pace returns nil once the stream is
// exhausted and does not close out.
func Pace(ctx context.Context, chunker *Chunker, frameDelay time.Duration, out chan<- []byte) error {
	var tick <-chan time.Time
	if frameDelay > 0 {
		ticker := time.NewTicker(frameDelay)
		defer ticker.Stop()
		tick = ticker.C
	}

	for first := true; ; first = false {
		frame, err := chunker.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if tick != nil && !first {
			select {
			case <-tick:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		select {
		case out <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
