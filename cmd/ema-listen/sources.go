package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/koscakluka/ema-listen/core/audio"
	"github.com/koscakluka/ema-listen/core/audio/miniaudio"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	sourceMicrophone = "mic"
	sourceStdin      = "-"
)

// source produces audio frames on Frames until it is exhausted or its
// context ends, then closes Frames. Err reports why it stopped.
type source struct {
	Frames   <-chan []byte
	Encoding audio.EncodingInfo

	mu  sync.Mutex
	err error
}

func (s *source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func runSource(ctx context.Context, encoding audio.EncodingInfo, produce func(ctx context.Context, out chan<- []byte) error) *source {
	frames := make(chan []byte, 16)
	s := &source{Frames: frames, Encoding: encoding}

	go func() {
		defer close(frames)
		err := produce(ctx, frames)
		if err != nil && ctx.Err() == nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
		}
	}()
	return s
}

var httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

// openSource starts the source named by arg: "mic" for the default
// microphone, "-" for stdin, an http(s) URL or a file path. Byte sources are
// expected to hold raw audio in cfg.Encoding.
func openSource(ctx context.Context, arg string, cfg config) (*source, error) {
	if arg == sourceMicrophone {
		return openMicrophone(ctx, cfg)
	}

	reader, err := openReader(ctx, arg)
	if err != nil {
		return nil, err
	}

	chunker, err := audio.NewChunker(reader, cfg.Encoding.FrameSize(cfg.Frame))
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	frameDelay := cfg.Frame
	if !cfg.Realtime || arg == sourceStdin {
		frameDelay = 0
	}

	return runSource(ctx, cfg.Encoding, func(ctx context.Context, out chan<- []byte) error {
		defer reader.Close()
		return audio.Pace(ctx, chunker, frameDelay, out)
	}), nil
}

func openReader(ctx context.Context, arg string) (io.ReadCloser, error) {
	switch {
	case arg == sourceStdin:
		return io.NopCloser(os.Stdin), nil

	case strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, arg, nil)
		if err != nil {
			return nil, fmt.Errorf("invalid audio url: %w", err)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch audio: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("failed to fetch audio: %s", resp.Status)
		}
		return resp.Body, nil

	default:
		file, err := os.Open(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to open audio file: %w", err)
		}
		return file, nil
	}
}

func openMicrophone(ctx context.Context, cfg config) (*source, error) {
	mic, err := miniaudio.NewMicrophone(cfg.Encoding.SampleRate)
	if err != nil {
		return nil, err
	}

	return runSource(ctx, mic.EncodingInfo(), func(ctx context.Context, out chan<- []byte) error {
		defer mic.Close()
		return mic.Stream(ctx, out)
	}), nil
}
