package miniaudio

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-listen/core/audio"
)

// Microphone captures mono audio from the default input device.
type Microphone struct {
	// audioContext is only kept so it can be released in Close.
	audioContext *malgo.AllocatedContext
	captureClient
}

func NewMicrophone(sampleRate int) (*Microphone, error) {
	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	mic := Microphone{audioContext: audioCtx}
	if err := mic.captureClient.Init(audioCtx, uint32(sampleRate)); err != nil {
		mic.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &mic, nil
}

// Stream delivers captured audio to out until ctx is done. Frames that
// cannot be delivered immediately are dropped, since the device callback must
// not block.
func (m *Microphone) Stream(ctx context.Context, out chan<- []byte) error {
	err := m.captureClient.Start(func(data []byte) {
		frame := append([]byte(nil), data...)
		select {
		case out <- frame:
		default:
			droppedFrames.Add(context.Background(), 1)
		}
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	if err := m.captureClient.Stop(); err != nil {
		return err
	}
	return nil
}

func (m *Microphone) Close() {
	_ = m.captureClient.Uninit()
	_ = m.audioContext.Uninit()
	m.audioContext.Free()
}

func (m *Microphone) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: int(m.config.SampleRate),
		Format:     audio.EncodingLinear16,
	}
}
