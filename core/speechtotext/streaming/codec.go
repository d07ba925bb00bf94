package streaming

import (
	"encoding/json"
	"errors"
	"fmt"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-listen/core/events"
)

// FrameKind tags an outgoing frame.
type FrameKind int

const (
	FrameAudio FrameKind = iota
	FrameKeepAlive
	FrameFinalize
	FrameCloseStream
)

func (k FrameKind) String() string {
	switch k {
	case FrameAudio:
		return "audio"
	case FrameKeepAlive:
		return "keep_alive"
	case FrameFinalize:
		return "finalize"
	case FrameCloseStream:
		return "close_stream"
	}
	return fmt.Sprintf("frame(%d)", int(k))
}

// Frame is one outgoing message. Audio is only set for FrameAudio.
type Frame struct {
	Kind  FrameKind
	Audio []byte
}

func AudioFrame(audio []byte) Frame { return Frame{Kind: FrameAudio, Audio: audio} }

const (
	controlKeepAlive = "KeepAlive"
	controlFinalize  = "Finalize"
)

type controlMessage struct {
	Type string `json:"type"`
}

// encodeFrame turns a frame into a websocket message type and payload. Audio
// is sent as a binary message, control frames as a JSON object naming the
// control type.
func encodeFrame(frame Frame) (int, []byte, error) {
	var control controlMessage
	switch frame.Kind {
	case FrameAudio:
		return websocket.BinaryMessage, frame.Audio, nil
	case FrameKeepAlive:
		control.Type = controlKeepAlive
	case FrameFinalize:
		control.Type = controlFinalize
	case FrameCloseStream:
		control.Type = string(api.TypeCloseStreamResponse)
	default:
		return 0, nil, fmt.Errorf("unknown frame kind %s", frame.Kind)
	}

	payload, err := json.Marshal(control)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to encode %s frame: %w", frame.Kind, err)
	}
	return websocket.TextMessage, payload, nil
}

const (
	messageConnected = "Connected"
	messageTurnInfo  = "TurnInfo"
)

// resultsMessage is a classic streaming transcript. from_finalize is read
// here so it is available whatever the SDK version exposes.
type resultsMessage struct {
	api.MessageResponse
	FromFinalize bool `json:"from_finalize"`
}

type connectedMessage struct {
	RequestID  string `json:"request_id"`
	SequenceID int    `json:"sequence_id"`
}

type fluxWord struct {
	Word       string  `json:"word"`
	Confidence float64 `json:"confidence"`
}

type turnInfoMessage struct {
	RequestID           string               `json:"request_id"`
	SequenceID          int                  `json:"sequence_id"`
	Event               events.TurnEventType `json:"event"`
	TurnIndex           int                  `json:"turn_index"`
	AudioWindowStart    float64              `json:"audio_window_start"`
	AudioWindowEnd      float64              `json:"audio_window_end"`
	Transcript          string               `json:"transcript"`
	Words               []fluxWord           `json:"words"`
	EndOfTurnConfidence float64              `json:"end_of_turn_confidence"`
}

// errorMessage covers both the classic and the turn-based error shapes.
type errorMessage struct {
	SequenceID  int    `json:"sequence_id"`
	Code        string `json:"code"`
	ErrCode     string `json:"err_code"`
	Description string `json:"description"`
	ErrMsg      string `json:"err_msg"`
	Message     string `json:"message"`
}

func (m errorMessage) code() string {
	if m.Code != "" {
		return m.Code
	}
	return m.ErrCode
}

func (m errorMessage) text() string {
	for _, text := range []string{m.Description, m.ErrMsg, m.Message} {
		if text != "" {
			return text
		}
	}
	return "unspecified error"
}

// decodeMessage decodes one inbound websocket message into a typed server
// message: *resultsMessage, *api.UtteranceEndResponse,
// *api.SpeechStartedResponse, *api.MetadataResponse, *connectedMessage,
// *turnInfoMessage or *errorMessage. Anything else yields a *ProtocolError.
func decodeMessage(messageType int, payload []byte) (any, error) {
	switch messageType {
	case websocket.TextMessage:
	case websocket.BinaryMessage:
		return nil, &ProtocolError{
			Code: codeUnexpectedBinary,
			Err:  fmt.Errorf("received %d byte binary frame", len(payload)),
		}
	default:
		return nil, &ProtocolError{
			Code: codeUnexpectedFrame,
			Err:  fmt.Errorf("received frame of message type %d", messageType),
			Raw:  payload,
		}
	}

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, &ProtocolError{Code: codeMalformedFrame, Err: err, Raw: payload}
	}

	var message any
	switch envelope.Type {
	case "":
		return nil, &ProtocolError{Code: codeMissingType, Err: errors.New("message has no type"), Raw: payload}
	case string(api.TypeMessageResponse):
		message = &resultsMessage{}
	case string(api.TypeUtteranceEndResponse):
		message = &api.UtteranceEndResponse{}
	case string(api.TypeSpeechStartedResponse):
		message = &api.SpeechStartedResponse{}
	case string(api.TypeMetadataResponse):
		message = &api.MetadataResponse{}
	case string(api.TypeErrorResponse):
		message = &errorMessage{}
	case messageConnected:
		message = &connectedMessage{}
	case messageTurnInfo:
		message = &turnInfoMessage{}
	default:
		return nil, &ProtocolError{
			Code: codeUnknownMessageType,
			Err:  fmt.Errorf("unknown message type %q", envelope.Type),
			Raw:  payload,
		}
	}

	if err := json.Unmarshal(payload, message); err != nil {
		return nil, &ProtocolError{
			Code: codeMalformedFrame,
			Err:  fmt.Errorf("invalid %s message: %w", envelope.Type, err),
			Raw:  payload,
		}
	}

	switch m := message.(type) {
	case *connectedMessage:
		if _, err := uuid.Parse(m.RequestID); err != nil {
			return nil, &ProtocolError{Code: codeInvalidRequestID, Err: err, Raw: payload}
		}
	case *turnInfoMessage:
		if !m.Event.Valid() {
			return nil, &ProtocolError{
				Code: codeUnknownTurnEvent,
				Err:  fmt.Errorf("unknown turn event %q", m.Event),
				Raw:  payload,
			}
		}
	}

	return message, nil
}
