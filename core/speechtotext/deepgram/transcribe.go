package deepgram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-listen/core/audio"
	"github.com/koscakluka/ema-listen/core/speechtotext"
	"github.com/koscakluka/ema-listen/core/speechtotext/streaming"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	listenPath = "v1/listen"
	fluxPath   = "v2/listen"

	defaultListenModel = "nova-3"
	defaultFluxModel   = "flux-general-en"

	requestIDHeader = "dg-request-id"
)

// Listen opens a classic streaming session. Results, UtteranceEnd,
// SpeechStarted and Metadata messages arrive as events.
func (c *TranscriptionClient) Listen(ctx context.Context, opts ...speechtotext.TranscriptionOption) (*streaming.Session, error) {
	options := speechtotext.TranscriptionOptions{
		Model:        defaultListenModel,
		EncodingInfo: audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	query, err := listenQuery(options)
	if err != nil {
		return nil, err
	}
	return c.connect(ctx, listenPath, query, options)
}

// Flux opens a turn-based streaming session. The service reports
// conversational turns as TurnInfo messages, which arrive as turn events.
func (c *TranscriptionClient) Flux(ctx context.Context, opts ...speechtotext.TranscriptionOption) (*streaming.Session, error) {
	options := speechtotext.TranscriptionOptions{
		Model:        defaultFluxModel,
		EncodingInfo: audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	query, err := fluxQuery(options)
	if err != nil {
		return nil, err
	}
	return c.connect(ctx, fluxPath, query, options)
}

func listenQuery(options speechtotext.TranscriptionOptions) (url.Values, error) {
	queryParams, err := baseQuery(options)
	if err != nil {
		return nil, err
	}

	if options.Language != "" {
		queryParams.Set("language", options.Language)
	}
	if options.Channels > 0 {
		queryParams.Set("channels", strconv.Itoa(options.Channels))
	}
	if options.InterimResults {
		queryParams.Set("interim_results", "true")
	}
	if options.VADEvents {
		queryParams.Set("vad_events", "true")
	}
	if options.UtteranceEndMs > 0 {
		queryParams.Set("utterance_end_ms", strconv.Itoa(options.UtteranceEndMs))
	}
	if options.Endpointing != nil {
		if *options.Endpointing > 0 {
			queryParams.Set("endpointing", strconv.Itoa(*options.Endpointing))
		} else {
			queryParams.Set("endpointing", "false")
		}
	}
	if options.SmartFormat {
		queryParams.Set("smart_format", "true")
	}
	if options.Punctuate {
		queryParams.Set("punctuate", "true")
	}
	return queryParams, nil
}

func fluxQuery(options speechtotext.TranscriptionOptions) (url.Values, error) {
	queryParams, err := baseQuery(options)
	if err != nil {
		return nil, err
	}

	if options.EagerEndOfTurnThreshold != nil {
		queryParams.Set("eager_eot_threshold", formatFloat(*options.EagerEndOfTurnThreshold))
	}
	if options.EndOfTurnThreshold != nil {
		queryParams.Set("eot_threshold", formatFloat(*options.EndOfTurnThreshold))
	}
	if options.EndOfTurnTimeoutMs > 0 {
		queryParams.Set("eot_timeout_ms", strconv.Itoa(options.EndOfTurnTimeoutMs))
	}
	return queryParams, nil
}

func baseQuery(options speechtotext.TranscriptionOptions) (url.Values, error) {
	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	queryParams := url.Values{}
	if options.Model != "" {
		queryParams.Set("model", options.Model)
	}
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	for _, keyterm := range options.Keyterms {
		queryParams.Add("keyterm", keyterm)
	}
	return queryParams, nil
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func (c *TranscriptionClient) connect(ctx context.Context, path string, query url.Values, options speechtotext.TranscriptionOptions) (*streaming.Session, error) {
	sessionCtx := ctx
	ctx, span := tracer.Start(ctx, "connect "+path)
	defer span.End()

	endpoint := c.baseURL.JoinPath(path)
	endpoint.RawQuery = query.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, endpoint.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (%s)", err, resp.Status)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	requestID, err := requestIDFromResponse(resp)
	if err != nil {
		_ = conn.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("session.request_id", requestID))
	logger.Debug("connected to deepgram", "path", path, "request_id", requestID)

	return streaming.NewSession(sessionCtx, conn,
		streaming.WithRequestID(requestID),
		streaming.WithKeepAliveInterval(options.KeepAliveInterval),
		streaming.WithCloseTimeout(options.CloseTimeout),
	), nil
}

// requestIDFromResponse reads the request ID from the upgrade response.
// Self-hosted deployments may leave it out, which is not an error.
func requestIDFromResponse(resp *http.Response) (string, error) {
	if resp == nil {
		return "", nil
	}
	header := resp.Header.Get(requestIDHeader)
	if header == "" {
		return "", nil
	}

	requestID, err := uuid.Parse(header)
	if err != nil {
		return "", fmt.Errorf("received malformed request id %q in upgrade response: %w", header, err)
	}
	return requestID.String(), nil
}
