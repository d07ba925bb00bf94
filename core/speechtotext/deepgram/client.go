package deepgram

import (
	"fmt"
	"net/url"
	"os"

	"github.com/gorilla/websocket"
)

const defaultBaseURL = "wss://api.deepgram.com"

// TranscriptionClient opens streaming transcription sessions against the
// Deepgram API or a self-hosted deployment.
type TranscriptionClient struct {
	apiKey  string
	baseURL *url.URL
	dialer  *websocket.Dialer
}

type clientOptions struct {
	apiKey  string
	baseURL string
	dialer  *websocket.Dialer
}

type ClientOption func(*clientOptions)

// WithAPIKey sets the key sent with every request. Without it the key is
// read from DEEPGRAM_API_KEY.
func WithAPIKey(apiKey string) ClientOption {
	return func(o *clientOptions) {
		o.apiKey = apiKey
	}
}

// WithBaseURL points the client at another host. http and https URLs are
// mapped to ws and wss.
func WithBaseURL(baseURL string) ClientOption {
	return func(o *clientOptions) {
		o.baseURL = baseURL
	}
}

func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(o *clientOptions) {
		o.dialer = dialer
	}
}

func NewTranscriptionClient(opts ...ClientOption) (*TranscriptionClient, error) {
	options := clientOptions{baseURL: defaultBaseURL, dialer: websocket.DefaultDialer}
	for _, opt := range opts {
		opt(&options)
	}

	if options.apiKey == "" {
		options.apiKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if options.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	baseURL, err := websocketURL(options.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	return &TranscriptionClient{
		apiKey:  options.apiKey,
		baseURL: baseURL,
		dialer:  options.dialer,
	}, nil
}

func websocketURL(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("missing host")
	}

	return parsed, nil
}
