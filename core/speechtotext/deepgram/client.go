package deepgram

import (
	"os"
	"sync"

	"github.com/gorilla/websocket"
)

// TurnDetectionClient is a Deepgram Flux recognizer. One client drives one
// long-lived listen session that both transcribes and detects turn
// boundaries, so no local voice-activity detection is needed.
type TurnDetectionClient struct {
	apiKey string
	model  string

	conn   *websocket.Conn
	connMu sync.Mutex
}

type ClientOption func(*TurnDetectionClient)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *TurnDetectionClient) { c.apiKey = apiKey }
}

func WithModel(model string) ClientOption {
	return func(c *TurnDetectionClient) { c.model = model }
}

func NewTurnDetectionClient(opts ...ClientOption) *TurnDetectionClient {
	client := &TurnDetectionClient{
		model: "flux-general-en",
	}
	if apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY"); ok {
		client.apiKey = apiKey
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}
