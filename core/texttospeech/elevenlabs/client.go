package elevenlabs

import (
	"os"

	"github.com/parleyvoice/parley/core/texttospeech"
)

const (
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	defaultModelID = "eleven_turbo_v2_5"
)

// Client opens streaming synthesis sessions against the ElevenLabs
// stream-input WebSocket API.
type Client struct {
	apiKey  string
	voiceID string
	modelID string
}

type ClientOption func(*Client)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

func WithVoiceID(voiceID string) ClientOption {
	return func(c *Client) { c.voiceID = voiceID }
}

func WithModelID(modelID string) ClientOption {
	return func(c *Client) { c.modelID = modelID }
}

func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		voiceID: defaultVoiceID,
		modelID: defaultModelID,
	}
	if apiKey, ok := os.LookupEnv("ELEVENLABS_API_KEY"); ok {
		client.apiKey = apiKey
	}
	if voiceID, ok := os.LookupEnv("ELEVENLABS_VOICE_ID"); ok {
		client.voiceID = voiceID
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// Dialer adapts the client to the pool's dial contract.
func (c *Client) Dialer() texttospeech.SessionDialer {
	return c.NewSpeechSession
}
