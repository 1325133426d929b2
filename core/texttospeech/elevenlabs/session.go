package elevenlabs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/parleyvoice/parley/core/audio"
	"github.com/parleyvoice/parley/core/texttospeech"
)

// NewSpeechSession performs the stream-input handshake and starts the
// receive loop. The session is ready to accept text as soon as this returns,
// which is what makes pre-opening in the pool worthwhile.
func (c *Client) NewSpeechSession(ctx context.Context, opts ...texttospeech.SpeechSessionOption) (texttospeech.SpeechSession, error) {
	ctx, span := tracer.Start(ctx, "open tts session")
	defer span.End()

	options := texttospeech.SpeechSessionOptions{
		AudioCallback:       func(string) {},
		SpeechEndedCallback: func() {},
		EncodingInfo:        audio.TelephonyEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	if c.apiKey == "" {
		return nil, fmt.Errorf("elevenlabs api key not found")
	}

	outputFormat, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		return nil, fmt.Errorf("invalid encoding: %w", err)
	}

	urlValues := url.Values{}
	urlValues.Set("model_id", c.modelID)
	urlValues.Set("output_format", outputFormat)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx,
		(&url.URL{
			Scheme:   "wss",
			Host:     "api.elevenlabs.io",
			Path:     "/v1/text-to-speech/" + c.voiceID + "/stream-input",
			RawQuery: urlValues.Encode(),
		}).String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to elevenlabs: %w", err)
	}

	session := &speechSession{
		ws:      conn,
		onAudio: options.AudioCallback,
		onDone:  options.SpeechEndedCallback,
	}

	if err := session.sendWebsocketMessage(initMessage{
		Text: " ",
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
		APIKey: c.apiKey,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send tts handshake: %w", err)
	}

	go session.processIncomingMessages(ctx)

	return session, nil
}

func convertEncoding(encodingInfo audio.EncodingInfo) (string, error) {
	switch encodingInfo.Format {
	case audio.EncodingMulaw:
		return fmt.Sprintf("ulaw_%d", encodingInfo.SampleRate), nil
	case audio.EncodingLinear16:
		return fmt.Sprintf("pcm_%d", encodingInfo.SampleRate), nil
	}
	return "", fmt.Errorf("unsupported encoding %q", encodingInfo.Format.Name())
}

type speechSession struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	callbackMu sync.RWMutex
	onAudio    func(audioB64 string)
	onDone     func()

	cancelled atomic.Bool
	closed    atomic.Bool
	doneFired atomic.Bool
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

type initMessage struct {
	Text          string        `json:"text"`
	VoiceSettings voiceSettings `json:"voice_settings"`
	APIKey        string        `json:"xi_api_key"`
}

type textMessage struct {
	Text                 string `json:"text"`
	TryTriggerGeneration bool   `json:"try_trigger_generation"`
}

type flushMessage struct {
	Text  string `json:"text"`
	Flush bool   `json:"flush"`
}

type synthesisMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
}

func (s *speechSession) SendText(text string) error {
	if s.cancelled.Load() {
		return fmt.Errorf("speech session cancelled")
	}
	if err := s.sendWebsocketMessage(textMessage{Text: text, TryTriggerGeneration: true}); err != nil {
		return fmt.Errorf("failed to send text to elevenlabs: %w", err)
	}
	return nil
}

func (s *speechSession) Flush() error {
	if s.cancelled.Load() {
		return fmt.Errorf("speech session cancelled")
	}
	if err := s.sendWebsocketMessage(flushMessage{Text: "", Flush: true}); err != nil {
		return fmt.Errorf("failed to flush elevenlabs buffer: %w", err)
	}
	return nil
}

func (s *speechSession) Cancel() error {
	if !s.cancelled.CompareAndSwap(false, true) {
		return nil
	}
	return s.close()
}

func (s *speechSession) Rebind(onAudio func(audioB64 string), onDone func()) {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()

	if onAudio != nil {
		s.onAudio = onAudio
	}
	if onDone != nil {
		s.onDone = onDone
	}
}

func (s *speechSession) close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.ws.Close(); err != nil {
		return fmt.Errorf("failed to close elevenlabs connection: %w", err)
	}
	return nil
}

func (s *speechSession) fireAudio(audioB64 string) {
	s.callbackMu.RLock()
	onAudio := s.onAudio
	s.callbackMu.RUnlock()
	onAudio(audioB64)
}

func (s *speechSession) fireDone() {
	if !s.doneFired.CompareAndSwap(false, true) {
		return
	}
	s.callbackMu.RLock()
	onDone := s.onDone
	s.callbackMu.RUnlock()
	onDone()
}

func (s *speechSession) processIncomingMessages(ctx context.Context) {
	for {
		_, msg, err := s.ws.ReadMessage()
		if err != nil {
			if !s.cancelled.Load() && !s.closed.Load() {
				logger.ErrorContext(ctx, "Tts websocket read failed",
					"component", "tts", "error", err)
			}
			// A dropped connection mid-synthesis still finishes the turn;
			// whatever audio arrived is all the caller will hear.
			if !s.cancelled.Load() {
				s.fireDone()
			}
			_ = s.close()
			return
		}

		var parsedMsg synthesisMessage
		if err := json.Unmarshal(msg, &parsedMsg); err != nil {
			logger.WarnContext(ctx, "Failed to unmarshal elevenlabs message",
				"component", "tts", "error", err)
			continue
		}

		if s.cancelled.Load() {
			return
		}

		if parsedMsg.Audio != "" {
			s.fireAudio(parsedMsg.Audio)
		}
		if parsedMsg.IsFinal {
			s.fireDone()
			_ = s.close()
			return
		}
	}
}

func (s *speechSession) sendWebsocketMessage(msg any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return fmt.Errorf("websocket connection closed")
	}
	if err := s.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}
