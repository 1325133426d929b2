package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/parleyvoice/parley/core/audio"
	"github.com/parleyvoice/parley/core/speechtotext"
)

// Listen opens the Flux session and starts the background reader that turns
// Flux messages into turn callbacks. The session stays open until Close or
// until the socket fails; a read failure only strands the recognizer, the
// call itself ends through the telephony stop frame.
func (c *TurnDetectionClient) Listen(ctx context.Context, opts ...speechtotext.TurnDetectionOption) error {
	ctx, span := tracer.Start(ctx, "open recognizer session")
	defer span.End()

	options := &speechtotext.TurnDetectionOptions{EncodingInfo: audio.TelephonyEncodingInfo()}
	for _, opt := range opts {
		opt(options)
	}

	if c.apiKey == "" {
		return fmt.Errorf("deepgram api key not found")
	}

	listenURL, _ := url.Parse("wss://api.deepgram.com/v2/listen")
	queryParams := listenURL.Query()
	queryParams.Set("model", c.model)
	queryParams.Set("encoding", options.EncodingInfo.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(options.EncodingInfo.SampleRate))
	listenURL.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	go c.readAndProcessMessages(ctx, conn, *options)

	return nil
}

// SendAudio forwards one raw mulaw frame to the session. A write failure
// means the frame is lost; the caller logs and drops it.
func (c *TurnDetectionClient) SendAudio(audio []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("recognizer session is not open")
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write audio to deepgram: %w", err)
	}
	return nil
}

func (c *TurnDetectionClient) Close(_ context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close deepgram connection: %w", err)
	}
	return nil
}

func (c *TurnDetectionClient) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, options speechtotext.TurnDetectionOptions) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if err.Error() != "websocket: close 1000 (normal)" {
				logger.ErrorContext(ctx, "Failed to read deepgram websocket message",
					"component", "recognizer", "error", err)
			}

			c.connMu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.connMu.Unlock()
			conn.Close()
			return
		}
		if msgType != websocket.BinaryMessage {
			c.processMessage(ctx, msg, options)
		}
	}
}

// fluxTurnInfo is the v2 listen turn message. The v1 SDK does not model it,
// so it is declared here; interim results still come as v1 Results messages.
type fluxTurnInfo struct {
	Type       string `json:"type"`
	Event      string `json:"event"`
	Transcript string `json:"transcript"`
}

func (c *TurnDetectionClient) processMessage(ctx context.Context, msg []byte, options speechtotext.TurnDetectionOptions) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.ErrorContext(ctx, "Failed to unmarshal deepgram message",
			"component", "recognizer", "error", err)
		return
	}

	switch parsedMsg.Type {
	case "TurnInfo":
		var turnInfo fluxTurnInfo
		if err := json.Unmarshal(msg, &turnInfo); err != nil {
			logger.ErrorContext(ctx, "Failed to unmarshal deepgram turn info",
				"component", "recognizer", "error", err)
			return
		}

		switch turnInfo.Event {
		case "StartOfTurn":
			if options.StartOfTurnCallback != nil {
				options.StartOfTurnCallback()
			}
		case "EndOfTurn":
			if options.EndOfTurnCallback != nil {
				options.EndOfTurnCallback(strings.TrimSpace(turnInfo.Transcript))
			}
		}

	case string(api.TypeMessageResponse):
		if options.InterimTranscriptCallback == nil {
			return
		}
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.ErrorContext(ctx, "Failed to unmarshal deepgram results message",
				"component", "recognizer", "error", err)
			return
		}
		if len(msgResp.Channel.Alternatives) > 0 {
			transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
			if transcript != "" {
				options.InterimTranscriptCallback(transcript)
			}
		}
	}
}
