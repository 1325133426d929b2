package telephony

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn wraps the telephony provider's WebSocket. Reads happen from a single
// reader goroutine; writes are serialized so the player and the clear control
// frame never interleave on the wire.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// ReadFrame blocks until the next text frame arrives. Binary frames are not
// part of the media stream protocol and are skipped.
func (c *Conn) ReadFrame() ([]byte, error) {
	for {
		msgType, msg, err := c.ws.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read media stream frame: %w", err)
		}
		if msgType == websocket.TextMessage {
			return msg, nil
		}
	}
}

// WriteMedia sends one base64 mulaw payload back to the caller.
func (c *Conn) WriteMedia(streamSID, payload string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteJSON(mediaFrame{
		Event:     "media",
		StreamSID: streamSID,
		Media:     mediaPayload{Payload: payload},
	}); err != nil {
		return fmt.Errorf("failed to write media frame: %w", err)
	}
	return nil
}

// WriteClear tells the provider to discard any outbound audio it has
// buffered. This is what makes barge-in audibly instant.
func (c *Conn) WriteClear(streamSID string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteJSON(clearFrame{Event: "clear", StreamSID: streamSID}); err != nil {
		return fmt.Errorf("failed to write clear frame: %w", err)
	}
	return nil
}

func (c *Conn) Close() error {
	return c.ws.Close()
}
