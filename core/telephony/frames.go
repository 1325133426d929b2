package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/parleyvoice/parley/core/events"
)

// Inbound frame shapes for Twilio media streams. Only the fields the call
// loop consumes are declared.
type inboundFrame struct {
	Event string `json:"event"`
	Start *struct {
		StreamSID string `json:"streamSid"`
	} `json:"start,omitempty"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
}

type mediaFrame struct {
	Event     string       `json:"event"`
	StreamSID string       `json:"streamSid"`
	Media     mediaPayload `json:"media"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type clearFrame struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

// ParseInboundFrame converts one raw text frame from the media stream into a
// typed event. The "connected" frame is informational and yields (nil, nil),
// as does any frame with a missing stream SID or empty payload.
func ParseInboundFrame(raw []byte) (events.Event, error) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("failed to parse media stream frame: %w", err)
	}

	switch frame.Event {
	case "connected":
		return nil, nil

	case "start":
		if frame.Start == nil || frame.Start.StreamSID == "" {
			return nil, nil
		}
		return events.StreamStart{StreamSID: frame.Start.StreamSID}, nil

	case "media":
		if frame.Media == nil || frame.Media.Payload == "" {
			return nil, nil
		}
		audio, err := base64.StdEncoding.DecodeString(frame.Media.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode media payload: %w", err)
		}
		return events.Media{Audio: audio}, nil

	case "stop":
		return events.StreamStop{}, nil
	}

	return nil, nil
}
