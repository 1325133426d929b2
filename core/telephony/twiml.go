package telephony

import (
	"fmt"
	"strings"
)

// ConnectStreamTwiML renders the markup that instructs the provider to open
// a media-stream WebSocket against the given public URL. Only the inbound
// track is streamed; outbound audio goes through the same socket as media
// frames.
func ConnectStreamTwiML(publicURL string) string {
	wsURL := strings.Replace(publicURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)

	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Connect>
        <Stream url="%s/ws" track="inbound_track" />
    </Connect>
</Response>`, wsURL)
}
