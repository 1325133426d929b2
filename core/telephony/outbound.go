package telephony

import (
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// CallerConfig holds the credentials and numbers used to place outbound
// calls through the provider's REST API.
type CallerConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	// PublicURL is where the provider fetches the connection markup once the
	// call is answered.
	PublicURL string
}

// StartOutboundCall rings toNumber (E.164) and points the answered call at
// the /twiml endpoint, which in turn opens the media-stream WebSocket.
// Returns the provider's call identifier.
func StartOutboundCall(cfg CallerConfig, toNumber string) (string, error) {
	if !strings.HasPrefix(toNumber, "+") {
		return "", fmt.Errorf("phone number must be in E.164 format, got %q", toNumber)
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	params := &api.CreateCallParams{}
	params.SetTo(toNumber)
	params.SetFrom(cfg.FromNumber)
	params.SetUrl(cfg.PublicURL + "/twiml")

	call, err := client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("failed to create outbound call: %w", err)
	}
	if call.Sid == nil {
		return "", fmt.Errorf("outbound call created without a call sid")
	}

	return *call.Sid, nil
}
