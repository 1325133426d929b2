// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Config holds everything the runtime needs to serve calls. All values
// come from environment variables; provider credentials have no
// defaults and are validated before the server starts.
type Config struct {
	// Port the HTTP server listens on.
	Port int
	// PublicURL is the externally reachable base URL of this server,
	// e.g. an ngrok or deployment URL. Telephony webhooks and the
	// media stream URL are derived from it.
	PublicURL string
	// TraceDir is where per-call trace artifacts are written.
	TraceDir string
	// SystemPrompt optionally overrides the built-in agent prompt.
	SystemPrompt string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	DeepgramAPIKey   string
	GroqAPIKey       string
	ElevenLabsAPIKey string
	// ElevenLabsVoiceID optionally overrides the default voice.
	ElevenLabsVoiceID string
}

// Load reads configuration from the environment.
func Load() Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("port", 3040)
	v.SetDefault("trace_dir", "/tmp/parley")

	return Config{
		Port:         v.GetInt("port"),
		PublicURL:    strings.TrimRight(v.GetString("public_url"), "/"),
		TraceDir:     v.GetString("trace_dir"),
		SystemPrompt: v.GetString("system_prompt"),

		TwilioAccountSID: v.GetString("twilio_account_sid"),
		TwilioAuthToken:  v.GetString("twilio_auth_token"),
		TwilioFromNumber: v.GetString("twilio_from_number"),

		DeepgramAPIKey:    v.GetString("deepgram_api_key"),
		GroqAPIKey:        v.GetString("groq_api_key"),
		ElevenLabsAPIKey:  v.GetString("elevenlabs_api_key"),
		ElevenLabsVoiceID: v.GetString("elevenlabs_voice_id"),
	}
}

// Validate reports every missing required variable at once so a
// misconfigured deployment fails with a single actionable message.
func (c Config) Validate() error {
	var missing []string
	for name, value := range map[string]string{
		"PUBLIC_URL":         c.PublicURL,
		"TWILIO_ACCOUNT_SID": c.TwilioAccountSID,
		"TWILIO_AUTH_TOKEN":  c.TwilioAuthToken,
		"TWILIO_FROM_NUMBER": c.TwilioFromNumber,
		"DEEPGRAM_API_KEY":   c.DeepgramAPIKey,
		"GROQ_API_KEY":       c.GroqAPIKey,
		"ELEVENLABS_API_KEY": c.ElevenLabsAPIKey,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}
