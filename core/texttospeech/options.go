package texttospeech

import "github.com/parleyvoice/parley/core/audio"

// SpeechSession is one open synthesizer connection. Text goes in as deltas,
// audio comes out through the bound callbacks as base64 mulaw payloads
// followed by a terminal done signal.
type SpeechSession interface {
	// SendText appends text to the synthesis input. Speech is generated in
	// the order text is sent.
	SendText(text string) error
	// Flush forces synthesis of any text buffered short of a natural break.
	Flush() error
	// Cancel aborts the session immediately. No callbacks fire afterwards.
	// Repeated calls are ignored.
	Cancel() error
	// Rebind atomically swaps the audio and done callbacks. This is how a
	// pre-opened idle session is adopted by a specific turn without
	// reconnecting.
	Rebind(onAudio func(audioB64 string), onDone func())
}

type SpeechSessionOptions struct {
	// AudioCallback is called for each synthesized base64 mulaw payload.
	AudioCallback func(audioB64 string)
	// SpeechEndedCallback is called once after the final audio payload.
	SpeechEndedCallback func()

	EncodingInfo audio.EncodingInfo
}

type SpeechSessionOption func(*SpeechSessionOptions)

func WithAudioCallback(callback func(audioB64 string)) SpeechSessionOption {
	return func(o *SpeechSessionOptions) {
		o.AudioCallback = callback
	}
}

func WithSpeechEndedCallback(callback func()) SpeechSessionOption {
	return func(o *SpeechSessionOptions) {
		o.SpeechEndedCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SpeechSessionOption {
	return func(o *SpeechSessionOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}
