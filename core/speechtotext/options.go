package speechtotext

import "github.com/parleyvoice/parley/core/audio"

// TurnDetectionOptions configure a recognizer session. The recognizer owns
// all turn-boundary detection; consumers only react to the callbacks.
type TurnDetectionOptions struct {
	// StartOfTurnCallback is called when the caller starts speaking. During
	// an agent response this is the barge-in signal.
	StartOfTurnCallback func()
	// EndOfTurnCallback is called with the full transcript once the caller
	// finishes speaking.
	EndOfTurnCallback func(transcript string)
	// InterimTranscriptCallback, when set, receives partial transcripts as
	// they stabilize. Informational only.
	InterimTranscriptCallback func(transcript string)

	EncodingInfo audio.EncodingInfo
}

type TurnDetectionOption func(*TurnDetectionOptions)

func WithStartOfTurnCallback(callback func()) TurnDetectionOption {
	return func(o *TurnDetectionOptions) {
		o.StartOfTurnCallback = callback
	}
}

func WithEndOfTurnCallback(callback func(transcript string)) TurnDetectionOption {
	return func(o *TurnDetectionOptions) {
		o.EndOfTurnCallback = callback
	}
}

func WithInterimTranscriptCallback(callback func(transcript string)) TurnDetectionOption {
	return func(o *TurnDetectionOptions) {
		o.InterimTranscriptCallback = callback
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TurnDetectionOption {
	return func(o *TurnDetectionOptions) {
		if encodingInfo.IsZero() {
			return
		}
		o.EncodingInfo = encodingInfo
	}
}
