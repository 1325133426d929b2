package audio

// Telephony media streams carry mulaw at 8 kHz; every upstream session is
// opened with the same encoding so no transcoding happens in the call path.
const (
	TelephonySampleRate = 8000
	TelephonyFormat     = EncodingMulaw
)

// FrameDurationMs is the wire duration of one telephony frame: 160 samples
// at 8 kHz.
const FrameDurationMs = 20

func TelephonyEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: TelephonySampleRate, Format: TelephonyFormat}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingLinear16 encodingFormat = "linear16"
)
