package events

import "fmt"

// Event is the sealed union of everything the call loop can dequeue.
type Event interface {
	fmt.Stringer
	event()
}

// StreamStart is emitted when the telephony provider opens the media stream
// and assigns it an identifier.
type StreamStart struct {
	StreamSID string
}

func (e StreamStart) event()         {}
func (e StreamStart) String() string { return "stream start " + e.StreamSID }

// StreamStop is emitted when the media stream ends, either because the
// caller hung up or because the transport failed.
type StreamStop struct{}

func (e StreamStop) event()         {}
func (e StreamStop) String() string { return "stream stop" }

// Media carries one raw mulaw frame from the caller, typically 160 bytes
// (20 ms at 8 kHz).
type Media struct {
	Audio []byte
}

func (e Media) event()         {}
func (e Media) String() string { return fmt.Sprintf("media (%d bytes)", len(e.Audio)) }

// RecognizerStartOfTurn signals that the caller started speaking. While the
// agent is responding this is a barge-in.
type RecognizerStartOfTurn struct{}

func (e RecognizerStartOfTurn) event()         {}
func (e RecognizerStartOfTurn) String() string { return "recognizer start of turn" }

// RecognizerEndOfTurn signals that the caller finished speaking.
type RecognizerEndOfTurn struct {
	Transcript string
}

func (e RecognizerEndOfTurn) event()         {}
func (e RecognizerEndOfTurn) String() string { return "recognizer end of turn: " + e.Transcript }

// AgentTurnDone signals that the agent's playback completed.
type AgentTurnDone struct{}

func (e AgentTurnDone) event()         {}
func (e AgentTurnDone) String() string { return "agent turn done" }
