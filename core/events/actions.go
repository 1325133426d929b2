package events

import "fmt"

// Action is the sealed union of side effects the pure transition can request.
// Actions are data; the loop executes them in order after each transition.
type Action interface {
	fmt.Stringer
	action()
}

// FeedRecognizer forwards one audio frame to the recognizer session.
type FeedRecognizer struct {
	Audio []byte
}

func (a FeedRecognizer) action()        {}
func (a FeedRecognizer) String() string { return fmt.Sprintf("feed recognizer (%d bytes)", len(a.Audio)) }

// StartAgentTurn begins an agent response for the given transcript.
type StartAgentTurn struct {
	Transcript string
}

func (a StartAgentTurn) action()        {}
func (a StartAgentTurn) String() string { return "start agent turn: " + a.Transcript }

// ResetAgentTurn cancels the active agent response and clears any audio
// buffered by the telephony provider.
type ResetAgentTurn struct{}

func (a ResetAgentTurn) action()        {}
func (a ResetAgentTurn) String() string { return "reset agent turn" }
