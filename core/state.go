package callflow

import (
	"github.com/parleyvoice/parley/core/events"
)

// Phase is the conversational phase of a call.
type Phase int

const (
	// PhaseListening means the caller has the floor and inbound audio is
	// being fed to the recognizer.
	PhaseListening Phase = iota
	// PhaseResponding means an agent turn is in flight, producing and
	// playing back a reply.
	PhaseResponding
)

func (p Phase) String() string {
	switch p {
	case PhaseListening:
		return "listening"
	case PhaseResponding:
		return "responding"
	default:
		return "unknown"
	}
}

// CallState is the full state of a call as seen by the transition
// function. It is a plain value so transitions can be replayed and
// tested without any I/O.
type CallState struct {
	Phase     Phase
	StreamSID string
}

// Transition applies a single event to the call state and returns the
// next state together with the actions the loop must perform. It is a
// pure function: all side effects live in the returned actions.
//
// Audio is fed to the recognizer in both phases so the recognizer can
// detect the caller starting to speak over the agent. An end of turn
// with an empty transcript is ignored, as is a start of turn while
// already listening.
func Transition(state CallState, event events.Event) (CallState, []events.Action) {
	switch event := event.(type) {
	case events.StreamStart:
		state.Phase = PhaseListening
		state.StreamSID = event.StreamSID
		return state, nil

	case events.Media:
		return state, []events.Action{events.FeedRecognizer{Audio: event.Audio}}

	case events.RecognizerStartOfTurn:
		if state.Phase == PhaseResponding {
			state.Phase = PhaseListening
			return state, []events.Action{events.ResetAgentTurn{}}
		}
		return state, nil

	case events.RecognizerEndOfTurn:
		if state.Phase == PhaseListening && event.Transcript != "" {
			state.Phase = PhaseResponding
			return state, []events.Action{events.StartAgentTurn{Transcript: event.Transcript}}
		}
		return state, nil

	case events.AgentTurnDone:
		state.Phase = PhaseListening
		return state, nil

	case events.StreamStop:
		// The loop exits right after; the phase is left as-is.
		if state.Phase == PhaseResponding {
			return state, []events.Action{events.ResetAgentTurn{}}
		}
		return state, nil

	default:
		logger.Warn("Ignoring unknown event", "event", event)
		return state, nil
	}
}
