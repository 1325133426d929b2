// Package events defines the typed contract between the call loop and its
// collaborators.
//
// Events are inputs pushed onto the per-call queue:
//
//   - StreamStart: the telephony provider opened the media stream.
//   - StreamStop: the media stream ended (hangup or transport failure).
//   - Media: one inbound mulaw audio frame.
//   - RecognizerStartOfTurn: the caller started speaking (barge-in signal).
//   - RecognizerEndOfTurn: the caller finished speaking; carries the
//     transcript of the utterance.
//   - AgentTurnDone: the agent finished playing its response.
//
// Actions are outputs of the pure transition, executed by the loop:
//
//   - FeedRecognizer: forward an audio frame to the recognizer session.
//   - StartAgentTurn: begin the LLM -> TTS -> player pipeline for a turn.
//   - ResetAgentTurn: cancel the active turn and clear buffered audio.
//
// Both unions are sealed; the loop rejects anything else.
package events
