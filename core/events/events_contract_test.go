package events

import (
	"strings"
	"testing"
)

func TestEveryEventImplementsTheSealedUnion(t *testing.T) {
	for _, event := range []Event{
		StreamStart{StreamSID: "MZ123"},
		StreamStop{},
		Media{Audio: []byte{0x7f}},
		RecognizerStartOfTurn{},
		RecognizerEndOfTurn{Transcript: "hello"},
		AgentTurnDone{},
	} {
		if event.String() == "" {
			t.Fatalf("expected %T to describe itself", event)
		}
	}
}

func TestEveryActionImplementsTheSealedUnion(t *testing.T) {
	for _, action := range []Action{
		FeedRecognizer{Audio: []byte{0x7f}},
		StartAgentTurn{Transcript: "hello"},
		ResetAgentTurn{},
	} {
		if action.String() == "" {
			t.Fatalf("expected %T to describe itself", action)
		}
	}
}

func TestEventStringsCarryTheirPayloads(t *testing.T) {
	if got := (StreamStart{StreamSID: "MZ123"}).String(); !strings.Contains(got, "MZ123") {
		t.Fatalf("expected stream sid in description, got %q", got)
	}
	if got := (RecognizerEndOfTurn{Transcript: "hi there"}).String(); !strings.Contains(got, "hi there") {
		t.Fatalf("expected transcript in description, got %q", got)
	}
	if got := (Media{Audio: make([]byte, 160)}).String(); !strings.Contains(got, "160") {
		t.Fatalf("expected frame size in description, got %q", got)
	}
}
