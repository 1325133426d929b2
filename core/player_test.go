package callflow

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSocket struct {
	mu     sync.Mutex
	media  []string
	clears int

	writeErr error
}

func (s *fakeSocket) WriteMedia(_, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.media = append(s.media, payload)
	return nil
}

func (s *fakeSocket) WriteClear(string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	return nil
}

func (s *fakeSocket) mediaFrames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.media...)
}

func (s *fakeSocket) clearCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

func waitFor(t *testing.T, condition func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", message)
}

func TestPlayerDrainsChunksInOrderAndFiresDoneOnce(t *testing.T) {
	socket := &fakeSocket{}
	doneCalls := atomic.Int32{}
	player := NewPlayer(socket, "MZ123", func() { doneCalls.Add(1) })

	player.Push("one")
	player.Push("two")
	player.Push("three")
	player.MarkInputComplete()

	waitFor(t, func() bool { return doneCalls.Load() == 1 }, "playback completion")

	frames := socket.mediaFrames()
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	for i, want := range []string{"one", "two", "three"} {
		if frames[i] != want {
			t.Fatalf("expected frame %d to be %q, got %q", i, want, frames[i])
		}
	}
	if got := doneCalls.Load(); got != 1 {
		t.Fatalf("expected completion callback once, got %d", got)
	}
	if socket.clearCount() != 0 {
		t.Fatalf("expected no clear frame on clean completion, got %d", socket.clearCount())
	}
}

func TestPlayerWritesNothingBeforeFirstChunk(t *testing.T) {
	socket := &fakeSocket{}
	player := NewPlayer(socket, "MZ123", func() {})

	if player.IsPlaying() {
		t.Fatalf("expected player idle before first chunk")
	}
	time.Sleep(50 * time.Millisecond)
	if frames := socket.mediaFrames(); len(frames) != 0 {
		t.Fatalf("expected no frames before first chunk, got %d", len(frames))
	}
}

func TestPlayerCompletesWhenInputEndsWithoutAudio(t *testing.T) {
	socket := &fakeSocket{}
	doneCalls := atomic.Int32{}
	player := NewPlayer(socket, "MZ123", func() { doneCalls.Add(1) })

	player.MarkInputComplete()

	waitFor(t, func() bool { return doneCalls.Load() == 1 }, "completion without audio")
	if frames := socket.mediaFrames(); len(frames) != 0 {
		t.Fatalf("expected no frames, got %d", len(frames))
	}
}

func TestPlayerStopAndClearDiscardsBufferAndSkipsDone(t *testing.T) {
	socket := &fakeSocket{}
	doneCalls := atomic.Int32{}
	player := NewPlayer(socket, "MZ123", func() { doneCalls.Add(1) })

	for range 50 {
		player.Push("frame")
	}
	waitFor(t, func() bool { return len(socket.mediaFrames()) >= 1 }, "first frame")

	if err := player.StopAndClear(); err != nil {
		t.Fatalf("expected stop and clear to succeed, got %v", err)
	}

	written := len(socket.mediaFrames())
	if written >= 50 {
		t.Fatalf("expected remaining buffer discarded, all %d frames written", written)
	}
	if socket.clearCount() != 1 {
		t.Fatalf("expected exactly one clear frame, got %d", socket.clearCount())
	}

	time.Sleep(100 * time.Millisecond)
	if got := doneCalls.Load(); got != 0 {
		t.Fatalf("expected no completion callback after stop, got %d", got)
	}
	if got := len(socket.mediaFrames()); got != written {
		t.Fatalf("expected no frames after stop, got %d more", got-written)
	}
}

func TestPlayerStopIsTerminal(t *testing.T) {
	socket := &fakeSocket{}
	doneCalls := atomic.Int32{}
	player := NewPlayer(socket, "MZ123", func() { doneCalls.Add(1) })

	if err := player.StopAndClear(); err != nil {
		t.Fatalf("expected stop and clear to succeed, got %v", err)
	}

	// A synthesis callback racing the stop must not revive playback.
	player.Push("stale-frame")
	player.MarkInputComplete()

	time.Sleep(100 * time.Millisecond)
	if frames := socket.mediaFrames(); len(frames) != 0 {
		t.Fatalf("expected no media after stop, got %v", frames)
	}
	if player.IsPlaying() {
		t.Fatalf("expected stopped player to stay idle")
	}
	if got := doneCalls.Load(); got != 0 {
		t.Fatalf("expected no completion callback after stop, got %d", got)
	}
	if socket.clearCount() != 1 {
		t.Fatalf("expected exactly one clear frame, got %d", socket.clearCount())
	}
}

func TestPlayerPacesFrames(t *testing.T) {
	socket := &fakeSocket{}
	doneCalls := atomic.Int32{}
	player := NewPlayer(socket, "MZ123", func() { doneCalls.Add(1) })

	start := time.Now()
	for range 5 {
		player.Push("frame")
	}
	player.MarkInputComplete()
	waitFor(t, func() bool { return doneCalls.Load() == 1 }, "paced playback completion")

	// 5 frames at 20ms each should take at least 4 inter-frame gaps.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("expected paced playback to take at least 80ms, took %s", elapsed)
	}
}

func TestPlayerTreatsWriteErrorAsPlaybackDone(t *testing.T) {
	socket := &fakeSocket{writeErr: errors.New("write: broken pipe")}
	doneCalls := atomic.Int32{}
	player := NewPlayer(socket, "MZ123", func() { doneCalls.Add(1) })

	player.Push("frame")

	waitFor(t, func() bool { return doneCalls.Load() == 1 }, "completion after write error")
}
