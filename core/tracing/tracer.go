// Package tracing records per-turn latency spans for one call and persists
// them as a JSON artifact. It is a passive sink: every method returns
// immediately and never blocks the call loop.
package tracing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Span is a named time range within a turn, in milliseconds since the
// turn's start.
type Span struct {
	Name    string   `json:"name"`
	StartMs float64  `json:"start_ms"`
	EndMs   *float64 `json:"end_ms"`
}

// Marker is a named point in time within a turn.
type Marker struct {
	Name   string  `json:"name"`
	TimeMs float64 `json:"time_ms"`
}

type turn struct {
	number     int
	transcript string
	startedAt  time.Time
	spans      []Span
	markers    []Marker
	cancelled  bool
}

// Tracer collects spans and markers for each agent turn of a single call.
type Tracer struct {
	mu      sync.Mutex
	turns   map[int]*turn
	counter int
}

func NewTracer() *Tracer {
	return &Tracer{turns: map[int]*turn{}}
}

// BeginTurn starts a new turn and returns its number.
func (t *Tracer) BeginTurn(transcript string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counter++
	t.turns[t.counter] = &turn{
		number:     t.counter,
		transcript: transcript,
		startedAt:  time.Now(),
	}
	return t.counter
}

// Begin opens a named span within the turn.
func (t *Tracer) Begin(turnNumber int, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	turn, ok := t.turns[turnNumber]
	if !ok {
		return
	}
	turn.spans = append(turn.spans, Span{Name: name, StartMs: turn.elapsedMs()})
}

// End closes the most recent open span with the given name.
func (t *Tracer) End(turnNumber int, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	turn, ok := t.turns[turnNumber]
	if !ok {
		return
	}
	ms := turn.elapsedMs()
	for i := len(turn.spans) - 1; i >= 0; i-- {
		if turn.spans[i].Name == name && turn.spans[i].EndMs == nil {
			turn.spans[i].EndMs = &ms
			return
		}
	}
}

// Mark records a point-in-time marker.
func (t *Tracer) Mark(turnNumber int, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	turn, ok := t.turns[turnNumber]
	if !ok {
		return
	}
	turn.markers = append(turn.markers, Marker{Name: name, TimeMs: turn.elapsedMs()})
}

// CancelTurn flags the turn as cancelled and closes all of its open spans
// at the current time.
func (t *Tracer) CancelTurn(turnNumber int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	turn, ok := t.turns[turnNumber]
	if !ok {
		return
	}
	turn.cancelled = true
	ms := turn.elapsedMs()
	for i := range turn.spans {
		if turn.spans[i].EndMs == nil {
			turn.spans[i].EndMs = &ms
		}
	}
}

func (turn *turn) elapsedMs() float64 {
	return float64(time.Since(turn.startedAt).Microseconds()) / 1000
}

type turnDocument struct {
	Turn       int      `json:"turn"`
	Transcript string   `json:"transcript"`
	Cancelled  bool     `json:"cancelled"`
	Spans      []Span   `json:"spans"`
	Markers    []Marker `json:"markers"`
}

type callDocument struct {
	CallID string         `json:"call_id"`
	Turns  []turnDocument `json:"turns"`
}

// Save writes the call artifact to dir/<callID>.json. With no recorded
// turns nothing is written and an empty path is returned.
func (t *Tracer) Save(dir, callID string) (string, error) {
	t.mu.Lock()
	turns := make([]*turn, 0, len(t.turns))
	for _, turn := range t.turns {
		turns = append(turns, turn)
	}
	t.mu.Unlock()

	if len(turns) == 0 {
		return "", nil
	}
	sort.Slice(turns, func(i, j int) bool { return turns[i].number < turns[j].number })

	document := callDocument{CallID: callID}
	for _, turn := range turns {
		document.Turns = append(document.Turns, turnDocument{
			Turn:       turn.number,
			Transcript: turn.transcript,
			Cancelled:  turn.cancelled,
			Spans:      turn.spans,
			Markers:    turn.markers,
		})
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create trace directory: %w", err)
	}

	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal trace: %w", err)
	}

	path := filepath.Join(dir, callID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write trace: %w", err)
	}
	return path, nil
}

// Latest returns the raw contents of the most recently modified artifact in
// dir, or os.ErrNotExist when there is none.
func Latest(dir string) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, os.ErrNotExist
	}

	var latestPath string
	var latestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latestPath == "" || info.ModTime().After(latestMod) {
			latestPath = filepath.Join(dir, entry.Name())
			latestMod = info.ModTime()
		}
	}
	if latestPath == "" {
		return nil, os.ErrNotExist
	}

	return os.ReadFile(latestPath)
}
