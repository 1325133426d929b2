package callflow

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parleyvoice/parley/core/audio"
)

// MediaStreamWriter is the outbound half of the telephony socket the
// player needs: paced media frames and the buffer-clearing control
// frame.
type MediaStreamWriter interface {
	WriteMedia(streamSID, payload string) error
	WriteClear(streamSID string) error
}

const playerIdlePoll = 10 * time.Millisecond

// Player paces base64 audio chunks onto the telephony socket at the
// frame rate of the call so barge-in can cut playback short. Chunks
// are buffered as they arrive from synthesis and drained by a single
// goroutine, one frame every 20ms.
type Player struct {
	socket    MediaStreamWriter
	streamSID string
	onDone    func()

	mu        sync.Mutex
	chunks    []string
	next      int
	inputDone bool
	started   bool
	stopped   bool
	cancel    context.CancelFunc

	finished  atomic.Bool
	drainDone chan struct{}
}

// NewPlayer prepares a player for one agent turn. onDone is invoked
// exactly once, after the last buffered frame has been written, unless
// playback is cancelled first.
func NewPlayer(socket MediaStreamWriter, streamSID string, onDone func()) *Player {
	return &Player{
		socket:    socket,
		streamSID: streamSID,
		onDone:    onDone,
		drainDone: make(chan struct{}),
	}
}

// Push buffers one synthesized chunk. The drain goroutine is started
// lazily on the first chunk, so no outbound frame is ever written
// before synthesis has produced audio. Chunks arriving after
// StopAndClear are discarded; a stopped player never plays again.
func (p *Player) Push(chunk string) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.chunks = append(p.chunks, chunk)
	p.mu.Unlock()
	p.ensureDraining()
}

// MarkInputComplete signals that no further chunks will arrive. The
// drain finishes the buffered frames and then fires the completion
// callback.
func (p *Player) MarkInputComplete() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.inputDone = true
	p.mu.Unlock()
	p.ensureDraining()
}

// IsPlaying reports whether the drain goroutine has started and not
// yet finished.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	return started && !p.finished.Load()
}

// StopAndClear cancels the drain, discards the remaining buffer and
// tells the telephony provider to drop any frames it has already
// buffered on its side. Stopping is terminal: late synthesis
// callbacks racing the stop cannot restart playback, so no media
// frame ever follows the clear frame. The completion callback does
// not fire for a stopped player.
func (p *Player) StopAndClear() error {
	p.mu.Lock()
	p.stopped = true
	started := p.started
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		<-p.drainDone
	}

	p.mu.Lock()
	p.chunks = nil
	p.next = 0
	p.mu.Unlock()

	if err := p.socket.WriteClear(p.streamSID); err != nil {
		return err
	}
	return nil
}

func (p *Player) ensureDraining() {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	go p.drain(ctx)
}

func (p *Player) drain(ctx context.Context) {
	defer close(p.drainDone)
	defer p.finished.Store(true)

	frameInterval := time.Duration(audio.FrameDurationMs) * time.Millisecond
	for {
		p.mu.Lock()
		var chunk string
		hasChunk := p.next < len(p.chunks)
		if hasChunk {
			chunk = p.chunks[p.next]
			p.next++
		}
		inputDone := p.inputDone
		p.mu.Unlock()

		switch {
		case hasChunk:
			if err := p.socket.WriteMedia(p.streamSID, chunk); err != nil {
				logger.Error("Failed to write media frame, ending playback", "error", err)
				p.onDone()
				return
			}
			if !sleepUnlessCancelled(ctx, frameInterval) {
				return
			}
		case inputDone:
			p.onDone()
			return
		default:
			if !sleepUnlessCancelled(ctx, playerIdlePoll) {
				return
			}
		}
	}
}

func sleepUnlessCancelled(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
