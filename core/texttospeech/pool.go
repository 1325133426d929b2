package texttospeech

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultPoolSize = 1
	DefaultPoolTTL  = 8 * time.Second

	dialBackoff = time.Second
)

// SessionDialer opens a fresh synthesizer session with the given options
// already bound.
type SessionDialer func(ctx context.Context, opts ...SpeechSessionOption) (SpeechSession, error)

type poolEntry struct {
	session   SpeechSession
	createdAt time.Time
}

// Pool keeps up to size pre-opened synthesizer sessions so an agent turn
// never waits for the handshake. Warm entries idle with no-op callbacks;
// Acquire rebinds one to the caller. Entries older than the TTL are evicted
// because the upstream closes idle connections on its own schedule.
type Pool struct {
	dial SessionDialer
	size int
	ttl  time.Duration

	mu   sync.Mutex
	warm []poolEntry

	fillSignal chan struct{}
	cancel     context.CancelFunc
	fillDone   chan struct{}
	running    bool
}

type PoolOption func(*Pool)

func WithPoolSize(size int) PoolOption {
	return func(p *Pool) {
		if size > 0 {
			p.size = size
		}
	}
}

func WithTTL(ttl time.Duration) PoolOption {
	return func(p *Pool) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

func NewPool(dial SessionDialer, opts ...PoolOption) *Pool {
	pool := &Pool{
		dial:       dial,
		size:       DefaultPoolSize,
		ttl:        DefaultPoolTTL,
		fillSignal: make(chan struct{}, 1),
		fillDone:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(pool)
	}

	return pool
}

// Available reports the number of warm sessions ready to dispense.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.warm)
}

// Start launches the background fill loop. Call Stop to tear it down.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	ctx, p.cancel = context.WithCancel(ctx)
	go p.fillLoop(ctx)
}

// Acquire returns an open session with the caller's callbacks bound. Warm
// entries are dispensed in FIFO order; stale ones are cancelled on the way.
// With no fresh warm entry available, a new session is opened synchronously.
func (p *Pool) Acquire(ctx context.Context, onAudio func(audioB64 string), onDone func()) (SpeechSession, error) {
	ctx, span := tracer.Start(ctx, "acquire tts session")
	defer span.End()

	for {
		p.mu.Lock()
		if len(p.warm) == 0 {
			p.mu.Unlock()
			break
		}
		entry := p.warm[0]
		p.warm = p.warm[1:]
		p.mu.Unlock()

		age := time.Since(entry.createdAt)
		if age < p.ttl {
			entry.session.Rebind(onAudio, onDone)
			logger.InfoContext(ctx, "Dispensed warm tts session",
				"component", "tts_pool", "idle_ms", age.Milliseconds())
			p.triggerFill()
			return entry.session, nil
		}

		logger.InfoContext(ctx, "Discarded stale tts session",
			"component", "tts_pool", "idle_ms", age.Milliseconds())
		if err := entry.session.Cancel(); err != nil {
			logger.WarnContext(ctx, "Failed to cancel stale tts session",
				"component", "tts_pool", "error", err)
		}
	}

	logger.InfoContext(ctx, "Pool empty, opening fresh tts session", "component", "tts_pool")
	session, err := p.dial(ctx,
		WithAudioCallback(onAudio),
		WithSpeechEndedCallback(onDone),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open tts session: %w", err)
	}
	p.triggerFill()
	return session, nil
}

// Stop tears down the fill loop and cancels every remaining warm session.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	<-p.fillDone

	p.mu.Lock()
	warm := p.warm
	p.warm = nil
	p.mu.Unlock()

	for _, entry := range warm {
		if err := entry.session.Cancel(); err != nil {
			logger.Warn("Failed to cancel pooled tts session",
				"component", "tts_pool", "error", err)
		}
	}
}

func (p *Pool) triggerFill() {
	select {
	case p.fillSignal <- struct{}{}:
	default:
	}
}

func (p *Pool) fillLoop(ctx context.Context) {
	defer close(p.fillDone)

	for {
		p.evictStale(ctx)

		for p.shortfall() > 0 {
			if ctx.Err() != nil {
				return
			}

			session, err := p.dial(ctx,
				WithAudioCallback(func(string) {}),
				WithSpeechEndedCallback(func() {}),
			)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to pre-open tts session",
					"component", "tts_pool", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(dialBackoff):
				}
				continue
			}

			p.mu.Lock()
			p.warm = append(p.warm, poolEntry{session: session, createdAt: time.Now()})
			warmCount := len(p.warm)
			p.mu.Unlock()

			logger.InfoContext(ctx, "Warm tts session ready",
				"component", "tts_pool", "warm", warmCount, "target", p.size)
		}

		select {
		case <-ctx.Done():
			return
		case <-p.fillSignal:
		case <-time.After(p.ttl / 2):
			// periodic staleness sweep
		}
	}
}

func (p *Pool) shortfall() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size - len(p.warm)
}

func (p *Pool) evictStale(ctx context.Context) {
	p.mu.Lock()
	var fresh, stale []poolEntry
	for _, entry := range p.warm {
		if time.Since(entry.createdAt) < p.ttl {
			fresh = append(fresh, entry)
		} else {
			stale = append(stale, entry)
		}
	}
	p.warm = fresh
	p.mu.Unlock()

	for _, entry := range stale {
		logger.InfoContext(ctx, "Evicted stale tts session",
			"component", "tts_pool", "idle_ms", time.Since(entry.createdAt).Milliseconds())
		if err := entry.session.Cancel(); err != nil {
			logger.WarnContext(ctx, "Failed to cancel evicted tts session",
				"component", "tts_pool", "error", err)
		}
	}
}
