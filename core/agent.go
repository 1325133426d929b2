package callflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jinzhu/copier"

	"github.com/parleyvoice/parley/core/llms"
	"github.com/parleyvoice/parley/core/texttospeech"
	"github.com/parleyvoice/parley/core/tracing"
)

// DefaultSystemPrompt shapes replies for spoken delivery.
const DefaultSystemPrompt = "You are a helpful voice assistant. Keep your responses concise and conversational, as they will be spoken aloud. Avoid using markdown, bullet points, or other formatting that doesn't work well in speech. Be friendly and natural."

// ellipsis marks a reply that was cut short by barge-in when stored in
// the conversation history.
const ellipsis = "…"

// StreamingLLM produces a token stream for the conversation so far.
type StreamingLLM interface {
	PromptWithStream(ctx context.Context, opts ...llms.PromptOption) llms.Stream
}

// Agent runs one reply pipeline per caller turn: it streams tokens
// from the LLM, forwards them to a pooled synthesis session, and paces
// the returned audio onto the call. At most one turn is in flight at a
// time; starting a new turn or a barge-in cancels the previous one
// synchronously.
type Agent struct {
	socket       MediaStreamWriter
	streamSID    string
	pool         *texttospeech.Pool
	llm          StreamingLLM
	calltracer   *tracing.Tracer
	systemPrompt string
	onTurnDone   func()

	mu      sync.Mutex
	history []llms.Message
	turn    *agentTurn
}

type agentTurn struct {
	number int
	cancel context.CancelFunc

	tts    texttospeech.SpeechSession
	player *Player

	// active guards teardown so exactly one of playback completion,
	// barge-in reset, or mid-stream failure finishes the turn.
	active atomic.Bool

	llmDone chan struct{}
	// partial and committed are written by the generation goroutine
	// and read only after llmDone is closed.
	partial   string
	committed bool

	startedAt     time.Time
	gotFirstToken bool
	gotFirstAudio atomic.Bool
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithSystemPrompt overrides the default system prompt.
func WithSystemPrompt(prompt string) AgentOption {
	return func(a *Agent) {
		if prompt != "" {
			a.systemPrompt = prompt
		}
	}
}

// NewAgent wires an agent to one call. onTurnDone is invoked whenever
// a turn finishes for any reason other than an explicit reset, so the
// loop can hand the floor back to the caller.
func NewAgent(
	socket MediaStreamWriter,
	streamSID string,
	pool *texttospeech.Pool,
	llm StreamingLLM,
	calltracer *tracing.Tracer,
	onTurnDone func(),
	opts ...AgentOption,
) *Agent {
	agent := &Agent{
		socket:       socket,
		streamSID:    streamSID,
		pool:         pool,
		llm:          llm,
		calltracer:   calltracer,
		systemPrompt: DefaultSystemPrompt,
		onTurnDone:   onTurnDone,
	}
	for _, opt := range opts {
		opt(agent)
	}
	return agent
}

// History returns a copy of the conversation so far.
func (a *Agent) History() []llms.Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	var history []llms.Message
	if err := copier.Copy(&history, &a.history); err != nil {
		logger.Error("Failed to copy conversation history", "error", err)
		return nil
	}
	return history
}

// StartTurn begins a reply to the given transcript. Any turn still in
// flight is reset first. The transcript is recorded in the history
// before generation starts so the LLM sees it.
func (a *Agent) StartTurn(ctx context.Context, transcript string) error {
	a.ResetTurn()

	number := a.calltracer.BeginTurn(transcript)
	a.mu.Lock()
	a.history = append(a.history, llms.Message{Role: llms.RoleUser, Content: transcript})
	a.mu.Unlock()

	turn := &agentTurn{
		number:    number,
		llmDone:   make(chan struct{}),
		startedAt: time.Now(),
	}
	turn.active.Store(true)
	turn.player = NewPlayer(a.socket, a.streamSID, func() { a.finishPlayback(turn) })

	a.calltracer.Begin(number, "tts_pool")
	session, err := a.pool.Acquire(ctx,
		func(audioB64 string) { a.handleAudio(turn, audioB64) },
		func() { a.handleSynthesisDone(turn) },
	)
	a.calltracer.End(number, "tts_pool")
	if err != nil {
		a.calltracer.CancelTurn(number)
		return err
	}
	turn.tts = session

	llmCtx, cancel := context.WithCancel(ctx)
	turn.cancel = cancel

	a.mu.Lock()
	a.turn = turn
	a.mu.Unlock()

	a.calltracer.Begin(number, "llm")
	go a.generate(llmCtx, turn)
	return nil
}

// ResetTurn cancels the turn in flight, if any, in pipeline order:
// token generation first, then synthesis, then playback. It blocks
// until the generation goroutine has exited, so on return no further
// audio can reach the socket. If at least one token had been produced
// the partial reply is kept in the history, marked with an ellipsis.
func (a *Agent) ResetTurn() {
	a.mu.Lock()
	turn := a.turn
	a.mu.Unlock()
	if turn == nil {
		return
	}

	turn.cancel()
	<-turn.llmDone

	if turn.active.CompareAndSwap(true, false) {
		a.calltracer.CancelTurn(turn.number)
		if err := turn.tts.Cancel(); err != nil {
			logger.Warn("Failed to cancel synthesis session", "error", err)
		}
		if turn.player.IsPlaying() {
			if err := turn.player.StopAndClear(); err != nil {
				logger.Warn("Failed to clear playback", "error", err)
			}
		}
		if !turn.committed && turn.partial != "" {
			a.mu.Lock()
			a.history = append(a.history, llms.Message{
				Role:    llms.RoleAssistant,
				Content: turn.partial + ellipsis,
			})
			a.mu.Unlock()
		}
	}

	a.clearTurn(turn)
}

func (a *Agent) generate(ctx context.Context, turn *agentTurn) {
	var response strings.Builder
	defer func() {
		turn.partial = response.String()
		close(turn.llmDone)
	}()

	messages := a.History()
	stream := a.llm.PromptWithStream(ctx,
		llms.WithInstructions(a.systemPrompt),
		llms.WithMessages(messages...),
	)

	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			logger.Error("LLM stream failed mid-turn", "error", err)
			a.failTurn(turn)
			return
		}
		if !turn.active.Load() {
			return
		}
		if !turn.gotFirstToken {
			turn.gotFirstToken = true
			a.calltracer.Mark(turn.number, "llm_first_token")
			a.calltracer.Begin(turn.number, "tts")
			logger.Debug("First LLM token",
				"turn", turn.number,
				"elapsed", time.Since(turn.startedAt),
			)
		}
		response.WriteString(chunk)
		if err := turn.tts.SendText(chunk); err != nil {
			logger.Warn("Failed to forward chunk to synthesis", "error", err)
		}
	}
	if ctx.Err() != nil || !turn.active.Load() {
		return
	}

	if response.Len() == 0 {
		logger.Warn("LLM stream produced no tokens, ending turn", "turn", turn.number)
		a.failTurn(turn)
		return
	}

	a.calltracer.End(turn.number, "llm")
	if err := turn.tts.Flush(); err != nil {
		logger.Warn("Failed to flush synthesis session", "error", err)
	}

	turn.committed = true
	a.mu.Lock()
	a.history = append(a.history, llms.Message{
		Role:    llms.RoleAssistant,
		Content: response.String(),
	})
	a.mu.Unlock()
}

func (a *Agent) handleAudio(turn *agentTurn, audioB64 string) {
	if !turn.active.Load() {
		return
	}
	if turn.gotFirstAudio.CompareAndSwap(false, true) {
		a.calltracer.Mark(turn.number, "tts_first_audio")
		a.calltracer.Begin(turn.number, "player")
	}
	turn.player.Push(audioB64)
}

func (a *Agent) handleSynthesisDone(turn *agentTurn) {
	if !turn.active.Load() {
		return
	}
	a.calltracer.End(turn.number, "tts")
	turn.player.MarkInputComplete()
}

func (a *Agent) finishPlayback(turn *agentTurn) {
	if !turn.active.CompareAndSwap(true, false) {
		return
	}
	a.calltracer.End(turn.number, "player")
	if err := turn.tts.Cancel(); err != nil {
		logger.Warn("Failed to release synthesis session", "error", err)
	}
	a.clearTurn(turn)
	a.onTurnDone()
}

// failTurn tears the pipeline down after an unrecoverable mid-stream
// error or a completion that produced no text. Nothing is recorded in
// the history and the loop is told the turn is over so the caller
// gets the floor back.
func (a *Agent) failTurn(turn *agentTurn) {
	if !turn.active.CompareAndSwap(true, false) {
		return
	}
	a.calltracer.CancelTurn(turn.number)
	if err := turn.tts.Cancel(); err != nil {
		logger.Warn("Failed to cancel synthesis session", "error", err)
	}
	if turn.player.IsPlaying() {
		if err := turn.player.StopAndClear(); err != nil {
			logger.Warn("Failed to clear playback", "error", err)
		}
	}
	a.clearTurn(turn)
	a.onTurnDone()
}

func (a *Agent) clearTurn(turn *agentTurn) {
	a.mu.Lock()
	if a.turn == turn {
		a.turn = nil
	}
	a.mu.Unlock()
}
