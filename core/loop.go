package callflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/parleyvoice/parley/core/audio"
	"github.com/parleyvoice/parley/core/events"
	"github.com/parleyvoice/parley/core/speechtotext"
	"github.com/parleyvoice/parley/core/telephony"
	"github.com/parleyvoice/parley/core/texttospeech"
	"github.com/parleyvoice/parley/core/tracing"
)

const eventQueueCapacity = 64

// TelephonySocket is the call-side media stream: inbound frames out of
// ReadFrame, outbound audio and control frames through the writer half.
type TelephonySocket interface {
	MediaStreamWriter
	ReadFrame() ([]byte, error)
	Close() error
}

// Recognizer turns inbound call audio into turn-boundary callbacks.
type Recognizer interface {
	Listen(ctx context.Context, opts ...speechtotext.TurnDetectionOption) error
	SendAudio(audio []byte) error
	Close(ctx context.Context) error
}

// Loop serializes everything that happens on one call. Producers (the
// media reader, recognizer callbacks, the agent) push events onto a
// single queue; the loop applies each event to the state machine and
// performs the resulting actions, so call state is only ever touched
// from one goroutine.
type Loop struct {
	socket     TelephonySocket
	recognizer Recognizer
	pool       *texttospeech.Pool
	llm        StreamingLLM

	calltracer   *tracing.Tracer
	traceDir     string
	systemPrompt string

	queue chan events.Event
	state CallState
	agent *Agent

	// callID names logs and the trace artifact. It starts as a fresh
	// UUID and is replaced by the provider's stream SID once known.
	callID string
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithTraceDir sets the directory call trace files are written to. An
// empty directory disables trace persistence.
func WithTraceDir(dir string) LoopOption {
	return func(l *Loop) {
		l.traceDir = dir
	}
}

// WithLoopSystemPrompt overrides the system prompt the agent replies with.
func WithLoopSystemPrompt(prompt string) LoopOption {
	return func(l *Loop) {
		if prompt != "" {
			l.systemPrompt = prompt
		}
	}
}

// NewLoop assembles the event loop for one call.
func NewLoop(
	socket TelephonySocket,
	recognizer Recognizer,
	pool *texttospeech.Pool,
	llm StreamingLLM,
	opts ...LoopOption,
) *Loop {
	loop := &Loop{
		socket:       socket,
		recognizer:   recognizer,
		pool:         pool,
		llm:          llm,
		calltracer:   tracing.NewTracer(),
		systemPrompt: DefaultSystemPrompt,
		queue:        make(chan events.Event, eventQueueCapacity),
		callID:       uuid.NewString(),
	}
	for _, opt := range opts {
		opt(loop)
	}
	return loop
}

// Run drives the call until the stream stops or ctx is cancelled. It
// blocks for the lifetime of the call and always tears the call down
// before returning: media reader, agent turn, synthesis pool,
// recognizer, then the socket itself.
func (l *Loop) Run(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "call")
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go l.readMedia(ctx)

	var runErr error
	for {
		var event events.Event
		select {
		case event = <-l.queue:
		case <-ctx.Done():
			event = events.StreamStop{}
		}

		logger.DebugContext(ctx, "Handling event", "event", event.String())

		if start, ok := event.(events.StreamStart); ok {
			if err := l.startCall(ctx, start); err != nil {
				runErr = fmt.Errorf("failed to start call: %w", err)
				break
			}
		}

		state, actions := Transition(l.state, event)
		if state.Phase != l.state.Phase {
			logger.InfoContext(ctx, "Phase changed",
				"from", l.state.Phase.String(), "to", state.Phase.String())
		}
		l.state = state

		for _, action := range actions {
			l.perform(ctx, action)
		}

		if _, ok := event.(events.StreamStop); ok {
			break
		}
	}

	l.teardown(ctx, cancel)
	return runErr
}

func (l *Loop) startCall(ctx context.Context, start events.StreamStart) error {
	l.callID = start.StreamSID
	logger.InfoContext(ctx, "Stream started", "stream_sid", start.StreamSID)

	err := l.recognizer.Listen(ctx,
		speechtotext.WithEncodingInfo(audio.TelephonyEncodingInfo()),
		speechtotext.WithStartOfTurnCallback(func() {
			l.push(ctx, events.RecognizerStartOfTurn{})
		}),
		speechtotext.WithEndOfTurnCallback(func(transcript string) {
			l.push(ctx, events.RecognizerEndOfTurn{Transcript: transcript})
		}),
		speechtotext.WithInterimTranscriptCallback(func(transcript string) {
			logger.DebugContext(ctx, "Interim transcript", "transcript", transcript)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to open recognizer session: %w", err)
	}

	l.pool.Start(ctx)
	l.agent = NewAgent(
		l.socket,
		start.StreamSID,
		l.pool,
		l.llm,
		l.calltracer,
		func() { l.push(ctx, events.AgentTurnDone{}) },
		WithSystemPrompt(l.systemPrompt),
	)
	return nil
}

func (l *Loop) perform(ctx context.Context, action events.Action) {
	switch action := action.(type) {
	case events.FeedRecognizer:
		if err := l.recognizer.SendAudio(action.Audio); err != nil {
			logger.WarnContext(ctx, "Failed to feed recognizer, dropping frame", "error", err)
		}

	case events.StartAgentTurn:
		if l.agent == nil {
			logger.WarnContext(ctx, "No agent for this call, ignoring turn start")
			return
		}
		if err := l.agent.StartTurn(ctx, action.Transcript); err != nil {
			logger.ErrorContext(ctx, "Failed to start agent turn", "error", err)
			l.push(ctx, events.AgentTurnDone{})
		}

	case events.ResetAgentTurn:
		if l.agent != nil {
			l.agent.ResetTurn()
		}

	default:
		logger.WarnContext(ctx, "Ignoring unknown action", "action", action)
	}
}

// readMedia pumps inbound socket frames onto the event queue. A read
// error is treated as the remote hanging up.
func (l *Loop) readMedia(ctx context.Context) {
	for {
		raw, err := l.socket.ReadFrame()
		if err != nil {
			if ctx.Err() == nil {
				logger.InfoContext(ctx, "Media stream closed", "reason", err)
			}
			l.push(ctx, events.StreamStop{})
			return
		}

		event, err := telephony.ParseInboundFrame(raw)
		if err != nil {
			logger.WarnContext(ctx, "Discarding malformed frame", "error", err)
			continue
		}
		if event == nil {
			continue
		}

		l.push(ctx, event)
		if _, ok := event.(events.StreamStop); ok {
			return
		}
	}
}

func (l *Loop) push(ctx context.Context, event events.Event) {
	select {
	case l.queue <- event:
	case <-ctx.Done():
	}
}

func (l *Loop) teardown(ctx context.Context, cancel context.CancelFunc) {
	logger.InfoContext(ctx, "Tearing down call", "call_id", l.callID)

	cancel()
	if l.agent != nil {
		l.agent.ResetTurn()
	}
	l.pool.Stop()
	if err := l.recognizer.Close(context.WithoutCancel(ctx)); err != nil {
		logger.WarnContext(ctx, "Failed to close recognizer", "error", err)
	}
	if err := l.socket.Close(); err != nil {
		logger.WarnContext(ctx, "Failed to close telephony socket", "error", err)
	}

	if l.traceDir != "" {
		path, err := l.calltracer.Save(l.traceDir, l.callID)
		if err != nil {
			logger.WarnContext(ctx, "Failed to save call trace", "error", err)
		} else if path != "" {
			logger.InfoContext(ctx, "Saved call trace", "path", path)
		}
	}
}
