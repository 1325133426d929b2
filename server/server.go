// Package server exposes the HTTP surface of the voice runtime: the
// TwiML webhook, the media-stream WebSocket, outbound call placement,
// and the trace inspection endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/parleyvoice/parley/config"
	callflow "github.com/parleyvoice/parley/core"
	"github.com/parleyvoice/parley/core/llms/groq"
	"github.com/parleyvoice/parley/core/speechtotext/deepgram"
	"github.com/parleyvoice/parley/core/telephony"
	"github.com/parleyvoice/parley/core/texttospeech"
	"github.com/parleyvoice/parley/core/texttospeech/elevenlabs"
	"github.com/parleyvoice/parley/core/tracing"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Telephony providers connect without a browser origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server serves calls for one configured deployment.
type Server struct {
	cfg  config.Config
	http *http.Server
}

// New builds the server and its routes.
func New(cfg config.Config) *Server {
	s := &Server{cfg: cfg}

	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/twiml", s.handleTwiML).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/ws", s.handleMediaStream)
	router.HandleFunc("/trace/latest", s.handleLatestTrace).Methods(http.MethodGet)
	router.HandleFunc("/call/{number}", s.handleOutboundCall).Methods(http.MethodPost)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           otelhttp.NewHandler(router, "parley"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to shut down http server cleanly", "error", err)
		}
	}()

	logger.Info("Listening", "addr", s.http.Addr, "public_url", s.cfg.PublicURL)
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleTwiML(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/xml")
	fmt.Fprint(w, telephony.ConnectStreamTwiML(s.cfg.PublicURL))
}

// handleMediaStream upgrades the provider's WebSocket and runs the
// call's event loop until the stream ends. Each call gets its own
// recognizer, LLM client, synthesis pool, and tracer.
func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade media stream", "error", err)
		return
	}

	socket := telephony.NewConn(ws)

	recognizer := deepgram.NewTurnDetectionClient(
		deepgram.WithAPIKey(s.cfg.DeepgramAPIKey),
	)
	llm := groq.NewClient(
		groq.WithAPIKey(s.cfg.GroqAPIKey),
	)

	ttsOpts := []elevenlabs.ClientOption{elevenlabs.WithAPIKey(s.cfg.ElevenLabsAPIKey)}
	if s.cfg.ElevenLabsVoiceID != "" {
		ttsOpts = append(ttsOpts, elevenlabs.WithVoiceID(s.cfg.ElevenLabsVoiceID))
	}
	tts := elevenlabs.NewClient(ttsOpts...)
	pool := texttospeech.NewPool(tts.Dialer())

	loop := callflow.NewLoop(socket, recognizer, pool, llm,
		callflow.WithTraceDir(s.cfg.TraceDir),
		callflow.WithLoopSystemPrompt(s.cfg.SystemPrompt),
	)

	if err := loop.Run(r.Context()); err != nil {
		logger.Error("Call ended with error", "error", err)
	}
}

func (s *Server) handleLatestTrace(w http.ResponseWriter, _ *http.Request) {
	data, err := tracing.Latest(s.cfg.TraceDir)
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "no call traces recorded yet", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to read trace", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleOutboundCall(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]

	callSID, err := telephony.StartOutboundCall(telephony.CallerConfig{
		AccountSID: s.cfg.TwilioAccountSID,
		AuthToken:  s.cfg.TwilioAuthToken,
		FromNumber: s.cfg.TwilioFromNumber,
		PublicURL:  s.cfg.PublicURL,
	}, number)
	if err != nil {
		logger.Error("Failed to place outbound call", "to", number, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	logger.Info("Placed outbound call", "to", number, "call_sid", callSID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"call_sid": callSID})
}
