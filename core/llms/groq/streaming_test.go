package groq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/parleyvoice/parley/core/llms"
)

func sseHandler(t *testing.T, lines []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth header, got %q", got)
		}

		var body requestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("expected request body to decode, got %v", err)
		}
		if !body.Stream {
			t.Errorf("expected a streaming request")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
			flusher.Flush()
		}
	}
}

func deltaLine(content string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q}}]}`, content)
}

func collect(t *testing.T, stream llms.Stream) ([]string, error) {
	t.Helper()
	var chunks []string
	for chunk, err := range stream.Chunks(context.Background()) {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func TestStreamYieldsDeltaContentUntilDone(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{
		deltaLine("Hello"),
		deltaLine(" there"),
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
	}))
	defer server.Close()

	client := NewClient(WithAPIKey("test-key"), WithURL(server.URL))
	stream := client.PromptWithStream(context.Background(),
		llms.WithInstructions("be brief"),
		llms.WithMessages(llms.Message{Role: llms.RoleUser, Content: "hi"}),
	)

	chunks, err := collect(t, stream)
	if err != nil {
		t.Fatalf("expected clean stream, got %v", err)
	}
	if strings.Join(chunks, "") != "Hello there" {
		t.Fatalf("expected assembled reply, got %q", strings.Join(chunks, ""))
	}
}

func TestStreamSkipsEmptyDeltasAndKeepalives(t *testing.T) {
	server := httptest.NewServer(sseHandler(t, []string{
		`: keepalive`,
		`data: {"choices":[{"delta":{}}]}`,
		deltaLine("only"),
		`data: [DONE]`,
	}))
	defer server.Close()

	client := NewClient(WithAPIKey("test-key"), WithURL(server.URL))
	chunks, err := collect(t, client.PromptWithStream(context.Background()))
	if err != nil {
		t.Fatalf("expected clean stream, got %v", err)
	}
	if len(chunks) != 1 || chunks[0] != "only" {
		t.Fatalf("expected a single content chunk, got %v", chunks)
	}
}

func TestStreamReportsNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(WithAPIKey("test-key"), WithURL(server.URL))
	_, err := collect(t, client.PromptWithStream(context.Background()))
	if err == nil {
		t.Fatalf("expected error for non-200 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status code in error, got %v", err)
	}
}

func TestStreamSystemPromptComesFirst(t *testing.T) {
	var captured requestBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("expected request body to decode, got %v", err)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client := NewClient(WithAPIKey("test-key"), WithURL(server.URL))
	_, err := collect(t, client.PromptWithStream(context.Background(),
		llms.WithInstructions("system prompt"),
		llms.WithMessages(
			llms.Message{Role: llms.RoleUser, Content: "one"},
			llms.Message{Role: llms.RoleAssistant, Content: "two"},
		),
	))
	if err != nil {
		t.Fatalf("expected clean stream, got %v", err)
	}

	if len(captured.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" || captured.Messages[0].Content != "system prompt" {
		t.Fatalf("expected system prompt first, got %+v", captured.Messages[0])
	}
	if captured.Messages[2].Role != "assistant" {
		t.Fatalf("expected history order preserved, got %+v", captured.Messages)
	}
}

func TestStreamYieldsCanceledOnContextCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		fmt.Fprint(w, deltaLine("partial")+"\n\n")
		flusher.Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(WithAPIKey("test-key"), WithURL(server.URL))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var chunks []string
	var streamErr error
	for chunk, err := range client.PromptWithStream(ctx).Chunks(ctx) {
		if err != nil {
			streamErr = err
			break
		}
		chunks = append(chunks, chunk)
		cancel()
	}

	if len(chunks) != 1 || chunks[0] != "partial" {
		t.Fatalf("expected the chunk before cancellation, got %v", chunks)
	}
	if streamErr != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", streamErr)
	}
}
