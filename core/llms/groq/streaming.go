package groq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/parleyvoice/parley/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultURL   = "https://api.groq.com/openai/v1/chat/completions"
	defaultModel = "llama-3.3-70b-versatile"

	maxCompletionTokens = 500
	temperature         = 0.7
)

// Client streams chat completions from Groq's OpenAI-compatible endpoint.
type Client struct {
	apiKey string
	model  string
	url    string
}

type ClientOption func(*Client)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithURL points the client at a different OpenAI-compatible endpoint.
func WithURL(url string) ClientOption {
	return func(c *Client) { c.url = url }
}

func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		model: defaultModel,
		url:   defaultURL,
	}
	if apiKey, ok := os.LookupEnv("GROQ_API_KEY"); ok {
		client.apiKey = apiKey
	}
	if model, ok := os.LookupEnv("LLM_MODEL"); ok {
		client.model = model
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// PromptWithStream builds a streaming completion over the given messages.
// No network traffic happens until Chunks is iterated.
func (c *Client) PromptWithStream(_ context.Context, opts ...llms.PromptOption) llms.Stream {
	options := llms.PromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	messages := make([]message, 0, len(options.Messages)+1)
	if options.Instructions != "" {
		messages = append(messages, message{Role: "system", Content: options.Instructions})
	}
	for _, msg := range options.Messages {
		messages = append(messages, message{Role: string(msg.Role), Content: msg.Content})
	}

	return &Stream{
		apiKey:   c.apiKey,
		model:    c.model,
		url:      c.url,
		messages: messages,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type requestBody struct {
	Model               string    `json:"model"`
	Messages            []message `json:"messages"`
	Stream              bool      `json:"stream"`
	MaxCompletionTokens int       `json:"max_completion_tokens,omitempty"`
	Temperature         float64   `json:"temperature,omitempty"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

type Stream struct {
	apiKey string
	model  string
	url    string

	messages []message
}

func (s *Stream) Chunks(ctx context.Context) func(func(string, error) bool) {
	return func(yield func(string, error) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", s.model))

		requestBodyBytes, err := json.Marshal(requestBody{
			Model:               s.model,
			Messages:            s.messages,
			Stream:              true,
			MaxCompletionTokens: maxCompletionTokens,
			Temperature:         temperature,
		})
		if err != nil {
			err = fmt.Errorf("error marshalling JSON: %w", err)
			span.RecordError(err)
			yield("", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			err = fmt.Errorf("error creating HTTP request: %w", err)
			span.RecordError(err)
			yield("", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.apiKey)

		client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)}

		requestStarted := time.Now()
		span.AddEvent("request started")
		resp, err := client.Do(req)
		if err != nil {
			err = fmt.Errorf("error sending request: %w", err)
			span.RecordError(err)
			yield("", err)
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			errorBody, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				err = fmt.Errorf("llm request failed with status %d", resp.StatusCode)
			} else {
				err = fmt.Errorf("llm request failed with status %d: %s", resp.StatusCode, string(errorBody))
			}
			span.RecordError(err)
			yield("", err)
			return
		}

		firstToken := true
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				return
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				logger.WarnContext(ctx, "Failed to unmarshal llm stream chunk",
					"component", "llm", "error", err)
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			if content := chunk.Choices[0].Delta.Content; content != "" {
				if firstToken {
					firstToken = false
					span.AddEvent("received first chunk")
					span.SetAttributes(attribute.Float64("response.request_to_first_token_time",
						time.Since(requestStarted).Seconds()))
				}
				if !yield(content, nil) {
					return
				}
			}
			if chunk.Choices[0].FinishReason != nil {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				yield("", context.Canceled)
				return
			}
			err = fmt.Errorf("error reading llm stream: %w", err)
			span.RecordError(err)
			yield("", err)
		}
	}
}
