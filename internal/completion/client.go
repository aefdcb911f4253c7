package completion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/leonardotrapani/hyprcoach/internal/conversation"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

// DefaultBaseURL is an OpenAI-compatible router that serves the default free-tier candidates.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// DefaultModels is the candidate list in preference order.
var DefaultModels = []string{
	"meta-llama/llama-3.3-70b-instruct:free",
	"google/gemini-2.0-flash-exp:free",
	"mistralai/mistral-small-3.1-24b-instruct:free",
	"qwen/qwen-2.5-72b-instruct:free",
}

// Config holds completion client configuration
type Config struct {
	BaseURL       string
	APIKey        string
	Models        []string
	Temperature   float32
	MaxTokens     int
	SystemPrompt  string
	HistoryWindow int
	HTTPClient    *http.Client
}

// Result is a successful completion
type Result struct {
	Text     string
	Model    string
	Attempts int                // requests issued, including the winner
	Failures []CandidateFailure // candidates that failed before the winner
}

// Client obtains one answer per call, falling back across candidate models.
// It never touches the conversation store; the caller appends the result.
type Client struct {
	mu     sync.RWMutex
	config Config
	client *openai.Client
}

func New(cfg Config) (*Client, error) {
	c := &Client{}
	if err := c.Update(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// Update swaps configuration, e.g. after a config file reload.
// Requests already in flight keep the configuration they started with.
func (c *Client) Update(cfg Config) error {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return ErrMissingCredential
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if len(cfg.Models) == 0 {
		cfg.Models = append([]string(nil), DefaultModels...)
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = conversation.DefaultWindow
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}

	c.mu.Lock()
	c.config = cfg
	c.client = openai.NewClientWithConfig(clientConfig)
	c.mu.Unlock()
	return nil
}

// Models returns the current candidate list.
func (c *Client) Models() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.config.Models...)
}

// Complete sends history plus text and returns the first non-empty answer.
func (c *Client) Complete(ctx context.Context, history []conversation.Turn, text string) (Result, error) {
	c.mu.RLock()
	cfg := c.config
	client := c.client
	c.mu.RUnlock()

	if len(cfg.Models) == 0 {
		return Result{}, ErrNoCandidates
	}

	messages := BuildMessages(cfg.SystemPrompt, history, cfg.HistoryWindow, text)

	var result Result
	for _, model := range cfg.Models {
		if ctx.Err() != nil {
			return Result{}, ErrCanceled
		}

		result.Attempts++
		start := time.Now()
		answer, failure := c.attempt(ctx, client, cfg, model, messages)
		if ctx.Err() != nil {
			log.Debug().Str("model", model).Msg("Completion: request canceled")
			return Result{}, ErrCanceled
		}
		if failure != nil {
			log.Warn().Str("model", model).Int("status", failure.StatusCode).Bool("auth", failure.Auth).
				Dur("elapsed", time.Since(start)).Msgf("Completion: candidate failed: %s", failure.Reason)
			result.Failures = append(result.Failures, *failure)
			continue
		}

		log.Info().Str("model", model).Int("attempts", result.Attempts).Dur("elapsed", time.Since(start)).
			Msg("Completion: answer received")
		result.Text = answer
		result.Model = model
		return result, nil
	}

	ex := &ExhaustedError{Failures: result.Failures}
	for _, f := range result.Failures {
		if f.Auth {
			ex.AuthFailed = true
			break
		}
	}
	return Result{}, ex
}

// attempt streams one candidate into a fresh accumulator. Any text gathered
// by a failing attempt is dropped with it.
func (c *Client) attempt(ctx context.Context, client *openai.Client, cfg Config, model string, messages []openai.ChatCompletionMessage) (string, *CandidateFailure) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Stream:      true,
	}

	stream, err := client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", candidateFailure(model, err)
	}
	defer stream.Close()

	var acc accumulator
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", candidateFailure(model, fmt.Errorf("stream interrupted: %w", err))
		}
		for _, choice := range resp.Choices {
			acc.text.WriteString(choice.Delta.Content)
			if choice.FinishReason != "" {
				acc.done = true
			}
		}
	}
	// the library reports a dropped connection and [DONE] alike as io.EOF
	if !acc.done {
		return "", &CandidateFailure{Model: model, Reason: "stream ended before completion"}
	}

	answer := strings.TrimSpace(acc.text.String())
	if answer == "" {
		return "", &CandidateFailure{Model: model, Reason: "empty response"}
	}
	return answer, nil
}

// accumulator is per-attempt stream state. done is set once a choice
// reports a finish reason.
type accumulator struct {
	text strings.Builder
	done bool
}

func candidateFailure(model string, err error) *CandidateFailure {
	f := &CandidateFailure{Model: model, Reason: err.Error()}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		f.StatusCode = apiErr.HTTPStatusCode
		if apiErr.Message != "" {
			f.Reason = apiErr.Message
		}
	case errors.As(err, &reqErr):
		f.StatusCode = reqErr.HTTPStatusCode
	}
	f.Auth = f.StatusCode == http.StatusUnauthorized || f.StatusCode == http.StatusForbidden
	return f
}
