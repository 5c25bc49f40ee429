// Package anthropic implements domain.AIClient over the Anthropic messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-exam-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/config"
	"github.com/fairyhunter13/ai-exam-evaluator/internal/domain"
)

const (
	apiVersion   = "2023-06-01"
	messagesPath = "/v1/messages"
)

// Client calls the Anthropic messages API with prompt caching and
// exponential-backoff retries on transient failures.
type Client struct {
	cfg config.Config
	hc  *http.Client
}

// New constructs a client with the configured request timeout.
func New(cfg config.Config) *Client {
	timeout := cfg.AITimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{cfg: cfg, hc: &http.Client{Timeout: timeout}}
}

type systemBlock struct {
	Type         string          `json:"type"`
	Text         string          `json:"text"`
	CacheControl *map[string]any `json:"cache_control,omitempty"`
}

type messagesRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	System      []systemBlock `json:"system"`
	Messages    []message     `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens              int `json:"input_tokens"`
		OutputTokens             int `json:"output_tokens"`
		CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
		CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	} `json:"usage"`
}

func (c *Client) backoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsedTime, initialInterval, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsedTime
	expo.InitialInterval = initialInterval
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	return expo
}

// Send runs one messages call. 429 and 5xx responses and transport errors
// retry with backoff; other 4xx responses fail immediately.
func (c *Client) Send(ctx context.Context, system, user string, opts domain.SendOptions) (domain.Completion, error) {
	if c.cfg.AnthropicAPIKey == "" {
		return domain.Completion{}, fmt.Errorf("%w: ANTHROPIC_API_KEY missing", domain.ErrInvalidArgument)
	}

	sys := systemBlock{Type: "text", Text: system}
	if opts.CacheSystem {
		cc := map[string]any{"type": "ephemeral"}
		sys.CacheControl = &cc
	}
	reqBody := messagesRequest{
		Model:       c.cfg.AnthropicModel,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		System:      []systemBlock{sys},
		Messages:    []message{{Role: "user", Content: user}},
	}
	b, err := json.Marshal(reqBody)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("%w: marshal request: %v", domain.ErrInternal, err)
	}

	var out messagesResponse
	op := func() error {
		start := time.Now()
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AnthropicBaseURL+messagesPath, bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		r.Header.Set("x-api-key", c.cfg.AnthropicAPIKey)
		r.Header.Set("anthropic-version", apiVersion)
		r.Header.Set("Content-Type", "application/json")

		resp, err := c.hc.Do(r)
		outcome := "ok"
		defer func() {
			observability.ObserveAIRequest("messages", outcome, time.Since(start))
		}()
		if err != nil {
			outcome = "transport_error"
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
			}
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			outcome = "read_error"
			return err
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			outcome = "rate_limited"
			slog.Warn("reasoning service rate limited",
				slog.Int("status", resp.StatusCode),
				slog.String("request_id", resp.Header.Get("request-id")))
			return fmt.Errorf("%w: status 429", domain.ErrUpstreamRateLimit)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			outcome = "client_error"
			snippet := string(bodyBytes)
			if len(snippet) > 512 {
				snippet = snippet[:512]
			}
			slog.Error("reasoning service 4xx",
				slog.Int("status", resp.StatusCode),
				slog.String("body", snippet))
			return backoff.Permanent(fmt.Errorf("messages status %d", resp.StatusCode))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			outcome = "server_error"
			slog.Error("reasoning service non-2xx", slog.Int("status", resp.StatusCode))
			return fmt.Errorf("messages status %d", resp.StatusCode)
		}

		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			outcome = "decode_error"
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	bo := backoff.WithContext(c.backoffConfig(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return domain.Completion{}, fmt.Errorf("anthropic api failed: %w", err)
	}

	var text string
	for _, block := range out.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return domain.Completion{}, errors.New("empty content from anthropic api")
	}

	completion := domain.Completion{
		Content: text,
		Model:   out.Model,
		Usage: domain.Usage{
			InputTokens:      out.Usage.InputTokens,
			OutputTokens:     out.Usage.OutputTokens,
			CacheWriteTokens: out.Usage.CacheCreationInputTokens,
			CacheReadTokens:  out.Usage.CacheReadInputTokens,
		},
	}
	u := completion.Usage
	cost := c.cfg.AIPricing().Cost(u.InputTokens, u.OutputTokens, u.CacheWriteTokens, u.CacheReadTokens)
	observability.ObserveAIUsage(u.InputTokens, u.OutputTokens, cost)
	slog.Debug("reasoning service call successful",
		slog.String("model", completion.Model),
		slog.Int("input_tokens", completion.Usage.InputTokens),
		slog.Int("output_tokens", completion.Usage.OutputTokens),
		slog.Bool("cache_hit", completion.Usage.CacheReadTokens > 0))
	return completion, nil
}
