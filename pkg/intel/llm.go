package intel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/trapline/trapline/pkg/config"
	"github.com/trapline/trapline/pkg/httputil"
)

// llmClient is the shared transport for remote inference calls. Both the
// remote classifier and the remote extractor speak the OpenAI-compatible
// chat-completions protocol, so they share one client, one connection pool,
// and one rate limiter.
type llmClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
	limiter *rate.Limiter
}

// LLMOptions configures the remote inference transport.
type LLMOptions struct {
	Provider config.LLMProvider
	APIKey   string // Optional for Ollama
	Model    string
	BaseURL  string  // Optional override
	MaxRPS   float64 // 0 = unlimited
}

// DefaultTemperature keeps classification near-deterministic.
const llmTemperature = 0.1

func newLLMClient(opts LLMOptions) *llmClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		switch opts.Provider {
		case config.ProviderOllama:
			baseURL = "http://localhost:11434/v1" // OpenAI-compatible endpoint of Ollama
		case config.ProviderGroq:
			baseURL = "https://api.groq.com/openai/v1"
		case config.ProviderOpenAI:
			baseURL = "https://api.openai.com/v1"
		case config.ProviderOpenRouter, config.ProviderCustom:
			baseURL = "https://openrouter.ai/api/v1"
		default:
			baseURL = "https://openrouter.ai/api/v1"
		}
	}

	var limiter *rate.Limiter
	if opts.MaxRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.MaxRPS), 1)
	}

	return &llmClient{
		client:  httputil.InferenceClient(),
		baseURL: baseURL,
		apiKey:  opts.APIKey,
		model:   opts.Model,
		limiter: limiter,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// complete sends one system+user exchange and returns the raw completion
// text. Every failure mode (rate-limit wait cancelled, transport error,
// non-200, malformed body, empty choices) surfaces as an error so callers
// can fall back uniformly.
func (c *llmClient) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: llmTemperature,
		MaxTokens:   maxTokens,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer httputil.DrainAndClose(resp.Body)

	body, err := httputil.ReadResponseBody(resp.Body, httputil.MaxResponseSize)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unmarshal error: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}

	return result.Choices[0].Message.Content, nil
}

// extractJSON trims markdown fences and prose around a JSON object.
// LLMs wrap answers in ```json blocks often enough that this is the
// difference between a working remote path and constant fallback.
func extractJSON(content string) string {
	clean := strings.TrimSpace(content)
	if start := strings.Index(clean, "{"); start != -1 {
		clean = clean[start:]
	}
	if end := strings.LastIndex(clean, "}"); end != -1 {
		clean = clean[:end+1]
	}
	return clean
}
