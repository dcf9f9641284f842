package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chatstack/chat-service/internal/config"
	registryinference "github.com/chatstack/chat-service/internal/registry/inference"
	"github.com/chatstack/chat-service/internal/security"
)

func init() {
	registryinference.Register(registryinference.Plugin{
		Name:   "huggingface",
		Loader: load,
	})
}

func load(ctx context.Context) (registryinference.Client, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.HFAPIKey == "" {
		return nil, fmt.Errorf("huggingface inference: CHAT_SERVICE_HF_API_KEY is required")
	}
	return &Client{
		apiKey:  cfg.HFAPIKey,
		model:   cfg.HFModel,
		baseURL: strings.TrimRight(cfg.HFRouterURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.InferenceTimeout,
		},
	}, nil
}

// Client calls a HuggingFace router with an OpenAI-style chat-completions request.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func (c *Client) ModelName() string {
	return c.model
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := c.generate(ctx, prompt)
	if security.InferenceLatency != nil {
		security.InferenceLatency.WithLabelValues(c.model).Observe(time.Since(start).Seconds())
	}
	if err != nil && security.InferenceFailuresTotal != nil {
		security.InferenceFailuresTotal.Inc()
	}
	return text, err
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &registryinference.UpstreamError{Detail: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &registryinference.UpstreamError{StatusCode: resp.StatusCode, Detail: fmt.Sprintf("read response: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &registryinference.UpstreamError{StatusCode: resp.StatusCode, Detail: truncate(string(body), 512)}
	}

	text, ok := decodeGenerated(body)
	if !ok {
		return "", &registryinference.UpstreamError{StatusCode: resp.StatusCode, Detail: "unrecognized response shape"}
	}
	return text, nil
}

// decodeGenerated resolves the router's inconsistently shaped success bodies:
// chat-completion choices, the legacy generated_text array, summarization
// output, and finally the raw body as a last resort.
func decodeGenerated(body []byte) (string, bool) {
	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &completion); err == nil && len(completion.Choices) > 0 {
		return completion.Choices[0].Message.Content, true
	}

	var generated []struct {
		GeneratedText string `json:"generated_text"`
	}
	if err := json.Unmarshal(body, &generated); err == nil && len(generated) > 0 {
		return generated[0].GeneratedText, true
	}

	var summary struct {
		SummaryText string `json:"summary_text"`
	}
	if err := json.Unmarshal(body, &summary); err == nil && summary.SummaryText != "" {
		return summary.SummaryText, true
	}

	if text := strings.TrimSpace(string(body)); text != "" {
		return text, true
	}
	return "", false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

var _ registryinference.Client = (*Client)(nil)
