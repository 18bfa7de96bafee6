package opinion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/auramd-consensus-server/internal/domain"
)

const (
	anthropicSourceID = "Claude"
	anthropicVersion  = "2023-06-01"
)

// AnthropicClient produces diagnostic opinions through the Anthropic
// messages API.
type AnthropicClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	rateLimit  *rate.Limiter
}

// NewAnthropicClient creates a new Anthropic opinion source.
func NewAnthropicClient(config domain.AnthropicConfig) *AnthropicClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com"
	}
	if config.Model == "" {
		config.Model = "claude-3-sonnet-20240229"
	}
	if config.Timeout == 0 {
		config.Timeout = 45 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}

	return &AnthropicClient{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		model:   config.Model,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	System    string        `json:"system"`
	Messages  []chatMessage `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Name returns the stable source identifier used in consensus labeling.
func (c *AnthropicClient) Name() string {
	return anthropicSourceID
}

// Produce requests one diagnostic opinion for the case.
func (c *AnthropicClient) Produce(ctx context.Context, cc *domain.CaseContext) (*domain.RawOpinion, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, &domain.SourceUnavailableError{SourceID: anthropicSourceID, Err: err}
	}

	reqBody := messagesRequest{
		Model:     c.model,
		MaxTokens: 2000,
		System:    systemPrompt,
		Messages: []chatMessage{
			{Role: "user", Content: BuildCasePrompt(cc)},
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal messages request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create messages request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.SourceUnavailableError{SourceID: anthropicSourceID, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.SourceUnavailableError{SourceID: anthropicSourceID, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.SourceUnavailableError{
			SourceID: anthropicSourceID,
			Err:      fmt.Errorf("messages returned status %d: %s", resp.StatusCode, truncateBody(body)),
		}
	}

	var message messagesResponse
	if err := json.Unmarshal(body, &message); err != nil {
		return nil, &domain.MalformedOutputError{
			SourceID: anthropicSourceID,
			Detail:   "message envelope is not valid JSON",
			Err:      err,
		}
	}

	if message.Error != nil {
		return nil, &domain.SourceUnavailableError{
			SourceID: anthropicSourceID,
			Err:      fmt.Errorf("messages error: %s", message.Error.Message),
		}
	}

	text := firstTextBlock(message)
	if text == "" {
		return nil, &domain.MalformedOutputError{
			SourceID: anthropicSourceID,
			Detail:   "message contained no text content",
		}
	}

	return parseOpinion(anthropicSourceID, []byte(text))
}

func firstTextBlock(message messagesResponse) string {
	for _, block := range message.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text
		}
	}
	return ""
}
