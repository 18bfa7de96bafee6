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

const openAISourceID = "GPT-4"

// OpenAIClient produces diagnostic opinions through the OpenAI
// chat-completions API.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	rateLimit  *rate.Limiter
}

// NewOpenAIClient creates a new OpenAI opinion source.
func NewOpenAIClient(config domain.OpenAIConfig) *OpenAIClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Model == "" {
		config.Model = "gpt-4"
	}
	if config.Timeout == 0 {
		config.Timeout = 45 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}

	return &OpenAIClient{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		model:   config.Model,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

type chatCompletionRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat *formatSpec   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type formatSpec struct {
	Type string `json:"type"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Name returns the stable source identifier used in consensus labeling.
func (c *OpenAIClient) Name() string {
	return openAISourceID
}

// Produce requests one diagnostic opinion for the case.
func (c *OpenAIClient) Produce(ctx context.Context, cc *domain.CaseContext) (*domain.RawOpinion, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, &domain.SourceUnavailableError{SourceID: openAISourceID, Err: err}
	}

	reqBody := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildCasePrompt(cc)},
		},
		Temperature:    0.1,
		MaxTokens:      2000,
		ResponseFormat: &formatSpec{Type: "json_object"},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.SourceUnavailableError{SourceID: openAISourceID, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.SourceUnavailableError{SourceID: openAISourceID, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.SourceUnavailableError{
			SourceID: openAISourceID,
			Err:      fmt.Errorf("chat completion returned status %d: %s", resp.StatusCode, truncateBody(body)),
		}
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, &domain.MalformedOutputError{
			SourceID: openAISourceID,
			Detail:   "completion envelope is not valid JSON",
			Err:      err,
		}
	}

	if completion.Error != nil {
		return nil, &domain.SourceUnavailableError{
			SourceID: openAISourceID,
			Err:      fmt.Errorf("chat completion error: %s", completion.Error.Message),
		}
	}

	if len(completion.Choices) == 0 {
		return nil, &domain.MalformedOutputError{
			SourceID: openAISourceID,
			Detail:   "completion contained no choices",
		}
	}

	return parseOpinion(openAISourceID, []byte(completion.Choices[0].Message.Content))
}

// truncateBody limits error detail to something log-friendly.
func truncateBody(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
