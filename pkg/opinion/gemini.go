package opinion

import (
	"context"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/auramd-consensus-server/internal/domain"
)

const geminiSourceID = "Gemini"

// GeminiClient produces diagnostic opinions through the official genai
// client. The model is asked for application/json so the response drops
// straight into the payload parser.
type GeminiClient struct {
	cli       *genai.Client
	model     string
	rateLimit *rate.Limiter
}

// NewGeminiClient creates a new Gemini opinion source.
func NewGeminiClient(ctx context.Context, config domain.GeminiConfig) (*GeminiClient, error) {
	if config.Model == "" {
		config.Model = "gemini-1.5-pro"
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}

	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}

	return &GeminiClient{
		cli:       cli,
		model:     config.Model,
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// Name returns the stable source identifier used in consensus labeling.
func (c *GeminiClient) Name() string {
	return geminiSourceID
}

// Produce requests one diagnostic opinion for the case. Transient API
// failures are retried with backoff inside the caller's deadline.
func (c *GeminiClient) Produce(ctx context.Context, cc *domain.CaseContext) (*domain.RawOpinion, error) {
	full := systemPrompt + "\n\n" + BuildCasePrompt(cc)

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := c.rateLimit.Wait(ctx); err != nil {
			return nil, &domain.SourceUnavailableError{SourceID: geminiSourceID, Err: err}
		}

		resp, err := c.cli.Models.GenerateContent(ctx, c.model,
			[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
			&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
		)
		if err != nil {
			lastErr = err
		} else if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			return nil, &domain.MalformedOutputError{
				SourceID: geminiSourceID,
				Detail:   "response contained no candidates",
			}
		} else {
			return parseOpinion(geminiSourceID, []byte(resp.Candidates[0].Content.Parts[0].Text))
		}

		select {
		case <-time.After(time.Duration(300*(1<<attempt)) * time.Millisecond):
		case <-ctx.Done():
			return nil, &domain.SourceUnavailableError{SourceID: geminiSourceID, Err: ctx.Err()}
		}
	}

	return nil, &domain.SourceUnavailableError{SourceID: geminiSourceID, Err: lastErr}
}
