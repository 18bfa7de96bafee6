package opinion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auramd-consensus-server/internal/domain"
)

func testCase() *domain.CaseContext {
	return &domain.CaseContext{
		PatientAge:     42,
		Gender:         domain.GENDER_FEMALE,
		ChiefComplaint: "Shortness of breath",
		Symptoms: []domain.Symptom{
			{Name: "dyspnea", Severity: domain.SEVERITY_MODERATE, Duration: domain.DURATION_ACUTE},
		},
	}
}

func TestOpenAIClient_Produce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Contains(t, req.Messages[1].Content, "Shortness of breath")

		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": samplePayload}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewOpenAIClient(domain.OpenAIConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
	})

	op, err := client.Produce(context.Background(), testCase())
	require.NoError(t, err)
	assert.Equal(t, "GPT-4", op.SourceID)
	require.Len(t, op.Diagnoses, 2)
	assert.Equal(t, "Influenza", op.Diagnoses[0].ConditionName)
}

func TestOpenAIClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewOpenAIClient(domain.OpenAIConfig{BaseURL: server.URL, APIKey: "test-key"})

	_, err := client.Produce(context.Background(), testCase())
	require.Error(t, err)

	var unavailable *domain.SourceUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "GPT-4", unavailable.SourceID)
}

func TestOpenAIClient_MalformedContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "not json at all"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewOpenAIClient(domain.OpenAIConfig{BaseURL: server.URL, APIKey: "test-key"})

	_, err := client.Produce(context.Background(), testCase())
	require.Error(t, err)

	var malformed *domain.MalformedOutputError
	assert.True(t, errors.As(err, &malformed))
}

func TestAnthropicClient_Produce(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.System)
		require.Len(t, req.Messages, 1)

		resp := map[string]interface{}{
			"content": []map[string]string{
				{"type": "text", "text": samplePayload},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewAnthropicClient(domain.AnthropicConfig{BaseURL: server.URL, APIKey: "test-key"})

	op, err := client.Produce(context.Background(), testCase())
	require.NoError(t, err)
	assert.Equal(t, "Claude", op.SourceID)
	require.Len(t, op.Diagnoses, 2)
}

func TestAnthropicClient_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"content": []map[string]string{}})
	}))
	defer server.Close()

	client := NewAnthropicClient(domain.AnthropicConfig{BaseURL: server.URL, APIKey: "test-key"})

	_, err := client.Produce(context.Background(), testCase())
	require.Error(t, err)

	var malformed *domain.MalformedOutputError
	assert.True(t, errors.As(err, &malformed))
}

type flakySource struct {
	name  string
	err   error
	calls int
}

func (f *flakySource) Name() string { return f.name }

func (f *flakySource) Produce(ctx context.Context, cc *domain.CaseContext) (*domain.RawOpinion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RawOpinion{SourceID: f.name}, nil
}

func TestResilientSourceOpensBreakerAfterFailures(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	inner := &flakySource{name: "GPT-4", err: fmt.Errorf("connection refused")}
	resilient := NewResilientSource(inner, nil, logger)

	for i := 0; i < 5; i++ {
		_, err := resilient.Produce(context.Background(), testCase())
		require.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, resilient.BreakerState())

	// With the breaker open the wrapped source is no longer called and the
	// failure is reported as source unavailability.
	before := inner.calls
	_, err := resilient.Produce(context.Background(), testCase())
	require.Error(t, err)

	var unavailable *domain.SourceUnavailableError
	assert.True(t, errors.As(err, &unavailable))
	assert.Equal(t, before, inner.calls)
}

func TestResilientSourcePassesThroughSuccess(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	inner := &flakySource{name: "Claude"}
	resilient := NewResilientSource(inner, nil, logger)

	op, err := resilient.Produce(context.Background(), testCase())
	require.NoError(t, err)
	assert.Equal(t, "Claude", op.SourceID)
	assert.Equal(t, gobreaker.StateClosed, resilient.BreakerState())
}

func TestOpenAIClient_RespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	client := NewOpenAIClient(domain.OpenAIConfig{BaseURL: server.URL, APIKey: "test-key"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Produce(ctx, testCase())
	require.Error(t, err)
}
