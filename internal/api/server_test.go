package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auramd-consensus-server/internal/domain"
	"github.com/auramd-consensus-server/internal/review"
	"github.com/auramd-consensus-server/internal/service"
)

type stubConfigManager struct {
	cfg *domain.Config
}

func (s *stubConfigManager) GetConfig() *domain.Config { return s.cfg }
func (s *stubConfigManager) Validate() error           { return nil }
func (s *stubConfigManager) Reload() error             { return nil }

type stubSource struct {
	name    string
	opinion *domain.RawOpinion
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Produce(ctx context.Context, cc *domain.CaseContext) (*domain.RawOpinion, error) {
	return s.opinion, nil
}

type memoryStore struct {
	mu       sync.Mutex
	records  map[string]*domain.ConsensusRecord
	getCalls int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]*domain.ConsensusRecord)}
}

func (m *memoryStore) Create(ctx context.Context, record *domain.ConsensusRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = record
	return nil
}

func (m *memoryStore) GetByID(ctx context.Context, id string) (*domain.ConsensusRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if record, ok := m.records[id]; ok {
		return record, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memoryStore) GetBySessionID(ctx context.Context, sessionID string) (*domain.ConsensusRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	for _, record := range m.records {
		if record.SessionID == sessionID {
			return record, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memoryStore) List(ctx context.Context, limit, offset int) ([]*domain.ConsensusRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var records []*domain.ConsensusRecord
	for _, record := range m.records {
		records = append(records, record)
	}
	return records, nil
}

func newTestServer(t *testing.T) (*Server, *memoryStore, review.Store) {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := &domain.Config{
		Server:  domain.ServerConfig{Host: "127.0.0.1", Port: 8080},
		Logging: domain.LoggingConfig{Level: "error"},
	}

	source := &stubSource{
		name: "GPT-4",
		opinion: &domain.RawOpinion{
			SourceID: "GPT-4",
			Diagnoses: []domain.CandidateDiagnosis{
				{ConditionName: "Influenza", ConfidenceScore: 0.7, Reasoning: "seasonal"},
			},
			RecommendedTests:  []string{"rapid antigen test"},
			UrgencyLevel:      domain.URGENCY_ROUTINE,
			ClinicalReasoning: "viral syndrome",
		},
	}

	engineCfg := domain.EngineConfig{
		MaxDifferentialDiagnoses: 10,
		AgreementThreshold:       0.2,
		AgreementBonus:           0.1,
		SingleSourcePenalty:      0.8,
	}

	store := newMemoryStore()
	reviews, err := review.NewSQLiteStore(filepath.Join(t.TempDir(), "reviews.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reviews.Close() })

	diagnosis, err := service.NewDiagnosisService(logger, engineCfg, time.Second, []domain.OpinionSource{source}, service.DiagnosisServiceOptions{Store: store})
	require.NoError(t, err)

	server := NewServer(&stubConfigManager{cfg: cfg}, logger, diagnosis, Options{
		Store:   store,
		Reviews: reviews,
		SourceStates: func() map[string]string {
			return map[string]string{"GPT-4": "closed"}
		},
	})
	return server, store, reviews
}

func postJSON(t *testing.T, server *Server, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)
	return w
}

func getPath(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)
	return w
}

func analyzePayload() map[string]interface{} {
	return map[string]interface{}{
		"chief_complaint": "Fever and cough",
		"patient": map[string]interface{}{
			"age":    30,
			"gender": "male",
		},
		"symptoms": []map[string]interface{}{
			{"name": "fever", "severity": "moderate", "duration": "acute"},
		},
	}
}

func TestHandleAnalyze(t *testing.T) {
	server, store, _ := newTestServer(t)

	w := postJSON(t, server, "/api/v1/diagnosis/analyze", analyzePayload())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result service.AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.NotEmpty(t, result.SessionID)
	require.NotNil(t, result.Consensus)
	require.Len(t, result.Consensus.Candidates, 1)
	assert.Equal(t, "Influenza", result.Consensus.Candidates[0].ConditionName)

	// The record was persisted and is retrievable by session ID.
	record, err := store.GetBySessionID(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.SESSION_COMPLETED, record.Status)
}

func TestHandleAnalyzeRejectsInvalidCase(t *testing.T) {
	server, _, _ := newTestServer(t)

	payload := analyzePayload()
	payload["symptoms"] = []map[string]interface{}{}

	w := postJSON(t, server, "/api/v1/diagnosis/analyze", payload)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleAnalyzeRejectsMalformedBody(t *testing.T) {
	server, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/diagnosis/analyze", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetConsensus(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := postJSON(t, server, "/api/v1/diagnosis/analyze", analyzePayload())
	require.Equal(t, http.StatusOK, w.Code)

	var result service.AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))

	// Lookup by session ID falls through from the record-ID lookup.
	w = getPath(t, server, "/api/v1/consensus/"+result.SessionID)
	require.Equal(t, http.StatusOK, w.Code)

	var record domain.ConsensusRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, result.SessionID, record.SessionID)
}

func TestHandleGetConsensusNotFound(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := getPath(t, server, "/api/v1/consensus/"+uuid.New().String())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetConsensusMalformedID(t *testing.T) {
	server, store, _ := newTestServer(t)

	// Identifiers are UUIDs; a malformed one is a miss, not a query against
	// the typed id columns.
	w := getPath(t, server, "/api/v1/consensus/does-not-exist")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, store.getCalls)
}

func TestHandleCreateAndListReviews(t *testing.T) {
	server, _, _ := newTestServer(t)

	payload := map[string]interface{}{
		"session_id":          "session-1",
		"reviewer_id":         "dr-nguyen",
		"suggested_condition": "Influenza",
		"reviewed_condition":  "Influenza",
		"agreed":              true,
		"notes":               "confirmed",
	}

	w := postJSON(t, server, "/api/v1/reviews", payload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = getPath(t, server, "/api/v1/consensus/session-1/reviews")
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Reviews []*review.Review `json:"reviews"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Reviews, 1)
	assert.Equal(t, "dr-nguyen", response.Reviews[0].ReviewerID)
	assert.True(t, response.Reviews[0].Agreed)
}

func TestHandleCreateReviewMissingFields(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := postJSON(t, server, "/api/v1/reviews", map[string]interface{}{"session_id": "session-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHealth(t *testing.T) {
	server, _, _ := newTestServer(t)

	w := getPath(t, server, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, "healthy", payload["status"])
	assert.Equal(t, map[string]interface{}{"GPT-4": "closed"}, payload["opinion_sources"])
}
