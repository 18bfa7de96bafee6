package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/auramd-consensus-server/internal/domain"
)

// ErrInvalidRequest marks a diagnosis request that failed case building.
// Callers translate it to a client error rather than a server fault.
var ErrInvalidRequest = errors.New("invalid diagnosis request")

// AnalysisResult is the outcome of one diagnostic request.
type AnalysisResult struct {
	SessionID     string                      `json:"session_id"`
	Consensus     *domain.DiagnosticConsensus `json:"consensus"`
	SourceCount   int                         `json:"source_count"`
	FallbackCount int                         `json:"fallback_count"`
	FromCache     bool                        `json:"from_cache"`
	ProcessingMS  int64                       `json:"processing_time_ms"`
}

// DiagnosisService orchestrates one diagnostic request end to end: build
// the case, fan out to every opinion source concurrently, validate or
// fallback-substitute each result, aggregate, persist, notify. Sources are
// independent; a failure or timeout in one never blocks or invalidates
// another's result, and an all-sources-down request still yields a valid,
// low-confidence consensus.
type DiagnosisService struct {
	logger        *logrus.Logger
	builder       *CaseBuilder
	validator     *OpinionValidator
	fallback      *FallbackPolicy
	engine        *ConsensusEngine
	sources       []domain.OpinionSource
	store         domain.ConsensusStore
	notifier      domain.Notifier
	sourceTimeout time.Duration
	maxResults    int
	resultCache   *expirable.LRU[string, *domain.DiagnosticConsensus]
}

// DiagnosisServiceOptions configures optional collaborators. Store and
// Notifier may be nil; the core emits values either way.
type DiagnosisServiceOptions struct {
	Store     domain.ConsensusStore
	Notifier  domain.Notifier
	CacheSize int
	CacheTTL  time.Duration
}

// NewDiagnosisService wires the diagnosis orchestrator.
func NewDiagnosisService(
	logger *logrus.Logger,
	engineCfg domain.EngineConfig,
	sourceTimeout time.Duration,
	sources []domain.OpinionSource,
	opts DiagnosisServiceOptions,
) (*DiagnosisService, error) {
	if sourceTimeout <= 0 {
		return nil, &domain.ConfigurationError{Field: "sources.timeout", Message: "must be positive"}
	}

	engine, err := NewConsensusEngine(logger, engineCfg)
	if err != nil {
		return nil, err
	}

	var cache *expirable.LRU[string, *domain.DiagnosticConsensus]
	if opts.CacheSize > 0 {
		cache = expirable.NewLRU[string, *domain.DiagnosticConsensus](opts.CacheSize, nil, opts.CacheTTL)
	}

	return &DiagnosisService{
		logger:        logger,
		builder:       NewCaseBuilder(),
		validator:     NewOpinionValidator(),
		fallback:      NewFallbackPolicy(),
		engine:        engine,
		sources:       sources,
		store:         opts.Store,
		notifier:      opts.Notifier,
		sourceTimeout: sourceTimeout,
		maxResults:    engineCfg.MaxDifferentialDiagnoses,
		resultCache:   cache,
	}, nil
}

// Analyze runs the full diagnostic flow for one request.
func (s *DiagnosisService) Analyze(ctx context.Context, req *DiagnosisRequest) (*AnalysisResult, error) {
	startTime := time.Now()

	cc, err := s.builder.Build(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	sessionID := uuid.New().String()
	s.progress(sessionID, "", "analysis_started")

	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"symptoms":   len(cc.Symptoms),
		"sources":    len(s.sources),
	}).Info("Starting diagnostic analysis")

	fingerprint := caseFingerprint(cc)
	if s.resultCache != nil {
		if consensus, ok := s.resultCache.Get(fingerprint); ok {
			s.logger.WithField("session_id", sessionID).Debug("Serving consensus from result cache")
			result := &AnalysisResult{
				SessionID:    sessionID,
				Consensus:    consensus,
				SourceCount:  len(s.sources),
				FromCache:    true,
				ProcessingMS: time.Since(startTime).Milliseconds(),
			}
			s.finish(ctx, sessionID, req, result)
			return result, nil
		}
	}

	opinions, fallbackCount, err := s.gatherOpinions(ctx, sessionID, cc)
	if err != nil {
		// Cancelled request: partial results are discarded, nothing is
		// aggregated or persisted.
		return nil, err
	}

	consensus, err := s.engine.Aggregate(opinions, s.maxResults)
	if err != nil {
		return nil, fmt.Errorf("consensus aggregation failed: %w", err)
	}

	if s.resultCache != nil {
		s.resultCache.Add(fingerprint, consensus)
	}

	result := &AnalysisResult{
		SessionID:     sessionID,
		Consensus:     consensus,
		SourceCount:   len(s.sources),
		FallbackCount: fallbackCount,
		ProcessingMS:  time.Since(startTime).Milliseconds(),
	}
	s.finish(ctx, sessionID, req, result)

	s.logger.WithFields(logrus.Fields{
		"session_id":      sessionID,
		"candidates":      len(consensus.Candidates),
		"urgency":         consensus.UrgencyLevel,
		"fallback_count":  fallbackCount,
		"processing_time": result.ProcessingMS,
	}).Info("Diagnostic analysis completed")

	return result, nil
}

// gatherOpinions fans out to every source concurrently, each call bounded
// by the per-source timeout, and substitutes the fallback opinion for every
// failure or validation rejection. The returned slice preserves configured
// source order, which fixes the engine's stable source order.
func (s *DiagnosisService) gatherOpinions(ctx context.Context, sessionID string, cc *domain.CaseContext) ([]*domain.RawOpinion, int, error) {
	if len(s.sources) == 0 {
		return []*domain.RawOpinion{s.fallback.Degrade("none", "no opinion sources configured")}, 1, nil
	}

	raw := make([]*domain.RawOpinion, len(s.sources))
	errs := make([]error, len(s.sources))

	var wg sync.WaitGroup
	for i, src := range s.sources {
		wg.Add(1)
		go func(i int, src domain.OpinionSource) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(ctx, s.sourceTimeout)
			defer cancel()

			s.progress(sessionID, src.Name(), "source_started")
			raw[i], errs[i] = src.Produce(sctx, cc)
			if errs[i] != nil {
				s.progress(sessionID, src.Name(), "source_failed")
			} else {
				s.progress(sessionID, src.Name(), "source_completed")
			}
		}(i, src)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, 0, ctx.Err()
	}

	opinions := make([]*domain.RawOpinion, 0, len(s.sources))
	fallbackCount := 0
	for i, src := range s.sources {
		opinion := raw[i]
		switch {
		case errs[i] != nil:
			reason := failureReason(errs[i])
			s.logger.WithError(errs[i]).WithFields(logrus.Fields{
				"session_id": sessionID,
				"source":     src.Name(),
			}).Warn("Opinion source failed, substituting fallback")
			opinion = s.fallback.Degrade(src.Name(), reason)
			fallbackCount++
		default:
			if result := s.validator.Validate(opinion); !result.Valid() {
				s.logger.WithFields(logrus.Fields{
					"session_id": sessionID,
					"source":     src.Name(),
					"violations": result.Summary(),
				}).Warn("Opinion failed validation, substituting fallback")
				opinion = s.fallback.Degrade(src.Name(), result.Summary())
				fallbackCount++
			}
		}
		opinions = append(opinions, opinion)
	}

	return opinions, fallbackCount, nil
}

// finish persists the completed session and pushes the diagnosis update.
// Neither step may fail the request: degraded-but-present output wins over
// a hard failure once a consensus exists.
func (s *DiagnosisService) finish(ctx context.Context, sessionID string, req *DiagnosisRequest, result *AnalysisResult) {
	if s.store != nil {
		record := &domain.ConsensusRecord{
			ID:             uuid.New().String(),
			SessionID:      sessionID,
			PatientRef:     req.PatientRef,
			ChiefComplaint: req.ChiefComplaint,
			Status:         domain.SESSION_COMPLETED,
			Consensus:      result.Consensus,
			SourceCount:    result.SourceCount,
			FallbackCount:  result.FallbackCount,
			ProcessingMS:   result.ProcessingMS,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.store.Create(ctx, record); err != nil {
			s.logger.WithError(err).WithField("session_id", sessionID).Warn("Failed to persist consensus record")
		}
	}

	if s.notifier != nil {
		s.notifier.DiagnosisUpdate(sessionID, result.Consensus)
	}
}

func (s *DiagnosisService) progress(sessionID, sourceID, stage string) {
	if s.notifier != nil {
		s.notifier.AnalysisProgress(sessionID, sourceID, stage)
	}
}

// failureReason maps a source error to the reason recorded in the fallback
// opinion. Timeouts are treated identically to unavailability.
func failureReason(err error) string {
	var unavailable *domain.SourceUnavailableError
	var malformed *domain.MalformedOutputError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "source timed out"
	case errors.As(err, &unavailable):
		return "source unavailable"
	case errors.As(err, &malformed):
		return "source returned malformed output"
	default:
		return "source failed"
	}
}

// caseFingerprint derives a stable cache key from the normalized case.
func caseFingerprint(cc *domain.CaseContext) string {
	payload, _ := json.Marshal(cc)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
