package service

import (
	"fmt"

	"github.com/auramd-consensus-server/internal/domain"
)

const (
	fallbackCondition = "Unable to analyze - opinion source unavailable"
	fallbackReasoning = "Automated analysis unavailable. Immediate clinical assessment recommended."
	fallbackRedFlag   = "Opinion source unavailable - manual assessment required"
	fallbackTest      = "Comprehensive clinical evaluation recommended"
)

// FallbackPolicy produces the safe degraded opinion substituted when a
// source fails or returns invalid output. It is pure and deterministic with
// no external calls, so it can never itself fail. Urgency is pinned to
// "urgent": when information is missing the system over-escalates rather
// than under-escalates.
type FallbackPolicy struct{}

// NewFallbackPolicy creates a fallback policy
func NewFallbackPolicy() *FallbackPolicy {
	return &FallbackPolicy{}
}

// Degrade returns the low-information opinion for a failed source.
func (f *FallbackPolicy) Degrade(sourceID, reason string) *domain.RawOpinion {
	return &domain.RawOpinion{
		SourceID: sourceID,
		Diagnoses: []domain.CandidateDiagnosis{
			{
				ConditionName:   fallbackCondition,
				ConfidenceScore: 0.0,
				Reasoning:       fmt.Sprintf("Please consult with a healthcare professional for proper diagnosis. (%s)", reason),
			},
		},
		RecommendedTests:  []string{fallbackTest},
		UrgencyLevel:      domain.URGENCY_URGENT,
		RedFlags:          []string{fallbackRedFlag},
		ClinicalReasoning: fallbackReasoning,
	}
}
