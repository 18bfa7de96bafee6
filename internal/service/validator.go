package service

import (
	"fmt"
	"math"

	"github.com/auramd-consensus-server/internal/domain"
)

// OpinionValidator is the single gate between the weakly-structured shapes
// external sources return and the typed aggregation core. Nothing enters
// the consensus engine without passing here or being replaced by the
// fallback policy.
type OpinionValidator struct{}

// NewOpinionValidator creates an opinion validator
func NewOpinionValidator() *OpinionValidator {
	return &OpinionValidator{}
}

// Validate checks a raw opinion's structural well-formedness and returns
// the ordered list of violations found. A violation never aborts the
// request; the orchestrator substitutes the fallback opinion instead.
func (v *OpinionValidator) Validate(opinion *domain.RawOpinion) domain.ValidationResult {
	result := domain.ValidationResult{}

	if opinion == nil {
		result.Violations = append(result.Violations, domain.Violation{
			Field:   "opinion",
			Message: "must not be nil",
		})
		return result
	}

	if opinion.SourceID == "" {
		result.Violations = append(result.Violations, domain.Violation{
			Field:   "source_id",
			Message: "must not be empty",
		})
	}

	if len(opinion.Diagnoses) == 0 {
		result.Violations = append(result.Violations, domain.Violation{
			Field:   "differential_diagnoses",
			Message: "must not be empty",
		})
	}

	for i, cand := range opinion.Diagnoses {
		if cand.ConditionName == "" {
			result.Violations = append(result.Violations, domain.Violation{
				Field:   fmt.Sprintf("differential_diagnoses[%d].condition_name", i),
				Message: "must not be empty",
			})
		}
		if math.IsNaN(cand.ConfidenceScore) || cand.ConfidenceScore < 0 || cand.ConfidenceScore > 1 {
			result.Violations = append(result.Violations, domain.Violation{
				Field:   fmt.Sprintf("differential_diagnoses[%d].confidence_score", i),
				Message: fmt.Sprintf("must be within [0,1], got %v", cand.ConfidenceScore),
			})
		}
	}

	if !opinion.UrgencyLevel.IsValid() {
		result.Violations = append(result.Violations, domain.Violation{
			Field:   "urgency_level",
			Message: fmt.Sprintf("unrecognized value %q", opinion.UrgencyLevel),
		})
	}

	if opinion.ClinicalReasoning == "" {
		result.Violations = append(result.Violations, domain.Violation{
			Field:   "clinical_reasoning",
			Message: "must be present",
		})
	}

	return result
}
