package opinion

import (
	"encoding/json"
	"strings"

	"github.com/auramd-consensus-server/internal/domain"
)

// diagnosisPayload is the wire form of a source response, matching the JSON
// contract in systemPrompt.
type diagnosisPayload struct {
	DifferentialDiagnoses []diagnosisEntry `json:"differential_diagnoses"`
	RecommendedTests      []string         `json:"recommended_tests"`
	UrgencyLevel          string           `json:"urgency_level"`
	ClinicalReasoning     string           `json:"clinical_reasoning"`
	RedFlags              []string         `json:"red_flags"`
}

type diagnosisEntry struct {
	ConditionName   string  `json:"condition_name"`
	ConfidenceScore float64 `json:"confidence_score"`
	Reasoning       string  `json:"reasoning"`
	ICD10Code       string  `json:"icd10_code"`
}

// parseOpinion decodes a raw model response into a RawOpinion. Structural
// problems surface as MalformedOutputError; semantic problems (bad
// confidence ranges, unknown urgency) are left to the validator so every
// rejection is reported the same way.
func parseOpinion(sourceID string, raw []byte) (*domain.RawOpinion, error) {
	text := stripCodeFence(string(raw))

	var payload diagnosisPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, &domain.MalformedOutputError{
			SourceID: sourceID,
			Detail:   "response is not valid JSON",
			Err:      err,
		}
	}

	diagnoses := make([]domain.CandidateDiagnosis, 0, len(payload.DifferentialDiagnoses))
	for _, entry := range payload.DifferentialDiagnoses {
		diagnoses = append(diagnoses, domain.CandidateDiagnosis{
			ConditionName:   strings.TrimSpace(entry.ConditionName),
			ConfidenceScore: entry.ConfidenceScore,
			Reasoning:       strings.TrimSpace(entry.Reasoning),
			ICD10Code:       strings.TrimSpace(entry.ICD10Code),
		})
	}

	return &domain.RawOpinion{
		SourceID:          sourceID,
		Diagnoses:         diagnoses,
		RecommendedTests:  payload.RecommendedTests,
		UrgencyLevel:      domain.UrgencyLevel(strings.TrimSpace(payload.UrgencyLevel)),
		RedFlags:          payload.RedFlags,
		ClinicalReasoning: strings.TrimSpace(payload.ClinicalReasoning),
	}, nil
}

// stripCodeFence unwraps a markdown-fenced JSON block. Models occasionally
// wrap the object in ```json fences despite the response contract.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
