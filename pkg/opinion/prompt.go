package opinion

import (
	"fmt"
	"strings"

	"github.com/auramd-consensus-server/internal/domain"
)

// systemPrompt is shared by every opinion source. It fixes the JSON response
// contract the payload parser depends on.
const systemPrompt = `You are an expert medical AI assistant specializing in differential diagnosis and clinical decision support. You help healthcare professionals by analyzing patient symptoms and providing evidence-based diagnostic suggestions.

CRITICAL GUIDELINES:
1. Always provide differential diagnoses ranked by likelihood with confidence scores (0.0-1.0)
2. Include detailed medical reasoning for each diagnosis
3. Suggest appropriate diagnostic tests and procedures
4. Indicate urgency level (routine, moderate, urgent, emergency)
5. Identify any clinical red flags requiring immediate attention
6. Never provide definitive diagnoses - only suggestions for healthcare professionals
7. Consider patient demographics, medical history, and risk factors
8. Maintain medical accuracy and patient safety as top priorities

OUTPUT FORMAT:
Respond with a single JSON object containing:
- differential_diagnoses: array of objects with condition_name, confidence_score, reasoning, and icd10_code when known
- recommended_tests: array of suggested diagnostic tests
- urgency_level: one of routine, moderate, urgent, emergency
- clinical_reasoning: detailed explanation of your analysis
- red_flags: array of concerning symptoms requiring immediate attention`

// BuildCasePrompt renders a normalized case as the analysis request sent to
// every source. The layout mirrors the structured case presentation the
// sources were validated against; sources receive identical prompts so their
// opinions differ only in judgment.
func BuildCasePrompt(cc *domain.CaseContext) string {
	var b strings.Builder

	b.WriteString("Please analyze the following patient case and provide a comprehensive differential diagnosis:\n\n")

	b.WriteString("PATIENT INFORMATION:\n")
	fmt.Fprintf(&b, "- Age: %d years\n", cc.PatientAge)
	fmt.Fprintf(&b, "- Gender: %s\n", cc.Gender)
	fmt.Fprintf(&b, "- Chief Complaint: %s\n", cc.ChiefComplaint)
	fmt.Fprintf(&b, "- Medical History: %s\n", cc.MedicalHistory)
	fmt.Fprintf(&b, "- Known Allergies: %s\n", cc.Allergies)
	fmt.Fprintf(&b, "- Current Medications: %s\n", cc.CurrentMedications)

	b.WriteString("\nPRESENTING SYMPTOMS:\n")
	for i, symptom := range cc.Symptoms {
		fmt.Fprintf(&b, "\nSymptom %d:\n", i+1)
		fmt.Fprintf(&b, "- Name: %s\n", symptom.Name)
		fmt.Fprintf(&b, "- Severity: %s\n", symptom.Severity)
		fmt.Fprintf(&b, "- Duration: %s\n", symptom.Duration)
		fmt.Fprintf(&b, "- Location: %s\n", textOrNotSpecified(symptom.BodyLocation))
		fmt.Fprintf(&b, "- Description: %s\n", textOrNotSpecified(symptom.Description))
		fmt.Fprintf(&b, "- Associated Symptoms: %s\n", textOrNotSpecified(symptom.AssociatedSymptoms))
		fmt.Fprintf(&b, "- Triggers: %s\n", textOrNotSpecified(symptom.Triggers))
		fmt.Fprintf(&b, "- Relieving Factors: %s\n", textOrNotSpecified(symptom.RelievingFactors))
	}

	b.WriteString(`
ANALYSIS REQUEST:
Provide a thorough medical analysis including:
1. Top 5 differential diagnoses ranked by likelihood
2. Confidence scores for each diagnosis (0.0-1.0)
3. Clinical reasoning for each diagnosis
4. Recommended diagnostic tests and procedures
5. Urgency assessment and any red flags

Consider the patient's demographics, symptom constellation, and medical history in your analysis.
`)

	return b.String()
}

func textOrNotSpecified(s string) string {
	if s == "" {
		return "Not specified"
	}
	return s
}
