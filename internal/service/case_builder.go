package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/auramd-consensus-server/internal/domain"
)

// Defaults substituted when optional history fields are absent, so every
// source sees the same explicit statement instead of an empty string.
const (
	defaultMedicalHistory = "No significant medical history"
	defaultAllergies      = "No known allergies"
	defaultMedications    = "No current medications"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	unsafeChars   = regexp.MustCompile(`[^\w\s.,;:\-()\[\]+%/°']`)
)

// DiagnosisRequest is the raw inbound shape a case is built from.
type DiagnosisRequest struct {
	PatientRef     string         `json:"patient_ref,omitempty"`
	ChiefComplaint string         `json:"chief_complaint" binding:"required"`
	Patient        PatientInfo    `json:"patient" binding:"required"`
	MedicalHistory string         `json:"medical_history,omitempty"`
	Symptoms       []SymptomInput `json:"symptoms" binding:"required"`
}

// PatientInfo carries the demographic slice of a diagnosis request.
type PatientInfo struct {
	Age                int    `json:"age"`
	Gender             string `json:"gender"`
	Allergies          string `json:"allergies,omitempty"`
	CurrentMedications string `json:"current_medications,omitempty"`
}

// SymptomInput is one reported symptom before normalization.
type SymptomInput struct {
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	Severity           string `json:"severity"`
	Duration           string `json:"duration"`
	BodyLocation       string `json:"body_location,omitempty"`
	Triggers           string `json:"triggers,omitempty"`
	RelievingFactors   string `json:"relieving_factors,omitempty"`
	AssociatedSymptoms string `json:"associated_symptoms,omitempty"`
}

// CaseBuilder assembles the normalized, immutable CaseContext every opinion
// source receives. Free text is sanitized once here so no downstream
// component ever sees raw input.
type CaseBuilder struct{}

// NewCaseBuilder creates a case builder
func NewCaseBuilder() *CaseBuilder {
	return &CaseBuilder{}
}

// Build validates and normalizes a diagnosis request into a CaseContext.
func (b *CaseBuilder) Build(req *DiagnosisRequest) (*domain.CaseContext, error) {
	if req == nil {
		return nil, fmt.Errorf("diagnosis request is required")
	}
	if req.Patient.Age < 0 {
		return nil, fmt.Errorf("patient age must be non-negative, got %d", req.Patient.Age)
	}
	gender := domain.Gender(strings.ToLower(req.Patient.Gender))
	if !gender.IsValid() {
		return nil, fmt.Errorf("unrecognized gender %q", req.Patient.Gender)
	}
	if strings.TrimSpace(req.ChiefComplaint) == "" {
		return nil, fmt.Errorf("chief complaint is required")
	}
	if len(req.Symptoms) == 0 {
		return nil, fmt.Errorf("at least one symptom is required")
	}

	symptoms := make([]domain.Symptom, 0, len(req.Symptoms))
	for i, in := range req.Symptoms {
		if strings.TrimSpace(in.Name) == "" {
			return nil, fmt.Errorf("symptom %d: name is required", i)
		}
		severity := domain.SymptomSeverity(strings.ToLower(in.Severity))
		if !severity.IsValid() {
			return nil, fmt.Errorf("symptom %d: unrecognized severity %q", i, in.Severity)
		}
		duration := domain.SymptomDuration(strings.ToLower(in.Duration))
		if !duration.IsValid() {
			return nil, fmt.Errorf("symptom %d: unrecognized duration %q", i, in.Duration)
		}
		symptoms = append(symptoms, domain.Symptom{
			Name:               sanitizeText(in.Name),
			Description:        sanitizeText(in.Description),
			Severity:           severity,
			Duration:           duration,
			BodyLocation:       sanitizeText(in.BodyLocation),
			Triggers:           sanitizeText(in.Triggers),
			RelievingFactors:   sanitizeText(in.RelievingFactors),
			AssociatedSymptoms: sanitizeText(in.AssociatedSymptoms),
		})
	}

	return &domain.CaseContext{
		PatientAge:         req.Patient.Age,
		Gender:             gender,
		ChiefComplaint:     sanitizeText(req.ChiefComplaint),
		MedicalHistory:     textOrDefault(req.MedicalHistory, defaultMedicalHistory),
		Allergies:          textOrDefault(req.Patient.Allergies, defaultAllergies),
		CurrentMedications: textOrDefault(req.Patient.CurrentMedications, defaultMedications),
		Symptoms:           symptoms,
	}, nil
}

// sanitizeText collapses whitespace and strips characters with no place in
// clinical free text, keeping medical punctuation.
func sanitizeText(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	text = whitespaceRun.ReplaceAllString(text, " ")
	return unsafeChars.ReplaceAllString(text, "")
}

func textOrDefault(text, fallback string) string {
	if sanitized := sanitizeText(text); sanitized != "" {
		return sanitized
	}
	return fallback
}
