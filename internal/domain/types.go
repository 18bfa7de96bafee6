package domain

import "strings"

// Core Enums and Types

// UrgencyLevel represents the clinical urgency of a case
type UrgencyLevel string

const (
	URGENCY_ROUTINE   UrgencyLevel = "routine"
	URGENCY_MODERATE  UrgencyLevel = "moderate"
	URGENCY_URGENT    UrgencyLevel = "urgent"
	URGENCY_EMERGENCY UrgencyLevel = "emergency"
)

// urgencyOrdinals maps urgency levels to their severity ordering.
// Resolution across sources is always max-based, never averaged.
var urgencyOrdinals = map[UrgencyLevel]int{
	URGENCY_ROUTINE:   1,
	URGENCY_MODERATE:  2,
	URGENCY_URGENT:    3,
	URGENCY_EMERGENCY: 4,
}

// Ordinal returns the severity ordinal of the urgency level.
// Unrecognized or missing levels default to routine (1).
func (u UrgencyLevel) Ordinal() int {
	if ord, ok := urgencyOrdinals[UrgencyLevel(strings.ToLower(string(u)))]; ok {
		return ord
	}
	return 1
}

// IsValid reports whether the urgency level is one of the recognized values.
// Matching is case-insensitive.
func (u UrgencyLevel) IsValid() bool {
	_, ok := urgencyOrdinals[UrgencyLevel(strings.ToLower(string(u)))]
	return ok
}

// Normalize returns the canonical lower-case form of the urgency level.
func (u UrgencyLevel) Normalize() UrgencyLevel {
	return UrgencyLevel(strings.ToLower(string(u)))
}

// UrgencyFromOrdinal returns the urgency level for a severity ordinal.
func UrgencyFromOrdinal(ordinal int) UrgencyLevel {
	for level, ord := range urgencyOrdinals {
		if ord == ordinal {
			return level
		}
	}
	return URGENCY_ROUTINE
}

// Gender represents patient gender
type Gender string

const (
	GENDER_MALE   Gender = "male"
	GENDER_FEMALE Gender = "female"
	GENDER_OTHER  Gender = "other"
)

// IsValid reports whether the gender is a recognized value.
func (g Gender) IsValid() bool {
	switch Gender(strings.ToLower(string(g))) {
	case GENDER_MALE, GENDER_FEMALE, GENDER_OTHER:
		return true
	}
	return false
}

// SymptomSeverity represents how severe a reported symptom is
type SymptomSeverity string

const (
	SEVERITY_MILD     SymptomSeverity = "mild"
	SEVERITY_MODERATE SymptomSeverity = "moderate"
	SEVERITY_SEVERE   SymptomSeverity = "severe"
	SEVERITY_CRITICAL SymptomSeverity = "critical"
)

// IsValid reports whether the severity is a recognized value.
func (s SymptomSeverity) IsValid() bool {
	switch SymptomSeverity(strings.ToLower(string(s))) {
	case SEVERITY_MILD, SEVERITY_MODERATE, SEVERITY_SEVERE, SEVERITY_CRITICAL:
		return true
	}
	return false
}

// SymptomDuration represents the temporal course of a symptom
type SymptomDuration string

const (
	DURATION_ACUTE    SymptomDuration = "acute"
	DURATION_SUBACUTE SymptomDuration = "subacute"
	DURATION_CHRONIC  SymptomDuration = "chronic"
)

// IsValid reports whether the duration is a recognized value.
func (d SymptomDuration) IsValid() bool {
	switch SymptomDuration(strings.ToLower(string(d))) {
	case DURATION_ACUTE, DURATION_SUBACUTE, DURATION_CHRONIC:
		return true
	}
	return false
}

// SessionStatus represents the lifecycle state of a diagnosis session
type SessionStatus string

const (
	SESSION_IN_PROGRESS SessionStatus = "in_progress"
	SESSION_COMPLETED   SessionStatus = "completed"
	SESSION_CANCELLED   SessionStatus = "cancelled"
)
