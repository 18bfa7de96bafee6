package domain

import (
	"testing"
)

func TestUrgencyOrdinals(t *testing.T) {
	tests := []struct {
		name     string
		value    UrgencyLevel
		expected int
	}{
		{"Routine", URGENCY_ROUTINE, 1},
		{"Moderate", URGENCY_MODERATE, 2},
		{"Urgent", URGENCY_URGENT, 3},
		{"Emergency", URGENCY_EMERGENCY, 4},
		{"Mixed case", UrgencyLevel("Emergency"), 4},
		{"Unrecognized defaults to routine", UrgencyLevel("stat"), 1},
		{"Empty defaults to routine", UrgencyLevel(""), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.Ordinal(); got != tt.expected {
				t.Errorf("Expected ordinal %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestUrgencyFromOrdinal(t *testing.T) {
	for ord := 1; ord <= 4; ord++ {
		level := UrgencyFromOrdinal(ord)
		if level.Ordinal() != ord {
			t.Errorf("Round trip failed for ordinal %d: got %s", ord, level)
		}
	}

	if got := UrgencyFromOrdinal(0); got != URGENCY_ROUTINE {
		t.Errorf("Expected routine for out-of-range ordinal, got %s", got)
	}
}

func TestUrgencyIsValid(t *testing.T) {
	tests := []struct {
		name     string
		value    UrgencyLevel
		expected bool
	}{
		{"Routine", URGENCY_ROUTINE, true},
		{"Upper case accepted", UrgencyLevel("URGENT"), true},
		{"Unknown", UrgencyLevel("immediate"), false},
		{"Empty", UrgencyLevel(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.value.IsValid(); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestSymptomEnums(t *testing.T) {
	if !SEVERITY_CRITICAL.IsValid() || !SEVERITY_MILD.IsValid() {
		t.Error("Expected severity constants to validate")
	}
	if SymptomSeverity("extreme").IsValid() {
		t.Error("Expected unknown severity to be invalid")
	}
	if !DURATION_SUBACUTE.IsValid() {
		t.Error("Expected duration constants to validate")
	}
	if SymptomDuration("forever").IsValid() {
		t.Error("Expected unknown duration to be invalid")
	}
	if !Gender("Female").IsValid() {
		t.Error("Expected case-insensitive gender validation")
	}
	if Gender("unknown").IsValid() {
		t.Error("Expected unknown gender to be invalid")
	}
}
