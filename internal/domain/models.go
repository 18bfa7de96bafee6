package domain

import (
	"time"
)

// Request Models

// Symptom represents a single presenting symptom within a case.
type Symptom struct {
	Name               string          `json:"name"`
	Description        string          `json:"description,omitempty"`
	Severity           SymptomSeverity `json:"severity"`
	Duration           SymptomDuration `json:"duration"`
	BodyLocation       string          `json:"body_location,omitempty"`
	Triggers           string          `json:"triggers,omitempty"`
	RelievingFactors   string          `json:"relieving_factors,omitempty"`
	AssociatedSymptoms string          `json:"associated_symptoms,omitempty"`
}

// CaseContext is the normalized, immutable description of one clinical case.
// It is built once per diagnostic request and owned by that request; nothing
// mutates it after construction.
type CaseContext struct {
	PatientAge         int       `json:"patient_age"`
	Gender             Gender    `json:"gender"`
	ChiefComplaint     string    `json:"chief_complaint"`
	MedicalHistory     string    `json:"medical_history"`
	Allergies          string    `json:"allergies"`
	CurrentMedications string    `json:"current_medications"`
	Symptoms           []Symptom `json:"symptoms"`
}

// Opinion Models

// CandidateDiagnosis is one condition proposed by a single source.
type CandidateDiagnosis struct {
	ConditionName   string  `json:"condition_name"`
	ConfidenceScore float64 `json:"confidence_score"`
	Reasoning       string  `json:"reasoning,omitempty"`
	ICD10Code       string  `json:"icd10_code,omitempty"`
}

// RawOpinion is one source's complete structured judgment about a case.
// It is immutable once produced; an invalid or failed opinion is replaced
// wholesale by the fallback policy, never patched in place.
type RawOpinion struct {
	SourceID          string               `json:"source_id"`
	Diagnoses         []CandidateDiagnosis `json:"differential_diagnoses"`
	RecommendedTests  []string             `json:"recommended_tests"`
	UrgencyLevel      UrgencyLevel         `json:"urgency_level"`
	RedFlags          []string             `json:"red_flags"`
	ClinicalReasoning string               `json:"clinical_reasoning"`
}

// Consensus Models

// ConsensusCandidate is one ranked condition in the merged output.
type ConsensusCandidate struct {
	ConditionName     string  `json:"condition_name"`
	ConfidenceScore   float64 `json:"confidence_score"`
	CombinedReasoning string  `json:"combined_reasoning"`
	ICD10Code         string  `json:"icd10_code,omitempty"`
	DifferentialRank  int     `json:"differential_rank"`
	SourceIDs         []string `json:"source_ids"`
}

// DiagnosticConsensus is the engine's single merged, ranked output for one
// case. Created once, immutable thereafter, safe to share across goroutines.
type DiagnosticConsensus struct {
	Candidates        []ConsensusCandidate `json:"differential_diagnoses"`
	RecommendedTests  []string             `json:"recommended_tests"`
	UrgencyLevel      UrgencyLevel         `json:"urgency_level"`
	ClinicalReasoning string               `json:"clinical_reasoning"`
	RedFlags          []string             `json:"red_flags"`
}

// Persistence Models

// ConsensusRecord is the persisted form of a completed diagnosis session,
// the only artifact the core hands downstream.
type ConsensusRecord struct {
	ID             string               `json:"id"`
	SessionID      string               `json:"session_id"`
	PatientRef     string               `json:"patient_ref,omitempty"`
	ChiefComplaint string               `json:"chief_complaint"`
	Status         SessionStatus        `json:"status"`
	Consensus      *DiagnosticConsensus `json:"consensus"`
	SourceCount    int                  `json:"source_count"`
	FallbackCount  int                  `json:"fallback_count"`
	ProcessingMS   int64                `json:"processing_time_ms"`
	CreatedAt      time.Time            `json:"created_at"`
}

// Configuration Models

// Config represents the main application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Review   ReviewConfig   `mapstructure:"review"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// ReviewConfig represents the clinician review store configuration.
// Backend is either "postgres" or "sqlite"; sqlite keeps standalone
// deployments free of external infrastructure.
type ReviewConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// SourcesConfig represents opinion source configuration
type SourcesConfig struct {
	Timeout   time.Duration      `mapstructure:"timeout"`
	OpenAI    OpenAIConfig       `mapstructure:"openai"`
	Anthropic AnthropicConfig    `mapstructure:"anthropic"`
	Gemini    GeminiConfig       `mapstructure:"gemini"`
}

// OpenAIConfig represents the OpenAI opinion source configuration
type OpenAIConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"`
}

// AnthropicConfig represents the Anthropic opinion source configuration
type AnthropicConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"`
}

// GeminiConfig represents the Gemini opinion source configuration
type GeminiConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit"`
}

// EngineConfig holds the consensus engine tuning knobs. All values are
// externally configurable so clinical tuning never requires a code change.
type EngineConfig struct {
	MaxDifferentialDiagnoses int     `mapstructure:"max_differential_diagnoses"`
	AgreementThreshold       float64 `mapstructure:"agreement_threshold"`
	AgreementBonus           float64 `mapstructure:"agreement_bonus"`
	SingleSourcePenalty      float64 `mapstructure:"single_source_penalty"`
}

// Validate checks the engine tuning constants. Invalid knobs are a fatal
// startup condition, never silently corrected.
func (c *EngineConfig) Validate() error {
	if c.MaxDifferentialDiagnoses <= 0 {
		return &ConfigurationError{Field: "engine.max_differential_diagnoses", Message: "must be positive"}
	}
	if c.AgreementThreshold < 0 || c.AgreementThreshold > 1 {
		return &ConfigurationError{Field: "engine.agreement_threshold", Message: "must be within [0,1]"}
	}
	if c.AgreementBonus < 0 || c.AgreementBonus > 1 {
		return &ConfigurationError{Field: "engine.agreement_bonus", Message: "must be within [0,1]"}
	}
	if c.SingleSourcePenalty <= 0 || c.SingleSourcePenalty > 1 {
		return &ConfigurationError{Field: "engine.single_source_penalty", Message: "must be within (0,1]"}
	}
	return nil
}

// CacheConfig represents opinion cache configuration
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	ResultLRU   int           `mapstructure:"result_lru"`
	ResultTTL   time.Duration `mapstructure:"result_ttl"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
