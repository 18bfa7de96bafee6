package domain

import "context"

// OpinionSource is the capability "produce a structured opinion for a case
// description". Concrete sources wrap external model APIs; failures are
// reported as *SourceUnavailableError or *MalformedOutputError and the
// orchestrator substitutes the fallback policy's output. A source never
// observes another source's result.
type OpinionSource interface {
	// Name returns the stable source identifier used for opinion tagging.
	Name() string

	// Produce generates one opinion for the case. Implementations must
	// honor ctx cancellation and deadlines.
	Produce(ctx context.Context, cc *CaseContext) (*RawOpinion, error)
}

// ConsensusStore persists completed diagnosis sessions.
type ConsensusStore interface {
	Create(ctx context.Context, record *ConsensusRecord) error
	GetByID(ctx context.Context, id string) (*ConsensusRecord, error)
	GetBySessionID(ctx context.Context, sessionID string) (*ConsensusRecord, error)
	List(ctx context.Context, limit, offset int) ([]*ConsensusRecord, error)
}

// Notifier publishes analysis progress and completed-diagnosis events to
// interested listeners. The core does not depend on how, or whether, the
// push happens; a no-op implementation is valid.
type Notifier interface {
	AnalysisProgress(sessionID, sourceID, stage string)
	DiagnosisUpdate(sessionID string, consensus *DiagnosticConsensus)
}

// ConfigManager provides access to application configuration
type ConfigManager interface {
	GetConfig() *Config
	Validate() error
	Reload() error
}
