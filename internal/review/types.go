// Package review provides clinician review storage for diagnostic consensus
// results. It stores agreements and overrides so aggregation output can be
// audited against human judgment.
package review

import (
	"context"
	"io"
	"time"
)

// Review represents one clinician's judgment on a consensus result.
type Review struct {
	ID                 int64     `json:"id,omitempty"`
	SessionID          string    `json:"session_id"`                    // Diagnosis session under review
	ReviewerID         string    `json:"reviewer_id"`                   // Clinician identifier
	SuggestedCondition string    `json:"suggested_condition"`           // Engine's top-ranked condition
	ReviewedCondition  string    `json:"reviewed_condition"`            // Clinician's decision
	Agreed             bool      `json:"agreed"`                        // Did the clinician agree?
	ConsensusSummary   string    `json:"consensus_summary,omitempty"`   // Consensus reasoning at review time
	Notes              string    `json:"notes,omitempty"`               // Clinician notes
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Store defines the interface for review storage operations.
type Store interface {
	// Save stores or updates a clinician review. A reviewer has at most one
	// review per session; saving again replaces it.
	Save(ctx context.Context, review *Review) error

	// Get retrieves one reviewer's review of a session, or nil when absent.
	Get(ctx context.Context, sessionID, reviewerID string) (*Review, error)

	// ListBySession returns all reviews recorded for a session.
	ListBySession(ctx context.Context, sessionID string) ([]*Review, error)

	// List returns reviews ordered by recency with pagination.
	List(ctx context.Context, limit, offset int) ([]*Review, error)

	// Count returns the total number of reviews.
	Count(ctx context.Context) (int64, error)

	// Delete removes a review by ID.
	Delete(ctx context.Context, id int64) error

	// ExportJSON exports all reviews to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports reviews from a JSON reader.
	// Returns the number of imported and skipped entries.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// Export represents the JSON export format.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Reviews    []*Review `json:"reviews"`
}
