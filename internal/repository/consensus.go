package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/auramd-consensus-server/internal/domain"
)

// ConsensusRepository handles consensus record persistence
type ConsensusRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewConsensusRepository creates a new consensus repository
func NewConsensusRepository(db *pgxpool.Pool, logger *logrus.Logger) *ConsensusRepository {
	return &ConsensusRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a completed diagnosis session into the database
func (r *ConsensusRepository) Create(ctx context.Context, record *domain.ConsensusRecord) error {
	consensusJSON, err := json.Marshal(record.Consensus)
	if err != nil {
		return fmt.Errorf("marshaling consensus: %w", err)
	}

	query := `
		INSERT INTO consensus_records (
			id, session_id, patient_ref, chief_complaint, status, consensus,
			source_count, fallback_count, processing_time_ms, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err = r.db.Exec(ctx, query,
		record.ID,
		record.SessionID,
		record.PatientRef,
		record.ChiefComplaint,
		record.Status,
		consensusJSON,
		record.SourceCount,
		record.FallbackCount,
		record.ProcessingMS,
		record.CreatedAt,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"record_id":  record.ID,
			"session_id": record.SessionID,
			"error":      err,
		}).Error("Failed to create consensus record")
		return fmt.Errorf("creating consensus record: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"record_id":       record.ID,
		"session_id":      record.SessionID,
		"candidates":      len(record.Consensus.Candidates),
		"fallback_count":  record.FallbackCount,
		"processing_time": record.ProcessingMS,
	}).Info("Consensus record created successfully")

	return nil
}

// GetByID retrieves a consensus record by its ID
func (r *ConsensusRepository) GetByID(ctx context.Context, id string) (*domain.ConsensusRecord, error) {
	query := `
		SELECT id, session_id, patient_ref, chief_complaint, status, consensus,
			   source_count, fallback_count, processing_time_ms, created_at
		FROM consensus_records
		WHERE id = $1`

	return r.scanOne(ctx, r.db.QueryRow(ctx, query, id), "record_id", id)
}

// GetBySessionID retrieves the consensus record for a diagnosis session
func (r *ConsensusRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.ConsensusRecord, error) {
	query := `
		SELECT id, session_id, patient_ref, chief_complaint, status, consensus,
			   source_count, fallback_count, processing_time_ms, created_at
		FROM consensus_records
		WHERE session_id = $1`

	return r.scanOne(ctx, r.db.QueryRow(ctx, query, sessionID), "session_id", sessionID)
}

// List retrieves consensus records ordered by recency with pagination
func (r *ConsensusRepository) List(ctx context.Context, limit, offset int) ([]*domain.ConsensusRecord, error) {
	query := `
		SELECT id, session_id, patient_ref, chief_complaint, status, consensus,
			   source_count, fallback_count, processing_time_ms, created_at
		FROM consensus_records
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		r.log.WithError(err).Error("Failed to list consensus records")
		return nil, fmt.Errorf("listing consensus records: %w", err)
	}
	defer rows.Close()

	var records []*domain.ConsensusRecord
	for rows.Next() {
		record, err := scanRecord(rows.Scan)
		if err != nil {
			r.log.WithError(err).Error("Failed to scan consensus record row")
			return nil, fmt.Errorf("scanning consensus record row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating consensus record rows: %w", err)
	}

	return records, nil
}

func (r *ConsensusRepository) scanOne(ctx context.Context, row pgx.Row, keyField, keyValue string) (*domain.ConsensusRecord, error) {
	record, err := scanRecord(row.Scan)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("consensus record not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			keyField: keyValue,
			"error":  err,
		}).Error("Failed to get consensus record")
		return nil, fmt.Errorf("getting consensus record: %w", err)
	}
	return record, nil
}

func scanRecord(scan func(dest ...any) error) (*domain.ConsensusRecord, error) {
	var record domain.ConsensusRecord
	var consensusJSON []byte
	var createdAt time.Time

	err := scan(
		&record.ID,
		&record.SessionID,
		&record.PatientRef,
		&record.ChiefComplaint,
		&record.Status,
		&consensusJSON,
		&record.SourceCount,
		&record.FallbackCount,
		&record.ProcessingMS,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(consensusJSON, &record.Consensus); err != nil {
		return nil, fmt.Errorf("unmarshaling consensus: %w", err)
	}
	record.CreatedAt = createdAt

	return &record, nil
}
