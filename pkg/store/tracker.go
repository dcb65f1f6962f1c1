package store

import (
	"context"
	"fmt"
)

// IsRequirementProcessed checks if a requirement with the given hash has been processed.
func (s *SQLiteStore) IsRequirementProcessed(ctx context.Context, hash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM processed_requirements WHERE hash = ?", hash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check requirement processed status: %w", err)
	}
	return count > 0, nil
}

// MarkRequirementProcessed records that a requirement produced caseCount cases.
func (s *SQLiteStore) MarkRequirementProcessed(ctx context.Context, hash, requirementID string, caseCount int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO processed_requirements (hash, requirement_id, processed_at, case_count)
		 VALUES (?, ?, CURRENT_TIMESTAMP, ?)`,
		hash, requirementID, caseCount)
	if err != nil {
		return fmt.Errorf("failed to mark requirement as processed: %w", err)
	}
	return nil
}

// GetProcessedRequirementCount returns the total number of tracked requirements.
func (s *SQLiteStore) GetProcessedRequirementCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM processed_requirements").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get processed requirement count: %w", err)
	}
	return count, nil
}

// ClearProcessedRequirements removes all tracking records without affecting stored cases.
func (s *SQLiteStore) ClearProcessedRequirements(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM processed_requirements")
	if err != nil {
		return fmt.Errorf("failed to clear processed requirements: %w", err)
	}
	return nil
}
