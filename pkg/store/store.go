// Package store persists generation runs and their test cases.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/dan-solli/casegen/pkg/testcase"
)

// ErrRunNotFound is returned when a run ID has no stored run.
var ErrRunNotFound = errors.New("run not found")

// Run status values.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is one invocation of the generator over a batch of requirements.
type Run struct {
	ID           string
	Backend      string
	Status       string
	Requirements int
	Succeeded    int
	Skipped      int
	TotalTokens  int64
	StartedAt    time.Time
	FinishedAt   time.Time
}

// CaseStore records runs and the test cases they produced.
type CaseStore interface {
	// BeginRun creates a run in the running state and assigns its ID.
	BeginRun(ctx context.Context, backend string, requirements int) (*Run, error)

	// FinishRun stores the final counters and status of run.
	FinishRun(ctx context.Context, run *Run) error

	// GetRun returns the run with the given ID or ErrRunNotFound.
	GetRun(ctx context.Context, id string) (*Run, error)

	// SaveTestCases appends cases to a run, preserving their order.
	SaveTestCases(ctx context.Context, runID string, cases []testcase.TestCase) error

	// ListTestCases returns a run's cases in the order they were saved.
	ListTestCases(ctx context.Context, runID string) ([]testcase.TestCase, error)

	Close() error
}

// RequirementTracker remembers which requirements already produced cases.
// Separate from CaseStore so a generator can use either independently.
type RequirementTracker interface {
	// IsRequirementProcessed reports whether a requirement with the given
	// content hash has been processed.
	IsRequirementProcessed(ctx context.Context, hash string) (bool, error)

	// MarkRequirementProcessed records a processed requirement. Upserts.
	MarkRequirementProcessed(ctx context.Context, hash, requirementID string, caseCount int) error

	// GetProcessedRequirementCount returns how many requirements are tracked.
	GetProcessedRequirementCount(ctx context.Context) (int64, error)

	// ClearProcessedRequirements forgets every tracked requirement without
	// touching stored runs or cases.
	ClearProcessedRequirements(ctx context.Context) error
}

// RequirementHash is the content identity of a requirement: the SHA-256 of the
// fields that shape its prompt. Changing the title, description or priority
// yields a new hash.
func RequirementHash(r testcase.Requirement) string {
	h := sha256.Sum256([]byte(strings.Join([]string{
		strings.TrimSpace(r.Title),
		strings.TrimSpace(r.Description),
		strings.TrimSpace(r.Priority),
	}, "\x00")))
	return hex.EncodeToString(h[:])
}
