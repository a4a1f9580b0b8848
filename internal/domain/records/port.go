package records

import (
	"context"
	"time"
)

// Repository port (interface for persistence). The repository is the
// only component that writes records; services compute values and hand
// them back here.
type Repository interface {
	Create(ctx context.Context, r *HealthRecord) error
	Get(ctx context.Context, userID string, id RecordID) (*HealthRecord, error)
	ListByUser(ctx context.Context, userID string, page, pageSize int) (PaginatedResult, error)
	ListCompleted(ctx context.Context, userID string) ([]*HealthRecord, error)

	// Worker side. ListByStatus is unscoped by user; the claim keeps
	// two workers off the same record.
	ListByStatus(ctx context.Context, status Status, limit int) ([]*HealthRecord, error)

	// ClaimForProcessing is the atomic uploading→processing transition:
	// a conditional update keyed on current status. Returns
	// ErrAlreadyClaimed when the record is no longer in uploading.
	ClaimForProcessing(ctx context.Context, id RecordID) error

	// Update persists biomarkers, derived fields, status and error
	// message for a record the caller exclusively holds.
	Update(ctx context.Context, r *HealthRecord) error

	// UpdateFromProcessing is Update guarded by status=processing: the
	// worker's write after extraction. Returns ErrConflict when the
	// record already left processing (the watchdog swept it), so a
	// terminal failed record is never resurrected.
	UpdateFromProcessing(ctx context.Context, r *HealthRecord) error

	// UpdateWithToken is Update guarded by the record's previous
	// updated_at; returns ErrConflict on mismatch. Used for the
	// request-scoped verify/finalize path.
	UpdateWithToken(ctx context.Context, r *HealthRecord, token time.Time) error

	// SweepStale fails records stuck in processing since before cutoff
	// and returns how many were swept.
	SweepStale(ctx context.Context, cutoff time.Time, message string) (int64, error)
}

// FileStore port: where uploaded lab documents live.
type FileStore interface {
	Store(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Sealer port: encryption at rest for the raw extracted text.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// Profiles port: the user/account system is external; the pipeline only
// needs a chronological age. Nil age means unknown.
type Profiles interface {
	ChronologicalAge(ctx context.Context, userID string) (*int, error)
}
