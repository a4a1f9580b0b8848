package records

import (
	"time"

	"github.com/bryanwahyu/labpulse/internal/domain/biomarkers"
)

// ID tipe for HealthRecord
type RecordID string

// Status enum for the record lifecycle
type Status string

const (
	StatusUploading     Status = "uploading"
	StatusProcessing    Status = "processing"
	StatusPendingReview Status = "pending_review"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
)

// rank orders the happy path; failed sits outside it.
var rank = map[Status]int{
	StatusUploading:     0,
	StatusProcessing:    1,
	StatusPendingReview: 2,
	StatusCompleted:     3,
}

// CanTransitionTo enforces the lifecycle: forward one step at a time
// along uploading → processing → pending_review → completed, with
// failed reachable only from processing or pending_review.
func (s Status) CanTransitionTo(next Status) bool {
	if next == StatusFailed {
		return s == StatusProcessing || s == StatusPendingReview
	}
	cur, ok := rank[s]
	if !ok {
		return false
	}
	nxt, ok := rank[next]
	if !ok {
		return false
	}
	return nxt == cur+1
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Aggregate Root: HealthRecord, one uploaded lab document plus its
// derived analysis. RawTextSealed holds the AEAD ciphertext of the
// extracted text; plaintext never lands in storage or logs.
type HealthRecord struct {
	ID           RecordID   `json:"id"`
	UserID       string     `json:"user_id"`
	FileRef      string     `json:"file_ref,omitempty"`
	Filename     string     `json:"filename,omitempty"`
	RecordType   string     `json:"record_type"`
	RecordDate   *time.Time `json:"record_date,omitempty"`
	LabProvider  string     `json:"lab_provider,omitempty"`
	Status       Status     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`

	RawTextSealed []byte `json:"-"`

	Biomarkers []biomarkers.Biomarker `json:"biomarkers,omitempty"`

	Analysis      *biomarkers.Analysis `json:"analysis,omitempty"`
	WellnessScore *int                 `json:"wellness_score,omitempty"`
	HealthAge     *int                 `json:"health_age,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultRecordType when the upload does not declare one.
const DefaultRecordType = "blood panel"

// EffectiveDate is the date trends order by: the declared record date
// when present, otherwise the upload time.
func (r *HealthRecord) EffectiveDate() time.Time {
	if r.RecordDate != nil {
		return *r.RecordDate
	}
	return r.CreatedAt
}

// FindBiomarker returns the index of the biomarker matching name
// case-insensitively (after normalization), or -1.
func (r *HealthRecord) FindBiomarker(name string) int {
	want := biomarkers.Normalize(name)
	for i, b := range r.Biomarkers {
		if biomarkers.Normalize(b.Name) == want {
			return i
		}
	}
	return -1
}
