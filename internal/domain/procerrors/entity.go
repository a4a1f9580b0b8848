package procerrors

import "time"

// ProcessingError represents a persisted pipeline failure entry, kept
// for auditing after a record moves to failed.
type ProcessingError struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	RecordID    string    `json:"record_id"`
	Phase       string    `json:"phase,omitempty"` // pipeline step that failed, e.g. "extract"
	Message     string    `json:"message"`
	DetailsJSON string    `json:"details_json,omitempty"` // raw JSON string
	CreatedAt   time.Time `json:"created_at"`
}
