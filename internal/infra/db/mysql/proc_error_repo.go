package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	domain "github.com/bryanwahyu/labpulse/internal/domain/procerrors"
)

type ProcessingErrorRepository struct {
	db *sql.DB
}

func NewProcessingErrorRepository(db *sql.DB) *ProcessingErrorRepository {
	return &ProcessingErrorRepository{db: db}
}

func (r *ProcessingErrorRepository) Save(ctx context.Context, e *domain.ProcessingError) error {
	const q = `
INSERT INTO record_processing_errors
  (user_id, record_id, phase, message, details_json, created_at)
VALUES (?,?,?,?,?,?);
`
	user := stringOrDash(e.UserID)
	record := stringOrDash(e.RecordID)
	phase := stringOrDash(e.Phase)
	msg := e.Message
	if strings.TrimSpace(msg) == "" {
		msg = "-"
	}
	details := e.DetailsJSON
	if strings.TrimSpace(details) == "" {
		details = "{}"
	} else {
		// ensure valid json; if invalid, wrap as string field
		var js any
		if json.Unmarshal([]byte(details), &js) != nil {
			b, _ := json.Marshal(map[string]string{"raw": details})
			details = string(b)
		}
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, q, user, record, phase, msg, details, created)
	return err
}

func (r *ProcessingErrorRepository) ListByRecord(ctx context.Context, userID string, recordID string, limit int) ([]*domain.ProcessingError, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, user_id, record_id, phase, message, details_json, created_at
FROM record_processing_errors
WHERE user_id = ? AND record_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, userID, recordID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.ProcessingError
	for rows.Next() {
		var e domain.ProcessingError
		if err := rows.Scan(&e.ID, &e.UserID, &e.RecordID, &e.Phase, &e.Message, &e.DetailsJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
