package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bryanwahyu/labpulse/internal/domain/biomarkers"
	domain "github.com/bryanwahyu/labpulse/internal/domain/records"
)

type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

const recordColumns = `
id, user_id, file_ref, filename, record_type, record_date, lab_provider,
status, error_message, raw_text_enc, biomarkers_json, analysis_json,
wellness_score, health_age, created_at, updated_at`

// Create inserts a fresh record in uploading.
func (r *RecordRepository) Create(ctx context.Context, rec *domain.HealthRecord) error {
	const q = `
INSERT INTO health_records
(id, user_id, file_ref, filename, record_type, record_date, lab_provider,
 status, error_message, raw_text_enc, biomarkers_json, analysis_json,
 wellness_score, health_age, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?);
`
	bm, an, err := marshalDerived(rec)
	if err != nil {
		return err
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	_, err = r.db.ExecContext(ctx, q,
		rec.ID, rec.UserID, rec.FileRef, rec.Filename, rec.RecordType,
		nullTime(rec.RecordDate), rec.LabProvider,
		stringOrDash(string(rec.Status)), rec.ErrorMessage, rec.RawTextSealed, bm, an,
		nullInt(rec.WellnessScore), nullInt(rec.HealthAge), created, updated,
	)
	return err
}

// Get by user + ID; the user scope is the isolation boundary.
func (r *RecordRepository) Get(ctx context.Context, userID string, id domain.RecordID) (*domain.HealthRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM health_records WHERE user_id=? AND id=? LIMIT 1;`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

// ListByUser returns one page, newest first, plus page metadata.
func (r *RecordRepository) ListByUser(ctx context.Context, userID string, page, pageSize int) (domain.PaginatedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	q := `SELECT ` + recordColumns + `
FROM health_records
WHERE user_id=?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;`
	rows, err := r.db.QueryContext(ctx, q, userID, pageSize, offset)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var out []*domain.HealthRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return domain.PaginatedResult{}, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("iterating rows: %w", err)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM health_records WHERE user_id=?`, userID).Scan(&total); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("getting total count: %w", err)
	}

	return domain.PaginatedResult{
		Data:       out,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

// ListCompleted returns the user's finished history for the trend engine.
func (r *RecordRepository) ListCompleted(ctx context.Context, userID string) ([]*domain.HealthRecord, error) {
	q := `SELECT ` + recordColumns + `
FROM health_records
WHERE user_id=? AND status=?
ORDER BY COALESCE(record_date, created_at) ASC, id ASC;`
	return r.queryMany(ctx, q, userID, domain.StatusCompleted)
}

// ListByStatus feeds the worker; not user-scoped, the claim serializes access.
func (r *RecordRepository) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.HealthRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + recordColumns + `
FROM health_records
WHERE status=?
ORDER BY created_at ASC
LIMIT ?;`
	return r.queryMany(ctx, q, status, limit)
}

// ClaimForProcessing is the atomic uploading→processing transition: a
// conditional update keyed on the current status, so exactly one
// worker ever wins a record.
func (r *RecordRepository) ClaimForProcessing(ctx context.Context, id domain.RecordID) error {
	const q = `
UPDATE health_records
SET status=?, updated_at=?
WHERE id=? AND status=?;`
	res, err := r.db.ExecContext(ctx, q, domain.StatusProcessing, time.Now().UTC(), id, domain.StatusUploading)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrAlreadyClaimed
	}
	return nil
}

// Update persists the mutable part of a record the caller holds.
func (r *RecordRepository) Update(ctx context.Context, rec *domain.HealthRecord) error {
	res, err := r.execUpdate(ctx, rec, "")
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateFromProcessing persists the worker's result only while the
// record is still in processing; a record the watchdog already swept
// to failed stays failed.
func (r *RecordRepository) UpdateFromProcessing(ctx context.Context, rec *domain.HealthRecord) error {
	res, err := r.execUpdate(ctx, rec, " AND status=?", domain.StatusProcessing)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConflict
	}
	return nil
}

// UpdateWithToken is Update guarded by the previous updated_at; a
// mismatch means someone else wrote first.
func (r *RecordRepository) UpdateWithToken(ctx context.Context, rec *domain.HealthRecord, token time.Time) error {
	res, err := r.execUpdate(ctx, rec, " AND updated_at=?", token)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *RecordRepository) execUpdate(ctx context.Context, rec *domain.HealthRecord, guard string, guardArgs ...any) (sql.Result, error) {
	q := `
UPDATE health_records
SET status=?, error_message=?, raw_text_enc=?, biomarkers_json=?, analysis_json=?,
    wellness_score=?, health_age=?, record_date=?, lab_provider=?, updated_at=?
WHERE id=? AND user_id=?` + guard + `;`
	bm, an, err := marshalDerived(rec)
	if err != nil {
		return nil, err
	}
	args := []any{
		stringOrDash(string(rec.Status)), rec.ErrorMessage, rec.RawTextSealed, bm, an,
		nullInt(rec.WellnessScore), nullInt(rec.HealthAge),
		nullTime(rec.RecordDate), rec.LabProvider, rec.UpdatedAt,
		rec.ID, rec.UserID,
	}
	args = append(args, guardArgs...)
	return r.db.ExecContext(ctx, q, args...)
}

// SweepStale fails processing records whose last write predates cutoff.
func (r *RecordRepository) SweepStale(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	const q = `
UPDATE health_records
SET status=?, error_message=?, updated_at=?
WHERE status=? AND updated_at < ?;`
	res, err := r.db.ExecContext(ctx, q, domain.StatusFailed, message, time.Now().UTC(), domain.StatusProcessing, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *RecordRepository) queryMany(ctx context.Context, q string, args ...any) ([]*domain.HealthRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.HealthRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.HealthRecord, error) {
	var rec domain.HealthRecord
	var recordDate sql.NullTime
	var score, age sql.NullInt64
	var bm, an []byte
	if err := row.Scan(
		&rec.ID, &rec.UserID, &rec.FileRef, &rec.Filename, &rec.RecordType,
		&recordDate, &rec.LabProvider, &rec.Status, &rec.ErrorMessage,
		&rec.RawTextSealed, &bm, &an,
		&score, &age, &rec.CreatedAt, &rec.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if recordDate.Valid {
		t := recordDate.Time
		rec.RecordDate = &t
	}
	if score.Valid {
		v := int(score.Int64)
		rec.WellnessScore = &v
	}
	if age.Valid {
		v := int(age.Int64)
		rec.HealthAge = &v
	}
	if len(bm) > 0 {
		if err := json.Unmarshal(bm, &rec.Biomarkers); err != nil {
			return nil, fmt.Errorf("decoding biomarkers: %w", err)
		}
	}
	if len(an) > 0 && string(an) != "null" {
		var a biomarkers.Analysis
		if err := json.Unmarshal(an, &a); err != nil {
			return nil, fmt.Errorf("decoding analysis: %w", err)
		}
		rec.Analysis = &a
	}
	return &rec, nil
}

func marshalDerived(rec *domain.HealthRecord) ([]byte, []byte, error) {
	bm, err := json.Marshal(rec.Biomarkers)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding biomarkers: %w", err)
	}
	an, err := json.Marshal(rec.Analysis)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding analysis: %w", err)
	}
	return bm, an, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
