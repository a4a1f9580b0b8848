package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/lib/pq"

	"github.com/bryanwahyu/labpulse/internal/domain/biomarkers"
	domain "github.com/bryanwahyu/labpulse/internal/domain/records"
)

// RecordRepository is the Postgres twin of the MySQL repository, for
// deployments that already run Postgres. Same schema, $n placeholders.
type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		return nil, err
	}
	return db, nil
}

const recordColumns = `
id, user_id, file_ref, filename, record_type, record_date, lab_provider,
status, error_message, raw_text_enc, biomarkers_json, analysis_json,
wellness_score, health_age, created_at, updated_at`

func (r *RecordRepository) Create(ctx context.Context, rec *domain.HealthRecord) error {
	const q = `
INSERT INTO health_records
(id, user_id, file_ref, filename, record_type, record_date, lab_provider,
 status, error_message, raw_text_enc, biomarkers_json, analysis_json,
 wellness_score, health_age, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16);
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
		string(rec.Status), rec.ErrorMessage, rec.RawTextSealed, bm, an,
		nullInt(rec.WellnessScore), nullInt(rec.HealthAge), created, updated,
	)
	return err
}

func (r *RecordRepository) Get(ctx context.Context, userID string, id domain.RecordID) (*domain.HealthRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM health_records WHERE user_id=$1 AND id=$2 LIMIT 1;`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, userID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return rec, err
}

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
WHERE user_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3;`
	recs, err := r.queryMany(ctx, q, userID, pageSize, offset)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("querying records: %w", err)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM health_records WHERE user_id=$1`, userID).Scan(&total); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("getting total count: %w", err)
	}

	return domain.PaginatedResult{
		Data:       recs,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

func (r *RecordRepository) ListCompleted(ctx context.Context, userID string) ([]*domain.HealthRecord, error) {
	q := `SELECT ` + recordColumns + `
FROM health_records
WHERE user_id=$1 AND status=$2
ORDER BY COALESCE(record_date, created_at) ASC, id ASC;`
	return r.queryMany(ctx, q, userID, domain.StatusCompleted)
}

func (r *RecordRepository) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]*domain.HealthRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT ` + recordColumns + `
FROM health_records
WHERE status=$1
ORDER BY created_at ASC
LIMIT $2;`
	return r.queryMany(ctx, q, status, limit)
}

func (r *RecordRepository) ClaimForProcessing(ctx context.Context, id domain.RecordID) error {
	const q = `
UPDATE health_records
SET status=$1, updated_at=$2
WHERE id=$3 AND status=$4;`
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

func (r *RecordRepository) UpdateFromProcessing(ctx context.Context, rec *domain.HealthRecord) error {
	res, err := r.execUpdate(ctx, rec, " AND status=$13", domain.StatusProcessing)
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

func (r *RecordRepository) UpdateWithToken(ctx context.Context, rec *domain.HealthRecord, token time.Time) error {
	res, err := r.execUpdate(ctx, rec, " AND updated_at=$13", token)
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
SET status=$1, error_message=$2, raw_text_enc=$3, biomarkers_json=$4, analysis_json=$5,
    wellness_score=$6, health_age=$7, record_date=$8, lab_provider=$9, updated_at=$10
WHERE id=$11 AND user_id=$12` + guard + `;`
	bm, an, err := marshalDerived(rec)
	if err != nil {
		return nil, err
	}
	args := []any{
		string(rec.Status), rec.ErrorMessage, rec.RawTextSealed, bm, an,
		nullInt(rec.WellnessScore), nullInt(rec.HealthAge),
		nullTime(rec.RecordDate), rec.LabProvider, rec.UpdatedAt,
		rec.ID, rec.UserID,
	}
	args = append(args, guardArgs...)
	return r.db.ExecContext(ctx, q, args...)
}

func (r *RecordRepository) SweepStale(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	const q = `
UPDATE health_records
SET status=$1, error_message=$2, updated_at=$3
WHERE status=$4 AND updated_at < $5;`
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
