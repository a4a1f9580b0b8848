package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ProfileRepository resolves the one thing the pipeline needs from the
// external account system: a user's chronological age. Nil when the
// profile or birth date is missing.
type ProfileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) ChronologicalAge(ctx context.Context, userID string) (*int, error) {
	const q = `SELECT birth_date FROM user_profiles WHERE user_id=? LIMIT 1;`
	var birth sql.NullTime
	if err := r.db.QueryRowContext(ctx, q, userID).Scan(&birth); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if !birth.Valid {
		return nil, nil
	}
	age := yearsSince(birth.Time, time.Now().UTC())
	return &age, nil
}

func yearsSince(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	anniversary := birth.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	if years < 0 {
		years = 0
	}
	return years
}
