package records

import "errors"

// ErrNotFound: no record for the given user/id pair.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyClaimed: another worker won the uploading→processing race.
var ErrAlreadyClaimed = errors.New("record already claimed")

// ErrConflict: optimistic-concurrency token did not match; the caller
// must re-read current state before trying again.
var ErrConflict = errors.New("record was modified concurrently")

// ErrNoBiomarkers: finalize requires at least one biomarker.
var ErrNoBiomarkers = errors.New("no biomarkers extracted")

// ErrInvalidTransition: requested status change violates the lifecycle.
var ErrInvalidTransition = errors.New("invalid status transition")
