package procerrors

import (
	"context"
)

// Repository defines persistence for processing errors
type Repository interface {
	Save(ctx context.Context, e *ProcessingError) error
	ListByRecord(ctx context.Context, userID string, recordID string, limit int) ([]*ProcessingError, error)
}
