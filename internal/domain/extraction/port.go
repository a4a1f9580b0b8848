package extraction

import (
	"context"

	"github.com/bryanwahyu/labpulse/internal/domain/biomarkers"
)

// Extractor is the outbound contract to the AI extraction provider:
// raw document text in, candidate measurements out. Implementations do
// no business logic; classification happens downstream.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]biomarkers.Measurement, error)
}
