package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/bryanwahyu/labpulse/internal/application"
	"github.com/bryanwahyu/labpulse/internal/domain/biomarkers"
	"github.com/bryanwahyu/labpulse/internal/domain/extraction"
	"github.com/bryanwahyu/labpulse/internal/domain/procerrors"
	domain "github.com/bryanwahyu/labpulse/internal/domain/records"
	"github.com/bryanwahyu/labpulse/internal/pkg/logger"
)

// Service implements the record state machine use-cases:
// enqueue → process (extract + classify) → verify → finalize, plus the
// read side (get, list, comparison). Thread-safe; any number of worker
// goroutines may drive ProcessPending concurrently because the claim
// is a conditional update at the storage layer.
type Service struct {
	Repo      domain.Repository
	Files     domain.FileStore
	Extractor extraction.Extractor
	Sealer    domain.Sealer
	Profiles  domain.Profiles
	Failures  procerrors.Repository
	Clock     application.Clock
	Log       *logger.Logger

	// ExtractTimeout bounds the only network suspension point in the
	// pipeline. Zero means no deadline beyond the caller's context.
	ExtractTimeout time.Duration
}

//
// ==== USE CASES ====
//

// UploadCommand carries one raw document plus its metadata.
type UploadCommand struct {
	UserID      string
	Filename    string
	ContentType string
	RecordType  string
	RecordDate  *time.Time
	LabProvider string
	Content     []byte
}

type UploadResult struct {
	RecordID string `json:"record_id"`
	Status   string `json:"status"`
}

// Upload stores the document and creates the record in uploading.
// Fire-and-continue: it returns as soon as the record exists; a worker
// picks it up later. The reported status is "processing", the
// client-facing promise rather than the internal state.
func (s *Service) Upload(ctx context.Context, cmd UploadCommand) (UploadResult, error) {
	if cmd.UserID == "" {
		return UploadResult{}, fmt.Errorf("user id is required")
	}
	if len(cmd.Content) == 0 {
		return UploadResult{}, fmt.Errorf("document is empty")
	}
	if cmd.Filename == "" {
		cmd.Filename = "report"
	}

	now := s.Clock.Now()
	id := uuid.New().String()

	key := fmt.Sprintf("%s/%s/%s", cmd.UserID, id, path.Base(cmd.Filename))
	ref, err := s.Files.Store(ctx, key, cmd.Content, cmd.ContentType)
	if err != nil {
		return UploadResult{}, fmt.Errorf("storing document: %w", err)
	}

	recordType := cmd.RecordType
	if recordType == "" {
		recordType = domain.DefaultRecordType
	}

	rec := &domain.HealthRecord{
		ID:          domain.RecordID(id),
		UserID:      cmd.UserID,
		FileRef:     ref,
		Filename:    cmd.Filename,
		RecordType:  recordType,
		RecordDate:  cmd.RecordDate,
		LabProvider: cmd.LabProvider,
		Status:      domain.StatusUploading,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Repo.Create(ctx, rec); err != nil {
		return UploadResult{}, fmt.Errorf("creating record: %w", err)
	}

	s.Log.Info("record enqueued", "record_id", id, "user_id", cmd.UserID, "filename", cmd.Filename)
	return UploadResult{RecordID: id, Status: "processing"}, nil
}

// ProcessPending claims and processes up to batch uploading records.
// Returns how many records this call actually processed. Safe to run
// from multiple workers; losers of a claim race skip the record.
func (s *Service) ProcessPending(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 5
	}
	pending, err := s.Repo.ListByStatus(ctx, domain.StatusUploading, batch)
	if err != nil {
		return 0, fmt.Errorf("listing uploading records: %w", err)
	}

	processed := 0
	for _, rec := range pending {
		if err := s.ProcessRecord(ctx, rec); err != nil {
			if errors.Is(err, domain.ErrAlreadyClaimed) {
				continue
			}
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// ProcessRecord drives one record through extraction and classification:
// claim → fetch document → extract (with timeout) → classify →
// pending_review. Extraction failures and zero-candidate results move
// the record to failed; that transition is terminal. Storage errors
// after the claim leave the record in processing for the watchdog.
func (s *Service) ProcessRecord(ctx context.Context, rec *domain.HealthRecord) error {
	if err := s.Repo.ClaimForProcessing(ctx, rec.ID); err != nil {
		return err
	}
	rec.Status = domain.StatusProcessing
	log := s.Log.With("record_id", string(rec.ID), "user_id", rec.UserID)

	raw, err := s.Files.Fetch(ctx, rec.FileRef)
	if err != nil {
		// Storage trouble is not an extraction failure: leave the
		// record in processing for the watchdog.
		return fmt.Errorf("fetching document: %w", err)
	}
	text := string(raw)

	extractCtx := ctx
	if s.ExtractTimeout > 0 {
		var cancel context.CancelFunc
		extractCtx, cancel = context.WithTimeout(ctx, s.ExtractTimeout)
		defer cancel()
	}

	candidates, err := s.Extractor.Extract(extractCtx, text)
	if err != nil {
		return s.failRecord(ctx, rec, "extract", fmt.Sprintf("extraction failed: %v", err))
	}
	if len(candidates) == 0 {
		return s.failRecord(ctx, rec, "extract", "no biomarkers extracted")
	}

	sealed, err := s.Sealer.Seal(raw)
	if err != nil {
		// Not a terminal extraction failure: leave the record in
		// processing so the watchdog can sweep it.
		return fmt.Errorf("sealing raw text: %w", err)
	}

	rec.RawTextSealed = sealed
	rec.Biomarkers = biomarkers.ClassifyAll(candidates)
	rec.Status = domain.StatusPendingReview
	rec.UpdatedAt = s.Clock.Now()
	if err := s.Repo.UpdateFromProcessing(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// The watchdog swept this record mid-extraction; failed is
			// terminal, drop the result.
			log.Warn("record swept during extraction, dropping result")
			return nil
		}
		return fmt.Errorf("persisting extraction result: %w", err)
	}

	log.Info("record extracted", "biomarkers", len(rec.Biomarkers))
	return nil
}

// failRecord moves a record to the terminal failed state and writes an
// audit row. No automatic retry: a retry is a new user upload.
func (s *Service) failRecord(ctx context.Context, rec *domain.HealthRecord, phase, message string) error {
	if !rec.Status.CanTransitionTo(domain.StatusFailed) {
		return fmt.Errorf("%w: %s record cannot fail", domain.ErrInvalidTransition, rec.Status)
	}
	rec.Status = domain.StatusFailed
	rec.ErrorMessage = message
	rec.UpdatedAt = s.Clock.Now()
	if err := s.Repo.UpdateFromProcessing(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Already failed by the watchdog; its message stands.
			return nil
		}
		return fmt.Errorf("marking record failed: %w", err)
	}
	if s.Failures != nil {
		_ = s.Failures.Save(ctx, &procerrors.ProcessingError{
			UserID:    rec.UserID,
			RecordID:  string(rec.ID),
			Phase:     phase,
			Message:   message,
			CreatedAt: s.Clock.Now(),
		})
	}
	s.Log.Warn("record failed", "record_id", string(rec.ID), "phase", phase, "error", message)
	return nil
}

// BiomarkerEdit is one user correction, keyed by biomarker name.
// Value is loosely typed on the wire; coercion failures reject the
// single edit, never the whole request.
type BiomarkerEdit struct {
	Name     string `json:"name"`
	Value    any    `json:"value,omitempty"`
	Unit     string `json:"unit,omitempty"`
	Verified bool   `json:"verified"`
}

// RejectedEdit tells the caller which edits did not apply and why.
type RejectedEdit struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type VerifyCommand struct {
	UserID   string
	RecordID domain.RecordID
	Edits    []BiomarkerEdit
	Approved bool
}

type VerifyResult struct {
	Biomarkers    []biomarkers.Biomarker `json:"biomarkers"`
	Status        domain.Status          `json:"status"`
	RejectedEdits []RejectedEdit         `json:"rejected_edits,omitempty"`
}

// Verify applies user edits to a pending_review record and, when
// approved, finalizes it. Concurrent submissions (two devices) are
// guarded by the record's updated_at token: the loser gets ErrConflict
// and must re-read. Bad edits are rejected per-edit.
func (s *Service) Verify(ctx context.Context, cmd VerifyCommand) (VerifyResult, error) {
	rec, err := s.Repo.Get(ctx, cmd.UserID, cmd.RecordID)
	if err != nil {
		return VerifyResult{}, err
	}

	// Re-approving a completed record just re-runs finalize, which is
	// idempotent. Everything else requires pending_review.
	if rec.Status == domain.StatusCompleted && cmd.Approved && len(cmd.Edits) == 0 {
		if err := s.finalize(ctx, rec); err != nil {
			return VerifyResult{}, err
		}
		token := rec.UpdatedAt
		rec.UpdatedAt = s.Clock.Now()
		if err := s.Repo.UpdateWithToken(ctx, rec, token); err != nil {
			return VerifyResult{}, err
		}
		return VerifyResult{Biomarkers: rec.Biomarkers, Status: rec.Status}, nil
	}
	if rec.Status != domain.StatusPendingReview {
		return VerifyResult{}, fmt.Errorf("%w: record is %s", domain.ErrInvalidTransition, rec.Status)
	}

	token := rec.UpdatedAt
	var rejected []RejectedEdit
	for _, edit := range cmd.Edits {
		idx := rec.FindBiomarker(edit.Name)
		if idx < 0 {
			rejected = append(rejected, RejectedEdit{Name: edit.Name, Reason: "unknown biomarker"})
			continue
		}
		b := rec.Biomarkers[idx]
		if edit.Value != nil {
			v, err := coerceFloat(edit.Value)
			if err != nil {
				rejected = append(rejected, RejectedEdit{Name: edit.Name, Reason: err.Error()})
				continue
			}
			b.Value = v
		}
		if edit.Unit != "" {
			b.Unit = edit.Unit
		}
		// Re-classify so the status matches the corrected value.
		reclassified := biomarkers.Classify(biomarkers.Measurement{
			Name:       b.Name,
			Value:      b.Value,
			Unit:       b.Unit,
			Confidence: b.Confidence,
		})
		reclassified.Verified = true
		rec.Biomarkers[idx] = reclassified
	}

	if cmd.Approved {
		if err := s.finalize(ctx, rec); err != nil {
			return VerifyResult{}, err
		}
	}

	rec.UpdatedAt = s.Clock.Now()
	if err := s.Repo.UpdateWithToken(ctx, rec, token); err != nil {
		return VerifyResult{}, err
	}

	return VerifyResult{
		Biomarkers:    rec.Biomarkers,
		Status:        rec.Status,
		RejectedEdits: rejected,
	}, nil
}

// finalize computes the derived fields and moves the record to
// completed. Pure over (biomarkers, chronological age): re-running it
// on unchanged inputs yields byte-identical derived fields.
func (s *Service) finalize(ctx context.Context, rec *domain.HealthRecord) error {
	if rec.Status != domain.StatusCompleted && !rec.Status.CanTransitionTo(domain.StatusCompleted) {
		return fmt.Errorf("%w: record is %s", domain.ErrInvalidTransition, rec.Status)
	}
	if len(rec.Biomarkers) == 0 {
		return domain.ErrNoBiomarkers
	}

	var age *int
	if s.Profiles != nil {
		a, err := s.Profiles.ChronologicalAge(ctx, rec.UserID)
		if err != nil {
			return fmt.Errorf("looking up chronological age: %w", err)
		}
		age = a
	}

	score := biomarkers.WellnessScore(rec.Biomarkers)
	rec.WellnessScore = &score
	rec.HealthAge = biomarkers.HealthAge(rec.Biomarkers, age)
	analysis := biomarkers.BuildAnalysis(rec.Biomarkers)
	rec.Analysis = &analysis
	rec.ErrorMessage = ""
	rec.Status = domain.StatusCompleted
	return nil
}

// Get returns one record scoped to its owner.
func (s *Service) Get(ctx context.Context, userID string, id domain.RecordID) (*domain.HealthRecord, error) {
	return s.Repo.Get(ctx, userID, id)
}

// List returns a page of the user's records, newest first.
func (s *Service) List(ctx context.Context, userID string, page, pageSize int) (domain.PaginatedResult, error) {
	return s.Repo.ListByUser(ctx, userID, page, pageSize)
}

// Compare runs the trend engine over the user's completed history.
// Read-only projection; stored records are never touched.
func (s *Service) Compare(ctx context.Context, userID string) (biomarkers.Comparison, error) {
	completed, err := s.Repo.ListCompleted(ctx, userID)
	if err != nil {
		return biomarkers.Comparison{}, err
	}
	snapshots := make([]biomarkers.RecordSnapshot, 0, len(completed))
	for _, rec := range completed {
		snapshots = append(snapshots, biomarkers.RecordSnapshot{
			Date:       rec.EffectiveDate(),
			Biomarkers: rec.Biomarkers,
		})
	}
	return biomarkers.ComputeTrends(snapshots), nil
}

// Failures lists the audit trail for one record.
func (s *Service) RecordFailures(ctx context.Context, userID, recordID string, limit int) ([]*procerrors.ProcessingError, error) {
	if s.Failures == nil {
		return nil, nil
	}
	return s.Failures.ListByRecord(ctx, userID, recordID, limit)
}

// SweepStale fails records stuck in processing longer than maxAge.
func (s *Service) SweepStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.Clock.Now().Add(-maxAge)
	return s.Repo.SweepStale(ctx, cutoff, "processing timed out")
}

func coerceFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, fmt.Errorf("non-numeric value")
		}
		return val, nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("non-numeric value")
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("non-numeric value")
		}
		return f, nil
	default:
		return 0, fmt.Errorf("non-numeric value")
	}
}
