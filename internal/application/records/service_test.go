package records

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/labpulse/internal/domain/biomarkers"
	"github.com/bryanwahyu/labpulse/internal/domain/procerrors"
	domain "github.com/bryanwahyu/labpulse/internal/domain/records"
	"github.com/bryanwahyu/labpulse/internal/pkg/logger"
)

//
// ==== in-memory fakes ====
//

type memRepo struct {
	mu      sync.Mutex
	records map[domain.RecordID]*domain.HealthRecord

	// afterGet runs with the lock held, after Get clones a record.
	// Tests use it to simulate a concurrent writer.
	afterGet func(stored *domain.HealthRecord)
}

func newMemRepo() *memRepo {
	return &memRepo{records: map[domain.RecordID]*domain.HealthRecord{}}
}

func cloneRecord(r *domain.HealthRecord) *domain.HealthRecord {
	cp := *r
	if r.RecordDate != nil {
		d := *r.RecordDate
		cp.RecordDate = &d
	}
	if r.RawTextSealed != nil {
		cp.RawTextSealed = append([]byte(nil), r.RawTextSealed...)
	}
	if r.Biomarkers != nil {
		cp.Biomarkers = append([]biomarkers.Biomarker(nil), r.Biomarkers...)
	}
	if r.Analysis != nil {
		a := *r.Analysis
		cp.Analysis = &a
	}
	if r.WellnessScore != nil {
		v := *r.WellnessScore
		cp.WellnessScore = &v
	}
	if r.HealthAge != nil {
		v := *r.HealthAge
		cp.HealthAge = &v
	}
	return &cp
}

func (m *memRepo) Create(_ context.Context, r *domain.HealthRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID] = cloneRecord(r)
	return nil
}

func (m *memRepo) Get(_ context.Context, userID string, id domain.RecordID) (*domain.HealthRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[id]
	if !ok || stored.UserID != userID {
		return nil, domain.ErrNotFound
	}
	out := cloneRecord(stored)
	if m.afterGet != nil {
		m.afterGet(stored)
	}
	return out, nil
}

func (m *memRepo) ListByUser(_ context.Context, userID string, page, pageSize int) (domain.PaginatedResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var data []*domain.HealthRecord
	for _, r := range m.records {
		if r.UserID == userID {
			data = append(data, cloneRecord(r))
		}
	}
	return domain.PaginatedResult{Data: data, Page: page, PageSize: pageSize, Total: int64(len(data)), TotalPages: 1}, nil
}

func (m *memRepo) ListCompleted(_ context.Context, userID string) ([]*domain.HealthRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.HealthRecord
	for _, r := range m.records {
		if r.UserID == userID && r.Status == domain.StatusCompleted {
			out = append(out, cloneRecord(r))
		}
	}
	return out, nil
}

func (m *memRepo) ListByStatus(_ context.Context, status domain.Status, limit int) ([]*domain.HealthRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.HealthRecord
	for _, r := range m.records {
		if r.Status == status {
			out = append(out, cloneRecord(r))
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memRepo) ClaimForProcessing(_ context.Context, id domain.RecordID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != domain.StatusUploading {
		return domain.ErrAlreadyClaimed
	}
	stored.Status = domain.StatusProcessing
	return nil
}

func (m *memRepo) Update(_ context.Context, r *domain.HealthRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[r.ID]; !ok {
		return domain.ErrNotFound
	}
	m.records[r.ID] = cloneRecord(r)
	return nil
}

func (m *memRepo) UpdateFromProcessing(_ context.Context, r *domain.HealthRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[r.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Status != domain.StatusProcessing {
		return domain.ErrConflict
	}
	m.records[r.ID] = cloneRecord(r)
	return nil
}

func (m *memRepo) UpdateWithToken(_ context.Context, r *domain.HealthRecord, token time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[r.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if !stored.UpdatedAt.Equal(token) {
		return domain.ErrConflict
	}
	m.records[r.ID] = cloneRecord(r)
	return nil
}

func (m *memRepo) SweepStale(_ context.Context, cutoff time.Time, message string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.records {
		if r.Status == domain.StatusProcessing && r.UpdatedAt.Before(cutoff) {
			r.Status = domain.StatusFailed
			r.ErrorMessage = message
			n++
		}
	}
	return n, nil
}

type fakeFiles struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	fetchErr error
}

func newFakeFiles() *fakeFiles { return &fakeFiles{blobs: map[string][]byte{}} }

func (f *fakeFiles) Store(_ context.Context, key string, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = append([]byte(nil), data...)
	return key, nil
}

func (f *fakeFiles) Fetch(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	b, ok := f.blobs[key]
	if !ok {
		return nil, fmt.Errorf("no object %q", key)
	}
	return append([]byte(nil), b...), nil
}

type fakeExtractor struct {
	mu         sync.Mutex
	calls      int
	candidates []biomarkers.Measurement
	err        error

	// hook runs while the extraction call is in flight, outside the
	// fake's lock; tests use it to interleave other pipeline activity.
	hook func()
}

func (f *fakeExtractor) Extract(_ context.Context, _ string) ([]biomarkers.Measurement, error) {
	f.mu.Lock()
	f.calls++
	hook := f.hook
	candidates, err := f.candidates, f.err
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSealer struct{ err error }

func (f fakeSealer) Seal(p []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("sealed:"), p...), nil
}

func (f fakeSealer) Open(c []byte) ([]byte, error) {
	return c[len("sealed:"):], nil
}

type fakeProfiles struct{ age *int }

func (f fakeProfiles) ChronologicalAge(_ context.Context, _ string) (*int, error) {
	return f.age, nil
}

type fakeFailures struct {
	mu    sync.Mutex
	saved []*procerrors.ProcessingError
}

func (f *fakeFailures) Save(_ context.Context, e *procerrors.ProcessingError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, e)
	return nil
}

func (f *fakeFailures) ListByRecord(_ context.Context, userID, recordID string, _ int) ([]*procerrors.ProcessingError, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*procerrors.ProcessingError
	for _, e := range f.saved {
		if e.UserID == userID && e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

//
// ==== fixtures ====
//

type fixture struct {
	svc       *Service
	repo      *memRepo
	files     *fakeFiles
	extractor *fakeExtractor
	failures  *fakeFailures
	clock     *fixedClock
}

func newFixture(age *int) *fixture {
	f := &fixture{
		repo:      newMemRepo(),
		files:     newFakeFiles(),
		extractor: &fakeExtractor{},
		failures:  &fakeFailures{},
		clock:     &fixedClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.svc = &Service{
		Repo:      f.repo,
		Files:     f.files,
		Extractor: f.extractor,
		Sealer:    fakeSealer{},
		Profiles:  fakeProfiles{age: age},
		Failures:  f.failures,
		Clock:     f.clock,
		Log:       logger.Nop(),
	}
	return f
}

func specCandidates() []biomarkers.Measurement {
	return []biomarkers.Measurement{
		{Name: "Vitamin D", Value: 24, Unit: "ng/mL", Confidence: 0.97},
		{Name: "LDL", Value: 150, Unit: "mg/dL", Confidence: 0.95},
		{Name: "HDL", Value: 65, Unit: "mg/dL", Confidence: 0.95},
	}
}

func (f *fixture) upload(t *testing.T, user string) domain.RecordID {
	t.Helper()
	res, err := f.svc.Upload(context.Background(), UploadCommand{
		UserID:   user,
		Filename: "panel.pdf",
		Content:  []byte("raw lab report text"),
	})
	require.NoError(t, err)
	return domain.RecordID(res.RecordID)
}

func (f *fixture) processOne(t *testing.T, user string, id domain.RecordID) {
	t.Helper()
	rec, err := f.repo.Get(context.Background(), user, id)
	require.NoError(t, err)
	require.NoError(t, f.svc.ProcessRecord(context.Background(), rec))
}

//
// ==== tests ====
//

func TestUploadCreatesUploadingRecord(t *testing.T) {
	f := newFixture(nil)

	res, err := f.svc.Upload(context.Background(), UploadCommand{
		UserID:   "user-1",
		Filename: "panel.pdf",
		Content:  []byte("raw lab report text"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RecordID)
	assert.Equal(t, "processing", res.Status)

	rec, err := f.repo.Get(context.Background(), "user-1", domain.RecordID(res.RecordID))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUploading, rec.Status)
	assert.Equal(t, domain.DefaultRecordType, rec.RecordType)
	assert.Equal(t, f.clock.t, rec.CreatedAt)

	stored, err := f.files.Fetch(context.Background(), rec.FileRef)
	require.NoError(t, err)
	assert.Equal(t, []byte("raw lab report text"), stored)
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(nil)

	_, err := f.svc.Upload(context.Background(), UploadCommand{Filename: "x", Content: []byte("a")})
	assert.Error(t, err)

	_, err = f.svc.Upload(context.Background(), UploadCommand{UserID: "u", Filename: "x"})
	assert.Error(t, err)
}

func TestProcessRecordHappyPath(t *testing.T) {
	f := newFixture(nil)
	f.extractor.candidates = specCandidates()

	id := f.upload(t, "user-1")
	f.processOne(t, "user-1", id)

	rec, err := f.repo.Get(context.Background(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingReview, rec.Status)
	assert.Equal(t, []byte("sealed:raw lab report text"), rec.RawTextSealed)

	require.Len(t, rec.Biomarkers, 3)
	assert.Equal(t, "vitamin d", rec.Biomarkers[0].Name)
	assert.Equal(t, biomarkers.StatusLow, rec.Biomarkers[0].Status)
	assert.Equal(t, "ldl cholesterol", rec.Biomarkers[1].Name)
	assert.Equal(t, biomarkers.StatusHigh, rec.Biomarkers[1].Status)
	assert.Equal(t, "hdl cholesterol", rec.Biomarkers[2].Name)
	assert.Equal(t, biomarkers.StatusOptimal, rec.Biomarkers[2].Status)
	for _, b := range rec.Biomarkers {
		assert.False(t, b.Verified)
	}
}

func TestProcessRecordZeroCandidatesFails(t *testing.T) {
	f := newFixture(nil)
	f.extractor.candidates = nil

	id := f.upload(t, "user-1")
	f.processOne(t, "user-1", id)

	rec, err := f.repo.Get(context.Background(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, rec.Status)
	assert.Equal(t, "no biomarkers extracted", rec.ErrorMessage)

	audit, err := f.failures.ListByRecord(context.Background(), "user-1", string(id), 10)
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, "extract", audit[0].Phase)
}

func TestProcessRecordExtractorErrorFails(t *testing.T) {
	f := newFixture(nil)
	f.extractor.err = errors.New("model unavailable")

	id := f.upload(t, "user-1")
	f.processOne(t, "user-1", id)

	rec, err := f.repo.Get(context.Background(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, rec.Status)
	assert.Contains(t, rec.ErrorMessage, "model unavailable")
}

func TestProcessRecordSecondClaimLoses(t *testing.T) {
	f := newFixture(nil)
	f.extractor.candidates = specCandidates()

	id := f.upload(t, "user-1")
	rec, err := f.repo.Get(context.Background(), "user-1", id)
	require.NoError(t, err)
	// both workers read the record while it was still uploading
	stale := cloneRecord(rec)

	require.NoError(t, f.svc.ProcessRecord(context.Background(), rec))
	err = f.svc.ProcessRecord(context.Background(), stale)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	assert.Equal(t, 1, f.extractor.callCount())
}

func TestProcessRecordSweptDuringExtractionStaysFailed(t *testing.T) {
	f := newFixture(nil)
	f.extractor.candidates = specCandidates()
	// the watchdog fires while the extraction call is still in flight
	f.extractor.hook = func() {
		f.clock.advance(30 * time.Minute)
		n, err := f.svc.SweepStale(context.Background(), 10*time.Minute)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
	}

	id := f.upload(t, "user-1")
	rec, err := f.repo.Get(context.Background(), "user-1", id)
	require.NoError(t, err)
	require.NoError(t, f.svc.ProcessRecord(context.Background(), rec))

	// failed is terminal: the late extraction result must not revive it
	got, err := f.repo.Get(context.Background(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "processing timed out", got.ErrorMessage)
	assert.Empty(t, got.Biomarkers)
	assert.Empty(t, got.RawTextSealed)
}

func TestProcessRecordFetchErrorLeavesProcessing(t *testing.T) {
	f := newFixture(nil)
	f.extractor.candidates = specCandidates()
	f.files.fetchErr = errors.New("storage unreachable")

	id := f.upload(t, "user-1")
	rec, err := f.repo.Get(context.Background(), "user-1", id)
	require.NoError(t, err)
	err = f.svc.ProcessRecord(context.Background(), rec)
	require.Error(t, err)

	got, err := f.repo.Get(context.Background(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)
	assert.Zero(t, f.extractor.callCount())

	audit, err := f.failures.ListByRecord(context.Background(), "user-1", string(id), 10)
	require.NoError(t, err)
	assert.Empty(t, audit)
}

func TestProcessRecordSealErrorLeavesProcessing(t *testing.T) {
	f := newFixture(nil)
	f.extractor.candidates = specCandidates()
	f.svc.Sealer = fakeSealer{err: errors.New("bad key")}

	id := f.upload(t, "user-1")
	rec, err := f.repo.Get(context.Background(), "user-1", id)
	require.NoError(t, err)
	err = f.svc.ProcessRecord(context.Background(), rec)
	require.Error(t, err)

	got, err := f.repo.Get(context.Background(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, got.Status)
}

func TestProcessPendingSkipsClaimed(t *testing.T) {
	f := newFixture(nil)
	f.extractor.candidates = specCandidates()

	a := f.upload(t, "user-1")
	b := f.upload(t, "user-1")
	// another worker already took record a
	require.NoError(t, f.repo.ClaimForProcessing(context.Background(), a))

	n, err := f.svc.ProcessPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := f.repo.Get(context.Background(), "user-1", b)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingReview, rec.Status)
}

func TestVerifyRequiresPendingReview(t *testing.T) {
	f := newFixture(nil)
	id := f.upload(t, "user-1")

	_, err := f.svc.Verify(context.Background(), VerifyCommand{
		UserID: "user-1", RecordID: id, Approved: true,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestVerifyFailedRecordRejected(t *testing.T) {
	f := newFixture(nil)
	f.extractor.candidates = nil
	id := f.upload(t, "user-1")
	f.processOne(t, "user-1", id) // zero candidates, terminal failed

	_, err := f.svc.Verify(context.Background(), VerifyCommand{
		UserID: "user-1", RecordID: id, Approved: true,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	rec, err := f.repo.Get(context.Background(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, rec.Status)
}

func TestVerifyRejectsBadEditsIndividually(t *testing.T) {
	f := newFixture(nil)
	f.extractor.candidates = specCandidates()
	id := f.upload(t, "user-1")
	f.processOne(t, "user-1", id)

	res, err := f.svc.Verify(context.Background(), VerifyCommand{
		UserID:   "user-1",
		RecordID: id,
		Edits: []BiomarkerEdit{
			{Name: "not a marker", Value: float64(5)},
			{Name: "ldl", Value: "abc"},
			{Name: "vitamin d", Value: float64(45), Verified: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingReview, res.Status)

	require.Len(t, res.RejectedEdits, 2)
	assert.Equal(t, "not a marker", res.RejectedEdits[0].Name)
	assert.Equal(t, "unknown biomarker", res.RejectedEdits[0].Reason)
	assert.Equal(t, "ldl", res.RejectedEdits[1].Name)
	assert.Equal(t, "non-numeric value", res.RejectedEdits[1].Reason)

	// the good edit applied and was re-classified
	idx := -1
	for i, b := range res.Biomarkers {
		if b.Name == "vitamin d" {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, 45.0, res.Biomarkers[idx].Value)
	assert.Equal(t, biomarkers.StatusOptimal, res.Biomarkers[idx].Status)
	assert.True(t, res.Biomarkers[idx].Verified)

	// the rejected edit left ldl untouched
	rec, err := f.repo.Get(context.Background(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, 150.0, rec.Biomarkers[1].Value)
	assert.False(t, rec.Biomarkers[1].Verified)
}

func TestVerifyStringValueEdit(t *testing.T) {
	f := newFixture(nil)
	f.extractor.candidates = specCandidates()
	id := f.upload(t, "user-1")
	f.processOne(t, "user-1", id)

	res, err := f.svc.Verify(context.Background(), VerifyCommand{
		UserID:   "user-1",
		RecordID: id,
		Edits:    []BiomarkerEdit{{Name: "ldl", Value: "120"}},
	})
	require.NoError(t, err)
	assert.Empty(t, res.RejectedEdits)
	assert.Equal(t, 120.0, res.Biomarkers[1].Value)
	assert.Equal(t, biomarkers.StatusOptimal, res.Biomarkers[1].Status)
}

func TestVerifyApprovedFinalizes(t *testing.T) {
	age := 40
	f := newFixture(&age)
	f.extractor.candidates = specCandidates()
	id := f.upload(t, "user-1")
	f.processOne(t, "user-1", id)

	res, err := f.svc.Verify(context.Background(), VerifyCommand{
		UserID: "user-1", RecordID: id, Approved: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)

	rec, err := f.repo.Get(context.Background(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, rec.Status)
	require.NotNil(t, rec.WellnessScore)
	assert.Equal(t, 53, *rec.WellnessScore)
	// vitamin d low +1, ldl high +2 on top of age 40
	require.NotNil(t, rec.HealthAge)
	assert.Equal(t, 43, *rec.HealthAge)
	require.NotNil(t, rec.Analysis)
	assert.NotEmpty(t, rec.Analysis.Summary)
}

func TestVerifyApprovedWithoutAgeSkipsHealthAge(t *testing.T) {
	f := newFixture(nil)
	f.extractor.candidates = specCandidates()
	id := f.upload(t, "user-1")
	f.processOne(t, "user-1", id)

	_, err := f.svc.Verify(context.Background(), VerifyCommand{
		UserID: "user-1", RecordID: id, Approved: true,
	})
	require.NoError(t, err)

	rec, err := f.repo.Get(context.Background(), "user-1", id)
	require.NoError(t, err)
	require.NotNil(t, rec.WellnessScore)
	assert.Nil(t, rec.HealthAge)
}

func TestVerifyReapproveCompletedIsIdempotent(t *testing.T) {
	age := 40
	f := newFixture(&age)
	f.extractor.candidates = specCandidates()
	id := f.upload(t, "user-1")
	f.processOne(t, "user-1", id)

	_, err := f.svc.Verify(context.Background(), VerifyCommand{UserID: "user-1", RecordID: id, Approved: true})
	require.NoError(t, err)
	first, err := f.repo.Get(context.Background(), "user-1", id)
	require.NoError(t, err)

	f.clock.advance(time.Minute)
	res, err := f.svc.Verify(context.Background(), VerifyCommand{UserID: "user-1", RecordID: id, Approved: true})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Status)

	second, err := f.repo.Get(context.Background(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, *first.WellnessScore, *second.WellnessScore)
	assert.Equal(t, *first.HealthAge, *second.HealthAge)
	assert.Equal(t, first.Analysis, second.Analysis)
}

func TestVerifyApproveEmptyBiomarkersRejected(t *testing.T) {
	f := newFixture(nil)
	now := f.clock.t
	rec := &domain.HealthRecord{
		ID:        domain.RecordID("rec-empty"),
		UserID:    "user-1",
		Status:    domain.StatusPendingReview,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.repo.Create(context.Background(), rec))

	_, err := f.svc.Verify(context.Background(), VerifyCommand{
		UserID: "user-1", RecordID: rec.ID, Approved: true,
	})
	assert.ErrorIs(t, err, domain.ErrNoBiomarkers)

	got, err := f.repo.Get(context.Background(), "user-1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingReview, got.Status)
}

func TestVerifyConcurrentSubmissionConflicts(t *testing.T) {
	f := newFixture(nil)
	f.extractor.candidates = specCandidates()
	id := f.upload(t, "user-1")
	f.processOne(t, "user-1", id)

	// another device writes between this request's read and its update
	f.repo.afterGet = func(stored *domain.HealthRecord) {
		stored.UpdatedAt = stored.UpdatedAt.Add(time.Second)
	}

	_, err := f.svc.Verify(context.Background(), VerifyCommand{
		UserID: "user-1", RecordID: id, Approved: true,
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestGetIsUserScoped(t *testing.T) {
	f := newFixture(nil)
	id := f.upload(t, "user-1")

	_, err := f.svc.Get(context.Background(), "user-2", id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	rec, err := f.svc.Get(context.Background(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
}

func TestCompareTrendsAcrossCompletedRecords(t *testing.T) {
	f := newFixture(nil)
	base := f.clock.t

	mk := func(id string, day int, value float64) {
		date := base.AddDate(0, 0, day)
		rec := &domain.HealthRecord{
			ID:         domain.RecordID(id),
			UserID:     "user-1",
			Status:     domain.StatusCompleted,
			RecordDate: &date,
			Biomarkers: []biomarkers.Biomarker{{Name: "vitamin d", Value: value, Status: biomarkers.StatusLow}},
			CreatedAt:  base,
			UpdatedAt:  base,
		}
		require.NoError(t, f.repo.Create(context.Background(), rec))
	}
	mk("rec-a", 0, 20)
	mk("rec-b", 60, 28)

	cmp, err := f.svc.Compare(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, cmp.RecordsCompared)
	require.Len(t, cmp.Trends, 1)
	tr := cmp.Trends[0]
	assert.Equal(t, "vitamin d", tr.Name)
	require.NotNil(t, tr.ChangePercent)
	assert.InDelta(t, 40.0, *tr.ChangePercent, 1e-9)
	assert.Equal(t, biomarkers.TrendImproving, tr.Label)
}

func TestCompareIgnoresUnfinishedRecords(t *testing.T) {
	f := newFixture(nil)
	f.extractor.candidates = specCandidates()
	id := f.upload(t, "user-1")
	f.processOne(t, "user-1", id) // pending_review, not completed

	cmp, err := f.svc.Compare(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, cmp.RecordsCompared)
	assert.Empty(t, cmp.Trends)
}

func TestSweepStaleFailsStuckRecords(t *testing.T) {
	f := newFixture(nil)
	id := f.upload(t, "user-1")
	require.NoError(t, f.repo.ClaimForProcessing(context.Background(), id))

	// not stale yet
	n, err := f.svc.SweepStale(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.advance(30 * time.Minute)
	n, err = f.svc.SweepStale(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, err := f.repo.Get(context.Background(), "user-1", id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, rec.Status)
	assert.Equal(t, "processing timed out", rec.ErrorMessage)
}
