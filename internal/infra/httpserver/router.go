package httpserver

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	apprecords "github.com/bryanwahyu/labpulse/internal/application/records"
	"github.com/bryanwahyu/labpulse/internal/domain/extraction"
	domain "github.com/bryanwahyu/labpulse/internal/domain/records"
	"github.com/bryanwahyu/labpulse/internal/middleware"
)

// 25 MB cap on uploaded documents.
const maxUploadBytes = 25 << 20

var errBadRequest = errors.New("bad request")

type Router struct {
	recordsSvc *apprecords.Service
}

func NewRouter(recordsSvc *apprecords.Service) http.Handler {
	r := &Router{recordsSvc: recordsSvc}
	mux := chi.NewRouter()

	mux.Get("/health", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1/{user}", func(rt chi.Router) {
		rt.Post("/records/upload", r.wrap(r.handleUpload))
		rt.Get("/records", r.wrap(r.handleList))
		rt.Get("/records/comparison", r.wrap(r.handleComparison))
		rt.Get("/records/{id}", r.wrap(r.handleGet))
		rt.Post("/records/{id}/verify", r.wrap(r.handleVerify))
		rt.Get("/records/{id}/errors", r.wrap(r.handleErrors))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, domain.ErrNotFound), errors.Is(err, sql.ErrNoRows):
				http.Error(w, "not found", http.StatusNotFound)
			case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrAlreadyClaimed),
				errors.Is(err, domain.ErrInvalidTransition):
				http.Error(w, err.Error(), http.StatusConflict)
			case errors.Is(err, domain.ErrNoBiomarkers):
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			case errors.Is(err, extraction.ErrQuotaExceeded):
				http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
			case errors.Is(err, errBadRequest):
				http.Error(w, err.Error(), http.StatusBadRequest)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

// userScope resolves the URL user, validates it and checks it against
// the authenticated user. Cross-user access is a 404-shaped wall: the
// check runs before any repository call.
func userScope(req *http.Request) (string, error) {
	user := chi.URLParam(req, "user")
	if err := middleware.ValidateUserID(user); err != nil {
		return "", fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if auth := middleware.GetUserFromContext(req.Context()); auth != "" && auth != user {
		return "", domain.ErrNotFound
	}
	return user, nil
}

// POST /v1/{user}/records/upload  (multipart: file + metadata fields)
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	user, err := userScope(req)
	if err != nil {
		return err
	}

	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		return fmt.Errorf("%w: invalid multipart body", errBadRequest)
	}
	file, header, err := req.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: file field is required", errBadRequest)
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return fmt.Errorf("reading upload: %w", err)
	}
	if len(content) > maxUploadBytes {
		return fmt.Errorf("%w: document exceeds size limit", errBadRequest)
	}
	if err := middleware.ValidateFilename(header.Filename); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	var recordDate *time.Time
	if raw := req.FormValue("record_date"); raw != "" {
		t, err := parseDate(raw)
		if err != nil {
			return fmt.Errorf("%w: invalid record_date", errBadRequest)
		}
		recordDate = &t
	}

	result, err := r.recordsSvc.Upload(req.Context(), apprecords.UploadCommand{
		UserID:      user,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		RecordType:  middleware.SanitizeString(req.FormValue("record_type")),
		RecordDate:  recordDate,
		LabProvider: middleware.SanitizeString(req.FormValue("lab_provider")),
		Content:     content,
	})
	if err != nil {
		return err
	}

	middleware.IncrementRecordsIngested()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	return json.NewEncoder(w).Encode(result)
}

// GET /v1/{user}/records?page=&page_size=
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	user, err := userScope(req)
	if err != nil {
		return err
	}
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))

	list, err := r.recordsSvc.List(req.Context(), user,
		middleware.ValidatePage(page), middleware.ValidatePageSize(size))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// GET /v1/{user}/records/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	user, err := userScope(req)
	if err != nil {
		return err
	}
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRecordID(id); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	rec, err := r.recordsSvc.Get(req.Context(), user, domain.RecordID(id))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(rec)
}

// POST /v1/{user}/records/{id}/verify
// Body: {"biomarker_edits": [{"name": "...", "value": 1.2, "unit": "...", "verified": true}], "approved": false}
func (r *Router) handleVerify(w http.ResponseWriter, req *http.Request) error {
	user, err := userScope(req)
	if err != nil {
		return err
	}
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRecordID(id); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	var body struct {
		BiomarkerEdits []apprecords.BiomarkerEdit `json:"biomarker_edits"`
		Approved       bool                       `json:"approved"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return fmt.Errorf("%w: invalid json body", errBadRequest)
	}

	result, err := r.recordsSvc.Verify(req.Context(), apprecords.VerifyCommand{
		UserID:   user,
		RecordID: domain.RecordID(id),
		Edits:    body.BiomarkerEdits,
		Approved: body.Approved,
	})
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(result)
}

// GET /v1/{user}/records/comparison
func (r *Router) handleComparison(w http.ResponseWriter, req *http.Request) error {
	user, err := userScope(req)
	if err != nil {
		return err
	}
	cmp, err := r.recordsSvc.Compare(req.Context(), user)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(cmp)
}

// GET /v1/{user}/records/{id}/errors?limit=20
func (r *Router) handleErrors(w http.ResponseWriter, req *http.Request) error {
	user, err := userScope(req)
	if err != nil {
		return err
	}
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRecordID(id); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.recordsSvc.RecordFailures(req.Context(), user, id, limit)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format")
}
