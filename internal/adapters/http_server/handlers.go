package httpserver

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"landdev/internal/app"
	"landdev/internal/domain"
)

type Handlers struct {
	Q *app.QueryService
	R *app.RecordService
	I *app.IngestionService
	M *app.MaintenanceService

	// Secret guards the maintenance routes; injected from config at startup.
	Secret string
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/api", func(r chi.Router) {
		r.Get("/reviews", h.listReviews)
		r.Post("/reviews/bulk", h.bulkReviews)
		r.With(RequireSecret(h.Secret)).Post("/reviews/dedupe", h.dedupeReviews)

		r.Get("/{entity}", h.listRecords)
		r.Post("/{entity}", h.createRecord)
		r.Get("/{entity}/{id}", h.getRecord)
		r.Put("/{entity}/{id}", h.updateRecord)
		r.Patch("/{entity}/{id}", h.updateRecord)
		r.Delete("/{entity}/{id}", h.deleteRecord)
	})
}

// ---- envelope ----

type apiError struct {
	Message string `json:"message"`
}

type envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Error: &apiError{Message: msg}}); err != nil {
		log.Error().Err(err).Msg("write JSON error response failed")
	}
}

// writeErr maps domain errors to statuses. Storage failures are logged and
// reported without detail.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Msg)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrForeignKey):
		writeError(w, http.StatusBadRequest, "referenced record does not exist")
	case errors.Is(err, domain.ErrDuplicate):
		writeError(w, http.StatusConflict, "record already exists")
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Str("method", r.Method).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// calcETagAndBody marshals the envelope once and hashes it.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(envelope{Success: true, Data: v})
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if body == nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write body")
	}
}

func parseLimit(r *http.Request) (int, bool) {
	ls := r.URL.Query().Get("limit")
	if ls == "" {
		return defaultLimit, true
	}
	l, err := strconv.Atoi(ls)
	if err != nil || l <= 0 || l > maxLimit {
		return 0, false
	}
	return l, true
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// ---- reviews ----

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 200")
		return
	}
	out, err := h.Q.ListReviews(r.Context(), r.URL.Query().Get("property"), limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeCached(w, r, out)
}

// bulkReviews accepts either {"reviews":[...]} or a bare array.
func (h *Handlers) bulkReviews(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var body struct {
			Reviews json.RawMessage `json:"reviews"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		raw = body.Reviews
	}
	var batch []domain.RawReview
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if len(raw) == 0 || dec.Decode(&batch) != nil {
		writeError(w, http.StatusBadRequest, "reviews must be a non-empty array")
		return
	}

	res, err := h.I.IngestBatch(r.Context(), batch)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) dedupeReviews(w http.ResponseWriter, r *http.Request) {
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dryRun"))
	res, err := h.M.Dedupe(r.Context(), dryRun)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ---- records ----

func (h *Handlers) listRecords(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be an integer between 1 and 200")
		return
	}
	p := app.ListParams{Limit: limit, Filters: map[string]string{}}
	if os := r.URL.Query().Get("offset"); os != "" {
		off, err := strconv.Atoi(os)
		if err != nil || off < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		p.Offset = off
	}
	for k, vs := range r.URL.Query() {
		if k == "limit" || k == "offset" || len(vs) == 0 {
			continue
		}
		p.Filters[k] = vs[0]
	}

	out, err := h.Q.ListRecords(r.Context(), chi.URLParam(r, "entity"), p)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) getRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}
	rec, err := h.Q.GetRecord(r.Context(), chi.URLParam(r, "entity"), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeCached(w, r, rec)
}

func decodeSpec(r *http.Request) (domain.FieldUpdateSpec, bool) {
	var spec domain.FieldUpdateSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil || spec == nil {
		return nil, false
	}
	return spec, true
}

func (h *Handlers) createRecord(w http.ResponseWriter, r *http.Request) {
	spec, ok := decodeSpec(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}
	rec, err := h.R.Create(r.Context(), chi.URLParam(r, "entity"), spec)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handlers) updateRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}
	spec, ok := decodeSpec(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}
	rec, err := h.R.Update(r.Context(), chi.URLParam(r, "entity"), id, spec)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) deleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}
	if err := h.R.Delete(r.Context(), chi.URLParam(r, "entity"), id); err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"id": id})
}
