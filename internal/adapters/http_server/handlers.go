// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/app"
	"github.com/abo-bahr-alqershi/BOOKn2-sub002/internal/domain"
)

type Handlers struct{ Svc *app.Service }

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Group(func(r chi.Router) {
		r.Use(Timeout(15 * time.Second))
		r.Get("/healthz", h.healthz)
		r.Post("/v1/search", h.search)
		r.Get("/v1/properties/by-field", h.propertiesByField)
		r.Get("/v1/properties/{id}", h.getProperty)
		r.Get("/v1/properties/{id}/availability", h.checkAvailability)
		r.Get("/v1/units/{id}/quote", h.quoteStay)
		r.Get("/v1/statistics", h.statistics)
	})
	// Admin calls walk the whole entity source; the query timeout would cut
	// them off mid-run.
	s.mux.Group(func(r chi.Router) {
		r.Use(Timeout(10 * time.Minute))
		r.Post("/v1/admin/rebuild", h.rebuild)
		r.Post("/v1/admin/optimize", h.optimize)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// statusFor maps domain failures onto transport codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, domain.ErrUnitMismatch):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, domain.ErrStoreDisabled):
		return http.StatusServiceUnavailable, "Index Disabled"
	case errors.Is(err, domain.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "Store Unavailable"
	default:
		return http.StatusInternalServerError, "Internal Error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, title := statusFor(err)
	writeProblem(w, status, title, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		// Log but don't fail the whole response; return empty ETag and best-effort body.
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	var req domain.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be a JSON search request")
		return
	}
	res, err := h.Svc.Search(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) getProperty(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Svc.GetProperty(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	etag, body := calcETagAndBody(doc)
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag) // include ETag on 304
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write property body")
	}
}

type availabilityResponse struct {
	PropertyID string    `json:"property_id"`
	Available  bool      `json:"available"`
	CheckIn    time.Time `json:"check_in"`
	CheckOut   time.Time `json:"check_out"`
	Guests     int       `json:"guests"`
}

func (h *Handlers) checkAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	checkIn, err := parseDate(q.Get("check_in"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Date", "check_in must be YYYY-MM-DD or RFC 3339")
		return
	}
	checkOut, err := parseDate(q.Get("check_out"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Date", "check_out must be YYYY-MM-DD or RFC 3339")
		return
	}
	if !checkOut.After(checkIn) {
		writeProblem(w, http.StatusBadRequest, "Invalid Window", "check_out must be after check_in")
		return
	}
	guests := 1
	if gs := q.Get("guests"); gs != "" {
		g, err := strconv.Atoi(gs)
		if err != nil || g <= 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid Guests", "guests must be a positive integer")
			return
		}
		guests = g
	}

	id := chi.URLParam(r, "id")
	ok, err := h.Svc.CheckAvailability(r.Context(), id, checkIn, checkOut, guests)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{
		PropertyID: id,
		Available:  ok,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		Guests:     guests,
	})
}

type quoteResponse struct {
	UnitID   string    `json:"unit_id"`
	Nightly  float64   `json:"nightly_price"`
	Currency string    `json:"currency"`
	CheckIn  time.Time `json:"check_in"`
	CheckOut time.Time `json:"check_out"`
}

func (h *Handlers) quoteStay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	checkIn, err := parseDate(q.Get("check_in"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Date", "check_in must be YYYY-MM-DD or RFC 3339")
		return
	}
	checkOut, err := parseDate(q.Get("check_out"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Date", "check_out must be YYYY-MM-DD or RFC 3339")
		return
	}
	if !checkOut.After(checkIn) {
		writeProblem(w, http.StatusBadRequest, "Invalid Window", "check_out must be after check_in")
		return
	}

	id := chi.URLParam(r, "id")
	nightly, currency, err := h.Svc.QuoteStay(r.Context(), id, checkIn, checkOut)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		UnitID:   id,
		Nightly:  nightly,
		Currency: currency,
		CheckIn:  checkIn,
		CheckOut: checkOut,
	})
}

type fieldLookupResponse struct {
	Field       string   `json:"field"`
	Value       string   `json:"value"`
	PropertyIDs []string `json:"property_ids"`
}

func (h *Handlers) propertiesByField(w http.ResponseWriter, r *http.Request) {
	field, value := r.URL.Query().Get("field"), r.URL.Query().Get("value")
	if field == "" || value == "" {
		writeProblem(w, http.StatusBadRequest, "Missing Parameter", "field and value are required")
		return
	}
	ids, err := h.Svc.PropertiesByDynamicField(r.Context(), field, value)
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, fieldLookupResponse{Field: field, Value: value, PropertyIDs: ids})
}

func (h *Handlers) statistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Svc.GetStatistics(r.Context()))
}

type healthResponse struct {
	Status         domain.Health `json:"status"`
	StoreReachable bool          `json:"store_reachable"`
	IndexedCount   int64         `json:"indexed_properties"`
}

// healthz answers 200 for healthy and degraded: a limping store still serves
// cached and degraded pages, so the balancer must keep routing to us.
func (h *Handlers) healthz(w http.ResponseWriter, r *http.Request) {
	st := h.Svc.GetStatistics(r.Context())
	status := http.StatusOK
	if st.Health == domain.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{
		Status:         st.Health,
		StoreReachable: st.StoreReachable,
		IndexedCount:   st.IndexedCount,
	})
}

func (h *Handlers) rebuild(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Svc.RebuildIndex(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handlers) optimize(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Svc.OptimizeStore(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
