package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/flightlog/internal/airports"
	"github.com/yegors/flightlog/internal/crew"
	"github.com/yegors/flightlog/internal/importer"
	"github.com/yegors/flightlog/internal/storage/sqlite"
	"github.com/yegors/flightlog/pkg/logger"
)

// maxImportSize bounds uploaded documents
const maxImportSize = 32 << 20

// Handler serves the logbook endpoints
type Handler struct {
	flights  *sqlite.FlightStorage
	importer *importer.Importer
	airports *airports.Registry
	logger   *logger.Logger
	now      func() time.Time
	started  time.Time
}

// NewHandler creates the handler
func NewHandler(flights *sqlite.FlightStorage, imp *importer.Importer, registry *airports.Registry, log *logger.Logger) *Handler {
	return &Handler{
		flights:  flights,
		importer: imp,
		airports: registry,
		logger:   log.Named("api-handler"),
		now:      time.Now,
		started:  time.Now(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}

// internalError logs err and hides it from the client
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("Request failed",
		logger.String("method", r.Method),
		logger.String("path", r.URL.Path),
		logger.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// parseDate accepts RFC 3339 timestamps and plain dates in UTC
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}

func flightID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid flight id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

// GetHealth reports liveness
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(h.now().Sub(h.started).Seconds()),
	})
}

// ListFlights returns flights filtered by from, to, registration and limit
func (h *Handler) ListFlights(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter sqlite.Filter

	for name, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		if v := query.Get(name); v != "" {
			t, err := parseDate(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid %s date %q", name, v)
				return
			}
			*dst = t
		}
	}
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit %q", v)
			return
		}
		filter.Limit = limit
	}
	filter.Registration = strings.ToUpper(query.Get("registration"))
	filter.IncludeDeleted = query.Get("deleted") == "true"

	flights, err := h.flights.ListFlights(r.Context(), filter)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flights)
}

// GetFlight returns one flight
func (h *Handler) GetFlight(w http.ResponseWriter, r *http.Request) {
	id, err := flightID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	f, err := h.flights.GetFlight(r.Context(), id)
	if errors.Is(err, sqlite.ErrNotFound) {
		writeError(w, http.StatusNotFound, "flight %d not found", id)
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// DeleteFlight deletes a flight, leaving a tombstone when it was synced
func (h *Handler) DeleteFlight(w http.ResponseWriter, r *http.Request) {
	id, err := flightID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	err = h.flights.DeleteFlight(r.Context(), id, h.now())
	if errors.Is(err, sqlite.ErrNotFound) {
		writeError(w, http.StatusNotFound, "flight %d not found", id)
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTotals returns logbook totals
func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.flights.Totals(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// Import takes a document as the raw request body. ?name= labels it and
// ?dry_run=true only returns the plan.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportSize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "document exceeds %d bytes", maxImportSize)
			return
		}
		writeError(w, http.StatusBadRequest, "unable to read body")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty body")
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload"
	}
	imp := h.importer
	if r.URL.Query().Get("dry_run") == "true" {
		imp = imp.DryRun()
	}

	outcomes, err := imp.Import(r.Context(), []importer.Document{{Name: name, Data: body}})
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	outcome := outcomes[0]
	if outcome.Err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, outcome)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type crewTimeRequest struct {
	// Crew is the descriptor; Encoded is used when Crew is absent
	Crew    *crew.AugmentedCrew `json:"crew"`
	Encoded int                 `json:"encoded"`
	Total   int                 `json:"total"`
	PIC     bool                `json:"pic"`
}

type crewTimeResponse struct {
	Crew    crew.AugmentedCrew `json:"crew"`
	Encoded int                `json:"encoded"`
	Minutes int                `json:"minutes"`
}

// CrewTime computes the loggable minutes for an augmented crew
func (h *Handler) CrewTime(w http.ResponseWriter, r *http.Request) {
	var req crewTimeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Total < 0 {
		writeError(w, http.StatusBadRequest, "total must not be negative")
		return
	}

	c := crew.Decode(req.Encoded)
	if req.Crew != nil {
		c = *req.Crew
	}
	if err := c.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	writeJSON(w, http.StatusOK, crewTimeResponse{
		Crew:    c,
		Encoded: c.Encode(),
		Minutes: c.LogTime(req.Total, req.PIC),
	})
}

// GetAirport looks up an airport by ICAO or IATA code
func (h *Handler) GetAirport(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	a, err := h.airports.Lookup(code)
	if errors.Is(err, airports.ErrUnknownAirport) {
		writeError(w, http.StatusNotFound, "unknown airport %q", code)
		return
	}
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
