package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rkm/fieldsat/internal/fieldstats"
	"github.com/rkm/fieldsat/internal/health"
	"github.com/rkm/fieldsat/internal/indices"
	"github.com/rkm/fieldsat/internal/models"
	"github.com/rkm/fieldsat/internal/orchestrator"
	"github.com/rkm/fieldsat/internal/store"
	"github.com/rkm/fieldsat/internal/trend"
)

// MaxHistoryLimit caps the limit query parameter on history endpoints.
const MaxHistoryLimit = 500

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Analyzer produces the current observation for a field.
type Analyzer interface {
	Analyze(ctx context.Context, fieldID string, bounds models.FieldBounds) (*orchestrator.Outcome, error)
}

// Handlers contains all HTTP handlers for the field analysis API.
type Handlers struct {
	analyzer Analyzer
	store    store.ObservationStore
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(analyzer Analyzer, s store.ObservationStore, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		analyzer: analyzer,
		store:    s,
		logger:   logger,
	}
}

// Observation runs the cache and provider fallback for a field.
// GET /fields/{fieldId}/observation?north=&south=&east=&west=
func (h *Handlers) Observation(w http.ResponseWriter, r *http.Request) {
	fieldID := chi.URLParam(r, "fieldId")

	bounds, err := parseBounds(r)
	if err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	outcome, err := h.analyzer.Analyze(r.Context(), fieldID, bounds)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			WriteInvalidParameter(w, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "field analysis failed",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("field_id", fieldID),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "field analysis failed")
		return
	}

	if outcome.Status == orchestrator.StatusNoData {
		WriteError(w, http.StatusNotFound, ErrCodeNoData, fmt.Sprintf("no observation available for field %s", fieldID))
		return
	}

	WriteJSON(w, http.StatusOK, outcome)
}

// Observations returns the cached history of a field, newest first.
// GET /fields/{fieldId}/observations?limit=
func (h *Handlers) Observations(w http.ResponseWriter, r *http.Request) {
	fieldID := chi.URLParam(r, "fieldId")

	limit, err := parseLimit(r)
	if err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	history, ok := h.history(w, r, fieldID, limit)
	if !ok {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"fieldId":      fieldID,
		"observations": history,
		"count":        len(history),
	})
}

// Trend analyses the stress pattern of a field's cached history.
// GET /fields/{fieldId}/trend?limit=
func (h *Handlers) Trend(w http.ResponseWriter, r *http.Request) {
	fieldID := chi.URLParam(r, "fieldId")

	limit, err := parseLimit(r)
	if err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	history, ok := h.history(w, r, fieldID, limit)
	if !ok {
		return
	}

	analysis, err := trend.Analyze(history)
	if err != nil {
		if errors.Is(err, trend.ErrInsufficientHistory) {
			WriteError(w, http.StatusUnprocessableEntity, ErrCodeInsufficientHistory, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "trend analysis failed",
			slog.String("field_id", fieldID),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "trend analysis failed")
		return
	}

	WriteJSON(w, http.StatusOK, analysis)
}

func (h *Handlers) history(w http.ResponseWriter, r *http.Request, fieldID string, limit int) ([]models.SatelliteObservation, bool) {
	history, err := h.store.History(r.Context(), fieldID, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read observation history",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("field_id", fieldID),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "failed to read observation history")
		return nil, false
	}
	if history == nil {
		history = []models.SatelliteObservation{}
	}
	return history, true
}

// Indices computes vegetation indices for one set of reflectance bands.
// POST /indices
func (h *Handlers) Indices(w http.ResponseWriter, r *http.Request) {
	var bands models.SpectralBands
	if !decodeBody(w, r, &bands) {
		return
	}

	WriteJSON(w, http.StatusOK, indices.Calculate(bands))
}

type statisticsRequest struct {
	Values []float64 `json:"values"`
}

// Statistics summarises an NDVI pixel population.
// POST /statistics
func (h *Handlers) Statistics(w http.ResponseWriter, r *http.Request) {
	var req statisticsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	stats, err := fieldstats.Compute(req.Values)
	if err != nil {
		if errors.Is(err, models.ErrInvalidInput) {
			WriteInvalidParameter(w, err.Error())
			return
		}
		WriteInternalError(w, "failed to compute statistics")
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}

type assessmentRequest struct {
	Indices struct {
		NDVI *float64 `json:"ndvi"`
		NDWI *float64 `json:"ndwi"`
		NDMI *float64 `json:"ndmi"`
		EVI  *float64 `json:"evi"`
	} `json:"indices"`
	Statistics *models.NDVIStatistics `json:"statistics"`
	Quality    *health.Quality        `json:"quality"`
}

// Assessment classifies field health from indices and optional statistics.
// Indices left out of the request do not contribute stress factors.
// POST /assessments
func (h *Handlers) Assessment(w http.ResponseWriter, r *http.Request) {
	var req assessmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Indices.NDVI == nil {
		WriteInvalidParameter(w, "indices.ndvi is required")
		return
	}

	WriteJSON(w, http.StatusOK, health.Assess(health.Input{
		NDVI:       *req.Indices.NDVI,
		NDWI:       req.Indices.NDWI,
		NDMI:       req.Indices.NDMI,
		EVI:        req.Indices.EVI,
		Statistics: req.Statistics,
		Quality:    req.Quality,
	}))
}

// Health reports liveness.
// GET /healthz
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready reports whether the observation store is reachable.
// GET /readyz
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.WarnContext(r.Context(), "readiness check failed",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		WriteError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "observation cache unavailable: "+err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteBadRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

func parseBounds(r *http.Request) (models.FieldBounds, error) {
	q := r.URL.Query()
	var b models.FieldBounds
	for _, p := range []struct {
		name string
		dst  *float64
	}{
		{"north", &b.North},
		{"south", &b.South},
		{"east", &b.East},
		{"west", &b.West},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			return b, fmt.Errorf("query parameter %q is required", p.name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return b, fmt.Errorf("query parameter %q must be a number, got %q", p.name, raw)
		}
		*p.dst = v
	}
	return b, nil
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return store.DefaultHistoryLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", raw)
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return limit, nil
}
