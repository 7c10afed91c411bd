package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/camperwash/internal/apperr"
	"github.com/ukydev/camperwash/internal/middleware"
	"github.com/ukydev/camperwash/internal/models"
	"github.com/ukydev/camperwash/internal/moderation"
)

// StationHandler serves the station catalog and moderation endpoints
type StationHandler struct {
	service *moderation.Service
	logger  *logrus.Logger
}

// NewStationHandler creates a new station handler
func NewStationHandler(service *moderation.Service, logger *logrus.Logger) *StationHandler {
	return &StationHandler{service: service, logger: logger}
}

type statusRequest struct {
	Status string `json:"status"`
}

type statusResponse struct {
	Station *models.Station `json:"station"`
	Changed bool            `json:"changed"`
}

// List returns the stations matching the query filters and counts the visit
func (h *StationHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := models.StationFilter{Search: strings.TrimSpace(query.Get("search"))}

	if raw := query.Get("status"); raw != "" {
		status, ok := models.ParseStationStatus(raw)
		if !ok {
			writeError(w, r, h.logger, apperr.Validation("Filtre invalide",
				apperr.FieldError{Field: "status", Message: "valeur non autorisée, attendu: pending active inactive"}))
			return
		}
		filter.Status = status
	}
	for _, name := range strings.Split(query.Get("services"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			filter.Services = append(filter.Services, name)
		}
	}

	stations, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if stations == nil {
		stations = []models.Station{}
	}

	h.service.RecordVisit(r.Context(), middleware.ClientIP(r))
	writeJSON(w, http.StatusOK, stations)
}

// Create submits a new station for moderation
func (h *StationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input moderation.SubmitStationInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	claims, _ := middleware.GetUserFromContext(r.Context())
	result, err := h.service.Submit(r.Context(), claims, input)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if result.Warning != "" {
		w.Header().Set("Warning", "199 - "+strconv.Quote(result.Warning))
	}
	writeJSON(w, http.StatusCreated, result.Station)
}

// Get returns one station
func (h *StationHandler) Get(w http.ResponseWriter, r *http.Request) {
	station, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, station)
}

// UpdateStatus moves a station through the moderation states
func (h *StationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	claims, _ := middleware.GetUserFromContext(r.Context())
	result, err := h.service.Transition(r.Context(), claims, r.PathValue("id"), req.Status)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Station: result.Station, Changed: result.Changed})
}

// Delete removes a station
func (h *StationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.GetUserFromContext(r.Context())
	if err := h.service.Delete(r.Context(), claims, r.PathValue("id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats returns the admin dashboard counters
func (h *StationHandler) Stats(w http.ResponseWriter, r *http.Request) {
	claims, _ := middleware.GetUserFromContext(r.Context())
	stats, err := h.service.Stats(r.Context(), claims)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
