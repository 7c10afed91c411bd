package handlers

import (
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/camperwash/internal/apperr"
	"github.com/ukydev/camperwash/internal/geocode"
)

// GeocodeHandler proxies address autocomplete so the API key stays server-side
type GeocodeHandler struct {
	provider geocode.Provider
	logger   *logrus.Logger
}

// NewGeocodeHandler creates a new geocoding handler
func NewGeocodeHandler(provider geocode.Provider, logger *logrus.Logger) *GeocodeHandler {
	return &GeocodeHandler{provider: provider, logger: logger}
}

// Autocomplete returns address candidates for ?text=
func (h *GeocodeHandler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, h.logger, apperr.Validation("Paramètre invalide",
				apperr.FieldError{Field: "limit", Message: "doit être un entier positif"}))
			return
		}
		limit = n
	}

	candidates, err := h.provider.Autocomplete(r.Context(), r.URL.Query().Get("text"), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if candidates == nil {
		candidates = []geocode.Candidate{}
	}
	writeJSON(w, http.StatusOK, candidates)
}
