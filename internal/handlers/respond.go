package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/camperwash/internal/apperr"
	"github.com/ukydev/camperwash/internal/middleware"
)

const maxBodyBytes = 1 << 20

// errorResponse is the JSON error body
type errorResponse struct {
	Error   string              `json:"error"`
	Details []apperr.FieldError `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code. Errors outside the taxonomy are logged
// and reported with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *logrus.Logger, err error) {
	status := apperr.StatusCode(err)
	appErr, ok := apperr.As(err)
	if !ok || status >= http.StatusInternalServerError {
		logger.WithError(err).WithFields(logrus.Fields{
			"request_id": middleware.RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
		}).Error("Request failed")
	}
	if !ok || appErr.Type == apperr.TypeInternal {
		writeJSON(w, status, errorResponse{Error: "Erreur interne du serveur"})
		return
	}
	writeJSON(w, status, errorResponse{Error: appErr.Message, Details: appErr.Details})
}

// decodeJSON reads a JSON request body into v. A non-JSON content type is an
// UnsupportedMediaType error; malformed JSON is a Validation error.
func decodeJSON(r *http.Request, v interface{}) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return apperr.UnsupportedMediaType("Content-type doit être application/json")
	}
	return readJSON(r, v)
}

// readJSON decodes the body without looking at the content type
func readJSON(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return apperr.Validation("Impossible de lire la requête")
	}
	if len(body) > maxBodyBytes {
		return apperr.Validation("Requête trop volumineuse")
	}
	if err := json.Unmarshal(body, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return apperr.Validation("JSON invalide", apperr.FieldError{Field: typeErr.Field, Message: "type invalide"})
		}
		return apperr.Validation("JSON invalide")
	}
	return nil
}
