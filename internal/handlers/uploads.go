package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/camperwash/internal/apperr"
	"github.com/ukydev/camperwash/internal/storage"
)

// UploadHandler hands out presigned image upload URLs
type UploadHandler struct {
	store  storage.ImageStore
	logger *logrus.Logger
}

// NewUploadHandler creates a new upload handler. A nil store answers 503.
func NewUploadHandler(store storage.ImageStore, logger *logrus.Logger) *UploadHandler {
	return &UploadHandler{store: store, logger: logger}
}

type uploadRequest struct {
	ContentType string `json:"contentType"`
}

// PresignImage returns a direct-to-bucket PUT URL for one station photo
func (h *UploadHandler) PresignImage(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, r, h.logger, apperr.Unavailable("Le stockage des images n'est pas configuré"))
		return
	}

	var req uploadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	upload, err := h.store.PresignUpload(r.Context(), req.ContentType)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, upload)
}
