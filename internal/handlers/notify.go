package handlers

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/camperwash/internal/apperr"
	"github.com/ukydev/camperwash/internal/models"
	"github.com/ukydev/camperwash/internal/moderation"
	"github.com/ukydev/camperwash/internal/notify"
)

// NotifyHandler serves the public mail endpoints
type NotifyHandler struct {
	notifier  moderation.Notifier
	validator *moderation.Validator
	logger    *logrus.Logger
}

// NewNotifyHandler creates a new notification handler
func NewNotifyHandler(notifier moderation.Notifier, validator *moderation.Validator, logger *logrus.Logger) *NotifyHandler {
	return &NotifyHandler{notifier: notifier, validator: validator, logger: logger}
}

type notifyStationRequest struct {
	Name     string                 `json:"name" validate:"required,max=200"`
	Address  string                 `json:"address" validate:"required,max=500"`
	Author   *models.Author         `json:"author"`
	Services *models.ServiceProfile `json:"services"`
}

type contactRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Name    string `json:"name" validate:"required,max=200"`
	Subject string `json:"subject" validate:"required,max=300"`
	Message string `json:"message" validate:"required,max=5000"`
}

type mailResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Error   string              `json:"error,omitempty"`
	Details []apperr.FieldError `json:"details,omitempty"`
}

// NotifyNewStation mails the admin about a station proposal
func (h *NotifyHandler) NotifyNewStation(w http.ResponseWriter, r *http.Request) {
	var req notifyStationRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeMailError(w, err)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)
	if req.Services != nil {
		normalized := req.Services.Normalize()
		req.Services = &normalized
	}
	if err := h.validator.Struct("Données invalides", req); err != nil {
		h.writeMailError(w, err)
		return
	}

	err := h.notifier.Notify(r.Context(), notify.Notification{
		Kind: notify.KindNewStation,
		Payload: notify.NewStationPayload{
			Name:     req.Name,
			Address:  req.Address,
			Author:   req.Author,
			Services: req.Services,
		},
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to send new station notification")
		writeJSON(w, http.StatusInternalServerError, mailResponse{
			Error: "Erreur serveur lors de l'envoi de la notification",
		})
		return
	}

	writeJSON(w, http.StatusOK, mailResponse{Success: true, Message: "Notification envoyée avec succès"})
}

func (h *NotifyHandler) writeMailError(w http.ResponseWriter, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, mailResponse{Error: "Erreur interne du serveur"})
		return
	}
	writeJSON(w, apperr.StatusCode(err), mailResponse{Error: appErr.Message, Details: appErr.Details})
}

// Contact forwards a contact form message to the admin and confirms receipt to the sender
func (h *NotifyHandler) Contact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Tous les champs sont requis"})
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	req.Subject = strings.TrimSpace(req.Subject)
	req.Message = strings.TrimSpace(req.Message)

	if req.Email == "" || req.Name == "" || req.Subject == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Tous les champs sont requis"})
		return
	}
	if err := h.validator.Struct("Données invalides", req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	err := h.notifier.Notify(r.Context(), notify.Notification{
		Kind: notify.KindContactMessage,
		Payload: notify.ContactPayload{
			Name:    req.Name,
			Email:   req.Email,
			Subject: req.Subject,
			Message: req.Message,
		},
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to send contact message")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Erreur lors de l'envoi du message"})
		return
	}

	writeJSON(w, http.StatusOK, mailResponse{Success: true, Message: "Message envoyé avec succès"})
}
