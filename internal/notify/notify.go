package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/camperwash/internal/apperr"
	"github.com/ukydev/camperwash/internal/metrics"
	"github.com/ukydev/camperwash/internal/models"
)

// Kind identifies a notification type
type Kind string

const (
	KindNewStation     Kind = "new_station"
	KindContactMessage Kind = "contact_message"
	KindStatusChanged  Kind = "status_changed"
)

// Notification is a message to dispatch. Payload type depends on Kind.
type Notification struct {
	Kind    Kind
	Payload interface{}
}

// NewStationPayload describes a submitted station for the admin.
type NewStationPayload struct {
	StationID string
	Name      string
	Address   string
	Author    *models.Author
	Services  *models.ServiceProfile
}

// ContactPayload is a contact form message.
type ContactPayload struct {
	Name    string
	Email   string
	Subject string
	Message string
}

// StatusChangedPayload tells a submitter their station changed state.
type StatusChangedPayload struct {
	Recipient   string
	StationName string
	Previous    models.StationStatus
	Status      models.StationStatus
}

// Message is one rendered email
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers rendered messages
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher renders notifications and hands them to a Sender.
type Dispatcher struct {
	sender    Sender
	admins    []string
	templates *templateSet
	logger    *logrus.Logger
	metrics   *metrics.Metrics
}

// NewDispatcher creates a dispatcher sending admin notifications to admins.
func NewDispatcher(sender Sender, admins []string, logger *logrus.Logger, m *metrics.Metrics) (*Dispatcher, error) {
	templates, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse notification templates: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		sender:    sender,
		admins:    admins,
		templates: templates,
		logger:    logger,
		metrics:   m,
	}, nil
}

// Notify renders and sends n. It never panics; delivery failures come back as Transport errors.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = apperr.Transport("notification failed", fmt.Errorf("panic: %v", rec))
		}
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
		}
		d.metrics.ObserveNotification(string(n.Kind), result)
	}()

	messages, err := d.render(n)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		if err := d.sender.Send(ctx, msg); err != nil {
			d.logger.WithError(err).WithFields(logrus.Fields{
				"kind":    n.Kind,
				"subject": msg.Subject,
			}).Error("failed to send notification")
			return apperr.Transport("notification delivery failed", err)
		}
	}
	return nil
}

func (d *Dispatcher) render(n Notification) ([]Message, error) {
	switch n.Kind {
	case KindNewStation:
		p, ok := n.Payload.(NewStationPayload)
		if !ok {
			return nil, payloadError(n)
		}
		if len(d.admins) == 0 {
			return nil, apperr.Internal("no admin recipient configured", nil)
		}
		msg, err := build(d.templates.newStation, d.admins, p)
		if err != nil {
			return nil, err
		}
		return []Message{msg}, nil

	case KindContactMessage:
		p, ok := n.Payload.(ContactPayload)
		if !ok {
			return nil, payloadError(n)
		}
		if len(d.admins) == 0 {
			return nil, apperr.Internal("no admin recipient configured", nil)
		}
		admin, err := build(d.templates.contactAdmin, d.admins, p)
		if err != nil {
			return nil, err
		}
		confirm, err := build(d.templates.contactConfirm, []string{p.Email}, p)
		if err != nil {
			return nil, err
		}
		return []Message{admin, confirm}, nil

	case KindStatusChanged:
		p, ok := n.Payload.(StatusChangedPayload)
		if !ok {
			return nil, payloadError(n)
		}
		msg, err := build(d.templates.statusChanged, []string{p.Recipient}, p)
		if err != nil {
			return nil, err
		}
		return []Message{msg}, nil

	default:
		return nil, apperr.Internal(fmt.Sprintf("unknown notification kind %q", n.Kind), nil)
	}
}

func build(t *Template, to []string, data interface{}) (Message, error) {
	subject, html, text, err := t.Render(data)
	if err != nil {
		return Message{}, apperr.Internal("failed to render notification", err)
	}
	return Message{To: to, Subject: subject, HTML: html, Text: text}, nil
}

func payloadError(n Notification) error {
	return apperr.Internal(fmt.Sprintf("unexpected payload %T for notification kind %q", n.Payload, n.Kind), nil)
}
