package moderation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/camperwash/internal/apperr"
	"github.com/ukydev/camperwash/internal/db"
	"github.com/ukydev/camperwash/internal/events"
	"github.com/ukydev/camperwash/internal/metrics"
	"github.com/ukydev/camperwash/internal/models"
	"github.com/ukydev/camperwash/internal/notify"
	"github.com/ukydev/camperwash/internal/visits"
)

// SubmissionWarning is returned with a created station when the admin could not be told about it.
const SubmissionWarning = "Station créée, mais la notification à l'administrateur a échoué"

// Notifier sends a notification
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) error
}

// SubmitStationInput is a station proposal from a signed-in user.
type SubmitStationInput struct {
	Name     string                `json:"name" validate:"required,max=200"`
	Address  string                `json:"address" validate:"required,max=500"`
	Lat      *float64              `json:"lat" validate:"required,min=-90,max=90"`
	Lng      *float64              `json:"lng" validate:"required,min=-180,max=180"`
	Images   []string              `json:"images" validate:"max=10,dive,required,max=2048"`
	Services models.ServiceProfile `json:"services"`
}

func (in SubmitStationInput) normalize() SubmitStationInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Address = strings.TrimSpace(in.Address)
	images := make([]string, 0, len(in.Images))
	for _, img := range in.Images {
		images = append(images, strings.TrimSpace(img))
	}
	in.Images = images
	in.Services = in.Services.Normalize()
	return in
}

// SubmitResult is a created station. Warning is set when the station was stored
// but a side effect failed.
type SubmitResult struct {
	Station *models.Station
	Warning string
}

// TransitionResult is the outcome of a status change request.
type TransitionResult struct {
	Station  *models.Station
	Previous models.StationStatus
	Changed  bool
}

// Deps are the collaborators of the workflow
type Deps struct {
	Stations  db.StationCollection
	Notifier  Notifier
	Publisher events.Publisher
	Visits    visits.Counter
	Metrics   *metrics.Metrics
	Logger    *logrus.Logger
	// NotifySubmitter mails the author when an admin changes the station status.
	NotifySubmitter bool
}

// Service implements station submission and moderation.
type Service struct {
	stations        db.StationCollection
	notifier        Notifier
	publisher       events.Publisher
	visits          visits.Counter
	metrics         *metrics.Metrics
	logger          *logrus.Logger
	validator       *Validator
	notifySubmitter bool
	now             func() time.Time
}

// NewService creates the workflow. Publisher and Visits default to no-op implementations.
func NewService(deps Deps) *Service {
	s := &Service{
		stations:        deps.Stations,
		notifier:        deps.Notifier,
		publisher:       deps.Publisher,
		visits:          deps.Visits,
		metrics:         deps.Metrics,
		logger:          deps.Logger,
		validator:       NewValidator(),
		notifySubmitter: deps.NotifySubmitter,
		now:             time.Now,
	}
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}
	if s.visits == nil {
		s.visits = visits.NoopCounter{}
	}
	if s.logger == nil {
		s.logger = logrus.New()
	}
	return s
}

// Validator returns the validator used for station input
func (s *Service) Validator() *Validator {
	return s.validator
}

func requireAdmin(identity *models.Claims) error {
	if identity == nil {
		return apperr.Unauthorized("Non autorisé")
	}
	if !identity.IsAdmin() {
		return apperr.Forbidden("Accès refusé")
	}
	return nil
}

// Submit validates and stores a new station as pending, then tells the admin.
func (s *Service) Submit(ctx context.Context, identity *models.Claims, input SubmitStationInput) (*SubmitResult, error) {
	if identity == nil {
		return nil, apperr.Unauthorized("Non autorisé")
	}

	input = input.normalize()
	if err := s.validator.Struct("Données invalides", input); err != nil {
		s.metrics.ObserveSubmission(metrics.ResultError)
		return nil, err
	}

	station := models.Station{
		ID:        uuid.NewString(),
		Name:      input.Name,
		Address:   input.Address,
		Lat:       *input.Lat,
		Lng:       *input.Lng,
		Images:    input.Images,
		Services:  input.Services,
		Status:    models.StatusPending,
		Author:    identity.Author(),
		CreatedAt: s.now().UTC(),
	}

	created, err := s.stations.CreateStation(ctx, station)
	if err != nil {
		s.metrics.ObserveSubmission(metrics.ResultError)
		return nil, err
	}

	result := &SubmitResult{Station: created}
	log := s.logger.WithFields(logrus.Fields{
		"station_id": created.ID,
		"author":     created.Author.Email,
	})

	err = s.notifier.Notify(ctx, notify.Notification{
		Kind: notify.KindNewStation,
		Payload: notify.NewStationPayload{
			StationID: created.ID,
			Name:      created.Name,
			Address:   created.Address,
			Author:    &created.Author,
			Services:  &created.Services,
		},
	})
	if err != nil {
		log.WithError(err).Warn("Failed to notify admin of new station")
		result.Warning = SubmissionWarning
		s.metrics.ObserveSubmission(metrics.ResultWarning)
	} else {
		s.metrics.ObserveSubmission(metrics.ResultSuccess)
	}

	s.publish(ctx, events.Event{
		Type:      events.TypeStationSubmitted,
		StationID: created.ID,
		Status:    created.Status,
	})

	log.Info("Station submitted")
	return result, nil
}

// Transition moves a station to target. Only admins may call it. A station can
// never be sent back to pending once it has been reviewed.
func (s *Service) Transition(ctx context.Context, identity *models.Claims, id, target string) (*TransitionResult, error) {
	if err := requireAdmin(identity); err != nil {
		return nil, err
	}

	status, ok := models.ParseStationStatus(target)
	if !ok {
		return nil, apperr.Validation("Statut invalide",
			apperr.FieldError{Field: "status", Message: "valeur non autorisée, attendu: pending active inactive"})
	}

	if status == models.StatusPending {
		current, err := s.stations.FindStationByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status != models.StatusPending {
			return nil, apperr.Conflict("Une station modérée ne peut pas être remise en attente")
		}
		return &TransitionResult{Station: current, Previous: current.Status}, nil
	}

	station, previous, err := s.stations.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if station.Status != status {
		return nil, apperr.Conflict("Le statut de la station a été modifié entre-temps")
	}

	result := &TransitionResult{Station: station, Previous: previous, Changed: previous != status}
	if !result.Changed {
		return result, nil
	}

	s.metrics.ObserveTransition(string(previous), string(status))
	s.logger.WithFields(logrus.Fields{
		"station_id": id,
		"from":       previous,
		"to":         status,
		"admin":      identity.Email,
	}).Info("Station status changed")

	s.publish(ctx, events.Event{
		Type:           events.TypeStationStatusChanged,
		StationID:      id,
		Status:         status,
		PreviousStatus: previous,
	})

	if s.notifySubmitter && station.Author.Email != "" {
		err := s.notifier.Notify(ctx, notify.Notification{
			Kind: notify.KindStatusChanged,
			Payload: notify.StatusChangedPayload{
				Recipient:   station.Author.Email,
				StationName: station.Name,
				Previous:    previous,
				Status:      status,
			},
		})
		if err != nil {
			s.logger.WithError(err).WithField("station_id", id).Warn("Failed to notify submitter of status change")
		}
	}

	return result, nil
}

// Delete removes a station permanently
func (s *Service) Delete(ctx context.Context, identity *models.Claims, id string) error {
	if err := requireAdmin(identity); err != nil {
		return err
	}
	if err := s.stations.DeleteStation(ctx, id); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{"station_id": id, "admin": identity.Email}).Info("Station deleted")
	s.publish(ctx, events.Event{Type: events.TypeStationDeleted, StationID: id})
	return nil
}

// List returns stations matching filter, newest first.
func (s *Service) List(ctx context.Context, filter models.StationFilter) ([]models.Station, error) {
	for _, name := range filter.Services {
		if !isServiceFilter(name) {
			return nil, apperr.Validation("Filtre invalide",
				apperr.FieldError{Field: "services", Message: "service inconnu: " + name})
		}
	}
	return s.stations.ListStations(ctx, filter)
}

func isServiceFilter(name string) bool {
	for _, known := range models.ServiceFilterNames {
		if known == name {
			return true
		}
	}
	return false
}

// Get returns one station
func (s *Service) Get(ctx context.Context, id string) (*models.Station, error) {
	return s.stations.FindStationByID(ctx, id)
}

// RecordVisit counts a visitor for the dashboard. Failures are only logged.
func (s *Service) RecordVisit(ctx context.Context, visitorID string) {
	if err := s.visits.Record(ctx, visitorID); err != nil {
		s.logger.WithError(err).Debug("Failed to record visit")
	}
}

// Stats summarizes the catalog for the admin dashboard. Visit totals read as
// zero when the counter is unavailable.
func (s *Service) Stats(ctx context.Context, identity *models.Claims) (*models.StationStats, error) {
	if err := requireAdmin(identity); err != nil {
		return nil, err
	}

	counts, err := s.stations.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.StationStats{
		TotalStations:    counts.Total,
		ActiveStations:   counts.Active,
		PendingStations:  counts.Pending,
		InactiveStations: counts.Inactive,
	}

	weekly, monthly, err := s.visits.Totals(ctx, s.now())
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read visit totals")
	} else {
		stats.WeeklyVisits = weekly
		stats.MonthlyVisits = monthly
	}
	return stats, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	event.OccurredAt = s.now().UTC()
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"event":      event.Type,
			"station_id": event.StationID,
		}).Warn("Failed to publish station event")
	}
}
