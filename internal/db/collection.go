package db

import (
	"context"

	"github.com/ukydev/camperwash/internal/models"
)

// statusUpdateAttempts bounds the retries when a concurrent transition moves a station between
// the conditional update and the read that follows it.
const statusUpdateAttempts = 3

// StationCollection defines the interface for station persistence.
// Implementations return apperr NotFound errors for unknown ids.
type StationCollection interface {
	ListStations(ctx context.Context, filter models.StationFilter) ([]models.Station, error)
	FindStationByID(ctx context.Context, id string) (*models.Station, error)
	CreateStation(ctx context.Context, station models.Station) (*models.Station, error)
	// UpdateStatus atomically sets the status and returns the stored record with the status it had before.
	// When the record already has the requested status nothing is written. The returned record
	// always carries the requested status; a transition that keeps racing is an apperr Conflict.
	UpdateStatus(ctx context.Context, id string, status models.StationStatus) (*models.Station, models.StationStatus, error)
	DeleteStation(ctx context.Context, id string) error
	CountByStatus(ctx context.Context) (models.StatusCounts, error)
}

// UserCollection defines the interface for user account persistence.
type UserCollection interface {
	// UpsertOAuthUser creates the account on first sign-in, otherwise refreshes name, provider, role and last login.
	UpsertOAuthUser(ctx context.Context, user models.User) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
}
