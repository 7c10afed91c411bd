package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/camperwash/internal/apperr"
	"github.com/ukydev/camperwash/internal/events"
	"github.com/ukydev/camperwash/internal/metrics"
	"github.com/ukydev/camperwash/internal/models"
	"github.com/ukydev/camperwash/internal/notify"
	"github.com/ukydev/camperwash/internal/visits"
)

// MockStationCollection is a mock implementation of db.StationCollection
type MockStationCollection struct {
	mock.Mock
}

func (m *MockStationCollection) ListStations(ctx context.Context, filter models.StationFilter) ([]models.Station, error) {
	args := m.Called(ctx, filter)
	stations, _ := args.Get(0).([]models.Station)
	return stations, args.Error(1)
}

func (m *MockStationCollection) FindStationByID(ctx context.Context, id string) (*models.Station, error) {
	args := m.Called(ctx, id)
	station, _ := args.Get(0).(*models.Station)
	return station, args.Error(1)
}

func (m *MockStationCollection) CreateStation(ctx context.Context, station models.Station) (*models.Station, error) {
	args := m.Called(ctx, station)
	if fn, ok := args.Get(0).(func(context.Context, models.Station) *models.Station); ok {
		return fn(ctx, station), args.Error(1)
	}
	created, _ := args.Get(0).(*models.Station)
	return created, args.Error(1)
}

func (m *MockStationCollection) UpdateStatus(ctx context.Context, id string, status models.StationStatus) (*models.Station, models.StationStatus, error) {
	args := m.Called(ctx, id, status)
	station, _ := args.Get(0).(*models.Station)
	return station, args.Get(1).(models.StationStatus), args.Error(2)
}

func (m *MockStationCollection) DeleteStation(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStationCollection) CountByStatus(ctx context.Context) (models.StatusCounts, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.StatusCounts), args.Error(1)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n notify.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// MockPublisher is a mock implementation of events.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event events.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type fakeCounter struct {
	recorded []string
	weekly   int64
	monthly  int64
	err      error
}

func (c *fakeCounter) Record(_ context.Context, visitorID string) error {
	c.recorded = append(c.recorded, visitorID)
	return c.err
}

func (c *fakeCounter) Totals(context.Context, time.Time) (int64, int64, error) {
	return c.weekly, c.monthly, c.err
}

type fixture struct {
	service   *Service
	stations  *MockStationCollection
	notifier  *MockNotifier
	publisher *MockPublisher
	counter   *fakeCounter
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T, notifySubmitter bool) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	f := &fixture{
		stations:  new(MockStationCollection),
		notifier:  new(MockNotifier),
		publisher: new(MockPublisher),
		counter:   &fakeCounter{},
		metrics:   metrics.New(),
	}
	f.service = NewService(Deps{
		Stations:        f.stations,
		Notifier:        f.notifier,
		Publisher:       f.publisher,
		Visits:          f.counter,
		Metrics:         f.metrics,
		Logger:          logger,
		NotifySubmitter: notifySubmitter,
	})
	f.service.now = func() time.Time {
		return time.Date(2026, 10, 16, 14, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	}
	t.Cleanup(func() {
		f.stations.AssertExpectations(t)
		f.notifier.AssertExpectations(t)
		f.publisher.AssertExpectations(t)
	})
	return f
}

func float(v float64) *float64 { return &v }

var (
	alice = &models.Claims{UserID: "u-1", Email: "alice@example.com", Name: "Alice", Role: models.RoleUser}
	admin = &models.Claims{UserID: "u-2", Email: "admin@camperwash.fr", Name: "Admin", Role: models.RoleAdmin}
)

func validInput() SubmitStationInput {
	return SubmitStationInput{
		Name:    "  Test ",
		Address: "1 Rue A, Paris",
		Lat:     float(48.85),
		Lng:     float(2.35),
		Services: models.ServiceProfile{
			HighPressure:   "PORTIQUE",
			Vacuum:         true,
			PaymentMethods: []models.PaymentMethod{"JETON", "CARD", "TOKEN"},
		},
	}
}

func TestSubmit_Success(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	var stored models.Station
	f.stations.On("CreateStation", ctx, mock.AnythingOfType("models.Station")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(models.Station) }).
		Return(func(_ context.Context, s models.Station) *models.Station { return &s }, nil).Once()
	f.notifier.On("Notify", ctx, mock.MatchedBy(func(n notify.Notification) bool {
		p, ok := n.Payload.(notify.NewStationPayload)
		return ok && n.Kind == notify.KindNewStation && p.Name == "Test" && p.Author.Email == "alice@example.com"
	})).Return(nil).Once()
	f.publisher.On("Publish", ctx, mock.MatchedBy(func(e events.Event) bool {
		return e.Type == events.TypeStationSubmitted && e.Status == models.StatusPending
	})).Return(nil).Once()

	result, err := f.service.Submit(ctx, alice, validInput())
	require.NoError(t, err)
	assert.Empty(t, result.Warning)

	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, "Test", stored.Name)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, time.Date(2026, 10, 16, 12, 30, 0, 0, time.UTC), stored.CreatedAt)
	assert.Equal(t, time.UTC, stored.CreatedAt.Location())
	assert.Equal(t, "alice@example.com", stored.Author.Email)
	require.NotNil(t, stored.Author.Name)
	assert.Equal(t, "Alice", *stored.Author.Name)
	assert.Equal(t, models.HighPressurePortal, stored.Services.HighPressure)
	assert.Equal(t, models.ElectricityNone, stored.Services.Electricity)
	assert.Equal(t, []models.PaymentMethod{models.PaymentToken, models.PaymentCard}, stored.Services.PaymentMethods)
	assert.NotNil(t, stored.Images)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Submissions.WithLabelValues(metrics.ResultSuccess)))
}

func TestSubmit_UniqueIDs(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	var ids []string
	f.stations.On("CreateStation", ctx, mock.AnythingOfType("models.Station")).
		Run(func(args mock.Arguments) { ids = append(ids, args.Get(1).(models.Station).ID) }).
		Return(&models.Station{ID: "x"}, nil).Twice()
	f.notifier.On("Notify", ctx, mock.Anything).Return(nil).Twice()
	f.publisher.On("Publish", ctx, mock.Anything).Return(nil).Twice()

	_, err := f.service.Submit(ctx, alice, validInput())
	require.NoError(t, err)
	_, err = f.service.Submit(ctx, alice, validInput())
	require.NoError(t, err)

	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
}

func TestSubmit_RequiresIdentity(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.service.Submit(context.Background(), nil, validInput())
	assert.True(t, apperr.Is(err, apperr.TypeUnauthorized))
	f.stations.AssertNotCalled(t, "CreateStation", mock.Anything, mock.Anything)
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*SubmitStationInput)
		field  string
	}{
		{"empty name", func(in *SubmitStationInput) { in.Name = "   " }, "name"},
		{"empty address", func(in *SubmitStationInput) { in.Address = "" }, "address"},
		{"missing lat", func(in *SubmitStationInput) { in.Lat = nil }, "lat"},
		{"lat out of range", func(in *SubmitStationInput) { in.Lat = float(90.5) }, "lat"},
		{"lng out of range", func(in *SubmitStationInput) { in.Lng = float(-180.01) }, "lng"},
		{"unknown high pressure", func(in *SubmitStationInput) { in.Services.HighPressure = "LASER" }, "services.highPressure"},
		{"unknown payment", func(in *SubmitStationInput) {
			in.Services.PaymentMethods = []models.PaymentMethod{"BITCOIN"}
		}, "services.paymentMethods[0]"},
		{"negative vehicle length", func(in *SubmitStationInput) { in.Services.MaxVehicleLength = float(-2) }, "services.maxVehicleLength"},
		{"blank image", func(in *SubmitStationInput) { in.Images = []string{" "} }, "images[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			in := validInput()
			tt.modify(&in)

			_, err := f.service.Submit(context.Background(), alice, in)
			appErr, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, apperr.TypeValidation, appErr.Type)
			require.NotEmpty(t, appErr.Details)
			assert.Equal(t, tt.field, appErr.Details[0].Field)
			f.stations.AssertNotCalled(t, "CreateStation", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmit_BoundaryCoordinates(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.stations.On("CreateStation", ctx, mock.Anything).Return(&models.Station{ID: "x"}, nil).Once()
	f.notifier.On("Notify", ctx, mock.Anything).Return(nil).Once()
	f.publisher.On("Publish", ctx, mock.Anything).Return(nil).Once()

	in := validInput()
	in.Lat = float(-90)
	in.Lng = float(180)
	_, err := f.service.Submit(ctx, alice, in)
	assert.NoError(t, err)
}

func TestSubmit_NotificationFailureKeepsStation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	created := &models.Station{ID: "st-1", Name: "Test", Status: models.StatusPending}
	f.stations.On("CreateStation", ctx, mock.Anything).Return(created, nil).Once()
	f.notifier.On("Notify", ctx, mock.Anything).Return(apperr.Transport("smtp down", errors.New("dial tcp"))).Once()
	f.publisher.On("Publish", ctx, mock.Anything).Return(errors.New("broker gone")).Once()

	result, err := f.service.Submit(ctx, alice, validInput())
	require.NoError(t, err)
	assert.Equal(t, created, result.Station)
	assert.Equal(t, SubmissionWarning, result.Warning)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Submissions.WithLabelValues(metrics.ResultWarning)))
	f.stations.AssertNotCalled(t, "DeleteStation", mock.Anything, mock.Anything)
}

func TestSubmit_StoreFailure(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.stations.On("CreateStation", ctx, mock.Anything).Return(nil, errors.New("connection reset")).Once()

	_, err := f.service.Submit(ctx, alice, validInput())
	assert.ErrorContains(t, err, "connection reset")
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestTransition_Authorization(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.service.Transition(context.Background(), nil, "st-1", "active")
	assert.True(t, apperr.Is(err, apperr.TypeUnauthorized))

	_, err = f.service.Transition(context.Background(), alice, "st-1", "active")
	assert.True(t, apperr.Is(err, apperr.TypeForbidden))

	f.stations.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestTransition_InvalidStatus(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.service.Transition(context.Background(), admin, "st-1", "archived")
	assert.True(t, apperr.Is(err, apperr.TypeValidation))
}

func TestTransition_Changed(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	updated := &models.Station{
		ID: "st-1", Name: "Test", Status: models.StatusActive,
		Author: models.Author{Email: "alice@example.com"},
	}
	f.stations.On("UpdateStatus", ctx, "st-1", models.StatusActive).Return(updated, models.StatusPending, nil).Once()
	f.publisher.On("Publish", ctx, events.Event{
		Type:           events.TypeStationStatusChanged,
		StationID:      "st-1",
		Status:         models.StatusActive,
		PreviousStatus: models.StatusPending,
		OccurredAt:     time.Date(2026, 10, 16, 12, 30, 0, 0, time.UTC),
	}).Return(nil).Once()
	f.notifier.On("Notify", ctx, notify.Notification{
		Kind: notify.KindStatusChanged,
		Payload: notify.StatusChangedPayload{
			Recipient:   "alice@example.com",
			StationName: "Test",
			Previous:    models.StatusPending,
			Status:      models.StatusActive,
		},
	}).Return(nil).Once()

	result, err := f.service.Transition(ctx, admin, "st-1", "active")
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, models.StatusPending, result.Previous)
	assert.Equal(t, models.StatusActive, result.Station.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Transitions.WithLabelValues("pending", "active")))
}

func TestTransition_SubmitterMailDisabled(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	updated := &models.Station{ID: "st-1", Status: models.StatusInactive, Author: models.Author{Email: "alice@example.com"}}
	f.stations.On("UpdateStatus", ctx, "st-1", models.StatusInactive).Return(updated, models.StatusActive, nil).Once()
	f.publisher.On("Publish", ctx, mock.Anything).Return(nil).Once()

	result, err := f.service.Transition(ctx, admin, "st-1", "inactive")
	require.NoError(t, err)
	assert.True(t, result.Changed)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestTransition_SubmitterMailFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	updated := &models.Station{ID: "st-1", Status: models.StatusActive, Author: models.Author{Email: "alice@example.com"}}
	f.stations.On("UpdateStatus", ctx, "st-1", models.StatusActive).Return(updated, models.StatusInactive, nil).Once()
	f.publisher.On("Publish", ctx, mock.Anything).Return(nil).Once()
	f.notifier.On("Notify", ctx, mock.Anything).Return(errors.New("smtp down")).Once()

	result, err := f.service.Transition(ctx, admin, "st-1", "active")
	require.NoError(t, err)
	assert.True(t, result.Changed)
}

func TestTransition_SameStateIsNoop(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	current := &models.Station{ID: "st-1", Status: models.StatusActive, Author: models.Author{Email: "alice@example.com"}}
	f.stations.On("UpdateStatus", ctx, "st-1", models.StatusActive).Return(current, models.StatusActive, nil).Once()

	result, err := f.service.Transition(ctx, admin, "st-1", "active")
	require.NoError(t, err)
	assert.False(t, result.Changed)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestTransition_ConcurrentChangeIsConflict(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	// the store reports no write but the station now holds another status
	current := &models.Station{ID: "st-1", Status: models.StatusInactive, Author: models.Author{Email: "alice@example.com"}}
	f.stations.On("UpdateStatus", ctx, "st-1", models.StatusActive).Return(current, models.StatusInactive, nil).Once()

	result, err := f.service.Transition(ctx, admin, "st-1", "active")
	assert.Nil(t, result)
	assert.True(t, apperr.Is(err, apperr.TypeConflict))
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestTransition_BackToPending(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.stations.On("FindStationByID", ctx, "st-1").Return(&models.Station{ID: "st-1", Status: models.StatusActive}, nil).Once()
	f.stations.On("FindStationByID", ctx, "st-2").Return(&models.Station{ID: "st-2", Status: models.StatusPending}, nil).Once()

	_, err := f.service.Transition(ctx, admin, "st-1", "pending")
	assert.True(t, apperr.Is(err, apperr.TypeConflict))

	result, err := f.service.Transition(ctx, admin, "st-2", "en_attente")
	require.NoError(t, err)
	assert.False(t, result.Changed)

	f.stations.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestTransition_NotFound(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.stations.On("UpdateStatus", ctx, "missing", models.StatusActive).
		Return(nil, models.StationStatus(""), apperr.NotFound("station not found")).Once()

	_, err := f.service.Transition(ctx, admin, "missing", "active")
	assert.True(t, apperr.Is(err, apperr.TypeNotFound))
}

func TestDelete(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	assert.True(t, apperr.Is(f.service.Delete(ctx, alice, "st-1"), apperr.TypeForbidden))

	f.stations.On("DeleteStation", ctx, "st-1").Return(nil).Once()
	f.stations.On("DeleteStation", ctx, "missing").Return(apperr.NotFound("station not found")).Once()
	f.publisher.On("Publish", ctx, mock.MatchedBy(func(e events.Event) bool {
		return e.Type == events.TypeStationDeleted && e.StationID == "st-1"
	})).Return(nil).Once()

	require.NoError(t, f.service.Delete(ctx, admin, "st-1"))
	assert.True(t, apperr.Is(f.service.Delete(ctx, admin, "missing"), apperr.TypeNotFound))
}

func TestList(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	filter := models.StationFilter{Status: models.StatusActive, Services: []string{"vacuum"}}
	f.stations.On("ListStations", ctx, filter).Return([]models.Station{{ID: "st-1"}}, nil).Once()

	stations, err := f.service.List(ctx, filter)
	require.NoError(t, err)
	assert.Len(t, stations, 1)

	_, err = f.service.List(ctx, models.StationFilter{Services: []string{"sauna"}})
	assert.True(t, apperr.Is(err, apperr.TypeValidation))
}

func TestStats(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.service.Stats(ctx, nil)
	assert.True(t, apperr.Is(err, apperr.TypeUnauthorized))

	f.stations.On("CountByStatus", ctx).Return(models.StatusCounts{Total: 6, Pending: 1, Active: 3, Inactive: 2}, nil).Twice()
	f.counter.weekly, f.counter.monthly = 12, 40

	stats, err := f.service.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, models.StationStats{
		TotalStations: 6, ActiveStations: 3, PendingStations: 1, InactiveStations: 2,
		WeeklyVisits: 12, MonthlyVisits: 40,
	}, *stats)

	f.counter.err = errors.New("redis down")
	stats, err = f.service.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Zero(t, stats.WeeklyVisits)
	assert.Equal(t, int64(6), stats.TotalStations)
}

func TestRecordVisit(t *testing.T) {
	f := newFixture(t, false)
	f.service.RecordVisit(context.Background(), "203.0.113.7")
	assert.Equal(t, []string{"203.0.113.7"}, f.counter.recorded)

	f.counter.err = errors.New("redis down")
	f.service.RecordVisit(context.Background(), "203.0.113.8")
}

func TestNewService_Defaults(t *testing.T) {
	s := NewService(Deps{Stations: new(MockStationCollection)})
	assert.IsType(t, events.NopPublisher{}, s.publisher)
	assert.IsType(t, visits.NoopCounter{}, s.visits)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.Validator())
}
