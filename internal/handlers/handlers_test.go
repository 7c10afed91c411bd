package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/camperwash/internal/apperr"
	"github.com/ukydev/camperwash/internal/auth"
	"github.com/ukydev/camperwash/internal/geocode"
	"github.com/ukydev/camperwash/internal/middleware"
	"github.com/ukydev/camperwash/internal/models"
	"github.com/ukydev/camperwash/internal/moderation"
	"github.com/ukydev/camperwash/internal/notify"
)

// memStations is an in-memory db.StationCollection
type memStations struct {
	mu    sync.Mutex
	items map[string]models.Station
}

func newMemStations() *memStations {
	return &memStations{items: map[string]models.Station{}}
}

func (s *memStations) ListStations(_ context.Context, filter models.StationFilter) ([]models.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Station
	for _, st := range s.items {
		if filter.Matches(st) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStations) FindStationByID(_ context.Context, id string) (*models.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.items[id]
	if !ok {
		return nil, apperr.NotFound("station not found")
	}
	return &st, nil
}

func (s *memStations) CreateStation(_ context.Context, station models.Station) (*models.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[station.ID] = station
	return &station, nil
}

func (s *memStations) UpdateStatus(_ context.Context, id string, status models.StationStatus) (*models.Station, models.StationStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.items[id]
	if !ok {
		return nil, "", apperr.NotFound("station not found")
	}
	previous := st.Status
	st.Status = status
	s.items[id] = st
	return &st, previous, nil
}

func (s *memStations) DeleteStation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return apperr.NotFound("station not found")
	}
	delete(s.items, id)
	return nil
}

func (s *memStations) CountByStatus(context.Context) (models.StatusCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts models.StatusCounts
	for _, st := range s.items {
		counts.Add(st.Status, 1)
	}
	return counts, nil
}

// MockNotifier is a mock implementation of moderation.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n notify.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// MockUserCollection is a mock implementation of db.UserCollection
type MockUserCollection struct {
	mock.Mock
}

func (m *MockUserCollection) UpsertOAuthUser(ctx context.Context, user models.User) (*models.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type fakeGeocoder struct {
	candidates []geocode.Candidate
	query      string
	limit      int
}

func (g *fakeGeocoder) Autocomplete(_ context.Context, query string, limit int) ([]geocode.Candidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.Validation("le texte de recherche est requis")
	}
	g.query, g.limit = query, limit
	return g.candidates, nil
}

type testEnv struct {
	handler  http.Handler
	stations *memStations
	notifier *MockNotifier
	users    *MockUserCollection
	geocoder *fakeGeocoder
	authSvc  *auth.Service
	logger   *logrus.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger, _ := test.NewNullLogger()
	env := &testEnv{
		stations: newMemStations(),
		notifier: new(MockNotifier),
		users:    new(MockUserCollection),
		geocoder: &fakeGeocoder{},
		authSvc:  auth.NewService("test-secret", time.Hour),
		logger:   logger,
	}

	service := moderation.NewService(moderation.Deps{
		Stations: env.stations,
		Notifier: env.notifier,
		Logger:   logger,
	})
	router := &Router{
		Stations: NewStationHandler(service, logger),
		Notify:   NewNotifyHandler(env.notifier, service.Validator(), logger),
		Geocode:  NewGeocodeHandler(env.geocoder, logger),
		Uploads:  NewUploadHandler(nil, logger),
		Auth: NewAuthHandler(env.authSvc, env.users, AuthOptions{
			IsAdmin: func(email string) bool { return email == "admin@camperwash.fr" },
		}, logger),
	}
	env.handler = middleware.Chain(router.Mux(), middleware.NewAuthMiddleware(env.authSvc).Authenticate)

	t.Cleanup(func() { env.notifier.AssertExpectations(t) })
	return env
}

func (e *testEnv) token(t *testing.T, role models.Role) string {
	t.Helper()
	email := "alice@example.com"
	if role == models.RoleAdmin {
		email = "admin@camperwash.fr"
	}
	token, err := e.authSvc.GenerateToken(&models.User{ID: "u-" + string(role), Email: email, Name: "Alice", Role: role})
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}
