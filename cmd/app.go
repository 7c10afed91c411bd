package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/camperwash/internal/auth"
	"github.com/ukydev/camperwash/internal/cache"
	"github.com/ukydev/camperwash/internal/config"
	"github.com/ukydev/camperwash/internal/db"
	"github.com/ukydev/camperwash/internal/events"
	"github.com/ukydev/camperwash/internal/geocode"
	"github.com/ukydev/camperwash/internal/handlers"
	"github.com/ukydev/camperwash/internal/metrics"
	"github.com/ukydev/camperwash/internal/middleware"
	"github.com/ukydev/camperwash/internal/moderation"
	"github.com/ukydev/camperwash/internal/notify"
	"github.com/ukydev/camperwash/internal/storage"
	"github.com/ukydev/camperwash/internal/visits"
)

// dependencies are the backing services of the API. Optional ones are nil when not configured.
type dependencies struct {
	stations  db.StationCollection
	users     db.UserCollection
	cache     cache.Provider
	visits    visits.Counter
	publisher events.Publisher
	images    storage.ImageStore
	sender    notify.Sender
}

type app struct {
	handler http.Handler
	closers []func()
}

// Close releases connections in reverse order of creation
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp connects to the configured backends and builds the HTTP handler.
// The store is required; Redis, MQTT and S3 degrade to no-ops when unavailable.
func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*app, error) {
	a := &app{}
	deps := dependencies{sender: notify.NewSender(cfg.Mail, logger)}

	if err := a.connectStore(ctx, cfg, &deps); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		client, err := cache.Connect(ctx, cfg.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, geocoding cache and visit counters disabled")
		} else {
			a.closers = append(a.closers, func() { _ = client.Close() })
			deps.cache = cache.NewRedisCache(client)
			deps.visits = visits.NewRedisCounter(client)
		}
	}

	if cfg.MQTT.Broker != "" {
		publisher, err := events.ConnectMQTT(cfg.MQTT, logger)
		if err != nil {
			logger.WithError(err).Warn("MQTT broker unavailable, station events disabled")
		} else {
			a.closers = append(a.closers, publisher.Close)
			deps.publisher = publisher
		}
	}

	if cfg.S3.Bucket != "" {
		store, err := storage.NewS3ImageStore(ctx, cfg.S3)
		if err != nil {
			logger.WithError(err).Warn("S3 unavailable, image uploads disabled")
		} else {
			deps.images = store
		}
	}

	handler, err := buildHandler(cfg, logger, deps)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.handler = handler
	return a, nil
}

func (a *app) connectStore(ctx context.Context, cfg *config.Config, deps *dependencies) error {
	switch cfg.Store.Driver {
	case "postgres":
		conn, err := db.ConnectPostgres(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		if err := db.EnsureSchema(ctx, conn); err != nil {
			return err
		}
		deps.stations = db.NewPostgresStationCollection(conn)
		deps.users = &db.PostgresUserCollection{DB: conn}
	case "mongo", "":
		client, err := db.ConnectMongo(ctx, cfg.Store.MongoURI)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = client.Disconnect(context.Background()) })
		database := client.Database(cfg.Store.MongoDB)
		if err := db.EnsureIndexes(ctx, database); err != nil {
			return err
		}
		deps.stations = &db.MongoStationCollection{Collection: database.Collection("stations")}
		deps.users = &db.MongoUserCollection{Collection: database.Collection("users")}
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	return nil
}

// buildHandler wires the services and returns the root handler with its middleware chain:
// recover, client address resolution, request logging, metrics, then session authentication.
func buildHandler(cfg *config.Config, logger *logrus.Logger, deps dependencies) (http.Handler, error) {
	m := metrics.New()

	trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	dispatcher, err := notify.NewDispatcher(deps.sender, cfg.AdminEmail, logger, m)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification dispatcher: %w", err)
	}

	authService := auth.NewService(cfg.Session.Secret, cfg.Session.Expiry)
	service := moderation.NewService(moderation.Deps{
		Stations:        deps.stations,
		Notifier:        dispatcher,
		Publisher:       deps.publisher,
		Visits:          deps.visits,
		Metrics:         m,
		Logger:          logger,
		NotifySubmitter: cfg.Mail.NotifySubmitter,
	})

	providers := auth.NewProviders(cfg.OAuth, cfg.BaseURL)
	if len(providers) == 0 {
		logger.Warn("No OAuth provider configured, sign-in is disabled")
	}

	router := &handlers.Router{
		Stations: handlers.NewStationHandler(service, logger),
		Notify:   handlers.NewNotifyHandler(dispatcher, service.Validator(), logger),
		Geocode: handlers.NewGeocodeHandler(
			geocode.NewGeoapifyProvider(cfg.Geoapify.APIKey, cfg.Geoapify.BaseURL, nil, deps.cache, logger), logger),
		Uploads: handlers.NewUploadHandler(deps.images, logger),
		Auth: handlers.NewAuthHandler(authService, deps.users, handlers.AuthOptions{
			Providers:    providers,
			IsAdmin:      cfg.IsAdminEmail,
			CookieSecure: cfg.Session.CookieSecure,
		}, logger),
		Metrics: m.Handler(),
	}
	mux := router.Mux()

	route := func(r *http.Request) string {
		_, pattern := mux.Handler(r)
		return pattern
	}
	return middleware.Chain(mux,
		middleware.Recover(logger),
		middleware.RealIP(trusted),
		middleware.Logging(logger),
		middleware.Metrics(m, route),
		middleware.NewAuthMiddleware(authService).Authenticate,
	), nil
}
