package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/ukydev/camperwash/internal/apperr"
	"github.com/ukydev/camperwash/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS stations (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	address      TEXT NOT NULL,
	lat          DOUBLE PRECISION NOT NULL,
	lng          DOUBLE PRECISION NOT NULL,
	images       TEXT[] NOT NULL DEFAULT '{}',
	services     JSONB NOT NULL,
	status       TEXT NOT NULL,
	author_name  TEXT,
	author_email TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS stations_status_idx ON stations (status);
CREATE INDEX IF NOT EXISTS stations_created_at_idx ON stations (created_at DESC);
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	provider   TEXT NOT NULL,
	role       TEXT NOT NULL,
	last_login TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`

var stationColumns = []interface{}{
	"id", "name", "address", "lat", "lng", "images", "services",
	"status", "author_name", "author_email", "created_at",
}

const updateStatusSQL = `
UPDATE stations s SET status = $2
FROM (SELECT id, status AS previous FROM stations WHERE id = $1 FOR UPDATE) old
WHERE s.id = old.id AND s.status <> $2
RETURNING s.id, s.name, s.address, s.lat, s.lng, s.images, s.services,
	s.status, s.author_name, s.author_email, s.created_at, old.previous`

const upsertUserSQL = `
INSERT INTO users (id, email, name, provider, role, last_login, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6, $6)
ON CONFLICT (email) DO UPDATE SET
	name = EXCLUDED.name,
	provider = EXCLUDED.provider,
	role = EXCLUDED.role,
	last_login = EXCLUDED.last_login,
	updated_at = EXCLUDED.updated_at
RETURNING id, email, name, provider, role, last_login, created_at, updated_at`

// ConnectPostgres opens a lib/pq connection pool and pings it.
func ConnectPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return conn, nil
}

// EnsureSchema creates the tables if they are missing.
func EnsureSchema(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// PostgresStationCollection implements StationCollection on PostgreSQL.
type PostgresStationCollection struct {
	DB      *sql.DB
	dialect goqu.DialectWrapper
}

// NewPostgresStationCollection wraps an open connection pool.
func NewPostgresStationCollection(conn *sql.DB) *PostgresStationCollection {
	return &PostgresStationCollection{DB: conn, dialect: goqu.Dialect("postgres")}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStation(row rowScanner, extra ...interface{}) (*models.Station, error) {
	var (
		station    models.Station
		services   []byte
		authorName sql.NullString
	)
	dest := []interface{}{
		&station.ID, &station.Name, &station.Address, &station.Lat, &station.Lng,
		pq.Array(&station.Images), &services, &station.Status,
		&authorName, &station.Author.Email, &station.CreatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(services, &station.Services); err != nil {
		return nil, fmt.Errorf("decode services: %w", err)
	}
	if authorName.Valid {
		name := authorName.String
		station.Author.Name = &name
	}
	if station.Images == nil {
		station.Images = []string{}
	}
	return &station, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// ListStations returns the stations matching filter, newest first.
func (c *PostgresStationCollection) ListStations(ctx context.Context, filter models.StationFilter) ([]models.Station, error) {
	ds := c.dialect.From("stations").Prepared(true).Select(stationColumns...)
	if filter.Status != "" {
		ds = ds.Where(goqu.Ex{"status": string(filter.Status)})
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		ds = ds.Where(goqu.Or(
			goqu.I("name").ILike(pattern),
			goqu.I("address").ILike(pattern),
		))
	}
	for _, service := range filter.Services {
		switch service {
		case "highPressure":
			ds = ds.Where(goqu.L("services->>'highPressure' <> ?", string(models.HighPressureNone)))
		case "tirePressure", "vacuum", "handicapAccess", "wasteWater":
			ds = ds.Where(goqu.L("(services->>?)::boolean", service))
		}
	}
	ds = ds.Order(goqu.I("created_at").Desc())

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close()

	stations := []models.Station{}
	for rows.Next() {
		station, err := scanStation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		stations = append(stations, *station)
	}
	return stations, rows.Err()
}

// FindStationByID finds a station by its ID.
func (c *PostgresStationCollection) FindStationByID(ctx context.Context, id string) (*models.Station, error) {
	query, args, err := c.dialect.From("stations").Prepared(true).
		Select(stationColumns...).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build find query: %w", err)
	}
	station, err := scanStation(c.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("station not found")
		}
		return nil, fmt.Errorf("find station: %w", err)
	}
	return station, nil
}

// CreateStation inserts a station row.
func (c *PostgresStationCollection) CreateStation(ctx context.Context, station models.Station) (*models.Station, error) {
	if station.Images == nil {
		station.Images = []string{}
	}
	services, err := json.Marshal(station.Services)
	if err != nil {
		return nil, fmt.Errorf("encode services: %w", err)
	}
	var authorName sql.NullString
	if station.Author.Name != nil {
		authorName = sql.NullString{String: *station.Author.Name, Valid: true}
	}

	query, args, err := c.dialect.Insert("stations").Prepared(true).Rows(goqu.Record{
		"id":           station.ID,
		"name":         station.Name,
		"address":      station.Address,
		"lat":          station.Lat,
		"lng":          station.Lng,
		"images":       pq.Array(station.Images),
		"services":     string(services),
		"status":       string(station.Status),
		"author_name":  authorName,
		"author_email": station.Author.Email,
		"created_at":   station.CreatedAt,
	}).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build insert query: %w", err)
	}
	if _, err := c.DB.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert station: %w", err)
	}
	return &station, nil
}

// UpdateStatus locks the row, writes the new status only when it differs and returns the previous one.
func (c *PostgresStationCollection) UpdateStatus(ctx context.Context, id string, status models.StationStatus) (*models.Station, models.StationStatus, error) {
	for attempt := 0; attempt < statusUpdateAttempts; attempt++ {
		var previous models.StationStatus
		station, err := scanStation(c.DB.QueryRowContext(ctx, updateStatusSQL, id, string(status)), &previous)
		if err == nil {
			return station, previous, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, "", fmt.Errorf("update station status: %w", err)
		}

		current, err := c.FindStationByID(ctx, id)
		if err != nil {
			return nil, "", err
		}
		if current.Status == status {
			return current, current.Status, nil
		}
	}
	return nil, "", apperr.Conflict("station status changed concurrently")
}

// DeleteStation removes a station row.
func (c *PostgresStationCollection) DeleteStation(ctx context.Context, id string) error {
	query, args, err := c.dialect.Delete("stations").Prepared(true).Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return fmt.Errorf("build delete query: %w", err)
	}
	result, err := c.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete station: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete station: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("station not found")
	}
	return nil
}

// CountByStatus groups stations by status.
func (c *PostgresStationCollection) CountByStatus(ctx context.Context) (models.StatusCounts, error) {
	var counts models.StatusCounts
	query, args, err := c.dialect.From("stations").
		Select(goqu.C("status"), goqu.COUNT("*")).
		GroupBy(goqu.C("status")).
		ToSQL()
	if err != nil {
		return counts, fmt.Errorf("build count query: %w", err)
	}
	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return counts, fmt.Errorf("count stations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return counts, fmt.Errorf("scan station count: %w", err)
		}
		counts.Add(models.StationStatus(status), n)
	}
	return counts, rows.Err()
}

// PostgresUserCollection implements UserCollection on PostgreSQL.
type PostgresUserCollection struct {
	DB *sql.DB
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		user      models.User
		role      string
		lastLogin sql.NullTime
	)
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Provider, &role, &lastLogin, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	user.Role = models.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}
	return &user, nil
}

// UpsertOAuthUser creates or refreshes the account keyed by email.
func (c *PostgresUserCollection) UpsertOAuthUser(ctx context.Context, user models.User) (*models.User, error) {
	now := time.Now().UTC()
	email := strings.ToLower(strings.TrimSpace(user.Email))
	stored, err := scanUser(c.DB.QueryRowContext(ctx, upsertUserSQL,
		uuid.NewString(), email, user.Name, user.Provider, string(user.Role), now))
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return stored, nil
}

// FindUserByEmail finds a user by their email.
func (c *PostgresUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	stored, err := scanUser(c.DB.QueryRowContext(ctx,
		`SELECT id, email, name, provider, role, last_login, created_at, updated_at FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return stored, nil
}
