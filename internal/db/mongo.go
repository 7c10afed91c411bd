package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ukydev/camperwash/internal/apperr"
	"github.com/ukydev/camperwash/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errNilCollection = errors.New("mongo collection is nil")

// serviceFields maps filterable service names to their document paths.
var serviceFields = map[string]string{
	"tirePressure":   "services.tire_pressure",
	"vacuum":         "services.vacuum",
	"handicapAccess": "services.handicap_access",
	"wasteWater":     "services.waste_water",
}

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes used by listings and user lookups.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	_, err := database.Collection("stations").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create station indexes: %w", err)
	}
	_, err = database.Collection("users").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

// MongoStationCollection implements StationCollection for MongoDB.
type MongoStationCollection struct {
	Collection *mongo.Collection
}

// stationQuery translates a StationFilter into a Mongo filter document.
func stationQuery(filter models.StationFilter) bson.M {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Search != "" {
		pattern := primitiveRegex(filter.Search)
		query["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"address": pattern},
		}
	}
	for _, service := range filter.Services {
		if service == "highPressure" {
			query["services.high_pressure"] = bson.M{"$ne": models.HighPressureNone}
			continue
		}
		if field, ok := serviceFields[service]; ok {
			query[field] = true
		}
	}
	return query
}

func primitiveRegex(search string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(search), "$options": "i"}
}

// ListStations returns the stations matching filter, newest first.
func (c *MongoStationCollection) ListStations(ctx context.Context, filter models.StationFilter) ([]models.Station, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := c.Collection.Find(ctx, stationQuery(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("find stations: %w", err)
	}
	defer cursor.Close(ctx)

	stations := []models.Station{}
	if err := cursor.All(ctx, &stations); err != nil {
		return nil, fmt.Errorf("decode stations: %w", err)
	}
	return stations, nil
}

// FindStationByID finds a station by its ID.
func (c *MongoStationCollection) FindStationByID(ctx context.Context, id string) (*models.Station, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	var station models.Station
	err := c.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&station)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("station not found")
		}
		return nil, fmt.Errorf("find station: %w", err)
	}
	return &station, nil
}

// CreateStation inserts a station record into the collection.
func (c *MongoStationCollection) CreateStation(ctx context.Context, station models.Station) (*models.Station, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	if station.Images == nil {
		station.Images = []string{}
	}
	if _, err := c.Collection.InsertOne(ctx, station); err != nil {
		return nil, fmt.Errorf("insert station: %w", err)
	}
	return &station, nil
}

// UpdateStatus sets the status with a single FindOneAndUpdate so concurrent updates resolve last-write-wins.
func (c *MongoStationCollection) UpdateStatus(ctx context.Context, id string, status models.StationStatus) (*models.Station, models.StationStatus, error) {
	if c.Collection == nil {
		return nil, "", errNilCollection
	}

	for attempt := 0; attempt < statusUpdateAttempts; attempt++ {
		var before models.Station
		err := c.Collection.FindOneAndUpdate(
			ctx,
			bson.M{"_id": id, "status": bson.M{"$ne": status}},
			bson.M{"$set": bson.M{"status": status}},
			options.FindOneAndUpdate().SetReturnDocument(options.Before),
		).Decode(&before)
		if err == nil {
			previous := before.Status
			before.Status = status
			return &before, previous, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, "", fmt.Errorf("update station status: %w", err)
		}

		// Either the id is unknown or the station already has the requested status.
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

// DeleteStation deletes a station by its ID.
func (c *MongoStationCollection) DeleteStation(ctx context.Context, id string) error {
	if c.Collection == nil {
		return errNilCollection
	}
	result, err := c.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete station: %w", err)
	}
	if result.DeletedCount == 0 {
		return apperr.NotFound("station not found")
	}
	return nil
}

// CountByStatus groups stations by status.
func (c *MongoStationCollection) CountByStatus(ctx context.Context) (models.StatusCounts, error) {
	var counts models.StatusCounts
	if c.Collection == nil {
		return counts, errNilCollection
	}
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := c.Collection.Aggregate(ctx, pipeline)
	if err != nil {
		return counts, fmt.Errorf("count stations: %w", err)
	}
	defer cursor.Close(ctx)

	var groups []struct {
		Status models.StationStatus `bson:"_id"`
		Count  int64                `bson:"count"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return counts, fmt.Errorf("decode station counts: %w", err)
	}
	for _, g := range groups {
		counts.Add(g.Status, g.Count)
	}
	return counts, nil
}
