package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ukydev/camperwash/internal/apperr"
	"github.com/ukydev/camperwash/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoUserCollection implements UserCollection for MongoDB
type MongoUserCollection struct {
	Collection *mongo.Collection
}

// UpsertOAuthUser creates or refreshes the account keyed by email
func (c *MongoUserCollection) UpsertOAuthUser(ctx context.Context, user models.User) (*models.User, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	now := time.Now().UTC()
	email := strings.ToLower(strings.TrimSpace(user.Email))

	update := bson.M{
		"$set": bson.M{
			"name":       user.Name,
			"provider":   user.Provider,
			"role":       user.Role,
			"last_login": now,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"email":      email,
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored models.User
	err := c.Collection.FindOneAndUpdate(ctx, bson.M{"email": email}, update, opts).Decode(&stored)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &stored, nil
}

// FindUserByEmail finds a user by their email
func (c *MongoUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if c.Collection == nil {
		return nil, errNilCollection
	}
	var user models.User
	err := c.Collection.FindOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}
