// Package mongo provides MongoDB adapters for users, sessions and attempts.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Collection names.
const (
	UsersCollection    = "users"
	SessionsCollection = "sessions"
	AttemptsCollection = "attempts"
)

// Client wraps a connected driver client and the application database.
type Client struct {
	raw *mongo.Client
	db  *mongo.Database
}

// Connect dials uri and pings the primary.
func Connect(ctx context.Context, uri, database string) (*Client, error) {
	if uri == "" {
		return nil, errors.New("op=mongo.Connect: uri is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	c, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("op=mongo.Connect: %w", err)
	}
	if err := c.Ping(ctx, readpref.Primary()); err != nil {
		_ = c.Disconnect(context.Background())
		return nil, fmt.Errorf("op=mongo.Connect: ping: %w", err)
	}
	return &Client{raw: c, db: c.Database(database)}, nil
}

// DB returns the application database.
func (c *Client) DB() *mongo.Database { return c.db }

// Ping checks the primary is reachable. It satisfies the readiness pinger.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.raw == nil {
		return errors.New("mongo client not initialized")
	}
	return c.raw.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Disconnect(ctx)
}

// EnsureIndexes creates the indexes every repository relies on. Sessions
// carry a TTL index on expiresAt so the server purges them on expiry.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		UsersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		SessionsCollection: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "isActive", Value: 1}, {Key: "updatedAt", Value: -1}}},
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
		AttemptsCollection: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "status", Value: 1}, {Key: "startedAt", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "startedAt", Value: -1}}},
		},
	}
	for coll, models := range specs {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("op=mongo.EnsureIndexes: %s: %w", coll, err)
		}
	}
	return nil
}

func startSpan(ctx context.Context, coll, name, op string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("repo."+coll).Start(ctx, coll+"."+name)
	span.SetAttributes(
		attribute.String("db.system", "mongodb"),
		attribute.String("db.operation", op),
		attribute.String("db.mongodb.collection", coll),
	)
	return ctx, span
}
