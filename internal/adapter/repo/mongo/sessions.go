package mongo

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

var _ domain.SessionRepository = (*SessionRepo)(nil)

// SessionRepo persists chat sessions. Expired documents are removed by the
// TTL index created in EnsureIndexes; reads also filter on expiresAt because
// the TTL monitor only runs about once a minute.
type SessionRepo struct{ col *mongo.Collection }

// NewSessionRepo returns a SessionRepo bound to db.
func NewSessionRepo(db *mongo.Database) *SessionRepo {
	return &SessionRepo{col: db.Collection(SessionsCollection)}
}

func (r *SessionRepo) Create(ctx domain.Context, s domain.Session) (domain.Session, error) {
	ctx, span := startSpan(ctx, SessionsCollection, "Create", "insert")
	defer span.End()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	doc, err := toSessionDoc(s)
	if err != nil {
		return domain.Session{}, fmt.Errorf("op=mongo.sessions.create: %w", err)
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return domain.Session{}, fmt.Errorf("op=mongo.sessions.create: %w", err)
	}
	return s, nil
}

func (r *SessionRepo) Update(ctx domain.Context, s domain.Session) error {
	ctx, span := startSpan(ctx, SessionsCollection, "Update", "replace")
	defer span.End()
	doc, err := toSessionDoc(s)
	if err != nil {
		return fmt.Errorf("op=mongo.sessions.update: %w", err)
	}
	res, err := r.col.ReplaceOne(ctx, bson.D{{Key: "_id", Value: s.ID}}, doc)
	if err != nil {
		return fmt.Errorf("op=mongo.sessions.update: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("op=mongo.sessions.update: %w", domain.ErrSessionNotFound)
	}
	return nil
}

func (r *SessionRepo) FindActive(ctx domain.Context, userID string, now time.Time) (domain.Session, error) {
	ctx, span := startSpan(ctx, SessionsCollection, "FindActive", "find")
	defer span.End()
	filter := bson.D{
		{Key: "userId", Value: userID},
		{Key: "isActive", Value: true},
		{Key: "expiresAt", Value: bson.D{{Key: "$gt", Value: now}}},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	var doc sessionDoc
	if err := r.col.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Session{}, fmt.Errorf("op=mongo.sessions.find_active: %w", domain.ErrSessionNotFound)
		}
		return domain.Session{}, fmt.Errorf("op=mongo.sessions.find_active: %w", err)
	}
	s, err := doc.toDomain()
	if err != nil {
		return domain.Session{}, fmt.Errorf("op=mongo.sessions.find_active: %w", err)
	}
	return s, nil
}

func (r *SessionRepo) DeactivateAll(ctx domain.Context, userID string) (int64, error) {
	ctx, span := startSpan(ctx, SessionsCollection, "DeactivateAll", "update")
	defer span.End()
	filter := bson.D{{Key: "userId", Value: userID}, {Key: "isActive", Value: true}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "isActive", Value: false},
		{Key: "updatedAt", Value: time.Now().UTC()},
	}}}
	res, err := r.col.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("op=mongo.sessions.deactivate_all: %w", err)
	}
	return res.ModifiedCount, nil
}
