package mongo

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

var _ domain.UserRepository = (*UserRepo)(nil)

// UserRepo persists users in the users collection.
type UserRepo struct{ col *mongo.Collection }

// NewUserRepo returns a UserRepo bound to db.
func NewUserRepo(db *mongo.Database) *UserRepo {
	return &UserRepo{col: db.Collection(UsersCollection)}
}

// Create inserts u, generating an id when empty. A duplicate email is a conflict.
func (r *UserRepo) Create(ctx domain.Context, u domain.User) (domain.User, error) {
	ctx, span := startSpan(ctx, UsersCollection, "Create", "insert")
	defer span.End()
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	doc, err := toUserDoc(u)
	if err != nil {
		return domain.User{}, fmt.Errorf("op=mongo.users.create: %w", err)
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.User{}, fmt.Errorf("op=mongo.users.create: email %s: %w", u.Email, domain.ErrConflict)
		}
		return domain.User{}, fmt.Errorf("op=mongo.users.create: %w", err)
	}
	return u, nil
}

// Update replaces the stored user with u.
func (r *UserRepo) Update(ctx domain.Context, u domain.User) error {
	ctx, span := startSpan(ctx, UsersCollection, "Update", "replace")
	defer span.End()
	doc, err := toUserDoc(u)
	if err != nil {
		return fmt.Errorf("op=mongo.users.update: %w", err)
	}
	res, err := r.col.ReplaceOne(ctx, bson.D{{Key: "_id", Value: u.ID}}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("op=mongo.users.update: email %s: %w", u.Email, domain.ErrConflict)
		}
		return fmt.Errorf("op=mongo.users.update: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("op=mongo.users.update: %w", domain.ErrUserNotFound)
	}
	return nil
}

// FindByEmail loads the user with the normalised email.
func (r *UserRepo) FindByEmail(ctx domain.Context, email string) (domain.User, error) {
	ctx, span := startSpan(ctx, UsersCollection, "FindByEmail", "find")
	defer span.End()
	var doc userDoc
	if err := r.col.FindOne(ctx, bson.D{{Key: "email", Value: email}}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.User{}, fmt.Errorf("op=mongo.users.find_by_email: %w", domain.ErrUserNotFound)
		}
		return domain.User{}, fmt.Errorf("op=mongo.users.find_by_email: %w", err)
	}
	u, err := doc.toDomain()
	if err != nil {
		return domain.User{}, fmt.Errorf("op=mongo.users.find_by_email: %w", err)
	}
	return u, nil
}
