package mongo

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fairyhunter13/ai-interviewer/internal/domain"
)

var _ domain.AttemptRepository = (*AttemptRepo)(nil)

// AttemptRepo persists interview attempts as single documents.
type AttemptRepo struct{ col *mongo.Collection }

// NewAttemptRepo returns an AttemptRepo bound to db.
func NewAttemptRepo(db *mongo.Database) *AttemptRepo {
	return &AttemptRepo{col: db.Collection(AttemptsCollection)}
}

func (r *AttemptRepo) Create(ctx domain.Context, a domain.Attempt) (domain.Attempt, error) {
	ctx, span := startSpan(ctx, AttemptsCollection, "Create", "insert")
	defer span.End()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if _, err := r.col.InsertOne(ctx, toAttemptDoc(a)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Attempt{}, fmt.Errorf("op=mongo.attempts.create: id %s: %w", a.ID, domain.ErrConflict)
		}
		return domain.Attempt{}, fmt.Errorf("op=mongo.attempts.create: %w", err)
	}
	return a, nil
}

func (r *AttemptRepo) Update(ctx domain.Context, a domain.Attempt) error {
	ctx, span := startSpan(ctx, AttemptsCollection, "Update", "replace")
	defer span.End()
	next := a
	next.Version++
	res, err := r.col.ReplaceOne(ctx, versionFilter(a.ID, a.Version), toAttemptDoc(next))
	if err != nil {
		return fmt.Errorf("op=mongo.attempts.update: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	n, err := r.col.CountDocuments(ctx, bson.D{{Key: "_id", Value: a.ID}}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("op=mongo.attempts.update: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("op=mongo.attempts.update: version %d: %w", a.Version, domain.ErrStaleAttempt)
	}
	return fmt.Errorf("op=mongo.attempts.update: %w", domain.ErrAttemptNotFound)
}

// versionFilter matches id at version v. Documents written before versioning
// have no field and count as version 0.
func versionFilter(id string, v int64) bson.D {
	if v == 0 {
		return bson.D{{Key: "_id", Value: id}, {Key: "version", Value: bson.D{{Key: "$in", Value: bson.A{int64(0), nil}}}}}
	}
	return bson.D{{Key: "_id", Value: id}, {Key: "version", Value: v}}
}

func (r *AttemptRepo) Get(ctx domain.Context, id string) (domain.Attempt, error) {
	ctx, span := startSpan(ctx, AttemptsCollection, "Get", "find")
	defer span.End()
	return r.findOne(ctx, "op=mongo.attempts.get", bson.D{{Key: "_id", Value: id}})
}

func (r *AttemptRepo) FindOpen(ctx domain.Context, userID string) (domain.Attempt, error) {
	ctx, span := startSpan(ctx, AttemptsCollection, "FindOpen", "find")
	defer span.End()
	filter := bson.D{{Key: "userId", Value: userID}, {Key: "status", Value: string(domain.AttemptInProgress)}}
	opts := options.FindOne().SetSort(bson.D{{Key: "startedAt", Value: -1}})
	return r.findOne(ctx, "op=mongo.attempts.find_open", filter, opts)
}

func (r *AttemptRepo) findOne(ctx domain.Context, op string, filter bson.D, opts ...*options.FindOneOptions) (domain.Attempt, error) {
	var doc attemptDoc
	if err := r.col.FindOne(ctx, filter, opts...).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Attempt{}, fmt.Errorf("%s: %w", op, domain.ErrAttemptNotFound)
		}
		return domain.Attempt{}, fmt.Errorf("%s: %w", op, err)
	}
	return doc.toDomain(), nil
}

// List returns attempts matching f, newest first.
func (r *AttemptRepo) List(ctx domain.Context, f domain.AttemptFilter) ([]domain.Attempt, error) {
	ctx, span := startSpan(ctx, AttemptsCollection, "List", "find")
	defer span.End()
	cur, err := r.col.Find(ctx, listFilter(f), options.Find().SetSort(bson.D{{Key: "startedAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("op=mongo.attempts.list: %w", err)
	}
	defer cur.Close(ctx)
	var docs []attemptDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("op=mongo.attempts.list: %w", err)
	}
	out := make([]domain.Attempt, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// listFilter builds the query for f. Search is a literal, case-insensitive
// substring match on the candidate snapshot.
func listFilter(f domain.AttemptFilter) bson.D {
	filter := bson.D{}
	if f.Status != "" {
		filter = append(filter, bson.E{Key: "status", Value: string(f.Status)})
	}
	if f.UserID != "" {
		filter = append(filter, bson.E{Key: "userId", Value: f.UserID})
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "candidateInfo.name", Value: re}},
			bson.D{{Key: "candidateInfo.email", Value: re}},
			bson.D{{Key: "candidateInfo.phone", Value: re}},
		}})
	}
	return filter
}
