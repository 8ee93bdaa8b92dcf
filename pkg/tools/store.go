package tools

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/homelead/askdb/pkg/session"
)

// FindQuery carries the cursor options of one find execution.
type FindQuery struct {
	Filter     map[string]any
	Projection map[string]any
	Sort       bson.D
	Skip       int64
	Limit      int64
	MaxTime    time.Duration

	// SortByTextScore orders by the $meta textScore of a $text filter and
	// projects the score. Used by the search tool's text-index levels.
	SortByTextScore bool
}

// Store is the seam between tools and MongoDB. The production implementation
// wraps the shared session; tests substitute fakes so tool logic (scoping,
// allow-list, pipeline construction) is exercised without a database.
type Store interface {
	Find(ctx context.Context, db, collection string, q FindQuery) ([]bson.M, error)
	Count(ctx context.Context, db, collection string, filter map[string]any) (int64, error)
	Aggregate(ctx context.Context, db, collection string, pipeline []map[string]any, allowDiskUse bool) ([]bson.M, error)
	EnsureTextIndex(ctx context.Context, db, collection string) error
	Explain(ctx context.Context, db string, command bson.D) (bson.M, error)
}

// NewStore wraps the session's MongoDB client as a Store.
func NewStore(s *session.Session) Store {
	return &mongoStore{session: s}
}

type mongoStore struct {
	session *session.Session
}

func (m *mongoStore) collection(db, name string) *mongo.Collection {
	return m.session.Database(db).Collection(name)
}

func (m *mongoStore) Find(ctx context.Context, db, collection string, q FindQuery) ([]bson.M, error) {
	opts := options.Find()
	if q.Projection != nil {
		opts.SetProjection(q.Projection)
	}
	if q.SortByTextScore {
		opts.SetProjection(bson.M{"score": bson.M{"$meta": "textScore"}})
		opts.SetSort(bson.D{{Key: "score", Value: bson.M{"$meta": "textScore"}}})
	} else if len(q.Sort) > 0 {
		opts.SetSort(q.Sort)
	}
	if q.Skip > 0 {
		opts.SetSkip(q.Skip)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	if q.MaxTime > 0 {
		opts.SetMaxTime(q.MaxTime)
	}

	filter := q.Filter
	if filter == nil {
		filter = map[string]any{}
	}

	cursor, err := m.collection(db, collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (m *mongoStore) Count(ctx context.Context, db, collection string, filter map[string]any) (int64, error) {
	if filter == nil {
		filter = map[string]any{}
	}
	return m.collection(db, collection).CountDocuments(ctx, filter)
}

func (m *mongoStore) Aggregate(ctx context.Context, db, collection string, pipeline []map[string]any, allowDiskUse bool) ([]bson.M, error) {
	stages := make(bson.A, len(pipeline))
	for i, stage := range pipeline {
		stages[i] = stage
	}

	opts := options.Aggregate().SetAllowDiskUse(allowDiskUse)
	cursor, err := m.collection(db, collection).Aggregate(ctx, stages, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// EnsureTextIndex creates the wildcard text index the search tool relies on.
// Index creation is idempotent; an existing equivalent index is a no-op.
func (m *mongoStore) EnsureTextIndex(ctx context.Context, db, collection string) error {
	_, err := m.collection(db, collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "$**", Value: "text"}},
	})
	return err
}

func (m *mongoStore) Explain(ctx context.Context, db string, command bson.D) (bson.M, error) {
	var plan bson.M
	if err := m.session.Database(db).RunCommand(ctx, command).Decode(&plan); err != nil {
		return nil, err
	}
	return plan, nil
}
