package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"teestyle/internal/models"
)

// Mongo is the durable provider: a thin wrapper over a driver
// collection. Every call carries its own deadline so a stalled backend
// degrades into fallback instead of hanging the request.
type Mongo[T any] struct {
	coll *mongo.Collection
}

func NewMongo[T any](db *mongo.Database, name string) *Mongo[T] {
	return &Mongo[T]{coll: db.Collection(name)}
}

func (m *Mongo[T]) Find(ctx context.Context, filter bson.M) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := m.coll.Find(ctx, filter)
	if err != nil {
		return nil, classify(err)
	}
	defer cur.Close(ctx)

	var docs []T
	if err := cur.All(ctx, &docs); err != nil {
		return nil, classify(err)
	}
	return docs, nil
}

func (m *Mongo[T]) FindByID(ctx context.Context, id string) (T, error) {
	var zero T
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return zero, models.ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc T
	err = m.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return zero, models.ErrNotFound
	}
	if err != nil {
		return zero, classify(err)
	}
	return doc, nil
}

func (m *Mongo[T]) Insert(ctx context.Context, doc T) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		var zero T
		return zero, classify(err)
	}
	return doc, nil
}

func (m *Mongo[T]) Update(ctx context.Context, id string, patch bson.M) (T, error) {
	return m.findAndUpdate(ctx, id, nil, patch, models.ErrNotFound)
}

func (m *Mongo[T]) UpdateWhere(ctx context.Context, id string, guard bson.M, patch bson.M) (T, error) {
	return m.findAndUpdate(ctx, id, guard, patch, models.ErrConflict)
}

func (m *Mongo[T]) findAndUpdate(ctx context.Context, id string, guard, patch bson.M, missErr error) (T, error) {
	var zero T
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return zero, models.ErrNotFound
	}

	filter := bson.M{"_id": oid}
	for k, v := range guard {
		filter[k] = v
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc T
	err = m.coll.FindOneAndUpdate(ctx, filter, patch, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return zero, missErr
	}
	if err != nil {
		return zero, classify(err)
	}
	return doc, nil
}

func (m *Mongo[T]) Remove(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, models.ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := m.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return false, classify(err)
	}
	return res.DeletedCount > 0, nil
}

// classify turns transient driver faults into ErrStoreUnavailable so the
// fallback coordinator can catch them. Anything else passes through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrStoreUnavailable, err)
	}
	return err
}
