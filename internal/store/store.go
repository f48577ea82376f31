package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Collection names of the persisted state layout.
const (
	CollUsers    = "users"
	CollProducts = "products"
	CollCarts    = "carts"
	CollOrders   = "orders"
)

const opTimeout = 5 * time.Second

// Collection is the storage contract every provider implements. Filters
// and patches are expressed as bson.M regardless of provider, so callers
// never know whether they are talking to MongoDB or the in-memory
// fallback. None of the operations assume multi-document transactions:
// every multi-record flow in the services is written as independent,
// individually retryable writes.
//
// UpdateWhere is the compare-and-swap primitive: guard is matched
// together with _id, and a miss comes back as models.ErrConflict. A
// caller that has just fetched the document can tell a lost race from a
// deleted document by re-fetching.
type Collection[T any] interface {
	Find(ctx context.Context, filter bson.M) ([]T, error)
	FindByID(ctx context.Context, id string) (T, error)
	Insert(ctx context.Context, doc T) (T, error)
	Update(ctx context.Context, id string, patch bson.M) (T, error)
	UpdateWhere(ctx context.Context, id string, guard bson.M, patch bson.M) (T, error)
	Remove(ctx context.Context, id string) (bool, error)
}
