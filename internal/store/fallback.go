package store

import (
	"context"
	"errors"
	"log"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"teestyle/internal/models"
)

// Health tracks whether the durable store is reachable. One instance is
// shared by every Fallback collection so a single failed call degrades
// the whole process, and a single successful ping promotes it back.
type Health struct {
	mu       sync.Mutex
	durable  bool
	infoLog  *log.Logger
	errorLog *log.Logger
}

func NewHealth(infoLog, errorLog *log.Logger) *Health {
	return &Health{infoLog: infoLog, errorLog: errorLog}
}

func (h *Health) Durable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.durable
}

func (h *Health) MarkUp() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.durable {
		h.durable = true
		h.infoLog.Println("durable store reachable, serving from MongoDB")
	}
}

func (h *Health) MarkDown(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.durable {
		h.durable = false
		h.errorLog.Printf("durable store unreachable, degrading to in-memory fallback: %v", err)
	}
}

// Fallback routes each call to the durable provider while the health
// tracker says it is reachable, and degrades silently to the in-memory
// provider on transient failures. Callers never see ErrStoreUnavailable
// for plain backend unavailability; they only see domain errors.
//
// In-memory writes made while degraded are not migrated back to the
// durable store on promotion. That gap is deliberate: the fallback is a
// best-effort degraded mode, not a write-behind cache.
type Fallback[T any] struct {
	durable Collection[T]
	memory  *Memory[T]
	health  *Health
}

func NewFallback[T any](durable Collection[T], memory *Memory[T], health *Health) *Fallback[T] {
	return &Fallback[T]{durable: durable, memory: memory, health: health}
}

func (f *Fallback[T]) Find(ctx context.Context, filter bson.M) ([]T, error) {
	if f.health.Durable() {
		docs, err := f.durable.Find(ctx, filter)
		if !f.degraded(err) {
			return docs, err
		}
	}
	return f.memory.Find(ctx, filter)
}

func (f *Fallback[T]) FindByID(ctx context.Context, id string) (T, error) {
	if f.health.Durable() {
		doc, err := f.durable.FindByID(ctx, id)
		if !f.degraded(err) {
			return doc, err
		}
	}
	return f.memory.FindByID(ctx, id)
}

func (f *Fallback[T]) Insert(ctx context.Context, doc T) (T, error) {
	if f.health.Durable() {
		created, err := f.durable.Insert(ctx, doc)
		if !f.degraded(err) {
			return created, err
		}
	}
	return f.memory.Insert(ctx, doc)
}

func (f *Fallback[T]) Update(ctx context.Context, id string, patch bson.M) (T, error) {
	if f.health.Durable() {
		doc, err := f.durable.Update(ctx, id, patch)
		if !f.degraded(err) {
			return doc, err
		}
	}
	return f.memory.Update(ctx, id, patch)
}

func (f *Fallback[T]) UpdateWhere(ctx context.Context, id string, guard bson.M, patch bson.M) (T, error) {
	if f.health.Durable() {
		doc, err := f.durable.UpdateWhere(ctx, id, guard, patch)
		if !f.degraded(err) {
			return doc, err
		}
	}
	return f.memory.UpdateWhere(ctx, id, guard, patch)
}

func (f *Fallback[T]) Remove(ctx context.Context, id string) (bool, error) {
	if f.health.Durable() {
		removed, err := f.durable.Remove(ctx, id)
		if !f.degraded(err) {
			return removed, err
		}
	}
	return f.memory.Remove(ctx, id)
}

func (f *Fallback[T]) degraded(err error) bool {
	if err == nil || !errors.Is(err, models.ErrStoreUnavailable) {
		return false
	}
	f.health.MarkDown(err)
	return true
}
