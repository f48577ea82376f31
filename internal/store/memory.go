package store

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"teestyle/internal/models"
)

// Memory is the process-lifetime fallback provider. Documents live in a
// mutex-guarded slice for the lifetime of the running process and are
// lost on restart. Filters and patches use the same bson.M language as
// the durable provider: documents are round-tripped through bson
// marshalling so equality, $regex matching and the $set/$inc/$push
// operators behave the same way against both backends.
type Memory[T any] struct {
	mu   sync.Mutex
	docs []bson.M
}

func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{}
}

func (m *Memory[T]) Find(ctx context.Context, filter bson.M) ([]T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []T
	for _, d := range m.docs {
		if !matches(d, filter) {
			continue
		}
		doc, err := decode[T](d)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (m *Memory[T]) FindByID(ctx context.Context, id string) (T, error) {
	var zero T
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return zero, models.ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(oid)
	if i < 0 {
		return zero, models.ErrNotFound
	}
	return decode[T](m.docs[i])
}

func (m *Memory[T]) Insert(ctx context.Context, doc T) (T, error) {
	var zero T
	d, err := encode(doc)
	if err != nil {
		return zero, err
	}
	if oid, ok := d["_id"].(primitive.ObjectID); !ok || oid.IsZero() {
		d["_id"] = primitive.NewObjectID()
	}

	m.mu.Lock()
	m.docs = append(m.docs, d)
	m.mu.Unlock()

	return decode[T](d)
}

func (m *Memory[T]) Update(ctx context.Context, id string, patch bson.M) (T, error) {
	return m.findAndUpdate(id, nil, patch, models.ErrNotFound)
}

func (m *Memory[T]) UpdateWhere(ctx context.Context, id string, guard bson.M, patch bson.M) (T, error) {
	return m.findAndUpdate(id, guard, patch, models.ErrConflict)
}

func (m *Memory[T]) findAndUpdate(id string, guard, patch bson.M, missErr error) (T, error) {
	var zero T
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return zero, models.ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(oid)
	if i < 0 || !matches(m.docs[i], guard) {
		return zero, missErr
	}

	next, err := clone(m.docs[i])
	if err != nil {
		return zero, err
	}
	if err := applyPatch(next, patch); err != nil {
		return zero, err
	}
	m.docs[i] = next
	return decode[T](next)
}

func (m *Memory[T]) Remove(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, models.ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(oid)
	if i < 0 {
		return false, nil
	}
	m.docs = append(m.docs[:i], m.docs[i+1:]...)
	return true, nil
}

// indexOf must be called with the mutex held.
func (m *Memory[T]) indexOf(oid primitive.ObjectID) int {
	for i, d := range m.docs {
		if got, ok := d["_id"].(primitive.ObjectID); ok && got == oid {
			return i
		}
	}
	return -1
}

func encode(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var d bson.M
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func decode[T any](d bson.M) (T, error) {
	var doc T
	raw, err := bson.Marshal(d)
	if err != nil {
		return doc, err
	}
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func clone(d bson.M) (bson.M, error) {
	return encode(d)
}

// matches implements the filter subset the services use: top-level
// equality plus {$regex, $options} string matching.
func matches(doc bson.M, filter bson.M) bool {
	for key, want := range filter {
		got, present := doc[key]
		if cond, ok := want.(bson.M); ok {
			if !matchOperators(got, cond) {
				return false
			}
			continue
		}
		if !present || !looseEqual(got, want) {
			return false
		}
	}
	return true
}

func matchOperators(got any, cond bson.M) bool {
	for op, arg := range cond {
		switch op {
		case "$regex":
			s, ok := got.(string)
			if !ok {
				return false
			}
			pattern := fmt.Sprint(arg)
			if opts, _ := cond["$options"].(string); strings.Contains(opts, "i") {
				s = strings.ToLower(s)
				pattern = strings.ToLower(pattern)
			}
			if !strings.Contains(s, pattern) {
				return false
			}
		case "$options":
			// handled with $regex
		default:
			return false
		}
	}
	return true
}

// looseEqual compares a stored bson value with a caller-supplied Go
// value, normalizing the representations bson round-tripping introduces
// (int32/int64 widths, primitive.DateTime, typed strings).
func looseEqual(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float64:
		return x
	case primitive.DateTime:
		return x.Time().UTC()
	case time.Time:
		return x.UTC()
	case primitive.ObjectID:
		return x.Hex()
	}
	if rv := reflect.ValueOf(v); rv.IsValid() && rv.Kind() == reflect.String {
		return rv.String()
	}
	return v
}

// applyPatch supports the update operators the services emit: $set,
// $inc, $push (with $each) and $unset, on top-level fields.
func applyPatch(doc bson.M, patch bson.M) error {
	for op, arg := range patch {
		fields, ok := arg.(bson.M)
		if !ok {
			return &models.ValidationError{Field: op, Reason: "malformed update document"}
		}
		switch op {
		case "$set":
			for k, v := range fields {
				doc[k] = v
			}
		case "$inc":
			for k, v := range fields {
				sum, err := addNumbers(doc[k], v)
				if err != nil {
					return &models.ValidationError{Field: k, Reason: err.Error()}
				}
				doc[k] = sum
			}
		case "$push":
			for k, v := range fields {
				values := []any{v}
				if mod, ok := v.(bson.M); ok {
					if each, ok := mod["$each"].([]any); ok {
						values = each
					}
				}
				arr, _ := doc[k].(bson.A)
				for _, item := range values {
					arr = append(arr, item)
				}
				doc[k] = arr
			}
		case "$unset":
			for k := range fields {
				delete(doc, k)
			}
		default:
			return &models.ValidationError{Field: op, Reason: "unsupported update operator"}
		}
	}
	return nil
}

func addNumbers(a, b any) (any, error) {
	ai, aIsInt, aok := toNumber(a)
	bi, bIsInt, bok := toNumber(b)
	if !aok || !bok {
		return nil, fmt.Errorf("cannot increment non-numeric value")
	}
	if aIsInt && bIsInt {
		return int64(ai) + int64(bi), nil
	}
	return ai + bi, nil
}

func toNumber(v any) (val float64, isInt bool, ok bool) {
	switch x := v.(type) {
	case nil:
		return 0, true, true
	case int:
		return float64(x), true, true
	case int32:
		return float64(x), true, true
	case int64:
		return float64(x), true, true
	case float64:
		return x, false, true
	default:
		return 0, false, false
	}
}
