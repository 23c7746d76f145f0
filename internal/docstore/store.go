// Package docstore defines the schemaless document store the commerce
// engine runs on, along with the patch semantics every backend shares.
package docstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrConflict      = errors.New("document precondition failed")
	ErrAlreadyExists = errors.New("document already exists")
)

// Document is a stored record in JSON-normalized form: numbers are
// float64, timestamps RFC3339 strings, nested objects map[string]any.
type Document = map[string]any

// Patch is a partial update. Delete removes fields instead of setting them
// to null. Expect lists top-level preconditions; a nil value requires the
// field to be absent.
type Patch struct {
	Set    Document
	Delete []string
	Expect map[string]any
}

func (p Patch) IsEmpty() bool { return len(p.Set) == 0 && len(p.Delete) == 0 }

type OpKind uint8

const (
	OpCreate OpKind = iota + 1
	OpUpdate
)

// Operation is one write in an atomic batch. Creates use Patch.Set as the
// whole document.
type Operation struct {
	Kind       OpKind
	Collection string
	ID         string
	Patch      Patch
}

func Create(collection, id string, doc Document) Operation {
	return Operation{Kind: OpCreate, Collection: collection, ID: id, Patch: Patch{Set: doc}}
}

func Update(collection, id string, p Patch) Operation {
	return Operation{Kind: OpUpdate, Collection: collection, ID: id, Patch: p}
}

type FilterOp string

const (
	OpEq FilterOp = "=="
	OpIn FilterOp = "in"
)

// Filter matches a top-level field. OpIn expects Value to be a []any.
type Filter struct {
	Field string
	Op    FilterOp
	Value any
}

func Eq(field string, v any) Filter { return Filter{Field: field, Op: OpEq, Value: v} }

func In(field string, vs ...any) Filter { return Filter{Field: field, Op: OpIn, Value: vs} }

// Query selects documents of one collection. Results are ordered by
// OrderBy (id when empty). AfterID pages by id ascending and is only
// honored with the default ordering.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
	AfterID string
}

type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
	Update(ctx context.Context, collection, id string, p Patch) error
	// CommitBatch applies every operation or none of them.
	CommitBatch(ctx context.Context, ops []Operation) error
}

// IDField is the key under which every document carries its own id.
const IDField = "id"
