package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/Domenick1991/charterbooking/internal/docstore"
)

// MemoryDocumentStore is a process-local store with the same patch and
// batch semantics as the database backends.
type MemoryDocumentStore struct {
	mu   sync.Mutex
	data map[string]map[string]docstore.Document
	// writes counts committed document mutations.
	writes int
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{data: make(map[string]map[string]docstore.Document)}
}

func (m *MemoryDocumentStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.data[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return docstore.Clone(doc), nil
}

func (m *MemoryDocumentStore) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, f := range q.Filters {
		if f.Op == docstore.OpIn {
			if _, ok := f.Value.([]any); !ok {
				return nil, fmt.Errorf("filter %q: in expects a list", f.Field)
			}
		}
	}

	m.mu.Lock()
	all := make([]docstore.Document, 0, len(m.data[collection]))
	for _, doc := range m.data[collection] {
		all = append(all, doc)
	}
	selected := docstore.Select(all, q)
	out := make([]docstore.Document, len(selected))
	for i, doc := range selected {
		out[i] = docstore.Clone(doc)
	}
	m.mu.Unlock()
	return out, nil
}

func (m *MemoryDocumentStore) Update(ctx context.Context, collection, id string, p docstore.Patch) error {
	return m.CommitBatch(ctx, []docstore.Operation{docstore.Update(collection, id, p)})
}

func (m *MemoryDocumentStore) CommitBatch(ctx context.Context, ops []docstore.Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// Stage on copies so a failing operation leaves nothing behind.
	staged := make(map[string]map[string]docstore.Document)
	lookup := func(collection, id string) (docstore.Document, bool) {
		if doc, ok := staged[collection][id]; ok {
			return doc, doc != nil
		}
		doc, ok := m.data[collection][id]
		return doc, ok
	}
	stage := func(collection, id string, doc docstore.Document) {
		if staged[collection] == nil {
			staged[collection] = make(map[string]docstore.Document)
		}
		staged[collection][id] = doc
	}

	for _, op := range ops {
		current, exists := lookup(op.Collection, op.ID)
		switch op.Kind {
		case docstore.OpCreate:
			if exists {
				return fmt.Errorf("%s/%s: %w", op.Collection, op.ID, docstore.ErrAlreadyExists)
			}
			doc, err := docstore.NormalizeDocument(op.Patch.Set)
			if err != nil {
				return err
			}
			doc[docstore.IDField] = op.ID
			stage(op.Collection, op.ID, doc)
		case docstore.OpUpdate:
			if !exists {
				return fmt.Errorf("%s/%s: %w", op.Collection, op.ID, docstore.ErrNotFound)
			}
			next, err := docstore.Apply(current, op.Patch)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", op.Collection, op.ID, err)
			}
			next[docstore.IDField] = op.ID
			stage(op.Collection, op.ID, next)
		default:
			return fmt.Errorf("unknown operation kind %d", op.Kind)
		}
	}

	for collection, docs := range staged {
		if m.data[collection] == nil {
			m.data[collection] = make(map[string]docstore.Document)
		}
		for id, doc := range docs {
			m.data[collection][id] = doc
			m.writes++
		}
	}
	return nil
}

// Put stores doc as-is, bypassing preconditions. It seeds fixtures and
// legacy data.
func (m *MemoryDocumentStore) Put(collection, id string, doc docstore.Document) error {
	norm, err := docstore.NormalizeDocument(doc)
	if err != nil {
		return err
	}
	norm[docstore.IDField] = id
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]docstore.Document)
	}
	m.data[collection][id] = norm
	return nil
}

// Writes returns the number of document mutations committed so far.
func (m *MemoryDocumentStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *MemoryDocumentStore) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data[collection])
}

func (m *MemoryDocumentStore) Ping(ctx context.Context) error { return ctx.Err() }

var _ docstore.Store = (*MemoryDocumentStore)(nil)
