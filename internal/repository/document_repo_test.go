package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/Domenick1991/charterbooking/internal/docstore"
)

func TestNewPGDocumentStore(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewPGDocumentStore(pool)
	assert.NotNil(t, repo)
}

func TestBuildDocumentQuery(t *testing.T) {
	sql, args, err := buildDocumentQuery("bookings", docstore.Query{
		Filters: []docstore.Filter{
			docstore.Eq("status", "confirmed"),
			docstore.In("currency", "ZAR", "USD"),
		},
		Limit:   50,
		AfterID: "b-1",
	})
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT doc FROM documents WHERE collection=$1 AND (doc @> $2::jsonb) AND (doc @> $3::jsonb OR doc @> $4::jsonb) AND id > $5 ORDER BY id LIMIT $6`,
		sql)
	assert.Equal(t, []any{"bookings", `{"status":"confirmed"}`, `{"currency":"ZAR"}`, `{"currency":"USD"}`, "b-1", 50}, args)
}

func TestBuildDocumentQueryOrderBy(t *testing.T) {
	sql, args, err := buildDocumentQuery("quotes", docstore.Query{OrderBy: "createdAt", Desc: true})
	require.NoError(t, err)

	assert.Equal(t, `SELECT doc FROM documents WHERE collection=$1 ORDER BY doc->$2 DESC, id`, sql)
	assert.Equal(t, []any{"quotes", "createdAt"}, args)

	_, _, err = buildDocumentQuery("quotes", docstore.Query{Filters: []docstore.Filter{{Field: "x", Op: "<", Value: 1}}})
	assert.Error(t, err)
}

func TestMongoFilter(t *testing.T) {
	f, err := mongoFilter(docstore.Query{
		Filters: []docstore.Filter{docstore.Eq("id", "a"), docstore.In("status", "open", "balance-due")},
	})
	require.NoError(t, err)

	assert.Equal(t, "a", f["_id"])
	assert.Equal(t, bson.M{"$in": bson.A{"open", "balance-due"}}, f["status"])
}

func TestFromBSON(t *testing.T) {
	doc := fromBSON(bson.M{
		"_id":     "BK-1",
		"version": int64(3),
		"payment": bson.D{{Key: "amountPaid", Value: int32(5)}},
		"tags":    bson.A{"x", bson.M{"n": int32(1)}},
	})

	assert.Equal(t, "BK-1", doc["id"])
	assert.NotContains(t, doc, "_id")
	assert.Equal(t, float64(3), doc["version"])
	assert.Equal(t, map[string]any{"amountPaid": float64(5)}, doc["payment"])
	assert.Equal(t, []any{"x", docstore.Document{"n": float64(1)}}, doc["tags"])
}

func TestMemoryStoreGetAndUpdate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()

	require.NoError(t, store.CommitBatch(ctx, []docstore.Operation{
		docstore.Create("invoices", "i1", docstore.Document{"amount": 100, "version": 1}),
	}))

	_, err := store.Get(ctx, "invoices", "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	err = store.Update(ctx, "invoices", "i1", docstore.Patch{
		Set:    docstore.Document{"version": 2, "amountPaid": 40},
		Expect: map[string]any{"version": 1},
	})
	require.NoError(t, err)

	err = store.Update(ctx, "invoices", "i1", docstore.Patch{
		Set:    docstore.Document{"version": 2},
		Expect: map[string]any{"version": 1},
	})
	assert.ErrorIs(t, err, docstore.ErrConflict)

	doc, err := store.Get(ctx, "invoices", "i1")
	require.NoError(t, err)
	assert.Equal(t, float64(40), doc["amountPaid"])
	assert.Equal(t, "i1", doc["id"])

	doc["amountPaid"] = float64(0)
	again, _ := store.Get(ctx, "invoices", "i1")
	assert.Equal(t, float64(40), again["amountPaid"], "returned documents are copies")
}

func TestMemoryStoreBatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()
	require.NoError(t, store.Put("quotes", "q1", docstore.Document{"status": "pending-client-acceptance"}))

	err := store.CommitBatch(ctx, []docstore.Operation{
		docstore.Create("bookings", "b1", docstore.Document{"status": "pending-payment"}),
		docstore.Update("quotes", "q1", docstore.Patch{
			Set:    docstore.Document{"status": "accepted-by-client"},
			Expect: map[string]any{"status": "awaiting-acknowledgement"},
		}),
	})
	assert.ErrorIs(t, err, docstore.ErrConflict)
	assert.Equal(t, 0, store.Count("bookings"))

	err = store.CommitBatch(ctx, []docstore.Operation{
		docstore.Create("bookings", "b1", docstore.Document{}),
		docstore.Create("bookings", "b1", docstore.Document{}),
	})
	assert.ErrorIs(t, err, docstore.ErrAlreadyExists)
	assert.Equal(t, 0, store.Count("bookings"))
}

func TestMemoryStoreConcurrentCreateHasOneWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.CommitBatch(ctx, []docstore.Operation{docstore.Create("bookings", "b1", docstore.Document{})})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, store.Count("bookings"))
}

func TestMemoryStoreQuery(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore()
	for _, id := range []string{"r3", "r1", "r2"} {
		require.NoError(t, store.Put("quoteRequests", id, docstore.Document{"status": "submitted"}))
	}
	require.NoError(t, store.Put("quoteRequests", "r4", docstore.Document{"status": "expired"}))

	page, err := store.Query(ctx, "quoteRequests", docstore.Query{
		Filters: []docstore.Filter{docstore.Eq("status", "submitted")},
		Limit:   2,
	})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "r1", page[0]["id"])
	assert.Equal(t, "r2", page[1]["id"])

	rest, err := store.Query(ctx, "quoteRequests", docstore.Query{AfterID: "r2"})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "r3", rest[0]["id"])

	_, err = store.Query(ctx, "quoteRequests", docstore.Query{Filters: []docstore.Filter{{Field: "status", Op: docstore.OpIn, Value: "x"}}})
	assert.Error(t, err)
}
