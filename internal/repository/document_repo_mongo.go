package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/Domenick1991/charterbooking/internal/docstore"
)

const mongoIDField = "_id"

// MongoDocumentStore maps each collection onto a Mongo collection with the
// document id stored as _id. Batches run in a session transaction, which
// requires a replica set.
type MongoDocumentStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoDocumentStore(client *mongo.Client, database string) *MongoDocumentStore {
	return &MongoDocumentStore{client: client, db: client.Database(database)}
}

func (r *MongoDocumentStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

func (r *MongoDocumentStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var m bson.M
	err := r.db.Collection(collection).FindOne(ctx, bson.M{mongoIDField: id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return fromBSON(m), nil
}

func (r *MongoDocumentStore) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	filter, err := mongoFilter(q)
	if err != nil {
		return nil, err
	}

	dir := 1
	if q.Desc {
		dir = -1
	}
	sort := bson.D{{Key: mongoIDField, Value: dir}}
	if q.OrderBy != "" {
		sort = bson.D{{Key: q.OrderBy, Value: dir}, {Key: mongoIDField, Value: 1}}
	}
	opts := options.Find().SetSort(sort)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := r.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []docstore.Document
	for cur.Next(ctx) {
		var m bson.M
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, fromBSON(m))
	}
	return out, cur.Err()
}

func (r *MongoDocumentStore) Update(ctx context.Context, collection, id string, p docstore.Patch) error {
	return r.update(ctx, collection, id, p)
}

func (r *MongoDocumentStore) CommitBatch(ctx context.Context, ops []docstore.Operation) error {
	sess, err := r.client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		for _, op := range ops {
			var err error
			switch op.Kind {
			case docstore.OpCreate:
				err = r.create(ctx, op.Collection, op.ID, op.Patch.Set)
			case docstore.OpUpdate:
				err = r.update(ctx, op.Collection, op.ID, op.Patch)
			default:
				err = fmt.Errorf("unknown operation kind %d", op.Kind)
			}
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (r *MongoDocumentStore) create(ctx context.Context, collection, id string, doc docstore.Document) error {
	norm, err := docstore.NormalizeDocument(doc)
	if err != nil {
		return err
	}
	delete(norm, docstore.IDField)
	norm[mongoIDField] = id

	_, err = r.db.Collection(collection).InsertOne(ctx, bson.M(norm))
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrAlreadyExists)
	}
	return err
}

func (r *MongoDocumentStore) update(ctx context.Context, collection, id string, p docstore.Patch) error {
	filter := bson.M{mongoIDField: id}
	for field, want := range p.Expect {
		if want == nil {
			filter[field] = bson.M{"$exists": false}
			continue
		}
		v, err := docstore.Normalize(want)
		if err != nil {
			return err
		}
		filter[field] = v
	}

	set, err := docstore.NormalizeDocument(p.Set)
	if err != nil {
		return err
	}
	delete(set, docstore.IDField)
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = bson.M(set)
	}
	if len(p.Delete) > 0 {
		unset := bson.M{}
		for _, f := range p.Delete {
			unset[f] = ""
		}
		update["$unset"] = unset
	}

	coll := r.db.Collection(collection)
	var matched int64
	if len(update) == 0 {
		matched, err = coll.CountDocuments(ctx, filter)
	} else {
		var res *mongo.UpdateResult
		res, err = coll.UpdateOne(ctx, filter, update)
		if res != nil {
			matched = res.MatchedCount
		}
	}
	if err != nil {
		return err
	}
	if matched > 0 {
		return nil
	}

	n, err := coll.CountDocuments(ctx, bson.M{mongoIDField: id})
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrConflict)
}

func mongoFilter(q docstore.Query) (bson.M, error) {
	filter := bson.M{}
	for _, f := range q.Filters {
		field := f.Field
		if field == docstore.IDField {
			field = mongoIDField
		}
		switch f.Op {
		case docstore.OpEq:
			v, err := docstore.Normalize(f.Value)
			if err != nil {
				return nil, err
			}
			filter[field] = v
		case docstore.OpIn:
			vs, ok := f.Value.([]any)
			if !ok {
				return nil, fmt.Errorf("filter %q: in expects a list", f.Field)
			}
			norm := make(bson.A, 0, len(vs))
			for _, v := range vs {
				n, err := docstore.Normalize(v)
				if err != nil {
					return nil, err
				}
				norm = append(norm, n)
			}
			filter[field] = bson.M{"$in": norm}
		default:
			return nil, fmt.Errorf("filter %q: unsupported operator %q", f.Field, f.Op)
		}
	}
	if q.AfterID != "" && q.OrderBy == "" {
		filter[mongoIDField] = bson.M{"$gt": q.AfterID}
	}
	return filter, nil
}

// fromBSON converts a decoded Mongo document into the normalized form.
func fromBSON(m bson.M) docstore.Document {
	out := make(docstore.Document, len(m))
	for k, v := range m {
		if k == mongoIDField {
			k = docstore.IDField
		}
		out[k] = fromBSONValue(v)
	}
	return out
}

func fromBSONValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return fromBSON(t)
	case map[string]any:
		return fromBSON(t)
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSONValue(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSONValue(e)
		}
		return out
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case bson.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	default:
		return t
	}
}

var _ docstore.Store = (*MongoDocumentStore)(nil)
