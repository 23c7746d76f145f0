package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Domenick1991/charterbooking/internal/docstore"
)

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id         TEXT NOT NULL,
    doc        JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_doc_gin ON documents USING GIN (doc jsonb_path_ops);
`

// PGDocumentStore keeps every collection in one JSONB table. Updates lock
// the row, apply the patch in process and write the whole document back.
type PGDocumentStore struct {
	db *pgxpool.Pool
}

func NewPGDocumentStore(db *pgxpool.Pool) *PGDocumentStore {
	return &PGDocumentStore{db: db}
}

func (r *PGDocumentStore) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, documentsSchema)
	return err
}

func (r *PGDocumentStore) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *PGDocumentStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT doc FROM documents WHERE collection=$1 AND id=$2`, collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return unmarshalDoc(raw)
}

func (r *PGDocumentStore) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	sql, args, err := buildDocumentQuery(collection, q)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []docstore.Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		doc, err := unmarshalDoc(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (r *PGDocumentStore) Update(ctx context.Context, collection, id string, p docstore.Patch) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := updateInTx(ctx, tx, collection, id, p); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PGDocumentStore) CommitBatch(ctx context.Context, ops []docstore.Operation) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, op := range ops {
		switch op.Kind {
		case docstore.OpCreate:
			err = createInTx(ctx, tx, op.Collection, op.ID, op.Patch.Set)
		case docstore.OpUpdate:
			err = updateInTx(ctx, tx, op.Collection, op.ID, op.Patch)
		default:
			err = fmt.Errorf("unknown operation kind %d", op.Kind)
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func createInTx(ctx context.Context, tx pgx.Tx, collection, id string, doc docstore.Document) error {
	doc, err := docstore.NormalizeDocument(doc)
	if err != nil {
		return err
	}
	doc[docstore.IDField] = id
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx, `INSERT INTO documents (collection, id, doc) VALUES ($1, $2, $3::jsonb) ON CONFLICT DO NOTHING`, collection, id, string(raw))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrAlreadyExists)
	}
	return nil
}

func updateInTx(ctx context.Context, tx pgx.Tx, collection, id string, p docstore.Patch) error {
	var raw []byte
	err := tx.QueryRow(ctx, `SELECT doc FROM documents WHERE collection=$1 AND id=$2 FOR UPDATE`, collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	if err != nil {
		return err
	}
	current, err := unmarshalDoc(raw)
	if err != nil {
		return err
	}
	next, err := docstore.Apply(current, p)
	if err != nil {
		return fmt.Errorf("%s/%s: %w", collection, id, err)
	}
	next[docstore.IDField] = id
	out, err := json.Marshal(next)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `UPDATE documents SET doc=$3::jsonb, updated_at=now() WHERE collection=$1 AND id=$2`, collection, id, string(out))
	return err
}

// buildDocumentQuery renders q as SQL. Equality uses JSONB containment so
// numbers and strings compare with their JSON types.
func buildDocumentQuery(collection string, q docstore.Query) (string, []any, error) {
	var b strings.Builder
	args := []any{collection}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	b.WriteString(`SELECT doc FROM documents WHERE collection=$1`)
	for _, f := range q.Filters {
		values := []any{f.Value}
		switch f.Op {
		case docstore.OpEq:
		case docstore.OpIn:
			vs, ok := f.Value.([]any)
			if !ok {
				return "", nil, fmt.Errorf("filter %q: in expects a list", f.Field)
			}
			if len(vs) == 0 {
				b.WriteString(` AND FALSE`)
				continue
			}
			values = vs
		default:
			return "", nil, fmt.Errorf("filter %q: unsupported operator %q", f.Field, f.Op)
		}
		conds := make([]string, 0, len(values))
		for _, v := range values {
			raw, err := json.Marshal(map[string]any{f.Field: v})
			if err != nil {
				return "", nil, err
			}
			conds = append(conds, "doc @> "+arg(string(raw))+"::jsonb")
		}
		b.WriteString(" AND (" + strings.Join(conds, " OR ") + ")")
	}

	if q.OrderBy == "" {
		if q.AfterID != "" {
			b.WriteString(" AND id > " + arg(q.AfterID))
		}
		b.WriteString(" ORDER BY id")
		if q.Desc {
			b.WriteString(" DESC")
		}
	} else {
		b.WriteString(" ORDER BY doc->" + arg(q.OrderBy))
		if q.Desc {
			b.WriteString(" DESC")
		}
		b.WriteString(", id")
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT " + arg(q.Limit))
	}
	return b.String(), args, nil
}

func unmarshalDoc(raw []byte) (docstore.Document, error) {
	var doc docstore.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode stored document: %w", err)
	}
	return doc, nil
}

var _ docstore.Store = (*PGDocumentStore)(nil)
