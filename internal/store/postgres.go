package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT        NOT NULL,
    id         TEXT        NOT NULL,
    data       JSONB       NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING gin (data);
`

// Postgres stores every collection in a single JSONB-backed table. Batch
// commits run inside one transaction, which is what gives the batch
// primitive its atomicity.
type Postgres struct {
	db         *sqlx.DB
	batchLimit int
	inLimit    int
}

// NewPostgres wraps an sqlx handle with the configured store limits.
func NewPostgres(db *sqlx.DB, batchLimit, inLimit int) *Postgres {
	if batchLimit <= 0 {
		batchLimit = 500
	}
	if inLimit <= 0 {
		inLimit = 10
	}
	return &Postgres{db: db, batchLimit: batchLimit, inLimit: inLimit}
}

// EnsureSchema creates the documents table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schemaDDL)
	return err
}

// BatchLimit reports the atomic batch cap.
func (p *Postgres) BatchLimit() int { return p.batchLimit }

// InLimit reports the value-in-set query bound.
func (p *Postgres) InLimit() int { return p.inLimit }

func (p *Postgres) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	var raw []byte
	err := p.db.QueryRowxContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return raw, nil
}

func (p *Postgres) Set(ctx context.Context, collection, id string, doc interface{}) error {
	raw, err := json.Marshal(toFields(doc))
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
		 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		collection, id, raw)
	return err
}

func (p *Postgres) Update(ctx context.Context, collection, id string, patch map[string]interface{}) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE documents SET data = data || $3::jsonb, updated_at = now()
		 WHERE collection = $1 AND id = $2`,
		collection, id, raw)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id)
	return err
}

func (p *Postgres) Query(ctx context.Context, collection, field string, value interface{}) ([]Doc, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	rows, err := p.db.QueryxContext(ctx,
		`SELECT id, data FROM documents
		 WHERE collection = $1 AND data -> $2 = $3::jsonb
		 ORDER BY id`,
		collection, field, raw)
	if err != nil {
		return nil, err
	}
	return collectDocs(rows)
}

func (p *Postgres) QueryIn(ctx context.Context, collection, field string, values []interface{}) ([]Doc, error) {
	if len(values) > p.inLimit {
		return nil, fmt.Errorf("store: in-query accepts at most %d values, got %d", p.inLimit, len(values))
	}
	encoded := make([]string, 0, len(values))
	for _, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, string(raw))
	}
	rows, err := p.db.QueryxContext(ctx,
		`SELECT id, data FROM documents
		 WHERE collection = $1 AND data -> $2 = ANY($3::jsonb[])
		 ORDER BY id`,
		collection, field, pq.Array(encoded))
	if err != nil {
		return nil, err
	}
	return collectDocs(rows)
}

func (p *Postgres) Commit(ctx context.Context, ops []Op) error {
	if len(ops) > p.batchLimit {
		return fmt.Errorf("store: batch accepts at most %d operations, got %d", p.batchLimit, len(ops))
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	for _, op := range ops {
		if err := applyTx(ctx, tx, op); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func applyTx(ctx context.Context, tx *sqlx.Tx, op Op) error {
	switch op.Kind {
	case OpSet:
		raw, err := json.Marshal(toFields(op.Payload))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
			 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
			op.Collection, op.ID, raw)
		return err
	case OpUpdate:
		raw, err := json.Marshal(op.Payload)
		if err != nil {
			return err
		}
		// Missing targets are tolerated so a cascade can be re-applied
		// after a partial earlier run.
		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET data = data || $3::jsonb, updated_at = now()
			 WHERE collection = $1 AND id = $2`,
			op.Collection, op.ID, raw)
		return err
	case OpDelete:
		_, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = $1 AND id = $2`,
			op.Collection, op.ID)
		return err
	default:
		return fmt.Errorf("store: unknown op kind %q", op.Kind)
	}
}

func collectDocs(rows *sqlx.Rows) ([]Doc, error) {
	defer rows.Close()
	var out []Doc
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		out = append(out, Doc{ID: id, Data: raw})
	}
	return out, rows.Err()
}
