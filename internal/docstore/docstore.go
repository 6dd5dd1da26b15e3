// Package docstore keeps JSON documents in libSQL tables of the shape
// (id TEXT PRIMARY KEY, data JSONB NOT NULL). It offers whole-document
// reads and creates, targeted field updates and merge-writes.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrExists   = errors.New("document already exists")
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Collection returns a handle on table. The table must already exist.
func (s *Store) Collection(table string) *Collection {
	return &Collection{db: s.db, table: table}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type Collection struct {
	db    *sql.DB
	table string
}

// Field is one targeted change: Value is written at Path, creating any
// missing intermediate objects. A nil Value removes the key.
type Field struct {
	Path  []string
	Value any
}

func (c *Collection) Get(ctx context.Context, id string, dest any) error {
	var data string
	err := c.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT json(data) FROM %s WHERE id = ?`, c.table), id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// Create stores doc under id unless a document is already there.
func (c *Collection) Create(ctx context.Context, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	result, err := c.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, data) VALUES (?, jsonb(?)) ON CONFLICT(id) DO NOTHING`, c.table),
		id, string(data),
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrExists
	}
	return nil
}

// Update applies fields to an existing document in a single statement.
// Paths not named in fields are left untouched.
func (c *Collection) Update(ctx context.Context, id string, fields []Field) error {
	if len(fields) == 0 {
		return nil
	}
	patch, err := json.Marshal(buildPatch(fields))
	if err != nil {
		return err
	}
	result, err := c.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET data = jsonb_patch(data, ?) WHERE id = ?`, c.table),
		string(patch), id,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MergeSet writes doc, deep-merging objects into any stored document.
// Arrays and scalars in doc replace the stored values.
func (c *Collection) MergeSet(ctx context.Context, id string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, data) VALUES (?, jsonb(?))
		 ON CONFLICT(id) DO UPDATE SET data = jsonb_patch(data, excluded.data)`, c.table),
		id, string(data),
	)
	return err
}

// buildPatch folds field paths into one nested merge-patch object.
func buildPatch(fields []Field) map[string]any {
	root := map[string]any{}
	for _, f := range fields {
		if len(f.Path) == 0 {
			continue
		}
		node := root
		for _, key := range f.Path[:len(f.Path)-1] {
			child, ok := node[key].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[key] = child
			}
			node = child
		}
		node[f.Path[len(f.Path)-1]] = f.Value
	}
	return root
}
