package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLStore persists rows as JSON documents through database/sql. No
// driver is bundled; the caller opens the *sql.DB (sqlite works with a
// single-table schema created lazily). Every call runs inside its own
// transaction, which is what makes the conditional update atomic.
type SQLStore struct {
	db    *sql.DB
	table string
}

// NewSQLStore builds a store over db using the given table name.
func NewSQLStore(db *sql.DB, table string) *SQLStore {
	if table == "" {
		table = "lifecycle_rows"
	}
	return &SQLStore{db: db, table: table}
}

// Insert persists a new document row.
func (s *SQLStore) Insert(ctx context.Context, collection string, row Row) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("sql store not configured")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return "", errors.New("collection required")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return "", Transient(err, "insert", collection)
	}
	row = row.Clone()
	if row == nil {
		row = Row{}
	}
	if row.ID() == "" {
		row[IDField] = nextRowID()
	}
	doc, err := json.Marshal(row)
	if err != nil {
		return "", err
	}

	q := fmt.Sprintf(`INSERT INTO %s (collection, id, doc, updated_at) VALUES (?, ?, ?, ?)`, s.table)
	if _, err := s.db.ExecContext(ctx, q, collection, row.ID(), string(doc), nowStamp()); err != nil {
		return "", Transient(err, "insert", collection)
	}
	return row.ID(), nil
}

// Update patches matching documents inside one transaction and returns
// the affected count. Each write is conditioned on the document's
// pre-image, so a concurrent writer makes the condition miss rather
// than be overwritten.
func (s *SQLStore) Update(ctx context.Context, collection string, sel Selector, patch Row) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("sql store not configured")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return 0, Transient(err, "update", collection)
	}

	affected := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := queryDocs(ctx, tx, s.table, collection, sel)
		if err != nil {
			return err
		}
		q := fmt.Sprintf(`UPDATE %s SET doc=?, updated_at=? WHERE collection=? AND id=? AND doc=?`, s.table)
		for _, prev := range rows {
			next, err := json.Marshal(prev.row.Merge(patch))
			if err != nil {
				return err
			}
			result, err := tx.ExecContext(ctx, q, string(next), nowStamp(), collection, prev.row.ID(), prev.raw)
			if err != nil {
				return err
			}
			if n, _ := result.RowsAffected(); n > 0 {
				affected++
			}
		}
		return nil
	})
	if err != nil {
		return 0, Transient(err, "update", collection)
	}
	return affected, nil
}

// Delete removes matching documents and returns their captures.
func (s *SQLStore) Delete(ctx context.Context, collection string, sel Selector) ([]Row, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sql store not configured")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, Transient(err, "delete", collection)
	}

	var removed []Row
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := queryDocs(ctx, tx, s.table, collection, sel)
		if err != nil {
			return err
		}
		q := fmt.Sprintf(`DELETE FROM %s WHERE collection=? AND id=?`, s.table)
		for _, doc := range rows {
			if _, err := tx.ExecContext(ctx, q, collection, doc.row.ID()); err != nil {
				return err
			}
			removed = append(removed, doc.row)
		}
		return nil
	})
	if err != nil {
		return nil, Transient(err, "delete", collection)
	}
	return removed, nil
}

// Query returns matching documents.
func (s *SQLStore) Query(ctx context.Context, collection string, sel Selector) ([]Row, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sql store not configured")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, Transient(err, "query", collection)
	}

	var out []Row
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		docs, err := queryDocs(ctx, tx, s.table, collection, sel)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			out = append(out, doc.row)
		}
		return nil
	})
	if err != nil {
		return nil, Transient(err, "query", collection)
	}
	return out, nil
}

func (s *SQLStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		doc TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	)`, s.table)
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

type docRow struct {
	raw string
	row Row
}

func queryDocs(ctx context.Context, tx *sql.Tx, table, collection string, sel Selector) ([]docRow, error) {
	q := fmt.Sprintf(`SELECT doc FROM %s WHERE collection=? ORDER BY updated_at ASC, id ASC`, table)
	rows, err := tx.QueryContext(ctx, q, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []docRow
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var row Row
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			return nil, err
		}
		if sel.Matches(row) {
			out = append(out, docRow{raw: raw, row: row})
		}
	}
	return out, rows.Err()
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
