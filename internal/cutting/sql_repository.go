package cutting

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const cutsSchema = `
CREATE TABLE IF NOT EXISTS cuts (
	id TEXT PRIMARY KEY,
	material_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL,
	token_count INTEGER,
	byte_offset_start INTEGER,
	byte_offset_end INTEGER,
	FOREIGN KEY (material_id) REFERENCES materials (id)
)`

// SQLCutsRepository is a database/sql-backed CutsRepository.
type SQLCutsRepository struct {
	db *sql.DB
}

// NewSQLCutsRepository creates the cuts table if absent.
func NewSQLCutsRepository(ctx context.Context, db *sql.DB) (*SQLCutsRepository, error) {
	if _, err := db.ExecContext(ctx, cutsSchema); err != nil {
		return nil, NewStorageError("create cuts table", err)
	}
	return &SQLCutsRepository{db: db}, nil
}

func (r *SQLCutsRepository) SaveCut(ctx context.Context, c Cut) error {
	return r.insert(ctx, r.db, c)
}

func (r *SQLCutsRepository) SaveCuts(ctx context.Context, cuts []Cut) error {
	if len(cuts) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStorageError("begin save cuts tx", err)
	}
	for _, c := range cuts {
		if err := r.insert(ctx, tx, c); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return NewStorageError("commit save cuts tx", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLCutsRepository) insert(ctx context.Context, e execer, c Cut) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO cuts (id, material_id, chunk_index, content, created_at, token_count, byte_offset_start, byte_offset_end)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.MaterialID, c.ChunkIndex, c.Content, c.CreatedAt.UTC().Format(time.RFC3339Nano),
		c.TokenCount, c.ByteOffsetStart, c.ByteOffsetEnd,
	)
	if err != nil {
		if strings.Contains(strings.ToUpper(err.Error()), "UNIQUE CONSTRAINT") {
			return ErrCutAlreadyExists
		}
		return NewStorageError("save cut", err)
	}
	return nil
}

func (r *SQLCutsRepository) GetCutByID(ctx context.Context, id string) (Cut, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, material_id, chunk_index, content, created_at, token_count, byte_offset_start, byte_offset_end
		 FROM cuts WHERE id = ?`, id)
	return scanCut(row)
}

func (r *SQLCutsRepository) GetCutsByMaterialID(ctx context.Context, materialID string) ([]Cut, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, material_id, chunk_index, content, created_at, token_count, byte_offset_start, byte_offset_end
		 FROM cuts WHERE material_id = ? ORDER BY chunk_index ASC`, materialID)
	if err != nil {
		return nil, NewStorageError("list cuts by material", err)
	}
	defer rows.Close()
	var out []Cut
	for rows.Next() {
		c, err := scanCut(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLCutsRepository) DeleteCut(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cuts WHERE id = ?`, id)
	if err != nil {
		return NewStorageError("delete cut", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return NewStorageError("delete cut", err)
	}
	if n == 0 {
		return ErrCutNotFound
	}
	return nil
}

func (r *SQLCutsRepository) DeleteCutsByMaterialID(ctx context.Context, materialID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cuts WHERE material_id = ?`, materialID)
	if err != nil {
		return NewStorageError("delete cuts by material", err)
	}
	return nil
}

func (r *SQLCutsRepository) CountCutsByMaterialID(ctx context.Context, materialID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cuts WHERE material_id = ?`, materialID).Scan(&n)
	if err != nil {
		return 0, NewStorageError("count cuts by material", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCut(row rowScanner) (Cut, error) {
	var c Cut
	var created string
	var tokenCount, byteStart, byteEnd sql.NullInt64
	err := row.Scan(&c.ID, &c.MaterialID, &c.ChunkIndex, &c.Content, &created, &tokenCount, &byteStart, &byteEnd)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Cut{}, ErrCutNotFound
		}
		return Cut{}, NewStorageError("scan cut", err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if tokenCount.Valid {
		v := int(tokenCount.Int64)
		c.TokenCount = &v
	}
	if byteStart.Valid {
		v := int(byteStart.Int64)
		c.ByteOffsetStart = &v
	}
	if byteEnd.Valid {
		v := int(byteEnd.Int64)
		c.ByteOffsetEnd = &v
	}
	return c, nil
}

var _ CutsRepository = (*SQLCutsRepository)(nil)
