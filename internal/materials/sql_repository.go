package materials

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const materialsSchema = `
CREATE TABLE IF NOT EXISTS materials (
	id TEXT PRIMARY KEY,
	file_path TEXT NOT NULL,
	file_type TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	status_updated_at TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT
)`

// SQLMaterialRepository is a database/sql-backed MaterialRepository.
// Grounded on original_source's materials/sqlite_repository.rs, which
// holds the authoritative 4-state transition table.
type SQLMaterialRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLMaterialRepository creates the materials table if absent and
// returns a repository bound to db. Callers own db's lifecycle.
func NewSQLMaterialRepository(ctx context.Context, db *sql.DB) (*SQLMaterialRepository, error) {
	if _, err := db.ExecContext(ctx, materialsSchema); err != nil {
		return nil, NewStorageError("create materials table", err)
	}
	return &SQLMaterialRepository{db: db, now: time.Now}, nil
}

func (r *SQLMaterialRepository) Register(ctx context.Context, m Material) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO materials (id, file_path, file_type, created_at, updated_at, status_updated_at, status, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.FilePath, m.FileType, timeToString(m.CreatedAt), timeToString(m.UpdatedAt),
		timeToString(m.StatusUpdatedAt), string(m.Status), m.Error,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return ErrAlreadyExists
		}
		return NewStorageError("register material", err)
	}
	return nil
}

func (r *SQLMaterialRepository) Get(ctx context.Context, id string) (Material, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, file_path, file_type, created_at, updated_at, status_updated_at, status, error
		 FROM materials WHERE id = ?`, id)
	return scanMaterial(row)
}

func (r *SQLMaterialRepository) FindByPath(ctx context.Context, filePath string) (Material, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, file_path, file_type, created_at, updated_at, status_updated_at, status, error
		 FROM materials WHERE file_path = ? LIMIT 1`, filePath)
	return scanMaterial(row)
}

func (r *SQLMaterialRepository) UpdateStatus(ctx context.Context, id string, to MaterialStatus, errMsg *string) error {
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := ValidateTransition(current.Status, to); err != nil {
		return err
	}
	now := timeToString(r.now())
	var errVal *string
	if to == StatusError {
		errVal = errMsg
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE materials SET status = ?, updated_at = ?, status_updated_at = ?, error = ? WHERE id = ?`,
		string(to), now, now, errVal, id,
	)
	if err != nil {
		return NewStorageError("update material status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return NewStorageError("update material status", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLMaterialRepository) ListByStatus(ctx context.Context, status MaterialStatus) ([]Material, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, file_path, file_type, created_at, updated_at, status_updated_at, status, error
		 FROM materials WHERE status = ?`, string(status))
	if err != nil {
		return nil, NewStorageError("list materials by status", err)
	}
	defer rows.Close()
	return scanMaterials(rows)
}

func (r *SQLMaterialRepository) ListAll(ctx context.Context) ([]Material, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, file_path, file_type, created_at, updated_at, status_updated_at, status, error FROM materials`)
	if err != nil {
		return nil, NewStorageError("list materials", err)
	}
	defer rows.Close()
	return scanMaterials(rows)
}

func (r *SQLMaterialRepository) CountByStatus(ctx context.Context) (map[MaterialStatus]int, error) {
	counts := make(map[MaterialStatus]int, len(AllStatuses))
	for _, s := range AllStatuses {
		counts[s] = 0
	}
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM materials GROUP BY status`)
	if err != nil {
		return nil, NewStorageError("count materials by status", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, NewStorageError("count materials by status", err)
		}
		counts[MaterialStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("count materials by status", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMaterial(row rowScanner) (Material, error) {
	var m Material
	var created, updated, statusUpdated, status string
	var errVal sql.NullString
	err := row.Scan(&m.ID, &m.FilePath, &m.FileType, &created, &updated, &statusUpdated, &status, &errVal)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Material{}, ErrNotFound
		}
		return Material{}, NewStorageError("scan material", err)
	}
	m.CreatedAt = stringToTime(created)
	m.UpdatedAt = stringToTime(updated)
	m.StatusUpdatedAt = stringToTime(statusUpdated)
	m.Status = MaterialStatus(status)
	if errVal.Valid {
		v := errVal.String
		m.Error = &v
	}
	return m, nil
}

func scanMaterials(rows *sql.Rows) ([]Material, error) {
	var out []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, NewStorageError("scan materials", err)
	}
	return out, nil
}

func timeToString(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func stringToTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// isUniqueConstraintErr reports whether err looks like a SQLite unique
// constraint violation. modernc.org/sqlite surfaces these as a generic
// error whose message contains "UNIQUE constraint failed".
func isUniqueConstraintErr(err error) bool {
	return strings.Contains(strings.ToUpper(err.Error()), "UNIQUE CONSTRAINT")
}

var _ MaterialRepository = (*SQLMaterialRepository)(nil)
