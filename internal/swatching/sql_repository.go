package swatching

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"
)

const swatchesSchema = `
CREATE TABLE IF NOT EXISTS swatches (
	id TEXT PRIMARY KEY,
	cut_id TEXT NOT NULL,
	material_id TEXT NOT NULL,
	embedding BLOB NOT NULL,
	dimensions INTEGER NOT NULL,
	model_name TEXT NOT NULL,
	model_version TEXT NOT NULL,
	created_at TEXT NOT NULL,
	similarity_threshold REAL,
	metadata TEXT,
	FOREIGN KEY (cut_id) REFERENCES cuts (id)
)`

// SQLSwatchRepository is a database/sql-backed SwatchRepository. Embedding
// vectors are stored as little-endian float32 blobs — a deliberate
// deviation from the original implementation's native-endian encoding,
// chosen so the on-disk format is portable across architectures.
//
// SearchSimilar has no SQL-native implementation here (no vector
// extension is wired in); it returns ErrSearchNotImplemented. Callers
// needing similarity search should use InMemorySwatchRepository or load
// swatches via GetSwatchesByMaterialID and search in-process.
type SQLSwatchRepository struct {
	db *sql.DB
}

// NewSQLSwatchRepository creates the swatches table if absent.
func NewSQLSwatchRepository(ctx context.Context, db *sql.DB) (*SQLSwatchRepository, error) {
	if _, err := db.ExecContext(ctx, swatchesSchema); err != nil {
		return nil, NewStorageError("create swatches table", err)
	}
	return &SQLSwatchRepository{db: db}, nil
}

func (r *SQLSwatchRepository) SaveSwatch(ctx context.Context, s Swatch) error {
	return r.insert(ctx, r.db, s)
}

func (r *SQLSwatchRepository) SaveSwatchesBatch(ctx context.Context, swatches []Swatch) error {
	if len(swatches) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return NewStorageError("begin save swatches tx", err)
	}
	for _, s := range swatches {
		if err := r.insert(ctx, tx, s); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return NewStorageError("commit save swatches tx", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLSwatchRepository) insert(ctx context.Context, e execer, s Swatch) error {
	blob := encodeEmbedding(s.Embedding)
	var metadata []byte
	if s.Metadata != nil {
		var err error
		metadata, err = json.Marshal(s.Metadata)
		if err != nil {
			return NewStorageError("marshal metadata", err)
		}
	}
	_, err := e.ExecContext(ctx,
		`INSERT INTO swatches (id, cut_id, material_id, embedding, dimensions, model_name, model_version, created_at, similarity_threshold, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.CutID, s.MaterialID, blob, s.Dimensions, s.ModelName, s.ModelVersion,
		s.CreatedAt.UTC().Format(time.RFC3339Nano), s.SimilarityThreshold, metadata,
	)
	if err != nil {
		if strings.Contains(strings.ToUpper(err.Error()), "UNIQUE CONSTRAINT") {
			return ErrSwatchAlreadyExists
		}
		return NewStorageError("save swatch", err)
	}
	return nil
}

func (r *SQLSwatchRepository) GetSwatchByID(ctx context.Context, id string) (Swatch, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, cut_id, material_id, embedding, dimensions, model_name, model_version, created_at, similarity_threshold, metadata
		 FROM swatches WHERE id = ?`, id)
	return scanSwatch(row)
}

func (r *SQLSwatchRepository) GetSwatchesByCutID(ctx context.Context, cutID string) ([]Swatch, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, cut_id, material_id, embedding, dimensions, model_name, model_version, created_at, similarity_threshold, metadata
		 FROM swatches WHERE cut_id = ?`, cutID)
	if err != nil {
		return nil, NewStorageError("list swatches by cut", err)
	}
	defer rows.Close()
	return scanSwatches(rows)
}

func (r *SQLSwatchRepository) GetSwatchesByMaterialID(ctx context.Context, materialID string) ([]Swatch, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, cut_id, material_id, embedding, dimensions, model_name, model_version, created_at, similarity_threshold, metadata
		 FROM swatches WHERE material_id = ?`, materialID)
	if err != nil {
		return nil, NewStorageError("list swatches by material", err)
	}
	defer rows.Close()
	return scanSwatches(rows)
}

func (r *SQLSwatchRepository) DeleteSwatch(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM swatches WHERE id = ?`, id)
	if err != nil {
		return NewStorageError("delete swatch", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return NewStorageError("delete swatch", err)
	}
	if n == 0 {
		return ErrSwatchNotFound
	}
	return nil
}

func (r *SQLSwatchRepository) DeleteSwatchesByCutID(ctx context.Context, cutID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM swatches WHERE cut_id = ?`, cutID)
	if err != nil {
		return NewStorageError("delete swatches by cut", err)
	}
	return nil
}

func (r *SQLSwatchRepository) DeleteSwatchesByMaterialID(ctx context.Context, materialID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM swatches WHERE material_id = ?`, materialID)
	if err != nil {
		return NewStorageError("delete swatches by material", err)
	}
	return nil
}

func (r *SQLSwatchRepository) SearchSimilar(_ context.Context, _ []float32, _ int) ([]Swatch, error) {
	return nil, ErrSearchNotImplemented
}

func encodeEmbedding(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(math.Float32bits(v)))
	}
	return buf
}

func decodeEmbedding(blob []byte) []float32 {
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSwatch(row rowScanner) (Swatch, error) {
	var s Swatch
	var blob []byte
	var created string
	var threshold sql.NullFloat64
	var metadata sql.NullString
	err := row.Scan(&s.ID, &s.CutID, &s.MaterialID, &blob, &s.Dimensions, &s.ModelName, &s.ModelVersion, &created, &threshold, &metadata)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Swatch{}, ErrSwatchNotFound
		}
		return Swatch{}, NewStorageError("scan swatch", err)
	}
	s.Embedding = decodeEmbedding(blob)
	s.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if threshold.Valid {
		v := float32(threshold.Float64)
		s.SimilarityThreshold = &v
	}
	if metadata.Valid && metadata.String != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(metadata.String), &m); err == nil {
			s.Metadata = m
		}
	}
	return s, nil
}

func scanSwatches(rows *sql.Rows) ([]Swatch, error) {
	var out []Swatch
	for rows.Next() {
		s, err := scanSwatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

var _ SwatchRepository = (*SQLSwatchRepository)(nil)
