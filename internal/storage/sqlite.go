package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		text_hash TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(model, text_hash)
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_model ON embeddings(model);
	`
	_, err := db.Exec(schema)
	return err
}

// GetVector returns the stored vector for (model, text).
func (s *SQLiteStore) GetVector(ctx context.Context, model, text string) ([]float32, bool, error) {
	var blob []byte
	var dims int
	err := s.db.QueryRowContext(ctx,
		`SELECT vector, dimensions FROM embeddings WHERE model = ? AND text_hash = ?`,
		model, hashText(text),
	).Scan(&blob, &dims)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	vec, err := decodeVector(blob)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode vector: %w", err)
	}
	if len(vec) != dims {
		return nil, false, fmt.Errorf("vector length %d does not match stored dimensions %d", len(vec), dims)
	}
	return vec, true, nil
}

// PutVector stores the vector for (model, text), replacing any previous entry.
func (s *SQLiteStore) PutVector(ctx context.Context, model, text string, vec []float32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embeddings (id, model, text_hash, dimensions, vector, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(model, text_hash) DO UPDATE SET
		   dimensions = excluded.dimensions,
		   vector = excluded.vector,
		   created_at = excluded.created_at`,
		uuid.NewString(), model, hashText(text), len(vec), encodeVector(vec), time.Now(),
	)
	return err
}

// CountVectors returns the number of stored embeddings.
func (s *SQLiteStore) CountVectors(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// hashText returns the hex SHA-256 of text. Hashing keeps arbitrary-length
// input out of the index and avoids storing raw text.
func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// encodeVector packs a float32 slice as little-endian bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector unpacks little-endian bytes into a float32 slice.
func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
