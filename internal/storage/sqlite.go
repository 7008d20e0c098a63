package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/tanya/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
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

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		locator TEXT NOT NULL,
		title TEXT,
		content_hash TEXT NOT NULL,
		chars INTEGER NOT NULL,
		first_position INTEGER NOT NULL,
		chunk_count INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sources_content_hash ON sources(content_hash);
	CREATE INDEX IF NOT EXISTS idx_sources_created_at ON sources(created_at);

	CREATE TABLE IF NOT EXISTS source_chunks (
		position INTEGER PRIMARY KEY,
		source_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		FOREIGN KEY (source_id) REFERENCES sources(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_source_chunks_source ON source_chunks(source_id, chunk_index);
	`
	_, err := db.Exec(schema)
	return err
}

const sourceColumns = `id, kind, locator, title, content_hash, chars, first_position, chunk_count, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*models.Source, error) {
	var src models.Source
	var kind string
	if err := row.Scan(&src.ID, &kind, &src.Locator, &src.Title, &src.ContentHash,
		&src.Chars, &src.FirstPosition, &src.ChunkCount, &src.CreatedAt); err != nil {
		return nil, err
	}
	src.Kind = models.SourceKind(kind)
	return &src, nil
}

// RecordIngestion inserts the source and its chunks in one transaction. CreatedAt is set when zero.
func (s *SQLiteStorage) RecordIngestion(ctx context.Context, src *models.Source, chunks []*models.StoredChunk) error {
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sources (`+sourceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, string(src.Kind), src.Locator, src.Title, src.ContentHash,
		src.Chars, src.FirstPosition, src.ChunkCount, src.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO source_chunks (position, source_id, chunk_index, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, ch := range chunks {
		if _, err := stmt.ExecContext(ctx, ch.Position, src.ID, ch.ChunkIndex, ch.Content); err != nil {
			return fmt.Errorf("insert chunk at position %d: %w", ch.Position, err)
		}
	}
	return tx.Commit()
}

// GetSource returns a source by ID.
func (s *SQLiteStorage) GetSource(ctx context.Context, id string) (*models.Source, error) {
	src, err := scanSource(s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", id, ErrNotFound)
	}
	return src, err
}

// FindSourceByHash returns the earliest source with the given content hash.
func (s *SQLiteStorage) FindSourceByHash(ctx context.Context, hash string) (*models.Source, error) {
	src, err := scanSource(s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE content_hash = ? ORDER BY first_position LIMIT 1`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source with hash %s: %w", hash, ErrNotFound)
	}
	return src, err
}

// ListSources returns sources newest first.
func (s *SQLiteStorage) ListSources(ctx context.Context, offset, limit int) ([]*models.Source, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM sources ORDER BY created_at DESC, first_position DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*models.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// GetChunksBySourceID returns a source's chunks in chunk order.
func (s *SQLiteStorage) GetChunksBySourceID(ctx context.Context, sourceID string) ([]*models.StoredChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, position, chunk_index, content FROM source_chunks WHERE source_id = ? ORDER BY chunk_index`,
		sourceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.StoredChunk
	for rows.Next() {
		var ch models.StoredChunk
		if err := rows.Scan(&ch.SourceID, &ch.Position, &ch.ChunkIndex, &ch.Content); err != nil {
			return nil, err
		}
		chunks = append(chunks, &ch)
	}
	return chunks, rows.Err()
}

// PruneFrom deletes every source whose chunks reach position size or beyond, with its chunks.
func (s *SQLiteStorage) PruneFrom(ctx context.Context, size int) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM source_chunks WHERE source_id IN (SELECT id FROM sources WHERE first_position + chunk_count > ?)`, size)
	if err != nil {
		return 0, fmt.Errorf("delete chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE first_position + chunk_count > ?`, size)
	if err != nil {
		return 0, fmt.Errorf("delete sources: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// CountSources returns the number of recorded sources.
func (s *SQLiteStorage) CountSources(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&n)
	return n, err
}

// CountChunks returns the number of recorded chunks.
func (s *SQLiteStorage) CountChunks(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM source_chunks`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
