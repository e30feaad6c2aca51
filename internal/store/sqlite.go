package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/yangwenmai/casefill/internal/model"
	_ "modernc.org/sqlite"
)

// Verify at compile time that SQLiteBackend implements Backend.
var _ Backend = (*SQLiteBackend)(nil)

// OpenSQLite opens (or creates) a SQLite database at the given path.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SQLiteBackend stores objects as rows in a SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend creates a backend on db and initialises the schema.
func NewSQLiteBackend(db *sql.DB) (*SQLiteBackend, error) {
	b := &SQLiteBackend{db: db}
	if err := b.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

// sortableTime has fixed width so uploaded_at orders correctly as text.
const sortableTime = "2006-01-02T15:04:05.000000000Z07:00"

// currentSchemaVersion is bumped whenever the schema changes.
// Add a new migration function in the migrations slice below.
const currentSchemaVersion = 2

func (b *SQLiteBackend) migrate() error {
	if _, err := b.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := b.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := b.db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema version: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	// Index 0 = migration from v0 to v1, etc.
	migrations := []func() error{
		b.migrateV1, // v0 → v1: objects table
		b.migrateV2, // v1 → v2: namespace/category listing index
	}

	for i := version; i < len(migrations); i++ {
		if err := migrations[i](); err != nil {
			return fmt.Errorf("migration v%d→v%d: %w", i, i+1, err)
		}
		if _, err := b.db.Exec(`UPDATE schema_version SET version = ?`, i+1); err != nil {
			return fmt.Errorf("update schema version to %d: %w", i+1, err)
		}
	}
	return nil
}

func (b *SQLiteBackend) migrateV1() error {
	_, err := b.db.Exec(`
	CREATE TABLE IF NOT EXISTS objects (
		key          TEXT PRIMARY KEY,
		case_id      TEXT NOT NULL,
		namespace    TEXT NOT NULL,
		category     TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size         INTEGER NOT NULL,
		body         BLOB NOT NULL,
		uploaded_at  TEXT NOT NULL
	)`)
	return err
}

func (b *SQLiteBackend) migrateV2() error {
	_, err := b.db.Exec(`CREATE INDEX IF NOT EXISTS idx_objects_ns ON objects(namespace, category, uploaded_at DESC)`)
	return err
}

// Put inserts a new object. Existing keys are left untouched and reported as ErrExists.
func (b *SQLiteBackend) Put(ctx context.Context, key string, body []byte, meta ObjectMeta) error {
	if body == nil {
		body = []byte{}
	}
	res, err := b.db.ExecContext(ctx, `
		INSERT INTO objects (key, case_id, namespace, category, content_type, size, body, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING`,
		key, meta.CaseID, meta.Namespace, string(meta.Category), meta.ContentType,
		int64(len(body)), body, meta.UploadedAt.UTC().Format(sortableTime),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrExists
	}
	return nil
}

// Get loads one object with its body.
func (b *SQLiteBackend) Get(ctx context.Context, key string) (*Object, error) {
	var (
		o          Object
		category   string
		uploadedAt string
	)
	err := b.db.QueryRowContext(ctx, `
		SELECT key, case_id, namespace, category, content_type, size, body, uploaded_at
		FROM objects WHERE key = ?`, key,
	).Scan(&o.Key, &o.Meta.CaseID, &o.Meta.Namespace, &category, &o.Meta.ContentType, &o.Meta.Size, &o.Body, &uploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Meta.Category = model.Category(category)
	o.Meta.UploadedAt, _ = time.Parse(sortableTime, uploadedAt)
	return &o, nil
}

// Exists reports whether any key starts with prefix.
func (b *SQLiteBackend) Exists(ctx context.Context, prefix string) (bool, error) {
	var one int
	err := b.db.QueryRowContext(ctx,
		`SELECT 1 FROM objects WHERE substr(key, 1, length(?)) = ? LIMIT 1`, prefix, prefix,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns object metadata under prefix, newest first, ties broken by key.
func (b *SQLiteBackend) List(ctx context.Context, prefix string) ([]Object, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT key, case_id, namespace, category, content_type, size, uploaded_at
		FROM objects
		WHERE substr(key, 1, length(?)) = ?
		ORDER BY uploaded_at DESC, key ASC`, prefix, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Object{}
	for rows.Next() {
		var (
			o          Object
			category   string
			uploadedAt string
		)
		if err := rows.Scan(&o.Key, &o.Meta.CaseID, &o.Meta.Namespace, &category, &o.Meta.ContentType, &o.Meta.Size, &uploadedAt); err != nil {
			return nil, err
		}
		o.Meta.Category = model.Category(category)
		o.Meta.UploadedAt, _ = time.Parse(sortableTime, uploadedAt)
		out = append(out, o)
	}
	return out, rows.Err()
}

// DeletePrefix removes every object under prefix.
func (b *SQLiteBackend) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM objects WHERE substr(key, 1, length(?)) = ?`, prefix, prefix)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
