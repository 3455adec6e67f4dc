package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/repota/pkg/database"
)

const kvSchema = `CREATE TABLE IF NOT EXISTS kv_store (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at INTEGER NOT NULL
)`

// SQLiteDriver keeps every key as one row of the kv_store table.
type SQLiteDriver struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLiteDriver ensures the schema on an open handle.
func NewSQLiteDriver(ctx context.Context, db *sqlx.DB) (*SQLiteDriver, error) {
	if _, err := db.ExecContext(ctx, kvSchema); err != nil {
		return nil, fmt.Errorf("ensure kv schema: %w", err)
	}
	return &SQLiteDriver{db: db, now: time.Now}, nil
}

// SQLiteOpener returns an Opener for the database file at path.
func SQLiteOpener(path string) Opener {
	return func(ctx context.Context) (Driver, error) {
		db, err := database.OpenSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		driver, err := NewSQLiteDriver(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return driver, nil
	}
}

// Read returns the stored document for key.
func (d *SQLiteDriver) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := d.db.GetContext(ctx, &value, `SELECT value FROM kv_store WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", key, err)
	}
	return []byte(value), true, nil
}

// Write upserts the document for key.
func (d *SQLiteDriver) Write(ctx context.Context, key string, value []byte) error {
	const query = `INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := d.db.ExecContext(ctx, query, key, string(value), d.now().UnixMilli()); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Delete removes key if present.
func (d *SQLiteDriver) Delete(ctx context.Context, key string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Clear removes every key.
func (d *SQLiteDriver) Clear(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM kv_store`); err != nil {
		return fmt.Errorf("clear kv store: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (d *SQLiteDriver) Close() error {
	return d.db.Close()
}
