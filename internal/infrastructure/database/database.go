package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0o750
	filePermissions = 0o600

	// pingTimeout bounds the startup check that the file can be opened.
	pingTimeout = 5 * time.Second
)

// DB is the one physical SQLite connection every client session shares.
//
// The pool is pinned to a single connection that never expires, so each
// *sql.Conn handed to the executor wraps the same handle and sees the same
// session state. Serialising statements on it is the executor's job.
// Stats, used by the admin metrics endpoint, comes from the embedded pool.
type DB struct {
	*sql.DB
}

// Config selects the gateway's database file and its connection settings.
type Config struct {
	// Path is the database file. Missing parent directories are created.
	Path string

	// WALMode switches the journal to write-ahead logging.
	WALMode bool

	// BusyTimeout, in seconds, only matters when another process holds a
	// lock on the same file.
	BusyTimeout int
}

// dsn builds the go-sqlite3 connection string for cfg.
func (cfg Config) dsn() string {
	q := url.Values{}
	q.Set("_busy_timeout", fmt.Sprint(cfg.BusyTimeout*int(time.Second/time.Millisecond)))
	q.Set("_foreign_keys", "on")
	if cfg.WALMode {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	return "file:" + cfg.Path + "?" + q.Encode()
}

// Open opens (creating if needed) the gateway's database file and pins the
// pool to one connection. It fails when the file cannot be created or
// opened, so the gateway never starts listening without its store.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	pool, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	pool.SetMaxOpenConns(1)
	pool.SetMaxIdleConns(1)
	pool.SetConnMaxLifetime(0)
	pool.SetConnMaxIdleTime(0)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// The ping created the file.
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // Not fatal on filesystems without modes

	return &DB{DB: pool}, nil
}

// Close releases the shared connection. It is a no-op on a zero DB.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
