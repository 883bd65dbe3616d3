package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// openTestDB opens a fresh gateway database in a temp directory.
func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "stomp_server.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

func TestOpen_CreatesFileAndDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var", "lib", "stomp_server.db")

	db, err := Open(context.Background(), Config{Path: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("database file not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != filePermissions {
		t.Errorf("file mode = %o, want %o", perm, filePermissions)
	}
}

func TestOpen_ParentIsAFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Open(context.Background(), Config{Path: filepath.Join(blocker, "stomp_server.db")}); err == nil {
		t.Fatal("Open() expected error when parent path is a file")
	}
}

func TestConfigDSN(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    []string
		notWant []string
	}{
		{
			name:    "rollback journal",
			cfg:     Config{Path: "stomp_server.db", BusyTimeout: 2},
			want:    []string{"file:stomp_server.db?", "_busy_timeout=2000", "_foreign_keys=on"},
			notWant: []string{"_journal_mode"},
		},
		{
			name: "wal",
			cfg:  Config{Path: "/tmp/x.db", WALMode: true},
			want: []string{"file:/tmp/x.db?", "_busy_timeout=0", "_journal_mode=WAL", "_synchronous=NORMAL"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := tt.cfg.dsn()
			for _, s := range tt.want {
				if !strings.Contains(dsn, s) {
					t.Errorf("dsn %q missing %q", dsn, s)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(dsn, s) {
					t.Errorf("dsn %q should not contain %q", dsn, s)
				}
			}
		})
	}
}

// Every session's statements must land on one handle, so state that lives
// on a connection (temp tables here) is visible through the next Conn.
func TestConn_SharesOneHandle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() error = %v", err)
	}
	if _, err := first.ExecContext(ctx, "CREATE TEMP TABLE session_scratch (v TEXT)"); err != nil {
		t.Fatalf("CREATE TEMP TABLE error = %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	second, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn() error = %v", err)
	}
	defer second.Close() //nolint:errcheck // Test cleanup

	var n int
	if err := second.QueryRowContext(ctx, "SELECT COUNT(*) FROM temp.session_scratch").Scan(&n); err != nil {
		t.Fatalf("temp table not visible on the next Conn: %v", err)
	}
	if stats := db.Stats(); stats.MaxOpenConnections != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", stats.MaxOpenConnections)
	}
}

func TestOpen_ForeignKeysEnforced(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, stmt := range []string{
		"CREATE TABLE accounts (id INTEGER PRIMARY KEY)",
		"CREATE TABLE sessions (id INTEGER PRIMARY KEY, account_id INTEGER REFERENCES accounts(id))",
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO sessions (account_id) VALUES (42)"); err == nil {
		t.Error("expected foreign key violation inserting a session for a missing account")
	}
}

func TestClose(t *testing.T) {
	db, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "stomp_server.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := (&DB{}).Close(); err != nil {
		t.Errorf("Close() on zero DB error = %v", err)
	}
}
