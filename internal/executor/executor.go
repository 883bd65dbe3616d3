package executor

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/stomp-sql-gateway/internal/infrastructure/logging"
)

// Statements issued around every client statement.
const (
	pragmaForeignKeys = "PRAGMA foreign_keys = ON"
	stmtCommit        = "COMMIT"
	stmtRollback      = "ROLLBACK"
)

// ErrClosed is returned once Close has been called.
var ErrClosed = errors.New("executor closed")

// Conner hands out a dedicated connection from a pool. *sql.DB and
// *database.DB both satisfy it.
type Conner interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

// Executor runs client statements against the shared database file.
//
// A single mutex serialises every call, so at most one statement (with its
// commit and result materialisation) is in progress at any instant and each
// call observes all effects of calls that finished before it. Every call
// starts with foreign-key enforcement on and leaves no transaction open.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Executor struct {
	db     Conner
	logger *logging.Logger

	mu     sync.Mutex
	closed bool
}

// New creates an Executor over db.
func New(db Conner, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Executor{
		db:     db,
		logger: logger.Component("executor"),
	}
}

// Execute classifies command and dispatches it to ExecuteQuery or
// ExecuteWrite. It never returns an error: failures are reported as a
// Failure outcome carrying the engine's message.
func (e *Executor) Execute(ctx context.Context, command string) Outcome {
	if Classify(command) == KindRead {
		return e.ExecuteQuery(ctx, command)
	}
	return e.ExecuteWrite(ctx, command)
}

// ExecuteWrite runs a non-query statement and commits it.
//
// On success the outcome payload is "done". If the engine rejects the
// statement nothing it did is kept. A command holding more than one
// statement is rejected before anything runs.
func (e *Executor) ExecuteWrite(ctx context.Context, statement string) Outcome {
	err := e.withSession(ctx, func(conn *sql.Conn) error {
		if err := checkSingleStatement(statement); err != nil {
			return err
		}
		_, err := conn.ExecContext(ctx, statement)
		return err
	}, stmtCommit)
	if err != nil {
		return Failure(engineMessage(err))
	}
	return Success(WriteDone)
}

// ExecuteQuery runs a query and returns every result row rendered as a list
// of tuples, each value exactly as stored. Nothing the statement did is
// committed.
func (e *Executor) ExecuteQuery(ctx context.Context, statement string) Outcome {
	var rendered string
	err := e.withSession(ctx, func(conn *sql.Conn) error {
		if err := checkSingleStatement(statement); err != nil {
			return err
		}
		rows, err := fetchAll(ctx, conn, statement)
		if err != nil {
			return err
		}
		rendered = RenderRows(rows)
		return nil
	}, stmtRollback)
	if err != nil {
		return Failure(engineMessage(err))
	}
	return Success(rendered)
}

// HealthCheck runs a trivial query under the executor lock.
func (e *Executor) HealthCheck(ctx context.Context) error {
	err := e.withSession(ctx, func(conn *sql.Conn) error {
		var one int
		return conn.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	}, stmtRollback)
	if err != nil {
		return fmt.Errorf("executor health check: %w", err)
	}
	return nil
}

// Close stops the executor from accepting further statements. It waits for
// the statement in progress, if any. The underlying database is not closed.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// withSession holds the lock for one logical session: obtain the connection,
// enable foreign keys, run fn and then end any transaction still open with
// finish (COMMIT or ROLLBACK). A failed fn always ends in ROLLBACK.
func (e *Executor) withSession(ctx context.Context, fn func(*sql.Conn) error, finish string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	start := time.Now()
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close() //nolint:errcheck // Returns the pinned connection to the pool

	if _, err := conn.ExecContext(ctx, pragmaForeignKeys); err != nil {
		return err
	}

	runErr := fn(conn)
	if runErr != nil {
		finish = stmtRollback
	}

	if endErr := e.endTransaction(ctx, conn, finish); endErr != nil {
		if runErr != nil {
			return runErr
		}
		return endErr
	}

	e.logger.Debug("session finished",
		"finish", finish,
		"failed", runErr != nil,
		"duration", time.Since(start),
	)
	return runErr
}

// endTransaction issues finish when the connection is inside a transaction,
// whether the client opened it explicitly or the statement left it behind.
// A failed COMMIT is followed by a ROLLBACK so the next session starts
// clean.
func (e *Executor) endTransaction(ctx context.Context, conn *sql.Conn, finish string) error {
	open, err := inTransaction(conn)
	if err != nil || !open {
		return err
	}

	// Use a fresh context so a cancelled caller cannot leave the shared
	// connection mid-transaction.
	endCtx := context.WithoutCancel(ctx)
	if _, err := conn.ExecContext(endCtx, finish); err != nil {
		if finish == stmtCommit {
			if _, rbErr := conn.ExecContext(endCtx, stmtRollback); rbErr != nil {
				e.logger.Error("rollback after failed commit", "error", rbErr)
			}
		}
		return err
	}
	return nil
}

// inTransaction reports whether the driver connection is outside autocommit
// mode.
func inTransaction(conn *sql.Conn) (bool, error) {
	var open bool
	err := conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		open = !sc.AutoCommit()
		return nil
	})
	return open, err
}

// convertedDeclTypes are the declared column types for which the driver
// would replace the stored value with a time.Time or bool.
var convertedDeclTypes = map[string]bool{
	"date":      true,
	"datetime":  true,
	"timestamp": true,
	"boolean":   true,
}

// fetchAll runs a query on the driver connection and materialises every
// row. Values come back as SQLite stored them: the driver's declared-type
// conversions are switched off by blanking those entries of the cached
// decltype slice, which Next consults for every row.
func fetchAll(ctx context.Context, conn *sql.Conn, query string) ([][]any, error) {
	var result [][]any
	err := conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		rows, err := sc.QueryContext(ctx, query, nil)
		if err != nil {
			return err
		}
		defer rows.Close() //nolint:errcheck // Read-only cursor

		if sr, ok := rows.(*sqlite3.SQLiteRows); ok {
			decl := sr.DeclTypes()
			for i, t := range decl {
				if convertedDeclTypes[t] {
					decl[i] = ""
				}
			}
		}

		dest := make([]driver.Value, len(rows.Columns()))
		result = [][]any{}
		for {
			if err := rows.Next(dest); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			row := make([]any, len(dest))
			for i, v := range dest {
				row[i] = v
			}
			result = append(result, row)
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// engineMessage extracts the database engine's own error text, e.g.
// "no such table: users" or "FOREIGN KEY constraint failed".
func engineMessage(err error) string {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Error()
	}
	return err.Error()
}
