// Package database provides the SQLite handle behind the SQL gateway.
//
// This package manages:
//   - The single physical connection shared by every client session
//   - Foreign key enforcement and busy timeout via the connection string
//   - Schema migrations read from an fs.FS (additive and idempotent)
//   - Pool statistics for the admin metrics endpoint
//
// The handle is opened once at startup, after which migrations create the
// gateway schema. It is not safe to run client statements on it directly:
// all statement traffic goes through the executor, which serialises access.
//
// Security Considerations:
//   - Database file permissions are set to 0600 (owner read/write only)
//   - Client SQL is executed verbatim; the gateway is for trusted callers
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "stomp_server.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
package database
