// Package executor classifies client commands and runs them against the
// shared SQLite file one at a time.
//
// Commands whose trimmed text starts with SELECT (any case) are queries: all
// rows are fetched and rendered as a Python-style list of tuples, and nothing
// is committed. Everything else is a write: the statement runs and is
// committed, and the payload is "done". Engine errors come back as a Failure
// outcome with the engine's message untouched.
//
//	exec := executor.New(db, logger)
//	out := exec.Execute(ctx, "SELECT username FROM users")
//	fmt.Println(out.Response()) // SUCCESS [('alice',)]
package executor
