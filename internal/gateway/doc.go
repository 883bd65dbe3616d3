// Package gateway implements the TCP listener and per-connection handlers.
//
// Each accepted connection gets its own goroutine that reads NUL-terminated
// commands, classifies them, runs them through the shared executor and
// writes back "SUCCESS <payload>" or "ERROR <message>" followed by NUL. The
// accept loop never waits on a handler, and a failing connection never
// affects another.
//
// Typical usage:
//
//	srv := gateway.New(gateway.Config{}, exec, bus, logger)
//	if err := srv.Start("127.0.0.1:7778"); err != nil {
//	    return err
//	}
//	defer srv.Shutdown(ctx)
package gateway
