package gateway

import "errors"

// Sentinel errors returned by Server.
var (
	// ErrServerClosed is returned by Start after Shutdown has been called.
	ErrServerClosed = errors.New("gateway: server closed")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("gateway: server already started")
)
