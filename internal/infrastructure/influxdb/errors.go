package influxdb

import "errors"

// Errors reported by Connect and the write path. Use errors.Is to check
// for them.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by the event sink after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrWriteFailed wraps a rejected batch in the logged failure.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
