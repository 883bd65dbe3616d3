// Package admin provides the loopback HTTP side channel of the gateway.
//
// Endpoints:
//
//	GET /api/v1/health   executor round trip; 200 or 503
//	GET /api/v1/metrics  runtime, gateway, pool and integration counters
//	GET /api/v1/events   WebSocket feed of "statement.executed" events
//
// The admin server never accepts SQL. It is disabled unless admin.enabled
// is set in the configuration.
package admin
