// Package events carries statement notifications from connection handlers
// to optional observers such as the MQTT publisher, the InfluxDB writer and
// the admin WebSocket feed.
//
// The bus is lossy by construction: a handler publishes and moves on, and
// if observers fall behind, events are dropped and counted.
package events
