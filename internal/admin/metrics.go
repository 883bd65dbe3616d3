package admin

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/stomp-sql-gateway/internal/gateway"
)

// SystemMetrics is the body of GET /api/v1/metrics.
type SystemMetrics struct {
	Timestamp     string                `json:"timestamp"`
	Version       string                `json:"version"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Runtime       RuntimeMetrics        `json:"runtime"`
	Gateway       gateway.StatsSnapshot `json:"gateway"`
	Database      DatabaseMetrics       `json:"database"`
	WebSocket     WSMetrics             `json:"websocket"`
	Integrations  IntegrationMetrics    `json:"integrations"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// DatabaseMetrics contains pool statistics of the pinned connection.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
	WaitDurationMS  int64 `json:"wait_duration_ms"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// IntegrationMetrics reports optional outbound integrations. A nil value
// means the integration is disabled.
type IntegrationMetrics struct {
	MQTTConnected     *bool `json:"mqtt_connected,omitempty"`
	InfluxDBConnected *bool `json:"influxdb_connected,omitempty"`
}

const bytesPerMB = 1024 * 1024

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	}

	if s.gateway != nil {
		metrics.Gateway = s.gateway.Stats()
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
			WaitDurationMS:  dbStats.WaitDuration.Milliseconds(),
		}
	}

	if s.mqtt != nil {
		connected := s.mqtt.IsConnected()
		metrics.Integrations.MQTTConnected = &connected
	}
	if s.influx != nil {
		connected := s.influx.IsConnected()
		metrics.Integrations.InfluxDBConnected = &connected
	}

	writeJSON(w, http.StatusOK, metrics)
}
