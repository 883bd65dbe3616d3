package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/stomp-sql-gateway/internal/infrastructure/config"
)

const (
	pingTimeout = 10 * time.Second

	defaultBatchSize            = 100
	defaultFlushIntervalSeconds = 10
)

// Client queues statement and gateway-counter points for InfluxDB 2.x.
//
// Points go through the library's batching WriteAPI: writes return at once,
// a batch is sent when it fills or the flush interval passes, and Close
// sends whatever is left. Rejected batches are reported to the Logger as
// they happen; they never reach the client whose command produced them.
//
// All methods are safe for concurrent use.
type Client struct {
	influx influxdb2.Client
	points api.WriteAPI
	log    Logger

	// mu guards open. Writes hold it shared so Close cannot tear the
	// WriteAPI down under them.
	mu   sync.RWMutex
	open bool
}

// Logger is the subset of logging.Logger used for write failures.
type Logger interface {
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Error(string, ...any) {}

// Connect pings the server named by cfg and prepares the write path for
// cfg.Org and cfg.Bucket. It returns ErrDisabled when cfg.Enabled is false
// and ErrConnectionFailed when the server is unreachable or unhealthy. A nil
// log discards write failures.
func Connect(ctx context.Context, cfg config.InfluxDBConfig, log Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if log == nil {
		log = nopLogger{}
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, batchOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	healthy, err := influx.Ping(pingCtx)
	switch {
	case err != nil:
		influx.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	case !healthy:
		influx.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		influx: influx,
		points: influx.WriteAPI(cfg.Org, cfg.Bucket),
		log:    log,
		open:   true,
	}

	// Errors must be claimed before the first write; the channel closes
	// when the WriteAPI does.
	go c.reportFailures(c.points.Errors())
	return c, nil
}

// batchOptions applies the configured batch size and flush interval,
// falling back to defaults for non-positive values.
func batchOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	size := cfg.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = defaultFlushIntervalSeconds
	}
	// #nosec G115 -- both values are positive here
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(size)).
		SetFlushInterval(uint(interval) * uint(time.Second/time.Millisecond))
}

func (c *Client) reportFailures(failures <-chan error) {
	for err := range failures {
		c.log.Error("statement metrics write failed", "error", fmt.Errorf("%w: %w", ErrWriteFailed, err))
	}
}

// Close sends any queued points and releases the client. Later calls are
// no-ops.
func (c *Client) Close() error {
	if c == nil || c.influx == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		c.open = false
		c.points.Flush()
		c.influx.Close()
	}
	return nil
}

// IsConnected reports whether points are still accepted.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// enqueue hands p to the WriteAPI unless Close has run.
func (c *Client) enqueue(p *write.Point) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.open {
		c.points.WritePoint(p)
	}
}
