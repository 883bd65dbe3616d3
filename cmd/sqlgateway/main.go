// Command sqlgateway serves NUL-terminated SQL commands over TCP against a
// single shared SQLite file.
//
// Usage:
//
//	sqlgateway [port]
//
// The port defaults to 7778 and the listener is always bound to 127.0.0.1.
// Optional settings are read from configs/sqlgateway.yaml when present.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/stomp-sql-gateway/internal/admin"
	"github.com/nerrad567/stomp-sql-gateway/internal/events"
	"github.com/nerrad567/stomp-sql-gateway/internal/executor"
	"github.com/nerrad567/stomp-sql-gateway/internal/gateway"
	"github.com/nerrad567/stomp-sql-gateway/internal/infrastructure/config"
	"github.com/nerrad567/stomp-sql-gateway/internal/infrastructure/database"
	"github.com/nerrad567/stomp-sql-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/stomp-sql-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/stomp-sql-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/stomp-sql-gateway/migrations"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/sqlgateway.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], defaultConfigPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run bootstraps every component and blocks until ctx is cancelled or a
// component fails. Startup resource errors are returned before the gateway
// accepts any connection.
func run(ctx context.Context, args []string, configPath string) error {
	log := logging.Default()
	log.Info("starting sqlgateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, loaded, err := config.LoadOptional(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	if loaded {
		log.Info("configuration loaded", "path", configPath)
	} else {
		log.Info("no configuration file, using defaults", "path", configPath)
	}

	port, portErr := parsePort(args, cfg.Gateway.Port)
	if portErr != nil {
		log.Warn("invalid port argument, using configured port", "error", portErr, "port", port)
	}
	cfg.Gateway.Port = port
	if cfg.Admin.Enabled && cfg.Admin.Port == port {
		return fmt.Errorf("admin port %d clashes with gateway port", port)
	}

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	exec := executor.New(db, log)
	defer exec.Close() //nolint:errcheck // Always nil

	bus := events.NewBus(cfg.Gateway.EventBuffer, log)

	mqttClient, err := connectMQTT(cfg.MQTT, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		bus.Subscribe(mqtt.NewEventSink(mqttClient))
	}

	influxClient, err := connectInfluxDB(ctx, cfg.InfluxDB, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		bus.Subscribe(influxdb.NewEventSink(influxClient))
	}

	srv := gateway.New(gateway.Config{ReadChunkSize: cfg.Gateway.ReadChunkSize}, exec, bus, log)

	var adminSrv *admin.Server
	if cfg.Admin.Enabled {
		deps := admin.Deps{
			Config:  cfg.Admin,
			WS:      cfg.WebSocket,
			Logger:  log,
			Health:  exec,
			Gateway: srv,
			DB:      db,
			Version: version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		if influxClient != nil {
			deps.InfluxDB = influxClient
		}
		adminSrv, err = admin.New(deps)
		if err != nil {
			return fmt.Errorf("creating admin server: %w", err)
		}
		bus.Subscribe(adminSrv.Hub())
	}

	// Bind before starting the group so a busy port fails startup.
	if err := srv.Start(cfg.GatewayAddr()); err != nil {
		return fmt.Errorf("starting gateway: %w", err)
	}
	if adminSrv != nil {
		if err := adminSrv.Start(ctx); err != nil {
			shutdownGateway(srv, log)
			return fmt.Errorf("starting admin server: %w", err)
		}
	}
	log.Info("sqlgateway ready",
		"addr", srv.Addr(),
		"database", cfg.Database.Path,
		"admin", cfg.Admin.Enabled,
		"mqtt", mqttClient != nil,
		"influxdb", influxClient != nil,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, cleaning up")
		shutdownGateway(srv, log)
		return nil
	})

	// The bus outlives the gateway only by its drain.
	busCtx, stopBus := context.WithCancel(context.WithoutCancel(ctx))
	busDone := make(chan struct{})
	go func() {
		defer close(busDone)
		bus.Run(busCtx) //nolint:errcheck // Always nil
	}()

	if adminSrv != nil {
		g.Go(func() error {
			<-gctx.Done()
			return adminSrv.Close()
		})
	}

	if influxClient != nil && cfg.InfluxDB.StatsInterval > 0 {
		interval := time.Duration(cfg.InfluxDB.StatsInterval) * time.Second
		g.Go(func() error {
			reportStats(gctx, interval, srv, influxClient)
			return nil
		})
	}

	err = g.Wait()
	stopBus()
	<-busDone

	log.Info("sqlgateway stopped")
	return err
}

// parsePort returns the port named by the first argument, or fallback when
// there is none. An unusable argument yields fallback and an error.
func parsePort(args []string, fallback int) (int, error) {
	if len(args) == 0 {
		return fallback, nil
	}
	raw := strings.TrimSpace(args[0])
	port, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, fmt.Errorf("invalid port %q", raw)
	}
	if !config.ValidPort(port) {
		return fallback, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

func connectMQTT(cfg config.MQTTConfig, log *logging.Logger) (*mqtt.Client, error) {
	if !cfg.Enabled {
		log.Info("MQTT disabled")
		return nil, nil
	}
	client, err := mqtt.Connect(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)
	return client, nil
}

func connectInfluxDB(ctx context.Context, cfg config.InfluxDBConfig, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(ctx, cfg, log)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	log.Info("InfluxDB connected", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)
	return client, nil
}

func shutdownGateway(srv *gateway.Server, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), gateway.DefaultShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("gateway shutdown incomplete", "error", err)
	}
}

// statsSource is satisfied by *gateway.Server.
type statsSource interface {
	Stats() gateway.StatsSnapshot
}

// pointWriter is satisfied by *influxdb.Client.
type pointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any)
}

// reportStats writes the gateway counters every interval until ctx ends.
func reportStats(ctx context.Context, interval time.Duration, src statsSource, w pointWriter) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeStats(src, w)
		}
	}
}

func writeStats(src statsSource, w pointWriter) {
	snap := src.Stats()
	w.WritePoint(influxdb.MeasurementGateway,
		map[string]string{"host": config.LoopbackHost},
		map[string]any{
			"connections_accepted": int64(snap.ConnectionsAccepted),
			"connections_active":   snap.ConnectionsActive,
			"connections_closed":   int64(snap.ConnectionsClosed),
			"reads":                int64(snap.Reads),
			"writes":               int64(snap.Writes),
			"failures":             int64(snap.Failures),
			"events_dropped":       int64(snap.EventsDropped),
		},
	)
}
