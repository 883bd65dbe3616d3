package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/stomp-sql-gateway/internal/gateway"
	"github.com/nerrad567/stomp-sql-gateway/internal/infrastructure/influxdb"
)

func TestParsePort(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    int
		wantErr bool
	}{
		{"no argument", nil, 7778, false},
		{"valid", []string{"9000"}, 9000, false},
		{"surrounding whitespace", []string{" 9001 "}, 9001, false},
		{"not a number", []string{"abc"}, 7778, true},
		{"zero", []string{"0"}, 7778, true},
		{"too large", []string{"70000"}, 7778, true},
		{"extra arguments ignored", []string{"9002", "extra"}, 9002, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePort(tt.args, 7778)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type fixedStats gateway.StatsSnapshot

func (f fixedStats) Stats() gateway.StatsSnapshot { return gateway.StatsSnapshot(f) }

type recordedPoint struct {
	measurement string
	tags        map[string]string
	fields      map[string]any
}

type pointRecorder struct {
	points chan recordedPoint
}

func (r *pointRecorder) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	r.points <- recordedPoint{measurement, tags, fields}
}

func TestWriteStats(t *testing.T) {
	rec := &pointRecorder{points: make(chan recordedPoint, 1)}
	writeStats(fixedStats{ConnectionsAccepted: 5, ConnectionsActive: 2, Reads: 3, Writes: 4, Failures: 1, EventsDropped: 6}, rec)

	p := <-rec.points
	assert.Equal(t, influxdb.MeasurementGateway, p.measurement)
	assert.Equal(t, "127.0.0.1", p.tags["host"])
	assert.Equal(t, int64(5), p.fields["connections_accepted"])
	assert.Equal(t, int64(2), p.fields["connections_active"])
	assert.Equal(t, int64(4), p.fields["writes"])
	assert.Equal(t, int64(6), p.fields["events_dropped"])
}

func TestReportStats_StopsOnCancel(t *testing.T) {
	rec := &pointRecorder{points: make(chan recordedPoint, 16)}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		reportStats(ctx, 10*time.Millisecond, fixedStats{}, rec)
		close(done)
	}()

	select {
	case <-rec.points:
	case <-time.After(2 * time.Second):
		t.Fatal("no stats point written")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reportStats did not return after cancel")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sqlgateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestRun_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "gateway: [not a map")

	err := run(context.Background(), nil, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestRun_ValidationFailure(t *testing.T) {
	path := writeConfig(t, "database:\n  path: \"\"\n")

	err := run(context.Background(), nil, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.path is required")
}

func TestRun_UnwritableDatabase(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	path := writeConfig(t, fmt.Sprintf("database:\n  path: %s\nlogging:\n  level: error\n", filepath.Join(blocker, "store.db")))

	err := run(context.Background(), []string{strconv.Itoa(freePort(t))}, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening database")
}

func TestRun_BusyPort(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	dbPath := filepath.Join(t.TempDir(), "store.db")
	path := writeConfig(t, fmt.Sprintf("database:\n  path: %s\nlogging:\n  level: error\n", dbPath))

	err = run(context.Background(), []string{strconv.Itoa(port)}, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "starting gateway")
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "store.db")
	path := writeConfig(t, fmt.Sprintf("database:\n  path: %s\nlogging:\n  level: error\n", dbPath))
	port := freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, []string{strconv.Itoa(port)}, path) }()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	var conn net.Conn
	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 5*time.Second, 20*time.Millisecond)
	defer conn.Close()

	r := bufio.NewReader(conn)
	roundTrip := func(cmd string) string {
		_, err := conn.Write([]byte(cmd + "\x00"))
		require.NoError(t, err)
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		resp, err := r.ReadString(0)
		require.NoError(t, err)
		return resp[:len(resp)-1]
	}

	assert.Equal(t, "SUCCESS done", roundTrip("INSERT INTO users (username, password) VALUES ('alice', 'pw')"))
	assert.Equal(t, "SUCCESS [('alice',)]", roundTrip("SELECT username FROM users"))

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestRun_InvalidPortArgumentUsesConfiguredPort(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "store.db")
	port := freePort(t)
	path := writeConfig(t, fmt.Sprintf("gateway:\n  port: %d\ndatabase:\n  path: %s\nlogging:\n  level: error\n", port, dbPath))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, []string{"abc"}, path) }()

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	var conn net.Conn
	require.Eventually(t, func() bool {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 5*time.Second, 20*time.Millisecond)
	defer conn.Close()

	_, err := conn.Write([]byte("SELECT 1\x00"))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	resp, err := bufio.NewReader(conn).ReadString(0)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS [(1,)]\x00", resp)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
