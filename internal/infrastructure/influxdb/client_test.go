package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/rrdcached-go/internal/infrastructure/config"
	"github.com/nerrad567/rrdcached-go/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records /api/v2/write bodies.
type fakeInflux struct {
	mu        sync.Mutex
	writes    []string
	rejectAll bool
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.rejectAll {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"code":"invalid","message":"rejected"}`)
			return
		}
		f.writes = append(f.writes, r.URL.Query().Get("bucket")+"|"+string(body))
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeInflux) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func startFake(t *testing.T) (*fakeInflux, config.InfluxDBConfig) {
	t.Helper()
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, config.InfluxDBConfig{
		Enabled:   true,
		URL:       srv.URL,
		Token:     "test-token",
		Org:       "ops",
		Bucket:    "archive",
		BatchSize: 2,
	}
}

func point(ds string, v float64, ts int64) *write.Point {
	return write.NewPoint("rrd",
		map[string]string{"database": "temp.rrd", "ds": ds},
		map[string]interface{}{"value": v},
		time.Unix(ts, 0))
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	_, cfg := startFake(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, cfg := startFake(t)
	cfg.Enabled = false

	client, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
	if client != nil {
		t.Error("Connect() returned a client when disabled")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := influxdb.Connect(context.Background(), config.InfluxDBConfig{Enabled: true, URL: url})
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose(t *testing.T) {
	_, cfg := startFake(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
	if err := client.WritePoints(context.Background(), point("t", 1, 1)); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("WritePoints() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWritePoints_Batches(t *testing.T) {
	fake, cfg := startFake(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	points := []*write.Point{point("a", 1, 100), point("b", 2, 100), point("a", 3, 200)}
	if err := client.WritePoints(context.Background(), points...); err != nil {
		t.Fatalf("WritePoints() error = %v", err)
	}

	reqs := fake.requests()
	if len(reqs) != 2 {
		t.Fatalf("write requests = %d, want 2 (batch size 2)", len(reqs))
	}
	if !strings.HasPrefix(reqs[0], "archive|") {
		t.Errorf("request bucket = %q", reqs[0])
	}
	if !strings.Contains(reqs[0], "rrd,database=temp.rrd,ds=a value=1 100") {
		t.Errorf("first batch = %q", reqs[0])
	}
	if !strings.Contains(reqs[1], "value=3 200") {
		t.Errorf("second batch = %q", reqs[1])
	}
}

func TestWritePoints_Empty(t *testing.T) {
	fake, cfg := startFake(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.WritePoints(context.Background()); err != nil {
		t.Errorf("WritePoints() error = %v", err)
	}
	if n := len(fake.requests()); n != 0 {
		t.Errorf("write requests = %d, want 0", n)
	}
}

func TestWritePoints_Rejected(t *testing.T) {
	fake, cfg := startFake(t)
	fake.mu.Lock()
	fake.rejectAll = true
	fake.mu.Unlock()

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	err = client.WritePoints(context.Background(), point("a", 1, 100))
	if !errors.Is(err, influxdb.ErrWriteFailed) {
		t.Errorf("WritePoints() error = %v, want ErrWriteFailed", err)
	}
}

func TestMeasurement(t *testing.T) {
	_, cfg := startFake(t)

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()
	if got := client.Measurement(); got != "rrd" {
		t.Errorf("Measurement() = %q, want rrd", got)
	}

	cfg.Measurement = "archives"
	other, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer other.Close()
	if got := other.Measurement(); got != "archives" {
		t.Errorf("Measurement() = %q, want archives", got)
	}
}
