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

	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/config"
	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/influxdb"
)

// fakeServer answers the InfluxDB v2 ping and write endpoints.
type fakeServer struct {
	*httptest.Server

	mu        sync.Mutex
	writes    []string
	query     string
	pingCode  int
	writeCode int
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{pingCode: http.StatusNoContent, writeCode: http.StatusNoContent}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(f.pingCode)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.writes = append(f.writes, string(body))
			f.query = r.URL.RawQuery
			if f.writeCode != http.StatusNoContent {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(f.writeCode)
				_, _ = w.Write([]byte(`{"code":"invalid","message":"bad line protocol"}`))
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "")
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "hwmc-test-token",
		Org:           "dsa110",
		Bucket:        "hwmc",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func connect(t *testing.T, f *fakeServer) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(context.Background(), testConfig(f.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestConnect(t *testing.T) {
	f := newFakeServer(t)
	client := connect(t, f)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheck_Unhealthy(t *testing.T) {
	f := newFakeServer(t)
	client := connect(t, f)

	f.mu.Lock()
	f.pingCode = http.StatusServiceUnavailable
	f.mu.Unlock()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrUnhealthy) {
		t.Errorf("HealthCheck() error = %v, want ErrUnhealthy", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Enabled = false

	_, err := influxdb.Connect(context.Background(), cfg)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	f := newFakeServer(t)
	f.pingCode = http.StatusServiceUnavailable

	_, err := influxdb.Connect(context.Background(), testConfig(f.URL))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	f := newFakeServer(t)
	url := f.URL
	f.Close()

	_, err := influxdb.Connect(context.Background(), testConfig(url))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWritePoint(t *testing.T) {
	f := newFakeServer(t)
	client := connect(t, f)

	ts := time.Unix(1760616000, 0)
	client.WritePoint("ant_mon",
		map[string]string{"ant_num": "24"},
		map[string]any{"ant_el": 91.5, "brake_on": false},
		ts)
	client.WritePoint("ant_mon", map[string]string{"ant_num": "25"}, nil, ts)
	client.Flush()

	body := f.body()
	if !strings.Contains(body, "ant_mon,ant_num=24 ") {
		t.Errorf("body %q missing measurement and tag", body)
	}
	for _, field := range []string{"ant_el=91.5", "brake_on=false"} {
		if !strings.Contains(body, field) {
			t.Errorf("body %q missing field %s", body, field)
		}
	}
	if strings.Contains(body, "ant_num=25") {
		t.Error("point without fields was written")
	}
	if !strings.Contains(f.query, "bucket=hwmc") || !strings.Contains(f.query, "org=dsa110") {
		t.Errorf("write query = %q", f.query)
	}
}

func TestWriteErrorCallback(t *testing.T) {
	f := newFakeServer(t)
	f.writeCode = http.StatusBadRequest
	client := connect(t, f)

	errs := make(chan error, 4)
	client.SetOnError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})

	client.WritePoint("beb_mon", map[string]string{"ant_num": "1"}, map[string]any{"lj_temp": 300.1}, time.Now())
	client.Flush()

	select {
	case err := <-errs:
		if !errors.Is(err, influxdb.ErrWriteFailed) {
			t.Errorf("callback error = %v, want ErrWriteFailed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("write error not reported")
	}
}

func TestClose(t *testing.T) {
	f := newFakeServer(t)
	client, err := influxdb.Connect(context.Background(), testConfig(f.URL))
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
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrClosed) {
		t.Errorf("HealthCheck() after Close() = %v, want ErrClosed", err)
	}

	client.WritePoint("ant_mon", nil, map[string]any{"ant_el": 1.0}, time.Now())
	client.Flush()
	if body := f.body(); body != "" {
		t.Errorf("write after Close() reached the server: %q", body)
	}
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}
