package influxdb

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/nerrad567/novacloud-core/internal/infrastructure/config"
)

func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "novacloud-dev-token",
		Org:           "novacloud",
		Bucket:        "telemetry",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := Connect(cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestDisconnectedClient(t *testing.T) {
	c := &Client{}

	if c.IsConnected() {
		t.Error("zero Client should not be connected")
	}
	if _, err := c.LatestSensorValue(context.Background(), "s1"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("LatestSensorValue() error = %v, want ErrNotConnected", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	// Writes on a disconnected client are dropped, not panics.
	c.WriteSensorReading("s1", "d1", 1.0, time.Now())
	c.WriteExecution("st-1", "success", 1, 0, time.Second)
	c.Flush()
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestReadingFields(t *testing.T) {
	tests := []struct {
		name  string
		in    any
		field string
		want  any
	}{
		{"float", 21.5, FieldValue, 21.5},
		{"int", 3, FieldValue, 3.0},
		{"numeric string", "18.25", FieldValue, 18.25},
		{"json number", json.Number("7"), FieldValue, 7.0},
		{"text", "open", FieldText, "open"},
		{"bool", true, FieldText, "true"},
		{"nil", nil, FieldText, ""},
		{"object", map[string]any{"a": 1}, FieldText, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := readingFields(tt.in)
			if len(fields) != 1 {
				t.Fatalf("fields = %v, want exactly one", fields)
			}
			if got := fields[tt.field]; got != tt.want {
				t.Errorf("fields[%s] = %v (%T), want %v", tt.field, got, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Query Tests
// =============================================================================

func TestFluxString(t *testing.T) {
	tests := map[string]string{
		"s1":          `"s1"`,
		`a"b`:         `"a\"b"`,
		`back\slash`:  `"back\\slash"`,
		"${injected}": `"\${injected}"`,
	}
	for in, want := range tests {
		if got := fluxString(in); got != want {
			t.Errorf("fluxString(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestLatestReadingQuery(t *testing.T) {
	q := latestReadingQuery("telemetry", "s-42", time.Hour)

	for _, part := range []string{
		`from(bucket: "telemetry")`,
		`range(start: -3600s)`,
		`r._measurement == "sensor_readings" and r.sensor_id == "s-42"`,
		`r._field == "value" or r._field == "text"`,
		`last()`,
	} {
		if !strings.Contains(q, part) {
			t.Errorf("query missing %q:\n%s", part, q)
		}
	}
}

const annotatedCSV = "#datatype,string,long,dateTime:RFC3339,dateTime:RFC3339,dateTime:RFC3339,double,string,string,string,string\n" +
	"#group,false,false,true,true,false,false,true,true,true,true\n" +
	"#default,_result,,,,,,,,,\n" +
	",result,table,_start,_stop,_time,_value,_field,_measurement,sensor_id,device_id\n" +
	",,0,2026-03-01T00:00:00Z,2026-03-14T00:00:00Z,2026-03-13T10:00:00Z,31.2,value,sensor_readings,s-42,d-1\n" +
	"\n"

func newQueryServer(t *testing.T, body string) (*httptest.Server, *string) {
	t.Helper()
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/query" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		raw, _ := io.ReadAll(r.Body) //nolint:errcheck // Test server
		var req struct {
			Query string `json:"query"`
		}
		_ = json.Unmarshal(raw, &req)
		query = req.Query
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &query
}

func TestLatestSensorValue(t *testing.T) {
	srv, query := newQueryServer(t, annotatedCSV)
	cfg := testConfig()
	cfg.URL = srv.URL

	c := newClient(influxdb2.NewClient(srv.URL, cfg.Token), cfg)
	defer c.Close()

	v, err := c.LatestSensorValue(context.Background(), "s-42")
	if err != nil {
		t.Fatalf("LatestSensorValue() error = %v", err)
	}
	if v != 31.2 {
		t.Errorf("LatestSensorValue() = %v, want 31.2", v)
	}
	if !strings.Contains(*query, `r.sensor_id == "s-42"`) {
		t.Errorf("query sent = %s", *query)
	}
}

func TestLatestSensorValue_NoData(t *testing.T) {
	srv, _ := newQueryServer(t, "")
	cfg := testConfig()
	cfg.URL = srv.URL

	c := newClient(influxdb2.NewClient(srv.URL, cfg.Token), cfg)
	defer c.Close()

	if _, err := c.LatestSensorValue(context.Background(), "s-42"); !errors.Is(err, ErrNoData) {
		t.Errorf("LatestSensorValue() error = %v, want ErrNoData", err)
	}
}
