package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
)

func TestMetricsSnapshotIsACopy(t *testing.T) {
	m := NewMetrics()
	m.RecordTransition("resolve", "ok")
	m.RecordTransition("resolve", "ok")
	m.RecordTransition("resolve", "CONFLICT")
	m.RecordSweep(3, 1, 2*time.Second)

	snap := m.Snapshot()
	if snap.Transitions["resolve|ok"] != 2 || snap.Transitions["resolve|CONFLICT"] != 1 {
		t.Fatalf("unexpected transitions %v", snap.Transitions)
	}
	if snap.SweepRuns != 1 || snap.SweepClosed != 3 || snap.SweepFailures != 1 || snap.LastSweepMilli != 2000 {
		t.Fatalf("unexpected sweep counters %+v", snap)
	}
	snap.Transitions["resolve|ok"] = 99
	if m.Snapshot().Transitions["resolve|ok"] != 2 {
		t.Fatalf("snapshot aliases internal state")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordTransition("resolve", "ok")
	if snap := m.Snapshot(); snap.SweepRuns != 0 {
		t.Fatalf("expected empty snapshot")
	}
}

func TestRequestLoggerCountsByRoute(t *testing.T) {
	metrics := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(zap.NewNop(), metrics))
	app.Get("/tickets/:id", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })

	for _, id := range []string{"a", "b"} {
		if _, err := app.Test(httptest.NewRequest(http.MethodGet, "/tickets/"+id, nil)); err != nil {
			t.Fatalf("request: %v", err)
		}
	}
	if got := metrics.Snapshot().Requests["/tickets/:id|GET|204"]; got != 2 {
		t.Fatalf("expected 2 requests on the route key, got %d", got)
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "shouting"}, config.AppConfig{})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	if !logger.Core().Enabled(zap.InfoLevel) || logger.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("expected info level")
	}
}

func TestNewLoggerStampsServiceFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")
	logger, err := NewLogger(
		config.LoggerConfig{Level: "debug", Output: path},
		config.AppConfig{Name: "ticket-lifecycle", Env: "production", Version: "1.4.0"},
	)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	logger.Info("sweep finished", zap.Int("closed", 2))
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(raw, &line); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	for key, want := range map[string]any{
		"message": "sweep finished",
		"level":   "info",
		"service": "ticket-lifecycle",
		"env":     "production",
		"version": "1.4.0",
		"closed":  float64(2),
	} {
		if line[key] != want {
			t.Fatalf("%s: expected %v, got %v", key, want, line[key])
		}
	}
}
