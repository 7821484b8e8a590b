package observability

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-channels/internal/config"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordTransition("claim")
	m.RecordTransition("claim")
	m.RecordRejection("hide", "INVALID_STATE")
	m.RecordAssignment("workload", true)
	m.RecordAssignment("workload", false)
	m.RenameApplied("c")
	m.RenameFailed("c")
	m.RecordExternalFailure("ReplacePermissions")

	s := m.Snapshot()
	if s.Transitions["claim"] != 2 || s.Rejections["hide|INVALID_STATE"] != 1 {
		t.Fatalf("snapshot = %+v", s)
	}
	if s.Assignments["workload|picked"] != 1 || s.Assignments["workload|none"] != 1 {
		t.Fatalf("assignments = %v", s.Assignments)
	}
	if s.Renames["applied"] != 1 || s.Renames["failed"] != 1 || s.ExternalFailures["ReplacePermissions"] != 1 {
		t.Fatalf("renames = %v external = %v", s.Renames, s.ExternalFailures)
	}

	s.Transitions["claim"] = 100
	if m.Snapshot().Transitions["claim"] != 2 {
		t.Fatal("snapshot shares maps with the collector")
	}

	var nilMetrics *Metrics
	nilMetrics.RecordTransition("claim")
	nilMetrics.RenameApplied("c")
}

func TestRequestLoggerRecordsRoutePattern(t *testing.T) {
	m := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(zap.NewNop(), m))
	app.Get("/tickets/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	for _, id := range []string{"1", "2"} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/tickets/"+id, nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != fiber.StatusNoContent {
			t.Fatalf("status = %d", resp.StatusCode)
		}
	}
	if got := m.Snapshot().Requests["/tickets/:id|GET|204"]; got != 2 {
		t.Fatalf("requests = %v", m.Snapshot().Requests)
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "DEBUG"}, config.AppConfig{Name: "svc", Env: "test"})
	if err != nil {
		t.Fatal(err)
	}
	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Fatal("debug level not applied")
	}
	fallback, err := NewLogger(config.LoggerConfig{Level: "loud"}, config.AppConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if fallback.Core().Enabled(zap.DebugLevel) || !fallback.Core().Enabled(zap.InfoLevel) {
		t.Fatal("unknown level should fall back to info")
	}
}

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), config.TracingConfig{Enabled: true}, config.AppConfig{Name: "svc"})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}
