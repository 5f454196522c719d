package telemetry

import (
	"context"
	"testing"

	"github.com/acme/autodialer/internal/config"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{}, "autodialer")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupRequiresEndpoint(t *testing.T) {
	if _, err := Setup(context.Background(), config.TelemetryConfig{TracingEnabled: true}, "autodialer"); err == nil {
		t.Fatalf("expected an error without an endpoint")
	}
}
