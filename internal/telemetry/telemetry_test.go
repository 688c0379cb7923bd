package telemetry

import (
	"context"
	"testing"

	"github.com/fyrsmithlabs/convrag/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), config.Default().Telemetry, "test")
	require.NoError(t, err)

	assert.False(t, tel.Enabled())
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	degraded, _ := tel.Degraded()
	assert.False(t, degraded)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestValidate(t *testing.T) {
	base := config.Default().Telemetry
	base.Enabled = true

	tests := []struct {
		name    string
		mutate  func(*config.TelemetryConfig)
		wantErr bool
	}{
		{"defaults enabled", func(*config.TelemetryConfig) {}, false},
		{"no endpoint", func(c *config.TelemetryConfig) { c.Endpoint = "" }, true},
		{"no service", func(c *config.TelemetryConfig) { c.ServiceName = "" }, true},
		{"bad protocol", func(c *config.TelemetryConfig) { c.Protocol = "udp" }, true},
		{"insecure remote", func(c *config.TelemetryConfig) { c.Endpoint = "otel.example.com:4317" }, true},
		{"secure remote", func(c *config.TelemetryConfig) {
			c.Endpoint = "otel.example.com:4317"
			c.Insecure = false
		}, false},
		{"zero interval", func(c *config.TelemetryConfig) { c.Interval = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsLocalEndpoint(t *testing.T) {
	tests := map[string]bool{
		"localhost:4317":        true,
		"127.0.0.1:4317":        true,
		"[::1]:4317":            true,
		"http://localhost:4318": true,
		"collector:4317":        false,
		"10.0.0.5:4317":         false,
	}
	for endpoint, want := range tests {
		assert.Equal(t, want, isLocalEndpoint(endpoint), endpoint)
	}
}

func TestTestTelemetry_RecordsSpans(t *testing.T) {
	tel := NewTestTelemetry()

	_, span := tel.Tracer("convrag/test").Start(context.Background(), "engine.turn")
	span.End()

	tel.AssertSpanExists(t, "engine.turn")
	assert.Nil(t, tel.SpanByName("missing"))
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry
	assert.False(t, tel.Enabled())
	assert.NotNil(t, tel.Tracer("x"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}
