package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestInitOTel_Disabled(t *testing.T) {
	providers, err := InitOTel(context.Background(), DefaultOTelConfig(), "test", discardLogger())

	assert.NoError(t, err)
	assert.Nil(t, providers)
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestInitOTel_InvalidConfig(t *testing.T) {
	cfg := DefaultOTelConfig()
	cfg.Enabled = true
	cfg.SampleRatio = 2

	providers, err := InitOTel(context.Background(), cfg, "test", discardLogger())
	assert.Error(t, err)
	assert.Nil(t, providers)
}

// Exporters connect lazily, so no collector needs to be listening.
func TestInitOTel_Enabled(t *testing.T) {
	cfg := DefaultOTelConfig()
	cfg.Enabled = true
	cfg.Endpoint = "127.0.0.1:4317"

	providers, err := InitOTel(context.Background(), cfg, "1.0.0", discardLogger())
	require.NoError(t, err)
	require.NotNil(t, providers)
	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.MeterProvider)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = providers.Shutdown(ctx)
}

func TestOTelConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *OTelConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *OTelConfig) {}},
		{name: "zero ratio", mutate: func(c *OTelConfig) { c.SampleRatio = 0 }},
		{name: "negative ratio", mutate: func(c *OTelConfig) { c.SampleRatio = -0.1 }, wantErr: true},
		{name: "enabled without endpoint", mutate: func(c *OTelConfig) {
			c.Enabled = true
			c.Endpoint = ""
		}, wantErr: true},
		{name: "disabled without endpoint", mutate: func(c *OTelConfig) { c.Endpoint = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultOTelConfig()
			tt.mutate(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestTraceFields(t *testing.T) {
	assert.Nil(t, TraceFields(context.Background()))

	provider := sdktrace.NewTracerProvider()
	defer provider.Shutdown(context.Background())

	ctx, span := provider.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	fields := TraceFields(ctx)
	require.NotNil(t, fields)
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])

	var buf bytes.Buffer
	ctx = WithLogger(ctx, NewLogger("info", &buf))
	FromContext(ctx).Info("traced")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
}
