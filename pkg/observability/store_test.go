package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/platinummonkey/depreg/pkg/storage"
	"github.com/platinummonkey/depreg/pkg/storage/storagetest"
)

type instrumentedFixture struct {
	store    *InstrumentedStore
	metrics  *Metrics
	exporter *tracetest.InMemoryExporter
	logs     *bytes.Buffer
}

func newInstrumentedFixture(t *testing.T) *instrumentedFixture {
	t.Helper()

	inner, err := storage.NewFileSystemStore(t.TempDir())
	require.NoError(t, err)

	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var logs bytes.Buffer
	metrics := NewMetrics(prometheus.NewRegistry())
	store := NewInstrumentedStore(inner, metrics, NewLogger("debug", &logs))
	t.Cleanup(func() { store.Close() })

	return &instrumentedFixture{store: store, metrics: metrics, exporter: exporter, logs: &logs}
}

func (f *instrumentedFixture) span(t *testing.T, name string) tracetest.SpanStub {
	t.Helper()
	for _, span := range f.exporter.GetSpans() {
		if span.Name == name {
			return span
		}
	}
	t.Fatalf("span %s not recorded", name)
	return tracetest.SpanStub{}
}

func TestInstrumentedStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.ProviderStore {
		return newInstrumentedFixture(t).store
	})
}

func TestInstrumentedStore_CountsOperations(t *testing.T) {
	f := newInstrumentedFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.WriteProvider(ctx, storage.HiveMachine, storage.Provider{Key: "p", Version: "1.0"}))
	_, err := f.store.ReadProvider(ctx, storage.HiveMachine, "p")
	require.NoError(t, err)
	_, err = f.store.ReadProvider(ctx, storage.HiveMachine, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.store.ReadProvider(ctx, storage.HiveMachine, "bad/key")
	require.ErrorIs(t, err, storage.ErrInvalidKey)

	ops := f.metrics.StoreOperationsTotal
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("write_provider", "filesystem", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("read_provider", "filesystem", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("read_provider", "filesystem", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ops.WithLabelValues("read_provider", "filesystem", "error")))

	errs := f.metrics.StoreErrorsTotal
	assert.Equal(t, 1.0, testutil.ToFloat64(errs.WithLabelValues("read_provider", "filesystem", "invalid_input")))
	assert.Equal(t, 1, testutil.CollectAndCount(errs), "not found is not an error")
	assert.Equal(t, 2, testutil.CollectAndCount(f.metrics.StoreOperationDuration))
}

func TestInstrumentedStore_Spans(t *testing.T) {
	f := newInstrumentedFixture(t)
	ctx := context.Background()

	err := f.store.DeleteProvider(ctx, storage.HiveUser, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	span := f.span(t, "store.delete_provider")
	assert.NotEqual(t, codes.Error, span.Status.Code)

	var attrs = map[string]string{}
	for _, kv := range span.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "user", attrs["depreg.hive"])
	assert.Equal(t, "missing", attrs["depreg.key"])
	assert.Equal(t, "filesystem", attrs["depreg.backend"])

	err = f.store.WriteDependent(ctx, storage.HiveUser, "p", storage.Dependent{Key: ".."})
	require.Error(t, err)
	assert.Equal(t, codes.Error, f.span(t, "store.write_dependent").Status.Code)
}

func TestInstrumentedStore_EnumerateSpan(t *testing.T) {
	f := newInstrumentedFixture(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, f.store.WriteDependent(ctx, storage.HiveMachine, "p", storage.Dependent{Key: key}))
	}

	for _, err := range f.store.EnumerateDependents(ctx, storage.HiveMachine, "p") {
		require.NoError(t, err)
		break
	}

	span := f.span(t, "store.enumerate_dependents")
	var count int64 = -1
	for _, kv := range span.Attributes {
		if kv.Key == "depreg.dependents" {
			count = kv.Value.AsInt64()
		}
	}
	assert.Equal(t, int64(1), count, "span ends when the caller stops early")
	assert.Equal(t, 1.0, testutil.ToFloat64(
		f.metrics.StoreOperationsTotal.WithLabelValues("enumerate_dependents", "filesystem", "success")))
}

func TestInstrumentedStore_DebugLogs(t *testing.T) {
	f := newInstrumentedFixture(t)

	_, _ = f.store.ReadProviderVersion(context.Background(), storage.HiveMachine, "missing")

	assert.Contains(t, f.logs.String(), `"operation":"read_provider_version"`)
	assert.Contains(t, f.logs.String(), `"status":"not_found"`)
	assert.Contains(t, f.logs.String(), `"backend":"filesystem"`)
}

func TestInstrumentedStore_NilMetrics(t *testing.T) {
	inner, err := storage.NewFileSystemStore(t.TempDir())
	require.NoError(t, err)

	store := NewInstrumentedStore(inner, nil, nil)
	assert.Equal(t, "filesystem", store.Name())
	assert.NoError(t, store.HealthCheck(context.Background()))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err     error
		status  string
		errType string
	}{
		{nil, "success", ""},
		{storage.ErrNotFound, "not_found", ""},
		{storage.ErrInvalidKey, "error", "invalid_input"},
		{storage.ErrInvalidHive, "error", "invalid_input"},
		{storage.AccessError("read", errors.New("disk")), "error", "store_access"},
		{context.DeadlineExceeded, "error", "canceled"},
		{errors.New("other"), "error", "unknown"},
	}

	for _, tt := range tests {
		status, errType := classify(tt.err)
		assert.Equal(t, tt.status, status, "%v", tt.err)
		assert.Equal(t, tt.errType, errType, "%v", tt.err)
	}
}
