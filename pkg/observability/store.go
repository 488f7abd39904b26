package observability

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/depreg/pkg/storage"
)

const tracerName = "github.com/platinummonkey/depreg/pkg/observability"

// InstrumentedStore decorates a ProviderStore with metrics, tracing and
// debug logging. Metrics may be nil.
type InstrumentedStore struct {
	store   storage.ProviderStore
	metrics *Metrics
	logger  logrus.FieldLogger
	tracer  trace.Tracer
}

var _ storage.ProviderStore = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps store. Spans go to the global tracer provider.
func NewInstrumentedStore(store storage.ProviderStore, metrics *Metrics, logger logrus.FieldLogger) *InstrumentedStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &InstrumentedStore{
		store:   store,
		metrics: metrics,
		logger:  logger.WithField("backend", store.Name()),
		tracer:  otel.Tracer(tracerName),
	}
}

// Name returns the backend name of the decorated store
func (s *InstrumentedStore) Name() string {
	return s.store.Name()
}

func (s *InstrumentedStore) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("depreg.backend", s.store.Name()))
	return s.tracer.Start(ctx, "store."+op, trace.WithAttributes(attrs...))
}

func (s *InstrumentedStore) finish(span trace.Span, op string, start time.Time, err error) {
	defer span.End()

	duration := time.Since(start)
	status, errType := classify(err)

	if s.metrics != nil {
		backend := s.store.Name()
		s.metrics.StoreOperationsTotal.WithLabelValues(op, backend, status).Inc()
		s.metrics.StoreOperationDuration.WithLabelValues(op, backend).Observe(duration.Seconds())
		if errType != "" {
			s.metrics.StoreErrorsTotal.WithLabelValues(op, backend, errType).Inc()
		}
	}

	entry := s.logger.WithFields(logrus.Fields{
		"operation": op,
		"status":    status,
		"duration":  duration,
	})
	if errType != "" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry.WithError(err).Debug("store operation failed")
		return
	}
	entry.Debug("store operation")
}

// classify maps an error to a status label and, for failures, an error type.
// A missing row is an expected outcome and is not counted as an error.
func classify(err error) (status, errType string) {
	switch {
	case err == nil:
		return "success", ""
	case errors.Is(err, storage.ErrNotFound):
		return "not_found", ""
	case errors.Is(err, storage.ErrInvalidKey), errors.Is(err, storage.ErrInvalidHive):
		return "error", "invalid_input"
	case errors.Is(err, storage.ErrStoreAccess):
		return "error", "store_access"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "error", "canceled"
	default:
		return "error", "unknown"
	}
}

func keyAttrs(hive storage.Hive, key string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("depreg.hive", string(hive)),
		attribute.String("depreg.key", key),
	}
}

// ReadProvider implements storage.ProviderReader.ReadProvider
func (s *InstrumentedStore) ReadProvider(ctx context.Context, hive storage.Hive, key string) (*storage.Provider, error) {
	const op = "read_provider"
	ctx, span := s.startSpan(ctx, op, keyAttrs(hive, key)...)
	start := time.Now()

	p, err := s.store.ReadProvider(ctx, hive, key)
	s.finish(span, op, start, err)
	return p, err
}

// ReadProviderVersion implements storage.ProviderReader.ReadProviderVersion
func (s *InstrumentedStore) ReadProviderVersion(ctx context.Context, hive storage.Hive, key string) (string, error) {
	const op = "read_provider_version"
	ctx, span := s.startSpan(ctx, op, keyAttrs(hive, key)...)
	start := time.Now()

	v, err := s.store.ReadProviderVersion(ctx, hive, key)
	s.finish(span, op, start, err)
	return v, err
}

// EnumerateDependents implements storage.ProviderReader.EnumerateDependents.
// The span covers the whole iteration and records how many rows were seen.
func (s *InstrumentedStore) EnumerateDependents(ctx context.Context, hive storage.Hive, key string) iter.Seq2[storage.Dependent, error] {
	return func(yield func(storage.Dependent, error) bool) {
		const op = "enumerate_dependents"
		ctx, span := s.startSpan(ctx, op, keyAttrs(hive, key)...)
		start := time.Now()

		var (
			count   int
			iterErr error
		)
		defer func() {
			span.SetAttributes(attribute.Int("depreg.dependents", count))
			s.finish(span, op, start, iterErr)
		}()

		for dep, err := range s.store.EnumerateDependents(ctx, hive, key) {
			if err != nil {
				iterErr = err
			} else {
				count++
			}
			if !yield(dep, err) {
				return
			}
		}
	}
}

// WriteProvider implements storage.ProviderWriter.WriteProvider
func (s *InstrumentedStore) WriteProvider(ctx context.Context, hive storage.Hive, p storage.Provider) error {
	const op = "write_provider"
	ctx, span := s.startSpan(ctx, op, keyAttrs(hive, p.Key)...)
	start := time.Now()

	err := s.store.WriteProvider(ctx, hive, p)
	s.finish(span, op, start, err)
	return err
}

// DeleteProvider implements storage.ProviderWriter.DeleteProvider
func (s *InstrumentedStore) DeleteProvider(ctx context.Context, hive storage.Hive, key string) error {
	const op = "delete_provider"
	ctx, span := s.startSpan(ctx, op, keyAttrs(hive, key)...)
	start := time.Now()

	err := s.store.DeleteProvider(ctx, hive, key)
	s.finish(span, op, start, err)
	return err
}

// WriteDependent implements storage.ProviderWriter.WriteDependent
func (s *InstrumentedStore) WriteDependent(ctx context.Context, hive storage.Hive, dependencyKey string, d storage.Dependent) error {
	const op = "write_dependent"
	attrs := append(keyAttrs(hive, dependencyKey), attribute.String("depreg.dependent", d.Key))
	ctx, span := s.startSpan(ctx, op, attrs...)
	start := time.Now()

	err := s.store.WriteDependent(ctx, hive, dependencyKey, d)
	s.finish(span, op, start, err)
	return err
}

// DeleteDependent implements storage.ProviderWriter.DeleteDependent
func (s *InstrumentedStore) DeleteDependent(ctx context.Context, hive storage.Hive, dependencyKey, dependentKey string) error {
	const op = "delete_dependent"
	attrs := append(keyAttrs(hive, dependencyKey), attribute.String("depreg.dependent", dependentKey))
	ctx, span := s.startSpan(ctx, op, attrs...)
	start := time.Now()

	err := s.store.DeleteDependent(ctx, hive, dependencyKey, dependentKey)
	s.finish(span, op, start, err)
	return err
}

// HealthCheck implements storage.HealthChecker.HealthCheck
func (s *InstrumentedStore) HealthCheck(ctx context.Context) error {
	const op = "health_check"
	ctx, span := s.startSpan(ctx, op)
	start := time.Now()

	err := s.store.HealthCheck(ctx)
	s.finish(span, op, start, err)
	return err
}

// Close closes the decorated store
func (s *InstrumentedStore) Close() error {
	return s.store.Close()
}
