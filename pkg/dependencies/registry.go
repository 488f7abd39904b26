package dependencies

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/depreg/pkg/audit"
	"github.com/platinummonkey/depreg/pkg/records"
	"github.com/platinummonkey/depreg/pkg/storage"
	"github.com/platinummonkey/depreg/pkg/version"
)

// KeyLookup answers membership queries for provider keys.
// *dict.StringSet satisfies it.
type KeyLookup interface {
	Exists(key string) bool
}

// KeyRecorder is a KeyLookup that can also remember keys
type KeyRecorder interface {
	KeyLookup
	AddKey(key string)
}

// Check outcomes passed to Recorder.RecordCheck
const (
	CheckSatisfied  = "satisfied"
	CheckOutOfRange = "out_of_range"
	CheckNotFound   = "not_found"
)

// Recorder receives the outcome of every dependency and dependents check
type Recorder interface {
	RecordCheck(ctx context.Context, hive storage.Hive, outcome string)
	RecordDependents(ctx context.Context, hive storage.Hive, blocking int)
}

type noopRecorder struct{}

func (noopRecorder) RecordCheck(context.Context, storage.Hive, string) {}
func (noopRecorder) RecordDependents(context.Context, storage.Hive, int) {}

// CheckResult describes a registered dependency provider
type CheckResult struct {
	Found       bool   `json:"found"`
	InRange     bool   `json:"in_range"`
	Version     string `json:"version,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Registry implements the check, register and unregister steps of the
// dependency protocol on top of a ProviderStore. It keeps no state between
// calls; callers serialize mutations of the same rows.
type Registry struct {
	store    storage.ProviderStore
	matcher  *version.Matcher
	logger   logrus.FieldLogger
	auditor  audit.Logger
	recorder Recorder
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the registry logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithMatcher sets the version matcher used to parse and compare versions
func WithMatcher(m *version.Matcher) Option {
	return func(r *Registry) {
		r.matcher = m
	}
}

// WithAuditLogger records every register and unregister step to auditor
func WithAuditLogger(auditor audit.Logger) Option {
	return func(r *Registry) {
		r.auditor = auditor
	}
}

// WithRecorder reports check outcomes to rec
func WithRecorder(rec Recorder) Option {
	return func(r *Registry) {
		r.recorder = rec
	}
}

// NewRegistry creates a registry backed by store
func NewRegistry(store storage.ProviderStore, opts ...Option) *Registry {
	r := &Registry{
		store:    store,
		matcher:  version.DefaultMatcher,
		logger:   logrus.StandardLogger(),
		auditor:  audit.NoOpLogger{},
		recorder: noopRecorder{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CheckDependency reads the provider key and tests its version against the
// inclusive range [minVersion, maxVersion]; an empty bound is unbounded.
//
// A provider outside the range is still reported as found. It is appended to
// out as (key, display name) unless dedup already holds the key, and the key
// is then added to dedup. A nil dedup records every mismatch and a nil out
// records nothing. An unregistered provider returns ErrDependencyNotFound.
func (r *Registry) CheckDependency(ctx context.Context, hive storage.Hive, key, minVersion, maxVersion string, attributes storage.Attributes, dedup KeyRecorder, out *records.Store) (CheckResult, error) {
	rng, err := r.matcher.ParseRange(minVersion, maxVersion)
	if err != nil {
		return CheckResult{}, fmt.Errorf("invalid version range for %s: %w", key, err)
	}

	provider, err := r.store.ReadProvider(ctx, hive, key)
	if IsNotFound(err) {
		r.recorder.RecordCheck(ctx, hive, CheckNotFound)
		return CheckResult{}, fmt.Errorf("%w: %s", ErrDependencyNotFound, key)
	} else if err != nil {
		return CheckResult{}, err
	}

	v, err := r.matcher.Parse(provider.Version)
	if err != nil {
		return CheckResult{}, fmt.Errorf("registered version of %s: %w", key, err)
	}

	result := CheckResult{
		Found:       true,
		InRange:     rng.Contains(v),
		Version:     provider.Version,
		DisplayName: provider.DisplayName,
	}

	logger := r.logger.WithFields(logrus.Fields{
		"hive":       hive,
		"key":        key,
		"version":    provider.Version,
		"range":      rng.String(),
		"attributes": int(attributes),
	})
	if result.InRange {
		r.recorder.RecordCheck(ctx, hive, CheckSatisfied)
		logger.Debug("Dependency satisfied")
		return result, nil
	}
	r.recorder.RecordCheck(ctx, hive, CheckOutOfRange)

	if dedup != nil && dedup.Exists(key) {
		logger.Debug("Dependency out of range, already recorded")
		return result, nil
	}

	if out != nil {
		if err := out.Append(key, provider.DisplayName); err != nil {
			return result, err
		}
	}
	if dedup != nil {
		dedup.AddKey(key)
	}
	logger.Info("Dependency out of range")

	return result, nil
}

// CheckDependents appends to out every dependent registered under key that
// is neither in ignore nor flagged with AttributeIgnoreDependent. The record
// name is the display name of the dependent's own provider row when that row
// exists. It returns the number of records appended; out is unchanged when
// an error is returned.
func (r *Registry) CheckDependents(ctx context.Context, hive storage.Hive, key string, attributes storage.Attributes, ignore KeyLookup, out *records.Store) (int, error) {
	found := records.NewStore()

	for dep, err := range r.store.EnumerateDependents(ctx, hive, key) {
		if err != nil {
			return 0, err
		}
		if ignore != nil && ignore.Exists(dep.Key) {
			continue
		}
		if dep.Attributes.Has(storage.AttributeIgnoreDependent) {
			continue
		}

		name, err := r.dependentName(ctx, hive, dep.Key)
		if err != nil {
			return 0, err
		}
		if err := found.Append(dep.Key, name); err != nil {
			return 0, err
		}
	}

	if out != nil {
		if err := out.Merge(found); err != nil {
			return 0, err
		}
	}

	r.logger.WithFields(logrus.Fields{
		"hive":       hive,
		"key":        key,
		"dependents": found.Len(),
		"attributes": int(attributes),
	}).Debug("Checked dependents")
	r.recorder.RecordDependents(ctx, hive, found.Len())

	return found.Len(), nil
}

func (r *Registry) dependentName(ctx context.Context, hive storage.Hive, key string) (string, error) {
	provider, err := r.store.ReadProvider(ctx, hive, key)
	if IsNotFound(err) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return provider.DisplayName, nil
}

// RegisterDependency writes the provider row, overwriting any previous
// registration of key.
func (r *Registry) RegisterDependency(ctx context.Context, hive storage.Hive, key, providerVersion, displayName string, attributes storage.Attributes) (err error) {
	defer func() {
		event := audit.NewEvent(ctx, audit.EventTypeRegisterDependency, string(hive), key, err)
		event.Changes = &audit.ChangeDetails{Version: providerVersion, DisplayName: displayName, Attributes: int(attributes)}
		r.record(ctx, event)
	}()

	if _, err := r.matcher.Parse(providerVersion); err != nil {
		return fmt.Errorf("version of %s: %w", key, err)
	}

	err = r.store.WriteProvider(ctx, hive, storage.Provider{
		Key:         key,
		Version:     providerVersion,
		DisplayName: displayName,
		Attributes:  attributes,
	})
	if err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"hive":    hive,
		"key":     key,
		"version": providerVersion,
	}).Info("Registered dependency")
	return nil
}

// RegisterDependent writes the dependent row under dependencyKey, overwriting
// any previous registration. The dependency provider need not exist.
func (r *Registry) RegisterDependent(ctx context.Context, hive storage.Hive, dependencyKey, dependentKey, minVersion, maxVersion string, attributes storage.Attributes) (err error) {
	defer func() {
		event := audit.NewEvent(ctx, audit.EventTypeRegisterDependent, string(hive), dependencyKey, err)
		event.Dependent = dependentKey
		event.Changes = &audit.ChangeDetails{MinVersion: minVersion, MaxVersion: maxVersion, Attributes: int(attributes)}
		r.record(ctx, event)
	}()

	if _, err := r.matcher.ParseRange(minVersion, maxVersion); err != nil {
		return fmt.Errorf("version range of %s: %w", dependentKey, err)
	}

	err = r.store.WriteDependent(ctx, hive, dependencyKey, storage.Dependent{
		Key:        dependentKey,
		MinVersion: minVersion,
		MaxVersion: maxVersion,
		Attributes: attributes,
	})
	if err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"hive":       hive,
		"dependency": dependencyKey,
		"dependent":  dependentKey,
	}).Info("Registered dependent")
	return nil
}

// UnregisterDependency deletes the provider row. Remaining dependents are
// not checked; callers that care run CheckDependents first.
func (r *Registry) UnregisterDependency(ctx context.Context, hive storage.Hive, key string) (err error) {
	defer func() {
		r.record(ctx, audit.NewEvent(ctx, audit.EventTypeUnregisterDependency, string(hive), key, err))
	}()

	err = r.store.DeleteProvider(ctx, hive, key)
	if IsNotFound(err) {
		return fmt.Errorf("%w: %s", ErrDependencyNotFound, key)
	} else if err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"hive": hive,
		"key":  key,
	}).Info("Unregistered dependency")
	return nil
}

// UnregisterDependent deletes the dependent row. It fails with
// ErrDependentNotFound only when neither the dependency nor the dependent
// is registered.
func (r *Registry) UnregisterDependent(ctx context.Context, hive storage.Hive, dependencyKey, dependentKey string) (err error) {
	defer func() {
		event := audit.NewEvent(ctx, audit.EventTypeUnregisterDependent, string(hive), dependencyKey, err)
		event.Dependent = dependentKey
		r.record(ctx, event)
	}()

	err = r.store.DeleteDependent(ctx, hive, dependencyKey, dependentKey)
	if IsNotFound(err) {
		return fmt.Errorf("%w: %s of %s", ErrDependentNotFound, dependentKey, dependencyKey)
	} else if err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"hive":       hive,
		"dependency": dependencyKey,
		"dependent":  dependentKey,
	}).Info("Unregistered dependent")
	return nil
}

// record hands event to the audit logger. Audit failures are logged and do
// not fail the audited operation.
func (r *Registry) record(ctx context.Context, event *audit.Event) {
	if err := r.auditor.Log(ctx, event); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": event.EventType,
			"key":        event.Key,
		}).Warn("Failed to write audit event")
	}
}

// HealthCheck reports whether the backing store is reachable
func (r *Registry) HealthCheck(ctx context.Context) error {
	return r.store.HealthCheck(ctx)
}
