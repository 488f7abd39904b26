package dependencies

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/depreg/pkg/dict"
	"github.com/platinummonkey/depreg/pkg/observability"
	"github.com/platinummonkey/depreg/pkg/records"
	"github.com/platinummonkey/depreg/pkg/storage"
	"github.com/platinummonkey/depreg/pkg/version"
)

const hive = storage.HiveMachine

func newTestRegistry(t *testing.T) (*Registry, storage.ProviderStore) {
	t.Helper()

	store, err := storage.NewFileSystemStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := observability.NewLogger("debug", &bytes.Buffer{})
	return NewRegistry(store, WithLogger(logger), WithMatcher(version.NewMatcher(16))), store
}

func TestCheckDependency_RegisteredVersionIsInOwnRange(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	versions := map[string]string{
		"Contoso.Runtime": "1.2.3.4",
		"Contoso.Tools":   "2",
		"Fabrikam.Core":   "0.0.0.1",
	}

	for key, v := range versions {
		require.NoError(t, reg.RegisterDependency(ctx, hive, key, v, key+" display", 0))
	}

	for key, v := range versions {
		out := records.NewStore()
		res, err := reg.CheckDependency(ctx, hive, key, v, v, 0, nil, out)
		require.NoError(t, err, key)
		assert.True(t, res.Found, key)
		assert.True(t, res.InRange, key)
		assert.Equal(t, v, res.Version)
		assert.Equal(t, 0, out.Len(), "in range providers are not recorded")
	}
}

func TestCheckDependency_UnboundedRange(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.RegisterDependency(ctx, hive, "p", "5.0", "P", 0))

	tests := []struct {
		min, max string
		want     bool
	}{
		{"", "", true},
		{"4.0", "", true},
		{"6.0", "", false},
		{"", "5.0.0.0", true},
		{"", "4.9", false},
	}

	for _, tt := range tests {
		res, err := reg.CheckDependency(ctx, hive, "p", tt.min, tt.max, 0, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.InRange, "[%q, %q]", tt.min, tt.max)
	}
}

func TestCheckDependency_OutOfRangeIsFoundAndRecorded(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.RegisterDependency(ctx, hive, "Contoso.Runtime", "3.0", "Contoso Runtime", 0))

	out := records.NewStore()
	res, err := reg.CheckDependency(ctx, hive, "Contoso.Runtime", "1.0", "2.0.0.0", 0, nil, out)

	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.False(t, res.InRange)
	assert.Equal(t, "Contoso Runtime", res.DisplayName)
	assert.Equal(t, []records.Record{{Key: "Contoso.Runtime", Name: "Contoso Runtime"}}, out.Records())
}

func TestCheckDependency_Dedup(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.RegisterDependency(ctx, hive, "p", "3.0", "P", 0))

	t.Run("records each key once", func(t *testing.T) {
		seen := dict.NewStringSet(4, dict.CaseInsensitive)
		out := records.NewStore()

		for _, key := range []string{"p", "P", "p"} {
			_, err := reg.CheckDependency(ctx, hive, key, "", "2.0", 0, seen, out)
			require.NoError(t, err)
		}

		assert.Equal(t, 1, out.Len())
		assert.True(t, seen.Exists("p"))
	})

	t.Run("key already present is skipped", func(t *testing.T) {
		seen := dict.NewStringSet(4, dict.CaseInsensitive)
		seen.AddKey("P")
		out := records.NewStore()

		res, err := reg.CheckDependency(ctx, hive, "p", "", "2.0", 0, seen, out)
		require.NoError(t, err)
		assert.False(t, res.InRange)
		assert.Equal(t, 0, out.Len())
	})

	t.Run("nil dedup records every mismatch", func(t *testing.T) {
		out := records.NewStore()

		for i := 0; i < 2; i++ {
			_, err := reg.CheckDependency(ctx, hive, "p", "", "2.0", 0, nil, out)
			require.NoError(t, err)
		}
		assert.Equal(t, []string{"p", "p"}, out.Keys())
	})
}

func TestCheckDependency_NotFound(t *testing.T) {
	reg, _ := newTestRegistry(t)

	out := records.NewStore()
	res, err := reg.CheckDependency(context.Background(), hive, "missing", "1.0", "2.0", 0, nil, out)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyNotFound)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.True(t, IsNotFound(err))
	assert.False(t, res.Found)
	assert.Equal(t, 0, out.Len())
}

func TestCheckDependency_InvalidFormat(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.RegisterDependency(ctx, hive, "p", "1.0", "P", 0))

	_, err := reg.CheckDependency(ctx, hive, "p", "a.b", "", 0, nil, nil)
	assert.True(t, IsInvalidFormat(err))
	assert.ErrorIs(t, err, version.ErrInvalidFormat)

	_, err = reg.CheckDependency(ctx, hive, "p", "", "1.2.3.4.5", 0, nil, nil)
	assert.True(t, IsInvalidFormat(err))

	_, err = reg.CheckDependency(ctx, hive, "bad\\key", "", "", 0, nil, nil)
	assert.True(t, IsInvalidFormat(err))

	_, err = reg.CheckDependency(ctx, storage.Hive("global"), "p", "", "", 0, nil, nil)
	assert.True(t, IsInvalidFormat(err))
}

func TestCheckDependency_CorruptStoredVersion(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, store.WriteProvider(ctx, hive, storage.Provider{Key: "p", Version: "one"}))

	_, err := reg.CheckDependency(ctx, hive, "p", "", "", 0, nil, nil)
	assert.True(t, IsInvalidFormat(err))
}

func TestCheckDependency_AllocationFailure(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.RegisterDependency(ctx, hive, "p", "3.0", "P", 0))

	failing := records.WithAllocator(func(n int) ([]records.Record, error) {
		return nil, errors.New("allocation refused")
	})
	out := records.NewStore(failing)
	seen := dict.NewStringSet(1, dict.CaseInsensitive)

	_, err := reg.CheckDependency(ctx, hive, "p", "", "2.0", 0, seen, out)

	assert.ErrorIs(t, err, records.ErrOutOfMemory)
	assert.Equal(t, 0, out.Len())
	assert.False(t, seen.Exists("p"), "dedup is only updated after the record is stored")
}

func TestRegisterDependency_Overwrites(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.RegisterDependency(ctx, hive, "p", "1.0", "Old", 0))
	require.NoError(t, reg.RegisterDependency(ctx, hive, "P", "2.0", "New", 0))

	res, err := reg.CheckDependency(ctx, hive, "p", "", "", 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "2.0", res.Version)
	assert.Equal(t, "New", res.DisplayName)
}

func TestRegisterDependency_InvalidVersion(t *testing.T) {
	reg, _ := newTestRegistry(t)

	err := reg.RegisterDependency(context.Background(), hive, "p", "1.x", "P", 0)
	assert.True(t, IsInvalidFormat(err))

	err = reg.RegisterDependency(context.Background(), hive, "p", "", "P", 0)
	assert.True(t, IsInvalidFormat(err))
}

func TestUnregisterDependency(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	t.Run("never registered", func(t *testing.T) {
		err := reg.UnregisterDependency(ctx, hive, "ghost")
		assert.ErrorIs(t, err, ErrDependencyNotFound)
	})

	t.Run("register then unregister", func(t *testing.T) {
		require.NoError(t, reg.RegisterDependency(ctx, hive, "p", "1.0", "P", 0))
		require.NoError(t, reg.UnregisterDependency(ctx, hive, "p"))

		_, err := reg.CheckDependency(ctx, hive, "p", "", "", 0, nil, nil)
		assert.ErrorIs(t, err, ErrDependencyNotFound)
	})

	t.Run("dependents do not block", func(t *testing.T) {
		require.NoError(t, reg.RegisterDependency(ctx, hive, "shared", "1.0", "Shared", 0))
		require.NoError(t, reg.RegisterDependent(ctx, hive, "shared", "app", "", "", 0))

		require.NoError(t, reg.UnregisterDependency(ctx, hive, "shared"))

		n, err := reg.CheckDependents(ctx, hive, "shared", 0, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "dependent rows survive the provider")
	})
}

func TestCheckDependents_None(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.RegisterDependency(ctx, hive, "p", "1.0", "P", 0))

	out := records.NewStore()
	n, err := reg.CheckDependents(ctx, hive, "p", 0, nil, out)

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, out.Records())

	n, err = reg.CheckDependents(ctx, hive, "unregistered", 0, nil, out)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCheckDependents_Ignore(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.RegisterDependency(ctx, hive, "P", "1.0", "Provider", 0))
	require.NoError(t, reg.RegisterDependent(ctx, hive, "P", "D1", "1.0", "", 0))

	t.Run("empty ignore set", func(t *testing.T) {
		ignore := dict.NewStringSet(0, dict.CaseInsensitive)
		out := records.NewStore()

		n, err := reg.CheckDependents(ctx, hive, "P", 0, ignore, out)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, []string{"D1"}, out.Keys())
	})

	t.Run("ignored dependent", func(t *testing.T) {
		ignore := dict.NewStringSet(1, dict.CaseInsensitive)
		ignore.AddKey("d1")
		out := records.NewStore()

		n, err := reg.CheckDependents(ctx, hive, "P", 0, ignore, out)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Zero(t, out.Len())
	})

	t.Run("ignore attribute", func(t *testing.T) {
		require.NoError(t, reg.RegisterDependent(ctx, hive, "P", "D2", "", "", storage.AttributeIgnoreDependent))
		out := records.NewStore()

		n, err := reg.CheckDependents(ctx, hive, "P", 0, nil, out)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, []string{"D1"}, out.Keys())
	})
}

func TestCheckDependents_NamesAndOrder(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.RegisterDependency(ctx, hive, "App.B", "1.0", "Application B", 0))
	for _, d := range []string{"App.B", "App.A"} {
		require.NoError(t, reg.RegisterDependent(ctx, hive, "runtime", d, "", "", 0))
	}

	out := records.NewStore()
	require.NoError(t, out.Append("existing", "Existing"))

	n, err := reg.CheckDependents(ctx, hive, "runtime", 0, nil, out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []records.Record{
		{Key: "existing", Name: "Existing"},
		{Key: "App.A"},
		{Key: "App.B", Name: "Application B"},
	}, out.Records())
}

func TestCheckDependents_AllocationFailureLeavesOutUnchanged(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.RegisterDependent(ctx, hive, "p", "d", "", "", 0))

	out := records.NewStore(records.WithGrowth(1), records.WithAllocator(records.LimitedAllocator(1)))
	require.NoError(t, out.Append("existing", ""))

	n, err := reg.CheckDependents(ctx, hive, "p", 0, nil, out)

	assert.ErrorIs(t, err, records.ErrOutOfMemory)
	assert.Zero(t, n)
	assert.Equal(t, []string{"existing"}, out.Keys())
}

func TestRegisterDependent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	t.Run("provider need not exist", func(t *testing.T) {
		require.NoError(t, reg.RegisterDependent(ctx, hive, "absent", "app", "", "", 0))

		n, err := reg.CheckDependents(ctx, hive, "absent", 0, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("invalid bounds", func(t *testing.T) {
		err := reg.RegisterDependent(ctx, hive, "p", "app", "x", "", 0)
		assert.True(t, IsInvalidFormat(err))

		err = reg.RegisterDependent(ctx, hive, "p", "app", "", "1..2", 0)
		assert.True(t, IsInvalidFormat(err))
	})

	t.Run("invalid dependent key", func(t *testing.T) {
		err := reg.RegisterDependent(ctx, hive, "p", "", "", "", 0)
		assert.True(t, IsInvalidFormat(err))
	})
}

func TestUnregisterDependent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	t.Run("neither registered", func(t *testing.T) {
		err := reg.UnregisterDependent(ctx, hive, "p", "d")
		assert.ErrorIs(t, err, ErrDependentNotFound)
		assert.True(t, IsNotFound(err))
	})

	t.Run("dependency registered without dependent", func(t *testing.T) {
		require.NoError(t, reg.RegisterDependency(ctx, hive, "p", "1.0", "P", 0))
		assert.NoError(t, reg.UnregisterDependent(ctx, hive, "p", "d"))
	})

	t.Run("registered dependent", func(t *testing.T) {
		require.NoError(t, reg.RegisterDependent(ctx, hive, "q", "d", "", "", 0))
		require.NoError(t, reg.UnregisterDependent(ctx, hive, "Q", "D"))

		n, err := reg.CheckDependents(ctx, hive, "q", 0, nil, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestHivesAreIndependent(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.RegisterDependency(ctx, storage.HiveUser, "p", "1.0", "P", 0))

	_, err := reg.CheckDependency(ctx, storage.HiveMachine, "p", "", "", 0, nil, nil)
	assert.ErrorIs(t, err, ErrDependencyNotFound)
}

// failingStore returns a store access failure from every operation
type failingStore struct {
	storage.ProviderStore
	err error
}

func (f failingStore) ReadProvider(ctx context.Context, hive storage.Hive, key string) (*storage.Provider, error) {
	return nil, f.err
}

func (f failingStore) EnumerateDependents(ctx context.Context, hive storage.Hive, key string) iter.Seq2[storage.Dependent, error] {
	return func(yield func(storage.Dependent, error) bool) {
		yield(storage.Dependent{}, f.err)
	}
}

func (f failingStore) WriteProvider(ctx context.Context, hive storage.Hive, p storage.Provider) error {
	return f.err
}

func (f failingStore) DeleteProvider(ctx context.Context, hive storage.Hive, key string) error {
	return f.err
}

func (f failingStore) DeleteDependent(ctx context.Context, hive storage.Hive, dependencyKey, dependentKey string) error {
	return f.err
}

func (f failingStore) HealthCheck(ctx context.Context) error {
	return f.err
}

func TestRegistry_StoreAccessFailure(t *testing.T) {
	storeErr := storage.AccessError("read", errors.New("disk unplugged"))
	reg := NewRegistry(failingStore{err: storeErr})
	ctx := context.Background()

	_, err := reg.CheckDependency(ctx, hive, "p", "", "", 0, nil, nil)
	assert.True(t, IsStoreAccess(err))
	assert.False(t, IsNotFound(err))

	_, err = reg.CheckDependents(ctx, hive, "p", 0, nil, nil)
	assert.True(t, IsStoreAccess(err))

	assert.True(t, IsStoreAccess(reg.RegisterDependency(ctx, hive, "p", "1.0", "P", 0)))
	assert.True(t, IsStoreAccess(reg.UnregisterDependency(ctx, hive, "p")))
	assert.True(t, IsStoreAccess(reg.UnregisterDependent(ctx, hive, "p", "d")))
	assert.True(t, IsStoreAccess(reg.HealthCheck(ctx)))
}
