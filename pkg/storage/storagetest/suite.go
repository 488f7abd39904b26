// Package storagetest provides a conformance suite every storage.ProviderStore
// backend runs from its own tests.
package storagetest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/depreg/pkg/storage"
)

// Factory returns a fresh, empty store. Cleanup is registered on t.
type Factory func(t *testing.T) storage.ProviderStore

// Collect drains a dependents enumeration
func Collect(t *testing.T, store storage.ProviderStore, hive storage.Hive, key string) []storage.Dependent {
	t.Helper()

	var out []storage.Dependent
	for dep, err := range store.EnumerateDependents(context.Background(), hive, key) {
		require.NoError(t, err)
		out = append(out, dep)
	}
	return out
}

// Run executes the conformance suite against stores built by newStore
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("ReadMissingProvider", func(t *testing.T) {
		store := newStore(t)

		_, err := store.ReadProvider(ctx, storage.HiveMachine, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = store.ReadProviderVersion(ctx, storage.HiveMachine, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("WriteAndReadProvider", func(t *testing.T) {
		store := newStore(t)

		provider := storage.Provider{
			Key:         "Contoso.Runtime",
			Version:     "1.2.3.4",
			DisplayName: "Contoso Runtime",
			Attributes:  storage.Attributes(0x40),
		}
		require.NoError(t, store.WriteProvider(ctx, storage.HiveMachine, provider))

		got, err := store.ReadProvider(ctx, storage.HiveMachine, "contoso.runtime")
		require.NoError(t, err)
		assert.Equal(t, provider, *got)

		version, err := store.ReadProviderVersion(ctx, storage.HiveMachine, "CONTOSO.RUNTIME")
		require.NoError(t, err)
		assert.Equal(t, "1.2.3.4", version)
	})

	t.Run("WriteProviderOverwrites", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.WriteProvider(ctx, storage.HiveUser, storage.Provider{Key: "p", Version: "1.0", DisplayName: "old"}))
		require.NoError(t, store.WriteProvider(ctx, storage.HiveUser, storage.Provider{Key: "P", Version: "2.0", DisplayName: "new"}))

		got, err := store.ReadProvider(ctx, storage.HiveUser, "p")
		require.NoError(t, err)
		assert.Equal(t, "2.0", got.Version)
		assert.Equal(t, "new", got.DisplayName)
	})

	t.Run("HivesArePartitioned", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.WriteProvider(ctx, storage.HiveUser, storage.Provider{Key: "p", Version: "1.0"}))

		_, err := store.ReadProvider(ctx, storage.HiveMachine, "p")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("DeleteProvider", func(t *testing.T) {
		store := newStore(t)

		err := store.DeleteProvider(ctx, storage.HiveMachine, "p")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		require.NoError(t, store.WriteProvider(ctx, storage.HiveMachine, storage.Provider{Key: "p", Version: "1.0"}))
		require.NoError(t, store.DeleteProvider(ctx, storage.HiveMachine, "P"))

		_, err = store.ReadProvider(ctx, storage.HiveMachine, "p")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("DeleteProviderKeepsDependents", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.WriteProvider(ctx, storage.HiveMachine, storage.Provider{Key: "p", Version: "1.0"}))
		require.NoError(t, store.WriteDependent(ctx, storage.HiveMachine, "p", storage.Dependent{Key: "d"}))
		require.NoError(t, store.DeleteProvider(ctx, storage.HiveMachine, "p"))

		deps := Collect(t, store, storage.HiveMachine, "p")
		require.Len(t, deps, 1)
		assert.Equal(t, "d", deps[0].Key)
	})

	t.Run("EnumerateNoDependents", func(t *testing.T) {
		store := newStore(t)

		assert.Empty(t, Collect(t, store, storage.HiveMachine, "nobody"))

		require.NoError(t, store.WriteProvider(ctx, storage.HiveMachine, storage.Provider{Key: "p", Version: "1.0"}))
		assert.Empty(t, Collect(t, store, storage.HiveMachine, "p"))
	})

	t.Run("EnumerateDependents", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.WriteDependent(ctx, storage.HiveMachine, "p", storage.Dependent{
			Key: "Bravo", MinVersion: "1.0", MaxVersion: "2.0", Attributes: storage.AttributeIgnoreDependent,
		}))
		require.NoError(t, store.WriteDependent(ctx, storage.HiveMachine, "P", storage.Dependent{Key: "alpha"}))
		require.NoError(t, store.WriteDependent(ctx, storage.HiveUser, "p", storage.Dependent{Key: "charlie"}))

		deps := Collect(t, store, storage.HiveMachine, "p")
		require.Len(t, deps, 2)
		assert.Equal(t, storage.Dependent{Key: "alpha"}, deps[0])
		assert.Equal(t, storage.Dependent{
			Key: "Bravo", MinVersion: "1.0", MaxVersion: "2.0", Attributes: storage.AttributeIgnoreDependent,
		}, deps[1])

		// Each call restarts the enumeration.
		assert.Len(t, Collect(t, store, storage.HiveMachine, "p"), 2)
	})

	t.Run("EnumerateStopsEarly", func(t *testing.T) {
		store := newStore(t)

		for _, key := range []string{"a", "b", "c"} {
			require.NoError(t, store.WriteDependent(ctx, storage.HiveMachine, "p", storage.Dependent{Key: key}))
		}

		seen := 0
		for _, err := range store.EnumerateDependents(ctx, storage.HiveMachine, "p") {
			require.NoError(t, err)
			seen++
			if seen == 1 {
				break
			}
		}
		assert.Equal(t, 1, seen)
	})

	t.Run("WriteDependentOverwrites", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.WriteDependent(ctx, storage.HiveMachine, "p", storage.Dependent{Key: "d", MinVersion: "1.0"}))
		require.NoError(t, store.WriteDependent(ctx, storage.HiveMachine, "p", storage.Dependent{Key: "D", MaxVersion: "3.0"}))

		deps := Collect(t, store, storage.HiveMachine, "p")
		require.Len(t, deps, 1)
		assert.Equal(t, storage.Dependent{Key: "D", MaxVersion: "3.0"}, deps[0])
	})

	t.Run("DeleteDependent", func(t *testing.T) {
		store := newStore(t)

		err := store.DeleteDependent(ctx, storage.HiveMachine, "p", "d")
		assert.ErrorIs(t, err, storage.ErrNotFound, "neither row exists")

		require.NoError(t, store.WriteDependent(ctx, storage.HiveMachine, "p", storage.Dependent{Key: "d"}))
		require.NoError(t, store.DeleteDependent(ctx, storage.HiveMachine, "P", "D"))
		assert.Empty(t, Collect(t, store, storage.HiveMachine, "p"))

		err = store.DeleteDependent(ctx, storage.HiveMachine, "p", "d")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("DeleteDependentWithProviderPresent", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.WriteProvider(ctx, storage.HiveMachine, storage.Provider{Key: "p", Version: "1.0"}))
		assert.NoError(t, store.DeleteDependent(ctx, storage.HiveMachine, "p", "never-registered"))

		_, err := store.ReadProvider(ctx, storage.HiveMachine, "p")
		assert.NoError(t, err)
	})

	t.Run("InvalidKeys", func(t *testing.T) {
		store := newStore(t)

		_, err := store.ReadProvider(ctx, storage.HiveMachine, "")
		assert.ErrorIs(t, err, storage.ErrInvalidKey)

		err = store.WriteProvider(ctx, storage.HiveMachine, storage.Provider{Key: `a\b`, Version: "1.0"})
		assert.ErrorIs(t, err, storage.ErrInvalidKey)

		err = store.WriteDependent(ctx, storage.HiveMachine, "p", storage.Dependent{Key: "a/b"})
		assert.ErrorIs(t, err, storage.ErrInvalidKey)

		err = store.DeleteProvider(ctx, storage.Hive("nowhere"), "p")
		assert.ErrorIs(t, err, storage.ErrInvalidHive)
	})

	t.Run("LongestKeys", func(t *testing.T) {
		store := newStore(t)
		providerKey := strings.Repeat("P", storage.MaxKeyLength)
		dependentKey := strings.Repeat("d", storage.MaxKeyLength)

		require.NoError(t, store.WriteProvider(ctx, storage.HiveMachine, storage.Provider{Key: providerKey, Version: "1.0"}))
		require.NoError(t, store.WriteDependent(ctx, storage.HiveMachine, providerKey, storage.Dependent{Key: dependentKey}))

		version, err := store.ReadProviderVersion(ctx, storage.HiveMachine, providerKey)
		require.NoError(t, err)
		assert.Equal(t, "1.0", version)

		deps := Collect(t, store, storage.HiveMachine, providerKey)
		require.Len(t, deps, 1)
		assert.Equal(t, dependentKey, deps[0].Key)

		assert.NoError(t, store.DeleteDependent(ctx, storage.HiveMachine, providerKey, dependentKey))
		assert.NoError(t, store.DeleteProvider(ctx, storage.HiveMachine, providerKey))
	})

	t.Run("OverlongKeys", func(t *testing.T) {
		store := newStore(t)

		err := store.WriteDependent(ctx, storage.HiveMachine, "p", storage.Dependent{Key: strings.Repeat("d", storage.MaxKeyLength+1)})
		assert.ErrorIs(t, err, storage.ErrInvalidKey)

		// Lower-casing U+023A takes 2 bytes to 3.
		err = store.WriteProvider(ctx, storage.HiveMachine, storage.Provider{Key: strings.Repeat("\u023a", 120), Version: "1.0"})
		assert.ErrorIs(t, err, storage.ErrInvalidKey)
	})

	t.Run("HealthCheck", func(t *testing.T) {
		store := newStore(t)
		assert.NoError(t, store.HealthCheck(ctx))
		assert.NotEmpty(t, store.Name())
	})
}
