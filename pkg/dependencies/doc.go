// Package dependencies implements the dependency provider registry.
//
// # Overview
//
// Shared installable components ("providers") register a key and a version
// in a hive. Packages that rely on a provider register themselves as its
// dependents. Before removing a provider an installer asks which dependents
// still need it; before relying on one it checks that a suitable version is
// present.
//
// # Usage Example
//
// Check a dependency inside a transaction, recording each out of range
// provider once:
//
//	reg := dependencies.NewRegistry(store, dependencies.WithLogger(logger))
//	seen := dict.NewStringSet(8, dict.CaseInsensitive)
//	out := records.NewStore()
//
//	res, err := reg.CheckDependency(ctx, storage.HiveMachine, "Contoso.Runtime", "1.0", "2.0", 0, seen, out)
//	switch {
//	case dependencies.IsNotFound(err):
//		// nothing registered
//	case err != nil:
//		return err
//	case !res.InRange:
//		// out now lists the provider
//	}
//
// Check dependents before unregistering:
//
//	n, err := reg.CheckDependents(ctx, storage.HiveMachine, "Contoso.Runtime", 0, ignore, out)
//	if err == nil && n == 0 {
//		err = reg.UnregisterDependency(ctx, storage.HiveMachine, "Contoso.Runtime")
//	}
//
// # Errors
//
// Errors are classified with IsNotFound, IsInvalidFormat and IsStoreAccess.
// A missing provider is an expected branch for most callers.
//
// # HTTP
//
// Handlers serves the same operations under /hives/{hive}/providers/{key}.
//
// # Related Packages
//
//   - pkg/storage: ProviderStore and its backends
//   - pkg/version: Version parsing and range matching
//   - pkg/records: Output record collections
//   - pkg/dict: Dedup and ignore sets
package dependencies
