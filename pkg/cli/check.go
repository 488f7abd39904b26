package cli

import (
	"context"

	"github.com/platinummonkey/depreg/pkg/dependencies"
	"github.com/platinummonkey/depreg/pkg/dict"
	"github.com/platinummonkey/depreg/pkg/records"
	"github.com/platinummonkey/depreg/pkg/storage"
)

// checkOutput is printed by check. Records holds the provider when its
// version is outside the requested range.
type checkOutput struct {
	Key string `json:"key"`
	dependencies.CheckResult
	Records []records.Record `json:"records,omitempty"`
}

// notFoundOutput is printed by check when no provider is registered
type notFoundOutput struct {
	Found bool `json:"found"`
}

// dependentsOutput is printed by check-dependents
type dependentsOutput struct {
	Key        string           `json:"key"`
	Count      int              `json:"count"`
	Dependents []records.Record `json:"dependents"`
}

func newCheckCommand(a *app) *Command {
	cmd := &Command{
		Name:        "check",
		Description: "Check that a provider is registered within a version range",
		Flags:       newFlagSet(a, "check"),
	}

	sf := addStoreFlags(cmd.Flags)
	key := cmd.Flags.String("key", "", "Provider key")
	minVersion := cmd.Flags.String("min", "", "Minimum version, inclusive")
	maxVersion := cmd.Flags.String("max", "", "Maximum version, inclusive")
	attributes := cmd.Flags.Int("attributes", 0, "Check attributes")

	cmd.Run = func(args []string) error {
		if err := parseFlags(cmd.Flags, args); err != nil {
			return err
		}
		if err := required("key", *key); err != nil {
			return err
		}

		ctx := context.Background()
		s, err := a.open(ctx, sf)
		if err != nil {
			return err
		}
		defer s.Close()

		out := records.NewStore()
		defer out.Free()

		result, err := s.registry.CheckDependency(ctx, s.hive, *key, *minVersion, *maxVersion,
			storage.Attributes(*attributes), nil, out)
		if dependencies.IsNotFound(err) {
			return a.writeJSON(notFoundOutput{Found: false})
		} else if err != nil {
			return err
		}

		return a.writeJSON(checkOutput{Key: *key, CheckResult: result, Records: out.Records()})
	}

	return cmd
}

func newCheckDependentsCommand(a *app) *Command {
	cmd := &Command{
		Name:        "check-dependents",
		Description: "List the dependents that still require a provider",
		Flags:       newFlagSet(a, "check-dependents"),
	}

	sf := addStoreFlags(cmd.Flags)
	key := cmd.Flags.String("key", "", "Provider key")
	attributes := cmd.Flags.Int("attributes", 0, "Check attributes")
	var ignoreKeys listFlag
	cmd.Flags.Var(&ignoreKeys, "ignore", "Dependent key to ignore; repeatable or comma separated")

	cmd.Run = func(args []string) error {
		if err := parseFlags(cmd.Flags, args); err != nil {
			return err
		}
		if err := required("key", *key); err != nil {
			return err
		}

		ctx := context.Background()
		s, err := a.open(ctx, sf)
		if err != nil {
			return err
		}
		defer s.Close()

		keys := []string(ignoreKeys)
		ignore := dict.NewEmbeddedSet(len(keys), &keys, func(k *string) string { return *k }, dict.CaseInsensitive)
		defer ignore.Destroy()
		ignore.AddAll()

		out := records.NewStore()
		defer out.Free()

		count, err := s.registry.CheckDependents(ctx, s.hive, *key, storage.Attributes(*attributes), ignore, out)
		if err != nil {
			return err
		}

		return a.writeJSON(dependentsOutput{Key: *key, Count: count, Dependents: out.Records()})
	}

	return cmd
}
