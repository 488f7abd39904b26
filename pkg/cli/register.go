package cli

import (
	"context"

	"github.com/platinummonkey/depreg/pkg/storage"
)

// writeOutput is printed after a successful register or unregister
type writeOutput struct {
	Status    string `json:"status"`
	Hive      string `json:"hive"`
	Key       string `json:"key"`
	Dependent string `json:"dependent,omitempty"`
}

func newRegisterCommand(a *app) *Command {
	cmd := &Command{
		Name:        "register",
		Description: "Register or update a provider",
		Flags:       newFlagSet(a, "register"),
	}

	sf := addStoreFlags(cmd.Flags)
	key := cmd.Flags.String("key", "", "Provider key")
	providerVersion := cmd.Flags.String("version", "", "Provider version (major.minor.build.revision)")
	displayName := cmd.Flags.String("display-name", "", "Provider display name")
	attributes := cmd.Flags.Int("attributes", 0, "Provider attributes")

	cmd.Run = func(args []string) error {
		if err := parseFlags(cmd.Flags, args); err != nil {
			return err
		}
		if err := required("key", *key); err != nil {
			return err
		}
		if err := required("version", *providerVersion); err != nil {
			return err
		}

		ctx := context.Background()
		s, err := a.open(ctx, sf)
		if err != nil {
			return err
		}
		defer s.Close()

		err = s.registry.RegisterDependency(ctx, s.hive, *key, *providerVersion, *displayName, storage.Attributes(*attributes))
		if err != nil {
			return err
		}
		return a.writeJSON(writeOutput{Status: "registered", Hive: string(s.hive), Key: *key})
	}

	return cmd
}

func newRegisterDependentCommand(a *app) *Command {
	cmd := &Command{
		Name:        "register-dependent",
		Description: "Record that a dependent requires a provider",
		Flags:       newFlagSet(a, "register-dependent"),
	}

	sf := addStoreFlags(cmd.Flags)
	key := cmd.Flags.String("key", "", "Provider key")
	dependent := cmd.Flags.String("dependent", "", "Dependent key")
	minVersion := cmd.Flags.String("min", "", "Minimum version, inclusive")
	maxVersion := cmd.Flags.String("max", "", "Maximum version, inclusive")
	attributes := cmd.Flags.Int("attributes", 0, "Dependent attributes")

	cmd.Run = func(args []string) error {
		if err := parseFlags(cmd.Flags, args); err != nil {
			return err
		}
		if err := required("key", *key); err != nil {
			return err
		}
		if err := required("dependent", *dependent); err != nil {
			return err
		}

		ctx := context.Background()
		s, err := a.open(ctx, sf)
		if err != nil {
			return err
		}
		defer s.Close()

		err = s.registry.RegisterDependent(ctx, s.hive, *key, *dependent, *minVersion, *maxVersion, storage.Attributes(*attributes))
		if err != nil {
			return err
		}
		return a.writeJSON(writeOutput{Status: "registered", Hive: string(s.hive), Key: *key, Dependent: *dependent})
	}

	return cmd
}

func newUnregisterCommand(a *app) *Command {
	cmd := &Command{
		Name:        "unregister",
		Description: "Remove a provider",
		Flags:       newFlagSet(a, "unregister"),
	}

	sf := addStoreFlags(cmd.Flags)
	key := cmd.Flags.String("key", "", "Provider key")

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

		if err := s.registry.UnregisterDependency(ctx, s.hive, *key); err != nil {
			return err
		}
		return a.writeJSON(writeOutput{Status: "unregistered", Hive: string(s.hive), Key: *key})
	}

	return cmd
}

func newUnregisterDependentCommand(a *app) *Command {
	cmd := &Command{
		Name:        "unregister-dependent",
		Description: "Remove a dependent from a provider",
		Flags:       newFlagSet(a, "unregister-dependent"),
	}

	sf := addStoreFlags(cmd.Flags)
	key := cmd.Flags.String("key", "", "Provider key")
	dependent := cmd.Flags.String("dependent", "", "Dependent key")

	cmd.Run = func(args []string) error {
		if err := parseFlags(cmd.Flags, args); err != nil {
			return err
		}
		if err := required("key", *key); err != nil {
			return err
		}
		if err := required("dependent", *dependent); err != nil {
			return err
		}

		ctx := context.Background()
		s, err := a.open(ctx, sf)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.registry.UnregisterDependent(ctx, s.hive, *key, *dependent); err != nil {
			return err
		}
		return a.writeJSON(writeOutput{Status: "unregistered", Hive: string(s.hive), Key: *key, Dependent: *dependent})
	}

	return cmd
}
