package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/depreg/pkg/audit"
	"github.com/platinummonkey/depreg/pkg/config"
	"github.com/platinummonkey/depreg/pkg/dependencies"
	"github.com/platinummonkey/depreg/pkg/observability"
	"github.com/platinummonkey/depreg/pkg/storage"
	"github.com/platinummonkey/depreg/pkg/storage/factory"
	"github.com/platinummonkey/depreg/pkg/version"
)

// storeFlags are shared by every command that opens the provider store
type storeFlags struct {
	configFile string
	hive       string
}

func addStoreFlags(fs *flag.FlagSet) *storeFlags {
	sf := &storeFlags{}
	fs.StringVar(&sf.configFile, "config", "", "YAML configuration file (default $"+config.ConfigFileEnv+")")
	fs.StringVar(&sf.hive, "hive", "", "Registry hive: machine or user (default from configuration)")
	return sf
}

// configPath is -config, falling back to $DEPREG_CONFIG_FILE
func (sf *storeFlags) configPath() string {
	if sf.configFile != "" {
		return sf.configFile
	}
	return os.Getenv(config.ConfigFileEnv)
}

// loadConfig reads configuration from configPath and the environment
func (sf *storeFlags) loadConfig() (*config.Config, error) {
	return config.LoadConfigFile(sf.configPath())
}

// session is an open registry with the hive a command operates on
type session struct {
	store    storage.ProviderStore
	auditor  audit.Logger
	registry *dependencies.Registry
	hive     storage.Hive
}

// open loads configuration and opens the provider store behind a registry
func (a *app) open(ctx context.Context, sf *storeFlags) (*session, error) {
	cfg, err := sf.loadConfig()
	if err != nil {
		return nil, err
	}

	hive := cfg.DefaultHive()
	if sf.hive != "" {
		if hive, err = storage.ParseHive(sf.hive); err != nil {
			return nil, err
		}
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, a.stderr)
	auditor, err := openAuditLogger(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := factory.Open(ctx, cfg.Storage, nil, logger)
	if err != nil {
		auditor.Close()
		return nil, err
	}

	return &session{
		store:    store,
		auditor:  auditor,
		registry: newRegistry(cfg, store, auditor, logger),
		hive:     hive,
	}, nil
}

func (s *session) Close() error {
	return errors.Join(s.store.Close(), s.auditor.Close())
}

func newRegistry(cfg *config.Config, store storage.ProviderStore, auditor audit.Logger, logger logrus.FieldLogger) *dependencies.Registry {
	opts := []dependencies.Option{
		dependencies.WithLogger(logger),
		dependencies.WithMatcher(version.NewMatcher(cfg.Registry.VersionCacheSize)),
		dependencies.WithAuditLogger(auditor),
	}

	if cfg.Observability.OTel.Enabled {
		metrics, err := observability.NewOTelMetrics(nil)
		if err != nil {
			logger.WithError(err).Warn("Registry check metrics disabled")
		} else {
			opts = append(opts, dependencies.WithRecorder(metrics))
		}
	}

	return dependencies.NewRegistry(store, opts...)
}

// openAuditLogger builds the configured audit destinations
func openAuditLogger(cfg *config.Config, logger logrus.FieldLogger) (audit.Logger, error) {
	if !cfg.Audit.Enabled {
		return audit.NoOpLogger{}, nil
	}

	var loggers []audit.Logger
	if cfg.Audit.File.BasePath != "" {
		fileCfg := cfg.Audit.File
		fileCfg.Logger = logger
		fileLogger, err := audit.NewFileLogger(fileCfg)
		if err != nil {
			return nil, err
		}
		loggers = append(loggers, fileLogger)
	}
	if cfg.Audit.Log {
		loggers = append(loggers, audit.NewLogrusLogger(logger))
	}
	return audit.NewMultiLogger(loggers...), nil
}

// parseFlags parses args and rejects stray positional arguments
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return nil
}

// listFlag collects a repeatable, comma separated flag
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*l = append(*l, v)
		}
	}
	return nil
}

func newFlagSet(a *app, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func required(name, value string) error {
	if value == "" {
		return fmt.Errorf("-%s is required", name)
	}
	return nil
}
