package cli

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"github.com/drivesink/drivesink/internal/api"
	"github.com/drivesink/drivesink/internal/auth"
	"github.com/drivesink/drivesink/internal/config"
	"github.com/drivesink/drivesink/internal/logging"
	"github.com/drivesink/drivesink/internal/sink"
	"github.com/drivesink/drivesink/internal/source"
	"github.com/drivesink/drivesink/internal/sync"
)

// loadConfig merges the config file, environment and CLI flags.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if globalFlags.Config != "" {
		cfg, err = config.LoadFromPath(globalFlags.Config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if globalFlags.Profile != "" {
		cfg.Profile = globalFlags.Profile
	}
	if globalFlags.SourceRootID != "" {
		cfg.SourceRootID = globalFlags.SourceRootID
	}
	if globalFlags.SinkBucket != "" {
		cfg.SinkBucket = globalFlags.SinkBucket
	}
	if globalFlags.ObjectPrefix != "" {
		cfg.ObjectPrefix = globalFlags.ObjectPrefix
	}
	cfg.DefaultOutputFormat = globalFlags.OutputFormat

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildTarget wires the source and sink adapters into an engine.
func buildTarget(ctx context.Context, cfg *config.Config, logger logging.Logger) (*sync.Engine, sync.RunConfig, func(), error) {
	store, err := credentialStore()
	if err != nil {
		return nil, sync.RunConfig{}, nil, err
	}
	provider := auth.NewProvider(cfg.CredentialsFile, cfg.Profile, store, logger)

	driveSvc, err := provider.NewDriveService(ctx)
	if err != nil {
		return nil, sync.RunConfig{}, nil, fmt.Errorf("failed to connect to source: %w", err)
	}
	client := api.NewClient(driveSvc, cfg.MaxRetries, cfg.RetryBaseDelay, logger)
	src := source.NewManager(client, cfg.Profile, cfg.SourceRootID, logger)

	opts, err := provider.ClientOptions(ctx, storage.ScopeReadWrite)
	if err != nil {
		return nil, sync.RunConfig{}, nil, err
	}
	sinkStore, err := sink.NewGCS(ctx, cfg.SinkBucket, cfg.ObjectPrefix, opts, logger)
	if err != nil {
		return nil, sync.RunConfig{}, nil, err
	}

	engine := sync.NewEngine(src, sinkStore, logger)
	runCfg := sync.RunConfig{
		TargetKey:             cfg.SourceRootID + "|" + cfg.SinkBucket,
		ObjectPrefix:          cfg.ObjectPrefix,
		DryRun:                cfg.DryRun,
		DeleteOrphanedObjects: cfg.DeleteOrphanedObjects,
		SyncPermissions:       cfg.SyncPermissions,
	}
	cleanup := func() { _ = sinkStore.Close() }
	return engine, runCfg, cleanup, nil
}

// credentialStore picks the keyring when present, otherwise plain files under
// the config directory.
func credentialStore() (auth.StorageBackend, error) {
	baseDir, err := auth.DefaultStorageDir()
	if err != nil {
		return nil, err
	}
	return auth.NewStorageBackend(auth.ServiceName, baseDir), nil
}
