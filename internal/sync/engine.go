package sync

import (
	"context"
	"strings"
	"time"

	"github.com/drivesink/drivesink/internal/acl"
	"github.com/drivesink/drivesink/internal/logging"
	"github.com/drivesink/drivesink/internal/sink"
	"github.com/drivesink/drivesink/internal/types"
	"github.com/drivesink/drivesink/internal/utils"
)

// Engine reconciles the source tree into the sink. One Engine may serve many
// runs; each run is serialized per target key.
type Engine struct {
	source Source
	sink   Sink
	logger logging.Logger
}

// NewEngine creates a reconciliation engine.
func NewEngine(source Source, sinkStore Sink, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Engine{source: source, sink: sinkStore, logger: logger}
}

// Run executes one reconciliation pass and returns its statistics. Per-file
// failures are counted and logged but never abort the run; only setup and
// change-feed failures do. Statistics accumulated before a fatal error are
// returned alongside it.
func (e *Engine) Run(ctx context.Context, cfg RunConfig) (*types.RunStatistics, error) {
	lock := runLocks.get(cfg.TargetKey)
	lock.Lock()
	defer lock.Unlock()

	stats := &types.RunStatistics{}
	err := e.run(ctx, cfg, stats)
	e.logSummary(cfg, stats, err)
	return stats, err
}

func (e *Engine) run(ctx context.Context, cfg RunConfig, stats *types.RunStatistics) error {
	resumeToken := ""
	if cfg.ForceFullSync {
		stats.Strategy = types.StrategyFull
	} else {
		state, err := e.sink.ReadState(ctx)
		if err != nil {
			return err
		}
		if state != nil && state.ResumeToken != "" {
			resumeToken = state.ResumeToken
			stats.Strategy = types.StrategyDeltaIncremental
		} else {
			stats.Strategy = types.StrategyDeltaInitial
		}
	}

	e.logger.Info("sync run starting",
		logging.F("strategy", stats.Strategy),
		logging.F("dryRun", cfg.DryRun),
		logging.F("deleteOrphanedObjects", cfg.DeleteOrphanedObjects),
		logging.F("syncPermissions", cfg.SyncPermissions),
	)

	var err error
	if stats.Strategy == types.StrategyFull {
		err = e.runFull(ctx, cfg, stats)
	} else {
		err = e.runDelta(ctx, cfg, stats, resumeToken)
	}
	if err != nil {
		return err
	}

	if cfg.SyncPermissions {
		if err := e.runPermissions(ctx, cfg, stats); err != nil {
			return err
		}
	}
	return nil
}

// runDelta consumes the change feed from resumeToken and applies every
// record. The new token is persisted only when the feed produced a final one,
// and only after all records were attempted.
func (e *Engine) runDelta(ctx context.Context, cfg RunConfig, stats *types.RunStatistics, resumeToken string) error {
	batch, err := e.source.Changes(ctx, resumeToken)
	if err != nil {
		return err
	}

	// Built on demand for delete records that carry no path
	var itemIndex map[string][]string

	for i := range batch.Records {
		if err := cancelled(ctx); err != nil {
			return err
		}
		record := batch.Records[i]

		switch record.Kind {
		case types.ChangeUpserted:
			if record.IsContainer {
				continue
			}
			stats.FilesScanned++
			if record.File == nil {
				stats.FilesFailed++
				e.logger.Warn("upsert record missing file payload",
					logging.F("itemId", record.ItemID),
				)
				continue
			}
			n, err := e.transfer(ctx, cfg, record.File)
			if err != nil {
				stats.FilesFailed++
				e.logger.Warn("file transfer failed",
					logging.F("path", record.ItemPath),
					logging.F("itemId", record.ItemID),
					logging.F("error", err.Error()),
				)
				continue
			}
			stats.FilesAdded++
			stats.BytesTransferred += n

		case types.ChangeDeleted:
			stats.FilesScanned++
			if !cfg.DeleteOrphanedObjects {
				continue
			}

			var names []string
			if record.ItemPath != "" {
				names = []string{sink.ObjectName(cfg.ObjectPrefix, record.ItemPath)}
			} else {
				if itemIndex == nil {
					itemIndex, err = e.buildItemIndex(ctx, cfg.ObjectPrefix)
					if err != nil {
						return err
					}
				}
				names = itemIndex[record.ItemID]
			}
			if len(names) == 0 {
				continue
			}

			for _, name := range names {
				if err := e.sink.Delete(ctx, name, cfg.DryRun); err != nil {
					stats.FilesFailed++
					e.logger.Warn("object delete failed",
						logging.F("object", name),
						logging.F("error", err.Error()),
					)
					continue
				}
				stats.FilesDeleted++
			}
		}
	}

	if batch.ResumeToken != "" {
		if err := e.sink.WriteState(ctx, batch.ResumeToken, cfg.DryRun); err != nil {
			// The next run repeats from the old token, which is safe
			e.logger.Error("failed to persist resume token", logging.F("error", err.Error()))
		}
	}
	return nil
}

// buildItemIndex maps stored source item ids to object names, for resolving
// delete records that arrive without a path.
func (e *Engine) buildItemIndex(ctx context.Context, prefix string) (map[string][]string, error) {
	objects, err := e.sink.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	index := make(map[string][]string)
	for name, obj := range objects {
		if !inScope(prefix, name) {
			continue
		}
		if id := metaValue(obj.Metadata, types.MetaSourceItemID); id != "" {
			index[id] = append(index[id], name)
		}
	}
	return index, nil
}

// inScope reports whether an object name lives under the configured prefix.
// Objects outside the prefix belong to other tenants of the bucket and are
// never touched.
func inScope(prefix, name string) bool {
	if prefix == "" {
		return true
	}
	return strings.HasPrefix(name, prefix+"/")
}

// runFull lists both sides and reconciles them object by object.
func (e *Engine) runFull(ctx context.Context, cfg RunConfig, stats *types.RunStatistics) error {
	existing, err := e.sink.ListAll(ctx)
	if err != nil {
		return err
	}
	files, err := e.source.ListAll(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(files))
	for i := range files {
		if err := cancelled(ctx); err != nil {
			return err
		}
		f := files[i]
		stats.FilesScanned++
		name := sink.ObjectName(cfg.ObjectPrefix, f.Path)
		seen[name] = true

		obj, exists := existing[name]
		if exists && !shouldUpdate(obj, f.LastModified, f.ContentHash) {
			stats.FilesUnchanged++
			continue
		}

		n, err := e.transfer(ctx, cfg, &f)
		if err != nil {
			stats.FilesFailed++
			e.logger.Warn("file transfer failed",
				logging.F("path", f.Path),
				logging.F("itemId", f.ID),
				logging.F("error", err.Error()),
			)
			continue
		}
		if exists {
			stats.FilesUpdated++
		} else {
			stats.FilesAdded++
		}
		stats.BytesTransferred += n
	}

	if cfg.DeleteOrphanedObjects {
		for name := range existing {
			if seen[name] || !inScope(cfg.ObjectPrefix, name) {
				continue
			}
			if err := cancelled(ctx); err != nil {
				return err
			}
			if err := e.sink.Delete(ctx, name, cfg.DryRun); err != nil {
				stats.FilesFailed++
				e.logger.Warn("orphan delete failed",
					logging.F("object", name),
					logging.F("error", err.Error()),
				)
				continue
			}
			stats.FilesDeleted++
		}
	}
	return nil
}

// transfer downloads one file and uploads it with its source metadata.
func (e *Engine) transfer(ctx context.Context, cfg RunConfig, f *types.SourceFile) (int64, error) {
	content, err := e.source.Download(ctx, f.ID)
	if err != nil {
		return 0, err
	}
	defer content.Close()

	name := sink.ObjectName(cfg.ObjectPrefix, f.Path)
	return e.sink.Upload(ctx, name, content, sourceMetadata(f), cfg.DryRun)
}

func sourceMetadata(f *types.SourceFile) map[string]string {
	meta := map[string]string{types.MetaSourceItemID: f.ID}
	if !f.LastModified.IsZero() {
		meta[types.MetaSourceLastModified] = f.LastModified.UTC().Format(time.RFC3339)
	}
	if f.ContentHash != "" {
		meta[types.MetaSourceContentHash] = f.ContentHash
	}
	return meta
}

// runPermissions re-lists every source file and rewrites each object's
// permission metadata. Permissions never come from the change feed; a file
// whose ACL changed without a content change produces no feed record.
func (e *Engine) runPermissions(ctx context.Context, cfg RunConfig, stats *types.RunStatistics) error {
	files, err := e.source.ListAll(ctx)
	if err != nil {
		return err
	}

	for i := range files {
		if err := cancelled(ctx); err != nil {
			return err
		}
		f := files[i]

		entries, err := e.source.Permissions(ctx, f.ID)
		if err != nil {
			stats.PermissionsFailed++
			e.logger.Warn("permission fetch failed",
				logging.F("path", f.Path),
				logging.F("error", err.Error()),
			)
			continue
		}

		reduced := acl.Reduce(entries)
		meta := acl.Metadata(reduced, entries, time.Now())
		name := sink.ObjectName(cfg.ObjectPrefix, f.Path)
		if err := e.sink.UpdateMetadata(ctx, name, meta, cfg.DryRun); err != nil {
			stats.PermissionsFailed++
			e.logger.Warn("permission metadata write failed",
				logging.F("object", name),
				logging.F("error", err.Error()),
			)
			continue
		}
		stats.PermissionsSynced++
	}
	return nil
}

func (e *Engine) logSummary(cfg RunConfig, stats *types.RunStatistics, err error) {
	fields := []logging.Field{
		logging.F("strategy", stats.Strategy),
		logging.F("scanned", stats.FilesScanned),
		logging.F("added", stats.FilesAdded),
		logging.F("updated", stats.FilesUpdated),
		logging.F("deleted", stats.FilesDeleted),
		logging.F("unchanged", stats.FilesUnchanged),
		logging.F("failed", stats.FilesFailed),
		logging.F("bytesTransferred", stats.BytesTransferred),
		logging.F("permissionsSynced", stats.PermissionsSynced),
		logging.F("permissionsFailed", stats.PermissionsFailed),
		logging.F("dryRun", cfg.DryRun),
	}
	switch {
	case err != nil:
		e.logger.Error("sync run aborted", append(fields, logging.F("error", err.Error()))...)
	case stats.HasFailures():
		e.logger.Warn("sync run completed with failures", fields...)
	default:
		e.logger.Info("sync run completed", fields...)
	}
}

func cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return utils.WrapAppError(
			utils.NewSyncError(utils.ErrCodeCancelled, "sync run cancelled").Build(), err)
	}
	return nil
}
