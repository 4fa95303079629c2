package sync

import (
	"context"
	"io"

	"github.com/drivesink/drivesink/internal/types"
)

// Source is the change-feed side of a reconciliation run.
type Source interface {
	// ListAll returns every file under the configured root, recursively.
	ListAll(ctx context.Context) ([]types.SourceFile, error)

	// Changes returns all records since resumeToken, following pagination
	// until the feed hands back a final token. An empty token means the
	// feed starts from scratch.
	Changes(ctx context.Context, resumeToken string) (*types.ChangeBatch, error)

	// Download opens a file's content.
	Download(ctx context.Context, itemID string) (io.ReadCloser, error)

	// Permissions lists a file's access entries.
	Permissions(ctx context.Context, itemID string) ([]types.AccessEntry, error)
}

// Sink is the object-store side of a reconciliation run.
type Sink interface {
	ListAll(ctx context.Context) (map[string]types.SinkObject, error)
	Upload(ctx context.Context, name string, content io.Reader, metadata map[string]string, dryRun bool) (int64, error)
	Delete(ctx context.Context, name string, dryRun bool) error
	ReadState(ctx context.Context) (*types.ResumeState, error)
	WriteState(ctx context.Context, resumeToken string, dryRun bool) error
	UpdateMetadata(ctx context.Context, name string, additional map[string]string, dryRun bool) error
}

// RunConfig carries the per-run knobs.
type RunConfig struct {
	// TargetKey identifies the source/sink pair for run mutual exclusion
	TargetKey string

	// ObjectPrefix is prepended to every object name
	ObjectPrefix string

	ForceFullSync         bool
	DryRun                bool
	DeleteOrphanedObjects bool
	SyncPermissions       bool
}
