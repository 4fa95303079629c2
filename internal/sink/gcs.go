package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/drivesink/drivesink/internal/logging"
	"github.com/drivesink/drivesink/internal/types"
	"github.com/drivesink/drivesink/internal/utils"
)

// StateObjectName is the well-known object holding cross-run resume state.
const StateObjectName = ".drivesink/state.json"

// deprecatedMetadataKeys are legacy permission key spellings stripped before
// every metadata merge. The misspelled entry is intentional; objects written
// by old versions carry it and must still be cleaned.
var deprecatedMetadataKeys = []string{
	"metadata_user_ids",
	"metadata_group_ids",
	"acl_user_ids_list",
	"acl_group_ids_list",
	"metadata_acl_user_ids",
	"metdata_acl_group_ids",
}

// GCS is the bucket-backed blob sink.
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
	logger logging.Logger
}

// NewGCS opens the bucket and verifies it is reachable. A non-empty prefix
// scopes listings to the objects this sync owns.
func NewGCS(ctx context.Context, bucket, prefix string, opts []option.ClientOption, logger logging.Logger) (*GCS, error) {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, utils.WrapAppError(
			utils.NewSyncError(utils.ErrCodeSinkUnavailable, "failed to create storage client").Build(), err)
	}

	g := &GCS{client: client, bucket: bucket, prefix: prefix, logger: logger}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		return nil, utils.WrapAppError(
			utils.NewSyncError(utils.ErrCodeSinkUnavailable, "sink bucket unreachable").
				WithContext("bucket", bucket).Build(), err)
	}
	return g, nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}

// ListAll returns every object in the bucket keyed by name, excluding the
// state object.
func (g *GCS) ListAll(ctx context.Context) (map[string]types.SinkObject, error) {
	objects := make(map[string]types.SinkObject)

	it := g.client.Bucket(g.bucket).Objects(ctx, listQuery(g.prefix))
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, utils.WrapAppError(
				utils.NewSyncError(utils.ErrCodeSinkUnavailable, "failed to list sink objects").
					WithContext("bucket", g.bucket).Build(), err)
		}
		if attrs.Name == StateObjectName {
			continue
		}
		objects[attrs.Name] = types.SinkObject{
			Name:         attrs.Name,
			Size:         attrs.Size,
			LastModified: attrs.Updated,
			Metadata:     attrs.Metadata,
		}
	}

	g.logger.Debug("sink listing complete", logging.F("objects", len(objects)))
	return objects, nil
}

// listQuery scopes object listings to the configured prefix, so a shared
// bucket's other tenants are never paged through.
func listQuery(prefix string) *storage.Query {
	if prefix == "" {
		return nil
	}
	return &storage.Query{Prefix: prefix + "/"}
}

// Upload writes content under the given name with the given metadata,
// returning the number of bytes written. Dry-run consumes the reader to
// measure size without touching the bucket.
func (g *GCS) Upload(ctx context.Context, name string, content io.Reader, metadata map[string]string, dryRun bool) (int64, error) {
	if dryRun {
		n, err := io.Copy(io.Discard, content)
		if err != nil {
			return 0, err
		}
		g.logger.Debug("dry-run upload skipped", logging.F("object", name), logging.F("bytes", n))
		return n, nil
	}

	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.Metadata = metadata
	n, err := io.Copy(w, content)
	if err != nil {
		_ = w.Close()
		return 0, utils.WrapAppError(
			utils.NewSyncError(utils.ErrCodeUploadFailed, "failed to write object").
				WithContext("object", name).Build(), err)
	}
	if err := w.Close(); err != nil {
		return 0, utils.WrapAppError(
			utils.NewSyncError(utils.ErrCodeUploadFailed, "failed to finalize object").
				WithContext("object", name).Build(), err)
	}
	return n, nil
}

// Delete removes the object. When the exact name does not exist, it falls
// back to deleting everything under the name as a prefix, which handles
// deleted source containers. Deleting something already gone is not an error.
func (g *GCS) Delete(ctx context.Context, name string, dryRun bool) error {
	if dryRun {
		g.logger.Debug("dry-run delete skipped", logging.F("object", name))
		return nil
	}

	err := g.client.Bucket(g.bucket).Object(name).Delete(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrObjectNotExist) {
		return utils.WrapAppError(
			utils.NewSyncError(utils.ErrCodeDeleteFailed, "failed to delete object").
				WithContext("object", name).Build(), err)
	}

	return g.deletePrefix(ctx, strings.TrimSuffix(name, "/")+"/")
}

func (g *GCS) deletePrefix(ctx context.Context, prefix string) error {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return utils.WrapAppError(
				utils.NewSyncError(utils.ErrCodeDeleteFailed, "failed to enumerate prefix for deletion").
					WithContext("prefix", prefix).Build(), err)
		}
		if delErr := g.client.Bucket(g.bucket).Object(attrs.Name).Delete(ctx); delErr != nil && !errors.Is(delErr, storage.ErrObjectNotExist) {
			return utils.WrapAppError(
				utils.NewSyncError(utils.ErrCodeDeleteFailed, "failed to delete object under prefix").
					WithContext("object", attrs.Name).Build(), delErr)
		}
	}
}

// ReadState loads the resume state object, returning nil when absent.
func (g *GCS) ReadState(ctx context.Context) (*types.ResumeState, error) {
	r, err := g.client.Bucket(g.bucket).Object(StateObjectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil
		}
		return nil, utils.WrapAppError(
			utils.NewSyncError(utils.ErrCodeSinkUnavailable, "failed to read resume state").Build(), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read state object: %w", err)
	}

	var state types.ResumeState
	if err := json.Unmarshal(data, &state); err != nil {
		// A corrupt state object degrades to a fresh initial sync
		g.logger.Warn("resume state unreadable, treating as absent", logging.F("error", err.Error()))
		return nil, nil
	}
	return &state, nil
}

// WriteState overwrites the resume state object.
func (g *GCS) WriteState(ctx context.Context, resumeToken string, dryRun bool) error {
	if dryRun {
		g.logger.Debug("dry-run state write skipped")
		return nil
	}

	state := types.ResumeState{ResumeToken: resumeToken, SavedAt: time.Now().UTC()}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal resume state: %w", err)
	}

	w := g.client.Bucket(g.bucket).Object(StateObjectName).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return utils.WrapAppError(
			utils.NewSyncError(utils.ErrCodeUploadFailed, "failed to write resume state").Build(), err)
	}
	return w.Close()
}

// UpdateMetadata merges additional metadata into an object after stripping
// deprecated keys and any existing key that case-insensitively collides with
// an incoming one.
func (g *GCS) UpdateMetadata(ctx context.Context, name string, additional map[string]string, dryRun bool) error {
	if dryRun {
		g.logger.Debug("dry-run metadata update skipped", logging.F("object", name))
		return nil
	}

	obj := g.client.Bucket(g.bucket).Object(name)
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return utils.WrapAppError(
			utils.NewSyncError(utils.ErrCodeUploadFailed, "failed to read object metadata").
				WithContext("object", name).Build(), err)
	}

	merged := MergeMetadata(attrs.Metadata, additional)
	if _, err := obj.Update(ctx, storage.ObjectAttrsToUpdate{Metadata: merged}); err != nil {
		return utils.WrapAppError(
			utils.NewSyncError(utils.ErrCodeUploadFailed, "failed to update object metadata").
				WithContext("object", name).Build(), err)
	}
	return nil
}

// MergeMetadata returns existing metadata with deprecated keys removed,
// case-insensitive duplicates of incoming keys dropped, and incoming values
// applied on top.
func MergeMetadata(existing, additional map[string]string) map[string]string {
	deprecated := make(map[string]bool, len(deprecatedMetadataKeys))
	for _, k := range deprecatedMetadataKeys {
		deprecated[k] = true
	}
	incoming := make(map[string]bool, len(additional))
	for k := range additional {
		incoming[strings.ToLower(k)] = true
	}

	merged := make(map[string]string, len(existing)+len(additional))
	for k, v := range existing {
		if deprecated[strings.ToLower(k)] {
			continue
		}
		if incoming[strings.ToLower(k)] {
			continue
		}
		merged[k] = v
	}
	for k, v := range additional {
		merged[k] = v
	}
	return merged
}
