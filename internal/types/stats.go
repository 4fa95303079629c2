package types

// Strategy labels reported in RunStatistics.Strategy.
const (
	StrategyFull             = "full"
	StrategyDeltaInitial     = "delta-initial"
	StrategyDeltaIncremental = "delta-incremental"
)

// RunStatistics accumulates the outcome of one reconciliation run. It is
// owned exclusively by the engine for the duration of the run and returned to
// the caller at the end.
type RunStatistics struct {
	// FilesScanned counts every record or file the run looked at
	FilesScanned int `json:"filesScanned"`

	// FilesAdded counts uploads of files the sink had never seen. Delta
	// runs count every upsert here; they do not distinguish added from
	// updated.
	FilesAdded int `json:"filesAdded"`

	// FilesUpdated counts re-uploads of changed files (full strategy only)
	FilesUpdated int `json:"filesUpdated"`

	// FilesDeleted counts sink objects removed
	FilesDeleted int `json:"filesDeleted"`

	// FilesUnchanged counts files the update predicate left alone
	FilesUnchanged int `json:"filesUnchanged"`

	// FilesFailed counts per-file operations that errored and were skipped
	FilesFailed int `json:"filesFailed"`

	// BytesTransferred totals the content bytes uploaded
	BytesTransferred int64 `json:"bytesTransferred"`

	// PermissionsSynced / PermissionsFailed count the permission pass
	PermissionsSynced int `json:"permissionsSynced"`
	PermissionsFailed int `json:"permissionsFailed"`

	// Strategy is one of the Strategy* labels
	Strategy string `json:"strategy"`
}

// HasFailures reports whether any per-item operation failed. Callers must
// inspect this rather than the top-level error to detect partial failure.
func (s *RunStatistics) HasFailures() bool {
	return s.FilesFailed > 0 || s.PermissionsFailed > 0
}
