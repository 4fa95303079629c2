package sync

import (
	"strings"
	"time"

	"github.com/drivesink/drivesink/internal/types"
)

// metaValue looks up a metadata key case-insensitively.
func metaValue(metadata map[string]string, key string) string {
	if v, ok := metadata[key]; ok {
		return v
	}
	for k, v := range metadata {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// shouldUpdate decides whether an existing sink object needs re-uploading for
// an incoming file. Hash mismatch always wins over timestamp comparison, and
// anything that cannot prove freshness biases toward updating.
func shouldUpdate(obj types.SinkObject, lastModified time.Time, contentHash string) bool {
	if len(obj.Metadata) == 0 {
		return true
	}

	storedHash := metaValue(obj.Metadata, types.MetaSourceContentHash)
	if storedHash != "" && contentHash != "" && !strings.EqualFold(storedHash, contentHash) {
		return true
	}

	if lastModified.IsZero() {
		return true
	}

	storedModified := metaValue(obj.Metadata, types.MetaSourceLastModified)
	if storedModified == "" {
		return true
	}
	stored, err := time.Parse(time.RFC3339, storedModified)
	if err != nil {
		return true
	}
	return lastModified.After(stored)
}
