package types

import "time"

// Sink metadata keys owned by the sync. The three source_* keys are written on
// every upload; the permission keys are written by the permission pass.
const (
	MetaSourceItemID       = "source_item_id"
	MetaSourceLastModified = "source_last_modified"
	MetaSourceContentHash  = "source_content_hash"

	// ACL keys read by the downstream search indexer. The indexer maps
	// user_ids/group_ids to its permission-filter fields, so these exact
	// names are load-bearing.
	MetaACLUserIDs  = "user_ids"
	MetaACLGroupIDs = "group_ids"
)

// SinkObject is the current state of one stored object. Metadata keys are
// case-insensitive-unique.
type SinkObject struct {
	Name         string            `json:"name"`
	Size         int64             `json:"size"`
	LastModified time.Time         `json:"lastModified"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ResumeState is the sole piece of cross-run durable state, stored as one
// well-known JSON object in the sink. Read at run start, overwritten at run
// end, skipped entirely in dry-run.
type ResumeState struct {
	// ResumeToken is opaque and persisted verbatim; never parsed
	ResumeToken string `json:"resumeToken"`

	// SavedAt is when the token was persisted
	SavedAt time.Time `json:"savedAt"`
}
