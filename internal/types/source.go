package types

import "time"

// SourceFile is an immutable snapshot of one file in the source tree at the
// time it was listed or reported by the change feed.
type SourceFile struct {
	// ID is the source system's identity for the file
	ID string `json:"id"`

	// Name is the file name without any path component
	Name string `json:"name"`

	// Path is the full POSIX-style path rooted at "/"
	Path string `json:"path"`

	// Size is the file size in bytes
	Size int64 `json:"size"`

	// LastModified is the source modification time (zero when unknown)
	LastModified time.Time `json:"lastModified,omitempty"`

	// ContentHash is an opaque per-version change tag, not a cryptographic
	// digest; empty when the source did not report one
	ContentHash string `json:"contentHash,omitempty"`
}

// ChangeKind discriminates the variants of a ChangeRecord.
type ChangeKind string

const (
	// ChangeUpserted marks a created or modified item
	ChangeUpserted ChangeKind = "upserted"
	// ChangeDeleted marks an item removed from the source
	ChangeDeleted ChangeKind = "deleted"
)

// ChangeRecord is one entry from the change feed. Kind selects the variant:
// Upserted records carry File; Deleted records carry only ItemID/ItemName/
// ItemPath. Container records are observed but never synced as objects.
type ChangeRecord struct {
	Kind ChangeKind `json:"kind"`

	// File is set for upserted non-container items
	File *SourceFile `json:"file,omitempty"`

	// ItemID is always set
	ItemID string `json:"itemId"`

	// ItemName is a best-effort name
	ItemName string `json:"itemName,omitempty"`

	// ItemPath is a best-effort path; may be empty for deletions the feed
	// could not place in the tree
	ItemPath string `json:"itemPath,omitempty"`

	// IsContainer is true for directory nodes
	IsContainer bool `json:"isContainer"`
}

// ChangeBatch aggregates every page of one change-feed query.
type ChangeBatch struct {
	// Records in feed order
	Records []ChangeRecord `json:"records"`

	// ResumeToken is the opaque checkpoint to persist for the next run.
	// Empty when the feed did not produce a final token.
	ResumeToken string `json:"resumeToken"`

	// IsInitialSync is true when no prior token was supplied
	IsInitialSync bool `json:"isInitialSync"`
}

// IdentityType classifies the principal behind an AccessEntry.
type IdentityType string

const (
	IdentityUser      IdentityType = "user"
	IdentityGroup     IdentityType = "group"
	IdentitySiteGroup IdentityType = "siteGroup"
	IdentityUnknown   IdentityType = "unknown"
)

// AccessEntry is one access-control entry fetched for a source file. Entries
// are produced fresh on every permission fetch and never persisted
// individually; only the reduced identity-id lists survive in sink metadata.
type AccessEntry struct {
	// ID is the permission entry's own identifier
	ID string `json:"id"`

	// Type classifies the principal
	Type IdentityType `json:"identityType"`

	// DisplayName is the principal's display name
	DisplayName string `json:"displayName,omitempty"`

	// IdentityID is the principal's stable identifier; a directory-style
	// GUID or a numeric permission id
	IdentityID string `json:"identityId,omitempty"`

	// Email is the principal's address when known
	Email string `json:"email,omitempty"`

	// Roles granted to the principal (reader, writer, owner, ...)
	Roles []string `json:"roles"`

	// Inherited is true when the entry comes from an ancestor container
	Inherited bool `json:"inherited"`
}
