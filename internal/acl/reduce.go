package acl

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/drivesink/drivesink/internal/types"
)

// Sentinel values written when a reduced list would otherwise be empty, so
// downstream metadata filters always have a value to match against.
const (
	SentinelUserID  = "00000000-0000-0000-0000-000000000000"
	SentinelGroupID = "00000000-0000-0000-0000-000000000001"
)

// Auxiliary metadata keys written alongside the id lists.
const (
	MetaSourcePermissions = "source_permissions"
	MetaSyncedAt          = "permissions_synced_at"
)

// ListSeparator joins identity ids inside a single metadata value.
const ListSeparator = "|"

// ReducedPermissions is the propagation-ready form of an access list.
type ReducedPermissions struct {
	UserIDs  []string
	GroupIDs []string
}

// Reduce filters access entries down to user and group identities with
// well-formed identity ids, deduplicating case-insensitively while preserving
// first-seen order. Empty lists are replaced with sentinels.
func Reduce(entries []types.AccessEntry) ReducedPermissions {
	var users, groups []string
	seenUsers := map[string]bool{}
	seenGroups := map[string]bool{}

	for _, entry := range entries {
		id := strings.TrimSpace(entry.IdentityID)
		if !wellFormedID(id) {
			continue
		}
		key := strings.ToLower(id)

		switch entry.Type {
		case types.IdentityUser:
			if !seenUsers[key] {
				seenUsers[key] = true
				users = append(users, id)
			}
		case types.IdentityGroup:
			if !seenGroups[key] {
				seenGroups[key] = true
				groups = append(groups, id)
			}
		}
	}

	if len(users) == 0 {
		users = []string{SentinelUserID}
	}
	if len(groups) == 0 {
		groups = []string{SentinelGroupID}
	}

	return ReducedPermissions{UserIDs: users, GroupIDs: groups}
}

// wellFormedID reports whether an identity id is usable by downstream
// metadata filters: a directory-style GUID, or the numeric form Drive
// permission ids take.
func wellFormedID(id string) bool {
	if id == "" {
		return false
	}
	if _, err := uuid.Parse(id); err == nil {
		return true
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// auditEntry is the JSON shape stored for debugging alongside the id lists.
type auditEntry struct {
	ID          string   `json:"id,omitempty"`
	Type        string   `json:"type"`
	DisplayName string   `json:"displayName,omitempty"`
	IdentityID  string   `json:"identityId,omitempty"`
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Inherited   bool     `json:"inherited,omitempty"`
}

// Metadata builds the metadata map to merge into a sink object: the reduced
// id lists, the full original entry list as audit JSON, and a sync timestamp.
func Metadata(reduced ReducedPermissions, entries []types.AccessEntry, now time.Time) map[string]string {
	audit := make([]auditEntry, 0, len(entries))
	for _, e := range entries {
		audit = append(audit, auditEntry{
			ID:          e.ID,
			Type:        string(e.Type),
			DisplayName: e.DisplayName,
			IdentityID:  e.IdentityID,
			Email:       e.Email,
			Roles:       e.Roles,
			Inherited:   e.Inherited,
		})
	}
	auditJSON, err := json.Marshal(audit)
	if err != nil {
		auditJSON = []byte("[]")
	}

	return map[string]string{
		types.MetaACLUserIDs:  strings.Join(reduced.UserIDs, ListSeparator),
		types.MetaACLGroupIDs: strings.Join(reduced.GroupIDs, ListSeparator),
		MetaSourcePermissions: string(auditJSON),
		MetaSyncedAt:          now.UTC().Format(time.RFC3339),
	}
}
