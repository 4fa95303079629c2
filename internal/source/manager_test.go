package source

import (
	"context"
	"testing"
	"time"

	"google.golang.org/api/drive/v3"

	"github.com/drivesink/drivesink/internal/types"
)

// convertChange resolves paths through the parent cache, so a file whose
// parent is the root never touches the API.
func TestConvertChange(t *testing.T) {
	m := NewManager(nil, "default", "root-id", nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		change   *drive.Change
		wantKind types.ChangeKind
		wantPath string
		wantCont bool
	}{
		{
			name:     "removed item carries only its id",
			change:   &drive.Change{FileId: "gone-1", Removed: true},
			wantKind: types.ChangeDeleted,
		},
		{
			name: "trashed file resolves to a path delete",
			change: &drive.Change{FileId: "f1", File: &drive.File{
				Id: "f1", Name: "a.txt", Trashed: true, Parents: []string{"root-id"},
			}},
			wantKind: types.ChangeDeleted,
			wantPath: "/a.txt",
		},
		{
			name: "file without parents is treated as moved out",
			change: &drive.Change{FileId: "f2", File: &drive.File{
				Id: "f2", Name: "elsewhere.txt",
			}},
			wantKind: types.ChangeDeleted,
		},
		{
			name: "folder becomes a container upsert",
			change: &drive.Change{FileId: "d1", File: &drive.File{
				Id: "d1", Name: "docs", MimeType: mimeTypeFolder, Parents: []string{"root-id"},
			}},
			wantKind: types.ChangeUpserted,
			wantPath: "/docs",
			wantCont: true,
		},
		{
			name: "file becomes an upsert with payload",
			change: &drive.Change{FileId: "f3", File: &drive.File{
				Id: "f3", Name: "b.txt", Parents: []string{"root-id"},
				Size: 42, ModifiedTime: "2024-05-01T12:00:00Z", Md5Checksum: "abc123",
			}},
			wantKind: types.ChangeUpserted,
			wantPath: "/b.txt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, ok := m.convertChange(ctx, nil, tt.change, map[string]parentInfo{})
			if !ok {
				t.Fatal("convertChange dropped the record")
			}
			if record.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", record.Kind, tt.wantKind)
			}
			if record.ItemPath != tt.wantPath {
				t.Errorf("ItemPath = %q, want %q", record.ItemPath, tt.wantPath)
			}
			if record.IsContainer != tt.wantCont {
				t.Errorf("IsContainer = %v, want %v", record.IsContainer, tt.wantCont)
			}
		})
	}
}

func TestConvertChangeUpsertPayload(t *testing.T) {
	m := NewManager(nil, "default", "root-id", nil)
	cache := map[string]parentInfo{
		"dir-1": {Name: "reports", Parents: []string{"root-id"}},
	}

	record, ok := m.convertChange(context.Background(), nil, &drive.Change{
		FileId: "f9",
		File: &drive.File{
			Id: "f9", Name: "q3.pdf", Parents: []string{"dir-1"},
			Size: 1024, ModifiedTime: "2024-09-30T08:15:00Z", Md5Checksum: "deadbeef",
		},
	}, cache)
	if !ok {
		t.Fatal("convertChange dropped the record")
	}

	f := record.File
	if f == nil {
		t.Fatal("File = nil for upserted record")
	}
	if f.Path != "/reports/q3.pdf" {
		t.Errorf("Path = %q, want /reports/q3.pdf", f.Path)
	}
	if f.Size != 1024 || f.ContentHash != "deadbeef" {
		t.Errorf("payload = %+v", f)
	}
	want := time.Date(2024, 9, 30, 8, 15, 0, 0, time.UTC)
	if !f.LastModified.Equal(want) {
		t.Errorf("LastModified = %v, want %v", f.LastModified, want)
	}
}

func TestParseTime(t *testing.T) {
	if got := parseTime(""); !got.IsZero() {
		t.Errorf("parseTime(\"\") = %v, want zero", got)
	}
	if got := parseTime("not-a-time"); !got.IsZero() {
		t.Errorf("parseTime(garbage) = %v, want zero", got)
	}
	got := parseTime("2024-05-01T12:00:00Z")
	if got.IsZero() || got.Hour() != 12 {
		t.Errorf("parseTime(valid) = %v", got)
	}
}
