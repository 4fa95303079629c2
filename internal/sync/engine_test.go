package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/drivesink/drivesink/internal/sink"
	"github.com/drivesink/drivesink/internal/types"
)

type fakeSource struct {
	files       []types.SourceFile
	listErr     error
	batches     map[string]*types.ChangeBatch
	changesErr  error
	content     map[string]string
	downloadErr map[string]error
	permissions map[string][]types.AccessEntry
	permsErr    map[string]error

	changesCalls []string
	listAllDelay time.Duration
	active       *int32
	overlapped   *int32
}

func (s *fakeSource) ListAll(ctx context.Context) ([]types.SourceFile, error) {
	if s.active != nil {
		if atomic.AddInt32(s.active, 1) > 1 {
			atomic.StoreInt32(s.overlapped, 1)
		}
		defer atomic.AddInt32(s.active, -1)
	}
	if s.listAllDelay > 0 {
		time.Sleep(s.listAllDelay)
	}
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]types.SourceFile, len(s.files))
	copy(out, s.files)
	return out, nil
}

func (s *fakeSource) Changes(ctx context.Context, resumeToken string) (*types.ChangeBatch, error) {
	s.changesCalls = append(s.changesCalls, resumeToken)
	if s.changesErr != nil {
		return nil, s.changesErr
	}
	if batch, ok := s.batches[resumeToken]; ok {
		return batch, nil
	}
	return &types.ChangeBatch{}, nil
}

func (s *fakeSource) Download(ctx context.Context, itemID string) (io.ReadCloser, error) {
	if err, ok := s.downloadErr[itemID]; ok {
		return nil, err
	}
	content, ok := s.content[itemID]
	if !ok {
		content = "content-of-" + itemID
	}
	return io.NopCloser(strings.NewReader(content)), nil
}

func (s *fakeSource) Permissions(ctx context.Context, itemID string) ([]types.AccessEntry, error) {
	if err, ok := s.permsErr[itemID]; ok {
		return nil, err
	}
	return s.permissions[itemID], nil
}

type fakeSink struct {
	objects     map[string]types.SinkObject
	listErr     error
	state       *types.ResumeState
	uploadErr   map[string]error
	deleteErr   map[string]error
	savedTokens []string
	deletes     []string
	uploads     []string
}

func newFakeSink() *fakeSink {
	return &fakeSink{objects: make(map[string]types.SinkObject)}
}

func (s *fakeSink) ListAll(ctx context.Context) (map[string]types.SinkObject, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make(map[string]types.SinkObject, len(s.objects))
	for k, v := range s.objects {
		out[k] = v
	}
	return out, nil
}

func (s *fakeSink) Upload(ctx context.Context, name string, content io.Reader, metadata map[string]string, dryRun bool) (int64, error) {
	if err, ok := s.uploadErr[name]; ok {
		return 0, err
	}
	n, err := io.Copy(io.Discard, content)
	if err != nil {
		return 0, err
	}
	if dryRun {
		return n, nil
	}
	s.uploads = append(s.uploads, name)
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	s.objects[name] = types.SinkObject{Name: name, Size: n, Metadata: meta}
	return n, nil
}

func (s *fakeSink) Delete(ctx context.Context, name string, dryRun bool) error {
	if err, ok := s.deleteErr[name]; ok {
		return err
	}
	if dryRun {
		return nil
	}
	s.deletes = append(s.deletes, name)
	delete(s.objects, name)
	return nil
}

func (s *fakeSink) ReadState(ctx context.Context) (*types.ResumeState, error) {
	return s.state, nil
}

func (s *fakeSink) WriteState(ctx context.Context, resumeToken string, dryRun bool) error {
	if dryRun {
		return nil
	}
	s.savedTokens = append(s.savedTokens, resumeToken)
	s.state = &types.ResumeState{ResumeToken: resumeToken, SavedAt: time.Now()}
	return nil
}

func (s *fakeSink) UpdateMetadata(ctx context.Context, name string, additional map[string]string, dryRun bool) error {
	if dryRun {
		return nil
	}
	obj, ok := s.objects[name]
	if !ok {
		return fmt.Errorf("object %s not found", name)
	}
	obj.Metadata = sink.MergeMetadata(obj.Metadata, additional)
	s.objects[name] = obj
	return nil
}

func srcFile(id, path string, modified time.Time, hash string) types.SourceFile {
	parts := strings.Split(path, "/")
	return types.SourceFile{
		ID:           id,
		Name:         parts[len(parts)-1],
		Path:         path,
		Size:         int64(len("content-of-" + id)),
		LastModified: modified,
		ContentHash:  hash,
	}
}

func upsert(f types.SourceFile) types.ChangeRecord {
	return types.ChangeRecord{
		Kind:     types.ChangeUpserted,
		File:     &f,
		ItemID:   f.ID,
		ItemName: f.Name,
		ItemPath: f.Path,
	}
}

func TestFullStrategyIdempotence(t *testing.T) {
	mod := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{files: []types.SourceFile{
		srcFile("f1", "/a.txt", mod, "h1"),
		srcFile("f2", "/dir/b.txt", mod, "h2"),
	}}
	sinkStore := newFakeSink()
	engine := NewEngine(source, sinkStore, nil)
	cfg := RunConfig{TargetKey: t.Name(), ForceFullSync: true, DeleteOrphanedObjects: true}

	first, err := engine.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.FilesAdded != 2 || first.FilesScanned != 2 {
		t.Fatalf("first run stats = %+v, want 2 added, 2 scanned", first)
	}

	second, err := engine.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.FilesAdded != 0 || second.FilesUpdated != 0 || second.FilesDeleted != 0 {
		t.Errorf("second run stats = %+v, want no mutations", second)
	}
	if second.FilesUnchanged != 2 {
		t.Errorf("second run unchanged = %d, want 2", second.FilesUnchanged)
	}
	if len(sinkStore.objects) != 2 {
		t.Errorf("sink has %d objects, want 2", len(sinkStore.objects))
	}
}

func TestFullStrategyUpdatePredicatePrecedence(t *testing.T) {
	// Stored object has a newer timestamp but a different hash; hash wins
	sinkStore := newFakeSink()
	sinkStore.objects["a.txt"] = types.SinkObject{
		Name: "a.txt",
		Metadata: map[string]string{
			types.MetaSourceItemID:       "f1",
			types.MetaSourceContentHash:  "A",
			types.MetaSourceLastModified: "2024-01-02T00:00:00Z",
		},
	}
	source := &fakeSource{files: []types.SourceFile{
		srcFile("f1", "/a.txt", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "B"),
	}}
	engine := NewEngine(source, sinkStore, nil)

	stats, err := engine.Run(context.Background(), RunConfig{TargetKey: t.Name(), ForceFullSync: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.FilesUpdated != 1 {
		t.Errorf("updated = %d, want 1 (hash mismatch overrides older timestamp)", stats.FilesUpdated)
	}
}

func TestFullStrategyOrphanDeletionToggle(t *testing.T) {
	for _, deleteOrphans := range []bool{false, true} {
		t.Run(fmt.Sprintf("deleteOrphans=%v", deleteOrphans), func(t *testing.T) {
			sinkStore := newFakeSink()
			sinkStore.objects["gone.txt"] = types.SinkObject{Name: "gone.txt"}
			source := &fakeSource{}
			engine := NewEngine(source, sinkStore, nil)

			stats, err := engine.Run(context.Background(), RunConfig{
				TargetKey:             t.Name(),
				ForceFullSync:         true,
				DeleteOrphanedObjects: deleteOrphans,
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}

			_, stillThere := sinkStore.objects["gone.txt"]
			if deleteOrphans {
				if stillThere || stats.FilesDeleted != 1 {
					t.Errorf("orphan not deleted: stats=%+v", stats)
				}
			} else {
				if !stillThere || stats.FilesDeleted != 0 {
					t.Errorf("orphan touched with deletion disabled: stats=%+v", stats)
				}
			}
		})
	}
}

func TestFullStrategyPrefixScopesOrphanDeletion(t *testing.T) {
	mod := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	sinkStore := newFakeSink()
	sinkStore.objects["mirror/stale.txt"] = types.SinkObject{Name: "mirror/stale.txt"}
	sinkStore.objects["other-tenant/keep.txt"] = types.SinkObject{Name: "other-tenant/keep.txt"}
	source := &fakeSource{files: []types.SourceFile{srcFile("f1", "/a.txt", mod, "h1")}}
	engine := NewEngine(source, sinkStore, nil)

	stats, err := engine.Run(context.Background(), RunConfig{
		TargetKey:             t.Name(),
		ObjectPrefix:          "mirror",
		ForceFullSync:         true,
		DeleteOrphanedObjects: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.FilesDeleted != 1 {
		t.Errorf("deleted = %d, want 1 (only the in-prefix orphan)", stats.FilesDeleted)
	}
	if _, ok := sinkStore.objects["other-tenant/keep.txt"]; !ok {
		t.Error("object outside the prefix was deleted")
	}
	if _, ok := sinkStore.objects["mirror/a.txt"]; !ok {
		t.Error("source file was not uploaded under the prefix")
	}
}

func TestFullStrategyPartialFailureIsolation(t *testing.T) {
	mod := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{
		files: []types.SourceFile{
			srcFile("f1", "/one.txt", mod, "h1"),
			srcFile("f2", "/two.txt", mod, "h2"),
			srcFile("f3", "/three.txt", mod, "h3"),
		},
		downloadErr: map[string]error{"f2": errors.New("download exploded")},
	}
	sinkStore := newFakeSink()
	engine := NewEngine(source, sinkStore, nil)

	stats, err := engine.Run(context.Background(), RunConfig{TargetKey: t.Name(), ForceFullSync: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.FilesScanned != 3 || stats.FilesAdded != 2 || stats.FilesFailed != 1 {
		t.Errorf("stats = %+v, want scanned=3 added=2 failed=1", stats)
	}
	if _, ok := sinkStore.objects["three.txt"]; !ok {
		t.Error("file after the failing one was not processed")
	}
	if !stats.HasFailures() {
		t.Error("HasFailures() = false, want true")
	}
}

func TestDeltaInitialRun(t *testing.T) {
	mod := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	f1 := srcFile("f1", "/a.txt", mod, "h1")
	f2 := srcFile("f2", "/b.txt", mod, "h2")
	source := &fakeSource{
		batches: map[string]*types.ChangeBatch{
			"": {
				Records:       []types.ChangeRecord{upsert(f1), upsert(f2)},
				ResumeToken:   "token-1",
				IsInitialSync: true,
			},
		},
	}
	sinkStore := newFakeSink()
	engine := NewEngine(source, sinkStore, nil)

	stats, err := engine.Run(context.Background(), RunConfig{TargetKey: t.Name()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Strategy != types.StrategyDeltaInitial {
		t.Errorf("strategy = %q, want %q", stats.Strategy, types.StrategyDeltaInitial)
	}
	if stats.FilesAdded != 2 || stats.FilesScanned != 2 {
		t.Errorf("stats = %+v, want 2 added, 2 scanned", stats)
	}
	if stats.BytesTransferred == 0 {
		t.Error("BytesTransferred = 0, want > 0")
	}
	if sinkStore.state == nil || sinkStore.state.ResumeToken != "token-1" {
		t.Errorf("resume token = %+v, want token-1", sinkStore.state)
	}
}

func TestDeltaTokenAdvancement(t *testing.T) {
	source := &fakeSource{
		batches: map[string]*types.ChangeBatch{
			"token-1": {ResumeToken: "token-1"},
		},
	}
	sinkStore := newFakeSink()
	sinkStore.state = &types.ResumeState{ResumeToken: "token-1", SavedAt: time.Now()}
	engine := NewEngine(source, sinkStore, nil)

	stats, err := engine.Run(context.Background(), RunConfig{TargetKey: t.Name()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Strategy != types.StrategyDeltaIncremental {
		t.Errorf("strategy = %q, want %q", stats.Strategy, types.StrategyDeltaIncremental)
	}
	if stats.FilesScanned != 0 {
		t.Errorf("scanned = %d, want 0", stats.FilesScanned)
	}
	if len(source.changesCalls) != 1 || source.changesCalls[0] != "token-1" {
		t.Errorf("changes called with %v, want [token-1]", source.changesCalls)
	}
	if sinkStore.state.ResumeToken != "token-1" {
		t.Errorf("resume token = %q, want token-1", sinkStore.state.ResumeToken)
	}
}

func TestDeltaEmptyFinalTokenNotPersisted(t *testing.T) {
	source := &fakeSource{
		batches: map[string]*types.ChangeBatch{
			"old-token": {Records: []types.ChangeRecord{upsert(srcFile("f1", "/a.txt", time.Time{}, ""))}},
		},
	}
	sinkStore := newFakeSink()
	sinkStore.state = &types.ResumeState{ResumeToken: "old-token", SavedAt: time.Now()}
	engine := NewEngine(source, sinkStore, nil)

	if _, err := engine.Run(context.Background(), RunConfig{TargetKey: t.Name()}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sinkStore.savedTokens) != 0 {
		t.Errorf("tokens saved = %v, want none when feed produced no final token", sinkStore.savedTokens)
	}
	if sinkStore.state.ResumeToken != "old-token" {
		t.Errorf("resume token = %q, want old-token untouched", sinkStore.state.ResumeToken)
	}
}

func TestDeltaDeleteByPathAndByItemID(t *testing.T) {
	sinkStore := newFakeSink()
	sinkStore.objects["a.txt"] = types.SinkObject{Name: "a.txt"}
	sinkStore.objects["b.txt"] = types.SinkObject{
		Name:     "b.txt",
		Metadata: map[string]string{types.MetaSourceItemID: "f2"},
	}
	source := &fakeSource{
		batches: map[string]*types.ChangeBatch{
			"tok": {
				Records: []types.ChangeRecord{
					{Kind: types.ChangeDeleted, ItemID: "f1", ItemPath: "/a.txt"},
					{Kind: types.ChangeDeleted, ItemID: "f2"},
				},
				ResumeToken: "tok-2",
			},
		},
	}
	sinkStore.state = &types.ResumeState{ResumeToken: "tok", SavedAt: time.Now()}
	engine := NewEngine(source, sinkStore, nil)

	stats, err := engine.Run(context.Background(), RunConfig{
		TargetKey:             t.Name(),
		DeleteOrphanedObjects: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.FilesDeleted != 2 {
		t.Errorf("deleted = %d, want 2", stats.FilesDeleted)
	}
	if len(sinkStore.objects) != 0 {
		t.Errorf("sink still has %v", sinkStore.objects)
	}
	if sinkStore.state.ResumeToken != "tok-2" {
		t.Errorf("resume token = %q, want tok-2", sinkStore.state.ResumeToken)
	}
}

func TestDeltaDeleteFailureStillAdvancesToken(t *testing.T) {
	sinkStore := newFakeSink()
	sinkStore.objects["a.txt"] = types.SinkObject{Name: "a.txt"}
	sinkStore.deleteErr = map[string]error{"a.txt": errors.New("delete refused")}
	sinkStore.state = &types.ResumeState{ResumeToken: "tok", SavedAt: time.Now()}
	source := &fakeSource{
		batches: map[string]*types.ChangeBatch{
			"tok": {
				Records:     []types.ChangeRecord{{Kind: types.ChangeDeleted, ItemID: "f1", ItemPath: "/a.txt"}},
				ResumeToken: "tok-2",
			},
		},
	}
	engine := NewEngine(source, sinkStore, nil)

	stats, err := engine.Run(context.Background(), RunConfig{
		TargetKey:             t.Name(),
		DeleteOrphanedObjects: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.FilesFailed != 1 {
		t.Errorf("failed = %d, want 1", stats.FilesFailed)
	}
	if sinkStore.state.ResumeToken != "tok-2" {
		t.Errorf("resume token = %q, want tok-2 despite delete failure", sinkStore.state.ResumeToken)
	}
}

func TestDeltaUpsertWithoutPayloadCountedAsFailed(t *testing.T) {
	source := &fakeSource{
		batches: map[string]*types.ChangeBatch{
			"tok": {
				Records: []types.ChangeRecord{
					{Kind: types.ChangeUpserted, ItemID: "broken"},
					upsert(srcFile("f1", "/a.txt", time.Time{}, "")),
				},
				ResumeToken: "tok-2",
			},
		},
	}
	sinkStore := newFakeSink()
	sinkStore.state = &types.ResumeState{ResumeToken: "tok", SavedAt: time.Now()}
	engine := NewEngine(source, sinkStore, nil)

	stats, err := engine.Run(context.Background(), RunConfig{TargetKey: t.Name()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.FilesFailed != 1 || stats.FilesAdded != 1 {
		t.Errorf("stats = %+v, want failed=1 added=1", stats)
	}
	if sinkStore.state.ResumeToken != "tok-2" {
		t.Errorf("resume token = %q, want tok-2", sinkStore.state.ResumeToken)
	}
}

func TestDeltaContainersSkipped(t *testing.T) {
	source := &fakeSource{
		batches: map[string]*types.ChangeBatch{
			"tok": {
				Records: []types.ChangeRecord{
					{Kind: types.ChangeUpserted, ItemID: "d1", ItemPath: "/dir", IsContainer: true},
				},
				ResumeToken: "tok-2",
			},
		},
	}
	sinkStore := newFakeSink()
	sinkStore.state = &types.ResumeState{ResumeToken: "tok", SavedAt: time.Now()}
	engine := NewEngine(source, sinkStore, nil)

	stats, err := engine.Run(context.Background(), RunConfig{TargetKey: t.Name()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.FilesScanned != 0 || stats.FilesAdded != 0 {
		t.Errorf("stats = %+v, want container ignored", stats)
	}
}

func TestDryRunStatsMatchRealRun(t *testing.T) {
	mod := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	files := []types.SourceFile{
		srcFile("f1", "/a.txt", mod, "h1"),
		srcFile("f2", "/b.txt", mod, "h2"),
	}

	makeFixtures := func() (*fakeSource, *fakeSink) {
		s := &fakeSource{files: files}
		k := newFakeSink()
		k.objects["orphan.txt"] = types.SinkObject{Name: "orphan.txt"}
		return s, k
	}

	srcDry, sinkDry := makeFixtures()
	dryStats, err := NewEngine(srcDry, sinkDry, nil).Run(context.Background(), RunConfig{
		TargetKey:             t.Name() + "-dry",
		ForceFullSync:         true,
		DeleteOrphanedObjects: true,
		DryRun:                true,
	})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}

	srcReal, sinkReal := makeFixtures()
	realStats, err := NewEngine(srcReal, sinkReal, nil).Run(context.Background(), RunConfig{
		TargetKey:             t.Name() + "-real",
		ForceFullSync:         true,
		DeleteOrphanedObjects: true,
	})
	if err != nil {
		t.Fatalf("real run: %v", err)
	}

	if *dryStats != *realStats {
		t.Errorf("dry stats %+v != real stats %+v", dryStats, realStats)
	}
	if len(sinkDry.objects) != 1 || len(sinkDry.uploads) != 0 || len(sinkDry.deletes) != 0 {
		t.Errorf("dry run mutated the sink: %+v", sinkDry)
	}
	if len(sinkReal.objects) != 2 {
		t.Errorf("real run sink objects = %d, want 2", len(sinkReal.objects))
	}
}

func TestPermissionPass(t *testing.T) {
	mod := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeSource{
		files: []types.SourceFile{
			srcFile("f1", "/a.txt", mod, "h1"),
			srcFile("f2", "/b.txt", mod, "h2"),
		},
		permissions: map[string][]types.AccessEntry{
			"f1": {{Type: types.IdentityUser, IdentityID: "aaaaaaaa-1111-2222-3333-444444444444"}},
		},
		permsErr: map[string]error{"f2": errors.New("acl fetch denied")},
	}
	sinkStore := newFakeSink()
	engine := NewEngine(source, sinkStore, nil)

	stats, err := engine.Run(context.Background(), RunConfig{
		TargetKey:       t.Name(),
		ForceFullSync:   true,
		SyncPermissions: true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.PermissionsSynced != 1 || stats.PermissionsFailed != 1 {
		t.Errorf("permissions stats = %+v, want synced=1 failed=1", stats)
	}

	meta := sinkStore.objects["a.txt"].Metadata
	if got := meta[types.MetaACLUserIDs]; got != "aaaaaaaa-1111-2222-3333-444444444444" {
		t.Errorf("user_ids = %q", got)
	}
	// Group sentinel, since f1 has no group entries
	if got := meta[types.MetaACLGroupIDs]; got != "00000000-0000-0000-0000-000000000001" {
		t.Errorf("group_ids = %q, want group sentinel", got)
	}
}

func TestCancellationLeavesTokenUntouched(t *testing.T) {
	source := &fakeSource{
		batches: map[string]*types.ChangeBatch{
			"tok": {
				Records:     []types.ChangeRecord{upsert(srcFile("f1", "/a.txt", time.Time{}, ""))},
				ResumeToken: "tok-2",
			},
		},
	}
	sinkStore := newFakeSink()
	sinkStore.state = &types.ResumeState{ResumeToken: "tok", SavedAt: time.Now()}
	engine := NewEngine(source, sinkStore, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := engine.Run(ctx, RunConfig{TargetKey: t.Name()})
	if err == nil {
		t.Fatal("Run with cancelled context succeeded, want error")
	}
	if stats == nil {
		t.Fatal("stats = nil, want partial statistics")
	}
	if sinkStore.state.ResumeToken != "tok" {
		t.Errorf("resume token = %q, want tok (unmodified)", sinkStore.state.ResumeToken)
	}
}

func TestRunsSerializedPerTarget(t *testing.T) {
	var active, overlapped int32
	source := &fakeSource{
		files:        []types.SourceFile{srcFile("f1", "/a.txt", time.Time{}, "")},
		listAllDelay: 20 * time.Millisecond,
		active:       &active,
		overlapped:   &overlapped,
	}
	engine := NewEngine(source, newFakeSink(), nil)
	cfg := RunConfig{TargetKey: t.Name(), ForceFullSync: true}

	done := make(chan struct{})
	for i := 0; i < 2; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			if _, err := engine.Run(context.Background(), cfg); err != nil {
				t.Errorf("Run: %v", err)
			}
		}()
	}
	<-done
	<-done

	if atomic.LoadInt32(&overlapped) != 0 {
		t.Error("two runs for the same target overlapped")
	}
}

func TestFeedFailureIsFatal(t *testing.T) {
	source := &fakeSource{changesErr: errors.New("feed page fetch failed")}
	sinkStore := newFakeSink()
	engine := NewEngine(source, sinkStore, nil)

	_, err := engine.Run(context.Background(), RunConfig{TargetKey: t.Name()})
	if err == nil {
		t.Fatal("Run succeeded despite feed failure")
	}
	if len(sinkStore.savedTokens) != 0 {
		t.Errorf("token saved after feed failure: %v", sinkStore.savedTokens)
	}
}
