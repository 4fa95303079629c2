package source

import (
	"context"
	"io"
	"net/http"
	"path"
	"time"

	"google.golang.org/api/drive/v3"

	"github.com/drivesink/drivesink/internal/api"
	"github.com/drivesink/drivesink/internal/logging"
	"github.com/drivesink/drivesink/internal/types"
	"github.com/drivesink/drivesink/internal/utils"
)

const mimeTypeFolder = "application/vnd.google-apps.folder"

const fileFields = "id,name,mimeType,size,modifiedTime,md5Checksum,parents,trashed"

// Manager reads the remote tree and its change feed.
type Manager struct {
	client  *api.Client
	profile string
	rootID  string
	logger  logging.Logger
}

// NewManager creates a source manager rooted at the given folder.
func NewManager(client *api.Client, profile, rootID string, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Manager{
		client:  client,
		profile: profile,
		rootID:  rootID,
		logger:  logger,
	}
}

type remoteNode struct {
	ID   string
	Path string
}

// ListAll walks the whole tree under the root and returns every file with its
// slash-prefixed relative path. Folders are traversed but not returned.
func (m *Manager) ListAll(ctx context.Context) ([]types.SourceFile, error) {
	reqCtx := api.NewRequestContext(m.profile, m.rootID, types.RequestTypeList)

	var files []types.SourceFile
	queue := []remoteNode{{ID: m.rootID, Path: ""}}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		children, err := m.listChildren(ctx, reqCtx, node.ID)
		if err != nil {
			return nil, err
		}

		for _, child := range children {
			rel := child.Name
			if node.Path != "" {
				rel = path.Join(node.Path, child.Name)
			}
			if child.MimeType == mimeTypeFolder {
				queue = append(queue, remoteNode{ID: child.Id, Path: rel})
				continue
			}
			files = append(files, types.SourceFile{
				ID:           child.Id,
				Name:         child.Name,
				Path:         "/" + rel,
				Size:         child.Size,
				LastModified: parseTime(child.ModifiedTime),
				ContentHash:  child.Md5Checksum,
			})
		}
	}

	m.logger.Debug("source listing complete", logging.F("files", len(files)))
	return files, nil
}

func (m *Manager) listChildren(ctx context.Context, reqCtx *types.RequestContext, parentID string) ([]*drive.File, error) {
	query := "'" + parentID + "' in parents and trashed = false"
	call := m.client.Service().Files.List().Q(query).
		SupportsAllDrives(true).IncludeItemsFromAllDrives(true).
		PageSize(1000).
		Fields("nextPageToken,files(" + fileFields + ")")

	var results []*drive.File
	for {
		list, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.FileList, error) {
			return call.Do()
		})
		if err != nil {
			return nil, err
		}
		results = append(results, list.Files...)
		if list.NextPageToken == "" {
			break
		}
		call = call.PageToken(list.NextPageToken)
	}
	return results, nil
}

// Changes consumes the change feed starting at resumeToken. An empty token
// means no previous run finished: the batch is synthesized from a full
// listing, stamped with a token fetched before the listing so that edits made
// during the walk are replayed on the next run.
func (m *Manager) Changes(ctx context.Context, resumeToken string) (*types.ChangeBatch, error) {
	reqCtx := api.NewRequestContext(m.profile, m.rootID, types.RequestTypeChanges)

	if resumeToken == "" {
		return m.initialBatch(ctx, reqCtx)
	}

	batch := &types.ChangeBatch{}
	pathCache := map[string]parentInfo{}
	pageToken := resumeToken

	for {
		call := m.client.Service().Changes.List(pageToken).
			SupportsAllDrives(true).IncludeItemsFromAllDrives(true).
			IncludeRemoved(true).
			Fields("nextPageToken,newStartPageToken,changes(fileId,removed,file(" + fileFields + "))")

		result, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.ChangeList, error) {
			return call.Do()
		})
		if err != nil {
			return nil, utils.WrapAppError(
				utils.NewSyncError(utils.ErrCodeFeedFailed, "change feed page failed").
					WithContext("resumeToken", pageToken).Build(), err)
		}

		for _, change := range result.Changes {
			record, ok := m.convertChange(ctx, reqCtx, change, pathCache)
			if ok {
				batch.Records = append(batch.Records, record)
			}
		}

		// The feed token only becomes final on the page that carries it
		if result.NewStartPageToken != "" {
			batch.ResumeToken = result.NewStartPageToken
		}
		if result.NextPageToken == "" {
			break
		}
		pageToken = result.NextPageToken
	}

	m.logger.Debug("change feed consumed",
		logging.F("records", len(batch.Records)),
		logging.F("tokenAdvanced", batch.ResumeToken != ""),
	)
	return batch, nil
}

// initialBatch synthesizes a change batch from a full listing. The start page
// token is fetched first so nothing that changes mid-listing is lost.
func (m *Manager) initialBatch(ctx context.Context, reqCtx *types.RequestContext) (*types.ChangeBatch, error) {
	tokenCall := m.client.Service().Changes.GetStartPageToken().SupportsAllDrives(true)
	start, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.StartPageToken, error) {
		return tokenCall.Do()
	})
	if err != nil {
		return nil, utils.WrapAppError(
			utils.NewSyncError(utils.ErrCodeFeedFailed, "failed to fetch start page token").Build(), err)
	}

	files, err := m.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	batch := &types.ChangeBatch{
		ResumeToken:   start.StartPageToken,
		IsInitialSync: true,
	}
	for i := range files {
		f := files[i]
		batch.Records = append(batch.Records, types.ChangeRecord{
			Kind:     types.ChangeUpserted,
			File:     &f,
			ItemID:   f.ID,
			ItemName: f.Name,
			ItemPath: f.Path,
		})
	}
	return batch, nil
}

// convertChange maps one feed entry to a change record. Returns false for
// entries outside the synced subtree.
func (m *Manager) convertChange(ctx context.Context, reqCtx *types.RequestContext, change *drive.Change, cache map[string]parentInfo) (types.ChangeRecord, bool) {
	if change.Removed || change.File == nil {
		// Permanently removed items carry no payload; the engine matches
		// them against stored item IDs.
		return types.ChangeRecord{Kind: types.ChangeDeleted, ItemID: change.FileId}, true
	}

	f := change.File
	rel, underRoot := m.resolvePath(ctx, reqCtx, f, cache)

	if f.Trashed {
		record := types.ChangeRecord{
			Kind:        types.ChangeDeleted,
			ItemID:      f.Id,
			ItemName:    f.Name,
			IsContainer: f.MimeType == mimeTypeFolder,
		}
		if underRoot {
			record.ItemPath = "/" + rel
		}
		return record, true
	}

	if !underRoot {
		// Moved out of the subtree; same effect as a delete for the mirror
		return types.ChangeRecord{Kind: types.ChangeDeleted, ItemID: f.Id, ItemName: f.Name}, true
	}

	if f.MimeType == mimeTypeFolder {
		return types.ChangeRecord{
			Kind:        types.ChangeUpserted,
			ItemID:      f.Id,
			ItemName:    f.Name,
			ItemPath:    "/" + rel,
			IsContainer: true,
		}, true
	}

	sf := &types.SourceFile{
		ID:           f.Id,
		Name:         f.Name,
		Path:         "/" + rel,
		Size:         f.Size,
		LastModified: parseTime(f.ModifiedTime),
		ContentHash:  f.Md5Checksum,
	}
	return types.ChangeRecord{
		Kind:     types.ChangeUpserted,
		File:     sf,
		ItemID:   f.Id,
		ItemName: f.Name,
		ItemPath: sf.Path,
	}, true
}

type parentInfo struct {
	Name    string
	Parents []string
}

// resolvePath walks the parent chain up to the root, caching lookups.
func (m *Manager) resolvePath(ctx context.Context, reqCtx *types.RequestContext, f *drive.File, cache map[string]parentInfo) (string, bool) {
	if len(f.Parents) == 0 {
		return "", false
	}
	parentPath, ok := m.resolveParentPath(ctx, reqCtx, f.Parents[0], cache, 0)
	if !ok {
		return "", false
	}
	if parentPath == "" {
		return f.Name, true
	}
	return path.Join(parentPath, f.Name), true
}

func (m *Manager) resolveParentPath(ctx context.Context, reqCtx *types.RequestContext, parentID string, cache map[string]parentInfo, depth int) (string, bool) {
	if parentID == m.rootID {
		return "", true
	}
	if parentID == "" || depth > 50 {
		return "", false
	}

	info, ok := cache[parentID]
	if !ok {
		call := m.client.Service().Files.Get(parentID).
			SupportsAllDrives(true).
			Fields("id,name,parents")
		result, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.File, error) {
			return call.Do()
		})
		if err != nil {
			return "", false
		}
		info = parentInfo{Name: result.Name, Parents: result.Parents}
		cache[parentID] = info
	}

	if len(info.Parents) == 0 {
		return "", false
	}
	grandPath, ok := m.resolveParentPath(ctx, reqCtx, info.Parents[0], cache, depth+1)
	if !ok {
		return "", false
	}
	if grandPath == "" {
		return info.Name, true
	}
	return path.Join(grandPath, info.Name), true
}

// Download opens the file content for reading. The caller closes the reader.
func (m *Manager) Download(ctx context.Context, itemID string) (io.ReadCloser, error) {
	reqCtx := api.NewRequestContext(m.profile, m.rootID, types.RequestTypeDownload)
	m.client.WithItemIDs(reqCtx, itemID)

	call := m.client.Service().Files.Get(itemID).SupportsAllDrives(true)
	resp, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*http.Response, error) {
		return call.Download()
	})
	if err != nil {
		return nil, utils.WrapAppError(
			utils.NewSyncError(utils.ErrCodeDownloadFailed, "failed to download item").
				WithContext("itemId", itemID).Build(), err)
	}
	return resp.Body, nil
}

// Permissions lists the access entries on a file.
func (m *Manager) Permissions(ctx context.Context, itemID string) ([]types.AccessEntry, error) {
	reqCtx := api.NewRequestContext(m.profile, m.rootID, types.RequestTypePermissions)
	m.client.WithItemIDs(reqCtx, itemID)

	call := m.client.Service().Permissions.List(itemID).
		SupportsAllDrives(true).
		Fields("nextPageToken,permissions(id,type,role,emailAddress,displayName,permissionDetails)")

	var entries []types.AccessEntry
	for {
		list, err := api.ExecuteWithRetry(ctx, m.client, reqCtx, func() (*drive.PermissionList, error) {
			return call.Do()
		})
		if err != nil {
			return nil, err
		}
		for _, p := range list.Permissions {
			entries = append(entries, convertPermission(p))
		}
		if list.NextPageToken == "" {
			break
		}
		call = call.PageToken(list.NextPageToken)
	}
	return entries, nil
}

func convertPermission(p *drive.Permission) types.AccessEntry {
	entry := types.AccessEntry{
		ID:          p.Id,
		IdentityID:  p.Id,
		DisplayName: p.DisplayName,
		Email:       p.EmailAddress,
	}
	switch p.Type {
	case "user":
		entry.Type = types.IdentityUser
	case "group":
		entry.Type = types.IdentityGroup
	default:
		entry.Type = types.IdentityUnknown
	}
	if p.Role != "" {
		entry.Roles = []string{p.Role}
	}
	for _, d := range p.PermissionDetails {
		if d.Inherited {
			entry.Inherited = true
			break
		}
	}
	return entry
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
