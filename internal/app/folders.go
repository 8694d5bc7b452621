package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Poppu13130/magicmoon-backend/pkg/domain"
)

// NormalizeFolderPath canonicalizes a slash-separated folder path: segments
// are trimmed, empties dropped. An empty result means "no path".
func NormalizeFolderPath(raw string) string {
	parts := strings.Split(raw, "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		segments = append(segments, part)
	}
	return strings.Join(segments, "/")
}

func dottedToSlash(path string) string {
	return strings.ReplaceAll(path, ".", "/")
}

// resolveFolder validates a folder designation and returns the canonical
// folder id plus its slash-separated display path. Exactly one of folderID /
// folderPath may be set (the caller enforces exclusivity). folderPath must
// already be normalized.
//
// Without a user id resolution is skipped and the raw folder id is passed
// through unchanged: folder features only exist for authenticated callers.
func (a *App) resolveFolder(ctx context.Context, userID, folderID, folderPath string) (*string, *string, error) {
	if userID == "" {
		if folderID == "" {
			return nil, nil, nil
		}
		return &folderID, nil, nil
	}

	if folderID != "" {
		folder, ok, err := a.store.GetFolder(folderID, userID)
		if err != nil {
			return nil, nil, &UpstreamError{Op: fmt.Sprintf("validate folder_id %q", folderID), Err: err}
		}
		if !ok {
			return nil, nil, ErrFolderNotFound
		}
		slash := dottedToSlash(folder.Path)
		return &folder.ID, &slash, nil
	}

	if folderPath != "" {
		id, err := a.materializeFolderPath(ctx, userID, strings.Split(folderPath, "/"))
		if err != nil {
			return nil, nil, err
		}
		return id, &folderPath, nil
	}

	return nil, nil, nil
}

// materializeFolderPath walks the path segments left to right, reusing
// existing folders and creating the missing suffix. Repeated calls with the
// same path are idempotent and create zero new rows.
//
// Two concurrent calls for the same new path can race past the lookup and
// both attempt the insert; the unique (user_id, path) index makes one of
// them fail. The loser is surfaced as an upstream error rather than
// retried, matching the store-level no-transaction policy.
func (a *App) materializeFolderPath(ctx context.Context, userID string, segments []string) (*string, error) {
	var parentID *string
	prefix := ""
	for _, segment := range segments {
		if prefix == "" {
			prefix = segment
		} else {
			prefix += "." + segment
		}
		if a.folderCache != nil {
			if id, ok := a.folderCache.Get(ctx, userID, prefix); ok {
				parentID = &id
				continue
			}
		}
		folder, ok, err := a.store.GetFolderByPath(userID, prefix)
		if err != nil {
			return nil, &UpstreamError{Op: fmt.Sprintf("resolve folder path %q", prefix), Err: err}
		}
		id := folder.ID
		if !ok {
			id = uuid.NewString()
			if err := a.store.CreateFolder(domain.Folder{
				ID:        id,
				UserID:    userID,
				Name:      segment,
				ParentID:  parentID,
				Path:      prefix,
				CreatedAt: time.Now().UTC(),
			}); err != nil {
				return nil, &UpstreamError{Op: fmt.Sprintf("create folder %q", prefix), Err: err}
			}
		}
		if a.folderCache != nil {
			a.folderCache.Set(ctx, userID, prefix, id)
		}
		parentID = &id
	}
	return parentID, nil
}
