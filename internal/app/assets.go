package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Poppu13130/magicmoon-backend/pkg/domain"
)

const defaultAssetExtension = ".png"

// materializeAssets downloads each output URL not yet recorded for the job,
// uploads the bytes into object storage, and inserts gallery records.
//
// Failures are contained per URL: one broken asset never aborts the rest of
// the batch, and nothing here escalates into the webhook response - a partial
// batch must not cause the provider to redeliver the whole callback.
func (a *App) materializeAssets(ctx context.Context, job domain.Job, urls []string) {
	if job.UserID == nil || *job.UserID == "" {
		slog.Warn("job has no user, skipping asset storage", "prediction_id", job.PredictionID)
		return
	}
	userID := *job.UserID

	existing, err := a.store.ListAssetsBySourceTask(job.ID)
	if err != nil {
		slog.Warn("unable to read existing assets", "prediction_id", job.PredictionID, "err", err)
	}
	existingURLs := make(map[string]struct{}, len(existing))
	for _, asset := range existing {
		if external, ok := asset.Metadata["external_url"].(string); ok {
			existingURLs[external] = struct{}{}
		}
	}

	folderID := metadataString(job.Metadata, "resolved_folder_id")
	if folderID == "" {
		folderID = metadataString(job.Metadata, "folder_id")
	}
	folderPath := NormalizeFolderPath(metadataString(job.Metadata, "folder_path"))
	if folderID == "" && folderPath != "" {
		resolvedID, _, err := a.resolveFolder(ctx, userID, "", folderPath)
		if err != nil {
			slog.Warn("unable to resolve folder for assets", "prediction_id", job.PredictionID, "folder_path", folderPath, "err", err)
		} else if resolvedID != nil {
			folderID = *resolvedID
		}
	}

	var newAssets []domain.Asset
	for index, rawURL := range urls {
		sourceURL := strings.TrimSpace(rawURL)
		if sourceURL == "" {
			continue
		}
		if _, ok := existingURLs[sourceURL]; ok {
			continue
		}
		filename, storageKey := assetLocation(job.PredictionID, index, sourceURL, folderPath)
		data, contentType, err := a.downloadAsset(ctx, sourceURL)
		if err != nil {
			slog.Warn("asset download failed", "prediction_id", job.PredictionID, "url", sourceURL, "err", err)
			continue
		}
		if contentType == "" {
			contentType = mime.TypeByExtension(path.Ext(filename))
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if err := a.objects.Put(ctx, storageKey, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
			slog.Warn("asset upload failed", "prediction_id", job.PredictionID, "key", storageKey, "err", err)
			continue
		}
		metadata := map[string]any{
			"source":        "replicate",
			"prediction_id": job.PredictionID,
			"external_url":  sourceURL,
		}
		if job.Prompt != nil {
			metadata["prompt"] = *job.Prompt
		}
		if folderPath != "" {
			metadata["folder_path"] = folderPath
		}
		asset := domain.Asset{
			ID:           uuid.NewString(),
			UserID:       userID,
			Bucket:       a.objects.Bucket(),
			Type:         domain.AssetTypeImage,
			Path:         storageKey,
			Filename:     filename,
			Status:       domain.AssetStatusReady,
			MimeType:     contentType,
			SizeBytes:    int64(len(data)),
			SourceTaskID: job.ID,
			Metadata:     metadata,
			CreatedAt:    time.Now().UTC(),
		}
		if folderID != "" {
			id := folderID
			asset.FolderID = &id
		}
		newAssets = append(newAssets, asset)
	}

	if len(newAssets) == 0 {
		return
	}
	if err := a.store.InsertAssets(newAssets); err != nil {
		slog.Error("failed to insert assets", "prediction_id", job.PredictionID, "count", len(newAssets), "err", err)
		return
	}
	slog.Info("inserted assets for prediction", "prediction_id", job.PredictionID, "count", len(newAssets))
}

// assetLocation derives the deterministic storage location for one output:
// all/{folder-segments-or-"replicate"}/{prediction}/{prediction}_{index}{ext}.
// The extension comes from the URL's final path segment, defaulting to .png.
func assetLocation(predictionID string, index int, sourceURL, folderPath string) (filename, storageKey string) {
	ext := defaultAssetExtension
	if parsed, err := url.Parse(sourceURL); err == nil {
		if e := path.Ext(path.Base(parsed.Path)); e != "" {
			ext = e
		}
	}
	filename = fmt.Sprintf("%s_%d%s", predictionID, index, ext)
	prefix := folderPath
	if prefix == "" {
		prefix = "replicate"
	}
	storageKey = path.Join("all", prefix, predictionID, filename)
	return filename, storageKey
}

func (a *App) downloadAsset(ctx context.Context, sourceURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := a.downloads.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	s, _ := metadata[key].(string)
	return strings.TrimSpace(s)
}
