package store

import "github.com/Poppu13130/magicmoon-backend/pkg/domain"

// Store defines persistence operations for jobs, folders, and assets.
type Store interface {
	// jobs
	InsertJob(job domain.Job) error
	GetJobByPredictionID(predictionID string) (domain.Job, bool, error)
	// UpdateJobByPredictionID applies the update tuple to the row keyed by
	// predictionID and reports how many rows matched. Zero means the webhook
	// arrived before the submission insert committed; the caller falls back
	// to an insert.
	UpdateJobByPredictionID(predictionID string, upd domain.JobUpdate) (int64, error)

	// folders
	GetFolder(id, userID string) (domain.Folder, bool, error)
	GetFolderByPath(userID, path string) (domain.Folder, bool, error)
	CreateFolder(folder domain.Folder) error

	// assets
	ListAssetsBySourceTask(sourceTaskID string) ([]domain.Asset, error)
	InsertAssets(assets []domain.Asset) error
}
