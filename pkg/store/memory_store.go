package store

import (
	"sync"

	"github.com/Poppu13130/magicmoon-backend/pkg/domain"
)

// MemoryStore keeps jobs, folders, and assets in-process. It backs tests and
// local development without Postgres.
type MemoryStore struct {
	mu         sync.RWMutex
	jobs       map[string]domain.Job // key: prediction ID
	folders    map[string]domain.Folder
	folderPath map[string]string // userID + "\x00" + path -> folder ID
	assets     []domain.Asset
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:       make(map[string]domain.Job),
		folders:    make(map[string]domain.Folder),
		folderPath: make(map[string]string),
	}
}

// InsertJob records a job keyed by prediction ID.
func (m *MemoryStore) InsertJob(job domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.PredictionID] = job
	return nil
}

// GetJobByPredictionID retrieves a job.
func (m *MemoryStore) GetJobByPredictionID(predictionID string) (domain.Job, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[predictionID]
	return job, ok, nil
}

// UpdateJobByPredictionID applies an update tuple, last write wins.
func (m *MemoryStore) UpdateJobByPredictionID(predictionID string, upd domain.JobUpdate) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[predictionID]
	if !ok {
		return 0, nil
	}
	job.Status = upd.Status
	job.Output = upd.Output
	job.ErrorMessage = upd.ErrorMessage
	job.UpdatedAt = upd.UpdatedAt
	if upd.Metadata != nil {
		job.Metadata = upd.Metadata
	}
	if upd.CompletedAt != nil {
		job.CompletedAt = upd.CompletedAt
	}
	m.jobs[predictionID] = job
	return 1, nil
}

// GetFolder retrieves a folder scoped to its owner.
func (m *MemoryStore) GetFolder(id, userID string) (domain.Folder, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	folder, ok := m.folders[id]
	if !ok || folder.UserID != userID {
		return domain.Folder{}, false, nil
	}
	return folder, true, nil
}

// GetFolderByPath retrieves a folder by materialized path.
func (m *MemoryStore) GetFolderByPath(userID, path string) (domain.Folder, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.folderPath[folderPathKey(userID, path)]
	if !ok {
		return domain.Folder{}, false, nil
	}
	folder, ok := m.folders[id]
	return folder, ok, nil
}

// CreateFolder inserts one folder node.
func (m *MemoryStore) CreateFolder(folder domain.Folder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders[folder.ID] = folder
	m.folderPath[folderPathKey(folder.UserID, folder.Path)] = folder.ID
	return nil
}

// FolderCount reports the number of folder rows, used by tests to assert
// idempotent materialization.
func (m *MemoryStore) FolderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.folders)
}

// ListAssetsBySourceTask returns assets for one job in insertion order.
func (m *MemoryStore) ListAssetsBySourceTask(sourceTaskID string) ([]domain.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.Asset
	for _, a := range m.assets {
		if a.SourceTaskID == sourceTaskID {
			res = append(res, a)
		}
	}
	return res, nil
}

// InsertAssets records a batch of assets.
func (m *MemoryStore) InsertAssets(assets []domain.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets = append(m.assets, assets...)
	return nil
}

func folderPathKey(userID, path string) string {
	return userID + "\x00" + path
}
