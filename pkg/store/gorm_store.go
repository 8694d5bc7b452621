package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Poppu13130/magicmoon-backend/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&JobModel{}, &FolderModel{}, &AssetModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// InsertJob records a newly submitted job.
func (s *GormStore) InsertJob(job domain.Job) error {
	model, err := jobToModel(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return s.db.Create(&model).Error
}

// GetJobByPredictionID looks a job up by its provider-assigned id.
func (s *GormStore) GetJobByPredictionID(predictionID string) (domain.Job, bool, error) {
	var model JobModel
	if err := s.db.First(&model, "prediction_id = ?", predictionID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Job{}, false, nil
		}
		return domain.Job{}, false, err
	}
	return jobFromModel(model), true, nil
}

// UpdateJobByPredictionID applies a webhook update tuple and reports rows matched.
func (s *GormStore) UpdateJobByPredictionID(predictionID string, upd domain.JobUpdate) (int64, error) {
	values := map[string]any{
		"status":     upd.Status,
		"updated_at": upd.UpdatedAt,
	}
	output, err := toJSON(upd.Output)
	if err != nil {
		return 0, fmt.Errorf("encode output: %w", err)
	}
	values["output"] = output
	values["error_message"] = upd.ErrorMessage
	if upd.Metadata != nil {
		metadata, err := toJSON(upd.Metadata)
		if err != nil {
			return 0, fmt.Errorf("encode metadata: %w", err)
		}
		values["metadata"] = metadata
	}
	if upd.CompletedAt != nil {
		values["completed_at"] = upd.CompletedAt
	}
	res := s.db.Model(&JobModel{}).Where("prediction_id = ?", predictionID).Updates(values)
	return res.RowsAffected, res.Error
}

// GetFolder retrieves a folder scoped to its owner. A folder belonging to
// another user is reported as missing, not forbidden.
func (s *GormStore) GetFolder(id, userID string) (domain.Folder, bool, error) {
	var model FolderModel
	if err := s.db.First(&model, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Folder{}, false, nil
		}
		return domain.Folder{}, false, err
	}
	return folderFromModel(model), true, nil
}

// GetFolderByPath retrieves a folder by its materialized dotted path.
func (s *GormStore) GetFolderByPath(userID, path string) (domain.Folder, bool, error) {
	var model FolderModel
	if err := s.db.First(&model, "user_id = ? AND path = ?", userID, path).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Folder{}, false, nil
		}
		return domain.Folder{}, false, err
	}
	return folderFromModel(model), true, nil
}

// CreateFolder inserts one folder node.
func (s *GormStore) CreateFolder(folder domain.Folder) error {
	model := folderToModel(folder)
	return s.db.Create(&model).Error
}

// ListAssetsBySourceTask returns all assets materialized for one job.
func (s *GormStore) ListAssetsBySourceTask(sourceTaskID string) ([]domain.Asset, error) {
	var models []AssetModel
	if err := s.db.Order("created_at ASC").Find(&models, "source_task_id = ?", sourceTaskID).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Asset, 0, len(models))
	for _, m := range models {
		res = append(res, assetFromModel(m))
	}
	return res, nil
}

// InsertAssets records a batch of gallery assets.
func (s *GormStore) InsertAssets(assets []domain.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	models := make([]AssetModel, 0, len(assets))
	for _, a := range assets {
		model, err := assetToModel(a)
		if err != nil {
			return fmt.Errorf("encode asset: %w", err)
		}
		models = append(models, model)
	}
	return s.db.Create(&models).Error
}
