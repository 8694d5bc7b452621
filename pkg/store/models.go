package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/Poppu13130/magicmoon-backend/pkg/domain"
)

// GORM models used for persistence.
type JobModel struct {
	ID           string  `gorm:"primaryKey"`
	PredictionID string  `gorm:"uniqueIndex;not null"`
	Model        string  `gorm:"not null"`
	Prompt       *string `gorm:"type:text"`
	Status       string  `gorm:"not null;index"`
	UserID       *string `gorm:"index"`
	Metadata     datatypes.JSON `gorm:"type:jsonb"`
	Output       datatypes.JSON `gorm:"type:jsonb"`
	ErrorMessage *string        `gorm:"type:text"`
	CreatedAt    time.Time      `gorm:"not null"`
	UpdatedAt    time.Time      `gorm:"not null"`
	CompletedAt  *time.Time
}

func (JobModel) TableName() string { return "replicate_jobs" }

type FolderModel struct {
	ID        string  `gorm:"primaryKey"`
	UserID    string  `gorm:"not null;uniqueIndex:idx_folders_user_path,priority:1"`
	Name      string  `gorm:"not null"`
	ParentID  *string `gorm:"index"`
	Path      string  `gorm:"not null;uniqueIndex:idx_folders_user_path,priority:2"`
	CreatedAt time.Time `gorm:"not null"`
}

func (FolderModel) TableName() string { return "folders" }

type AssetModel struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"not null;index"`
	Bucket       string `gorm:"not null"`
	Type         string `gorm:"not null"`
	Path         string `gorm:"not null"`
	Filename     string `gorm:"not null"`
	Status       string `gorm:"not null"`
	MimeType     string
	SizeBytes    int64
	SourceTaskID string         `gorm:"not null;index"`
	FolderID     *string        `gorm:"index"`
	Metadata     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"not null"`
}

func (AssetModel) TableName() string { return "assets" }

func jobToModel(j domain.Job) (JobModel, error) {
	metadata, err := toJSON(j.Metadata)
	if err != nil {
		return JobModel{}, err
	}
	output, err := toJSON(j.Output)
	if err != nil {
		return JobModel{}, err
	}
	return JobModel{
		ID:           j.ID,
		PredictionID: j.PredictionID,
		Model:        j.Model,
		Prompt:       j.Prompt,
		Status:       j.Status,
		UserID:       j.UserID,
		Metadata:     metadata,
		Output:       output,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		CompletedAt:  j.CompletedAt,
	}, nil
}

func jobFromModel(m JobModel) domain.Job {
	return domain.Job{
		ID:           m.ID,
		PredictionID: m.PredictionID,
		Model:        m.Model,
		Prompt:       m.Prompt,
		Status:       m.Status,
		UserID:       m.UserID,
		Metadata:     mapFromJSON(m.Metadata),
		Output:       anyFromJSON(m.Output),
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		CompletedAt:  m.CompletedAt,
	}
}

func folderToModel(f domain.Folder) FolderModel {
	return FolderModel{
		ID:        f.ID,
		UserID:    f.UserID,
		Name:      f.Name,
		ParentID:  f.ParentID,
		Path:      f.Path,
		CreatedAt: f.CreatedAt,
	}
}

func folderFromModel(m FolderModel) domain.Folder {
	return domain.Folder{
		ID:        m.ID,
		UserID:    m.UserID,
		Name:      m.Name,
		ParentID:  m.ParentID,
		Path:      m.Path,
		CreatedAt: m.CreatedAt,
	}
}

func assetToModel(a domain.Asset) (AssetModel, error) {
	metadata, err := toJSON(a.Metadata)
	if err != nil {
		return AssetModel{}, err
	}
	return AssetModel{
		ID:           a.ID,
		UserID:       a.UserID,
		Bucket:       a.Bucket,
		Type:         a.Type,
		Path:         a.Path,
		Filename:     a.Filename,
		Status:       a.Status,
		MimeType:     a.MimeType,
		SizeBytes:    a.SizeBytes,
		SourceTaskID: a.SourceTaskID,
		FolderID:     a.FolderID,
		Metadata:     metadata,
		CreatedAt:    a.CreatedAt,
	}, nil
}

func assetFromModel(m AssetModel) domain.Asset {
	return domain.Asset{
		ID:           m.ID,
		UserID:       m.UserID,
		Bucket:       m.Bucket,
		Type:         m.Type,
		Path:         m.Path,
		Filename:     m.Filename,
		Status:       m.Status,
		MimeType:     m.MimeType,
		SizeBytes:    m.SizeBytes,
		SourceTaskID: m.SourceTaskID,
		FolderID:     m.FolderID,
		Metadata:     mapFromJSON(m.Metadata),
		CreatedAt:    m.CreatedAt,
	}
}

func toJSON(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func mapFromJSON(raw datatypes.JSON) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func anyFromJSON(raw datatypes.JSON) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
