package domain

import (
	"strings"
	"time"
)

// Job statuses as reported by the inference provider. The set is open ended:
// anything the provider sends is stored lower-cased, these are just the values
// the ingester gives special treatment.
const (
	JobStatusStarting   = "starting"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"
	JobStatusCanceled   = "canceled"
	JobStatusCompleted  = "completed"
)

// AssetStatusReady marks an asset whose bytes landed in object storage.
const AssetStatusReady = "ready"

// AssetTypeImage is the only asset type produced today.
const AssetTypeImage = "image"

// Job tracks one inference request submitted to the external provider.
// PredictionID is the provider-assigned id and the sole correlation key
// between submission and webhook ingestion.
type Job struct {
	ID           string         `json:"id"`
	PredictionID string         `json:"prediction_id"`
	Model        string         `json:"model"`
	Prompt       *string        `json:"prompt"`
	Status       string         `json:"status"`
	UserID       *string        `json:"user_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Output       any            `json:"output,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// JobUpdate is the tuple a webhook delivery applies to a job row.
// Last write wins; the ingester never rejects out-of-order deliveries.
type JobUpdate struct {
	Status       string
	Output       any
	ErrorMessage *string
	Metadata     map[string]any
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

// Folder is one node of a per-user hierarchical namespace. Path is the
// materialized dot-joined ancestor chain ("pets.cats"), unique per user,
// kept consistent with the parent pointers by the resolver.
type Folder struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	ParentID  *string   `json:"parent_id,omitempty"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// Asset is one gallery-visible output of a job, stored in the object store
// under Path inside Bucket. Metadata records the external source URL, which
// is what keeps materialization idempotent across webhook redeliveries.
type Asset struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Bucket       string         `json:"bucket"`
	Type         string         `json:"type"`
	Path         string         `json:"path"`
	Filename     string         `json:"filename"`
	Status       string         `json:"status"`
	MimeType     string         `json:"mime_type,omitempty"`
	SizeBytes    int64          `json:"size_bytes,omitempty"`
	SourceTaskID string         `json:"source_task_id"`
	FolderID     *string        `json:"folder_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// IsSuccessStatus reports whether a terminal status should trigger asset
// materialization.
func IsSuccessStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case JobStatusSucceeded, JobStatusCompleted, "success":
		return true
	default:
		return false
	}
}

// IsTerminalStatus reports whether no further provider callbacks are expected.
func IsTerminalStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCanceled, JobStatusCompleted, "success":
		return true
	default:
		return false
	}
}
