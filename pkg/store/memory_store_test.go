package store

import (
	"testing"
	"time"

	"github.com/Poppu13130/magicmoon-backend/pkg/domain"
)

func TestMemoryStoreJobUpdateSemantics(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()

	if rows, err := s.UpdateJobByPredictionID("missing", domain.JobUpdate{Status: "processing", UpdatedAt: now}); err != nil || rows != 0 {
		t.Fatalf("update of missing job: rows=%d err=%v, want 0 rows", rows, err)
	}

	user := "user-1"
	if err := s.InsertJob(domain.Job{
		ID:           "job-1",
		PredictionID: "pred-1",
		Status:       "starting",
		UserID:       &user,
		Metadata:     map[string]any{"folder_path": "pets"},
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		t.Fatalf("insert job: %v", err)
	}

	// Update without metadata must keep the submission metadata.
	done := now.Add(time.Minute)
	rows, err := s.UpdateJobByPredictionID("pred-1", domain.JobUpdate{
		Status:      "succeeded",
		Output:      []any{"https://x.test/a.png"},
		UpdatedAt:   done,
		CompletedAt: &done,
	})
	if err != nil || rows != 1 {
		t.Fatalf("update: rows=%d err=%v, want 1 row", rows, err)
	}

	job, ok, err := s.GetJobByPredictionID("pred-1")
	if err != nil || !ok {
		t.Fatalf("job lookup: ok=%v err=%v", ok, err)
	}
	if job.Status != "succeeded" {
		t.Fatalf("status = %q", job.Status)
	}
	if job.Metadata["folder_path"] != "pets" {
		t.Fatalf("metadata lost on update: %v", job.Metadata)
	}
	if job.CompletedAt == nil || !job.CompletedAt.Equal(done) {
		t.Fatalf("completed_at = %v, want %v", job.CompletedAt, done)
	}
	if job.ID != "job-1" || job.UserID == nil || *job.UserID != "user-1" {
		t.Fatalf("identity fields changed on update: %+v", job)
	}
}

func TestMemoryStoreFolderScoping(t *testing.T) {
	s := NewMemoryStore()
	if err := s.CreateFolder(domain.Folder{ID: "f1", UserID: "user-1", Name: "pets", Path: "pets"}); err != nil {
		t.Fatalf("create folder: %v", err)
	}

	if _, ok, _ := s.GetFolder("f1", "user-1"); !ok {
		t.Fatal("owner lookup failed")
	}
	if _, ok, _ := s.GetFolder("f1", "user-2"); ok {
		t.Fatal("foreign user must not see the folder")
	}
	if _, ok, _ := s.GetFolderByPath("user-1", "pets"); !ok {
		t.Fatal("path lookup failed")
	}
	if _, ok, _ := s.GetFolderByPath("user-2", "pets"); ok {
		t.Fatal("path lookup must be scoped per user")
	}
	if got := s.FolderCount(); got != 1 {
		t.Fatalf("folder count = %d, want 1", got)
	}
}

func TestMemoryStoreAssetListing(t *testing.T) {
	s := NewMemoryStore()
	batch := []domain.Asset{
		{ID: "a1", SourceTaskID: "job-1", Path: "all/replicate/p/p_0.png"},
		{ID: "a2", SourceTaskID: "job-2", Path: "all/replicate/q/q_0.png"},
		{ID: "a3", SourceTaskID: "job-1", Path: "all/replicate/p/p_1.png"},
	}
	if err := s.InsertAssets(batch); err != nil {
		t.Fatalf("insert assets: %v", err)
	}

	assets, err := s.ListAssetsBySourceTask("job-1")
	if err != nil {
		t.Fatalf("list assets: %v", err)
	}
	if len(assets) != 2 || assets[0].ID != "a1" || assets[1].ID != "a3" {
		t.Fatalf("unexpected listing: %+v", assets)
	}

	empty, err := s.ListAssetsBySourceTask("job-3")
	if err != nil || len(empty) != 0 {
		t.Fatalf("unexpected listing for unknown job: %v %v", empty, err)
	}
}
