package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Poppu13130/magicmoon-backend/pkg/domain"
)

// fileServer serves fake output bytes for asset downloads.
func fileServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing.png") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes:" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func seedJob(t *testing.T, env testEnv, job domain.Job) domain.Job {
	t.Helper()
	if job.ID == "" {
		job.ID = "job-" + job.PredictionID
	}
	if job.Status == "" {
		job.Status = "starting"
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if err := env.store.InsertJob(job); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

func webhookPayload(t *testing.T, event map[string]any) []byte {
	t.Helper()
	raw, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestIngestWebhookUpdatesExistingJob(t *testing.T) {
	env := newTestEnv(t, nil)
	user := "user-1"
	seedJob(t, env, domain.Job{PredictionID: "pred-1", UserID: &user})

	res, err := env.app.IngestWebhook(context.Background(), webhookPayload(t, map[string]any{
		"id":     "pred-1",
		"status": "Processing",
	}))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !res.OK || !res.JobUpdated || res.Status != "processing" {
		t.Fatalf("unexpected result: %+v", res)
	}

	job, _, _ := env.store.GetJobByPredictionID("pred-1")
	if job.Status != "processing" {
		t.Fatalf("status = %q, want processing", job.Status)
	}
	if job.CompletedAt != nil {
		t.Fatal("non-terminal status must not set completed_at")
	}
}

func TestIngestWebhookFallbackInsertThenPoll(t *testing.T) {
	env := newTestEnv(t, nil)

	res, err := env.app.IngestWebhook(context.Background(), webhookPayload(t, map[string]any{
		"id":     "pred-orphan",
		"status": "processing",
	}))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !res.JobUpdated {
		t.Fatal("fallback insert must report job_updated")
	}

	job, err := env.app.GetPrediction("", "pred-orphan")
	if err != nil {
		t.Fatalf("poll after fallback insert: %v", err)
	}
	if job.Status != "processing" {
		t.Fatalf("status = %q, want processing", job.Status)
	}
}

func TestIngestWebhookSuccessMaterializesAssets(t *testing.T) {
	env := newTestEnv(t, nil)
	fs := fileServer(t)
	user := "user-1"
	job := seedJob(t, env, domain.Job{
		PredictionID: "pred-1",
		UserID:       &user,
		Prompt:       strPtr("a cat"),
		Metadata:     map[string]any{"folder_path": "pets/cats"},
	})

	payload := webhookPayload(t, map[string]any{
		"id":     "pred-1",
		"status": "succeeded",
		"output": []string{fs.URL + "/one.png", fs.URL + "/two.webp"},
	})
	if _, err := env.app.IngestWebhook(context.Background(), payload); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	assets, err := env.store.ListAssetsBySourceTask(job.ID)
	if err != nil {
		t.Fatalf("list assets: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("assets = %d, want 2", len(assets))
	}

	first := assets[0]
	if first.Path != "all/pets/cats/pred-1/pred-1_0.png" {
		t.Fatalf("unexpected storage key: %s", first.Path)
	}
	if first.Filename != "pred-1_0.png" {
		t.Fatalf("unexpected filename: %s", first.Filename)
	}
	if first.Status != domain.AssetStatusReady || first.Type != domain.AssetTypeImage {
		t.Fatalf("unexpected asset state: %+v", first)
	}
	if first.MimeType != "image/png" {
		t.Fatalf("unexpected mime type: %s", first.MimeType)
	}
	if first.Metadata["external_url"] != fs.URL+"/one.png" {
		t.Fatalf("unexpected external_url: %v", first.Metadata["external_url"])
	}
	if first.Metadata["prompt"] != "a cat" {
		t.Fatalf("unexpected prompt metadata: %v", first.Metadata["prompt"])
	}
	if first.FolderID == nil {
		t.Fatal("asset must carry the resolved folder id")
	}

	// The webp output keeps its own extension.
	if assets[1].Path != "all/pets/cats/pred-1/pred-1_1.webp" {
		t.Fatalf("unexpected second storage key: %s", assets[1].Path)
	}

	if !env.objects.has(first.Path) {
		t.Fatal("asset bytes missing from object store")
	}

	// Completing the folder path materializes the chain too.
	if _, ok, _ := env.store.GetFolderByPath("user-1", "pets.cats"); !ok {
		t.Fatal("folder path not materialized during asset storage")
	}

	updated, _, _ := env.store.GetJobByPredictionID("pred-1")
	if updated.CompletedAt == nil {
		t.Fatal("terminal status must set completed_at")
	}
}

func TestIngestWebhookReplayDoesNotDuplicateAssets(t *testing.T) {
	env := newTestEnv(t, nil)
	fs := fileServer(t)
	user := "user-1"
	job := seedJob(t, env, domain.Job{PredictionID: "pred-1", UserID: &user})

	payload := webhookPayload(t, map[string]any{
		"id":     "pred-1",
		"status": "succeeded",
		"output": []string{fs.URL + "/one.png"},
	})
	for i := 0; i < 2; i++ {
		if _, err := env.app.IngestWebhook(context.Background(), payload); err != nil {
			t.Fatalf("ingest #%d: %v", i+1, err)
		}
	}

	assets, _ := env.store.ListAssetsBySourceTask(job.ID)
	if len(assets) != 1 {
		t.Fatalf("assets after replay = %d, want 1", len(assets))
	}
}

func TestIngestWebhookPartialBatchContinues(t *testing.T) {
	env := newTestEnv(t, nil)
	fs := fileServer(t)
	user := "user-1"
	job := seedJob(t, env, domain.Job{PredictionID: "pred-1", UserID: &user})

	payload := webhookPayload(t, map[string]any{
		"id":     "pred-1",
		"status": "succeeded",
		"output": []string{fs.URL + "/missing.png", fs.URL + "/ok.png"},
	})
	if _, err := env.app.IngestWebhook(context.Background(), payload); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	assets, _ := env.store.ListAssetsBySourceTask(job.ID)
	if len(assets) != 1 {
		t.Fatalf("assets = %d, want 1 (broken download skipped)", len(assets))
	}
	// The surviving asset keeps its original position index.
	if assets[0].Filename != "pred-1_1.png" {
		t.Fatalf("unexpected filename: %s", assets[0].Filename)
	}
}

func TestIngestWebhookFailureStatusSkipsAssets(t *testing.T) {
	env := newTestEnv(t, nil)
	fs := fileServer(t)
	user := "user-1"
	job := seedJob(t, env, domain.Job{PredictionID: "pred-1", UserID: &user})

	payload := webhookPayload(t, map[string]any{
		"id":     "pred-1",
		"status": "failed",
		"error":  "NSFW content detected",
		"output": []string{fs.URL + "/one.png"},
	})
	if _, err := env.app.IngestWebhook(context.Background(), payload); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	assets, _ := env.store.ListAssetsBySourceTask(job.ID)
	if len(assets) != 0 {
		t.Fatalf("failed job must not produce assets, got %d", len(assets))
	}
	updated, _, _ := env.store.GetJobByPredictionID("pred-1")
	if updated.ErrorMessage == nil || *updated.ErrorMessage != "NSFW content detected" {
		t.Fatalf("unexpected error message: %v", updated.ErrorMessage)
	}
	if updated.CompletedAt == nil {
		t.Fatal("failed is terminal and must set completed_at")
	}
}

func TestIngestWebhookAnonymousJobSkipsAssets(t *testing.T) {
	env := newTestEnv(t, nil)
	fs := fileServer(t)
	job := seedJob(t, env, domain.Job{PredictionID: "pred-1"})

	payload := webhookPayload(t, map[string]any{
		"id":     "pred-1",
		"status": "succeeded",
		"output": []string{fs.URL + "/one.png"},
	})
	if _, err := env.app.IngestWebhook(context.Background(), payload); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	assets, _ := env.store.ListAssetsBySourceTask(job.ID)
	if len(assets) != 0 {
		t.Fatalf("anonymous job must not produce assets, got %d", len(assets))
	}
}

func TestIngestWebhookRejectsMissingPredictionID(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, payload := range []string{`{"status":"succeeded"}`, `{"id":"  "}`, `not json`} {
		if _, err := env.app.IngestWebhook(context.Background(), []byte(payload)); err != ErrMissingPredictionID {
			t.Fatalf("payload %q: expected ErrMissingPredictionID, got %v", payload, err)
		}
	}
}

func TestIngestWebhookStructuredError(t *testing.T) {
	env := newTestEnv(t, nil)
	seedJob(t, env, domain.Job{PredictionID: "pred-1"})

	payload := webhookPayload(t, map[string]any{
		"id":     "pred-1",
		"status": "failed",
		"error":  map[string]any{"code": "E_LIMIT", "detail": "quota exceeded"},
	})
	if _, err := env.app.IngestWebhook(context.Background(), payload); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	job, _, _ := env.store.GetJobByPredictionID("pred-1")
	if job.ErrorMessage == nil || !strings.Contains(*job.ErrorMessage, "quota exceeded") {
		t.Fatalf("structured error not rendered: %v", job.ErrorMessage)
	}
}

func strPtr(s string) *string { return &s }
