package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Poppu13130/magicmoon-backend/pkg/domain"
)

// webhookEvent is the subset of a provider callback payload the ingester
// consumes. The provider may deliver the same event more than once and in
// any order.
type webhookEvent struct {
	ID       string         `json:"id"`
	Status   string         `json:"status"`
	Output   any            `json:"output"`
	Error    any            `json:"error"`
	Metadata map[string]any `json:"metadata"`
}

// WebhookResult is returned to the provider after a delivery is applied.
type WebhookResult struct {
	OK           bool   `json:"ok"`
	PredictionID string `json:"prediction_id"`
	Status       string `json:"status"`
	JobUpdated   bool   `json:"job_updated"`
}

// IngestWebhook applies one provider callback to the job store and, on
// terminal success, materializes the job's outputs into the asset gallery.
//
// The handler is safe to invoke repeatedly with the same payload: the status
// write is last-write-wins and materialization dedups by source URL. When the
// callback beats the submission insert (or that insert was lost), a fallback
// insert self-heals instead of erroring.
func (a *App) IngestWebhook(ctx context.Context, payload []byte) (WebhookResult, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return WebhookResult{}, ErrMissingPredictionID
	}
	if strings.TrimSpace(event.ID) == "" {
		return WebhookResult{}, ErrMissingPredictionID
	}

	status := strings.ToLower(strings.TrimSpace(event.Status))
	if status == "" {
		status = "unknown"
	}
	now := time.Now().UTC()
	upd := domain.JobUpdate{
		Status:       status,
		Output:       event.Output,
		ErrorMessage: errorMessageFrom(event.Error),
		Metadata:     event.Metadata,
		UpdatedAt:    now,
	}
	if domain.IsTerminalStatus(status) {
		upd.CompletedAt = &now
	}

	rows, err := a.store.UpdateJobByPredictionID(event.ID, upd)
	if err != nil {
		return WebhookResult{}, &UpstreamError{Op: "update replicate job", Err: err}
	}
	jobUpdated := rows > 0
	if !jobUpdated {
		// Webhook arrived before our own insert committed; recover by
		// inserting the full tuple. Two concurrent deliveries can both land
		// here and both insert - a known race inherited from the
		// update-then-insert pattern, left unguarded on purpose.
		slog.Warn("prediction not found on webhook update, inserting fallback record",
			"prediction_id", event.ID, "status", status)
		job := domain.Job{
			ID:           uuid.NewString(),
			PredictionID: event.ID,
			Status:       status,
			Output:       event.Output,
			ErrorMessage: upd.ErrorMessage,
			Metadata:     event.Metadata,
			CreatedAt:    now,
			UpdatedAt:    now,
			CompletedAt:  upd.CompletedAt,
		}
		if err := a.store.InsertJob(job); err != nil {
			return WebhookResult{}, &UpstreamError{Op: "persist replicate job", Err: err}
		}
		jobUpdated = true
	}

	job, ok, err := a.store.GetJobByPredictionID(event.ID)
	switch {
	case err != nil:
		slog.Warn("unable to reload job after webhook update, skipping asset materialization",
			"prediction_id", event.ID, "err", err)
	case !ok:
		slog.Warn("job row missing after webhook update, skipping asset materialization",
			"prediction_id", event.ID)
	case domain.IsSuccessStatus(status):
		if urls := ExtractOutputURLs(job.Output); len(urls) > 0 {
			a.materializeAssets(ctx, job, urls)
		}
	}

	return WebhookResult{OK: true, PredictionID: event.ID, Status: status, JobUpdated: jobUpdated}, nil
}

// errorMessageFrom renders the callback error field, which may be a string,
// absent, or an arbitrary structure.
func errorMessageFrom(v any) *string {
	switch e := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(e) == "" {
			return nil
		}
		return &e
	default:
		raw, err := json.Marshal(e)
		if err != nil {
			return nil
		}
		msg := string(raw)
		return &msg
	}
}
