package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Poppu13130/magicmoon-backend/pkg/domain"
	"github.com/Poppu13130/magicmoon-backend/pkg/replicate"
	"github.com/Poppu13130/magicmoon-backend/pkg/storage"
	"github.com/Poppu13130/magicmoon-backend/pkg/store"
)

// Model identifiers used when a request does not pick one explicitly.
const (
	DefaultModel        = "ideogram-ai/ideogram-character"
	DefaultUpscaleModel = "recraft-ai/recraft-crisp-upscale"
)

const defaultDownloadTimeout = 30 * time.Second

// Config holds runtime configuration for the core application.
type Config struct {
	Store           store.Store
	Objects         storage.ObjectStore
	Provider        *replicate.Client
	FolderCache     *store.FolderPathCache
	DefaultModel    string
	UpscaleModel    string
	WebhookBaseURL  string
	DownloadTimeout time.Duration
}

// App wires the job store, object storage, and the inference provider into
// the submission and webhook-ingestion flows.
type App struct {
	store          store.Store
	objects        storage.ObjectStore
	provider       *replicate.Client
	folderCache    *store.FolderPathCache
	defaultModel   string
	upscaleModel   string
	webhookBaseURL string
	downloads      *http.Client
}

// New constructs the application core.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Objects == nil {
		return nil, errors.New("object store required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("provider client required")
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = DefaultModel
	}
	upscaleModel := cfg.UpscaleModel
	if upscaleModel == "" {
		upscaleModel = DefaultUpscaleModel
	}
	timeout := cfg.DownloadTimeout
	if timeout <= 0 {
		timeout = defaultDownloadTimeout
	}
	return &App{
		store:          cfg.Store,
		objects:        cfg.Objects,
		provider:       cfg.Provider,
		folderCache:    cfg.FolderCache,
		defaultModel:   defaultModel,
		upscaleModel:   upscaleModel,
		webhookBaseURL: strings.TrimRight(cfg.WebhookBaseURL, "/"),
		downloads:      &http.Client{Timeout: timeout},
	}, nil
}

// PredictionRequest is one generation request from a client.
type PredictionRequest struct {
	Prompt                  string   `json:"prompt,omitempty"`
	ImageURL                string   `json:"image_url,omitempty"`
	Model                   string   `json:"model,omitempty"`
	CharacterReferenceImage string   `json:"character_reference_image,omitempty"`
	Resolution              string   `json:"resolution,omitempty"`
	StyleType               string   `json:"style_type,omitempty"`
	AspectRatio             string   `json:"aspect_ratio,omitempty"`
	RenderingSpeed          string   `json:"rendering_speed,omitempty"`
	MagicPromptOption       string   `json:"magic_prompt_option,omitempty"`
	WebhookEvents           []string `json:"webhook_events,omitempty"`
	FolderID                string   `json:"folder_id,omitempty"`
	FolderPath              string   `json:"folder_path,omitempty"`
}

// PredictionAck is returned to the caller immediately after the provider
// accepts a job. Completion arrives later via webhook.
type PredictionAck struct {
	PredictionID string `json:"prediction_id"`
	Status       string `json:"status"`
}

// CreatePrediction submits a generation job to the provider and records it
// locally. userID may be empty; folder features are skipped for anonymous
// callers.
func (a *App) CreatePrediction(ctx context.Context, userID string, req PredictionRequest) (PredictionAck, error) {
	if req.FolderID != "" && req.FolderPath != "" {
		return PredictionAck{}, ErrFolderConflict
	}
	if a.webhookBaseURL == "" {
		return PredictionAck{}, ErrWebhookNotConfigured
	}
	if strings.TrimSpace(req.Prompt) == "" && strings.TrimSpace(req.ImageURL) == "" {
		return PredictionAck{}, ErrInputRequired
	}

	normalizedPath := NormalizeFolderPath(req.FolderPath)
	resolvedFolderID, resolvedFolderPath, err := a.resolveFolder(ctx, userID, req.FolderID, normalizedPath)
	if err != nil {
		return PredictionAck{}, err
	}

	model := a.modelFor(req)
	events := req.WebhookEvents
	if len(events) == 0 {
		events = []string{"completed"}
	}
	pred, err := a.provider.CreatePrediction(ctx, replicate.PredictionRequest{
		Model:               model,
		Input:               providerInput(req),
		Webhook:             a.webhookBaseURL + "/ai/webhooks/replicate",
		WebhookEventsFilter: events,
	})
	if err != nil {
		return PredictionAck{}, providerRejection(err)
	}

	status := strings.ToLower(strings.TrimSpace(pred.Status))
	if status == "" {
		status = domain.JobStatusStarting
	}
	now := time.Now().UTC()
	job := domain.Job{
		ID:           uuid.NewString(),
		PredictionID: pred.ID,
		Model:        model,
		Status:       status,
		Metadata:     submissionMetadata(req, normalizedPath, resolvedFolderID, resolvedFolderPath),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		job.Prompt = &prompt
	}
	if userID != "" {
		job.UserID = &userID
	}
	if err := a.store.InsertJob(job); err != nil {
		return PredictionAck{}, &UpstreamError{Op: "persist replicate job", Err: err}
	}
	return PredictionAck{PredictionID: pred.ID, Status: status}, nil
}

// GetPrediction returns the locally tracked state of a job. A record owned
// by a different authenticated user is refused.
func (a *App) GetPrediction(userID, predictionID string) (domain.Job, error) {
	job, ok, err := a.store.GetJobByPredictionID(predictionID)
	if err != nil {
		return domain.Job{}, &UpstreamError{Op: "fetch prediction state", Err: err}
	}
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}
	if job.UserID != nil && userID != "" && *job.UserID != userID {
		return domain.Job{}, ErrNotJobOwner
	}
	return job, nil
}

// RunResult is the outcome of a synchronous generation call.
type RunResult struct {
	Status    string `json:"status"`
	OutputURL string `json:"output_url,omitempty"`
}

// RunDirect executes a generation synchronously via the provider's wait mode.
// No job row is recorded; the output is returned inline.
func (a *App) RunDirect(ctx context.Context, req PredictionRequest) (RunResult, error) {
	if strings.TrimSpace(req.Prompt) == "" && strings.TrimSpace(req.ImageURL) == "" {
		return RunResult{}, ErrInputRequired
	}
	pred, err := a.provider.Run(ctx, replicate.PredictionRequest{
		Model: a.modelFor(req),
		Input: providerInput(req),
	})
	if err != nil {
		return RunResult{}, providerRejection(err)
	}
	res := RunResult{Status: strings.ToLower(pred.Status)}
	if urls := ExtractOutputURLs(pred.Output); len(urls) > 0 {
		res.OutputURL = urls[0]
	}
	return res, nil
}

// modelFor picks the target model: an explicit choice wins, an image-only
// request defaults to the upscaler, everything else to the text-to-image model.
func (a *App) modelFor(req PredictionRequest) string {
	if m := strings.TrimSpace(req.Model); m != "" {
		return m
	}
	if strings.TrimSpace(req.Prompt) == "" && strings.TrimSpace(req.ImageURL) != "" {
		return a.upscaleModel
	}
	return a.defaultModel
}

func providerInput(req PredictionRequest) map[string]any {
	if strings.TrimSpace(req.Prompt) == "" && strings.TrimSpace(req.ImageURL) != "" {
		return map[string]any{"image": req.ImageURL}
	}
	input := map[string]any{
		"prompt":              req.Prompt,
		"resolution":          orDefault(req.Resolution, "None"),
		"style_type":          orDefault(req.StyleType, "Auto"),
		"aspect_ratio":        orDefault(req.AspectRatio, "1:1"),
		"rendering_speed":     orDefault(req.RenderingSpeed, "Default"),
		"magic_prompt_option": orDefault(req.MagicPromptOption, "Auto"),
	}
	if req.CharacterReferenceImage != "" {
		input["character_reference_image"] = req.CharacterReferenceImage
	}
	return input
}

// submissionMetadata captures the generation parameters plus the requested
// and resolved folder designation on the job row.
func submissionMetadata(req PredictionRequest, normalizedPath string, folderID, folderPath *string) map[string]any {
	metadata := map[string]any{}
	if req.ImageURL != "" {
		metadata["image_url"] = req.ImageURL
	}
	if req.Prompt != "" {
		metadata["resolution"] = orDefault(req.Resolution, "None")
		metadata["style_type"] = orDefault(req.StyleType, "Auto")
		metadata["aspect_ratio"] = orDefault(req.AspectRatio, "1:1")
		metadata["rendering_speed"] = orDefault(req.RenderingSpeed, "Default")
		metadata["magic_prompt_option"] = orDefault(req.MagicPromptOption, "Auto")
	}
	if req.CharacterReferenceImage != "" {
		metadata["character_reference_image"] = req.CharacterReferenceImage
	}
	if req.FolderID != "" {
		metadata["requested_folder_id"] = req.FolderID
	}
	if normalizedPath != "" {
		metadata["requested_folder_path"] = normalizedPath
	}
	if folderID != nil {
		metadata["resolved_folder_id"] = *folderID
	}
	if folderPath != nil {
		metadata["folder_path"] = *folderPath
	}
	return metadata
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// providerRejection normalizes provider failures (validation or transport)
// into a bad-request class error carrying the provider's message.
func providerRejection(err error) error {
	var apiErr *replicate.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &replicate.APIError{Status: http.StatusBadRequest, Message: fmt.Sprintf("replicate request failed: %v", err)}
}
