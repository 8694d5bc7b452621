package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the public Replicate API endpoint.
const DefaultBaseURL = "https://api.replicate.com"

// Client calls the Replicate predictions API over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// APIError represents a Replicate error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a Replicate API client. An empty baseURL selects the
// public endpoint; tests point it at a local fake.
func NewClient(baseURL, token string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// PredictionRequest describes one job to create.
type PredictionRequest struct {
	// Model is the "owner/name" model identifier.
	Model               string
	Input               map[string]any
	Webhook             string
	WebhookEventsFilter []string
}

// Prediction is the provider's view of a job.
type Prediction struct {
	ID     string         `json:"id"`
	Model  string         `json:"model"`
	Status string         `json:"status"`
	Input  map[string]any `json:"input,omitempty"`
	Output any            `json:"output,omitempty"`
	Error  any            `json:"error,omitempty"`
}

// ErrorMessage renders the provider error field, which may be a string or an
// arbitrary structure, as text.
func (p Prediction) ErrorMessage() string {
	switch v := p.Error.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}

type createPredictionBody struct {
	Input               map[string]any `json:"input"`
	Webhook             string         `json:"webhook,omitempty"`
	WebhookEventsFilter []string       `json:"webhook_events_filter,omitempty"`
}

// CreatePrediction submits a job and returns the provider's acknowledgement.
// The job runs asynchronously; completion arrives via webhook.
func (c *Client) CreatePrediction(ctx context.Context, req PredictionRequest) (Prediction, error) {
	return c.create(ctx, req, false)
}

// Run submits a job and blocks until the provider finishes it, using the
// provider's synchronous-wait mode.
func (c *Client) Run(ctx context.Context, req PredictionRequest) (Prediction, error) {
	return c.create(ctx, req, true)
}

func (c *Client) create(ctx context.Context, req PredictionRequest, wait bool) (Prediction, error) {
	if strings.TrimSpace(req.Model) == "" {
		return Prediction{}, &APIError{Status: http.StatusBadRequest, Message: "model is required"}
	}
	body, err := json.Marshal(createPredictionBody{
		Input:               req.Input,
		Webhook:             req.Webhook,
		WebhookEventsFilter: req.WebhookEventsFilter,
	})
	if err != nil {
		return Prediction{}, fmt.Errorf("encode prediction request: %w", err)
	}
	url := c.baseURL + "/v1/models/" + req.Model + "/predictions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Prediction{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	if wait {
		httpReq.Header.Set("Prefer", "wait")
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Prediction{}, fmt.Errorf("call replicate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Prediction{}, apiErrorFromResponse(resp)
	}
	var pred Prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return Prediction{}, fmt.Errorf("decode prediction: %w", err)
	}
	return pred, nil
}

// GetPrediction fetches the provider-side state of a job.
func (c *Client) GetPrediction(ctx context.Context, id string) (Prediction, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/predictions/"+id, nil)
	if err != nil {
		return Prediction{}, false, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Prediction{}, false, fmt.Errorf("call replicate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Prediction{}, false, nil
	}
	if resp.StatusCode >= 400 {
		return Prediction{}, false, apiErrorFromResponse(resp)
	}
	var pred Prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return Prediction{}, false, fmt.Errorf("decode prediction: %w", err)
	}
	return pred, true, nil
}

func apiErrorFromResponse(resp *http.Response) error {
	var errResp struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	msg := errResp.Detail
	if msg == "" {
		msg = errResp.Title
	}
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
