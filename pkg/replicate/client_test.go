package replicate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreatePredictionSendsModelRouteAndAuth(t *testing.T) {
	var gotPath, gotAuth, gotPrefer string
	var gotBody createPredictionBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotPrefer = r.Header.Get("Prefer")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Prediction{ID: "pred-1", Status: "starting"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-123")
	pred, err := c.CreatePrediction(context.Background(), PredictionRequest{
		Model:               "ideogram-ai/ideogram-character",
		Input:               map[string]any{"prompt": "a cat"},
		Webhook:             "https://api.example.com/ai/webhooks/replicate",
		WebhookEventsFilter: []string{"completed"},
	})
	if err != nil {
		t.Fatalf("create prediction: %v", err)
	}
	if pred.ID != "pred-1" || pred.Status != "starting" {
		t.Fatalf("unexpected prediction: %+v", pred)
	}
	if gotPath != "/v1/models/ideogram-ai/ideogram-character/predictions" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("unexpected auth header: %s", gotAuth)
	}
	if gotPrefer != "" {
		t.Fatalf("async create must not set Prefer: wait, got %q", gotPrefer)
	}
	if gotBody.Webhook == "" || len(gotBody.WebhookEventsFilter) != 1 {
		t.Fatalf("webhook fields not forwarded: %+v", gotBody)
	}
}

func TestRunSetsPreferWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Prefer") != "wait" {
			t.Errorf("expected Prefer: wait header, got %q", r.Header.Get("Prefer"))
		}
		_ = json.NewEncoder(w).Encode(Prediction{ID: "pred-2", Status: "succeeded", Output: []any{"https://x/img.png"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	pred, err := c.Run(context.Background(), PredictionRequest{Model: "m/n", Input: map[string]any{"prompt": "hi"}})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if pred.Status != "succeeded" {
		t.Fatalf("unexpected status: %s", pred.Status)
	}
}

func TestCreatePredictionSurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "prompt is required"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	_, err := c.CreatePrediction(context.Background(), PredictionRequest{Model: "m/n"})
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Status != http.StatusUnprocessableEntity || apiErr.Message != "prompt is required" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestGetPredictionNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	_, ok, err := c.GetPrediction(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get prediction: %v", err)
	}
	if ok {
		t.Fatal("expected not found")
	}
}

func TestPredictionErrorMessage(t *testing.T) {
	if got := (Prediction{Error: "boom"}).ErrorMessage(); got != "boom" {
		t.Fatalf("string error: got %q", got)
	}
	if got := (Prediction{}).ErrorMessage(); got != "" {
		t.Fatalf("nil error: got %q", got)
	}
	if got := (Prediction{Error: map[string]any{"code": 1}}).ErrorMessage(); got != `{"code":1}` {
		t.Fatalf("structured error: got %q", got)
	}
}
