package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Poppu13130/magicmoon-backend/internal/app"
	"github.com/Poppu13130/magicmoon-backend/internal/authclient"
	"github.com/Poppu13130/magicmoon-backend/internal/usertoken"
	"github.com/Poppu13130/magicmoon-backend/internal/util"
	"github.com/Poppu13130/magicmoon-backend/pkg/replicate"
)

const maxBodyBytes = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier *usertoken.Verifier
	Auth          *authclient.Client
	// WebhookSecret enables callback signature verification when set.
	WebhookSecret string
}

// Server exposes the AI relay's HTTP endpoints.
type Server struct {
	app           *app.App
	tokenVerifier *usertoken.Verifier
	auth          *authclient.Client
	webhookSecret string
	mux           *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	if cfg.TokenVerifier == nil {
		return nil, errors.New("token verifier required")
	}
	s := &Server{
		app:           cfg.App,
		tokenVerifier: cfg.TokenVerifier,
		auth:          cfg.Auth,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler wrapped in the middleware chain.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("ai", util.WithSecurityHeaders(util.WithCORS(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/auth/login", s.handleLogin)

	// ai
	s.mux.Handle("/ai/predictions", s.withUser(s.handleCreatePrediction))
	s.mux.Handle("/ai/predictions/", s.withUser(s.handleGetPrediction))
	s.mux.Handle("/ai/run", s.withUser(s.handleRunDirect))
	s.mux.HandleFunc("/ai/webhooks/replicate", s.handleReplicateWebhook)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		notFound(w, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userHandler receives the caller's user id, which may be empty when the
// verified token carries no resolvable identity.
type userHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) withUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := s.tokenVerifier.VerifyClaims(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, _ := usertoken.ExtractUserID(claims)
		next(w, r, userID)
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.auth == nil {
		writeError(w, http.StatusInternalServerError, "auth client not configured")
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	session, err := s.auth.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		var apiErr *authclient.APIError
		if errors.As(err, &apiErr) {
			writeError(w, http.StatusUnauthorized, apiErr.Message)
			return
		}
		writeError(w, http.StatusBadGateway, "unable to contact authentication service")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleCreatePrediction(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req app.PredictionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ack, err := s.app.CreatePrediction(r.Context(), userID, req)
	if err != nil {
		status, msg := mapAppError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// /ai/predictions/{id}
func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/ai/predictions/")
	if id == "" || strings.Contains(id, "/") {
		notFound(w, "not found")
		return
	}
	job, err := s.app.GetPrediction(userID, id)
	if err != nil {
		status, msg := mapAppError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRunDirect(w http.ResponseWriter, r *http.Request, _ string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req app.PredictionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := s.app.RunDirect(r.Context(), req)
	if err != nil {
		status, msg := mapAppError(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReplicateWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read payload")
		return
	}
	if s.webhookSecret != "" {
		id := r.Header.Get("webhook-id")
		timestamp := r.Header.Get("webhook-timestamp")
		signature := r.Header.Get("webhook-signature")
		if !verifyWebhookSignature(s.webhookSecret, id, timestamp, payload, signature) {
			writeError(w, http.StatusUnauthorized, "invalid webhook signature")
			return
		}
	}
	res, err := s.app.IngestWebhook(r.Context(), payload)
	if err != nil {
		if errors.Is(err, app.ErrMissingPredictionID) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Store failures on the webhook path are unrecoverable here; the
		// provider will retry the delivery.
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func mapAppError(err error) (int, string) {
	switch {
	case errors.Is(err, app.ErrFolderConflict),
		errors.Is(err, app.ErrInputRequired):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, app.ErrFolderNotFound),
		errors.Is(err, app.ErrJobNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, app.ErrNotJobOwner):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, app.ErrWebhookNotConfigured):
		return http.StatusInternalServerError, err.Error()
	}
	var providerErr *replicate.APIError
	if errors.As(err, &providerErr) {
		return http.StatusBadRequest, providerErr.Message
	}
	var upstreamErr *app.UpstreamError
	if errors.As(err, &upstreamErr) {
		return http.StatusBadGateway, upstreamErr.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func notFound(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusNotFound, msg)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      errorCodeFor(status),
		RequestID: strings.TrimSpace(w.Header().Get("X-Request-Id")),
	})
}

func errorCodeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "AI_INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "AUTH_INVALID_TOKEN"
	case http.StatusForbidden:
		return "AI_FORBIDDEN"
	case http.StatusNotFound:
		return "AI_NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "SYSTEM_METHOD_NOT_ALLOWED"
	case http.StatusBadGateway:
		return "UPSTREAM_ERROR"
	default:
		if status >= http.StatusInternalServerError {
			return "SYSTEM_INTERNAL_ERROR"
		}
		return "REQUEST_ERROR"
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}
