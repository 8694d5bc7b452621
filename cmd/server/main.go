package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/Poppu13130/magicmoon-backend/internal/app"
	"github.com/Poppu13130/magicmoon-backend/internal/authclient"
	"github.com/Poppu13130/magicmoon-backend/internal/config"
	"github.com/Poppu13130/magicmoon-backend/internal/server"
	"github.com/Poppu13130/magicmoon-backend/internal/usertoken"
	"github.com/Poppu13130/magicmoon-backend/internal/util"
	"github.com/Poppu13130/magicmoon-backend/pkg/replicate"
	"github.com/Poppu13130/magicmoon-backend/pkg/storage"
	"github.com/Poppu13130/magicmoon-backend/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		Secret:   cfg.JWTSecret,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}

	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}

	var folderCache *store.FolderPathCache
	if cfg.RedisAddr != "" {
		folderCache = store.NewFolderPathCache(cfg.RedisAddr, cfg.RedisPassword, 0)
	}

	appCore, err := app.New(app.Config{
		Store:           dataStore,
		Objects:         objects,
		Provider:        replicate.NewClient(cfg.ReplicateAPIURL, cfg.ReplicateAPIToken),
		FolderCache:     folderCache,
		DefaultModel:    cfg.DefaultModel,
		UpscaleModel:    cfg.UpscaleModel,
		WebhookBaseURL:  cfg.WebhookBaseURL,
		DownloadTimeout: time.Duration(cfg.DownloadTimeoutSeconds) * time.Second,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:           appCore,
		TokenVerifier: tokenVerifier,
		Auth:          authclient.NewClient(cfg.AuthURL, cfg.AuthAnonKey),
		WebhookSecret: cfg.WebhookSecret,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("ai relay listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
