package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bestwork/mlm-system/config"
	"github.com/bestwork/mlm-system/db"
	"github.com/bestwork/mlm-system/handlers"
	"github.com/bestwork/mlm-system/placement"
	"github.com/bestwork/mlm-system/repositories"
	api "github.com/bestwork/mlm-system/routes"
	"github.com/bestwork/mlm-system/services"
	"github.com/bestwork/mlm-system/storage"
	_ "github.com/lib/pq"
)

// How often expired password reset tokens are purged.
const schedulerInterval = 10 * time.Minute

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.String("placement_mode", cfg.PlacementMode))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	redisClient, err := db.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("redis connection established")

	uploader, err := storage.NewCloudflareR2Uploader(storage.CloudflareR2UploaderConfig{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	})
	if err != nil {
		logger.Error("failed to initialize Cloudflare R2 uploader", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Cloudflare R2 uploader initialized")

	wsHub := placement.NewHub()
	go wsHub.Run()
	logger.Info("WebSocket hub started")

	memberRepo := repositories.NewPostgresMemberRepository(dbConn)
	beneficiaryRepo := repositories.NewPostgresBeneficiaryRepository(dbConn)
	addressRepo := repositories.NewPostgresAddressRepository(dbConn)
	productRepo := repositories.NewPostgresProductRepository(dbConn)
	orderRepo := repositories.NewPostgresOrderRepository(dbConn)
	logger.Info("repositories initialized")

	placementMode := services.PlacementModeAuto
	if cfg.PlacementMode == config.PlacementModeApproval {
		placementMode = services.PlacementModeApproval
	}

	emailService := services.NewEmailService(cfg)
	placementService := services.NewPlacementService(dbConn, memberRepo, wsHub, emailService, logger)
	authService := services.NewAuthService(memberRepo, placementService, emailService, placementMode, logger)
	memberService := services.NewMemberService(memberRepo, beneficiaryRepo, addressRepo, uploader, logger)
	catalogService := services.NewCatalogService(productRepo, uploader, logger)
	cartService := services.NewCartService(redisClient, productRepo)
	orderService := services.NewOrderService(dbConn, orderRepo, addressRepo, memberRepo, cartService, catalogService, emailService, logger)
	dashboardService := services.NewDashboardService(memberRepo, orderRepo)
	logger.Info("services initialized")

	// Background cleanup of expired password reset tokens.
	go func() {
		ticker := time.NewTicker(schedulerInterval)
		defer ticker.Stop()
		for range ticker.C {
			purged, err := authService.PurgeExpiredResetTokens(context.Background())
			if err != nil {
				logger.Error("reset token purge failed", slog.Any("error", err))
				continue
			}
			if purged > 0 {
				logger.Info("purged expired reset tokens", slog.Int64("count", purged))
			}
		}
	}()

	h := api.Handlers{
		Auth:      handlers.NewAuthHandler(authService, cfg.JWTSecretKey),
		Member:    handlers.NewMemberHandler(memberService),
		Placement: handlers.NewPlacementHandler(placementService),
		Catalog:   handlers.NewCatalogHandler(catalogService),
		Cart:      handlers.NewCartHandler(cartService),
		Order:     handlers.NewOrderHandler(orderService),
		Dashboard: handlers.NewDashboardHandler(dashboardService),
		WebSocket: handlers.NewWebSocketHandler(wsHub, logger),
	}
	router := api.SetupRoutes(h, cfg.JWTSecretKey)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
