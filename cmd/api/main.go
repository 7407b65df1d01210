package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/fimin-dev/food-delivery-api/api/swagger"
	"github.com/fimin-dev/food-delivery-api/internal/handler"
	"github.com/fimin-dev/food-delivery-api/internal/middleware"
	"github.com/fimin-dev/food-delivery-api/internal/repository"
	"github.com/fimin-dev/food-delivery-api/internal/service"
	"github.com/fimin-dev/food-delivery-api/pkg/config"
	"github.com/fimin-dev/food-delivery-api/pkg/database"
	"github.com/fimin-dev/food-delivery-api/pkg/logger"
	corsmiddleware "github.com/fimin-dev/food-delivery-api/pkg/middleware/cors"
	reqidmiddleware "github.com/fimin-dev/food-delivery-api/pkg/middleware/requestid"
)

// @title Food Delivery API
// @version 1.0.0
// @description Authentication and session lifecycle for the food delivery backend
// @BasePath /api
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metricsSvc := service.NewMetricsService()
	tokenSvc := service.NewTokenService(cfg.JWT)

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	addressRepo := repository.NewAddressRepository(db)

	authSvc := service.NewAuthService(userRepo, sessionRepo, addressRepo, tokenSvc, validator.New(), logr, metricsSvc, service.AuthConfig{
		RefreshLifetime: cfg.JWT.RefreshLifetime,
		BcryptCost:      cfg.Password.BcryptCost,
	})

	reaper := service.NewSessionReaper(sessionRepo, cfg.Reaper.Interval, logr, metricsSvc)

	authHandler := handler.NewAuthHandler(authSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		protected := auth.Group("")
		protected.Use(middleware.JWT(tokenSvc))
		{
			protected.POST("/logout/current", authHandler.LogoutCurrent)
			protected.POST("/logout/all", authHandler.LogoutAll)
			protected.GET("/profile", authHandler.GetProfile)
			protected.PUT("/profile", authHandler.EditProfile)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reaper.Start(ctx)
	defer reaper.Stop()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
