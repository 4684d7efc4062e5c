package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/medledger/medledger-api/config"
	"github.com/medledger/medledger-api/internal/handler"
	accessHandler "github.com/medledger/medledger-api/internal/handler/access"
	authHandler "github.com/medledger/medledger-api/internal/handler/auth"
	recordHandler "github.com/medledger/medledger-api/internal/handler/record"
	userHandler "github.com/medledger/medledger-api/internal/handler/user"
	"github.com/medledger/medledger-api/internal/middleware"
	"github.com/medledger/medledger-api/internal/repository/jsonstore"
	"github.com/medledger/medledger-api/internal/router"
	accessService "github.com/medledger/medledger-api/internal/service/access"
	authService "github.com/medledger/medledger-api/internal/service/auth"
	eventService "github.com/medledger/medledger-api/internal/service/event"
	recordService "github.com/medledger/medledger-api/internal/service/record"
	userService "github.com/medledger/medledger-api/internal/service/user"
	pkgauth "github.com/medledger/medledger-api/pkg/auth"
	"github.com/medledger/medledger-api/pkg/logger"
	"github.com/medledger/medledger-api/pkg/messaging/redis"
	"github.com/medledger/medledger-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.New(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Log.Pretty,
	})
	log.Logger = appLogger

	m := metrics.New("medledger", prometheus.DefaultRegisterer)

	// Open the JSON-backed store and derive repositories from it.
	store, err := jsonstore.Open(cfg.Store.Path, appLogger, m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	userRepo := jsonstore.NewUserRepository(store)
	recordRepo := jsonstore.NewRecordRepository(store)
	grantRepo := jsonstore.NewGrantRepository(store)

	// Optional lifecycle event publisher.
	var eventSvc *eventService.Service
	if cfg.Redis.URL != "" {
		broker, err := redis.NewRedisBroker(redis.Config{URL: cfg.Redis.URL}, &appLogger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer broker.Close()
		eventSvc = eventService.NewService(broker, appLogger, m)
	} else {
		eventSvc = eventService.NewService(nil, appLogger, m)
	}

	// Services
	jwtSvc := pkgauth.NewJWTService(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	userSvc := userService.NewService(userRepo, eventSvc)
	recordSvc := recordService.NewService(recordRepo, cfg.Upload.Dir, eventSvc, appLogger)
	accessSvc := accessService.NewService(grantRepo, recordRepo, userRepo, eventSvc)
	authSvc := authService.NewService(userRepo, jwtSvc)

	// Handlers
	if err := handler.RegisterValidators(); err != nil {
		log.Fatal().Err(err).Msg("failed to register validators")
	}
	h := handler.NewHandler(promhttp.Handler())
	authH := authHandler.NewHandler(authSvc, cfg.JWT.ExpiryHours*3600)
	userH := userHandler.NewHandler(userSvc)
	limits := recordHandler.DefaultUploadLimits()
	if cfg.Upload.MaxSize > 0 {
		limits.MaxSize = cfg.Upload.MaxSize
	}
	recordH := recordHandler.NewHandler(recordSvc, accessSvc, limits)
	accessH := accessHandler.NewHandler(accessSvc)

	authMiddleware := middleware.NewAuthMiddleware(authSvc)

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.Security.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Security.AllowedOrigins
	}

	sizeLimit := middleware.DefaultSizeLimitConfig()
	sizeLimit.MaxUploadSize = limits.MaxSize + (1 << 20) // multipart overhead

	routerConfig := router.Config{
		CORS:      corsConfig,
		SizeLimit: sizeLimit,
		Timeout:   cfg.Server.Timeout,
	}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerConfig.RateBurst = cfg.RateLimit.Burst
	}

	r := router.NewRouter(routerConfig, authMiddleware, authH, userH, recordH, accessH, h, m)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	if err := store.Flush(); err != nil {
		log.Error().Err(err).Msg("failed to flush store on shutdown")
	}

	log.Info().Msg("server exited properly")
}
