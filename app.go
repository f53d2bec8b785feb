package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/example/damage-estimator/internal/annotate"
	"github.com/example/damage-estimator/internal/auth"
	"github.com/example/damage-estimator/internal/classifier"
	"github.com/example/damage-estimator/internal/config"
	"github.com/example/damage-estimator/internal/estimate"
	"github.com/example/damage-estimator/internal/events"
	"github.com/example/damage-estimator/internal/grpcclient"
	"github.com/example/damage-estimator/internal/handlers"
	"github.com/example/damage-estimator/internal/httpclassifier"
	"github.com/example/damage-estimator/internal/metrics"
	"github.com/example/damage-estimator/internal/repository"
	"github.com/example/damage-estimator/internal/storage/localfs"
	"github.com/example/damage-estimator/internal/usecase"
)

// app holds the wired service and the resources to release on exit.
type app struct {
	handler http.Handler
	logger  *zap.Logger
	closers []func() error
}

// newApp wires every dependency from cfg. A non-nil client replaces the
// configured classifier backend.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, client classifier.Client) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	costs := estimate.DefaultCostTable()
	if cfg.CostTablePath != "" {
		if costs, err = estimate.LoadCostTable(cfg.CostTablePath); err != nil {
			return nil, err
		}
	}

	db, err := repository.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}
	repo := repository.NewEstimationRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	cache, err := a.initCache(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	store := usecase.NewCachedStore(repo, cache, cfg.Redis.CacheTTL, logger)

	if client == nil {
		if client, err = a.initClassifier(ctx, cfg.Classify); err != nil {
			return nil, err
		}
	}
	guarded := classifier.NewGuarded("classifier", client, classifier.DefaultBreakerSettings(), logger)

	uploads, err := localfs.New(cfg.Storage.UploadsDir)
	if err != nil {
		return nil, err
	}
	predicted, err := localfs.New(cfg.Storage.PredictedDir)
	if err != nil {
		return nil, err
	}
	annotator := annotate.New(uploads, predicted, logger)

	publisher, err := a.initEvents(cfg.NATS)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	pipeline := usecase.NewPipeline(costs, annotator, store, publisher, logger)
	batch := usecase.NewBatch(pipeline, guarded, uploads, repo, m, logger, usecase.BatchOptions{
		MaxImages:             cfg.Batch.MaxImages,
		Workers:               cfg.Batch.Workers,
		ClassifierConcurrency: cfg.Classify.Concurrency,
		ClassifyTimeout:       cfg.Classify.Timeout,
		MaxImageBytes:         cfg.Batch.MaxImageBytes,
	})
	records := usecase.NewRecords(store, repo, publisher, logger)

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	router.Use(gin.Recovery(), m.GinMiddleware())
	router.MaxMultipartMemory = 32 << 20
	h := handlers.New(batch, records, costs, predicted, logger, handlers.Options{
		PublicBaseURL: cfg.HTTP.PublicBaseURL,
		RateLimit:     cfg.HTTP.RateLimit,
		RateBurst:     cfg.HTTP.RateBurst,
	})
	handlers.RegisterRoutes(router, h, auth.JWTMiddleware(cfg.JWT.Secret, cfg.JWT.Audience), auth.RequireRole(auth.RoleAdmin))
	router.GET("/metrics", gin.WrapH(m.Handler()))

	a.handler = router
	return a, nil
}

func (a *app) initCache(ctx context.Context, cfg config.Redis) (usecase.Cache, error) {
	if cfg.Addr == "" {
		a.logger.Info("redis not configured, using in-process cache")
		return usecase.NewMemoryCache(cfg.CacheTTL), nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	return usecase.NewRedisCache(client), nil
}

func (a *app) initClassifier(ctx context.Context, cfg config.Classifier) (classifier.Client, error) {
	switch cfg.Backend {
	case "http":
		return httpclassifier.New(cfg.URL, nil, cfg.Timeout, a.logger), nil
	default:
		client, conn, err := grpcclient.DialClassifier(ctx, cfg.Addr, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to classifier: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		return client, nil
	}
}

func (a *app) initEvents(cfg config.NATS) (events.Publisher, error) {
	if cfg.URL == "" {
		return events.Noop{}, nil
	}
	publisher, err := events.ConnectNATS(cfg.URL, cfg.SubjectPrefix, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		publisher.Close()
		return nil
	})
	return publisher, nil
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to release resource", zap.Error(err))
		}
	}
	a.closers = nil
}
