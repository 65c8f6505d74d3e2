package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"account-portal/internal/auth"
	"account-portal/internal/config"
	"account-portal/internal/domain"
	apphttp "account-portal/internal/http"
	"account-portal/internal/repository"
	"account-portal/internal/repository/sqldb"
	"account-portal/internal/routers"
	"account-portal/internal/rpc"
	"account-portal/internal/service"
	"account-portal/internal/storage"
)

func runServe(ctx context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, err := buildRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	var cache auth.SessionCache
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warnf("redis close: %v", err)
			}
		}()
		cache = auth.NewRedisSessionCache(redisClient)
	}

	authSvc := newAuthService(cfg, store, cache, logger)
	authSvc.StartCleanup(ctx, cfg.Auth.CleanupInterval)

	storageSvc, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setup storage: %w", err)
	}

	appRouter, err := routers.NewAppRouter(rpc.NewProcedures(logger), routers.Services{
		Users: service.NewUserService(store.Users, storageSvc, service.UserServiceOptions{}),
		Todos: service.NewTodoService(store.Todos),
		Auth:  authSvc,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}
	transport := rpc.NewTransport(appRouter, rpc.NewContextBuilder(store, authSvc, nil, logger), rpc.TransportConfig{
		MaxBatchSize:   cfg.RPC.MaxBatchSize,
		MaxConcurrency: cfg.RPC.MaxConcurrency,
		RequestTimeout: cfg.RPC.RequestTimeout,
		Logger:         logger,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(authSvc, transport, apphttp.Options{
		CookieSecure:   cfg.Server.CookieSecure,
		TrustedOrigins: cfg.Server.TrustedOrigins,
		SessionTTL:     cfg.Auth.SessionTTL,
		Logger:         logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
	return nil
}

func loadConfig() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newLogger(cfg config.Config) (*logrus.Logger, error) {
	logger := logrus.New()
	if strings.EqualFold(cfg.Log.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log.level: %w", err)
	}
	logger.SetLevel(level)
	return logger, nil
}

func openStore(ctx context.Context, cfg config.Config) (*sqldb.DB, repository.Store, error) {
	db, err := sqldb.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, repository.Store{}, fmt.Errorf("open database: %w", err)
	}
	store := sqldb.NewStore(db)
	if err := store.Init(ctx); err != nil {
		db.Close()
		return nil, repository.Store{}, fmt.Errorf("init database: %w", err)
	}
	return db, store, nil
}

func newAuthService(cfg config.Config, store repository.Store, cache auth.SessionCache, logger *logrus.Logger) *auth.Service {
	return auth.NewService(store.Users, store.Sessions, auth.Config{
		Secret:     []byte(cfg.Auth.JWTSecret),
		Issuer:     cfg.Auth.Issuer,
		SessionTTL: cfg.Auth.SessionTTL,
		BcryptCost: cfg.Auth.BcryptCost,
		Cache:      cache,
		Logger:     logger,
	})
}

func buildRedis(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Infof("caching sessions in redis at %s", cfg.Redis.Addr)
	return client, nil
}

// buildStorage returns nil when no bucket is configured; avatar procedures then report the
// storage as unavailable.
func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	if cfg.Storage.Bucket == "" {
		logger.Warn("storage.bucket is not set, avatar uploads are disabled")
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client, storage.Options{
		Bucket:        cfg.Storage.Bucket,
		Region:        cfg.Storage.Region,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	}), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func parseRole(role string) domain.Role {
	return domain.Role(strings.ToLower(strings.TrimSpace(role)))
}
