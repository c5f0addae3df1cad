package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"siteadmin/api/internal/app"
	"siteadmin/api/internal/blob"
	"siteadmin/api/internal/collection"
	"siteadmin/api/internal/config"
	"siteadmin/api/internal/lock"
	"siteadmin/api/internal/store"
)

func newLogger(level string) *zap.Logger {
	var cfg zap.Config
	if strings.EqualFold(level, "debug") {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

type records interface {
	collection.RecordStore
	CollectionCounts(context.Context) (map[string]int, error)
	Ping(context.Context) error
}

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()
	ctx := context.Background()

	var recordStore records
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		defer db.Close()

		if err := store.ApplyMigrations(ctx, db, os.DirFS(cfg.MigrationsDir), logger); err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
		recordStore = store.NewPostgresStore(db)
	} else {
		logger.Warn("DATABASE_URL not set, records are kept in memory")
		recordStore = store.NewMemoryStore()
	}

	var blobStore collection.BlobStore
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		minioStore, err := blob.NewMinIO(blob.Config{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.MinioPublicBaseURL,
		}, logger)
		if err != nil {
			logger.Fatal("object storage init failed", zap.Error(err))
		}
		blobStore = minioStore
	} else {
		logger.Warn("MINIO_ENDPOINT not set, uploads are kept in memory")
		blobStore = blob.NewMemory(cfg.MinioPublicBaseURL)
	}

	schemas, err := config.LoadSchemas(cfg.SchemasFile, cfg.MinioBucket)
	if err != nil {
		logger.Fatal("collection schemas invalid", zap.Error(err))
	}
	if minioStore, ok := blobStore.(*blob.MinIO); ok {
		ensured := map[string]bool{}
		for _, schema := range schemas {
			if !schema.AllowAsset || ensured[schema.AssetBucket] {
				continue
			}
			if err := minioStore.EnsureBucket(ctx, schema.AssetBucket); err != nil {
				logger.Fatal("bucket setup failed", zap.String("bucket", schema.AssetBucket), zap.Error(err))
			}
			ensured[schema.AssetBucket] = true
		}
	}

	var locker collection.Locker
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using Redis for collection mutation locks")
		redisLocker, err := lock.NewRedis(cfg.RedisURL, cfg.LockTTL, logger)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer redisLocker.Close()
		locker = redisLocker
	} else {
		logger.Info("using in-process collection mutation locks")
		locker = lock.NewLocal()
	}

	registry, err := collection.NewRegistry(schemas, recordStore, blobStore, collection.Options{
		Locker:             locker,
		ReorderConcurrency: cfg.ReorderConcurrency,
		MaxUploadBytes:     cfg.MaxUploadBytes,
		Logger:             logger,
	})
	if err != nil {
		logger.Fatal("collection registry failed", zap.Error(err))
	}

	service := app.New(cfg, recordStore, registry, logger)
	if minioStore, ok := blobStore.(*blob.MinIO); ok {
		service.AddReadyCheck("objectStore", func(ctx context.Context) error {
			return minioStore.Ping(ctx, cfg.MinioBucket)
		})
	}
	if redisLocker, ok := locker.(*lock.Redis); ok {
		service.AddReadyCheck("redis", redisLocker.Ping)
	}
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("site admin API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
