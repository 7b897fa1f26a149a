package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/facegate/internal/auth"
	"github.com/example/facegate/internal/cache"
	"github.com/example/facegate/internal/config"
	"github.com/example/facegate/internal/grpcclient"
	"github.com/example/facegate/internal/handlers"
	"github.com/example/facegate/internal/logging"
	"github.com/example/facegate/internal/repository"
	"github.com/example/facegate/internal/taskrunner"
	"github.com/example/facegate/internal/usecase"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	db := initDatabase(ctx, cfg.Database.DSN, logger)
	repo := repository.NewPhotoRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	client, conn, err := grpcclient.DialFaceDetector(ctx, cfg.Detection.Addr, grpcclient.Options{
		CallDeadline:  cfg.Detection.CallDeadline,
		KeepAliveTime: cfg.Detection.KeepAliveTime,
	}, logger)
	if err != nil {
		logger.Fatal("failed to connect to face detector", zap.Error(err))
	}
	defer conn.Close()

	validationCache := cache.NewValidationCache(cfg.Cache.Capacity, cfg.Cache.TTL)
	uc := usecase.NewPhotoUseCase(repo, validationCache, client, usecase.Limits{
		MaxBytes:          cfg.Upload.MaxBytes,
		AllowedMediaTypes: cfg.Upload.AllowedMediaTypes,
	}, logger)

	runner := taskrunner.New(cfg.Runner.CoreWorkers, cfg.Runner.MaxWorkers, cfg.Runner.QueueDepth, logger)
	defer runner.Close()

	r := gin.Default()
	r.MaxMultipartMemory = cfg.Upload.MaxBytes

	authMiddleware := auth.JWTMiddleware(cfg.Auth.Secret, cfg.Auth.Audience)
	handlers.RegisterRoutes(r, uc, runner, cfg.Upload.MaxBytes, authMiddleware)

	server := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: r,
	}

	logger.Info("photo validation API listening", zap.String("addr", cfg.HTTP.Addr))
	if err := serveHTTPServer(server, cfg.HTTP.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
