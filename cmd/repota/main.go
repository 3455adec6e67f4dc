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

	"github.com/noah-isme/repota/internal/app"
	"github.com/noah-isme/repota/internal/handler"
	"github.com/noah-isme/repota/internal/middleware"
	"github.com/noah-isme/repota/pkg/config"
	"github.com/noah-isme/repota/pkg/logger"
	corsmiddleware "github.com/noah-isme/repota/pkg/middleware/cors"
)

const shutdownTimeout = 15 * time.Second

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("startup failed", "error", err)
	}
	a.StartBackground(ctx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Metrics, "/metrics"))

	handlers := handler.Handlers{
		Metrics:  handler.NewMetricsHandler(a.Metrics, a.Session),
		Classes:  handler.NewClassHandler(a.Gradebook),
		Students: handler.NewStudentHandler(a.Students),
		Settings: handler.NewSettingsHandler(a.Settings),
		Storage:  handler.NewStorageHandler(a.Session, a.Migration, a.StudentSaver, a.SettingsSaver),
		Backup:   handler.NewBackupHandler(a.Backups),
	}
	if a.Reports != nil {
		handlers.Reports = handler.NewReportHandler(a.Reports)
	}
	handler.Register(r, cfg.APIPrefix, handlers)

	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "backend", a.Boot.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("http shutdown", "error", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		logr.Sugar().Errorw("final save failed", "error", err)
	}
}
