package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/orrn/bundler/internal/api/handlers"
	"github.com/orrn/bundler/internal/api/middleware"
	"github.com/orrn/bundler/internal/archive"
	"github.com/orrn/bundler/internal/config"
	"github.com/orrn/bundler/internal/core"
	"github.com/orrn/bundler/internal/db"
	"github.com/orrn/bundler/internal/delivery"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("invalid config")
	}

	setupLogging(cfg.Logging)

	for _, dir := range []string{cfg.Storage.FilesPath, cfg.Storage.StagingPath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logrus.WithField("dir", dir).WithError(err).Fatal("failed to create storage directory")
		}
	}

	if err := db.Init(db.Config{Path: cfg.Database.Path}); err != nil {
		logrus.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	store := db.NewRequestStore()
	quota := core.NewQuotaLedger(store, cfg.Storage.QuotaBytes)
	packer := archive.NewPacker(cfg.Storage.FilesPath)
	sender := delivery.NewSender(delivery.Config{
		Endpoint: cfg.Delivery.Endpoint,
		Secret:   cfg.Delivery.Secret,
		Timeout:  cfg.Delivery.Timeout,
	})

	builder := core.NewArchiveBuilder(store, quota, packer, sender, cfg.Storage.FilesPath, cfg.Storage.StagingPath)
	admission := core.NewAdmissionController(cfg.Admission.ConcurrencyCap, builder)
	builder.Bind(admission)

	auth, err := middleware.NewAuthMiddleware()
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize auth")
	}

	router := setupRouter(cfg, auth, admission, quota)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logrus.WithField("port", cfg.Server.Port).Info("bundler listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("forced shutdown")
	}
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.Format == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}

func setupRouter(cfg *config.Config, auth *middleware.AuthMiddleware, admission *core.AdmissionController, quota *core.QuotaLedger) *gin.Engine {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/api/auth/setup", auth.SetupHandler)
	router.POST("/api/auth/login", auth.LoginHandler)
	router.POST("/api/auth/logout", auth.LogoutHandler)
	router.GET("/api/auth/status", auth.StatusHandler)

	fileHandler := handlers.NewFileHandler(cfg.Storage.FilesPath, quota)
	bundleHandler := handlers.NewBundleHandler(admission)

	api := router.Group("/api", auth.RequireAuth())
	{
		api.POST("/auth/password", auth.ChangePasswordHandler)

		api.POST("/files", fileHandler.Upload)
		api.GET("/files", fileHandler.List)
		api.DELETE("/files/:index", fileHandler.Delete)
		api.DELETE("/files", fileHandler.Clear)
		api.GET("/quota", fileHandler.Quota)

		api.POST("/bundles", bundleHandler.Submit)
		api.DELETE("/bundles", bundleHandler.Cancel)
		api.GET("/bundles/status", bundleHandler.Status)
	}

	return router
}
