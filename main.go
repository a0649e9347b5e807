package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"busdelay/config"
	"busdelay/db"
	bhttp "busdelay/http"
	"busdelay/logging"
	"busdelay/ml"
	"busdelay/monitoring"
	"busdelay/serving"
	"go.uber.org/zap"
)

func main() {
	// 1. Load config
	configPath := config.PathFromEnv()
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Logger
	logger, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
		Compress:    cfg.Log.Compress,
		Development: cfg.Log.Development,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()
	zap.ReplaceGlobals(logger.Logger)

	metrics := monitoring.NewMetricsCollector()

	// 3. Start loading the model in the background
	ctrl := serving.NewController(ml.Load, logger.Logger)
	metrics.SetModelState(string(serving.PhaseLoading), serving.Phases...)
	loadStart := time.Now()
	ctrl.OnTransition(func(state serving.State) {
		metrics.SetModelState(string(state.Phase), serving.Phases...)
		metrics.ObserveModelLoad(time.Since(loadStart))
	})

	// 4. Optional prediction audit
	var store *db.Store
	if cfg.Audit.Enabled {
		store, err = db.Open(db.Options{
			Path:      cfg.Audit.DBPath,
			QueueSize: cfg.Audit.QueueSize,
			OnDrop:    metrics.IncAuditDropped,
		}, logger.Logger)
		if err != nil {
			logger.Fatal("failed to open audit store", zap.String("path", cfg.Audit.DBPath), zap.Error(err))
		}
		logger.Info("prediction audit enabled", zap.String("path", cfg.Audit.DBPath))
	}

	opts := serving.Options{
		Strict:    cfg.Normalizer.Strict,
		CacheSize: cfg.Cache.Size,
		Metrics:   metrics,
		Logger:    logger.Logger,
	}
	deps := bhttp.Deps{Metrics: metrics, Logger: logger.Logger}
	if store != nil {
		opts.Audit = store
		deps.Recent = store
	}
	svc, err := serving.NewService(ctrl, opts)
	if err != nil {
		logger.Fatal("failed to create prediction service", zap.Error(err))
	}
	deps.Service = svc
	ctrl.StartLoading(ml.ResolveModelPath(cfg.Model.Path))

	// 5. Start HTTP server; it answers /ready while the model loads
	server := bhttp.NewServer(bhttp.ServerConfig{
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, deps)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 6. Reload the log level when the config file changes
	stop := make(chan struct{})
	if err := config.Watch(configPath, logger.Logger, stop, func(next *config.Config) {
		if err := logger.SetLevel(next.Log.Level); err != nil {
			logger.Warn("ignoring invalid log level", zap.String("level", next.Log.Level), zap.Error(err))
			return
		}
		logger.Info("config reloaded", zap.String("log_level", next.Log.Level))
	}); err != nil {
		logger.Warn("config watch disabled", zap.Error(err))
	}

	// 7. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
	close(stop)

	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("failed to close audit store", zap.Error(err))
		}
	}

	logger.Info("exiting")
}
