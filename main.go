package main

import (
	"casewatch/bootstrap"
	"casewatch/config"
	"casewatch/logger"
	"casewatch/metrics"
	"casewatch/middleware"
	"casewatch/routes"
	"casewatch/worker"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load .env file
	envErr := godotenv.Load()

	// Load configuration
	cfg := config.LoadConfig()
	logger.Init(cfg.Logging)
	log := logger.Component("main")
	if envErr != nil {
		log.Warn(".env file not found, using environment variables")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx := context.Background()
	db, err := bootstrap.OpenDatabase(ctx, cfg.Database, cfg.Database.RunMigrations)
	if err != nil {
		log.WithError(err).Fatal("database not ready")
	}
	defer db.Close()

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.New()
	}

	engine, err := bootstrap.Build(db, cfg, collector)
	if err != nil {
		log.WithError(err).Fatal("failed to wire services")
	}

	var escalationWorker *worker.EscalationWorker
	if cfg.Escalation.Enabled {
		escalationWorker = worker.NewEscalationWorker(engine.Escalations, cfg.Escalation.Schedule, 0)
		if err := escalationWorker.Start(cfg.Escalation.RunOnStart); err != nil {
			log.WithError(err).Fatal("failed to start escalation worker")
		}
	} else {
		log.Warn("escalation worker disabled")
	}

	notificationWorker := worker.NewNotificationWorker(engine.Notifications, bootstrap.QueueConfig(cfg.Notification))
	notificationWorker.Start()

	deps := routes.Dependencies{
		Escalations: engine.Escalations,
		Cases:       engine.Cases,
		Rules:       engine.Rules,
		AdminAuth:   middleware.NewAdminAuth(cfg.Auth),
		DB:          db,
	}
	if collector != nil {
		deps.Metrics = collector.Handler()
		deps.MetricsPath = cfg.Metrics.Path
	}
	router := routes.SetupRoutes(deps)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"addr": addr}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.WithField("signal", sig.String()).Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown did not complete")
	}
	if escalationWorker != nil {
		escalationWorker.Stop()
	}
	notificationWorker.Stop()
	log.Info("stopped")
}
