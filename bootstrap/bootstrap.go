// Package bootstrap wires repositories, senders and services from configuration.
// The server and the escalate CLI share it so both run the same engine.
package bootstrap

import (
	"casewatch/config"
	"casewatch/logger"
	"casewatch/metrics"
	"casewatch/models"
	"casewatch/notification"
	"casewatch/repository"
	"casewatch/schema"
	"casewatch/service"
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// Engine holds the wired services
type Engine struct {
	Notifications *service.NotificationService
	Escalations   *service.EscalationService
	Cases         *service.CaseService
	Rules         *service.RuleService
	Metrics       *metrics.Collector
}

// OpenDatabase opens and pings MySQL, applies migrations when migrate is set,
// and refuses a schema that lacks the escalation columns.
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig, migrate bool) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Component("db").Info("database connection established")

	if migrate {
		if err := schema.Migrate(db, cfg.DBName); err != nil {
			db.Close()
			return nil, err
		}
	}
	if err := schema.ValidateRequiredColumns(ctx, db, schema.DefaultRequiredColumns); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// QueueConfig maps the environment settings onto the notification queue config
func QueueConfig(cfg config.NotificationConfig) *models.NotificationConfig {
	qc := models.DefaultNotificationConfig()
	if cfg.MaxRetries > 0 {
		qc.DefaultMaxRetries = cfg.MaxRetries
	}
	if cfg.InitialRetryDelay > 0 {
		qc.InitialRetryDelay = cfg.InitialRetryDelay
	}
	if cfg.MaxRetryDelay > 0 {
		qc.MaxRetryDelay = cfg.MaxRetryDelay
	}
	if cfg.BatchSize > 0 {
		qc.WorkerBatchSize = cfg.BatchSize
	}
	if cfg.WorkerInterval > 0 {
		qc.WorkerInterval = cfg.WorkerInterval
	}
	qc.SendsPerSecond = cfg.SendsPerSecond
	qc.SendBurst = cfg.SendBurst
	return qc
}

// Senders builds the email and SMS senders, each behind its own circuit breaker
func Senders(cfg config.NotificationConfig) []notification.Sender {
	breaker := notification.BreakerConfig{
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}
	email := notification.NewEmailSender(notification.EmailConfig{
		APIKey:     cfg.SendGridAPIKey,
		FromEmail:  cfg.FromEmail,
		FromName:   cfg.FromName,
		RedirectTo: cfg.RedirectTo,
	})
	sms := notification.NewSMSSender(notification.SMSConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		FromNumber: cfg.TwilioFromNumber,
	})
	return []notification.Sender{
		notification.NewBreakerSender(email, breaker),
		notification.NewBreakerSender(sms, breaker),
	}
}

// Build wires the engine on top of db. m may be nil.
func Build(db *sql.DB, cfg *config.Config, m *metrics.Collector) (*Engine, error) {
	calendar, err := service.NewBusinessCalendar(cfg.Escalation.BusinessHours)
	if err != nil {
		return nil, fmt.Errorf("failed to build business calendar: %w", err)
	}

	caseRepo := repository.NewCaseRepository(db)
	eventRepo := repository.NewEventRepository(db)
	ruleRepo := repository.NewRuleRepository(db)
	escalationRepo := repository.NewEscalationRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	userRepo := repository.NewUserRepository(db)

	clock := service.SystemClock{}
	notifications := service.NewNotificationService(
		notificationRepo,
		Senders(cfg.Notification),
		QueueConfig(cfg.Notification),
		clock,
		m,
	)
	recipients := service.NewRecipientResolver(userRepo, m)
	evaluator := service.NewEscalationEvaluator(escalationRepo, calendar)
	executor := service.NewEscalationExecutor(caseRepo, escalationRepo, recipients, notifications, m)

	escalations := service.NewEscalationService(service.EscalationServiceDeps{
		Cases:       caseRepo,
		Events:      eventRepo,
		Rules:       ruleRepo,
		Escalations: escalationRepo,
		Evaluator:   evaluator,
		Executor:    executor,
		Recipients:  recipients,
		Notifier:    notifications,
		Clock:       clock,
		CaseTimeout: cfg.Escalation.CaseTimeout,
		Metrics:     m,
	})
	cases := service.NewCaseService(caseRepo, eventRepo, escalationRepo, recipients, notifications, clock)

	return &Engine{
		Notifications: notifications,
		Escalations:   escalations,
		Cases:         cases,
		Rules:         service.NewRuleService(ruleRepo),
		Metrics:       m,
	}, nil
}
