package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opswatch/opswatch-backend-go/internal/api"
	"github.com/opswatch/opswatch-backend-go/internal/api/handlers"
	"github.com/opswatch/opswatch-backend-go/internal/config"
	"github.com/opswatch/opswatch-backend-go/internal/core/alerts"
	"github.com/opswatch/opswatch-backend-go/internal/core/diagnosis"
	"github.com/opswatch/opswatch-backend-go/internal/core/escalation"
	"github.com/opswatch/opswatch-backend-go/internal/core/evaluator"
	"github.com/opswatch/opswatch-backend-go/internal/core/metrics"
	"github.com/opswatch/opswatch-backend-go/internal/core/notify"
	"github.com/opswatch/opswatch-backend-go/internal/core/oncall"
	"github.com/opswatch/opswatch-backend-go/internal/core/remediation"
	"github.com/opswatch/opswatch-backend-go/internal/core/retention"
	"github.com/opswatch/opswatch-backend-go/internal/core/runbooks"
	"github.com/opswatch/opswatch-backend-go/internal/core/signals"
	"github.com/opswatch/opswatch-backend-go/internal/database"
	"github.com/opswatch/opswatch-backend-go/internal/database/models"
	"github.com/opswatch/opswatch-backend-go/internal/websocket"
	"github.com/opswatch/opswatch-backend-go/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New()
	log.Info("Starting opswatch engine")

	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Initialize(database.Config{
		Path:           cfg.Database.Path,
		MigrationsPath: cfg.Database.MigrationsPath,
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db, cfg.Database.MigrationsPath); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	repos := database.NewRepositories(db)

	catalog, err := runbooks.Load(cfg.Remediation.RunbooksPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load runbook catalog")
	}

	// Signal sources: local host metrics by default, http probes and
	// db threshold queries behind target scheme prefixes.
	sources := signals.NewRegistry()
	sources.SetDefault(signals.NewLocalSource(log))
	sources.Register("http", signals.NewHTTPProbeSource("http", cfg.Evaluator.FetchTimeout, log))
	sources.Register("https", signals.NewHTTPProbeSource("https", cfg.Evaluator.FetchTimeout, log))
	sources.Register("db", signals.NewDBQuerySource(db))

	locks := alerts.NewKeyLock()
	alertSvc := alerts.NewService(repos.Alert, locks, cfg.Evaluator.ClearWindows, log)

	escalationEngine := escalation.NewEngine(
		repos.Alert, repos.EscalationRule, repos.EscalationHistory,
		locks, cfg.Escalation.SweepInterval, log)

	dispatcher := notify.NewDispatcher(
		repos.AlertRule, repos.Channel, repos.NotificationLog, repos.SilenceWindow,
		notify.Config{
			Workers:          cfg.Notifications.Workers,
			QueueSize:        cfg.Notifications.QueueSize,
			DefaultChannelID: cfg.Notifications.DefaultChannelID,
			DefaultCooldown:  cfg.Notifications.DefaultCooldown,
			MaxRetries:       cfg.Notifications.MaxRetries,
			RetryBackoff:     cfg.Notifications.RetryBackoff,
			SendTimeout:      cfg.Notifications.SendTimeout,
		}, log)

	var executor remediation.Executor
	sshExecutor, err := remediation.NewSSHExecutor(remediation.SSHConfig{
		User:           cfg.Remediation.SSH.User,
		Port:           cfg.Remediation.SSH.Port,
		PrivateKeyPath: cfg.Remediation.SSH.PrivateKeyPath,
		Password:       cfg.Remediation.SSH.Password,
		ConnectTimeout: cfg.Remediation.SSH.ConnectTimeout,
	})
	if err != nil {
		log.WithError(err).Warn("SSH executor unavailable, remediation execution disabled")
		executor = remediation.DisabledExecutor{}
	} else {
		executor = sshExecutor
	}

	orchestrator := remediation.NewOrchestrator(repos.Remediation, catalog, executor,
		remediation.Config{
			Workers:        cfg.Remediation.Workers,
			QueueSize:      cfg.Remediation.Workers * 32,
			AutoApproveLow: cfg.Remediation.AutoApproveLow,
			CommandTimeout: cfg.Remediation.CommandTimeout,
		}, log)

	var connector *diagnosis.Connector
	if cfg.Diagnosis.Enabled && cfg.Diagnosis.URL != "" {
		diagnoser := diagnosis.NewHTTPDiagnoser(cfg.Diagnosis.URL, cfg.Diagnosis.APIKey, cfg.Diagnosis.Timeout, log)
		connector = diagnosis.NewConnector(diagnoser, repos.AlertRule, repos.Alert, repos.Remediation, catalog, log)
	}

	evaluatorEngine := evaluator.NewEngine(repos.AlertRule, sources, alertSvc,
		evaluator.Config{
			TickInterval:     cfg.Evaluator.TickInterval,
			FetchTimeout:     cfg.Evaluator.FetchTimeout,
			FailureThreshold: cfg.Evaluator.FailureThreshold,
			RuleCacheTTL:     cfg.Evaluator.RuleCacheTTL,
		}, log)

	oncallResolver := oncall.NewResolver(repos.OnCall)
	hub := websocket.NewHub(log)

	sweeper := retention.NewSweeper(repos.Alert, repos.NotificationLog,
		retention.Config{
			SweepSchedule: cfg.Retention.SweepSchedule,
			ResolvedAge:   cfg.Retention.ResolvedAge,
			LogAge:        cfg.Retention.LogAge,
		}, log)

	// Alert lifecycle wiring. A new alert arms escalation, notifies,
	// and goes through diagnosis; a closed alert disarms its timers.
	alertSvc.OnCreated(func(ctx context.Context, alert *models.Alert, rule *models.AlertRule) {
		metrics.AlertOpened()
		hub.Broadcast(websocket.AlertMessage(websocket.MessageTypeAlertOpened, alert))

		if err := escalationEngine.Register(ctx, alert); err != nil {
			log.WithError(err).WithField("alert_id", alert.ID).Error("Failed to arm escalation timers")
		}
		dispatcher.DispatchAlert(ctx, alert, false)
		if connector != nil {
			go connector.HandleAlert(context.Background(), alert)
		}
	})
	alertSvc.OnClosed(func(ctx context.Context, alert *models.Alert) {
		escalationEngine.Disarm(alert.ID)
		if alert.Status == models.AlertResolved {
			metrics.AlertClosed()
			hub.Broadcast(websocket.AlertMessage(websocket.MessageTypeAlertResolved, alert))
			return
		}
		hub.Broadcast(websocket.AlertMessage(websocket.MessageTypeAlertAcknowledged, alert))
	})

	escalationEngine.SetNotifier(func(ctx context.Context, alert *models.Alert, severityIncreased bool) {
		hub.Broadcast(websocket.AlertMessage(websocket.MessageTypeAlertEscalated, alert))
		dispatcher.DispatchAlert(ctx, alert, severityIncreased)
		if connector != nil {
			go connector.HandleAlert(context.Background(), alert)
		}
	})

	if connector != nil {
		connector.SetSink(func(ctx context.Context, task *models.RemediationTask) {
			orchestrator.Submit(ctx, task)
		})
	}
	dispatcher.OnDelivered(func(logEntry *models.NotificationLog) {
		hub.Broadcast(websocket.NotificationMessage(logEntry))
	})
	orchestrator.SetObserver(func(task *models.RemediationTask) {
		hub.Broadcast(websocket.RemediationMessage(task))
		switch task.Status {
		case models.RemediationSuccess:
			metrics.RecordRemediation("success")
		case models.RemediationFailed:
			metrics.RecordRemediation("failed")
		case models.RemediationRejected:
			metrics.RecordRemediation("rejected")
		}
	})

	go hub.Run()
	if err := dispatcher.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start notification dispatcher")
	}
	if err := escalationEngine.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start escalation engine")
	}
	if err := orchestrator.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start remediation orchestrator")
	}
	if queued, err := orchestrator.Scan(context.Background()); err == nil && queued > 0 {
		log.WithField("queued", queued).Info("Resumed approved remediation tasks")
	}
	if err := evaluatorEngine.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start rule evaluator")
	}
	if err := sweeper.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start retention sweeper")
	}

	h := handlers.New(repos, db, alertSvc, escalationEngine, dispatcher,
		orchestrator, evaluatorEngine, oncallResolver, catalog, hub, log)
	router := api.NewRouter(h, hub, cfg.Server.AllowedOrigins, log)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	evaluatorEngine.Stop()
	escalationEngine.Stop()
	dispatcher.Stop()
	orchestrator.Stop()
	sweeper.Stop()
	hub.Stop()

	log.Info("Shutdown complete")
}
