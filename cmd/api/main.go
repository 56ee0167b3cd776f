package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/config"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/notification"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/payroll"
	appHTTP "github.com/cmlabs-hris/hris-payroll-engine/internal/handler/http"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/authz"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/cron"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/database"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/eventlog"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/jwt"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/lock"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/logging"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/metrics"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/mq"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/ruleexpr"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/sse"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/repository/postgresql"
	attendanceService "github.com/cmlabs-hris/hris-payroll-engine/internal/service/attendance"
	notificationService "github.com/cmlabs-hris/hris-payroll-engine/internal/service/notification"
	payrollService "github.com/cmlabs-hris/hris-payroll-engine/internal/service/payroll"
	ruleService "github.com/cmlabs-hris/hris-payroll-engine/internal/service/rule"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.App.LogLevel, cfg.App.LogFormat, "service", "hris-payroll-engine", "env", cfg.App.Env)
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgreSQLDB(ctx, cfg.DatabaseURL(), database.PoolOptions{MaxConns: cfg.Database.MaxConns})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	txManager := postgresql.NewTxManager(db)
	recordRepo := postgresql.NewAttendanceRecordRepository(db)
	exceptionRepo := postgresql.NewAttendanceExceptionRepository(db)
	ruleRepo := postgresql.NewRuleRepository(db)
	shiftRepo := postgresql.NewShiftAssignmentRepository(db)
	directory := postgresql.NewEmployeeDirectory(db)
	runRepo := postgresql.NewPayrollRunRepository(db)
	payslipRepo := postgresql.NewPayslipRepository(db)
	configRepo := postgresql.NewPayrollConfigRepository(db)
	notificationRepo := postgresql.NewNotificationRepository(db)

	// Locks: shared through redis when configured, otherwise per process.
	var locker lock.Locker = lock.NewKeyedMutex()
	redisClient, err := lock.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, cfg.Redis.LockTTL, logger)
		logger.Info("using redis locks")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Rules
	engine, err := ruleexpr.NewEngine()
	if err != nil {
		return fmt.Errorf("build rule engine: %w", err)
	}
	rules := ruleService.NewRuleService(txManager, ruleRepo, engine, locker, logger)

	seeds, err := config.LoadRuleSeeds(cfg.Rules.SeedPath)
	if err != nil {
		return fmt.Errorf("load rule seeds: %w", err)
	}
	if len(seeds) > 0 {
		seeded, err := rules.Seed(ctx, seeds)
		if err != nil {
			return fmt.Errorf("seed rules: %w", err)
		}
		logger.Info("rule seeds applied", "path", cfg.Rules.SeedPath, "created", seeded)
	}

	// Notifications
	hub := sse.NewHub(0)
	defer hub.Close()

	var publisher notification.Publisher = notificationService.NewLogPublisher(logger)
	if cfg.RabbitMQ.URL != "" {
		conn, err := mq.NewConnection(cfg.RabbitMQ.URL, logger)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer conn.Close()

		if err := mq.SetupTopology(ctx, conn, cfg.RabbitMQ.Exchange, cfg.RabbitMQ.Queue, "notification.#"); err != nil {
			return fmt.Errorf("declare rabbitmq topology: %w", err)
		}
		publisher = notificationService.NewAMQPPublisher(mq.NewPublisher(conn, cfg.RabbitMQ.Exchange, logger))
	}

	notifications := notificationService.NewNotificationService(notificationRepo, hub, publisher, m, logger, notificationService.Config{
		BatchSize:     cfg.Notification.BatchSize,
		FlushInterval: cfg.Notification.FlushInterval,
		WorkerCount:   cfg.Notification.WorkerCount,
		QueueSize:     cfg.Notification.QueueSize,
		MaxAttempts:   cfg.Notification.MaxAttempts,
	})

	// Audit stream
	var audit payroll.AuditPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := eventlog.NewKafkaProducer(ctx, eventlog.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			Timeout: cfg.Kafka.Timeout,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer producer.Close()
		audit = payrollService.NewStreamAuditPublisher(producer, logger)
	}

	// Attendance
	ledger := attendanceService.NewLedger(recordRepo, exceptionRepo)
	evaluator := attendanceService.NewEvaluator(engine)
	attendance := attendanceService.NewAttendanceService(
		txManager,
		recordRepo,
		exceptionRepo,
		ledger,
		shiftRepo,
		rules,
		directory,
		evaluator,
		locker,
		notifications,
		m,
		logger,
	)

	// Payroll
	aggregator := payrollService.NewAggregator(directory, ledger, recordRepo, configRepo, m, logger)
	runs := payrollService.NewRunService(
		txManager,
		runRepo,
		payslipRepo,
		aggregator,
		payrollService.NewFinalizer(payslipRepo),
		directory,
		locker,
		notifications,
		audit,
		m,
		logger,
	)
	payrollConfigs := payrollService.NewConfigService(configRepo, locker, notifications, m, logger)

	// Auth
	authzMode, err := authz.ParseMode(cfg.Authz.Mode)
	if err != nil {
		return err
	}
	authorizer, err := authz.NewAuthorizer(cfg.Authz.PolicyPath, authzMode, logger)
	if err != nil {
		return fmt.Errorf("build authorizer: %w", err)
	}
	jwtService, err := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	if err != nil {
		return fmt.Errorf("build jwt service: %w", err)
	}

	// Background jobs
	scheduler := cron.NewScheduler(logger)
	if cfg.Cron.Enabled {
		jobs := cron.NewPayrollJobs(attendance, notifications, runs, cron.PayrollJobsConfig{
			RecomputeInterval: cfg.Cron.RecomputeInterval,
			RecomputeDays:     cfg.Cron.RecomputeDays,
			RetryInterval:     cfg.Cron.RetryInterval,
			FinalizeInterval:  cfg.Cron.FinalizeInterval,
			AutoFinalize:      cfg.Cron.AutoFinalize,
		}, logger)
		jobs.RegisterJobs(scheduler)
		scheduler.Start()
	}

	router := appHTTP.NewRouter(appHTTP.RouterDeps{
		Logger:       logger,
		CORSOrigins:  cfg.App.CORSOrigins,
		JWTService:   jwtService,
		Actors:       authorizer,
		Metrics:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Attendance:   appHTTP.NewAttendanceHandler(attendance, ledger),
		Rules:        appHTTP.NewRuleHandler(rules),
		Payroll:      appHTTP.NewPayrollHandler(runs, payrollConfigs),
		Notification: appHTTP.NewNotificationHandler(notifications, jwtService),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Open SSE streams end with the hub; close it before waiting on handlers.
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	scheduler.Stop()
	notifications.Stop()

	logger.Info("server stopped cleanly")
	return nil
}
