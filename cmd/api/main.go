package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldcrm/crm-api/docs"
	"github.com/fieldcrm/crm-api/internal/auth"
	"github.com/fieldcrm/crm-api/internal/config"
	"github.com/fieldcrm/crm-api/internal/database"
	"github.com/fieldcrm/crm-api/internal/datawarehouse"
	"github.com/fieldcrm/crm-api/internal/domain"
	"github.com/fieldcrm/crm-api/internal/geocode"
	"github.com/fieldcrm/crm-api/internal/http/handler"
	"github.com/fieldcrm/crm-api/internal/http/middleware"
	"github.com/fieldcrm/crm-api/internal/http/router"
	"github.com/fieldcrm/crm-api/internal/jobs"
	"github.com/fieldcrm/crm-api/internal/logger"
	"github.com/fieldcrm/crm-api/internal/mail"
	"github.com/fieldcrm/crm-api/internal/metrics"
	"github.com/fieldcrm/crm-api/internal/repository"
	"github.com/fieldcrm/crm-api/internal/service"
	"github.com/fieldcrm/crm-api/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// @title Field Service CRM API
// @version 1.0
// @description Orders, stock and billing for field technicians across product modules

// @contact.name API Support
// @contact.email support@fieldcrm.io

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer token issued by the identity service

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name x-api-key
// @description System API key, acts as an administrator

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load basic configuration first (for logging setup)
	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", basicCfg.App.Name),
		zap.String("env", basicCfg.App.Environment),
		zap.Int("port", basicCfg.App.Port),
	)

	docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", basicCfg.App.Port)
	if basicCfg.App.PublicHost != "" {
		docs.SwaggerInfo.Host = basicCfg.App.PublicHost
	}

	// In staging/production secrets come from Azure Key Vault
	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := database.NewDatabase(&cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	// Postgres schemas are owned by cmd/migrate
	if cfg.Database.Driver == "sqlite" {
		if err := database.AutoMigrate(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	var archive storage.Storage
	if cfg.Storage.ArchiveReports {
		archive, err = storage.NewStorage(&cfg.Storage, log)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		log.Info("Report archive initialized", zap.String("mode", cfg.Storage.Mode))
	}

	// Operator rate cards live in the data warehouse; the app runs without it
	var dwClient *datawarehouse.Client
	if cfg.DataWarehouse.Enabled {
		dwClient, err = datawarehouse.NewClient(&cfg.DataWarehouse, log)
		if err != nil {
			log.Warn("Data warehouse connection failed, continuing without it", zap.Error(err))
			dwClient = nil
		}
	}

	mailer := mail.NewSender(&cfg.Mail, log)
	if !mailer.Enabled() {
		log.Info("SMTP not configured, outbound mail disabled")
	}
	geocoder := geocode.NewClient(&cfg.Geocoding, log)
	appMetrics := metrics.New()

	// Shared repositories
	userRepo := repository.NewUserRepository(db)
	accessRepo := repository.NewModuleAccessRepository(db)
	locationRepo := repository.NewLocationRepository(db)
	teamRepo := repository.NewTeamRepository(db)
	settingsRepo := repository.NewTechnicianSettingsRepository(db)
	auditLogRepo := repository.NewAuditLogRepository(db)

	// Core services
	userService := service.NewUserService(userRepo, accessRepo, locationRepo, mailer, log, db)
	teamService := service.NewTeamService(teamRepo, userRepo, accessRepo, log)
	settingsService := service.NewSettingsService(settingsRepo, log)
	auditLogService := service.NewAuditLogService(auditLogRepo, log)

	// One service set per module, bound to the module's tables
	moduleHandlers := make(map[domain.ModuleCode]router.ModuleHandlers)
	archivers := make(map[domain.ModuleCode]jobs.SnapshotArchiver)
	for _, m := range domain.Modules() {
		orderRepo := repository.NewOrderRepository(db, m)
		stockRepo := repository.NewStockRepository(db, m)
		rateRepo := repository.NewRateRepository(db, m)

		orderService := service.NewOrderService(orderRepo, stockRepo, rateRepo, userRepo, accessRepo, settingsRepo, geocoder, appMetrics, log, db)
		warehouseService := service.NewWarehouseService(stockRepo, orderRepo, userRepo, accessRepo, appMetrics, log, db)
		reportService := service.NewReportService(orderService, stockRepo, orderRepo, userRepo, archive, appMetrics, log)

		moduleHandlers[m.Code] = router.ModuleHandlers{
			Orders:    handler.NewOrderHandler(orderService, log),
			Warehouse: handler.NewWarehouseHandler(warehouseService, log),
			Reports:   handler.NewReportHandler(reportService, log),
		}
		archivers[m.Code] = reportService

		log.Info("Module initialized",
			zap.String("module", string(m.Code)),
			zap.String("orders_table", m.Tables.Orders),
		)
	}

	// Middleware
	authMiddleware := auth.NewMiddleware(cfg, userRepo, locationRepo, log)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)
	auditMiddleware := middleware.NewAuditMiddleware(auditLogService, nil, log)

	rt := router.NewRouter(
		cfg,
		log,
		authMiddleware,
		rateLimiter,
		auditMiddleware,
		appMetrics,
		handler.NewHealthHandler(db, log),
		handler.NewUserHandler(userService, log),
		handler.NewTeamHandler(teamService, settingsService, log),
		handler.NewAuditHandler(auditLogService, log),
		moduleHandlers,
	)

	scheduler, err := startJobs(cfg, db, dwClient, mailer, appMetrics, archive, archivers, auditLogService, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      rt.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		if scheduler != nil {
			<-scheduler.Stop().Done()
			log.Info("Scheduler stopped")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}

		if dwClient != nil {
			if err := dwClient.Close(); err != nil {
				log.Warn("Error closing data warehouse connection", zap.Error(err))
			}
		}

		log.Info("Server stopped gracefully")
	}

	return nil
}

// startJobs registers the background jobs whose dependencies are available.
// It returns a nil scheduler when no job is registered.
func startJobs(
	cfg *config.Config,
	db *gorm.DB,
	dwClient *datawarehouse.Client,
	mailer *mail.Sender,
	appMetrics *metrics.Metrics,
	archive storage.Storage,
	archivers map[domain.ModuleCode]jobs.SnapshotArchiver,
	auditLogService *service.AuditLogService,
	log *zap.Logger,
) (*jobs.Scheduler, error) {
	var alertMailer jobs.Mailer
	if mailer.Enabled() {
		alertMailer = mailer
	}
	alerts := jobs.NewAlerts(alertMailer, cfg.Mail.AlertTo, appMetrics, log)
	scheduler := jobs.NewScheduler(log)
	timeout := cfg.Jobs.TimeoutDuration()

	if dwClient != nil {
		syncer := service.NewRateSyncService(dwClient, db, log)
		if err := jobs.RegisterRateSyncJob(scheduler, syncer, domain.Modules(), alerts, log, cfg.Jobs.RateSyncSchedule, timeout); err != nil {
			return nil, fmt.Errorf("failed to register rate sync job: %w", err)
		}
	} else {
		log.Info("Rate sync disabled, data warehouse not available")
	}

	if archive != nil {
		if err := jobs.RegisterStockReportJob(scheduler, archivers, alerts, log, cfg.Jobs.StockReportSchedule, timeout); err != nil {
			return nil, fmt.Errorf("failed to register stock report job: %w", err)
		}
	} else {
		log.Info("Stock report job disabled, report archive not configured")
	}

	if err := jobs.RegisterAuditCleanupJob(scheduler, auditLogService, cfg.Jobs.AuditRetentionDays, alerts, log, cfg.Jobs.AuditCleanupSchedule, timeout); err != nil {
		return nil, fmt.Errorf("failed to register audit cleanup job: %w", err)
	}

	if len(scheduler.JobNames()) == 0 {
		return nil, nil
	}
	scheduler.Start()
	return scheduler, nil
}
