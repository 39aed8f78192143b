package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fieldcrm/crm-api/internal/config"
	"github.com/fieldcrm/crm-api/internal/database"
	"github.com/fieldcrm/crm-api/internal/logger"
	"github.com/fieldcrm/crm-api/internal/service"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Seed error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.NewDatabase(&cfg.Database, log)
	if err != nil {
		return err
	}
	if cfg.Database.Driver == "sqlite" {
		if err := database.AutoMigrate(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	result, err := service.NewSeedService(db, service.DefaultSeedCatalogs, log).Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed: %w", err)
	}

	log.Info("Seed completed", zap.Int("created", result.Created), zap.Int("existing", result.Existing))
	fmt.Printf("Seed completed: %d created, %d existing\n", result.Created, result.Existing)
	return nil
}
