// Command seed populates the database with the permission catalog, the
// built-in roles, and a bootstrap administrator. It is safe to run more than
// once; existing records are left untouched. Gated by ALLOW_DB_SEED.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/veldtlabs/identity/internal/config"
	"github.com/veldtlabs/identity/internal/repository/postgres"
	"github.com/veldtlabs/identity/internal/seed"
	"github.com/veldtlabs/identity/migrations"
	"github.com/veldtlabs/identity/pkg/database"
	"github.com/veldtlabs/identity/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New("identity-seed", cfg.LogLevel)

	if !cfg.AllowDBSeed {
		log.Warn("database seeding is disabled, set ALLOW_DB_SEED=true to enable")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pgCfg := database.DefaultPostgresConfig()
	pgCfg.Host = cfg.PostgresHost
	pgCfg.Port = cfg.PostgresPort
	pgCfg.User = cfg.PostgresUser
	pgCfg.Password = cfg.PostgresPass
	pgCfg.DBName = cfg.PostgresDB
	pgCfg.SSLMode = cfg.PostgresSSL

	pool, err := database.NewPostgresPoolWithLogger(ctx, &pgCfg, log)
	if err != nil {
		log.Error("failed to connect to postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// The schema must exist before seeding into it.
	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	seeder := seed.New(
		postgres.NewUserRepository(pool),
		postgres.NewRoleRepository(pool),
		postgres.NewPermissionRepository(pool),
		log,
	)
	if err := seeder.Run(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Error("seeding failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("database seeding completed")
}
