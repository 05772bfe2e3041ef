package pgstorage

import (
	"context"
	"os"
	"strconv"

	"github.com/badbunnzcorporation-lgtm/nft-bridge/log"
	"github.com/gobuffalo/packr/v2"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"
	migrate "github.com/rubenv/sql-migrate"
)

// RunMigrations will execute pending migrations if needed to keep
// the database updated with the latest changes
func RunMigrations(cfg Config) error {
	c, err := pgx.ParseConfig("postgres://" + cfg.User + ":" + cfg.Password + "@" + cfg.Host + ":" + cfg.Port + "/" + cfg.Name)
	if err != nil {
		return err
	}
	db := stdlib.OpenDB(*c)

	var migrations = &migrate.PackrMigrationSource{Box: packr.New("nft-bridge-db-migrations", "./migrations")}
	nMigrations, err := migrate.Exec(db, "postgres", migrations, migrate.Up)
	if err != nil {
		return err
	}

	log.Info("successfully ran ", nMigrations, " migrations Up")
	return nil
}

// InitOrReset will initialize the db running the migrations or
// will reset all the known data and rerun the migrations
func InitOrReset(cfg Config) error {
	pgStorage, err := NewPostgresStorage(cfg)
	if err != nil {
		return err
	}
	defer pgStorage.Close()

	// reset db dropping migrations table and schemas
	if _, err := pgStorage.Exec(context.Background(), "DROP TABLE IF EXISTS gorp_migrations CASCADE;"); err != nil {
		return err
	}
	if _, err := pgStorage.Exec(context.Background(), "DROP SCHEMA IF EXISTS sync CASCADE;"); err != nil {
		return err
	}

	return RunMigrations(cfg)
}

// NewConfigFromEnv creates config from standard postgres environment variables
func NewConfigFromEnv() Config {
	maxConns, _ := strconv.Atoi(getEnv("NFTBRIDGE_DATABASE_MAXCONNS", "20"))
	return Config{
		User:     getEnv("NFTBRIDGE_DATABASE_USER", "test_user"),
		Password: getEnv("NFTBRIDGE_DATABASE_PASSWORD", "test_password"),
		Name:     getEnv("NFTBRIDGE_DATABASE_NAME", "test_db"),
		Host:     getEnv("NFTBRIDGE_DATABASE_HOST", "localhost"),
		Port:     getEnv("NFTBRIDGE_DATABASE_PORT", "5433"),
		MaxConns: maxConns,
	}
}

func getEnv(key string, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if exists {
		return value
	}
	return defaultValue
}
