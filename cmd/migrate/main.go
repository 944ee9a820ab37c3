package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/opswatch/opswatch-backend-go/internal/config"
	"github.com/opswatch/opswatch-backend-go/pkg/logger"
)

// Standalone migration runner for deployments that apply schema
// changes outside server startup.
func main() {
	var direction string
	flag.StringVar(&direction, "direction", "up", "Migration direction: up, down or version")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New()

	db, err := sqlx.Open("sqlite3", cfg.Database.Path)
	if err != nil {
		log.WithError(err).Fatal("Failed to open database")
	}
	defer db.Close()

	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		log.WithError(err).Fatal("Failed to create migration driver")
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://"+cfg.Database.MigrationsPath, "sqlite3", driver)
	if err != nil {
		log.WithError(err).Fatal("Failed to create migrator")
	}

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil {
			log.WithError(verr).Fatal("Failed to read migration version")
		}
		log.WithField("version", version).WithField("dirty", dirty).Info("Current migration version")
		return
	default:
		log.WithField("direction", direction).Fatal("Unknown migration direction")
	}

	if err != nil && err != migrate.ErrNoChange {
		log.WithError(err).Fatal("Migration failed")
	}
	log.WithField("direction", direction).Info("Migrations applied")
}
