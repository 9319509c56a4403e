// Seed tool: populates a development database from the YAML fixture and
// backfills the rollup tables.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/karloscodes/cartridge"

	"bloglytics/internal/config"
	"bloglytics/internal/database"
	"bloglytics/internal/seeder"
)

func main() {
	viewCount := flag.Int("views", 5000, "total number of views to generate")
	days := flag.Int("days", 30, "window in days the generated views land in")
	seedFile := flag.String("file", "", "path to the YAML seed file (defaults to config)")
	flag.Parse()

	cfg := config.GetConfig()
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	if err := dbManager.MigrateDatabase(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	path := *seedFile
	if path == "" {
		path = cfg.SeedFilePath
	}
	fixture, err := seeder.LoadFixture(path)
	if err != nil {
		log.Fatalf("Failed to load seed fixture: %v", err)
	}

	s := seeder.NewSeeder(dbManager, logger, *viewCount, *days)
	if err := s.Run(context.Background(), fixture); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
}
