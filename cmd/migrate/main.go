package main

// Run database migrations:
//   go run ./cmd/migrate            # up
//   go run ./cmd/migrate -cmd down  # roll back one
//   go run ./cmd/migrate -cmd status

import (
	"context"
	"flag"
	"log"
	"os"

	"variance-backend/internal/shared/config"
	"variance-backend/internal/shared/storage/db"
)

func main() {
	command := flag.String("cmd", "up", "migration command: up, down or status")
	flag.Parse()
	if flag.NArg() > 0 {
		*command = flag.Arg(0)
	}

	cfg := config.Load()
	ctx := context.Background()

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	switch *command {
	case "up":
		err = db.RunMigrations(ctx, sqlDB)
	case "down":
		err = db.RollbackMigration(ctx, sqlDB)
	case "status":
		err = db.MigrationStatus(ctx, sqlDB)
	default:
		log.Printf("unknown migration command %q", *command)
		os.Exit(2)
	}
	if err != nil {
		log.Printf("migration %s failed: %v", *command, err)
		os.Exit(1)
	}
}
