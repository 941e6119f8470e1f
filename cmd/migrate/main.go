package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"newsletter-relay/config"
	"newsletter-relay/internal/repository"
	"newsletter-relay/internal/services"
	"newsletter-relay/pkg/database"
	"newsletter-relay/pkg/logger"
)

const usage = `
Newsletter Relay - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up          Create tables, then apply raw SQL migrations
  down        Drop every table (DANGEROUS)
  status      Show connection status and table row counts
  seed-dev    Insert development subscribers
  token       Print an admin bearer token for -actor

Flags:
  -migrations string   Path to migrations directory (default "migrations")
  -confirmed int       Confirmed subscribers for seed-dev (default 20)
  -pending int         Unconfirmed subscribers for seed-dev (default 5)
  -actor string        Actor id for token (default: random)

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go seed-dev -confirmed 100
  go run cmd/migrate/main.go token
`

func main() {
	migrationsDir := flag.String("migrations", "migrations", "Path to migrations directory")
	confirmed := flag.Int("confirmed", 20, "Confirmed subscribers for seed-dev")
	pending := flag.Int("pending", 5, "Unconfirmed subscribers for seed-dev")
	actor := flag.String("actor", "", "Actor id for token")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	cfg := config.LoadConfig()

	if command == "token" {
		printToken(cfg, *actor)
		return
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer database.Close(db)

	switch command {
	case "up":
		runMigrationsUp(db, *migrationsDir, cfg.LogMode)
	case "down":
		runMigrationsDown(db)
	case "status":
		showStatus(db)
	case "seed-dev":
		runSeedDevelopment(db, *confirmed, *pending)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp(db *gorm.DB, migrationsDir, logMode string) {
	log.Println("🚀 Running migrations UP...")

	if err := repository.InitSchema(db); err != nil {
		log.Fatalf("❌ Schema migration failed: %v", err)
	}
	l := logger.New(logMode)
	defer l.Sync()
	if err := database.ApplyRawMigrations(db, migrationsDir, l.Logger); err != nil {
		log.Fatalf("❌ Raw migrations failed: %v", err)
	}

	log.Println("✅ Migrations completed successfully!")
}

func runMigrationsDown(db *gorm.DB) {
	log.Println("⬇️  Dropping tables...")

	if err := repository.DropSchema(db); err != nil {
		log.Fatalf("❌ Rollback failed: %v", err)
	}

	log.Println("✅ Rollback completed successfully!")
}

func showStatus(db *gorm.DB) {
	log.Println("🔍 Checking database status...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := database.HealthCheck(ctx, db); err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	log.Println("✅ Database connection: OK")

	for _, table := range repository.Tables {
		if !database.TableExists(db, table) {
			log.Printf("❌ Table %-22s does not exist", table)
			continue
		}
		count, err := database.GetTableCount(db, table)
		if err != nil {
			log.Printf("⚠️  Error counting table %s: %v", table, err)
			continue
		}
		log.Printf("✅ Table %-22s exists (%d rows)", table, count)
	}
}

func runSeedDevelopment(db *gorm.DB, confirmed, pending int) {
	log.Println("🌱 Seeding development subscribers...")

	seedCfg := database.DefaultSeedConfig()
	seedCfg.ConfirmedCount = confirmed
	seedCfg.UnconfirmedCount = pending

	result, err := database.SeedSubscribers(context.Background(), db, seedCfg)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Printf("✅ Seeded %d confirmed and %d unconfirmed subscribers", len(result.Confirmed), len(result.Unconfirmed))
}

func printToken(cfg *config.Config, rawActor string) {
	actorID := uuid.New()
	if rawActor != "" {
		parsed, err := uuid.Parse(rawActor)
		if err != nil {
			log.Fatalf("❌ Invalid actor id: %v", err)
		}
		actorID = parsed
	}

	token, err := services.NewAuthService(cfg.JWTSecret, 24*time.Hour).IssueAccessToken(actorID)
	if err != nil {
		log.Fatalf("❌ Failed to sign token: %v", err)
	}
	log.Printf("actor: %s", actorID)
	fmt.Println(token)
}
