package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"catalog-search/config"
	"catalog-search/internal/repository"
	"catalog-search/pkg/database"
)

const usage = `
Catalog Search - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up            Create or update the tables owned by this service
  status        Show connection status and which owned tables exist
  catalog-dev   Create the development catalog read model (SQL files)
  seed-catalog  Fill the development catalog with generated products

Flags:
  -migrations string   Path to catalog SQL migrations (default "migrations")
  -products int        Number of products for seed-catalog (default 200)

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go catalog-dev
  go run cmd/migrate/main.go seed-catalog -products 1000
`

func main() {
	migrationsDir := flag.String("migrations", "migrations", "Path to catalog SQL migrations")
	products := flag.Int("products", 200, "Number of products for seed-catalog")

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
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer database.Close()

	switch command {
	case "up":
		runMigrationsUp()
	case "status":
		showStatus()
	case "catalog-dev":
		runCatalogMigrations(cfg, *migrationsDir)
	case "seed-catalog":
		runSeedCatalog(cfg, *products)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp() {
	log.Println("🚀 Running migrations UP...")

	if err := repository.InitSchema(database.DB); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Migrations completed successfully!")
}

func showStatus() {
	log.Println("🔍 Checking database status...")

	if err := database.HealthCheck(context.Background()); err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	log.Println("✅ Database connection: OK")

	tables, err := repository.SchemaStatus(database.DB)
	if err != nil {
		log.Fatalf("❌ Failed to inspect schema: %v", err)
	}
	for table, exists := range tables {
		if exists {
			log.Printf("✅ Table %-22s exists", table)
		} else {
			log.Printf("❌ Table %-22s does not exist", table)
		}
	}
}

func runCatalogMigrations(cfg *config.Config, migrationsDir string) {
	log.Println("🚀 Creating development catalog tables...")

	db, err := database.ConnectCatalog(cfg)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer db.Close()

	if err := database.ApplyRawMigrations(db, migrationsDir); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Catalog tables ready!")
}

func runSeedCatalog(cfg *config.Config, products int) {
	log.Println("🌱 Seeding development catalog...")

	db, err := database.ConnectCatalog(cfg)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer db.Close()

	seedCfg := database.DefaultSeedConfig()
	seedCfg.ProductCount = products
	result, err := database.SeedCatalog(context.Background(), db, seedCfg)
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Printf("✅ Seeded %d products with %d offers. Run POST /v1/index/reindex to index them.", result.Products, result.Offers)
}
