// Command migrate applies the claims-intake schema to the configured
// database. The schema is idempotent, so running it on every deploy is safe.
package main

import (
	"context"
	_ "embed"
	"log"
	"time"

	"github.com/voyagecover/claims-intake/internal/config"
	"github.com/voyagecover/claims-intake/internal/repository/postgres"
)

//go:embed schema.sql
var schema string

func main() {
	cfg, err := config.LoadFromEnv("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	log.Println("Schema applied")
}
