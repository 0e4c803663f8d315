package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"

	"ticket-checkout/internal/config"
	"ticket-checkout/internal/logger"
	"ticket-checkout/internal/storage"
)

func main() {
	envFile := flag.String("env-file", ".env", "environment file to load before reading configuration")
	scriptFile := flag.String("file", "", "SQL script to apply instead of the bundled schema")
	timeout := flag.Duration("timeout", time.Minute, "migration deadline")
	flag.Parse()

	log := logger.NewLogger()
	defer log.Close()

	if err := godotenv.Load(*envFile); err != nil {
		log.Warn("ENV", "Error loading "+*envFile+", using environment variables")
	}
	cfg := config.Load()

	var script string
	if *scriptFile != "" {
		data, err := os.ReadFile(*scriptFile)
		if err != nil {
			log.Fatal("MIGRATE", "Failed to read script: "+err.Error())
		}
		script = string(data)
	}

	store, err := storage.NewMySQLStore(cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", "Failed to connect to MySQL: "+err.Error())
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := storage.Migrate(ctx, store.DB(), script, log); err != nil {
		log.Fatal("MIGRATE", err.Error())
	}
}
