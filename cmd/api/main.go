package main

import (
	"context"
	"flag"
	"log"

	"github.com/stayloop/stayloop-backend/internal/api/rest"
	"github.com/stayloop/stayloop-backend/internal/infrastructure/config"
	"github.com/stayloop/stayloop-backend/internal/infrastructure/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := telemetry.SetupLogger(cfg.LogLevel)

	server, err := rest.NewServer(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
