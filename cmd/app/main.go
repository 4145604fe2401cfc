package main

import (
	"flag"
	"log"
	"os"

	"DigitPulse/pkg/config"
	"DigitPulse/pkg/server"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s store=%s kafka=%t clickhouse=%t",
		cfg.Environment, cfg.Store.Type, cfg.Kafka.Enabled, cfg.ClickHouse.Enabled)

	app, err := server.New(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Blocks until SIGINT/SIGTERM.
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
