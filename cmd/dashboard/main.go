// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// Command dashboard starts the PolyAgent dashboard HTTP server.
//
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - DASHBOARD_PORT: HTTP server port (default: 12400)
//   - LLM_BACKEND: upstream provider - openai, cloudflare (default: openai)
//   - DATABASE_PATH: SQLite file path (default: ./polyagent.db)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//   - PRICE_REFRESH_SECONDS: market refresh interval (default: 60)
//   - PRICE_REFRESH_ENABLED: start the CoinGecko refresher (default: true)
//   - LOG_DIR: directory for JSON log files (optional)
//   - LOG_LEVEL: minimum log level - debug, info, warn, error (default: info)
//
// # Usage
//
//	# Build
//	go build -o dashboard ./cmd/dashboard
//
//	# Run
//	./dashboard
package main

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/Yasith867/PolyAgent/pkg/logging"
	"github.com/Yasith867/PolyAgent/services/dashboard"
)

func main() {
	// Setup structured logging
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("LOG_LEVEL")),
		Service: "dashboard",
		LogDir:  os.Getenv("LOG_DIR"),
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// Build configuration from environment variables
	cfg := dashboard.Config{
		Port:                 getEnvInt("DASHBOARD_PORT", 12400),
		LLMBackend:           getEnvString("LLM_BACKEND", "openai"),
		DatabasePath:         getEnvString("DATABASE_PATH", "./polyagent.db"),
		OTelEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		EnableMetrics:        true,
		PriceRefreshInterval: time.Duration(getEnvInt("PRICE_REFRESH_SECONDS", 60)) * time.Second,
		PriceRefreshEnabled:  getEnvBool("PRICE_REFRESH_ENABLED", true),
	}

	logger.Info("Starting dashboard",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"database_path", cfg.DatabasePath,
	)

	svc, err := dashboard.New(cfg)
	if err != nil {
		logger.Error("Failed to create dashboard", "error", err)
		logger.Close()
		os.Exit(1)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		logger.Error("Dashboard server error", "error", err)
		logger.Close()
		os.Exit(1)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
