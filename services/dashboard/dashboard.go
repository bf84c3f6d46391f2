// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// Package dashboard provides the core service for PolyAgent.
//
// This package contains the main Service type that coordinates all
// components: HTTP routing, the conversation store, the upstream LLM
// client, the market price refresher, and observability infrastructure.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Yasith867/PolyAgent/services/dashboard/observability"
	"github.com/Yasith867/PolyAgent/services/dashboard/prices"
	"github.com/Yasith867/PolyAgent/services/dashboard/routes"
	"github.com/Yasith867/PolyAgent/services/dashboard/store"
	"github.com/Yasith867/PolyAgent/services/llm"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the dashboard service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing. Callers must
	// not modify the router.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds dashboard service configuration. All fields are optional;
// New() applies defaults for zero values.
type Config struct {
	// Port is the HTTP server port. Default: 12400
	Port int

	// LLMBackend specifies the upstream provider.
	// Valid values: "openai", "cloudflare". Default: "openai"
	LLMBackend string

	// DatabasePath is the SQLite file path. Default: "./polyagent.db".
	// Use ":memory:" for an ephemeral store.
	DatabasePath string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// If empty, tracing is disabled.
	OTelEndpoint string

	// EnableMetrics enables the Prometheus /metrics endpoint.
	EnableMetrics bool

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	GinMode string

	// PriceRefreshInterval is how often market rows are refreshed from
	// CoinGecko. Default: 60s.
	PriceRefreshInterval time.Duration

	// PriceRefreshEnabled starts the background price refresher.
	PriceRefreshEnabled bool
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use. All fields are read-only
// after New() returns.
type service struct {
	config        Config
	router        *gin.Engine
	db            *store.DB
	llmClient     llm.LLMClient
	metrics       *observability.StreamingMetrics
	tracerCleanup func(context.Context)
	refreshCancel context.CancelFunc
}

// New creates a dashboard Service with the given configuration.
//
// Initialization order:
//  1. Apply defaults for missing configuration values.
//  2. Initialize OpenTelemetry tracing (when an endpoint is configured).
//  3. Initialize Prometheus metrics.
//  4. Open the SQLite store, run migrations, and seed the demo dataset.
//  5. Create the upstream LLM client for the configured backend.
//  6. Start the market price refresher (when enabled).
//  7. Register HTTP routes.
//
// On failure, anything already initialized is torn down before returning.
func New(cfg Config) (Service, error) {
	s := &service{config: applyConfigDefaults(cfg)}

	if s.config.OTelEndpoint != "" {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for streaming")
	} else if observability.DefaultMetrics == nil {
		// Handlers require a metrics instance even when /metrics is not
		// exposed.
		observability.InitMetrics()
	}
	s.metrics = observability.DefaultMetrics

	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := s.initLLMClient(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	if s.config.PriceRefreshEnabled {
		s.startPriceRefresher()
	}

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error. Cleanup
// is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting dashboard server", "port", s.config.Port, "backend", s.config.LLMBackend)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12400
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "openai"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "./polyagent.db"
	}
	if cfg.PriceRefreshInterval == 0 {
		cfg.PriceRefreshInterval = prices.DefaultRefreshInterval
	}
	return cfg
}

// initTracer sets up the OTLP trace exporter against the configured
// collector. Uses an insecure gRPC connection, appropriate for internal
// networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("polyagent-dashboard")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initStore opens the SQLite store, runs migrations, and seeds the demo
// dataset on first start.
func (s *service) initStore() error {
	db, err := store.Open(s.config.DatabasePath)
	if err != nil {
		return err
	}
	s.db = db

	if err := db.Seed(context.Background()); err != nil {
		return fmt.Errorf("seeding database: %w", err)
	}

	slog.Info("Conversation store initialized", "path", s.config.DatabasePath)
	return nil
}

// initLLMClient creates the upstream client for the configured backend.
func (s *service) initLLMClient() error {
	var err error

	switch s.config.LLMBackend {
	case "openai":
		s.llmClient, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI LLM backend")
	case "cloudflare":
		s.llmClient, err = llm.NewCloudflareClient()
		slog.Info("Using Cloudflare Workers AI LLM backend")
	default:
		slog.Warn("Unknown LLM backend, defaulting to openai", "backend", s.config.LLMBackend)
		s.llmClient, err = llm.NewOpenAIClient()
	}

	return err
}

// startPriceRefresher launches the background CoinGecko refresher.
func (s *service) startPriceRefresher() {
	ctx, cancel := context.WithCancel(context.Background())
	s.refreshCancel = cancel

	refresher := prices.NewRefresher(s.db, prices.NewClient(), s.config.PriceRefreshInterval)
	go refresher.Run(ctx)
}

// initRouter creates the Gin engine, applies middleware, and registers all
// routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("polyagent-dashboard"))

	routes.SetupRoutes(s.router, s.db, s.llmClient, s.metrics)
}

// cleanup releases all resources held by the service. Called when Run()
// exits or on initialization failure.
func (s *service) cleanup() {
	if s.refreshCancel != nil {
		s.refreshCancel()
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("Store close error", "error", err)
		}
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
