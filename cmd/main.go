package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"leadcrm/internal/activity"
	"leadcrm/internal/api"
	"leadcrm/internal/auth"
	"leadcrm/internal/config"
	"leadcrm/internal/leads"
	"leadcrm/internal/metrics"
	"leadcrm/internal/storage"
)

// @title Lead CRM API
// @version 1.0
// @description Multi-tenant CRUD API for sales leads with cookie-based JWT auth
// @host localhost:8080
// @BasePath /
// @schemes http

// @securityDefinitions.apikey CookieAuth
// @in header
// @name session
func main() {
	// Init Metrics
	metrics.Init()

	// Load Configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded")

	// Setup JWT session signing
	auth.SetSecret(cfg.Auth.JWTSecret)
	if cfg.Auth.TokenTTLHours > 0 {
		auth.SetTokenTTL(time.Duration(cfg.Auth.TokenTTLHours) * time.Hour)
	}

	// Init PostgreSQL
	db, err := storage.NewStorage(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to init DB: %v", err)
	}
	defer db.DB.Close()
	if err := db.EnsureSchema(); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}
	log.Println("PostgreSQL connected")

	// Init RabbitMQ
	rabbitClient, err := activity.NewRabbitClient(cfg.RabbitMQ.URL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer rabbitClient.Close()
	log.Println("RabbitMQ connected")

	// Init activity pipeline
	am := activity.NewManager(rabbitClient, db, cfg.Workers)

	// Background loop exporting activity queue depth per tenant
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			for _, userID := range am.ListTenantIDs() {
				rabbitClient.UpdateQueueDepth(userID)
			}
		}
	}()

	// Recover consumers for existing tenants
	userIDs, err := db.ListUserIDs()
	if err != nil {
		log.Fatalf("Failed to load users: %v", err)
	}
	for _, id := range userIDs {
		if err := am.EnsureTenant(id); err != nil {
			log.Printf("⚠️ Failed to recover tenant %s: %v", id, err)
			continue
		}
		log.Printf("🔁 Recovered tenant %s", id)
	}

	// Init API
	svc := leads.NewService(db, rabbitClient)
	apiHandler := api.NewAPI(svc, db, am, cfg)
	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: apiHandler.Router(),
	}

	// Graceful Shutdown Setup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("🚀 Starting API server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done() // Wait for interrupt signal
	log.Println("Shutdown initiated...")

	// Shutdown sequence
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Stop HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}

	// Stop all activity consumers
	am.ShutdownAll()

	log.Println("Graceful shutdown complete")
}
