package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/homesense/energy-insights/internal/analytics"
	"github.com/homesense/energy-insights/internal/cache"
	"github.com/homesense/energy-insights/internal/httpapi"
	"github.com/homesense/energy-insights/internal/rollup"
	"github.com/homesense/energy-insights/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Analytics Read Service...")

	// Connect to the rollup store
	store, err := rollup.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	fmt.Println("Connected to rollup store")

	ctx := context.Background()

	// Optionally run migrations (continuous aggregate views + indexes)
	if cfg.Database.MigrationsDir != "" {
		if err := store.RunMigrations(cfg.Database.MigrationsDir); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Hand the refresh policy parameters to the aggregation facility
	if err := store.ApplyRefreshPolicies(ctx, cfg.Rollup); err != nil {
		log.Fatalf("Failed to apply rollup refresh policies: %v", err)
	}

	// Cache: redis when configured and reachable, otherwise degraded
	// mode with direct store reads
	var queryCache cache.Cache = cache.Noop{}
	if cfg.Cache.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Redis unreachable, serving direct reads: %v", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.NewRedis(redisClient)
			fmt.Println("Connected to Redis cache")
		}
	} else {
		fmt.Println("Cache disabled, serving direct reads")
	}

	// Create the read service and API server
	service := analytics.New(store, queryCache, cfg.Cache.BaseTTL, cfg.Cache.JitterMax, log.Default())
	api := httpapi.New(service, log.Default())

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		fmt.Printf("\n✓ Analytics Read Service listening on %s\n", cfg.HTTP.Addr)
		fmt.Println("✓ Press Ctrl+C to stop")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
}
