package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/homesense/energy-insights/internal/alerts"
	"github.com/homesense/energy-insights/internal/notify"
	"github.com/homesense/energy-insights/internal/queue"
	"github.com/homesense/energy-insights/internal/rollup"
	"github.com/homesense/energy-insights/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Alerts Worker...")

	// Load the rule set; it stays immutable for the run
	rules, err := alerts.LoadRules(cfg.Alerts.RulesPath)
	if err != nil {
		log.Fatalf("Failed to load alert rules: %v", err)
	}
	fmt.Printf("Loaded %d alert rules from %s\n", len(rules), cfg.Alerts.RulesPath)

	// Connect to the rollup store
	store, err := rollup.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	fmt.Println("Connected to rollup store")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Cooldown state: redis shared across instances; fall back to a
	// process-local map when redis is unreachable (single instance
	// only, does not survive restarts)
	var states alerts.StateStore
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Redis unreachable, using process-local alert state: %v", err)
		states = alerts.NewMemoryState()
	} else {
		defer redisClient.Close()
		states = alerts.NewRedisState(redisClient)
		fmt.Println("Connected to Redis state store")
	}

	// Notifier: kafka dispatch by default, log-only when requested
	var notifier notify.Notifier
	if cfg.Alerts.Notifier == "kafka" && cfg.Kafka.Enabled() {
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlerts)
		defer producer.Close()
		notifier = notify.NewKafkaNotifier(producer)
		fmt.Printf("Alert notifications publish to %s\n", cfg.Kafka.TopicAlerts)
	} else {
		notifier = notify.NewLogNotifier(log.Default())
		fmt.Println("Alert notifications are log-only")
	}

	worker := alerts.NewWorker(rules, store, states, notifier,
		cfg.Alerts.PollInterval, cfg.Alerts.FetchTimeout, cfg.Alerts.TrailingWindow, log.Default())

	fmt.Printf("\n✓ Alerts Worker is running (poll interval %s)\n", cfg.Alerts.PollInterval)
	fmt.Println("✓ Press Ctrl+C to stop")

	if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Worker stopped: %v", err)
	}

	fmt.Println("\nShutting down gracefully...")
}
