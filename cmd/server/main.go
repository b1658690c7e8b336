package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/pulsekeep/pulsekeep/internal/api"
	"github.com/pulsekeep/pulsekeep/internal/config"
	"github.com/pulsekeep/pulsekeep/internal/db"
	"github.com/pulsekeep/pulsekeep/internal/health"
	"github.com/pulsekeep/pulsekeep/internal/services"
)

// waitForDependencies verifies every backing store answers before the
// server starts accepting traffic.
func waitForDependencies(ctx context.Context, stores []health.DBHealthChecker, rdb health.RedisHealthChecker) error {
	for _, store := range stores {
		if err := store.Health(ctx); err != nil {
			return err
		}
	}
	return rdb.Ping(ctx).Err()
}

func main() {
	_ = godotenv.Load() // load .env file if exists

	confFile := os.Getenv("CONFIG_FILE")
	if confFile == "" {
		confFile = "./conf/server.yaml"
	}
	log.Printf("loading config from %s", confFile)

	cfg, err := config.LoadConfigFromPath(confFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// env overrides trump the config file
	postgresDSN := cfg.Postgres.DSN
	if url := os.Getenv("POSTGRES_DB_URL"); url != "" {
		postgresDSN = url
		log.Println("using POSTGRES_DB_URL from environment")
	}
	if v := os.Getenv("API_KEY_AUTH_ENABLED"); v != "" {
		cfg.Security.AuthEnabled = v == "true"
	}

	postgresDB, err := db.InitPostgres(postgresDSN)
	if err != nil {
		log.Fatalf("postgres init err: %v", err)
	}
	defer postgresDB.CloseDB()
	log.Println("✓ PostgreSQL connected")

	eventStore, err := db.InitEventStore(postgresDSN)
	if err != nil {
		log.Fatalf("event store init err: %v", err)
	}
	defer eventStore.CloseDB()
	log.Println("✓ Event store connected")

	var rdb *redis.Client
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisOpts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatalf("failed to parse REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(redisOpts)
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	readyCtx, readyCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := waitForDependencies(readyCtx, []health.DBHealthChecker{postgresDB, eventStore}, rdb); err != nil {
		log.Fatalf("dependency check err: %v", err)
	}
	readyCancel()
	log.Println("✓ Redis connected")
	log.Println("✓ All dependencies healthy")

	// Wrap concrete DB types and the Redis client to satisfy interfaces
	postgresService := &db.PostgresServiceWrapper{PostgresDB: postgresDB}
	eventStoreService := &db.EventStoreServiceWrapper{EventStore: eventStore}
	redisService := &services.RedisClientWrapper{Client: rdb}

	keySvc := services.NewAPIKeyService(
		postgresDB.GetPostgresDB(),
		[]byte(cfg.Security.APIKeyPepper),
		rdb,
		time.Duration(cfg.Security.APIKeyCacheTTLSeconds)*time.Second,
	)
	settingsSvc := services.NewSettingsService(postgresDB.GetPostgresDB())

	apiServer := api.NewServer(cfg, postgresService, eventStoreService, redisService, keySvc, settingsSvc)
	go func() {
		// ListenAndServe reports ErrServerClosed after Shutdown; only a
		// real failure should abort the drain below.
		if err := apiServer.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server start err: %v", err)
		}
	}()
	log.Printf("✓ Server started on %s:%s (auth enabled: %t)", cfg.Server.Host, cfg.Server.Port, cfg.Security.AuthEnabled)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}

	log.Println("server exited")
}
