package main

import (
	"checkin/backend/internal/api/handler"
	"checkin/backend/internal/chathub"
	"checkin/backend/internal/config"
	"checkin/backend/internal/history"
	"checkin/backend/internal/storage"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type dependencies struct {
	store storage.Storage
	redis *storage.Service // nil without REDIS_ADDR
	close func()
}

func setupDependencies(cfg *config.Config) dependencies {
	deps := dependencies{close: func() {}}
	var closers []func()

	// 1. Redis (presence, pub/sub)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := rdb.Ping(ctx).Result(); err != nil {
			log.Fatalf("Failed to connect Redis: %v", err)
		}
		deps.redis = storage.NewStorageService(nil, rdb)
		closers = append(closers, func() { rdb.Close() })
	}

	// 2. PostgreSQL, or the in-memory store for local runs
	if cfg.DatabaseURL != "" {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			log.Fatalf("Failed to connect PostgreSQL: %v", err)
		}
		if err := storage.Migrate(db); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			closers = append(closers, func() { sqlDB.Close() })
		}
		deps.store = storage.NewStorageService(db, rdb)
		log.Println("Database connection established, migrations complete.")
	} else {
		log.Println("WARNING: DATABASE_URL not set, messages are kept in memory only")
		deps.store = storage.NewMemoryStore()
	}

	deps.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return deps
}

func hubOptions(cfg *config.Config, deps dependencies) []chathub.Option {
	opts := []chathub.Option{
		chathub.WithDefaultRoom(cfg.DefaultRoom),
		chathub.WithSendTimeout(cfg.SendTimeout),
		chathub.WithBackfillTimeout(cfg.BackfillTimeout),
		chathub.WithRelayWorkers(cfg.RelayWorkers, 0),
		chathub.WithHistoryLimit(cfg.HistoryLimit),
		chathub.WithSendRate(rate.Limit(cfg.SendRate), cfg.SendBurst),
	}
	if deps.redis != nil {
		opts = append(opts, chathub.WithPresence(deps.redis))
		if cfg.PubSubRelay {
			opts = append(opts, chathub.WithBroadcaster(chathub.NewRedisBroadcaster(deps.redis)))
		}
	}
	return opts
}

func main() {
	log.Println("Starting CheckIn chat relay...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 1. Ініціалізація залежностей
	deps := setupDependencies(cfg)
	hist := history.NewService(deps.store)

	// 2. Chat Hub
	hub := chathub.NewManagerService(deps.store, hist, hubOptions(cfg, deps)...)
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	// 3. Gin та роутинг
	r := gin.Default()
	h := handler.NewHandler(hub, deps.store, hist, handler.UploadOptions{
		Dir:      cfg.UploadDir,
		MaxBytes: cfg.MaxUploadBytes,
	})
	h.RegisterRoutes(r)

	server := &http.Server{
		Addr:           cfg.ListenAddr,
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		log.Printf("Listening on %s (default room %q)", cfg.ListenAddr, cfg.DefaultRoom)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return server.Shutdown(ctx)
			},
			"chat-hub": func(ctx context.Context) error {
				stopHub()
				done := make(chan struct{})
				go func() {
					hub.Wait()
					deps.close()
					close(done)
				}()
				select {
				case <-done:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	)

	exitCode := <-wait
	log.Printf("Server exited with code: %d", exitCode)
	os.Exit(exitCode)
}
