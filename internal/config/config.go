// Package config loads runtime settings from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultRoom is the canonical room for new connections, for sends without a
// room, and for history requests without a room.
const DefaultRoom = "community-chat"

// Hub defaults, also used when the hub is built without a Config.
const (
	DefaultSendTimeout     = 5 * time.Second
	DefaultBackfillTimeout = 5 * time.Second
	DefaultRelayWorkers    = 4
	DefaultSendBurst       = 5
)

const (
	defaultListenAddr      = ":8080"
	defaultUploadDir       = "uploads"
	defaultMaxUploadBytes  = 10 << 20
	defaultShutdownTimeout = 30 * time.Second
)

// Config holds the server settings.
type Config struct {
	ListenAddr  string
	DatabaseURL string // empty selects the in-memory store

	RedisAddr     string // empty disables presence and pub/sub
	RedisPassword string
	RedisDB       int
	PubSubRelay   bool

	DefaultRoom     string
	HistoryLimit    int // 0 means unlimited
	SendTimeout     time.Duration
	BackfillTimeout time.Duration
	RelayWorkers    int
	SendRate        float64 // messages per second per connection, 0 means unlimited
	SendBurst       int

	UploadDir      string
	MaxUploadBytes int64

	ShutdownTimeout time.Duration
}

// Load reads .env (if any) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("WARNING: .env file not loaded, using process environment")
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:    getString("LISTEN_ADDR", defaultListenAddr),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DefaultRoom:   getString("DEFAULT_ROOM", DefaultRoom),
		UploadDir:     getString("UPLOAD_DIR", defaultUploadDir),
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.PubSubRelay, err = getBool("PUBSUB_RELAY", false); err != nil {
		return nil, err
	}
	if cfg.HistoryLimit, err = getInt("HISTORY_LIMIT", 0); err != nil {
		return nil, err
	}
	if cfg.SendTimeout, err = getDuration("SEND_TIMEOUT", DefaultSendTimeout); err != nil {
		return nil, err
	}
	if cfg.BackfillTimeout, err = getDuration("BACKFILL_TIMEOUT", DefaultBackfillTimeout); err != nil {
		return nil, err
	}
	if cfg.RelayWorkers, err = getInt("RELAY_WORKERS", DefaultRelayWorkers); err != nil {
		return nil, err
	}
	if cfg.SendRate, err = getFloat("SEND_RATE", 0); err != nil {
		return nil, err
	}
	if cfg.SendBurst, err = getInt("SEND_BURST", DefaultSendBurst); err != nil {
		return nil, err
	}
	maxUpload, err := getInt("MAX_UPLOAD_BYTES", defaultMaxUploadBytes)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", defaultShutdownTimeout); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DefaultRoom == "" {
		return fmt.Errorf("DEFAULT_ROOM must not be empty")
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("HISTORY_LIMIT must be >= 0, got %d", c.HistoryLimit)
	}
	if c.RelayWorkers < 1 {
		return fmt.Errorf("RELAY_WORKERS must be >= 1, got %d", c.RelayWorkers)
	}
	if c.SendRate < 0 {
		return fmt.Errorf("SEND_RATE must be >= 0, got %g", c.SendRate)
	}
	if c.SendRate > 0 && c.SendBurst < 1 {
		return fmt.Errorf("SEND_BURST must be >= 1 when SEND_RATE is set, got %d", c.SendBurst)
	}
	if c.MaxUploadBytes < 1 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be >= 1, got %d", c.MaxUploadBytes)
	}
	if c.PubSubRelay && c.RedisAddr == "" {
		return fmt.Errorf("PUBSUB_RELAY requires REDIS_ADDR")
	}
	return nil
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
