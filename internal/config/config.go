package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataDir         string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Ingestion and dashboard tuning.
	CacheSize        int
	IngestWorkers    int
	DefaultCityCount int
	TopVehicles      int

	// API request budget; a zero rate disables limiting.
	APIRateLimit float64
	APIRateBurst int

	// Optional publishing of loaded tables.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
// Variables from a .env file in the working directory fill in anything not
// already set in the environment.
func Load() (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cacheSize, err := parsePositiveInt("CACHE_SIZE", 4, 1024)
	if err != nil {
		return nil, err
	}
	workers, err := parsePositiveInt("INGEST_WORKERS", 4, 64)
	if err != nil {
		return nil, err
	}
	cityCount, err := parsePositiveInt("DEFAULT_CITY_COUNT", 5, 1000)
	if err != nil {
		return nil, err
	}
	topVehicles, err := parsePositiveInt("TOP_VEHICLES", 10, 1000)
	if err != nil {
		return nil, err
	}
	rateLimit, err := parseRate("API_RATE_LIMIT", 50)
	if err != nil {
		return nil, err
	}
	rateBurst, err := parsePositiveInt("API_RATE_BURST", 100, 100000)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:         sharedcfg.EnvOrDefault("DATA_DIR", "data"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		CacheSize:        cacheSize,
		IngestWorkers:    workers,
		DefaultCityCount: cityCount,
		TopVehicles:      topVehicles,

		APIRateLimit: rateLimit,
		APIRateBurst: rateBurst,

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "traffic-incidents"),
	}

	if cfg.DataDir == "" {
		return nil, errors.New("DATA_DIR is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_TOPIC is empty")
	}

	return cfg, nil
}

// parsePositiveInt reads an integer in [1, maxValue] from the environment.
func parsePositiveInt(key string, def, maxValue int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > maxValue {
		return 0, fmt.Errorf("invalid %s: must be an integer between 1 and %d", key, maxValue)
	}
	return n, nil
}

// parseRate reads a non-negative requests-per-second value from the environment.
func parseRate(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s: must be a non-negative number", key)
	}
	return v, nil
}
