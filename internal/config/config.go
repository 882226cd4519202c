// Package config loads the crawler's runtime configuration from the
// environment, through small getEnv-style helpers over an optional .env
// file loaded with godotenv.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for cmd/riftwalker.
type Config struct {
	APIKey string
	Region string // lowercase platform code, e.g. "na1"

	Workers int // concurrent walkers
	Steps   int // match records produced per walker
	Seed    string

	MaxCooldown           time.Duration
	HTTPTimeout           time.Duration
	RetryAttempts         int
	MaxWalkerStartsPerSec float64

	LogDevelopment bool

	StatusEnabled bool
	StatusAddr    string

	OutputPath string // JSON-lines output file; "" disables file output
}

// Load reads Config from the environment, loading a .env file first if one
// is present in the working directory.
func Load() (Config, error) {
	loadEnvironmentConfig()

	apiKey := getEnv("RIOT_API_KEY", "")
	if apiKey == "" {
		return Config{}, fmt.Errorf("config: RIOT_API_KEY is required")
	}

	seed := getEnv("CRAWL_SEED_SUMMONER", "")
	if seed == "" {
		return Config{}, fmt.Errorf("config: CRAWL_SEED_SUMMONER is required")
	}

	cfg := Config{
		APIKey:                apiKey,
		Region:                getEnv("RIOT_REGION", "na1"),
		Workers:               getEnvInt("CRAWL_WORKERS", 4),
		Steps:                 getEnvInt("CRAWL_STEPS", 25),
		Seed:                  seed,
		MaxCooldown:           time.Duration(getEnvInt("MAX_COOLDOWN_SEC", 3600)) * time.Second,
		HTTPTimeout:           time.Duration(getEnvInt("HTTP_TIMEOUT_SEC", 10)) * time.Second,
		RetryAttempts:         getEnvInt("RETRY_ATTEMPTS", 3),
		MaxWalkerStartsPerSec: getEnvFloat("MAX_WALKER_STARTS_PER_SEC", 2.0),
		LogDevelopment:        getEnvBool("LOG_DEVELOPMENT", false),
		StatusEnabled:         getEnvBool("STATUS_API_ENABLED", true),
		StatusAddr:            getEnv("STATUS_API_ADDR", "127.0.0.1:8090"),
		OutputPath:            getEnv("CRAWL_OUTPUT_PATH", ""),
	}

	return cfg, nil
}

// loadEnvironmentConfig loads a .env file if present. It uses the standard
// log package rather than zap since no logger exists yet this early in
// startup.
func loadEnvironmentConfig() {
	if err := godotenv.Load(); err == nil {
		log.Printf("config: loaded .env file")
	} else {
		log.Printf("config: no .env file found, using system environment variables")
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || v == "true"
	}
	return def
}
