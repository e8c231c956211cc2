package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port            string
	PostgresURL     string
	DisplayCurrency string
	PriceTTL        time.Duration
	RateTTL         time.Duration
	PriceTimeout    time.Duration
}

// Load returns application configuration loaded from environment variables
func Load() *Config {
	return &Config{
		Port:            getEnvWithDefault("PORT", "8080"),
		PostgresURL:     os.Getenv("POSTGRES_URL"),
		DisplayCurrency: getEnvWithDefault("DISPLAY_CURRENCY", "AUD"),
		PriceTTL:        minutes("PRICE_TTL_MINUTES", 15),
		RateTTL:         minutes("RATE_TTL_MINUTES", 60),
		PriceTimeout:    seconds("PRICE_FETCH_TIMEOUT_SECONDS", 5),
	}
}

func getEnvWithDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func minutes(key string, def int) time.Duration {
	return time.Duration(intEnv(key, def)) * time.Minute
}

func seconds(key string, def int) time.Duration {
	return time.Duration(intEnv(key, def)) * time.Second
}

func intEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if iv, err := strconv.Atoi(v); err == nil && iv > 0 {
			return iv
		}
	}
	return def
}
