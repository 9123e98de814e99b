// Package config reads gateway configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	// Inbound partner secret; independent from per-subscription secrets.
	PartnerSecret string

	// Outbound delivery
	DeliveryTimeout time.Duration
	MaxInFlight     int

	// Replay window for inbound verification
	SignatureTolerance time.Duration

	// Partner rate limiting (requests per second / burst); 0 disables.
	IngestRateRPS   float64
	IngestRateBurst int
}

func Load() Config {
	return Config{
		Port:               envOr("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		PartnerSecret:      os.Getenv("PARTNER_WEBHOOK_SECRET"),
		DeliveryTimeout:    time.Duration(envInt("WEBHOOK_TIMEOUT_SECONDS", 10)) * time.Second,
		MaxInFlight:        envInt("WEBHOOK_MAX_INFLIGHT", 8),
		SignatureTolerance: time.Duration(envInt("SIGNATURE_TOLERANCE_SECONDS", 300)) * time.Second,
		IngestRateRPS:      envFloat("INGEST_RATE_RPS", 0),
		IngestRateBurst:    envInt("INGEST_RATE_BURST", 0),
	}
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func envFloat(k string, d float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return d
}
