package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the call-bridging service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// PublicHost is the externally reachable host handed to the telephony
	// provider in connection instructions. Empty means "use the request host".
	PublicHost string

	ModelWSURL         string
	ModelName          string
	ModelAPIKey        string
	ModelVoice         string
	TranscriptionModel string
	ModelTemperature   float64
	ModelInstructions  string

	DatabaseURL string
}

const defaultInstructions = "You are a helpful and friendly phone assistant. " +
	"Keep answers short and conversational; the caller hears you over a phone line."

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "trunkline"),
		AllowAnyOrigin:   false,
		PublicHost:       stringsTrimSpace("APP_PUBLIC_HOST"),
		ModelWSURL:       envOrDefault("MODEL_WS_URL", "wss://api.openai.com/v1/realtime"),
		ModelName:        envOrDefault("MODEL_NAME", "gpt-4o-realtime-preview-2024-10-01"),
		ModelAPIKey:      stringsTrimSpace("OPENAI_API_KEY"),
		// Default to a neutral voice; overridable per call via the observer leg.
		ModelVoice:         envOrDefault("MODEL_VOICE", "alloy"),
		TranscriptionModel: envOrDefault("MODEL_TRANSCRIPTION_MODEL", "whisper-1"),
		ModelInstructions:  envOrDefault("MODEL_INSTRUCTIONS", defaultInstructions),
		ModelTemperature:   0.8,
		DatabaseURL:        stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:    15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.ModelTemperature, err = floatFromEnv("MODEL_TEMPERATURE", cfg.ModelTemperature)
	if err != nil {
		return Config{}, err
	}

	if cfg.ShutdownTimeout < time.Second {
		return Config{}, fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be at least 1s")
	}
	if cfg.ModelTemperature < 0 || cfg.ModelTemperature > 2 {
		return Config{}, fmt.Errorf("MODEL_TEMPERATURE must be within [0, 2]")
	}
	if strings.TrimSpace(cfg.ModelWSURL) == "" {
		return Config{}, fmt.Errorf("MODEL_WS_URL must not be empty")
	}
	if strings.TrimSpace(cfg.ModelName) == "" {
		return Config{}, fmt.Errorf("MODEL_NAME must not be empty")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
