// Package config loads service settings from the environment, with an
// optional .env file for local development.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

// DefaultModelID is used when DEFAULT_MODEL_ID is not set.
const DefaultModelID = "yolov8n"

type Config struct {
	ListenAddr     string
	ModelDir       string
	DefaultModelID string
	OnnxLibPath    string
	Debug          bool
}

func Load() *Config {
	// A missing .env file is fine; plain env vars still apply.
	_ = godotenv.Load()

	return &Config{
		ListenAddr:     getEnv("LISTEN_ADDR", "127.0.0.1:8080"),
		ModelDir:       getEnv("MODEL_DIR", "./models"),
		DefaultModelID: getEnv("DEFAULT_MODEL_ID", DefaultModelID),
		OnnxLibPath:    os.Getenv("ONNXRUNTIME_LIB"),
		Debug:          os.Getenv("DEBUG") == "true",
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
