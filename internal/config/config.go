package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr         string
	DatabaseURL  string
	AllocatorURL string
}

// Load reads a .env file if present, then the environment.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		Addr:         getenv("ADDR", ":8080"),
		DatabaseURL:  getenv("DATABASE_URL", "postgres://localhost:5432/lobby?sslmode=disable"),
		AllocatorURL: getenv("ALLOCATOR_URL", "http://servermanager:5000/GameServer"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
