package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the server needs from the environment.
type Config struct {
	Port           string
	AllowedOrigin  string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	DefaultTenant  string
	ReportCacheTTL time.Duration
	QueryTimeout   time.Duration
	AuthSecret     string
	AccessTokenTTL time.Duration
}

// Load reads configuration from the environment, picking up a local .env
// file first when one exists. Every key has a dev-friendly default except
// DATABASE_URL, whose absence selects the in-memory store.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:           getenv("PORT", "8080"),
		AllowedOrigin:  getenv("ALLOWED_ORIGIN", "*"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getenvInt("REDIS_DB", 0),
		DefaultTenant:  getenv("DEFAULT_TENANT", "default"),
		ReportCacheTTL: time.Duration(getenvInt("REPORT_CACHE_TTL_SECONDS", 300)) * time.Second,
		QueryTimeout:   time.Duration(getenvInt("QUERY_TIMEOUT_SECONDS", 5)) * time.Second,
		AuthSecret:     getenv("AUTH_SECRET", "dev-secret-change-me"),
		AccessTokenTTL: time.Duration(getenvInt("ACCESS_TOKEN_TTL_MINUTES", 480)) * time.Minute,
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
