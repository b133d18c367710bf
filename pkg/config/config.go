// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// Public base URL of this gateway (problem types, OpenAPI servers entry).
	BasePublicURL string

	// OIDC / JWT verification of inbound bearer tokens.
	Issuer        string
	Audience      string
	JWKSURL       string
	ClockSkew     time.Duration

	// Directory (identity provider) API.
	DirectoryBaseURL string
	DirectoryAPIKey  string
	DirectorySeed    string // path to a YAML seed file for the in-memory directory (dev/test)

	// Process-wide default downstream credentials. Organizations may override
	// both via directory metadata; these are the fallback when they don't.
	MemoryBaseURL string
	MemoryAPIKey  string
	CRMBaseURL    string
	CRMAPIKey     string

	// Redis & Postgres (token denylist, usage audit). Both optional.
	RedisURL    string
	DatabaseURL string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:              env("TANDEM_ENV", "dev"),
		HTTPAddr:         env("TANDEM_HTTP_ADDR", ":8080"),
		BasePublicURL:    env("BASE_PUBLIC_URL", "http://localhost:8080"),
		Issuer:           env("OIDC_ISSUER", ""),
		Audience:         env("OIDC_AUDIENCE", "tandem-gateway"),
		JWKSURL:          env("JWKS_URL", ""),
		ClockSkew:        envDur("JWT_CLOCK_SKEW_SEC", 60) * time.Second,
		DirectoryBaseURL: env("DIRECTORY_URL", ""),
		DirectoryAPIKey:  env("DIRECTORY_API_KEY", ""),
		DirectorySeed:    env("DIRECTORY_SEED_FILE", ""),
		MemoryBaseURL:    env("MEMORY_SERVICE_URL", ""),
		MemoryAPIKey:     env("MEMORY_SERVICE_API_KEY", ""),
		CRMBaseURL:       env("CRM_SERVICE_URL", ""),
		CRMAPIKey:        env("CRM_SERVICE_API_KEY", ""),
		RedisURL:         env("REDIS_URL", ""),
		DatabaseURL:      env("DATABASE_URL", ""),
	}
	if cfg.DirectoryBaseURL == "" && cfg.DirectorySeed == "" {
		log.Println("[WARN] DIRECTORY_URL not set — using in-memory directory for dev")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, _ := strconv.ParseBool(v)
		return b
	}
	return def
}
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		i, _ := strconv.Atoi(v)
		return time.Duration(i)
	}
	return time.Duration(def)
}
