package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// ApplyEnv layers environment variables over the file config. A .env file in
// the working directory is read first so local runs need no exported vars.
func ApplyEnv(cfg *Config) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg.App.Addr = getEnv("HTTP_ADDR", cfg.App.Addr)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.App.DataDir = getEnv("DATA_DIR", cfg.App.DataDir)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	if cfg.Database.URL == "" {
		cfg.Database.URL = postgresDSN()
	}

	cfg.Client.UserAgent = getEnv("HTTP_USER_AGENT", cfg.Client.UserAgent)
	cfg.Client.TimeoutSeconds = getEnvInt("REQUEST_TIMEOUT_SECONDS", cfg.Client.TimeoutSeconds)
	cfg.Client.RetryAttempts = getEnvInt("RETRY_ATTEMPTS", cfg.Client.RetryAttempts)
	cfg.Client.ChromeBin = getEnv("CHROME_BIN", cfg.Client.ChromeBin)

	if v := os.Getenv("SCHEDULER_ENABLED"); v != "" {
		cfg.Scheduler.Enabled = v == "1" || v == "true"
	}
	cfg.Scheduler.StaleAfterDays = getEnvInt("STALE_AFTER_DAYS", cfg.Scheduler.StaleAfterDays)

	cfg.Search.City = getEnv("SEARCH_CITY", cfg.Search.City)
}

// postgresDSN assembles a DSN from the discrete POSTGRES_* variables used by
// docker compose setups.
func postgresDSN() string {
	return "host=" + getEnv("POSTGRES_HOST", "localhost") +
		" port=" + getEnv("POSTGRES_PORT", "5432") +
		" user=" + getEnv("POSTGRES_USER", "locascan") +
		" password=" + getEnv("POSTGRES_PASSWORD", "locascan") +
		" dbname=" + getEnv("POSTGRES_DB", "locascan") +
		" sslmode=" + getEnv("POSTGRES_SSLMODE", "disable")
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
