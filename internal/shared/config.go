package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv            string
	HTTPAddr          string
	MetricsAddr       string
	MySQLDSN          string
	Migrate           bool
	DBTimeout         time.Duration
	DBMaxOpen         int
	RedisAddr         string
	RedisDB           int
	RedisPass         string
	ScraperBase       string
	ScraperKey        string
	ScraperRPS        int
	Workers           int
	CacheTTL          time.Duration
	CORSOrigins       []string
	MaintenanceSecret string
	RejectUnknown     bool
	DedupeAfterIngest bool
}

func Load() Config {
	// .env is optional; real env vars win.
	_ = godotenv.Load()

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:            env("APP_ENV", "prod"),
		HTTPAddr:          env("HTTP_ADDR", ":8080"),
		MetricsAddr:       env("METRICS_ADDR", ""),
		MySQLDSN:          env("MYSQL_DSN", "root:root@tcp(localhost:3306)/landdev?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		Migrate:           flag("MIGRATE", false),
		DBTimeout:         time.Duration(atoi("DB_TIMEOUT_SECONDS", 10)) * time.Second,
		DBMaxOpen:         atoi("DB_MAX_OPEN_CONNS", 20),
		RedisAddr:         env("REDIS_ADDR", "localhost:6379"),
		RedisDB:           atoi("REDIS_DB", 0),
		RedisPass:         env("REDIS_PASSWORD", ""),
		ScraperBase:       env("SCRAPER_BASE_URL", "http://localhost:8090"),
		ScraperKey:        env("SCRAPER_API_KEY", ""),
		ScraperRPS:        atoi("SCRAPER_RPS", 5),
		Workers:           atoi("INGEST_WORKERS", 8),
		CacheTTL:          time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
		CORSOrigins:       list(env("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		MaintenanceSecret: os.Getenv("MAINTENANCE_SECRET"),
		RejectUnknown:     strings.EqualFold(env("UPDATE_UNKNOWN_FIELDS", "ignore"), "reject"),
		DedupeAfterIngest: flag("DEDUPE_AFTER_INGEST", false),
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaintenanceSecret == "" {
		log.Warn().Msg("MAINTENANCE_SECRET is empty; maintenance endpoints will reject every request")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func flag(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func list(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
