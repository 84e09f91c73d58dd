package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

const devJWTSecret = "dev-secret-change-me"

// Ingestion outcome modes.
const (
	IngestionModeDeterministic = "deterministic"
	IngestionModeRandom        = "random"
)

// Ingestion scheduler backends.
const (
	SchedulerTimer = "timer"
	SchedulerAsynq = "asynq"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string

	DatabaseURL     string
	DBMaxOpenConns  int
	DBMaxIdleConns  int
	DBConnMaxLife   time.Duration
	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	JWTSecret string
	JWTTTL    time.Duration

	IngestionMode           string
	IngestionDelay          time.Duration
	IngestionScheduler      string
	IngestionRetryRearm     bool
	IngestionSweepSchedule  string
	IngestionStaleAfter     time.Duration
	IngestionEmbeddedWorker bool

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	WorkerConcurrency int

	RateLimitRPS   float64
	RateLimitBurst int

	OTelEnabled     bool
	OTelEndpoint    string
	OTelInsecure    bool
	OTelSampleRatio float64
	OTelServiceName string

	SeedAdminEmail    string
	SeedAdminPassword string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))

	storeType := os.Getenv("STORAGE_PROVIDER")
	if storeType == "" {
		storeType = getEnv("OBJECT_STORE", "local")
	}

	mode := normalizeMode(getEnv("INGESTION_MODE", IngestionModeDeterministic))
	if getBool("RANDOM_INGESTION", false) {
		mode = IngestionModeRandom
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" && env != "production" {
		secret = devJWTSecret
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),

		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DBMaxOpenConns:  getInt("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:  getInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLife:   getDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		ObjectStoreType: normalizeStoreType(storeType),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		JWTSecret: secret,
		JWTTTL:    getDuration("JWT_TTL", 24*time.Hour),

		IngestionMode:           mode,
		IngestionDelay:          getDuration("INGESTION_DELAY", 3*time.Second),
		IngestionScheduler:      normalizeScheduler(getEnv("INGESTION_SCHEDULER", SchedulerTimer)),
		IngestionRetryRearm:     getBool("INGESTION_RETRY_REARM", true),
		IngestionSweepSchedule:  getEnv("INGESTION_SWEEP_SCHEDULE", "@every 1m"),
		IngestionStaleAfter:     getDuration("INGESTION_STALE_AFTER", 30*time.Second),
		IngestionEmbeddedWorker: getBool("INGESTION_EMBEDDED_WORKER", false),

		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           getInt("REDIS_DB", 0),
		WorkerConcurrency: getInt("WORKER_CONCURRENCY", 10),

		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 20),

		OTelEnabled:     getBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTelInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		OTelSampleRatio: getFloat("OTEL_SAMPLER_RATIO", 0.1),
		OTelServiceName: getEnv("OTEL_SERVICE_NAME", "docvault-api"),

		SeedAdminEmail:    getEnv("SEED_ADMIN_EMAIL", "admin@document.com"),
		SeedAdminPassword: getEnv("SEED_ADMIN_PASSWORD", "Admin@123"),
	}
}

// Validate reports settings that must be present for the configured environment.
func (c Config) Validate() error {
	var errs []error
	if c.Env == "production" {
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required in production"))
		}
		if c.JWTSecret == "" || c.JWTSecret == devJWTSecret {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		}
	}
	if c.ObjectStoreType == "s3" && c.S3Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET is required when STORAGE_PROVIDER=s3"))
	}
	if c.IngestionScheduler == SchedulerAsynq && c.RedisAddr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required when INGESTION_SCHEDULER=asynq"))
	}
	return errors.Join(errs...)
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func getFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return v
}

func getBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// getDuration accepts Go durations ("3s") or bare milliseconds ("3000").
func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "test":
		return "test"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case IngestionModeRandom:
		return IngestionModeRandom
	default:
		return IngestionModeDeterministic
	}
}

func normalizeScheduler(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case SchedulerAsynq:
		return SchedulerAsynq
	default:
		return SchedulerTimer
	}
}
