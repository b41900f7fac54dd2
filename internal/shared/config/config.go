package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1 << 20

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	LogLevel        string
	CORSAllowOrigin []string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string
	DownloadURLTTL  time.Duration

	DatabaseURL    string
	MaxUploadBytes int64

	LLMProvider          string
	LLMModel             string
	OpenAIAPIKey         string
	GeminiAPIKey         string
	LLMTimeout           time.Duration
	LLMRequestsPerMinute int

	MarketDataSource            string
	AlphaVantageAPIKey          string
	AlphaVantageBaseURL         string
	MarketDataCacheTTL          time.Duration
	MarketDataRequestsPerMinute int

	SQSQueueURL string
	AMQPURL     string
	AMQPQueue   string

	JWTSecret  string
	RateLimits map[string]RateLimit

	DBPool DBPool
	Worker Worker

	// Warnings lists values that failed to parse and fell back to defaults.
	// Callers log them once the logger is up.
	Warnings []string
}

// DBPool overrides the runtime pool profile. Zero fields keep the profile value.
type DBPool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// Worker tunes the queue consumers. Zero fields keep the worker defaults.
type Worker struct {
	Concurrency       int
	VisibilitySeconds int
	ShutdownTimeout   time.Duration
}

// RateLimit is a token bucket rule for one route group.
type RateLimit struct {
	RPS   float64
	Burst int
}

// Load reads configuration from .env files, an optional YAML file named by
// CONFIG_FILE and the process environment, in increasing precedence.
func Load() (Config, error) {
	warnings := loadEnvFiles(".env", "cmd/.env")

	k := koanf.New(".")
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadYAML(k, path); err != nil {
			return Config{}, err
		}
	}
	if err := k.Load(env.ProviderWithValue("", ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	r := &reader{k: k, warnings: warnings}
	cfg := r.config()
	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		r.warn("DATABASE_URL is required in production")
	}
	cfg.Warnings = r.warnings
	return cfg, nil
}

func loadYAML(k *koanf.Koanf, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// envKey lowercases variable names and drops empty values so they do not
// shadow keys set in the YAML file.
func envKey(key, value string) (string, any) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}
	return strings.ToLower(key), value
}

// reader pulls typed values out of koanf and remembers the ones it had to
// replace with defaults.
type reader struct {
	k        *koanf.Koanf
	warnings []string
}

func (r *reader) warn(format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

func (r *reader) config() Config {
	llmProvider := normalizeProvider(r.str("llm_provider", ""))
	openAIKey := r.str("openai_api_key", "")
	geminiKey := r.str("gemini_api_key", r.str("google_api_key", ""))
	if llmProvider == "" {
		switch {
		case openAIKey != "":
			llmProvider = "openai"
		case geminiKey != "":
			llmProvider = "gemini"
		default:
			llmProvider = "mock"
		}
	}

	return Config{
		Port:            r.str("port", "8000"),
		Env:             normalizeEnv(r.str("env", "dev")),
		LogLevel:        r.str("log_level", ""),
		CORSAllowOrigin: r.list("cors_allow_origins", "http://localhost:3000"),

		ObjectStoreType: normalizeStoreType(r.str("object_store", "local")),
		LocalStoreDir:   r.str("local_store_dir", "./data"),
		AWSRegion:       r.str("aws_region", ""),
		S3Bucket:        r.str("s3_bucket", ""),
		S3Prefix:        r.str("s3_prefix", ""),
		SSEKMSKeyID:     r.str("sse_kms_key_id", ""),
		DownloadURLTTL:  r.duration("download_url_ttl", 15*time.Minute),

		DatabaseURL:    r.str("database_url", ""),
		MaxUploadBytes: int64(r.integer("max_upload_bytes", 10<<20)),

		LLMProvider:          llmProvider,
		LLMModel:             r.str("llm_model", ""),
		OpenAIAPIKey:         openAIKey,
		GeminiAPIKey:         geminiKey,
		LLMTimeout:           time.Duration(r.integer("llm_timeout_seconds", 120)) * time.Second,
		LLMRequestsPerMinute: r.integer("llm_requests_per_minute", 30),

		MarketDataSource:            normalizeMarketSource(r.str("market_data_source", "mock")),
		AlphaVantageAPIKey:          r.str("alpha_vantage_api_key", ""),
		AlphaVantageBaseURL:         r.str("alpha_vantage_base_url", "https://www.alphavantage.co/query"),
		MarketDataCacheTTL:          r.duration("market_data_cache_ttl", 24*time.Hour),
		MarketDataRequestsPerMinute: r.integer("market_data_requests_per_minute", 5),

		SQSQueueURL: r.str("reports_sqs_queue_url", ""),
		AMQPURL:     r.str("amqp_url", ""),
		AMQPQueue:   r.str("amqp_queue", "report-jobs"),

		JWTSecret: r.str("jwt_secret", ""),
		RateLimits: map[string]RateLimit{
			"DEFAULT": {RPS: r.float("rate_limit_default_rps", 5), Burst: r.integer("rate_limit_default_burst", 20)},
			"POLLING": {RPS: r.float("rate_limit_polling_rps", 2), Burst: r.integer("rate_limit_polling_burst", 10)},
			"UPLOAD":  {RPS: r.float("rate_limit_upload_rps", 0.2), Burst: r.integer("rate_limit_upload_burst", 3)},
		},

		DBPool: DBPool{
			MaxOpenConns:    r.integer("db_max_open_conns", 0),
			MaxIdleConns:    r.integer("db_max_idle_conns", 0),
			ConnMaxLifetime: r.duration("db_conn_max_lifetime", 0),
			ConnMaxIdleTime: r.duration("db_conn_max_idle_time", 0),
			PingTimeout:     r.duration("db_ping_timeout", 0),
		},
		Worker: Worker{
			Concurrency:       r.integer("worker_concurrency", 0),
			VisibilitySeconds: r.integer("sqs_visibility_timeout_seconds", 0),
			ShutdownTimeout:   time.Duration(r.integer("shutdown_timeout_seconds", 0)) * time.Second,
		},
	}
}

func (r *reader) str(key, def string) string {
	if val := strings.TrimSpace(r.k.String(key)); val != "" {
		return val
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		r.warn("%s: invalid int %q", key, raw)
		return def
	}
	return val
}

func (r *reader) float(key string, def float64) float64 {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		r.warn("%s: invalid float %q", key, raw)
		return def
	}
	return val
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		r.warn("%s: invalid duration %q", key, raw)
		return def
	}
	return val
}

func (r *reader) list(key, def string) []string {
	if _, ok := r.k.Get(key).([]any); ok {
		return splitAndTrim(strings.Join(r.k.Strings(key), ","))
	}
	return splitAndTrim(r.str(key, def))
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

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "openai":
		return "openai"
	case "gemini", "google":
		return "gemini"
	case "mock":
		return "mock"
	default:
		return ""
	}
}

func normalizeMarketSource(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "alphavantage", "alpha_vantage", "live":
		return "alphavantage"
	default:
		return "mock"
	}
}
