package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"financial-reporter/internal/extract"
	"financial-reporter/internal/llm"
	"financial-reporter/internal/llm/gemini"
	"financial-reporter/internal/llm/openai"
	"financial-reporter/internal/marketdata"
	"financial-reporter/internal/queue"
	"financial-reporter/internal/reports"
	"financial-reporter/internal/shared/auth"
	"financial-reporter/internal/shared/config"
	"financial-reporter/internal/shared/server"
	"financial-reporter/internal/shared/storage/db"
	"financial-reporter/internal/shared/storage/object"
	localstore "financial-reporter/internal/shared/storage/object/local"
	s3store "financial-reporter/internal/shared/storage/object/s3"
	"financial-reporter/internal/shared/telemetry"
)

// App holds shared dependencies for the API, worker and Lambda entrypoints.
type App struct {
	Config  config.Config
	Router  *gin.Engine
	DB      *sql.DB
	Store   object.ObjectStore
	Queue   queue.Client
	AMQP    *queue.AMQPClient
	LLM     llm.Client
	Reports *reports.Service
	Market  *marketdata.Service
}

// Build prepares dependencies and the HTTP router.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	LogConfigWarnings(cfg)

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	llmClient, err := buildLLM(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		LLM:    llmClient,
	}
	if err := buildQueue(ctx, cfg, app); err != nil {
		return nil, err
	}

	var repo reports.Repo
	if sqlDB != nil {
		repo = reports.NewPGRepo(sqlDB)
	} else {
		repo = reports.NewMemoryRepo()
	}
	app.Reports = &reports.Service{
		Repo:           repo,
		Store:          store,
		LLM:            llmClient,
		Extractor:      extract.PDF{},
		Queue:          app.Queue,
		MaxUploadBytes: cfg.MaxUploadBytes,
		DownloadURLTTL: cfg.DownloadURLTTL,
	}
	app.Market = marketdata.NewService(buildMarketSource(cfg))

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.Env)
	if err != nil {
		return nil, err
	}

	app.Router = server.NewRouter(server.RouterDeps{
		Config:        cfg,
		Verifier:      verifier,
		DB:            sqlDB,
		ReportHandler: reports.NewHandler(app.Reports),
		MarketHandler: marketdata.NewHandler(app.Market),
	})

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":          cfg.Env,
		"object_store": cfg.ObjectStoreType,
		"database":     sqlDB != nil,
		"llm_provider": cfg.LLMProvider,
		"market_data":  cfg.MarketDataSource,
		"queue":        queueKind(app),
	})
	return app, nil
}

// LogConfigWarnings reports config values that fell back to defaults.
func LogConfigWarnings(cfg config.Config) {
	for _, warning := range cfg.Warnings {
		telemetry.Warn("config.invalid_value", map[string]any{"detail": warning})
	}
}

// Close releases connections held by the app.
func (a *App) Close() {
	if a.AMQP != nil {
		a.AMQP.Close()
	}
	if a.DB != nil && !db.Shared(a.DB) {
		a.DB.Close()
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repo", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBPool)
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_repo", map[string]any{"reason": "database connect failed", "error": err.Error()})
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildLLM(cfg config.Config) (llm.Client, error) {
	var client llm.Client
	switch cfg.LLMProvider {
	case "openai":
		c, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.LLMTimeout)
		if err != nil {
			return nil, err
		}
		client = c
	case "gemini":
		c, err := gemini.NewClient(cfg.GeminiAPIKey, cfg.LLMModel, cfg.LLMTimeout)
		if err != nil {
			return nil, err
		}
		client = c
	default:
		client = llm.MockClient{}
	}
	return llm.WithRateLimit(client, cfg.LLMRequestsPerMinute), nil
}

func buildQueue(ctx context.Context, cfg config.Config, app *App) error {
	switch {
	case strings.TrimSpace(cfg.SQSQueueURL) != "":
		client, err := queue.NewSQSClient(ctx, cfg.AWSRegion, cfg.SQSQueueURL)
		if err != nil {
			return err
		}
		app.Queue = client
	case strings.TrimSpace(cfg.AMQPURL) != "":
		client, err := queue.NewAMQPClient(cfg.AMQPURL, cfg.AMQPQueue, cfg.LLMTimeout)
		if err != nil {
			return err
		}
		app.AMQP = client
		app.Queue = client
	}
	return nil
}

func buildMarketSource(cfg config.Config) marketdata.Source {
	if cfg.MarketDataSource == "alphavantage" {
		if strings.TrimSpace(cfg.AlphaVantageAPIKey) == "" {
			telemetry.Warn("bootstrap.market_data_mock", map[string]any{"reason": "ALPHA_VANTAGE_API_KEY empty"})
			return marketdata.MockSource{}
		}
		return marketdata.NewAlphaVantage(
			cfg.AlphaVantageBaseURL,
			cfg.AlphaVantageAPIKey,
			cfg.MarketDataCacheTTL,
			cfg.MarketDataRequestsPerMinute,
		)
	}
	return marketdata.MockSource{}
}

func queueKind(app *App) string {
	switch {
	case app.AMQP != nil:
		return "amqp"
	case app.Queue != nil:
		return "sqs"
	default:
		return "inline"
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
