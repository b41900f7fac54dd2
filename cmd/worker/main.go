package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"financial-reporter/internal/bootstrap"
	"financial-reporter/internal/shared/config"
	"financial-reporter/internal/shared/telemetry"
	"financial-reporter/internal/workerproc"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		telemetry.Fatal("worker.config_failed", map[string]any{"error": err.Error()})
	}
	if _, err := telemetry.Init(cfg.Env, cfg.LogLevel); err != nil {
		telemetry.Fatal("worker.logger_failed", map[string]any{"error": err.Error()})
	}
	defer telemetry.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		telemetry.Fatal("worker.bootstrap_failed", map[string]any{"error": err.Error()})
	}
	defer app.Close()

	concurrency := cfg.Worker.Concurrency
	if concurrency < 1 {
		concurrency = workerproc.DefaultConcurrency
	}

	switch {
	case strings.TrimSpace(cfg.SQSQueueURL) != "":
		opts := []func(*awsconfig.LoadOptions) error{}
		if cfg.AWSRegion != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			telemetry.Fatal("worker.aws_config_failed", map[string]any{"error": err.Error()})
		}
		worker := &workerproc.SQSWorker{
			Client:            sqs.NewFromConfig(awsCfg),
			QueueURL:          cfg.SQSQueueURL,
			Processor:         app.Reports,
			Concurrency:       concurrency,
			VisibilitySeconds: cfg.Worker.VisibilitySeconds,
			ShutdownTimeout:   cfg.Worker.ShutdownTimeout,
		}
		worker.Run(ctx)
	case app.AMQP != nil:
		if err := app.AMQP.Consume(ctx, concurrency, workerproc.AMQPHandler(app.Reports)); err != nil {
			telemetry.Fatal("worker.amqp_consume_failed", map[string]any{"error": err.Error()})
		}
	default:
		telemetry.Fatal("worker.no_queue", map[string]any{"error": "REPORTS_SQS_QUEUE_URL or AMQP_URL is required"})
	}
}
