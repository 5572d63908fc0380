package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	cfg := cli.MustLoadConfig(logger, cli.ModeWorker)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	logger.InfoContext(ctx, "Starting fintrack-worker",
		"queue", cfg.AMQPQueue,
		"dead_letter_queue", cfg.AMQPDeadLetterQueue,
		"batch_size", cfg.WorkerBatchSize,
		"batch_wait", cfg.WorkerBatchWait.String())

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	exporter, err := cli.NewReportExporter(ctx, cfg)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize report exporter", log.FieldError, err)
		os.Exit(1)
	}
	if exporter == nil {
		logger.InfoContext(ctx, "Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	var opts []amqp.Option
	if cfg.AMQPDeadLetterQueue != "" {
		opts = append(opts, amqp.WithDeadLetterQueue(cfg.AMQPDeadLetterQueue))
	}
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, opts...)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	var deadLetters worker.DeadLetterPublisher
	if cfg.AMQPDeadLetterQueue != "" {
		deadLetters = amqpClient
	}

	jobs := worker.NewJobWorker(
		services.NewBudgetRecalculator(repo).WithLogger(logger),
		services.NewReportGenerator(repo, exporter).WithLogger(logger),
		deadLetters,
		logger,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeBatches(gctx, cfg.WorkerBatchSize, cfg.WorkerBatchWait, jobs.HandleBatch)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorContext(context.Background(), "Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}
	logger.InfoContext(context.Background(), "Worker shutdown complete", log.FieldOperation, log.OpShutdown)
}
