package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"docvault-backend/internal/bootstrap"
	"docvault-backend/internal/queue"
	"docvault-backend/internal/shared/config"
	"docvault-backend/internal/shared/telemetry"
	"docvault-backend/internal/workerproc"
)

func main() {
	cfg := workerConfig(config.Load())
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	defer telemetry.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		Enabled:     cfg.OTelEnabled,
		ServiceName: cfg.OTelServiceName + "-worker",
		Environment: cfg.Env,
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
		SampleRatio: cfg.OTelSampleRatio,
	})

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()
	if app.DB == nil {
		telemetry.Warn("worker.memory_repos", map[string]any{"reason": "no database; completions will not be shared with the API"})
	}

	srv := workerproc.NewServer(queue.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, cfg.WorkerConcurrency)
	if err := srv.Start(workerproc.NewMux(app.IngestionService)); err != nil {
		log.Fatalf("start worker: %v", err)
	}
	telemetry.Info("worker.started", map[string]any{
		"redis":       cfg.RedisAddr,
		"concurrency": cfg.WorkerConcurrency,
		"mode":        cfg.IngestionMode,
	})

	<-ctx.Done()
	telemetry.Info("worker.shutdown", nil)
	srv.Shutdown()
	if err := shutdownTracing(context.Background()); err != nil {
		telemetry.Error("worker.tracing_shutdown_failed", map[string]any{"error": err.Error()})
	}
}

// workerConfig forces the queue scheduler so retries re-enter the queue,
// and disables the in-process worker the API may run.
func workerConfig(cfg config.Config) config.Config {
	cfg.IngestionScheduler = config.SchedulerAsynq
	cfg.IngestionEmbeddedWorker = false
	return cfg
}
