package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/nikhilbhutani/dialoguecast/internal/cache"
	"github.com/nikhilbhutani/dialoguecast/internal/config"
	"github.com/nikhilbhutani/dialoguecast/internal/episode"
	"github.com/nikhilbhutani/dialoguecast/internal/queue"
	"github.com/nikhilbhutani/dialoguecast/internal/queue/workers"
	"github.com/nikhilbhutani/dialoguecast/internal/telemetry"
	"github.com/nikhilbhutani/dialoguecast/internal/tts"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	config.SetupLogging(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	shutdown, _, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("failed to init telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdown(flushCtx)
	}()

	var audioCache tts.AudioCache
	rdb := cache.NewClient(cfg.Redis)
	defer rdb.Close()
	if cfg.TTS.CacheEnabled {
		audioCache = cache.NewCache(rdb)
	}

	renderer, err := episode.NewRendererFromConfig(cfg, audioCache)
	if err != nil {
		slog.Error("failed to init renderer", "error", err)
		os.Exit(1)
	}

	// Each render already fans out to the providers through the tts queue.
	const concurrency = 2
	srv := asynq.NewServer(
		queue.RedisOpt(cfg.Redis),
		asynq.Config{
			Concurrency:     concurrency,
			Queues:          map[string]int{"default": 1},
			ShutdownTimeout: 30 * time.Second,
		},
	)

	registry := queue.NewHandlersRegistry()
	renderWorker := workers.NewRenderWorker(renderer, cfg.Output)
	registry.Register(queue.TypeEpisodeRender, asynq.HandlerFunc(renderWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", concurrency)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
