package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nikhilbhutani/dialoguecast/internal/cache"
	"github.com/nikhilbhutani/dialoguecast/internal/config"
	"github.com/nikhilbhutani/dialoguecast/internal/episode"
	"github.com/nikhilbhutani/dialoguecast/internal/telemetry"
	"github.com/nikhilbhutani/dialoguecast/internal/tts"
)

func main() {
	if err := run(); err != nil {
		slog.Error("render failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := flag.String("env", ".env", "dotenv file to load before reading the environment")
	language := flag.String("language", "", "dialogue language (overrides OUTPUT_LANGUAGE)")
	provider := flag.String("provider", "", "openai, elevenlabs or mixed_providers (overrides OUTPUT_PROVIDER)")
	series := flag.String("series", "", "series id (overrides SERIES_ID)")
	episodeID := flag.String("episode", "", "episode id (overrides EPISODE_ID)")
	regenerate := flag.Bool("regenerate", false, "synthesize segments even when they already exist")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load %s: %w", *envFile, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	config.SetupLogging(cfg.Logging)

	if *language != "" {
		cfg.Output.Language = *language
	}
	if *provider != "" {
		cfg.Output.Provider = *provider
	}
	if *series != "" {
		cfg.Output.SeriesID = *series
	}
	if *episodeID != "" {
		cfg.Output.EpisodeID = *episodeID
	}
	if *regenerate {
		cfg.Output.ReuseSegments = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, _, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()

	var audioCache tts.AudioCache
	if cfg.TTS.CacheEnabled {
		rdb := cache.NewClient(cfg.Redis)
		defer rdb.Close()
		c := cache.NewCache(rdb)
		if err := c.Ping(ctx); err != nil {
			slog.Warn("redis unavailable, rendering without tts cache", "error", err)
		} else {
			audioCache = c
		}
	}

	renderer, err := episode.NewRendererFromConfig(cfg, audioCache)
	if err != nil {
		return err
	}
	job, err := episode.JobFromConfig(cfg.Output)
	if err != nil {
		return err
	}

	report, err := renderer.Render(ctx, job)
	if err != nil {
		return err
	}

	fmt.Println(report.Normalize.Path)
	return nil
}
