package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Logging   LoggingConfig
	Telemetry TelemetryConfig
	TTS       TTSConfig
	Queue     QueueConfig
	DSP       DSPConfig
	Output    OutputConfig
}

type ServerConfig struct {
	Host string
	Port int
	// AllowedOrigins lists the browser origins the API answers. "*" allows any.
	AllowedOrigins []string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text
}

type TelemetryConfig struct {
	Exporter     string // "stdout", "otlp" or "none"
	OTLPEndpoint string
	OTLPInsecure bool
	ServiceName  string
}

type TTSConfig struct {
	OpenAIKey         string
	OpenAIBaseURL     string
	OpenAIModel       string // default: "tts-1"
	ElevenLabsKey     string
	ElevenLabsBaseURL string // default: "https://api.elevenlabs.io/v1"
	ElevenLabsModel   string // default: "eleven_multilingual_v2"
	CacheEnabled      bool
	CacheTTL          time.Duration
}

// QueueConfig controls chunking, concurrency and retry of synthesis requests.
type QueueConfig struct {
	ChunkSize      int
	Concurrency    int
	MaxRetries     int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
}

type DSPConfig struct {
	FFmpegCommand string // e.g. "ffmpeg -hide_banner"
	Timeout       time.Duration
	Codec         string
	SampleRate    int
	Channels      int
	Bitrate       string
	Silence       time.Duration // 0 disables inserted silence
	TargetLUFS    float64
	MaxTruePeak   float64
	Ceiling       float64
}

type OutputConfig struct {
	Dir           string
	Language      string
	Provider      string // openai, elevenlabs or mixed_providers
	SeriesID      string
	EpisodeID     string
	CastFile      string
	MaxSegments   int // 0 means no limit
	ReuseSegments bool
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	otlpInsecure, err := getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true)
	if err != nil {
		return nil, fmt.Errorf("invalid OTEL_EXPORTER_OTLP_INSECURE: %w", err)
	}

	cacheEnabled, err := getEnvBool("TTS_CACHE_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("invalid TTS_CACHE_ENABLED: %w", err)
	}

	cacheTTL, err := getEnvDuration("TTS_CACHE_TTL_HOURS", 24, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid TTS_CACHE_TTL_HOURS: %w", err)
	}

	chunkSize, err := getEnvInt("TTS_QUEUE_CHUNK_SIZE", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid TTS_QUEUE_CHUNK_SIZE: %w", err)
	}

	concurrency, err := getEnvInt("TTS_QUEUE_CONCURRENCY", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid TTS_QUEUE_CONCURRENCY: %w", err)
	}

	maxRetries, err := getEnvInt("TTS_QUEUE_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid TTS_QUEUE_MAX_RETRIES: %w", err)
	}

	retryDelay, err := getEnvDuration("TTS_QUEUE_RETRY_DELAY_MS", 1000, time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("invalid TTS_QUEUE_RETRY_DELAY_MS: %w", err)
	}

	requestTimeout, err := getEnvDuration("TTS_REQUEST_TIMEOUT_SEC", 120, time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid TTS_REQUEST_TIMEOUT_SEC: %w", err)
	}

	dspTimeout, err := getEnvDuration("DSP_TIMEOUT_SEC", 300, time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid DSP_TIMEOUT_SEC: %w", err)
	}

	sampleRate, err := getEnvInt("DSP_SAMPLE_RATE", 44100)
	if err != nil {
		return nil, fmt.Errorf("invalid DSP_SAMPLE_RATE: %w", err)
	}

	channels, err := getEnvInt("DSP_CHANNELS", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid DSP_CHANNELS: %w", err)
	}

	silence, err := getEnvDuration("DSP_SILENCE_MS", 0, time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("invalid DSP_SILENCE_MS: %w", err)
	}

	targetLUFS, err := getEnvFloat("DSP_TARGET_LUFS", -16)
	if err != nil {
		return nil, fmt.Errorf("invalid DSP_TARGET_LUFS: %w", err)
	}

	maxTruePeak, err := getEnvFloat("DSP_MAX_TRUE_PEAK", -1.0)
	if err != nil {
		return nil, fmt.Errorf("invalid DSP_MAX_TRUE_PEAK: %w", err)
	}

	ceiling, err := getEnvFloat("DSP_CEILING", -0.1)
	if err != nil {
		return nil, fmt.Errorf("invalid DSP_CEILING: %w", err)
	}

	maxSegments, err := getEnvInt("MAX_SEGMENTS", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_SEGMENTS: %w", err)
	}

	reuseSegments, err := getEnvBool("REUSE_SEGMENTS", true)
	if err != nil {
		return nil, fmt.Errorf("invalid REUSE_SEGMENTS: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Telemetry: TelemetryConfig{
			Exporter:     getEnv("OTEL_EXPORTER", "none"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure: otlpInsecure,
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "dialoguecast"),
		},
		TTS: TTSConfig{
			OpenAIKey:         getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:     getEnv("TTS_OPENAI_BASE_URL", ""),
			OpenAIModel:       getEnv("TTS_OPENAI_MODEL", "tts-1"),
			ElevenLabsKey:     getEnv("ELEVENLABS_API_KEY", ""),
			ElevenLabsBaseURL: getEnv("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1"),
			ElevenLabsModel:   getEnv("TTS_ELEVENLABS_MODEL", "eleven_multilingual_v2"),
			CacheEnabled:      cacheEnabled,
			CacheTTL:          cacheTTL,
		},
		Queue: QueueConfig{
			ChunkSize:      chunkSize,
			Concurrency:    concurrency,
			MaxRetries:     maxRetries,
			RetryDelay:     retryDelay,
			RequestTimeout: requestTimeout,
		},
		DSP: DSPConfig{
			FFmpegCommand: getEnv("FFMPEG_COMMAND", "ffmpeg -hide_banner"),
			Timeout:       dspTimeout,
			Codec:         getEnv("DSP_CODEC", "libmp3lame"),
			SampleRate:    sampleRate,
			Channels:      channels,
			Bitrate:       getEnv("DSP_BITRATE", "192k"),
			Silence:       silence,
			TargetLUFS:    targetLUFS,
			MaxTruePeak:   maxTruePeak,
			Ceiling:       ceiling,
		},
		Output: OutputConfig{
			Dir:           getEnv("OUTPUT_DIR", "output"),
			Language:      getEnv("OUTPUT_LANGUAGE", "en"),
			Provider:      getEnv("OUTPUT_PROVIDER", "openai"),
			SeriesID:      getEnv("SERIES_ID", "series"),
			EpisodeID:     getEnv("EPISODE_ID", "ep1"),
			CastFile:      getEnv("CAST_FILE", "cast.yaml"),
			MaxSegments:   maxSegments,
			ReuseSegments: reuseSegments,
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate reports missing credentials for the configured provider mode and
// queue settings that cannot work.
func (c *Config) Validate() error {
	var missing []string
	switch c.Output.Provider {
	case "openai":
		if c.TTS.OpenAIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	case "elevenlabs":
		if c.TTS.ElevenLabsKey == "" {
			missing = append(missing, "ELEVENLABS_API_KEY")
		}
	case "mixed_providers":
		if c.TTS.OpenAIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
		if c.TTS.ElevenLabsKey == "" {
			missing = append(missing, "ELEVENLABS_API_KEY")
		}
	default:
		return fmt.Errorf("invalid OUTPUT_PROVIDER: %q", c.Output.Provider)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}

	if c.Queue.ChunkSize < 1 {
		return fmt.Errorf("invalid TTS_QUEUE_CHUNK_SIZE: must be at least 1, got %d", c.Queue.ChunkSize)
	}
	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("invalid TTS_QUEUE_CONCURRENCY: must be at least 1, got %d", c.Queue.Concurrency)
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("invalid TTS_QUEUE_MAX_RETRIES: must not be negative, got %d", c.Queue.MaxRetries)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvList splits a comma separated variable, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

// getEnvDuration reads an integer count of unit.
func getEnvDuration(key string, fallback int, unit time.Duration) (time.Duration, error) {
	n, err := getEnvInt(key, fallback)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * unit, nil
}
