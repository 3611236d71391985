// Package ttsqueue drives synthesis requests against rate-limited providers.
//
// Requests are split into fixed-size chunks that run one after another.
// Inside a chunk at most Concurrency requests are in flight, and each request
// is retried with linear backoff while the provider reports rate limiting.
package ttsqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/nikhilbhutani/dialoguecast/internal/config"
	"github.com/nikhilbhutani/dialoguecast/internal/tts"
)

const instrumentation = "github.com/nikhilbhutani/dialoguecast/internal/ttsqueue"

var tracer = otel.Tracer(instrumentation)

const (
	DefaultChunkSize   = 2
	DefaultConcurrency = 2
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = time.Second
)

// DefaultConfig returns the conservative settings used when nothing is
// configured.
func DefaultConfig() config.QueueConfig {
	return config.QueueConfig{
		ChunkSize:      DefaultChunkSize,
		Concurrency:    DefaultConcurrency,
		MaxRetries:     DefaultMaxRetries,
		RetryDelay:     DefaultRetryDelay,
		RequestTimeout: 120 * time.Second,
	}
}

// Success pairs a request with the audio it produced.
type Success struct {
	Request  tts.Request
	Audio    *tts.Audio
	Attempts int
}

// Failure pairs a request with the error that ended it.
type Failure struct {
	Request  tts.Request
	Err      error
	Attempts int
}

func (f Failure) Message() string { return f.Err.Error() }

// Result partitions every input request into exactly one of Successes or
// Failures. Outcomes follow chunk order and dispatch order within a chunk;
// callers should reconcile with request metadata rather than positions.
type Result struct {
	Successes []Success
	Failures  []Failure
}

func (r *Result) Total() int { return len(r.Successes) + len(r.Failures) }

type Engine struct {
	synth   tts.Synthesizer
	cfg     config.QueueConfig
	metrics engineMetrics
}

// item is a request owned by the engine while it is being processed.
type item struct {
	req      tts.Request
	position int
	retries  int
}

type outcome struct {
	audio    *tts.Audio
	err      error
	attempts int
}

// NewEngine creates an Engine. Zero chunk size and concurrency fall back to the
// defaults; concurrency is clamped to the chunk size.
func NewEngine(synth tts.Synthesizer, cfg config.QueueConfig) *Engine {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Concurrency > cfg.ChunkSize {
		cfg.Concurrency = cfg.ChunkSize
	}
	return &Engine{
		synth:   synth,
		cfg:     cfg,
		metrics: newEngineMetrics(otel.Meter(instrumentation)),
	}
}

// Process synthesizes every request. A returned error means the run itself
// failed; per-request errors are reported in Result.Failures.
func (e *Engine) Process(ctx context.Context, reqs []tts.Request) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("tts queue failed: %v", r)
		}
	}()

	if e.cfg.ChunkSize < 1 || e.cfg.Concurrency < 1 {
		return nil, fmt.Errorf("tts queue failed: invalid chunk size %d or concurrency %d", e.cfg.ChunkSize, e.cfg.Concurrency)
	}
	if e.cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("tts queue failed: negative max retries %d", e.cfg.MaxRetries)
	}

	ctx, span := tracer.Start(ctx, "ttsqueue.Process", trace.WithAttributes(
		attribute.Int("tts.requests", len(reqs)),
		attribute.Int("tts.chunk_size", e.cfg.ChunkSize),
	))
	defer span.End()

	slog.Info("processing tts queue",
		"requests", len(reqs),
		"chunk_size", e.cfg.ChunkSize,
		"concurrency", e.cfg.Concurrency,
	)

	res = &Result{}
	for i, chunk := range chunkItems(reqs, e.cfg.ChunkSize) {
		outcomes, err := e.processChunk(ctx, i, chunk)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("tts queue failed: %w", err)
		}
		for j, o := range outcomes {
			if o.err != nil {
				res.Failures = append(res.Failures, Failure{Request: chunk[j].req, Err: o.err, Attempts: o.attempts})
				continue
			}
			res.Successes = append(res.Successes, Success{Request: chunk[j].req, Audio: o.audio, Attempts: o.attempts})
		}
	}

	span.SetAttributes(
		attribute.Int("tts.successes", len(res.Successes)),
		attribute.Int("tts.failures", len(res.Failures)),
	)
	slog.Info("tts queue completed", "successes", len(res.Successes), "failures", len(res.Failures))
	return res, nil
}

func chunkItems(reqs []tts.Request, size int) [][]item {
	var chunks [][]item
	for start := 0; start < len(reqs); start += size {
		end := min(start+size, len(reqs))
		chunk := make([]item, 0, end-start)
		for i := start; i < end; i++ {
			chunk = append(chunk, item{req: reqs[i], position: i})
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// processChunk blocks until every item of the chunk has an outcome.
func (e *Engine) processChunk(ctx context.Context, index int, chunk []item) ([]outcome, error) {
	ctx, span := tracer.Start(ctx, "ttsqueue.chunk", trace.WithAttributes(
		attribute.Int("tts.chunk", index),
		attribute.Int("tts.chunk_len", len(chunk)),
	))
	defer span.End()

	slog.Debug("processing tts chunk", "chunk", index, "size", len(chunk))

	outcomes := make([]outcome, len(chunk))
	sem := semaphore.NewWeighted(int64(e.cfg.Concurrency))
	var g errgroup.Group

	for i, it := range chunk {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(chunk); j++ {
				outcomes[j] = outcome{err: err}
			}
			break
		}
		g.Go(func() (err error) {
			defer sem.Release(1)
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic synthesizing request %d: %v", it.position, r)
				}
			}()
			outcomes[i] = e.synthesizeWithRetry(ctx, it)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (e *Engine) synthesizeWithRetry(ctx context.Context, it item) outcome {
	attrs := metric.WithAttributes(attribute.String("tts.provider", string(it.req.Provider())))
	for {
		audio, err := e.attempt(ctx, it)
		if err == nil {
			return outcome{audio: audio, attempts: it.retries + 1}
		}

		if !tts.IsRateLimited(err) || it.retries >= e.cfg.MaxRetries {
			e.metrics.failures.Add(ctx, 1, attrs)
			slog.Warn("tts request failed",
				"provider", it.req.Provider(),
				"segment", it.req.Base().Metadata.SegmentIndex,
				"attempts", it.retries+1,
				"error", err,
			)
			return outcome{err: err, attempts: it.retries + 1}
		}

		delay := e.cfg.RetryDelay * time.Duration(it.retries+1)
		slog.Debug("rate limited, retrying tts request",
			"provider", it.req.Provider(),
			"segment", it.req.Base().Metadata.SegmentIndex,
			"retry", it.retries+1,
			"delay", delay,
		)
		e.metrics.retries.Add(ctx, 1, attrs)

		select {
		case <-ctx.Done():
			return outcome{err: ctx.Err(), attempts: it.retries + 1}
		case <-time.After(delay):
		}
		it.retries++
	}
}

func (e *Engine) attempt(ctx context.Context, it item) (*tts.Audio, error) {
	ctx, span := tracer.Start(ctx, "ttsqueue.synthesize", trace.WithAttributes(
		attribute.String("tts.provider", string(it.req.Provider())),
		attribute.Int("tts.segment", it.req.Base().Metadata.SegmentIndex),
		attribute.Int("tts.retry", it.retries),
	))
	defer span.End()

	if e.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
		defer cancel()
	}

	e.metrics.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("tts.provider", string(it.req.Provider()))))
	audio, err := e.synth.Synthesize(ctx, it.req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return audio, nil
}
