package episode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/nikhilbhutani/dialoguecast/internal/dsp"
	"github.com/nikhilbhutani/dialoguecast/internal/pipeline"
)

var errNoSegments = errors.New("no audio segments to mix")

// MixdownStep concatenates the context's segments in index order into the
// layout's raw mix.
func MixdownStep(p dsp.Processor, format dsp.Format, silence *dsp.Silence) pipeline.Step[DSPContext, MixdownContext] {
	return func(ctx context.Context, in DSPContext) (MixdownContext, error) {
		if len(in.Audio.Segments) == 0 {
			return MixdownContext{}, fmt.Errorf("Failed to mix segments: %w", errNoSegments)
		}

		// Sort a copy; the input context keeps its own slice untouched.
		ordered := slices.Clone(in.Audio.Segments)
		sortByIndex(ordered)
		inputs := make([]string, len(ordered))
		for i, s := range ordered {
			inputs[i] = s.Path
		}

		out, err := p.Merge(ctx, inputs, in.Layout.RawMixPath(), format, silence)
		if err != nil {
			return MixdownContext{}, fmt.Errorf("Failed to mix segments: %w", err)
		}

		slog.Info("mixed segments", "segments", len(inputs), "output", out)
		return MixdownContext{
			DSPContext: in,
			Mixdown: MixdownResult{
				Path:      out,
				Format:    format,
				Silence:   silence,
				Segments:  len(inputs),
				Timestamp: time.Now(),
			},
		}, nil
	}
}

// NormalizeStep normalizes the raw mix and measures the result.
func NormalizeStep(p dsp.Processor, settings dsp.Normalization) pipeline.Step[MixdownContext, NormalizeContext] {
	return func(ctx context.Context, in MixdownContext) (NormalizeContext, error) {
		out, err := p.Normalize(ctx, in.Mixdown.Path, in.Layout.NormalizedPath(), settings)
		if err != nil {
			return NormalizeContext{}, fmt.Errorf("Failed to normalize audio: %w", err)
		}

		metrics, err := p.Analyze(ctx, out)
		if err != nil {
			return NormalizeContext{}, fmt.Errorf("Failed to analyze normalized audio: %w", err)
		}

		attrs := []any{"output", out, "lufs", metrics.LUFS, "peak", metrics.PeakLevel, "duration", metrics.Duration}
		if math.Abs(metrics.LUFS-settings.TargetLUFS) > 1 {
			slog.Warn("normalized loudness off target", append(attrs, "target", settings.TargetLUFS)...)
		} else {
			slog.Info("normalized audio", attrs...)
		}

		return NormalizeContext{
			MixdownContext: in,
			Normalize: NormalizeResult{
				Path:      out,
				LUFS:      metrics.LUFS,
				Metrics:   *metrics,
				Settings:  settings,
				Timestamp: time.Now(),
			},
		}, nil
	}
}

// DSPPipeline runs mixdown then normalization.
func DSPPipeline(p dsp.Processor, format dsp.Format, silence *dsp.Silence, settings dsp.Normalization) pipeline.Step[DSPContext, NormalizeContext] {
	run := pipeline.Then(MixdownStep(p, format, silence), NormalizeStep(p, settings))
	return func(ctx context.Context, in DSPContext) (NormalizeContext, error) {
		out, err := run(ctx, in)
		if err != nil {
			return NormalizeContext{}, fmt.Errorf("DSP pipeline failed: %w", err)
		}
		return out, nil
	}
}
