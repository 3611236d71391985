package dsp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/mattn/go-shellwords"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nikhilbhutani/dialoguecast/internal/config"
)

var tracer = otel.Tracer("github.com/nikhilbhutani/dialoguecast/internal/dsp")

// FFmpeg implements Processor with the ffmpeg command line tool.
type FFmpeg struct {
	cmd     []string
	runner  Runner
	timeout time.Duration
	format  Format // encoding of normalized output
}

var _ Processor = (*FFmpeg)(nil)

// NewFFmpeg parses cfg.FFmpegCommand into a base command line. A nil runner
// runs real subprocesses.
func NewFFmpeg(cfg config.DSPConfig, runner Runner) (*FFmpeg, error) {
	command := cfg.FFmpegCommand
	if command == "" {
		command = "ffmpeg -hide_banner"
	}
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse ffmpeg command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("ffmpeg command empty")
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &FFmpeg{
		cmd:     args,
		runner:  runner,
		timeout: cfg.Timeout,
		format:  FormatFrom(cfg),
	}, nil
}

func (f *FFmpeg) Merge(ctx context.Context, inputs []string, output string, format Format, silence *Silence) (string, error) {
	args, err := MergeArgs(inputs, output, format, silence)
	if err != nil {
		return "", err
	}
	slog.Info("merging audio segments", "segments", len(inputs), "output", output, "silence", silence != nil)
	if _, err := f.run(ctx, "merge", args); err != nil {
		return "", err
	}
	return output, nil
}

func (f *FFmpeg) Normalize(ctx context.Context, input, output string, settings Normalization) (string, error) {
	args := NormalizeArgs(input, output, settings, f.format)
	slog.Info("normalizing audio",
		"input", input,
		"output", output,
		"target_lufs", settings.TargetLUFS,
		"max_true_peak", settings.MaxTruePeak,
	)
	if _, err := f.run(ctx, "normalize", args); err != nil {
		return "", err
	}
	return output, nil
}

func (f *FFmpeg) Analyze(ctx context.Context, path string) (*Metrics, error) {
	stderr, err := f.run(ctx, "analyze", AnalyzeArgs(path))
	if err != nil {
		return nil, err
	}
	m, err := ParseAnalysis(stderr)
	if err != nil {
		return nil, &ToolError{Args: AnalyzeArgs(path), Err: err, Stderr: stderr}
	}
	slog.Debug("analyzed audio", "path", path, "lufs", m.LUFS, "peak", m.PeakLevel, "duration", m.Duration)
	return m, nil
}

// run executes one ffmpeg invocation under the configured timeout and returns
// its stderr.
func (f *FFmpeg) run(ctx context.Context, op string, args []string) (string, error) {
	full := append(append([]string{}, f.cmd[1:]...), args...)

	ctx, span := tracer.Start(ctx, "ffmpeg."+op, trace.WithAttributes(
		attribute.Int("ffmpeg.args", len(full)),
	))
	defer span.End()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	start := time.Now()
	_, stderr, err := f.runner.Run(ctx, f.cmd[0], full...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
		return "", &ToolError{Args: full, Err: err, Stderr: string(stderr)}
	}
	slog.Debug("ffmpeg finished", "op", op, "elapsed", time.Since(start))
	return string(stderr), nil
}

// MergeArgs builds the ffmpeg arguments for concatenating inputs in order.
// Encoding flags are applied once, at the final encode.
func MergeArgs(inputs []string, output string, format Format, silence *Silence) ([]string, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("merge audio: no input segments")
	}
	graph, err := BuildConcatGraph(len(inputs), silence, format)
	if err != nil {
		return nil, err
	}

	args := []string{"-y"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	args = append(args,
		"-filter_complex", graph,
		"-map", "["+OutputLabel+"]",
	)
	args = append(args, encodeArgs(format)...)
	return append(args, output), nil
}

// NormalizeArgs builds a single-pass loudnorm invocation followed by a limiter
// at the output ceiling.
func NormalizeArgs(input, output string, settings Normalization, format Format) []string {
	filter := fmt.Sprintf("loudnorm=I=%s:TP=%s:print_format=summary,alimiter=limit=%s:level=0",
		formatFloat(settings.TargetLUFS),
		formatFloat(settings.MaxTruePeak),
		strconv.FormatFloat(ceilingLinear(settings.Ceiling), 'f', 6, 64),
	)
	args := []string{"-y", "-i", input, "-af", filter}
	args = append(args, encodeArgs(format)...)
	return append(args, output)
}

func AnalyzeArgs(path string) []string {
	return []string{"-nostats", "-i", path, "-af", "astats,loudnorm=print_format=json", "-f", "null", "-"}
}

func encodeArgs(format Format) []string {
	var args []string
	if format.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(format.SampleRate))
	}
	if format.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(format.Channels))
	}
	if format.Codec != "" {
		args = append(args, "-c:a", format.Codec)
	}
	if format.Bitrate != "" {
		args = append(args, "-b:a", format.Bitrate)
	}
	return args
}

// ceilingLinear converts a dBFS ceiling to the linear range alimiter accepts.
func ceilingLinear(db float64) float64 {
	v := math.Pow(10, db/20)
	return math.Min(1, math.Max(0.0625, v))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
