// Package episode renders a dialogue episode: it synthesizes one segment per
// line, mixes the segments and normalizes the mix.
package episode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nikhilbhutani/dialoguecast/internal/cast"
	"github.com/nikhilbhutani/dialoguecast/internal/config"
	"github.com/nikhilbhutani/dialoguecast/internal/dialogue"
	"github.com/nikhilbhutani/dialoguecast/internal/dsp"
	"github.com/nikhilbhutani/dialoguecast/internal/pipeline"
	"github.com/nikhilbhutani/dialoguecast/internal/storage"
	"github.com/nikhilbhutani/dialoguecast/internal/tts"
)

// Job selects one episode render.
type Job struct {
	ID        string
	Language  string
	Mode      tts.Mode
	SeriesID  string
	EpisodeID string
	// ReuseSegments skips synthesis when segments already exist on disk.
	ReuseSegments bool
}

// JobFromConfig builds the job described by the output configuration.
func JobFromConfig(cfg config.OutputConfig) (Job, error) {
	mode, err := tts.ParseMode(cfg.Provider)
	if err != nil {
		return Job{}, err
	}
	return Job{
		Language:      cfg.Language,
		Mode:          mode,
		SeriesID:      cfg.SeriesID,
		EpisodeID:     cfg.EpisodeID,
		ReuseSegments: cfg.ReuseSegments,
	}, nil
}

// Report is written next to the rendered files.
type Report struct {
	JobID      string          `json:"job_id,omitempty"`
	Language   string          `json:"language"`
	Mode       tts.Mode        `json:"mode"`
	SeriesID   string          `json:"series_id"`
	EpisodeID  string          `json:"episode_id"`
	Reused     bool            `json:"reused_segments"`
	Audio      Audio           `json:"audio"`
	Mixdown    MixdownResult   `json:"mixdown"`
	Normalize  NormalizeResult `json:"normalize"`
	RenderedAt time.Time       `json:"rendered_at"`
}

type Renderer struct {
	root      string
	fs        storage.FileSystem
	generator *Generator
	dsp       pipeline.Step[DSPContext, NormalizeContext]

	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

func NewRenderer(cfg *config.Config, fs storage.FileSystem, queue Queue, c *cast.Cast, proc dsp.Processor) *Renderer {
	return &Renderer{
		root:      cfg.Output.Dir,
		fs:        fs,
		generator: NewGenerator(queue, c, fs, cfg.Output.MaxSegments),
		dsp: DSPPipeline(proc,
			dsp.FormatFrom(cfg.DSP),
			dsp.SilenceFrom(cfg.DSP),
			dsp.NormalizationFrom(cfg.DSP),
		),
		locks: make(map[string]*semaphore.Weighted),
	}
}

func (r *Renderer) Layout(job Job) Layout {
	return Layout{
		Root:      r.root,
		Language:  job.Language,
		Mode:      job.Mode,
		SeriesID:  job.SeriesID,
		EpisodeID: job.EpisodeID,
	}
}

// Render produces the normalized episode for job and writes its report.
// Renders sharing a language and mode share a segments directory and run one
// at a time.
func (r *Renderer) Render(ctx context.Context, job Job) (*Report, error) {
	layout := r.Layout(job)
	release, err := r.lock(ctx, layout)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := EnsureStructure(r.fs, layout); err != nil {
		return nil, err
	}

	var (
		reused DSPContext
		reuse  bool
	)
	if job.ReuseSegments {
		reused, reuse, err = r.reusable(layout)
		if err != nil {
			return nil, err
		}
	}

	var source pipeline.Step[Layout, DSPContext]
	if reuse {
		slog.Info("reusing existing segments", "dir", layout.SegmentsDir(), "segments", len(reused.Audio.Segments))
		source = func(context.Context, Layout) (DSPContext, error) { return reused, nil }
	} else {
		var load pipeline.Step[Layout, DialogueContext] = r.loadDialogue
		var generate pipeline.Step[DialogueContext, DSPContext] = r.generator.Generate
		source = pipeline.Then(load, generate)
	}

	start := time.Now()
	out, err := pipeline.Then(source, r.dsp)(ctx, layout)
	if err != nil {
		return nil, fmt.Errorf("audio pipeline failed: %w", err)
	}

	report := &Report{
		JobID:      job.ID,
		Language:   layout.Language,
		Mode:       layout.Mode,
		SeriesID:   layout.SeriesID,
		EpisodeID:  layout.EpisodeID,
		Reused:     reuse,
		Audio:      out.Audio,
		Mixdown:    out.Mixdown,
		Normalize:  out.Normalize,
		RenderedAt: time.Now(),
	}
	if err := r.writeReport(layout, report); err != nil {
		return nil, err
	}

	slog.Info("episode rendered",
		"job_id", job.ID,
		"output", out.Normalize.Path,
		"segments", len(out.Audio.Segments),
		"duration", time.Since(start),
	)
	return report, nil
}

func (r *Renderer) loadDialogue(_ context.Context, l Layout) (DialogueContext, error) {
	d, err := dialogue.Load(r.fs, l.DialoguePath())
	if err != nil {
		return DialogueContext{}, err
	}
	return DialogueContext{Layout: l, Dialogue: d}, nil
}

// reusable loads the segments on disk when they were synthesized from the
// current dialogue. Any mismatch means the segments are regenerated. A
// dialogue that cannot be loaded is left for the generation path to report.
func (r *Renderer) reusable(l Layout) (DSPContext, bool, error) {
	ok, err := SegmentsExist(r.fs, l)
	if err != nil {
		return DSPContext{}, false, fmt.Errorf("check existing segments: %w", err)
	}
	if !ok {
		return DSPContext{}, false, nil
	}
	d, err := dialogue.Load(r.fs, l.DialoguePath())
	if err != nil {
		return DSPContext{}, false, nil
	}

	var reason string
	segments, err := LoadSegments(r.fs, l)
	if err == nil {
		var manifest *Manifest
		manifest, err = readManifest(r.fs, l)
		if err == nil {
			reason = r.generator.mismatch(segments, manifest, r.generator.lines(d))
		}
	}
	if err != nil {
		reason = err.Error()
	}
	if reason != "" {
		slog.Warn("existing segments do not match dialogue, regenerating", "dir", l.SegmentsDir(), "reason", reason)
		return DSPContext{}, false, nil
	}
	return DSPContext{Layout: l, Dialogue: &d, Audio: summarize(segments, time.Now())}, true, nil
}

func (r *Renderer) lock(ctx context.Context, l Layout) (func(), error) {
	r.mu.Lock()
	sem, ok := r.locks[l.ProviderDir()]
	if !ok {
		sem = semaphore.NewWeighted(1)
		r.locks[l.ProviderDir()] = sem
	}
	r.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for render of %s: %w", l.ProviderDir(), err)
	}
	return func() { sem.Release(1) }, nil
}

func (r *Renderer) writeReport(l Layout, report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal render report: %w", err)
	}
	if _, err := r.fs.WriteFile(l.ReportPath(), data); err != nil {
		return fmt.Errorf("write render report: %w", err)
	}
	return nil
}
