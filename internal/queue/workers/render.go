package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/dialoguecast/internal/config"
	"github.com/nikhilbhutani/dialoguecast/internal/episode"
	"github.com/nikhilbhutani/dialoguecast/internal/queue"
)

type Renderer interface {
	Render(ctx context.Context, job episode.Job) (*episode.Report, error)
}

// RenderWorker runs episode:render tasks.
type RenderWorker struct {
	renderer Renderer
	defaults config.OutputConfig
}

func NewRenderWorker(r Renderer, defaults config.OutputConfig) *RenderWorker {
	return &RenderWorker{renderer: r, defaults: defaults}
}

func (w *RenderWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.EpisodeRenderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	job, err := w.job(payload)
	if err != nil {
		return fmt.Errorf("invalid render task %s: %v: %w", payload.TaskID, err, asynq.SkipRetry)
	}

	slog.Info("rendering episode",
		"task_id", job.ID,
		"language", job.Language,
		"mode", job.Mode,
		"series_id", job.SeriesID,
		"episode_id", job.EpisodeID,
	)

	report, err := w.renderer.Render(ctx, job)
	if err != nil {
		return fmt.Errorf("render episode: %w", err)
	}

	if rw := t.ResultWriter(); rw != nil {
		data, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("marshal render report: %w", err)
		}
		if _, err := rw.Write(data); err != nil {
			slog.Warn("failed to store task result", "task_id", job.ID, "error", err)
		}
	}
	return nil
}

func (w *RenderWorker) job(p queue.EpisodeRenderPayload) (episode.Job, error) {
	cfg := w.defaults
	if p.Language != "" {
		cfg.Language = p.Language
	}
	if p.Provider != "" {
		cfg.Provider = p.Provider
	}
	if p.SeriesID != "" {
		cfg.SeriesID = p.SeriesID
	}
	if p.EpisodeID != "" {
		cfg.EpisodeID = p.EpisodeID
	}
	if p.ReuseSegments != nil {
		cfg.ReuseSegments = *p.ReuseSegments
	}

	job, err := episode.JobFromConfig(cfg)
	if err != nil {
		return episode.Job{}, err
	}
	job.ID = p.TaskID
	return job, nil
}
