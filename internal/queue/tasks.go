package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const TypeEpisodeRender = "episode:render"

// EpisodeRenderPayload selects the episode a worker renders. Empty fields
// fall back to the worker's output configuration.
type EpisodeRenderPayload struct {
	TaskID        string `json:"task_id"`
	Language      string `json:"language,omitempty"`
	Provider      string `json:"provider,omitempty"` // openai, elevenlabs or mixed_providers
	SeriesID      string `json:"series_id,omitempty"`
	EpisodeID     string `json:"episode_id,omitempty"`
	ReuseSegments *bool  `json:"reuse_segments,omitempty"`
}

func NewEpisodeRenderTask(payload EpisodeRenderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeEpisodeRender, data), nil
}
