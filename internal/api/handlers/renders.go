package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/nikhilbhutani/dialoguecast/internal/auth"
	"github.com/nikhilbhutani/dialoguecast/internal/queue"
	"github.com/nikhilbhutani/dialoguecast/internal/tts"
)

// Enqueuer schedules renders. *queue.Client satisfies it.
type Enqueuer interface {
	EnqueueEpisodeRender(ctx context.Context, payload queue.EpisodeRenderPayload) (string, error)
}

// Identifiers become path components of the output layout.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9-]*$`)

type RenderRequest struct {
	Language      string `json:"language"`
	Provider      string `json:"provider"`
	SeriesID      string `json:"series_id"`
	EpisodeID     string `json:"episode_id"`
	ReuseSegments *bool  `json:"reuse_segments"`
}

type RenderHandler struct {
	queue Enqueuer
}

func NewRenderHandler(q Enqueuer) *RenderHandler {
	return &RenderHandler{queue: q}
}

func (h *RenderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Provider != "" {
		if _, err := tts.ParseMode(req.Provider); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	for name, v := range map[string]string{"language": req.Language, "series_id": req.SeriesID, "episode_id": req.EpisodeID} {
		if !idPattern.MatchString(v) {
			writeError(w, http.StatusBadRequest, "invalid "+name)
			return
		}
	}

	id, err := h.queue.EnqueueEpisodeRender(r.Context(), queue.EpisodeRenderPayload{
		Language:      req.Language,
		Provider:      req.Provider,
		SeriesID:      req.SeriesID,
		EpisodeID:     req.EpisodeID,
		ReuseSegments: req.ReuseSegments,
	})
	if err != nil {
		slog.Error("failed to enqueue render", "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to enqueue render")
		return
	}

	var subject string
	if c := auth.ClaimsFromContext(r.Context()); c != nil {
		subject = c.Subject
	}
	slog.Info("render enqueued", "task_id", id, "subject", subject)
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "status": "queued"})
}
