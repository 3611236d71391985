package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"
)

// AudioCache is the subset of cache.Cache used to memoize synthesized audio.
type AudioCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Cached wraps a Synthesizer and serves repeated requests from a cache.
// Cache failures never fail synthesis.
type Cached struct {
	next  Synthesizer
	cache AudioCache
	ttl   time.Duration
}

func NewCached(next Synthesizer, cache AudioCache, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache, ttl: ttl}
}

func (c *Cached) Name() string { return c.next.Name() }

// Profiler is implemented by synthesizers whose configuration, beyond the
// request, shapes the audio they return.
type Profiler interface {
	Profile(req Request) string
}

func (c *Cached) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	var profile string
	if p, ok := c.next.(Profiler); ok {
		profile = p.Profile(req)
	}
	key, err := CacheKey(req, profile)
	if err != nil {
		return c.next.Synthesize(ctx, req)
	}

	var hit Audio
	if err := c.cache.Get(ctx, key, &hit); err == nil && len(hit.Data) > 0 {
		slog.Debug("tts cache hit", "provider", req.Provider(), "segment", req.Base().Metadata.SegmentIndex)
		hit.Metadata = req.Base().Metadata
		return &hit, nil
	}

	audio, err := c.next.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, audio, c.ttl); err != nil {
		slog.Warn("tts cache write failed", "key", key, "error", err)
	}
	return audio, nil
}

// CacheKey derives a stable key from everything that affects the audio: the
// request and the synthesizer profile. Metadata is excluded.
func CacheKey(req Request, profile string) (string, error) {
	payload := struct {
		Profile  string         `json:"profile,omitempty"`
		Provider Provider       `json:"provider"`
		Voice    string         `json:"voice"`
		Text     string         `json:"text"`
		Format   Format         `json:"format"`
		Model    string         `json:"model,omitempty"`
		Speed    float64        `json:"speed,omitempty"`
		Settings *VoiceSettings `json:"settings,omitempty"`
	}{
		Profile:  profile,
		Provider: req.Provider(),
		Voice:    req.VoiceID(),
		Text:     req.Base().Text,
		Format:   req.Base().Format,
	}
	switch r := req.(type) {
	case OpenAIRequest:
		payload.Model = r.Model
		payload.Speed = r.Speed
	case ElevenLabsRequest:
		payload.Model = r.ModelID
		payload.Settings = r.Settings
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "tts:audio:" + hex.EncodeToString(sum[:]), nil
}
