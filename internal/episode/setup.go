package episode

import (
	"fmt"

	"github.com/nikhilbhutani/dialoguecast/internal/cast"
	"github.com/nikhilbhutani/dialoguecast/internal/config"
	"github.com/nikhilbhutani/dialoguecast/internal/dsp"
	"github.com/nikhilbhutani/dialoguecast/internal/storage"
	"github.com/nikhilbhutani/dialoguecast/internal/tts"
	"github.com/nikhilbhutani/dialoguecast/internal/ttsqueue"
)

// NewRendererFromConfig assembles a renderer on the local filesystem with
// ffmpeg and the configured providers. audioCache may be nil.
func NewRendererFromConfig(cfg *config.Config, audioCache tts.AudioCache) (*Renderer, error) {
	fs := storage.NewLocal()
	c, err := cast.Load(fs, cfg.Output.CastFile)
	if err != nil {
		return nil, err
	}

	ff, err := dsp.NewFFmpeg(cfg.DSP, dsp.ExecRunner{})
	if err != nil {
		return nil, fmt.Errorf("init dsp: %w", err)
	}

	var synth tts.Synthesizer = tts.RouterFromConfig(cfg.TTS)
	if cfg.TTS.CacheEnabled && audioCache != nil {
		synth = tts.NewCached(synth, audioCache, cfg.TTS.CacheTTL)
	}

	return NewRenderer(cfg, fs, ttsqueue.NewEngine(synth, cfg.Queue), c, ff), nil
}
