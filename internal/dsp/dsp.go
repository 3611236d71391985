// Package dsp merges, normalizes and measures audio files by driving ffmpeg.
package dsp

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/nikhilbhutani/dialoguecast/internal/config"
)

// Format describes the encoding of a rendered file.
type Format struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Bitrate    string `json:"bitrate"`
}

func DefaultFormat() Format {
	return Format{Codec: "libmp3lame", SampleRate: 44100, Channels: 2, Bitrate: "192k"}
}

// Silence is the gap inserted between consecutive segments.
type Silence struct {
	Duration time.Duration `json:"duration"`
}

// Normalization holds loudness targets in LUFS and dBTP/dBFS.
type Normalization struct {
	TargetLUFS  float64 `json:"target_lufs"`
	MaxTruePeak float64 `json:"max_true_peak"`
	Ceiling     float64 `json:"ceiling"`
}

func DefaultNormalization() Normalization {
	return Normalization{TargetLUFS: -16, MaxTruePeak: -1.0, Ceiling: -0.1}
}

// Metrics are objective measurements of one file.
//
// Duration comes from the container header, PeakLevel from loudnorm's true
// peak (input_tp), RMSLevel from astats' overall RMS level, LUFS from
// loudnorm's integrated loudness (input_i), LoudnessRange from input_lra and
// Threshold from input_thresh.
type Metrics struct {
	Duration      float64 `json:"duration_seconds"`
	PeakLevel     float64 `json:"peak_level_dbtp"`
	RMSLevel      float64 `json:"rms_level_dbfs"`
	LUFS          float64 `json:"lufs"`
	LoudnessRange float64 `json:"loudness_range_lu"`
	Threshold     float64 `json:"threshold_lufs"`
}

// MarshalJSON writes non-finite levels, such as the -inf loudness of a silent
// file, as null.
func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Duration      *float64 `json:"duration_seconds"`
		PeakLevel     *float64 `json:"peak_level_dbtp"`
		RMSLevel      *float64 `json:"rms_level_dbfs"`
		LUFS          *float64 `json:"lufs"`
		LoudnessRange *float64 `json:"loudness_range_lu"`
		Threshold     *float64 `json:"threshold_lufs"`
	}{
		Duration:      Finite(m.Duration),
		PeakLevel:     Finite(m.PeakLevel),
		RMSLevel:      Finite(m.RMSLevel),
		LUFS:          Finite(m.LUFS),
		LoudnessRange: Finite(m.LoudnessRange),
		Threshold:     Finite(m.Threshold),
	})
}

// Finite returns nil for infinities and NaN, which JSON cannot encode.
func Finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// Processor is the audio processing port.
type Processor interface {
	// Merge concatenates inputs in the given order into output.
	Merge(ctx context.Context, inputs []string, output string, format Format, silence *Silence) (string, error)
	Normalize(ctx context.Context, input, output string, settings Normalization) (string, error)
	Analyze(ctx context.Context, path string) (*Metrics, error)
}

// FormatFrom builds the output format from configuration.
func FormatFrom(cfg config.DSPConfig) Format {
	f := DefaultFormat()
	if cfg.Codec != "" {
		f.Codec = cfg.Codec
	}
	if cfg.SampleRate > 0 {
		f.SampleRate = cfg.SampleRate
	}
	if cfg.Channels > 0 {
		f.Channels = cfg.Channels
	}
	if cfg.Bitrate != "" {
		f.Bitrate = cfg.Bitrate
	}
	return f
}

// SilenceFrom returns nil when no silence is configured.
func SilenceFrom(cfg config.DSPConfig) *Silence {
	if cfg.Silence <= 0 {
		return nil
	}
	return &Silence{Duration: cfg.Silence}
}

func NormalizationFrom(cfg config.DSPConfig) Normalization {
	return Normalization{
		TargetLUFS:  cfg.TargetLUFS,
		MaxTruePeak: cfg.MaxTruePeak,
		Ceiling:     cfg.Ceiling,
	}
}
