package episode

import (
	"encoding/json"
	"time"

	"github.com/nikhilbhutani/dialoguecast/internal/dialogue"
	"github.com/nikhilbhutani/dialoguecast/internal/dsp"
	"github.com/nikhilbhutani/dialoguecast/internal/tts"
)

// Each context below embeds the previous stage's context by value. A stage
// passes the embedded value through and only sets its own field.

type DialogueContext struct {
	Layout   Layout
	Dialogue dialogue.Dialogue
}

// Audio describes the segments a render mixes.
type Audio struct {
	Segments  []Segment      `json:"segments"`
	Speakers  []string       `json:"speakers"`
	Providers []tts.Provider `json:"providers"`
	Usage     tts.Usage      `json:"usage"`
	Timestamp time.Time      `json:"timestamp"`
}

// DSPContext is the input of the DSP pipeline. Dialogue is nil when segments
// were reloaded from disk.
type DSPContext struct {
	Layout   Layout
	Dialogue *dialogue.Dialogue
	Audio    Audio
}

type MixdownResult struct {
	Path      string       `json:"path"`
	Format    dsp.Format   `json:"format"`
	Silence   *dsp.Silence `json:"silence,omitempty"`
	Segments  int          `json:"segments"`
	Timestamp time.Time    `json:"timestamp"`
}

type MixdownContext struct {
	DSPContext
	Mixdown MixdownResult
}

type NormalizeResult struct {
	Path      string            `json:"path"`
	LUFS      float64           `json:"lufs"`
	Metrics   dsp.Metrics       `json:"metrics"`
	Settings  dsp.Normalization `json:"settings"`
	Timestamp time.Time         `json:"timestamp"`
}

// MarshalJSON writes a non-finite loudness as null.
func (r NormalizeResult) MarshalJSON() ([]byte, error) {
	type plain NormalizeResult
	return json.Marshal(struct {
		plain
		LUFS *float64 `json:"lufs"`
	}{plain: plain(r), LUFS: dsp.Finite(r.LUFS)})
}

type NormalizeContext struct {
	MixdownContext
	Normalize NormalizeResult
}

func summarize(segments []Segment, at time.Time) Audio {
	a := Audio{Segments: segments, Timestamp: at}
	seenSpeaker := map[string]bool{}
	seenProvider := map[tts.Provider]bool{}
	for _, s := range segments {
		if !seenSpeaker[s.CharacterID] {
			seenSpeaker[s.CharacterID] = true
			a.Speakers = append(a.Speakers, s.CharacterID)
		}
		if !seenProvider[s.Provider] {
			seenProvider[s.Provider] = true
			a.Providers = append(a.Providers, s.Provider)
		}
	}
	return a
}
