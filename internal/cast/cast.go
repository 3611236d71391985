// Package cast loads the characters of a series and the voices they speak
// with on each provider.
package cast

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nikhilbhutani/dialoguecast/internal/dialogue"
	"github.com/nikhilbhutani/dialoguecast/internal/storage"
	"github.com/nikhilbhutani/dialoguecast/internal/tts"
)

type OpenAIVoice struct {
	Voice string  `yaml:"voice"`
	Model string  `yaml:"model"`
	Speed float64 `yaml:"speed"`
}

type ElevenLabsVoice struct {
	VoiceID  string             `yaml:"voice_id"`
	ModelID  string             `yaml:"model_id"`
	Settings *tts.VoiceSettings `yaml:"settings"`
}

type Voices struct {
	OpenAI     *OpenAIVoice     `yaml:"openai"`
	ElevenLabs *ElevenLabsVoice `yaml:"elevenlabs"`
}

type Character struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Voices Voices `yaml:"voices"`
}

type Cast struct {
	Format     tts.Format  `yaml:"format"`
	Characters []Character `yaml:"characters"`
}

func Load(fs storage.FileSystem, path string) (*Cast, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cast file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Cast, error) {
	var c Cast
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse cast file: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Cast) validate() error {
	seen := make(map[string]bool)
	for i, ch := range c.Characters {
		if ch.ID == "" {
			return fmt.Errorf("cast character %d has no id", i)
		}
		id := strings.ToLower(ch.ID)
		if seen[id] {
			return fmt.Errorf("cast character %q defined twice", ch.ID)
		}
		seen[id] = true
	}
	return nil
}

// Lookup finds a character by id or display name, ignoring case.
func (c *Cast) Lookup(speaker string) (*Character, bool) {
	for i := range c.Characters {
		ch := &c.Characters[i]
		if strings.EqualFold(ch.ID, speaker) || strings.EqualFold(ch.Name, speaker) {
			return ch, true
		}
	}
	return nil, false
}

// Request builds the synthesis request for one dialogue line on provider p.
// A speaker without voice settings for p is a configuration error.
func (c *Cast) Request(p tts.Provider, index int, line dialogue.Line) (tts.Request, error) {
	ch, ok := c.Lookup(line.Speaker)
	if !ok {
		return nil, fmt.Errorf("no cast entry for speaker %q", line.Speaker)
	}

	base := tts.RequestBase{
		Text:   line.Text,
		Format: c.Format,
		Metadata: tts.Metadata{
			CharacterID:  strings.ToLower(ch.ID),
			SegmentIndex: index,
		},
	}

	switch p {
	case tts.ProviderOpenAI:
		v := ch.Voices.OpenAI
		if v == nil || v.Voice == "" {
			return nil, fmt.Errorf("no OpenAI voice configuration found for %s", ch.ID)
		}
		return tts.OpenAIRequest{RequestBase: base, Voice: v.Voice, Model: v.Model, Speed: v.Speed}, nil
	case tts.ProviderElevenLabs:
		v := ch.Voices.ElevenLabs
		if v == nil || v.VoiceID == "" {
			return nil, fmt.Errorf("no ElevenLabs voice configuration found for %s", ch.ID)
		}
		return tts.ElevenLabsRequest{RequestBase: base, Voice: v.VoiceID, ModelID: v.ModelID, Settings: v.Settings}, nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", p)
	}
}
