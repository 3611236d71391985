package tts

import (
	"context"
	"fmt"
	"time"
)

// Provider identifies a text-to-speech backend.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderElevenLabs Provider = "elevenlabs"
)

// Mode selects which provider voices each dialogue line.
type Mode string

const (
	ModeOpenAI     Mode = "openai"
	ModeElevenLabs Mode = "elevenlabs"
	ModeMixed      Mode = "mixed_providers"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeOpenAI, ModeElevenLabs, ModeMixed:
		return m, nil
	default:
		return "", fmt.Errorf("unknown provider mode %q", s)
	}
}

// ProviderFor resolves the provider for the line at index. Mixed mode sends
// even lines to OpenAI and odd lines to ElevenLabs.
func (m Mode) ProviderFor(index int) Provider {
	switch m {
	case ModeElevenLabs:
		return ProviderElevenLabs
	case ModeMixed:
		if index%2 == 0 {
			return ProviderOpenAI
		}
		return ProviderElevenLabs
	default:
		return ProviderOpenAI
	}
}

// Providers lists the providers a mode can resolve to.
func (m Mode) Providers() []Provider {
	switch m {
	case ModeElevenLabs:
		return []Provider{ProviderElevenLabs}
	case ModeMixed:
		return []Provider{ProviderOpenAI, ProviderElevenLabs}
	default:
		return []Provider{ProviderOpenAI}
	}
}

// Audio holds synthesized audio and the provider details that produced it.
type Audio struct {
	Data        []byte    `json:"data"`
	ContentType string    `json:"content_type"`
	Provider    Provider  `json:"provider"`
	VoiceID     string    `json:"voice_id"`
	Model       string    `json:"model"`
	Characters  int       `json:"characters"`
	Metadata    Metadata  `json:"metadata"`
	CreatedAt   time.Time `json:"created_at"`
}

// Synthesizer turns one request into audio for exactly one provider.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*Audio, error)
	Name() string
}
