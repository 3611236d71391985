package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"
)

const (
	defaultElevenLabsBaseURL = "https://api.elevenlabs.io/v1"
	defaultElevenLabsModel   = "eleven_multilingual_v2"
	defaultElevenLabsFormat  = "mp3_44100_128"
)

// ElevenLabsConfig holds configuration for the ElevenLabs backend.
type ElevenLabsConfig struct {
	APIKey       string
	BaseURL      string // default: "https://api.elevenlabs.io/v1"
	ModelID      string // default: "eleven_multilingual_v2"
	OutputFormat string // default: "mp3_44100_128"
	HTTPClient   *http.Client
}

// ElevenLabs synthesizes speech with the ElevenLabs text-to-speech API.
type ElevenLabs struct {
	cfg        ElevenLabsConfig
	httpClient *http.Client
}

type elevenLabsBody struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *VoiceSettings `json:"voice_settings,omitempty"`
}

func NewElevenLabs(cfg ElevenLabsConfig) *ElevenLabs {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultElevenLabsBaseURL
	}
	if cfg.ModelID == "" {
		cfg.ModelID = defaultElevenLabsModel
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = defaultElevenLabsFormat
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &ElevenLabs{cfg: cfg, httpClient: client}
}

func (e *ElevenLabs) Name() string { return string(ProviderElevenLabs) }

func (e *ElevenLabs) modelFor(r ElevenLabsRequest) string {
	if r.ModelID != "" {
		return r.ModelID
	}
	return e.cfg.ModelID
}

// Profile names the model and output format that serve req.
func (e *ElevenLabs) Profile(req Request) string {
	r, ok := req.(ElevenLabsRequest)
	if !ok {
		return ""
	}
	return "model=" + e.modelFor(r) + ";format=" + e.cfg.OutputFormat
}

func (e *ElevenLabs) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	r, ok := req.(ElevenLabsRequest)
	if !ok {
		return nil, fmt.Errorf("elevenlabs synthesizer cannot serve %s request", req.Provider())
	}
	if r.Voice == "" {
		return nil, fmt.Errorf("elevenlabs request for %q has no voice id", r.Metadata.CharacterID)
	}

	modelID := e.modelFor(r)

	data, err := json.Marshal(elevenLabsBody{
		Text:          r.Text,
		ModelID:       modelID,
		VoiceSettings: r.Settings,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s?output_format=%s",
		e.cfg.BaseURL, url.PathEscape(r.Voice), url.QueryEscape(e.cfg.OutputFormat))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("xi-api-key", e.cfg.APIKey)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Provider: ProviderElevenLabs, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "audio/mpeg"
	}

	return &Audio{
		Data:        audio,
		ContentType: ct,
		Provider:    ProviderElevenLabs,
		VoiceID:     r.Voice,
		Model:       modelID,
		Characters:  utf8.RuneCountInString(r.Text),
		Metadata:    r.Metadata,
		CreatedAt:   time.Now(),
	}, nil
}
