package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds configuration for the OpenAI speech backend.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // default: "https://api.openai.com/v1"
	Model      string // default: "tts-1"
	HTTPClient *http.Client
}

// OpenAI synthesizes speech with the OpenAI audio/speech endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI synthesizer with defaults applied.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.Model == "" {
		cfg.Model = string(openai.TTSModel1)
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	} else {
		oc.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &OpenAI{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
	}
}

func (o *OpenAI) Name() string { return string(ProviderOpenAI) }

func (o *OpenAI) modelFor(r OpenAIRequest) string {
	if r.Model != "" {
		return r.Model
	}
	return o.model
}

// Profile names the model that serves req.
func (o *OpenAI) Profile(req Request) string {
	r, ok := req.(OpenAIRequest)
	if !ok {
		return ""
	}
	return "model=" + o.modelFor(r)
}

func (o *OpenAI) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	r, ok := req.(OpenAIRequest)
	if !ok {
		return nil, fmt.Errorf("openai synthesizer cannot serve %s request", req.Provider())
	}
	if r.Voice == "" {
		return nil, fmt.Errorf("openai request for %q has no voice", r.Metadata.CharacterID)
	}

	model := o.modelFor(r)
	format := r.Format
	if format == "" {
		format = FormatMP3
	}

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(model),
		Input:          r.Text,
		Voice:          openai.SpeechVoice(r.Voice),
		ResponseFormat: openai.SpeechResponseFormat(format),
		Speed:          r.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	return &Audio{
		Data:        data,
		ContentType: contentType(format),
		Provider:    ProviderOpenAI,
		VoiceID:     r.Voice,
		Model:       model,
		Characters:  utf8.RuneCountInString(r.Text),
		Metadata:    r.Metadata,
		CreatedAt:   time.Now(),
	}, nil
}

func contentType(f Format) string {
	switch f {
	case FormatWAV:
		return "audio/wav"
	case FormatOpus:
		return "audio/ogg"
	case FormatAAC:
		return "audio/aac"
	case FormatFLAC:
		return "audio/flac"
	case FormatPCM:
		return "audio/L16"
	default:
		return "audio/mpeg"
	}
}
