package tts

import (
	"context"
	"fmt"

	"github.com/nikhilbhutani/dialoguecast/internal/config"
)

// Router dispatches each request to the synthesizer registered for its
// provider.
type Router struct {
	providers map[Provider]Synthesizer
}

func NewRouter() *Router {
	return &Router{providers: make(map[Provider]Synthesizer)}
}

func (r *Router) Register(p Provider, s Synthesizer) {
	r.providers[p] = s
}

func (r *Router) Provider(p Provider) (Synthesizer, error) {
	s, ok := r.providers[p]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", p)
	}
	return s, nil
}

func (r *Router) Name() string { return "router" }

func (r *Router) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	s, err := r.Provider(req.Provider())
	if err != nil {
		return nil, err
	}
	return s.Synthesize(ctx, req)
}

// Profile delegates to the synthesizer registered for req's provider.
func (r *Router) Profile(req Request) string {
	s, ok := r.providers[req.Provider()]
	if !ok {
		return ""
	}
	if p, ok := s.(Profiler); ok {
		return p.Profile(req)
	}
	return ""
}

// RouterFromConfig registers every provider that has an API key.
func RouterFromConfig(cfg config.TTSConfig) *Router {
	r := NewRouter()
	if cfg.OpenAIKey != "" {
		r.Register(ProviderOpenAI, NewOpenAI(OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		}))
	}
	if cfg.ElevenLabsKey != "" {
		r.Register(ProviderElevenLabs, NewElevenLabs(ElevenLabsConfig{
			APIKey:  cfg.ElevenLabsKey,
			BaseURL: cfg.ElevenLabsBaseURL,
			ModelID: cfg.ElevenLabsModel,
		}))
	}
	return r
}
