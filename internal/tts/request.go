package tts

// Format is the encoding requested from a provider.
type Format string

const (
	FormatMP3  Format = "mp3"
	FormatWAV  Format = "wav"
	FormatOpus Format = "opus"
	FormatAAC  Format = "aac"
	FormatFLAC Format = "flac"
	FormatPCM  Format = "pcm"
)

// Metadata travels with a request and its result so callers can reconcile
// outcomes with dialogue lines.
type Metadata struct {
	CharacterID  string            `json:"character_id"`
	SegmentIndex int               `json:"segment_index"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// RequestBase holds the fields shared by every provider request.
type RequestBase struct {
	Text     string
	Format   Format // empty means the provider default
	Metadata Metadata
}

// Request is implemented by OpenAIRequest and ElevenLabsRequest only.
type Request interface {
	Provider() Provider
	Base() RequestBase
	VoiceID() string
	sealed()
}

type OpenAIRequest struct {
	RequestBase
	Voice string
	Model string // default: "tts-1"
	Speed float64
}

func (r OpenAIRequest) Provider() Provider { return ProviderOpenAI }
func (r OpenAIRequest) Base() RequestBase  { return r.RequestBase }
func (r OpenAIRequest) VoiceID() string    { return r.Voice }
func (OpenAIRequest) sealed()              {}

type VoiceSettings struct {
	Stability       float64 `json:"stability" yaml:"stability"`
	SimilarityBoost float64 `json:"similarity_boost" yaml:"similarity_boost"`
	Style           float64 `json:"style" yaml:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost" yaml:"use_speaker_boost"`
}

type ElevenLabsRequest struct {
	RequestBase
	Voice    string
	ModelID  string // default: "eleven_multilingual_v2"
	Settings *VoiceSettings
}

func (r ElevenLabsRequest) Provider() Provider { return ProviderElevenLabs }
func (r ElevenLabsRequest) Base() RequestBase  { return r.RequestBase }
func (r ElevenLabsRequest) VoiceID() string    { return r.Voice }
func (ElevenLabsRequest) sealed()              {}
