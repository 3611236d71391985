package tts

// costPerKChar stores list prices in USD per 1K input characters.
var costPerKChar = map[string]float64{
	// OpenAI
	"tts-1":           0.015,
	"tts-1-hd":        0.030,
	"gpt-4o-mini-tts": 0.012,

	// ElevenLabs, pay-as-you-go API pricing
	"eleven_multilingual_v2": 0.30,
	"eleven_turbo_v2_5":      0.15,
	"eleven_flash_v2_5":      0.15,
}

// CalculateCost estimates the price of synthesizing characters with model.
// Unknown models cost 0.
func CalculateCost(model string, characters int) float64 {
	price, ok := costPerKChar[model]
	if !ok {
		return 0
	}
	return float64(characters) / 1000.0 * price
}

// Usage accumulates synthesized characters and their estimated cost.
type Usage struct {
	Characters int                  `json:"characters"`
	CostUSD    float64              `json:"cost_usd"`
	ByProvider map[Provider]float64 `json:"cost_by_provider,omitempty"`
}

func (u *Usage) Add(a *Audio) {
	cost := CalculateCost(a.Model, a.Characters)
	u.Characters += a.Characters
	u.CostUSD += cost
	if u.ByProvider == nil {
		u.ByProvider = make(map[Provider]float64)
	}
	u.ByProvider[a.Provider] += cost
}
