package episode

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/nikhilbhutani/dialoguecast/internal/storage"
	"github.com/nikhilbhutani/dialoguecast/internal/tts"
)

// Layout computes where a render reads its input and writes its artifacts.
type Layout struct {
	Root      string
	Language  string
	Mode      tts.Mode
	SeriesID  string
	EpisodeID string
}

func (l Layout) LanguageDir() string { return filepath.Join(l.Root, l.Language) }

func (l Layout) DialoguePath() string { return filepath.Join(l.LanguageDir(), "dialogue.txt") }

func (l Layout) ProviderDir() string { return filepath.Join(l.LanguageDir(), string(l.Mode)) }

func (l Layout) SegmentsDir() string { return filepath.Join(l.ProviderDir(), "segments") }

func (l Layout) SegmentPath(index int, characterID string) string {
	return filepath.Join(l.SegmentsDir(), fmt.Sprintf("segment_%d_%s.mp3", index, SpeakerSlug(characterID)))
}

func (l Layout) ManifestPath() string { return filepath.Join(l.SegmentsDir(), manifestName) }

func (l Layout) prefix() string {
	return fmt.Sprintf("%s_%s_%s_%s", l.Language, l.SeriesID, l.EpisodeID, l.Mode)
}

func (l Layout) RawMixPath() string {
	return filepath.Join(l.ProviderDir(), l.prefix()+"_raw.mp3")
}

func (l Layout) NormalizedPath() string {
	return filepath.Join(l.ProviderDir(), l.prefix()+"_normalized.mp3")
}

func (l Layout) ReportPath() string { return filepath.Join(l.ProviderDir(), "render.json") }

// SpeakerSlug keeps only lowercase letters so segment names stay parseable.
func SpeakerSlug(characterID string) string {
	slug := strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		if r >= 'a' && r <= 'z' {
			return r
		}
		return -1
	}, characterID)
	if slug == "" {
		return "speaker"
	}
	return slug
}

// EnsureStructure creates the directories a render writes into.
func EnsureStructure(fs storage.FileSystem, l Layout) error {
	for _, dir := range []string{l.LanguageDir(), l.ProviderDir(), l.SegmentsDir()} {
		if err := fs.EnsureDir(dir); err != nil {
			return fmt.Errorf("ensure output structure: %w", err)
		}
	}
	return nil
}
