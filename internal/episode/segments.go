package episode

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nikhilbhutani/dialoguecast/internal/dialogue"
	"github.com/nikhilbhutani/dialoguecast/internal/storage"
	"github.com/nikhilbhutani/dialoguecast/internal/tts"
)

var segmentPattern = regexp.MustCompile(`(?i)^segment_(\d+)_([a-z]+)\.mp3$`)

// Segment is one synthesized dialogue line on disk.
type Segment struct {
	Path        string       `json:"path"`
	Provider    tts.Provider `json:"provider"`
	CharacterID string       `json:"character_id"`
	Index       int          `json:"index"`
}

// ParseSegmentName extracts the index and speaker encoded in a segment file
// name.
func ParseSegmentName(name string) (index int, speaker string, ok bool) {
	m := segmentPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, "", false
	}
	index, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return index, strings.ToLower(m[2]), true
}

func sortByIndex(segments []Segment) {
	slices.SortStableFunc(segments, func(a, b Segment) int { return a.Index - b.Index })
}

// SegmentsExist reports whether the segments directory holds at least one
// segment file.
func SegmentsExist(fs storage.FileSystem, l Layout) (bool, error) {
	ok, err := fs.Exists(l.SegmentsDir())
	if err != nil || !ok {
		return false, err
	}
	names, err := fs.ListDir(l.SegmentsDir())
	if err != nil {
		return false, err
	}
	for _, name := range names {
		if _, _, ok := ParseSegmentName(name); ok {
			return true, nil
		}
	}
	return false, nil
}

// LoadSegments reads previously generated segments ordered by their index.
// Providers are re-derived from the layout's mode. Two files for the same
// index are an error.
func LoadSegments(fs storage.FileSystem, l Layout) ([]Segment, error) {
	names, err := fs.ListDir(l.SegmentsDir())
	if err != nil {
		return nil, fmt.Errorf("load segments: %w", err)
	}

	var segments []Segment
	seen := make(map[int]string)
	for _, name := range names {
		index, speaker, ok := ParseSegmentName(name)
		if !ok {
			continue
		}
		if prev, dup := seen[index]; dup {
			return nil, fmt.Errorf("load segments: index %d has both %s and %s", index, prev, name)
		}
		seen[index] = name
		segments = append(segments, Segment{
			Path:        filepath.Join(l.SegmentsDir(), name),
			Provider:    l.Mode.ProviderFor(index),
			CharacterID: speaker,
			Index:       index,
		})
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("load segments: no segment files in %s", l.SegmentsDir())
	}

	sortByIndex(segments)
	return segments, nil
}

// RemoveSegments deletes every segment file so a regeneration cannot leave
// stale lines behind.
func RemoveSegments(fs storage.FileSystem, l Layout) error {
	ok, err := fs.Exists(l.SegmentsDir())
	if err != nil || !ok {
		return err
	}
	names, err := fs.ListDir(l.SegmentsDir())
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, _, ok := ParseSegmentName(name); ok || name == manifestName {
			if err := fs.Remove(filepath.Join(l.SegmentsDir(), name)); err != nil {
				return err
			}
		}
	}
	return nil
}

const manifestName = "segments.json"

// Manifest records the dialogue the segments on disk were synthesized from.
type Manifest struct {
	SeriesID  string    `json:"series_id"`
	EpisodeID string    `json:"episode_id"`
	Mode      tts.Mode  `json:"mode"`
	Lines     []string  `json:"lines"`
	CreatedAt time.Time `json:"created_at"`
}

// lineDigests fingerprints each line by speaker and text.
func lineDigests(lines []dialogue.Line) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		sum := sha256.Sum256([]byte(strings.ToLower(line.Speaker) + "\x00" + line.Text))
		out[i] = hex.EncodeToString(sum[:8])
	}
	return out
}

func writeManifest(fs storage.FileSystem, l Layout, lines []dialogue.Line, at time.Time) error {
	data, err := json.MarshalIndent(Manifest{
		SeriesID:  l.SeriesID,
		EpisodeID: l.EpisodeID,
		Mode:      l.Mode,
		Lines:     lineDigests(lines),
		CreatedAt: at,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal segments manifest: %w", err)
	}
	if _, err := fs.WriteFile(l.ManifestPath(), data); err != nil {
		return fmt.Errorf("write segments manifest: %w", err)
	}
	return nil
}

// readManifest returns nil when the segments carry no manifest.
func readManifest(fs storage.FileSystem, l Layout) (*Manifest, error) {
	ok, err := fs.Exists(l.ManifestPath())
	if err != nil || !ok {
		return nil, err
	}
	data, err := fs.ReadFile(l.ManifestPath())
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode segments manifest: %w", err)
	}
	return &m, nil
}
