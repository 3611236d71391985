package dialogue

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/nikhilbhutani/dialoguecast/internal/storage"
)

const maxLineSize = 1024 * 1024

type Line struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type Dialogue struct {
	Lines []Line `json:"lines"`
}

// Speakers returns distinct speakers in order of first appearance.
func (d Dialogue) Speakers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range d.Lines {
		key := strings.ToLower(l.Speaker)
		if !seen[key] {
			seen[key] = true
			out = append(out, l.Speaker)
		}
	}
	return out
}

// Parse reads "Speaker: text" lines. Only the first colon separates speaker
// from text; blank lines and lines without a speaker are skipped. A line too
// long for the scanner is an error rather than a silently shortened dialogue.
func Parse(content string) (Dialogue, error) {
	var d Dialogue
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		raw := strings.TrimSpace(sc.Text())
		speaker, text, ok := strings.Cut(raw, ":")
		if !ok {
			continue
		}
		speaker = strings.TrimSpace(speaker)
		text = strings.TrimSpace(text)
		if speaker == "" || text == "" {
			continue
		}
		d.Lines = append(d.Lines, Line{Speaker: speaker, Text: text})
	}
	if err := sc.Err(); err != nil {
		return Dialogue{}, fmt.Errorf("parse dialogue line %d: %w", len(d.Lines)+1, err)
	}
	return d, nil
}

func Format(d Dialogue) string {
	var b strings.Builder
	for i, l := range d.Lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", l.Speaker, l.Text)
	}
	return b.String()
}

func Load(fs storage.FileSystem, path string) (Dialogue, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return Dialogue{}, fmt.Errorf("load dialogue: %w", err)
	}
	d, err := Parse(string(data))
	if err != nil {
		return Dialogue{}, fmt.Errorf("load dialogue %s: %w", path, err)
	}
	if len(d.Lines) == 0 {
		return Dialogue{}, fmt.Errorf("load dialogue: %s contains no dialogue lines", path)
	}
	return d, nil
}
