package episode

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/nikhilbhutani/dialoguecast/internal/cast"
	"github.com/nikhilbhutani/dialoguecast/internal/dialogue"
	"github.com/nikhilbhutani/dialoguecast/internal/storage"
	"github.com/nikhilbhutani/dialoguecast/internal/tts"
	"github.com/nikhilbhutani/dialoguecast/internal/ttsqueue"
)

// Queue dispatches a batch of synthesis requests. *ttsqueue.Engine
// satisfies it.
type Queue interface {
	Process(ctx context.Context, reqs []tts.Request) (*ttsqueue.Result, error)
}

// Generator turns a dialogue into one audio segment file per line.
type Generator struct {
	queue       Queue
	cast        *cast.Cast
	fs          storage.FileSystem
	maxSegments int
	now         func() time.Time
}

// NewGenerator builds a generator. maxSegments caps the number of lines
// synthesized; zero means all lines.
func NewGenerator(queue Queue, c *cast.Cast, fs storage.FileSystem, maxSegments int) *Generator {
	return &Generator{queue: queue, cast: c, fs: fs, maxSegments: maxSegments, now: time.Now}
}

// Generate synthesizes every line of in.Dialogue with the provider the
// layout's mode assigns to its index. Any failed line fails the step.
func (g *Generator) Generate(ctx context.Context, in DialogueContext) (DSPContext, error) {
	segments, usage, err := g.generate(ctx, in)
	if err != nil {
		return DSPContext{}, fmt.Errorf("Failed to generate audio: %w", err)
	}

	audio := summarize(segments, g.now())
	audio.Usage = usage
	d := in.Dialogue
	return DSPContext{Layout: in.Layout, Dialogue: &d, Audio: audio}, nil
}

// lines returns the dialogue lines a render synthesizes.
func (g *Generator) lines(d dialogue.Dialogue) []dialogue.Line {
	if g.maxSegments > 0 && len(d.Lines) > g.maxSegments {
		return d.Lines[:g.maxSegments]
	}
	return d.Lines
}

// speaker returns the segment slug for line: the cast id when the speaker is
// a known character, the speaker label otherwise.
func (g *Generator) speaker(line dialogue.Line) string {
	if ch, ok := g.cast.Lookup(line.Speaker); ok {
		return SpeakerSlug(ch.ID)
	}
	return SpeakerSlug(line.Speaker)
}

// mismatch reports why segments cannot stand in for lines, or "" when they
// can. Segments must cover indexes 0..len(lines)-1 with the speaker of each
// line. When the segments carry a manifest, its line fingerprints must also
// match.
func (g *Generator) mismatch(segments []Segment, manifest *Manifest, lines []dialogue.Line) string {
	if len(segments) != len(lines) {
		return fmt.Sprintf("%d segments on disk for %d dialogue lines", len(segments), len(lines))
	}
	for i, s := range segments {
		if s.Index != i {
			return fmt.Sprintf("segment %d missing", i)
		}
		if want := g.speaker(lines[i]); s.CharacterID != want {
			return fmt.Sprintf("segment %d is spoken by %s, dialogue has %s", i, s.CharacterID, want)
		}
	}
	if manifest != nil && !slices.Equal(manifest.Lines, lineDigests(lines)) {
		return "dialogue text changed since segments were synthesized"
	}
	return ""
}

func (g *Generator) generate(ctx context.Context, in DialogueContext) ([]Segment, tts.Usage, error) {
	lines := g.lines(in.Dialogue)
	if len(lines) == 0 {
		return nil, tts.Usage{}, fmt.Errorf("dialogue has no lines")
	}

	reqs := make([]tts.Request, 0, len(lines))
	for i, line := range lines {
		req, err := g.cast.Request(in.Layout.Mode.ProviderFor(i), i, line)
		if err != nil {
			return nil, tts.Usage{}, fmt.Errorf("line %d: %w", i, err)
		}
		reqs = append(reqs, req)
	}

	if err := g.fs.EnsureDir(in.Layout.SegmentsDir()); err != nil {
		return nil, tts.Usage{}, err
	}

	slog.Info("synthesizing dialogue",
		"mode", in.Layout.Mode,
		"lines", len(reqs),
		"speakers", len(in.Dialogue.Speakers()),
	)

	res, err := g.queue.Process(ctx, reqs)
	if err != nil {
		return nil, tts.Usage{}, err
	}
	if len(res.Failures) > 0 {
		return nil, tts.Usage{}, failureError(res.Failures, len(reqs))
	}

	if err := RemoveSegments(g.fs, in.Layout); err != nil {
		return nil, tts.Usage{}, fmt.Errorf("remove stale segments: %w", err)
	}

	// Results are matched back to lines through their metadata, not their
	// position in the result.
	var usage tts.Usage
	segments := make([]Segment, 0, len(res.Successes))
	written := make(map[int]bool, len(res.Successes))
	for _, s := range res.Successes {
		meta := s.Request.Base().Metadata
		if written[meta.SegmentIndex] {
			return nil, tts.Usage{}, fmt.Errorf("segment %d synthesized twice", meta.SegmentIndex)
		}
		path, err := g.fs.WriteFile(in.Layout.SegmentPath(meta.SegmentIndex, meta.CharacterID), s.Audio.Data)
		if err != nil {
			return nil, tts.Usage{}, fmt.Errorf("write segment %d: %w", meta.SegmentIndex, err)
		}
		written[meta.SegmentIndex] = true
		usage.Add(s.Audio)
		segments = append(segments, Segment{
			Path:        path,
			Provider:    s.Request.Provider(),
			CharacterID: SpeakerSlug(meta.CharacterID),
			Index:       meta.SegmentIndex,
		})
	}
	if len(segments) != len(reqs) {
		return nil, tts.Usage{}, fmt.Errorf("expected %d segments, got %d", len(reqs), len(segments))
	}

	sortByIndex(segments)
	if err := writeManifest(g.fs, in.Layout, lines, g.now()); err != nil {
		return nil, tts.Usage{}, err
	}
	slog.Info("synthesis usage", "characters", usage.Characters, "cost_usd", usage.CostUSD)
	return segments, usage, nil
}

func failureError(failures []ttsqueue.Failure, total int) error {
	msgs := make([]string, 0, len(failures))
	for _, f := range failures {
		meta := f.Request.Base().Metadata
		msgs = append(msgs, fmt.Sprintf("segment %d (%s): %s", meta.SegmentIndex, meta.CharacterID, f.Message()))
	}
	return fmt.Errorf("synthesis failed for %d of %d lines: %s", len(failures), total, strings.Join(msgs, "; "))
}
