package episode

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/nikhilbhutani/dialoguecast/internal/cast"
	"github.com/nikhilbhutani/dialoguecast/internal/config"
	"github.com/nikhilbhutani/dialoguecast/internal/dialogue"
	"github.com/nikhilbhutani/dialoguecast/internal/dsp"
	"github.com/nikhilbhutani/dialoguecast/internal/storage"
	"github.com/nikhilbhutani/dialoguecast/internal/tts"
	"github.com/nikhilbhutani/dialoguecast/internal/ttsqueue"
)

const testCast = `
characters:
  - id: Alice
    voices:
      openai: {voice: nova}
      elevenlabs: {voice_id: el-alice}
  - id: Bob
    voices:
      openai: {voice: onyx}
      elevenlabs: {voice_id: el-bob}
  - id: Dr. Who
    name: The Doctor
    voices:
      openai: {voice: echo}
      elevenlabs: {voice_id: el-who}
`

type fakeSynth struct {
	mu    sync.Mutex
	calls []tts.Request
	fail  map[int]error
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Synthesize(_ context.Context, req tts.Request) (*tts.Audio, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	base := req.Base()
	if err := f.fail[base.Metadata.SegmentIndex]; err != nil {
		return nil, err
	}
	return &tts.Audio{
		Data:       []byte(string(req.Provider()) + ":" + base.Text),
		Provider:   req.Provider(),
		VoiceID:    req.VoiceID(),
		Model:      "tts-1",
		Characters: len(base.Text),
		Metadata:   base.Metadata,
	}, nil
}

type fakeProcessor struct {
	mergeInputs []string
	mergeOutput string
	normalized  string
	analyzed    string
	mergeErr    error
	analyzeErr  error
	metrics     *dsp.Metrics
}

func (p *fakeProcessor) Merge(_ context.Context, inputs []string, output string, _ dsp.Format, _ *dsp.Silence) (string, error) {
	if p.mergeErr != nil {
		return "", p.mergeErr
	}
	p.mergeInputs = inputs
	p.mergeOutput = output
	return output, nil
}

func (p *fakeProcessor) Normalize(_ context.Context, _, output string, _ dsp.Normalization) (string, error) {
	p.normalized = output
	return output, nil
}

func (p *fakeProcessor) Analyze(_ context.Context, path string) (*dsp.Metrics, error) {
	if p.analyzeErr != nil {
		return nil, p.analyzeErr
	}
	p.analyzed = path
	if p.metrics != nil {
		return p.metrics, nil
	}
	return &dsp.Metrics{Duration: 4.5, PeakLevel: -1.2, RMSLevel: -20, LUFS: -16.1, LoudnessRange: 3, Threshold: -26}, nil
}

func testConfig(mode tts.Mode) *config.Config {
	return &config.Config{
		DSP: config.DSPConfig{TargetLUFS: -16, MaxTruePeak: -1, Ceiling: -0.1},
		Output: config.OutputConfig{
			Dir:       "out",
			Language:  "en",
			Provider:  string(mode),
			SeriesID:  "s1",
			EpisodeID: "e1",
		},
	}
}

type fixture struct {
	fs    *storage.Local
	synth *fakeSynth
	proc  *fakeProcessor
	r     *Renderer
	job   Job
}

func newFixture(t *testing.T, mode tts.Mode) *fixture {
	t.Helper()
	c, err := cast.Parse([]byte(testCast))
	if err != nil {
		t.Fatalf("parse cast: %v", err)
	}
	cfg := testConfig(mode)
	fs := storage.NewWithFs(afero.NewMemMapFs())
	synth := &fakeSynth{fail: map[int]error{}}
	qcfg := ttsqueue.DefaultConfig()
	qcfg.RetryDelay = time.Millisecond
	proc := &fakeProcessor{}

	job, err := JobFromConfig(cfg.Output)
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	return &fixture{
		fs:    fs,
		synth: synth,
		proc:  proc,
		r:     NewRenderer(cfg, fs, ttsqueue.NewEngine(synth, qcfg), c, proc),
		job:   job,
	}
}

func (f *fixture) writeDialogue(t *testing.T, content string) {
	t.Helper()
	if _, err := f.fs.WriteFile(f.r.Layout(f.job).DialoguePath(), []byte(content)); err != nil {
		t.Fatalf("write dialogue: %v", err)
	}
}

func TestRenderMixedProviders(t *testing.T) {
	f := newFixture(t, tts.ModeMixed)
	f.writeDialogue(t, "Alice: Hello there\nBob: Hi Alice\n")

	report, err := f.r.Render(context.Background(), f.job)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	layout := f.r.Layout(f.job)
	wantSegments := []Segment{
		{Path: filepath.Join("out", "en", "mixed_providers", "segments", "segment_0_alice.mp3"), Provider: tts.ProviderOpenAI, CharacterID: "alice", Index: 0},
		{Path: filepath.Join("out", "en", "mixed_providers", "segments", "segment_1_bob.mp3"), Provider: tts.ProviderElevenLabs, CharacterID: "bob", Index: 1},
	}
	if diff := cmp.Diff(wantSegments, report.Audio.Segments); diff != "" {
		t.Fatalf("segments mismatch (-want +got):\n%s", diff)
	}

	data, err := f.fs.ReadFile(wantSegments[1].Path)
	if err != nil {
		t.Fatalf("read segment: %v", err)
	}
	if string(data) != "elevenlabs:Hi Alice" {
		t.Fatalf("unexpected segment content %q", data)
	}

	if diff := cmp.Diff([]string{wantSegments[0].Path, wantSegments[1].Path}, f.proc.mergeInputs); diff != "" {
		t.Fatalf("merge inputs mismatch (-want +got):\n%s", diff)
	}
	if f.proc.mergeOutput != filepath.Join("out", "en", "mixed_providers", "en_s1_e1_mixed_providers_raw.mp3") {
		t.Fatalf("unexpected raw mix path %s", f.proc.mergeOutput)
	}
	if f.proc.analyzed != layout.NormalizedPath() || report.Normalize.Path != layout.NormalizedPath() {
		t.Fatalf("expected analysis of %s, got %s", layout.NormalizedPath(), f.proc.analyzed)
	}
	if report.Normalize.LUFS != -16.1 {
		t.Fatalf("expected lufs -16.1, got %v", report.Normalize.LUFS)
	}
	if diff := cmp.Diff([]tts.Provider{tts.ProviderOpenAI, tts.ProviderElevenLabs}, report.Audio.Providers); diff != "" {
		t.Fatalf("providers mismatch (-want +got):\n%s", diff)
	}

	if report.Audio.Usage.Characters != len("Hello there")+len("Hi Alice") {
		t.Fatalf("unexpected usage %+v", report.Audio.Usage)
	}

	raw, err := f.fs.ReadFile(layout.ReportPath())
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var written Report
	if err := json.Unmarshal(raw, &written); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if written.Mode != tts.ModeMixed || len(written.Audio.Segments) != 2 {
		t.Fatalf("unexpected report %+v", written)
	}
}

func TestRenderFailsOnAnySynthesisFailure(t *testing.T) {
	f := newFixture(t, tts.ModeOpenAI)
	f.writeDialogue(t, "Alice: one\nBob: two\n")
	f.synth.fail[1] = errors.New("voice not found")

	_, err := f.r.Render(context.Background(), f.job)
	if err == nil {
		t.Fatal("expected render to fail")
	}
	for _, want := range []string{"Failed to generate audio", "synthesis failed for 1 of 2 lines", "segment 1 (bob): voice not found"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
	if f.proc.mergeInputs != nil {
		t.Fatal("mixdown must not run after a synthesis failure")
	}
}

func TestRenderReusesSegments(t *testing.T) {
	f := newFixture(t, tts.ModeMixed)
	f.job.ReuseSegments = true
	f.writeDialogue(t, "Alice: one\nBob: two\nAlice: three\n")
	layout := f.r.Layout(f.job)
	for _, name := range []string{"segment_2_alice.mp3", "segment_1_bob.mp3", "segment_0_alice.mp3", "notes.txt"} {
		if _, err := f.fs.WriteFile(filepath.Join(layout.SegmentsDir(), name), []byte("x")); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	report, err := f.r.Render(context.Background(), f.job)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(f.synth.calls) != 0 {
		t.Fatalf("expected no synthesis, got %d calls", len(f.synth.calls))
	}
	if !report.Reused {
		t.Fatal("expected report to mark reused segments")
	}

	want := []string{
		filepath.Join(layout.SegmentsDir(), "segment_0_alice.mp3"),
		filepath.Join(layout.SegmentsDir(), "segment_1_bob.mp3"),
		filepath.Join(layout.SegmentsDir(), "segment_2_alice.mp3"),
	}
	if diff := cmp.Diff(want, f.proc.mergeInputs); diff != "" {
		t.Fatalf("merge order mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderRegeneratesSegmentsOfAnotherDialogue(t *testing.T) {
	f := newFixture(t, tts.ModeMixed)
	f.writeDialogue(t, "Alice: Hello there\nBob: Hi Alice\n")
	if _, err := f.r.Render(context.Background(), f.job); err != nil {
		t.Fatalf("render e1: %v", err)
	}

	next := f.job
	next.EpisodeID = "e2"
	next.ReuseSegments = true
	f.writeDialogue(t, "Bob: Welcome back\nAlice: Thanks\nBob: Let's start\n")
	report, err := f.r.Render(context.Background(), next)
	if err != nil {
		t.Fatalf("render e2: %v", err)
	}
	if report.Reused {
		t.Fatal("segments of another dialogue must not be reused")
	}
	if len(f.synth.calls) != 5 {
		t.Fatalf("expected 3 new synthesis calls, got %d in total", len(f.synth.calls)-2)
	}
	if len(f.proc.mergeInputs) != 3 {
		t.Fatalf("expected 3 merged segments, got %v", f.proc.mergeInputs)
	}

	// Same speakers in the same order, different words.
	f.writeDialogue(t, "Bob: Welcome home\nAlice: Thanks\nBob: Let's start\n")
	if report, err = f.r.Render(context.Background(), next); err != nil {
		t.Fatalf("render edited e2: %v", err)
	}
	if report.Reused || len(f.synth.calls) != 8 {
		t.Fatalf("expected an edited dialogue to be regenerated, reused=%v calls=%d", report.Reused, len(f.synth.calls))
	}

	if report, err = f.r.Render(context.Background(), next); err != nil {
		t.Fatalf("render unchanged e2: %v", err)
	}
	if !report.Reused || len(f.synth.calls) != 8 {
		t.Fatalf("expected an unchanged dialogue to be reused, reused=%v calls=%d", report.Reused, len(f.synth.calls))
	}
}

func TestRenderRemovesStaleSegments(t *testing.T) {
	f := newFixture(t, tts.ModeOpenAI)
	f.writeDialogue(t, "Alice: one\nBob: two\nAlice: three\n")
	if _, err := f.r.Render(context.Background(), f.job); err != nil {
		t.Fatalf("first render: %v", err)
	}

	f.writeDialogue(t, "Bob: one\nBob: two\n")
	if _, err := f.r.Render(context.Background(), f.job); err != nil {
		t.Fatalf("second render: %v", err)
	}

	layout := f.r.Layout(f.job)
	names, err := f.fs.ListDir(layout.SegmentsDir())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if diff := cmp.Diff([]string{"segment_0_bob.mp3", "segment_1_bob.mp3", "segments.json"}, names); diff != "" {
		t.Fatalf("segments dir mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderReuseReportsSameSegments(t *testing.T) {
	f := newFixture(t, tts.ModeMixed)
	f.writeDialogue(t, "The Doctor: Run\nAlice: Where?\n")
	fresh, err := f.r.Render(context.Background(), f.job)
	if err != nil {
		t.Fatalf("fresh render: %v", err)
	}

	f.job.ReuseSegments = true
	reused, err := f.r.Render(context.Background(), f.job)
	if err != nil {
		t.Fatalf("reuse render: %v", err)
	}
	if !reused.Reused {
		t.Fatal("expected segments to be reused")
	}
	if diff := cmp.Diff(fresh.Audio.Segments, reused.Audio.Segments); diff != "" {
		t.Fatalf("segments differ between fresh and reused render (-fresh +reused):\n%s", diff)
	}
	if fresh.Audio.Segments[0].CharacterID != "drwho" {
		t.Fatalf("expected slugged character id, got %q", fresh.Audio.Segments[0].CharacterID)
	}
}

func TestRenderSerializesSharedSegmentsDir(t *testing.T) {
	f := newFixture(t, tts.ModeOpenAI)
	f.writeDialogue(t, "Alice: one\n")

	release, err := f.r.lock(context.Background(), f.r.Layout(f.job))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	other := f.job
	other.EpisodeID = "e2"
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.r.Render(ctx, other); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected render to wait for the running one, got %v", err)
	}

	release()
	if _, err := f.r.Render(context.Background(), other); err != nil {
		t.Fatalf("render after release: %v", err)
	}
}

func TestRenderSilentMix(t *testing.T) {
	f := newFixture(t, tts.ModeOpenAI)
	f.writeDialogue(t, "Alice: ...\n")
	f.proc.metrics = &dsp.Metrics{Duration: 1, PeakLevel: math.Inf(-1), RMSLevel: math.Inf(-1), LUFS: math.Inf(-1), Threshold: -70}

	report, err := f.r.Render(context.Background(), f.job)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !math.IsInf(report.Normalize.LUFS, -1) {
		t.Fatalf("expected -inf loudness, got %v", report.Normalize.LUFS)
	}

	raw, err := f.fs.ReadFile(f.r.Layout(f.job).ReportPath())
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var written struct {
		Normalize struct {
			LUFS    *float64 `json:"lufs"`
			Metrics struct {
				LUFS     *float64 `json:"lufs"`
				Duration *float64 `json:"duration_seconds"`
			} `json:"metrics"`
		} `json:"normalize"`
	}
	if err := json.Unmarshal(raw, &written); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if written.Normalize.LUFS != nil || written.Normalize.Metrics.LUFS != nil {
		t.Fatalf("expected null loudness in report: %s", raw)
	}
	if written.Normalize.Metrics.Duration == nil || *written.Normalize.Metrics.Duration != 1 {
		t.Fatalf("expected finite duration to survive: %s", raw)
	}
}

func TestLoadSegmentsDerivesProviders(t *testing.T) {
	fs := storage.NewWithFs(afero.NewMemMapFs())
	l := Layout{Root: "out", Language: "de", Mode: tts.ModeMixed, SeriesID: "s", EpisodeID: "e"}
	for _, name := range []string{"segment_3_Carol.mp3", "segment_0_alice.mp3"} {
		if _, err := fs.WriteFile(filepath.Join(l.SegmentsDir(), name), nil); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	got, err := LoadSegments(fs, l)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []Segment{
		{Path: filepath.Join(l.SegmentsDir(), "segment_0_alice.mp3"), Provider: tts.ProviderOpenAI, CharacterID: "alice", Index: 0},
		{Path: filepath.Join(l.SegmentsDir(), "segment_3_Carol.mp3"), Provider: tts.ProviderElevenLabs, CharacterID: "carol", Index: 3},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("segments mismatch (-want +got):\n%s", diff)
	}

	empty := Layout{Root: "out", Language: "fr", Mode: tts.ModeOpenAI}
	if ok, err := SegmentsExist(fs, empty); err != nil || ok {
		t.Fatalf("expected no segments, got %v %v", ok, err)
	}
}

func TestLoadSegmentsRejectsDuplicateIndex(t *testing.T) {
	fs := storage.NewWithFs(afero.NewMemMapFs())
	l := Layout{Root: "out", Language: "en", Mode: tts.ModeOpenAI, SeriesID: "s", EpisodeID: "e"}
	for _, name := range []string{"segment_0_alice.mp3", "segment_1_alice.mp3", "segment_1_bob.mp3"} {
		if _, err := fs.WriteFile(filepath.Join(l.SegmentsDir(), name), nil); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	_, err := LoadSegments(fs, l)
	if err == nil || !strings.Contains(err.Error(), "index 1 has both segment_1_alice.mp3 and segment_1_bob.mp3") {
		t.Fatalf("expected duplicate index error, got %v", err)
	}
}

func TestSpeakerSlug(t *testing.T) {
	tests := map[string]string{
		"Alice":     "alice",
		"dr. Who 2": "drwho",
		"123":       "speaker",
	}
	for in, want := range tests {
		if got := SpeakerSlug(in); got != want {
			t.Errorf("SpeakerSlug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDSPPipelineRetainsContext(t *testing.T) {
	proc := &fakeProcessor{}
	d := dialogue.Dialogue{Lines: []dialogue.Line{{Speaker: "Alice", Text: "hi"}}}
	in := DSPContext{
		Layout:   Layout{Root: "out", Language: "en", Mode: tts.ModeOpenAI, SeriesID: "s", EpisodeID: "e"},
		Dialogue: &d,
		Audio: Audio{
			Segments: []Segment{
				{Path: "b.mp3", Index: 1, CharacterID: "bob"},
				{Path: "a.mp3", Index: 0, CharacterID: "alice"},
			},
			Speakers: []string{"bob", "alice"},
		},
	}
	before := in.Audio.Segments[0]

	out, err := DSPPipeline(proc, dsp.DefaultFormat(), nil, dsp.DefaultNormalization())(context.Background(), in)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if diff := cmp.Diff(in, out.DSPContext); diff != "" {
		t.Fatalf("dsp context changed (-want +got):\n%s", diff)
	}
	if in.Audio.Segments[0] != before {
		t.Fatal("mixdown reordered the caller's segments")
	}
	if diff := cmp.Diff([]string{"a.mp3", "b.mp3"}, proc.mergeInputs); diff != "" {
		t.Fatalf("merge order mismatch (-want +got):\n%s", diff)
	}
	if out.Mixdown.Segments != 2 || out.Normalize.Settings != dsp.DefaultNormalization() {
		t.Fatalf("unexpected results %+v %+v", out.Mixdown, out.Normalize)
	}
}

func TestDSPPipelineErrors(t *testing.T) {
	in := DSPContext{Audio: Audio{Segments: []Segment{{Path: "a.mp3"}}}}
	boom := errors.New("boom")

	tests := []struct {
		name string
		proc *fakeProcessor
		in   DSPContext
		want string
	}{
		{"no segments", &fakeProcessor{}, DSPContext{}, "DSP pipeline failed: Failed to mix segments: no audio segments to mix"},
		{"merge", &fakeProcessor{mergeErr: boom}, in, "DSP pipeline failed: Failed to mix segments: boom"},
		{"analyze", &fakeProcessor{analyzeErr: boom}, in, "DSP pipeline failed: Failed to analyze normalized audio: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DSPPipeline(tt.proc, dsp.DefaultFormat(), nil, dsp.DefaultNormalization())(context.Background(), tt.in)
			if err == nil || err.Error() != tt.want {
				t.Fatalf("expected %q, got %v", tt.want, err)
			}
			if tt.proc.mergeErr != nil && !errors.Is(err, boom) {
				t.Fatal("expected wrapped cause")
			}
		})
	}
}
