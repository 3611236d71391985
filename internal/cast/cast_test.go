package cast

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/nikhilbhutani/dialoguecast/internal/dialogue"
	"github.com/nikhilbhutani/dialoguecast/internal/storage"
	"github.com/nikhilbhutani/dialoguecast/internal/tts"
)

const castYAML = `
format: mp3
characters:
  - id: alice
    name: Alice Winter
    voices:
      openai:
        voice: nova
        speed: 1.1
      elevenlabs:
        voice_id: el-alice
        settings:
          stability: 0.4
          similarity_boost: 0.8
          style: 0.1
          use_speaker_boost: true
  - id: bob
    name: Bob
    voices:
      openai:
        voice: onyx
        model: tts-1-hd
`

func TestParseAndLookup(t *testing.T) {
	c, err := Parse([]byte(castYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(c.Characters) != 2 {
		t.Fatalf("expected 2 characters, got %d", len(c.Characters))
	}
	if ch, ok := c.Lookup("ALICE"); !ok || ch.ID != "alice" {
		t.Fatalf("expected lookup by id, got %+v", ch)
	}
	if ch, ok := c.Lookup("alice winter"); !ok || ch.ID != "alice" {
		t.Fatalf("expected lookup by name, got %+v", ch)
	}
	if _, ok := c.Lookup("carol"); ok {
		t.Fatal("expected unknown speaker")
	}
}

func TestRequest(t *testing.T) {
	c, err := Parse([]byte(castYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	req, err := c.Request(tts.ProviderElevenLabs, 3, dialogue.Line{Speaker: "Alice", Text: "Hallo"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	want := tts.ElevenLabsRequest{
		RequestBase: tts.RequestBase{
			Text:     "Hallo",
			Format:   tts.FormatMP3,
			Metadata: tts.Metadata{CharacterID: "alice", SegmentIndex: 3},
		},
		Voice:    "el-alice",
		Settings: &tts.VoiceSettings{Stability: 0.4, SimilarityBoost: 0.8, Style: 0.1, UseSpeakerBoost: true},
	}
	if diff := cmp.Diff(tts.Request(want), req); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}

	req, err = c.Request(tts.ProviderOpenAI, 0, dialogue.Line{Speaker: "bob", Text: "Hi"})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	oa, ok := req.(tts.OpenAIRequest)
	if !ok || oa.Voice != "onyx" || oa.Model != "tts-1-hd" {
		t.Fatalf("unexpected openai request %+v", req)
	}
}

func TestRequestMissingVoice(t *testing.T) {
	c, err := Parse([]byte(castYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	_, err = c.Request(tts.ProviderElevenLabs, 1, dialogue.Line{Speaker: "Bob", Text: "Hi"})
	if err == nil || !strings.Contains(err.Error(), "no ElevenLabs voice configuration found for bob") {
		t.Fatalf("expected missing voice error, got %v", err)
	}
	if _, err := c.Request(tts.ProviderOpenAI, 1, dialogue.Line{Speaker: "Carol", Text: "Hi"}); err == nil {
		t.Fatal("expected unknown speaker error")
	}
}

func TestParseRejectsDuplicates(t *testing.T) {
	_, err := Parse([]byte("characters:\n  - id: a\n  - id: A\n"))
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestLoad(t *testing.T) {
	fs := storage.NewWithFs(afero.NewMemMapFs())
	if _, err := fs.WriteFile("series/cast.yaml", []byte(castYAML)); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(fs, "series/cast.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Characters) == 0 {
		t.Fatal("expected characters")
	}
	if _, err := Load(fs, "series/missing.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
