package dialogue

import (
	"bufio"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/nikhilbhutani/dialoguecast/internal/storage"
)

func TestParse(t *testing.T) {
	content := "Alice: Welcome back to the show.\n\n# stage direction\nBob: Thanks: glad to be here.\n  Alice :  Let's begin.  \n:orphan text\n"

	got, err := Parse(content)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := Dialogue{Lines: []Line{
		{Speaker: "Alice", Text: "Welcome back to the show."},
		{Speaker: "Bob", Text: "Thanks: glad to be here."},
		{Speaker: "Alice", Text: "Let's begin."},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("dialogue mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Alice", "Bob"}, got.Speakers()); diff != "" {
		t.Fatalf("speakers mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsOversizedLine(t *testing.T) {
	content := "Alice: first\nBob: " + strings.Repeat("a", 2*maxLineSize) + "\nAlice: last\n"
	if _, err := Parse(content); !errors.Is(err, bufio.ErrTooLong) {
		t.Fatalf("expected bufio.ErrTooLong, got %v", err)
	}

	fs := storage.NewWithFs(afero.NewMemMapFs())
	fs.WriteFile("out/en/dialogue.txt", []byte(content))
	if _, err := Load(fs, "out/en/dialogue.txt"); !errors.Is(err, bufio.ErrTooLong) {
		t.Fatalf("expected load to fail with bufio.ErrTooLong, got %v", err)
	}
}

func TestFormatRoundTrip(t *testing.T) {
	d := Dialogue{Lines: []Line{{Speaker: "Alice", Text: "Hi"}, {Speaker: "Bob", Text: "Hello"}}}
	if got := Format(d); got != "Alice: Hi\nBob: Hello" {
		t.Fatalf("unexpected format %q", got)
	}
}

func TestLoad(t *testing.T) {
	fs := storage.NewWithFs(afero.NewMemMapFs())
	fs.WriteFile("out/en/dialogue.txt", []byte("Alice: Hi\nBob: Hello\n"))
	fs.WriteFile("out/de/dialogue.txt", []byte("\n\n"))

	d, err := Load(fs, "out/en/dialogue.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(d.Lines))
	}

	if _, err := Load(fs, "out/de/dialogue.txt"); err == nil {
		t.Fatal("expected error for empty dialogue")
	}
	if _, err := Load(fs, "out/fr/dialogue.txt"); err == nil {
		t.Fatal("expected error for missing dialogue")
	}
}
