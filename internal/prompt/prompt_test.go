package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
)

func TestDefaultTemplatesRenderSlots(t *testing.T) {
	t.Parallel()

	set, err := Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}

	rendered, err := set.Title.Render("  climate change ")
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	if !strings.Contains(rendered, "on the following topic: climate change") {
		t.Fatalf("expected topic in rendered title prompt, got %q", rendered)
	}
	if !strings.Contains(rendered, `key "title"`) {
		t.Fatalf("expected JSON instruction for title key, got %q", rendered)
	}

	rendered, err = set.Speech.Render("Our Fragile Home")
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	if !strings.Contains(rendered, "350 words") || !strings.Contains(rendered, "for the following title: Our Fragile Home") {
		t.Fatalf("unexpected speech prompt %q", rendered)
	}
	if !strings.Contains(rendered, `key "speech"`) {
		t.Fatalf("expected JSON instruction for speech key, got %q", rendered)
	}
}

func TestRenderRejectsEmptySlot(t *testing.T) {
	t.Parallel()

	set, err := Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}

	_, err = set.Title.Render("   ")
	if !eris.Is(err, ErrEmptySlot) {
		t.Fatalf("expected ErrEmptySlot, got %v", err)
	}
}

func TestNewTemplateRejectsUnknownSlotReference(t *testing.T) {
	t.Parallel()

	if _, err := NewTemplate("title", "topic", "", "Write about {{.subject}}"); err == nil {
		t.Fatalf("expected error when template references an unbound slot")
	}
}

func TestNewTemplateRequiresSlotReference(t *testing.T) {
	t.Parallel()

	if _, err := NewTemplate("title", "topic", "", "Write something nice"); err == nil {
		t.Fatalf("expected error when template never references its slot")
	}
}

func TestParseRejectsSwappedSlots(t *testing.T) {
	t.Parallel()

	doc := []byte(`
title:
  slot: title
  template: "{{.title}}"
speech:
  slot: topic
  template: "{{.topic}}"
`)

	if _, err := Parse(doc); err == nil {
		t.Fatalf("expected error when slots are swapped")
	}
}

func TestLoadReadsOverrideFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	doc := `
title:
  slot: topic
  system: You name speeches.
  template: "Title for {{.topic}} as JSON with key title"
speech:
  slot: title
  template: "Speech for {{.title}} as JSON with key speech"
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("writing prompts file: %v", err)
	}

	set, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if set.Title.System() != "You name speeches." {
		t.Fatalf("expected system prompt to be loaded, got %q", set.Title.System())
	}

	rendered, err := set.Speech.Render("Hope")
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if rendered != "Speech for Hope as JSON with key speech" {
		t.Fatalf("unexpected rendered prompt %q", rendered)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing prompts file")
	}
}
