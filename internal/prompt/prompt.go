package prompt

import (
	"bytes"
	_ "embed"
	"os"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultDocument []byte

// Slot names bound by the title and speech templates.
const (
	TitleSlot  = "topic"
	SpeechSlot = "title"
)

// ErrEmptySlot is returned when a template is rendered with a blank slot value.
var ErrEmptySlot = eris.New("prompt slot value is empty")

const slotProbe = "\x00slot-probe\x00"

// Template is a parsed prompt with one named slot. It is immutable and safe for
// concurrent use.
type Template struct {
	name   string
	slot   string
	system string
	tmpl   *template.Template
}

// Set bundles the templates used by the pipeline.
type Set struct {
	Title  *Template
	Speech *Template
}

type document struct {
	Title  templateEntry `yaml:"title"`
	Speech templateEntry `yaml:"speech"`
}

type templateEntry struct {
	Slot     string `yaml:"slot"`
	System   string `yaml:"system"`
	Template string `yaml:"template"`
}

// NewTemplate parses text and checks that it references slot.
func NewTemplate(name, slot, system, text string) (*Template, error) {
	slot = strings.TrimSpace(slot)
	if slot == "" {
		return nil, eris.Errorf("template %s: slot name is required", name)
	}
	if strings.TrimSpace(text) == "" {
		return nil, eris.Errorf("template %s: text is required", name)
	}

	parsed, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, eris.Wrapf(err, "parsing template %s", name)
	}

	t := &Template{
		name:   name,
		slot:   slot,
		system: strings.TrimSpace(system),
		tmpl:   parsed,
	}

	probe, err := t.execute(slotProbe)
	if err != nil {
		return nil, eris.Wrapf(err, "template %s must only reference slot %q", name, slot)
	}
	if !strings.Contains(probe, slotProbe) {
		return nil, eris.Errorf("template %s never references slot %q", name, slot)
	}

	return t, nil
}

// Name returns the template identifier.
func (t *Template) Name() string {
	return t.name
}

// Slot returns the name of the single slot the template binds.
func (t *Template) Slot() string {
	return t.slot
}

// System returns the optional system instruction sent alongside the rendered prompt.
func (t *Template) System() string {
	return t.system
}

// Render fills the slot with value and returns the complete instruction.
func (t *Template) Render(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", eris.Wrapf(ErrEmptySlot, "rendering template %s", t.name)
	}

	rendered, err := t.execute(trimmed)
	if err != nil {
		return "", eris.Wrapf(err, "rendering template %s", t.name)
	}

	return strings.TrimSpace(rendered), nil
}

func (t *Template) execute(value string) (string, error) {
	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, map[string]string{t.slot: value}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Default returns the built-in template set.
func Default() (*Set, error) {
	return Parse(defaultDocument)
}

// Load reads a template document from path. An empty path yields the built-in set.
func Load(path string) (*Set, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reading prompts file: %s", path)
	}

	return Parse(data)
}

// Parse decodes a YAML template document. The title template must bind the topic
// slot and the speech template the title slot.
func Parse(data []byte) (*Set, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "decoding prompts document")
	}

	if doc.Title.Slot != TitleSlot {
		return nil, eris.Errorf("title template must bind slot %q, got %q", TitleSlot, doc.Title.Slot)
	}
	if doc.Speech.Slot != SpeechSlot {
		return nil, eris.Errorf("speech template must bind slot %q, got %q", SpeechSlot, doc.Speech.Slot)
	}

	title, err := NewTemplate("title", doc.Title.Slot, doc.Title.System, doc.Title.Template)
	if err != nil {
		return nil, err
	}

	speech, err := NewTemplate("speech", doc.Speech.Slot, doc.Speech.System, doc.Speech.Template)
	if err != nil {
		return nil, err
	}

	return &Set{Title: title, Speech: speech}, nil
}
