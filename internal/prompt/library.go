// Package prompt manages named style prompts: the built-in presets plus the
// user's own, kept in a YAML file.
package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/MimeLyc/batch-sub-translator/pkg/file"
	"github.com/MimeLyc/batch-sub-translator/pkg/log"
)

//go:embed presets.yaml
var builtinYAML []byte

var (
	ErrNotFound = errors.New("prompt not found")
	ErrBuiltin  = errors.New("built-in prompts cannot be removed")
)

type Preset struct {
	Name    string `yaml:"name" json:"name"`
	Title   string `yaml:"title,omitempty" json:"title,omitempty"`
	Prompt  string `yaml:"prompt" json:"prompt"`
	Builtin bool   `yaml:"-" json:"builtin"`
}

type presetFile struct {
	Current string   `yaml:"current,omitempty"`
	Presets []Preset `yaml:"presets"`
}

// Library holds presets in display order: built-ins first, then user
// presets in the order they were added. Safe for concurrent use.
type Library struct {
	mu       sync.RWMutex
	path     string
	presets  []Preset
	builtins map[string]string
	current  string
}

// NewLibrary returns a library with only the built-in presets.
func NewLibrary() (*Library, error) {
	var f presetFile
	if err := yaml.Unmarshal(builtinYAML, &f); err != nil {
		return nil, fmt.Errorf("parse built-in presets: %w", err)
	}

	l := &Library{builtins: make(map[string]string, len(f.Presets))}
	for _, p := range f.Presets {
		p.Builtin = true
		p.Prompt = strings.TrimSpace(p.Prompt)
		l.builtins[p.Name] = p.Prompt
		l.presets = append(l.presets, p)
	}
	return l, nil
}

// Load returns the built-in presets merged with the user file at path. A
// user preset with a built-in name overrides its text. A missing file is
// not an error; the path is remembered for Save.
func Load(path string) (*Library, error) {
	l, err := NewLibrary()
	if err != nil {
		return nil, err
	}
	l.path = path
	if path == "" {
		return l, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return l, nil
		}
		return nil, fmt.Errorf("read prompt file: %w", err)
	}

	var f presetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse prompt file %s: %w", path, err)
	}
	for _, p := range f.Presets {
		if strings.TrimSpace(p.Name) == "" {
			log.Warn("skipping unnamed prompt in %s", path)
			continue
		}
		l.put(p.Name, p.Title, p.Prompt)
	}
	l.current = f.Current
	log.Debug("loaded %d prompts from %s", len(f.Presets), path)
	return l, nil
}

func (l *Library) indexOf(name string) int {
	for i, p := range l.presets {
		if p.Name == name || (p.Title != "" && p.Title == name) {
			return i
		}
	}
	return -1
}

func (l *Library) put(name, title, text string) {
	text = strings.TrimSpace(text)
	if i := l.indexOf(name); i >= 0 {
		l.presets[i].Prompt = text
		if title != "" {
			l.presets[i].Title = title
		}
		return
	}
	l.presets = append(l.presets, Preset{Name: name, Title: title, Prompt: text})
}

// List returns every preset in display order.
func (l *Library) List() []Preset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Preset(nil), l.presets...)
}

// Get finds a preset by name or title.
func (l *Library) Get(name string) (Preset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i := l.indexOf(strings.TrimSpace(name)); i >= 0 {
		return l.presets[i], nil
	}
	return Preset{}, fmt.Errorf("%q: %w", name, ErrNotFound)
}

// Put adds or replaces a preset.
func (l *Library) Put(name, title, text string) error {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(text) == "" {
		return fmt.Errorf("prompt name and text are required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.put(strings.TrimSpace(name), title, text)
	return nil
}

// Delete removes a user preset.
func (l *Library) Delete(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexOf(name)
	if i < 0 {
		return fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	if l.presets[i].Builtin {
		return fmt.Errorf("%q: %w", name, ErrBuiltin)
	}
	if l.current == l.presets[i].Name {
		l.current = ""
	}
	l.presets = append(l.presets[:i], l.presets[i+1:]...)
	return nil
}

// SetCurrent selects the preset used when none is named. An empty name
// selects the translator's default style.
func (l *Library) SetCurrent(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if name != "" && l.indexOf(name) < 0 {
		return fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	l.current = name
	return nil
}

// Current returns the selected preset, if any.
func (l *Library) Current() (Preset, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.current == "" {
		return Preset{}, false
	}
	if i := l.indexOf(l.current); i >= 0 {
		return l.presets[i], true
	}
	return Preset{}, false
}

// Save writes the user presets, and built-ins whose text was changed, back
// to the library's file.
func (l *Library) Save() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.path == "" {
		return fmt.Errorf("prompt library has no file")
	}

	f := presetFile{Current: l.current}
	for _, p := range l.presets {
		if p.Builtin && l.builtins[p.Name] == p.Prompt {
			continue
		}
		f.Presets = append(f.Presets, Preset{Name: p.Name, Title: p.Title, Prompt: p.Prompt})
	}

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("encode prompts: %w", err)
	}
	if err := file.WriteAtomic(l.path, data); err != nil {
		return fmt.Errorf("save prompts: %w", err)
	}
	return nil
}

// Resolve picks the style prompt for a run: explicit text wins, then a
// named preset, then the library's current preset. Giving both text and a
// name is an error.
func (l *Library) Resolve(text, name string) (string, error) {
	text, name = strings.TrimSpace(text), strings.TrimSpace(name)
	switch {
	case text != "" && name != "":
		return "", fmt.Errorf("a prompt text and a prompt name cannot be used together")
	case text != "":
		return text, nil
	case name != "":
		p, err := l.Get(name)
		if err != nil {
			return "", err
		}
		return p.Prompt, nil
	}
	if p, ok := l.Current(); ok {
		return p.Prompt, nil
	}
	return "", nil
}
