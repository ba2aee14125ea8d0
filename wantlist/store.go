// Package wantlist stores, per character, the item names that character
// wants to receive. The file is yaml with one section per character and one
// key per item name.
package wantlist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrConfigMissing is returned when a character has no section.
var ErrConfigMissing = errors.New("no want list section")

// Items maps item names to their flag. Presence alone means wanted.
type Items map[string]bool

// UnmarshalYAML accepts any scalar as an item value.
func (it *Items) UnmarshalYAML(node *yaml.Node) error {
	out := make(Items)
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*it = out
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: want list section must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := strings.TrimSpace(node.Content[i].Value)
		if name == "" {
			continue
		}
		out[name] = truthy(node.Content[i+1].Value)
	}
	*it = out
	return nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no", "off":
		return false
	}
	return true
}

// Names returns the item names in lexical order.
func (it Items) Names() []string {
	names := make([]string, 0, len(it))
	for name := range it {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WantList maps character names to the items they want.
type WantList map[string]Items

// Section finds the section for character, ignoring case.
func (w WantList) Section(character string) (string, Items, bool) {
	if items, ok := w[character]; ok {
		return character, items, true
	}
	for name, items := range w {
		if strings.EqualFold(name, character) {
			return name, items, true
		}
	}
	return "", nil, false
}

// Wanted returns the item names character wants.
func (w WantList) Wanted(character string) ([]string, error) {
	_, items, ok := w.Section(character)
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrConfigMissing, character)
	}
	return items.Names(), nil
}

// Characters returns the section names in lexical order.
func (w WantList) Characters() []string {
	names := make([]string, 0, len(w))
	for name := range w {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Store reads and writes a want list file. Every read goes to disk so edits
// made while the agent runs take effect on the next command.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the file. A missing file is an empty list.
func (s *Store) Load() (WantList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (WantList, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return WantList{}, nil
		}
		return nil, err
	}

	w := WantList{}
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	for name, items := range w {
		if items == nil {
			w[name] = Items{}
		}
	}
	return w, nil
}

// Save writes w. yaml.v3 emits map keys sorted, so every save is also a sort.
func (s *Store) Save(w WantList) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(w)
}

func (s *Store) saveLocked(w WantList) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(w)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Wanted loads the file and returns the item names character wants.
func (s *Store) Wanted(character string) ([]string, error) {
	w, err := s.Load()
	if err != nil {
		return nil, err
	}
	return w.Wanted(character)
}

// Add marks item as wanted by character, creating the section if needed.
func (s *Store) Add(character, item string) error {
	character = strings.TrimSpace(character)
	item = strings.TrimSpace(item)
	if character == "" || item == "" {
		return fmt.Errorf("character and item are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.loadLocked()
	if err != nil {
		return err
	}
	section, items, ok := w.Section(character)
	if !ok {
		section = character
		items = Items{}
		w[section] = items
	}
	items[item] = true
	return s.saveLocked(w)
}

// Sort rewrites the file with sections and items in lexical order.
func (s *Store) Sort() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := s.loadLocked()
	if err != nil {
		return err
	}
	return s.saveLocked(w)
}

// WriteExample creates an example file at path unless one exists.
func WriteExample(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	example := WantList{
		"CharVendor": Items{
			"Diamond Coin": true,
			"Blue Diamond": true,
			"Raw Diamond":  true,
		},
	}
	if err := NewStore(path).Save(example); err != nil {
		return false, err
	}
	return true, nil
}
