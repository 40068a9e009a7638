// Package commands loads command-set files: named lists of device
// commands offered in menus, split into commands sent as-is and
// commands that need an argument filled in first.
package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Set is a loaded command set
type Set struct {
	// Name is the file stem the set was loaded from
	Name string
	// NoInput commands are sent exactly as listed
	NoInput []string
	// InputRequired commands need an argument appended before sending
	InputRequired []string
}

// All returns every command in the set, no-input commands first
func (s *Set) All() []string {
	all := make([]string, 0, len(s.NoInput)+len(s.InputRequired))
	all = append(all, s.NoInput...)
	all = append(all, s.InputRequired...)
	return all
}

// NeedsInput reports whether command requires an argument
func (s *Set) NeedsInput(command string) bool {
	for _, c := range s.InputRequired {
		if c == command {
			return true
		}
	}
	return false
}

// The file format is either sectioned:
//
//	no_input_commands: [AT, ATI]
//	input_required_commands: [AT+CFUN=]
//
// or a flat list, which is treated as all no-input commands.
type rawSet struct {
	NoInput       []string `yaml:"no_input_commands"`
	InputRequired []string `yaml:"input_required_commands"`
}

// Parse decodes a command set from YAML
func Parse(name string, data []byte) (*Set, error) {
	var raw rawSet
	sectionedErr := yaml.Unmarshal(data, &raw)
	if sectionedErr == nil && (raw.NoInput != nil || raw.InputRequired != nil) {
		return &Set{Name: name, NoInput: raw.NoInput, InputRequired: raw.InputRequired}, nil
	}

	var flat []string
	if err := yaml.Unmarshal(data, &flat); err != nil {
		if sectionedErr != nil {
			return nil, fmt.Errorf("failed to parse command set: %w", sectionedErr)
		}
		return nil, fmt.Errorf("failed to parse command set: %w", err)
	}
	return &Set{Name: name, NoInput: flat}, nil
}

// Store manages command-set files in a directory
type Store struct {
	dir string
}

// NewStore creates a command-set store rooted at dir, creating it if
// needed
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("command set directory not set")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create command set directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// List returns the names of all stored command sets, sorted
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read command set directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}

// Load reads and parses the command set with the given name
func (s *Store) Load(name string) (*Set, error) {
	var data []byte
	var err error
	for _, ext := range []string{".yaml", ".yml"} {
		data, err = os.ReadFile(filepath.Join(s.dir, name+ext))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("command set %q not found: %w", name, err)
	}

	set, err := Parse(name, data)
	if err != nil {
		return nil, fmt.Errorf("command set %q: %w", name, err)
	}
	return set, nil
}
