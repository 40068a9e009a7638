package macro

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Store manages macro definition files in a directory. Each macro lives
// in its own YAML file named after the macro.
type Store struct {
	dir string
}

// NewStore creates a macro store rooted at dir, creating it if needed
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("macro directory not set")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create macro directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory the store manages
func (s *Store) Dir() string {
	return s.dir
}

// List returns the names of all stored macros, sorted
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read macro directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ext))
	}
	sort.Strings(names)
	return names, nil
}

// Load reads and parses the macro with the given name
func (s *Store) Load(name string) (*Macro, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read macro %q: %w", name, err)
	}
	m, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("macro %q: %w", name, err)
	}
	return m, nil
}

// Save writes m to the store, overwriting any existing macro of the
// same name
func (s *Store) Save(m *Macro) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid macro: %w", err)
	}
	data, err := Encode(m)
	if err != nil {
		return fmt.Errorf("failed to encode macro %q: %w", m.Name, err)
	}
	path := filepath.Join(s.dir, sanitizeName(m.Name)+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write macro %q: %w", m.Name, err)
	}
	return nil
}

// Delete removes the macro with the given name
func (s *Store) Delete(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to delete macro %q: %w", name, err)
	}
	return nil
}

// resolve locates the file backing a macro name, accepting either
// extension
func (s *Store) resolve(name string) (string, error) {
	base := sanitizeName(name)
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(s.dir, base+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("macro %q not found", name)
}

// sanitizeName keeps macro names usable as file names
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	name = strings.ReplaceAll(name, " ", "_")
	return name
}
