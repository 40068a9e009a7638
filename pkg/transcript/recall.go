package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultRecallLimit caps the persisted command history
const DefaultRecallLimit = 100

// Recall is the persisted send-command history, navigated with the
// up and down keys from the input line. Newest commands are at the end.
type Recall struct {
	mu    sync.Mutex
	path  string
	items []string
	limit int
	// pos is the navigation cursor; len(items) means "past the newest",
	// i.e. an empty input line
	pos int
}

// LoadRecall reads the command history from path, creating an empty
// history if the file does not exist yet
func LoadRecall(path string, limit int) (*Recall, error) {
	if limit <= 0 {
		limit = DefaultRecallLimit
	}
	r := &Recall{path: path, limit: limit}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("failed to read command history: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		r.items = append(r.items, line)
	}
	if len(r.items) > r.limit {
		r.items = r.items[len(r.items)-r.limit:]
	}
	r.pos = len(r.items)
	return r, nil
}

// Add records a sent command, drops the oldest past the limit, resets
// the navigation cursor and persists the file
func (r *Recall) Add(command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// skip an immediate repeat
	if n := len(r.items); n == 0 || r.items[n-1] != command {
		r.items = append(r.items, command)
	}
	if len(r.items) > r.limit {
		r.items = r.items[len(r.items)-r.limit:]
	}
	r.pos = len(r.items)

	return r.save()
}

// Prev moves the cursor to the previous (older) command
func (r *Recall) Prev() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos == 0 || len(r.items) == 0 {
		return "", false
	}
	r.pos--
	return r.items[r.pos], true
}

// Next moves the cursor to the next (newer) command; past the newest it
// returns an empty string to restore the blank input line
func (r *Recall) Next() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos >= len(r.items) {
		return "", false
	}
	r.pos++
	if r.pos == len(r.items) {
		return "", true
	}
	return r.items[r.pos], true
}

// Reset moves the cursor past the newest command
func (r *Recall) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos = len(r.items)
}

// Items returns a copy of the history, oldest first
func (r *Recall) Items() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.items...)
}

func (r *Recall) save() error {
	if r.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	data := strings.Join(r.items, "\n")
	if data != "" {
		data += "\n"
	}
	if err := os.WriteFile(r.path, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write command history: %w", err)
	}
	return nil
}
