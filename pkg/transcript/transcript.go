// Package transcript keeps the visible record of a monitor session:
// every line received, every command sent and every run notice, with
// timestamps, ready for on-screen rendering or export.
package transcript

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Direction represents the origin of a transcript entry
type Direction int

const (
	// DirectionRx is a line received from the device
	DirectionRx Direction = iota
	// DirectionTx is a command sent to the device
	DirectionTx
	// DirectionNote is a local notice, not device traffic
	DirectionNote
)

// String returns the string representation of Direction
func (d Direction) String() string {
	switch d {
	case DirectionRx:
		return "rx"
	case DirectionTx:
		return "tx"
	case DirectionNote:
		return "note"
	default:
		return "unknown"
	}
}

// FileFormat represents different file export formats
type FileFormat int

const (
	// FormatPlainText writes entry text only, one line each
	FormatPlainText FileFormat = iota
	// FormatTimestamped prefixes each line with its timestamp and direction
	FormatTimestamped
)

// String returns the string representation of FileFormat
func (f FileFormat) String() string {
	switch f {
	case FormatPlainText:
		return "plain_text"
	case FormatTimestamped:
		return "timestamped"
	default:
		return "unknown"
	}
}

// Entry is a single transcript line
type Entry struct {
	Timestamp time.Time
	Direction Direction
	Text      string
}

// DefaultMaxEntries bounds transcript growth during long sessions
const DefaultMaxEntries = 10000

// Transcript is a bounded, append-only session record. It is safe for
// concurrent use: the reader goroutine, the macro runner and the screen
// all touch it.
type Transcript struct {
	mu      sync.Mutex
	entries []Entry
	max     int
}

// New creates a transcript holding at most maxEntries lines; older lines
// are discarded first. A non-positive max selects DefaultMaxEntries.
func New(maxEntries int) *Transcript {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Transcript{max: maxEntries}
}

// Add appends a line
func (t *Transcript) Add(direction Direction, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{
		Timestamp: time.Now(),
		Direction: direction,
		Text:      text,
	})
	if len(t.entries) > t.max {
		drop := len(t.entries) - t.max
		t.entries = append(t.entries[:0], t.entries[drop:]...)
	}
}

// AddNote appends a local notice
func (t *Transcript) AddNote(text string) {
	t.Add(DirectionNote, text)
}

// Len returns the number of entries
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Entries returns a copy of all entries in order
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Entry(nil), t.entries...)
}

// Clear discards all entries
func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}

// SaveToFile writes the transcript to a file in the specified format
func (t *Transcript) SaveToFile(filename string, format FileFormat) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	entries := t.Entries()

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	switch format {
	case FormatPlainText:
		for _, entry := range entries {
			if _, err := fmt.Fprintln(file, Render(entry, false)); err != nil {
				return fmt.Errorf("failed to write entry: %w", err)
			}
		}
	case FormatTimestamped:
		for _, entry := range entries {
			line := fmt.Sprintf("[%s] %s\n",
				entry.Timestamp.Format("2006-01-02 15:04:05.000"),
				Render(entry, false))
			if _, err := file.WriteString(line); err != nil {
				return fmt.Errorf("failed to write entry: %w", err)
			}
		}
	default:
		return fmt.Errorf("unsupported format: %v", format)
	}

	return nil
}

// Render produces the display form of an entry: received lines carry a
// "> " prefix and sent commands a "< " prefix so the two directions read
// apart at a glance. With reveal set, whitespace is made visible.
func Render(e Entry, reveal bool) string {
	text := e.Text
	if reveal {
		text = RevealHidden(text)
	}
	switch e.Direction {
	case DirectionRx:
		return "> " + text
	case DirectionTx:
		return "< " + text
	default:
		return text
	}
}

// RevealHidden replaces invisible characters with visible stand-ins:
// spaces become middle dots, tabs become an arrow padded to tab width,
// and stray carriage returns and line feeds get their control pictures.
func RevealHidden(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ':
			b.WriteRune('·')
		case '\t':
			b.WriteString("→   ")
		case '\n':
			b.WriteString("⏎\n")
		case '\r':
			b.WriteRune('␍')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
