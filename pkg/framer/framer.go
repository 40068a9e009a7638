// Package framer reassembles raw serial byte chunks into complete lines
package framer

import (
	"strings"
	"unicode/utf8"

	"pkt.systems/pslog"
)

// DefaultMaxPending is the cap on a partial line awaiting its delimiter.
// A stream that never sends a delimiter is force-flushed at this size
// instead of growing without bound.
const DefaultMaxPending = 1 << 20

// Framer splits an unbounded stream of byte chunks into lines terminated
// by \n, \r or \r\n. A delimiter split across two chunks is handled by
// holding a trailing \r until the next chunk disambiguates it.
type Framer struct {
	pending    []byte
	crPending  bool
	maxPending int
	logger     pslog.Logger
}

// Option configures a Framer
type Option func(*Framer)

// WithMaxPending overrides the partial-line cap
func WithMaxPending(n int) Option {
	return func(f *Framer) {
		if n > 0 {
			f.maxPending = n
		}
	}
}

// WithLogger sets the logger used to report overflow events
func WithLogger(logger pslog.Logger) Option {
	return func(f *Framer) {
		f.logger = logger
	}
}

// New creates a Framer
func New(opts ...Option) *Framer {
	f := &Framer{
		maxPending: DefaultMaxPending,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Push feeds a chunk of raw bytes and returns the lines completed by it,
// in arrival order. Incomplete tails are buffered for the next call.
// Malformed byte sequences are replaced, never reported as errors.
func (f *Framer) Push(chunk []byte) []string {
	var lines []string

	for _, b := range chunk {
		if f.crPending {
			f.crPending = false
			lines = append(lines, f.take())
			if b == '\n' {
				// second half of \r\n, already consumed
				continue
			}
		}

		switch b {
		case '\n':
			lines = append(lines, f.take())
		case '\r':
			// may be a lone \r or the start of \r\n
			f.crPending = true
		default:
			f.pending = append(f.pending, b)
			if len(f.pending) >= f.maxPending {
				if f.logger != nil {
					f.logger.Warn("line exceeds pending cap, force flushing",
						"bytes", len(f.pending))
				}
				lines = append(lines, f.take())
			}
		}
	}

	return lines
}

// Flush emits any buffered partial line. Used when the stream ends so a
// final unterminated line is not lost.
func (f *Framer) Flush() (string, bool) {
	if f.crPending {
		f.crPending = false
		return f.take(), true
	}
	if len(f.pending) == 0 {
		return "", false
	}
	return f.take(), true
}

// PendingLen returns the size of the buffered partial line
func (f *Framer) PendingLen() int {
	return len(f.pending)
}

// take decodes and resets the pending buffer
func (f *Framer) take() string {
	line := decode(f.pending)
	f.pending = f.pending[:0]
	return line
}

// decode converts raw bytes to a string, substituting the Unicode
// replacement character for malformed sequences
func decode(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
}
