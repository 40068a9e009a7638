// Package session provides the per-run buffer of received lines that the
// macro interpreter matches expected output against.
package session

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Buffer is an append-only, clearable log of received lines scoped to one
// macro run. The serial reader goroutine appends while the interpreter
// goroutine scans, waits and clears, so every access takes the mutex.
type Buffer struct {
	mu    sync.Mutex
	lines []string

	// gen increments on every Clear so a waiter can tell a reset
	// buffer from one that merely grew back to its previous length
	gen uint64

	// wake carries at most one pending signal; WaitFor re-scans from its
	// last index after each wake, so a signal can never be lost.
	wake chan struct{}
}

// NewBuffer creates an empty session buffer
func NewBuffer() *Buffer {
	return &Buffer{
		wake: make(chan struct{}, 1),
	}
}

// Append adds a received line to the buffer
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	b.lines = append(b.lines, line)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Clear removes all buffered lines
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.lines = b.lines[:0]
	b.gen++
	b.mu.Unlock()
}

// Len returns the number of buffered lines
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Snapshot returns a copy of the buffered lines
func (b *Buffer) Snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// WaitFor blocks until a line matching expected arrives or timeout elapses.
// Lines already in the buffer are checked first, so a response that raced
// ahead of the wait is still found. Returns true on the first match, false
// on timeout or context cancellation.
//
// Matching trims surrounding whitespace from both sides; substring mode
// tests containment, exact mode equality.
func (b *Buffer) WaitFor(ctx context.Context, expected string, timeout time.Duration, substring bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	// next is the index of the first line not yet examined; it restarts
	// at zero whenever a Clear bumps the generation
	next := 0
	var gen uint64

	for {
		matched, scanned, g := b.scanFrom(next, gen, expected, substring)
		if matched {
			return true
		}
		next, gen = scanned, g

		select {
		case <-b.wake:
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// scanFrom examines lines[from:] for a match, returning whether one was
// found, the index scanning stopped at and the buffer generation it
// observed. A generation change means the buffer was cleared since the
// previous scan, so the whole slice is examined again.
func (b *Buffer) scanFrom(from int, gen uint64, expected string, substring bool) (bool, int, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.gen {
		from = 0
	}

	want := strings.TrimSpace(expected)
	for i := from; i < len(b.lines); i++ {
		got := strings.TrimSpace(b.lines[i])
		if substring {
			if strings.Contains(got, want) {
				return true, i + 1, b.gen
			}
		} else if got == want {
			return true, i + 1, b.gen
		}
	}

	return false, len(b.lines), b.gen
}
