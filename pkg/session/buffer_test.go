package session

import (
	"context"
	"testing"
	"time"
)

func TestBuffer_AppendAndClear(t *testing.T) {
	buf := NewBuffer()

	buf.Append("AT")
	buf.Append("OK")

	if buf.Len() != 2 {
		t.Errorf("Len() = %d, want 2", buf.Len())
	}

	snapshot := buf.Snapshot()
	if len(snapshot) != 2 || snapshot[0] != "AT" || snapshot[1] != "OK" {
		t.Errorf("Snapshot() = %q", snapshot)
	}

	buf.Clear()
	if buf.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", buf.Len())
	}
}

func TestBuffer_WaitForExistingLine(t *testing.T) {
	buf := NewBuffer()
	buf.Append("OK")

	start := time.Now()
	matched := buf.WaitFor(context.Background(), "OK", time.Second, true)
	elapsed := time.Since(start)

	if !matched {
		t.Fatal("WaitFor should match a line already present")
	}
	if elapsed > 100*time.Millisecond {
		t.Errorf("WaitFor took %v for an existing line, expected near-immediate return", elapsed)
	}
}

func TestBuffer_WaitForTimeout(t *testing.T) {
	buf := NewBuffer()
	buf.Append("ERROR")

	timeout := 200 * time.Millisecond
	start := time.Now()
	matched := buf.WaitFor(context.Background(), "OK", timeout, true)
	elapsed := time.Since(start)

	if matched {
		t.Fatal("WaitFor should not match")
	}
	if elapsed < timeout {
		t.Errorf("WaitFor returned after %v, before the %v timeout", elapsed, timeout)
	}
	if elapsed > timeout+150*time.Millisecond {
		t.Errorf("WaitFor took %v, well past the %v timeout", elapsed, timeout)
	}
}

func TestBuffer_WaitForLateArrival(t *testing.T) {
	buf := NewBuffer()

	go func() {
		time.Sleep(50 * time.Millisecond)
		buf.Append("+CREG: 0,1")
		buf.Append("OK")
	}()

	if !buf.WaitFor(context.Background(), "OK", time.Second, true) {
		t.Error("WaitFor should match a line appended during the wait")
	}
}

func TestBuffer_SubstringVsExact(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		expected  string
		substring bool
		want      bool
	}{
		{
			name:      "substring match inside line",
			line:      "AT+CSQ OK done",
			expected:  "OK",
			substring: true,
			want:      true,
		},
		{
			name:      "exact rejects superstring",
			line:      "  OK extra  ",
			expected:  "OK",
			substring: false,
			want:      false,
		},
		{
			name:      "exact matches after trimming",
			line:      "  OK  ",
			expected:  "OK",
			substring: false,
			want:      true,
		},
		{
			name:      "expected trimmed too",
			line:      "OK",
			expected:  " OK ",
			substring: false,
			want:      true,
		},
		{
			name:      "no match at all",
			line:      "ERROR",
			expected:  "OK",
			substring: true,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := NewBuffer()
			buf.Append(tt.line)

			got := buf.WaitFor(context.Background(), tt.expected, 50*time.Millisecond, tt.substring)
			if got != tt.want {
				t.Errorf("WaitFor(%q in %q, substring=%v) = %v, want %v",
					tt.expected, tt.line, tt.substring, got, tt.want)
			}
		})
	}
}

func TestBuffer_ScanRestartsAfterClear(t *testing.T) {
	buf := NewBuffer()
	buf.Append("A")
	buf.Append("B")

	matched, next, gen := buf.scanFrom(0, 0, "OK", true)
	if matched {
		t.Fatal("unexpected match")
	}
	if next != 2 {
		t.Fatalf("expected scan position 2, got %d", next)
	}

	// a clear followed by the same number of new lines must not leave
	// the next scan starting past them
	buf.Clear()
	buf.Append("booting")
	buf.Append("OK")

	matched, _, _ = buf.scanFrom(next, gen, "OK", true)
	if !matched {
		t.Error("scan missed a line appended after a clear")
	}
}

func TestBuffer_WaitForCancelled(t *testing.T) {
	buf := NewBuffer()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	matched := buf.WaitFor(ctx, "OK", 5*time.Second, true)
	if matched {
		t.Error("WaitFor should not match after cancellation")
	}
	if time.Since(start) > time.Second {
		t.Error("WaitFor did not return promptly on cancellation")
	}
}

func TestBuffer_ConcurrentAppend(t *testing.T) {
	buf := NewBuffer()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			buf.Append("noise")
		}
		buf.Append("OK")
	}()

	if !buf.WaitFor(context.Background(), "OK", 2*time.Second, false) {
		t.Error("WaitFor missed a match under concurrent appends")
	}
	<-done
}
