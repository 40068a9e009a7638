package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DJA-prog/Serial-Gui/pkg/gateway"
	"github.com/DJA-prog/Serial-Gui/pkg/macro"
	"github.com/DJA-prog/Serial-Gui/pkg/serial"
)

// scriptPort is a serial.Port fed from a channel of receive chunks.
// Writes are recorded; closing the port unblocks any pending Read.
type scriptPort struct {
	mu     sync.Mutex
	rx     chan []byte
	writes [][]byte
	closed bool
	done   chan struct{}

	// respond, if set, queues a receive chunk for every write
	respond func(written []byte) []byte
}

func newScriptPort() *scriptPort {
	return &scriptPort{
		rx:   make(chan []byte, 16),
		done: make(chan struct{}),
	}
}

func (p *scriptPort) Open(serial.Config) error { return nil }

func (p *scriptPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	return nil
}

func (p *scriptPort) Read(buffer []byte) (int, error) {
	select {
	case chunk := <-p.rx:
		return copy(buffer, chunk), nil
	case <-p.done:
		return 0, errors.New("port closed")
	}
}

func (p *scriptPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, serial.ErrNotConnected
	}
	p.writes = append(p.writes, append([]byte(nil), data...))
	respond := p.respond
	p.mu.Unlock()

	if respond != nil {
		if reply := respond(data); reply != nil {
			p.rx <- reply
		}
	}
	return len(data), nil
}

func (p *scriptPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

func (p *scriptPort) GetConfig() serial.Config           { return serial.DefaultConfig() }
func (p *scriptPort) SetReadTimeout(time.Duration) error { return nil }

func (p *scriptPort) written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.writes))
	for _, w := range p.writes {
		out = append(out, string(w))
	}
	return out
}

func TestHeadlessRunner_SendExpect(t *testing.T) {
	port := newScriptPort()
	port.respond = func(written []byte) []byte {
		if strings.HasPrefix(string(written), "AT") {
			return []byte("OK\r\n")
		}
		return nil
	}

	cfg := serial.DefaultConfig()
	cfg.LineEnding = serial.EndingCRLN
	var out bytes.Buffer
	runner := NewHeadlessRunner(port, cfg, &gateway.StaticResponder{}, &out, nil)

	m := &macro.Macro{
		Name: "ping",
		Steps: []macro.Step{
			macro.SendStep{Command: "AT"},
			macro.ExpectStep{
				Expected:  "OK",
				Timeout:   2 * time.Second,
				Substring: true,
				OnFail:    macro.Action{Kind: macro.ActionExit},
			},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := runner.Run(ctx, m)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result != macro.ResultCompleted {
		t.Errorf("expected ResultCompleted, got %v", result)
	}

	writes := port.written()
	if len(writes) != 1 || writes[0] != "AT\r\n" {
		t.Errorf("expected AT with terminator, got %q", writes)
	}
	if !strings.Contains(out.String(), "> OK") {
		t.Errorf("expected received line in output, got %q", out.String())
	}
	if !strings.Contains(out.String(), `Macro "ping" completed`) {
		t.Errorf("expected completion notice in output, got %q", out.String())
	}
}

func TestHeadlessRunner_TranscriptRecordsTraffic(t *testing.T) {
	port := newScriptPort()
	port.respond = func([]byte) []byte { return []byte("READY\n") }

	runner := NewHeadlessRunner(port, serial.DefaultConfig(), &gateway.StaticResponder{}, io.Discard, nil)

	m := &macro.Macro{
		Name: "t",
		Steps: []macro.Step{
			macro.SendStep{Command: "AT"},
			macro.ExpectStep{
				Expected:  "READY",
				Timeout:   2 * time.Second,
				Substring: true,
			},
		},
	}

	if _, err := runner.Run(context.Background(), m); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var sawRx bool
	for _, entry := range runner.Transcript().Entries() {
		if entry.Text == "READY" {
			sawRx = true
		}
	}
	if !sawRx {
		t.Error("expected the received line in the transcript")
	}
}

func TestStdinGateway_Confirm(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect bool
	}{
		{"empty accepts", "\n", true},
		{"y accepts", "y\n", true},
		{"yes accepts", "YES\n", true},
		{"n declines", "n\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			g := NewStdinGateway(strings.NewReader(tt.input), &out)
			ok, err := g.Confirm("Continue?")
			if err != nil {
				t.Fatalf("Confirm failed: %v", err)
			}
			if ok != tt.expect {
				t.Errorf("Confirm(%q) = %v, want %v", tt.input, ok, tt.expect)
			}
			if !strings.Contains(out.String(), "Continue?") {
				t.Errorf("question not printed: %q", out.String())
			}
		})
	}
}

func TestStdinGateway_PromptText(t *testing.T) {
	g := NewStdinGateway(strings.NewReader("AT+CSQ\n"), io.Discard)
	text, ok, err := g.PromptText("Command")
	if err != nil {
		t.Fatalf("PromptText failed: %v", err)
	}
	if !ok || text != "AT+CSQ" {
		t.Errorf("expected (AT+CSQ, true), got (%q, %v)", text, ok)
	}

	g = NewStdinGateway(strings.NewReader("\n"), io.Discard)
	_, ok, err = g.PromptText("Command")
	if err != nil {
		t.Fatalf("PromptText failed: %v", err)
	}
	if ok {
		t.Error("empty input should cancel")
	}
}

func TestStdinGateway_MenuSingle(t *testing.T) {
	var out bytes.Buffer
	g := NewStdinGateway(strings.NewReader("2\n"), &out)
	selection, ok, err := g.ShowMenu([]string{"AT", "ATI"}, false, nil)
	if err != nil {
		t.Fatalf("ShowMenu failed: %v", err)
	}
	if !ok || selection != "ATI" {
		t.Errorf("expected (ATI, true), got (%q, %v)", selection, ok)
	}
	if !strings.Contains(out.String(), "1) AT") {
		t.Errorf("menu not printed: %q", out.String())
	}
}

func TestStdinGateway_MenuSingleSkip(t *testing.T) {
	g := NewStdinGateway(strings.NewReader("\n"), io.Discard)
	_, ok, err := g.ShowMenu([]string{"AT"}, false, nil)
	if err != nil {
		t.Fatalf("ShowMenu failed: %v", err)
	}
	if ok {
		t.Error("empty selection should skip")
	}
}

func TestStdinGateway_MenuMulti(t *testing.T) {
	var executed []string
	g := NewStdinGateway(strings.NewReader("1\nbogus\n2\n\n"), io.Discard)
	_, ok, err := g.ShowMenu([]string{"AT", "ATI"}, true, func(command string) error {
		executed = append(executed, command)
		return nil
	})
	if err != nil {
		t.Fatalf("ShowMenu failed: %v", err)
	}
	if !ok {
		t.Error("empty line should finish the menu normally")
	}
	if len(executed) != 2 || executed[0] != "AT" || executed[1] != "ATI" {
		t.Errorf("expected valid picks executed, got %v", executed)
	}
}

func TestParityLetter(t *testing.T) {
	tests := []struct {
		parity string
		want   string
	}{
		{"none", "N"},
		{"even", "E"},
		{"odd", "O"},
		{"", "N"},
	}
	for _, tt := range tests {
		if got := parityLetter(tt.parity); got != tt.want {
			t.Errorf("parityLetter(%q) = %q, want %q", tt.parity, got, tt.want)
		}
	}
}
