package macro

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeTransport records sent commands and can simulate device responses
// or transmit failures.
type fakeTransport struct {
	mu     sync.Mutex
	sent   []string
	err    error
	onSend func(command string)
}

func (f *fakeTransport) Send(command string) error {
	f.mu.Lock()
	f.sent = append(f.sent, command)
	onSend := f.onSend
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if onSend != nil {
		onSend(command)
	}
	return nil
}

func (f *fakeTransport) sentCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// scriptedGateway answers operator interactions from function fields
type scriptedGateway struct {
	confirm  func(message string) (bool, error)
	prompt   func(message string) (string, bool, error)
	showMenu func(commands []string, multi bool, onExecute func(string) error) (string, bool, error)
}

func (g *scriptedGateway) Confirm(message string) (bool, error) {
	if g.confirm == nil {
		return true, nil
	}
	return g.confirm(message)
}

func (g *scriptedGateway) PromptText(message string) (string, bool, error) {
	if g.prompt == nil {
		return "", false, nil
	}
	return g.prompt(message)
}

func (g *scriptedGateway) ShowMenu(commands []string, multi bool, onExecute func(string) error) (string, bool, error) {
	if g.showMenu == nil {
		return "", false, nil
	}
	return g.showMenu(commands, multi, onExecute)
}

func newTestRunner(transport Transport, gateway Gateway) *Runner {
	return NewRunner(RunnerConfig{
		Transport: transport,
		Gateway:   gateway,
	})
}

func TestRunner_SendAndExpect(t *testing.T) {
	transport := &fakeTransport{}
	runner := newTestRunner(transport, &scriptedGateway{})
	transport.onSend = func(command string) {
		if command == "AT" {
			runner.Buffer().Append("OK")
		}
	}

	m := &Macro{
		Name: "ping",
		Steps: []Step{
			SendStep{Command: "AT"},
			ExpectStep{
				Expected:  "OK",
				Timeout:   500 * time.Millisecond,
				Substring: true,
				OnFail:    Action{Kind: ActionExit},
			},
			SendStep{Command: "AT+CSQ"},
		},
	}

	result, err := runner.Run(context.Background(), m)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result != ResultCompleted {
		t.Errorf("expected ResultCompleted, got %v", result)
	}

	sent := transport.sentCommands()
	if len(sent) != 2 || sent[0] != "AT" || sent[1] != "AT+CSQ" {
		t.Errorf("expected [AT AT+CSQ], got %v", sent)
	}
}

func TestRunner_ExpectTimeoutExit(t *testing.T) {
	transport := &fakeTransport{}
	runner := newTestRunner(transport, &scriptedGateway{})

	m := &Macro{
		Name: "ping",
		Steps: []Step{
			SendStep{Command: "AT"},
			ExpectStep{
				Expected:  "OK",
				Timeout:   50 * time.Millisecond,
				Substring: true,
				OnFail:    Action{Kind: ActionExit},
			},
			SendStep{Command: "AT+CSQ"},
		},
	}

	result, err := runner.Run(context.Background(), m)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result != ResultAborted {
		t.Errorf("EXIT on an unmet expectation should end the run as aborted, got %v", result)
	}
	if sent := transport.sentCommands(); len(sent) != 1 {
		t.Errorf("expected only the first command sent, got %v", sent)
	}
}

func TestRunner_ExpectExitOnSuccess(t *testing.T) {
	transport := &fakeTransport{}
	runner := newTestRunner(transport, &scriptedGateway{})
	transport.onSend = func(command string) {
		runner.Buffer().Append("READY")
	}

	m := &Macro{
		Name: "boot",
		Steps: []Step{
			SendStep{Command: "AT"},
			ExpectStep{
				Expected:  "READY",
				Timeout:   500 * time.Millisecond,
				Substring: true,
				OnSuccess: Action{Kind: ActionExit},
			},
			SendStep{Command: "AT+CSQ"},
		},
	}

	result, err := runner.Run(context.Background(), m)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result != ResultCompleted {
		t.Errorf("EXIT on a met expectation should end the run as completed, got %v", result)
	}
	if sent := transport.sentCommands(); len(sent) != 1 {
		t.Errorf("expected the remaining steps to be skipped, got %v", sent)
	}
}

func TestRunner_SendClearsBuffer(t *testing.T) {
	transport := &fakeTransport{}
	runner := newTestRunner(transport, &scriptedGateway{})

	// stale line that must not satisfy the match after the send
	runner.Buffer().Append("OK")

	m := &Macro{
		Name: "stale",
		Steps: []Step{
			SendStep{Command: "AT"},
			ExpectStep{
				Expected:  "OK",
				Timeout:   50 * time.Millisecond,
				Substring: true,
				OnSuccess: Action{Kind: ActionSend, Command: "MATCHED"},
			},
		},
	}

	result, err := runner.Run(context.Background(), m)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result != ResultCompleted {
		t.Errorf("expected ResultCompleted, got %v", result)
	}
	for _, command := range transport.sentCommands() {
		if command == "MATCHED" {
			t.Error("stale buffer line satisfied the match after a send")
		}
	}
}

func TestRunner_DelayClearsBuffer(t *testing.T) {
	transport := &fakeTransport{}
	runner := newTestRunner(transport, &scriptedGateway{})
	runner.Buffer().Append("OK")

	m := &Macro{
		Name: "pause",
		Steps: []Step{
			DelayStep{Duration: 10 * time.Millisecond},
		},
	}

	if _, err := runner.Run(context.Background(), m); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if runner.Buffer().Len() != 0 {
		t.Errorf("delay should clear the buffer, %d lines remain", runner.Buffer().Len())
	}
}

func TestRunner_DialogWait(t *testing.T) {
	tests := []struct {
		name     string
		proceed  bool
		want     Result
		wantSent int
	}{
		{"operator continues", true, ResultCompleted, 1},
		{"operator ends", false, ResultAborted, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{}
			var gotMessage string
			gateway := &scriptedGateway{
				confirm: func(message string) (bool, error) {
					gotMessage = message
					return tt.proceed, nil
				},
			}
			runner := newTestRunner(transport, gateway)

			m := &Macro{
				Name: "swap",
				Steps: []Step{
					DialogWaitStep{Message: "Swap the SIM"},
					SendStep{Command: "AT"},
				},
			}

			result, err := runner.Run(context.Background(), m)
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if result != tt.want {
				t.Errorf("expected %v, got %v", tt.want, result)
			}
			if gotMessage != "Swap the SIM" {
				t.Errorf("expected dialog message to reach the gateway, got %q", gotMessage)
			}
			if len(transport.sentCommands()) != tt.wantSent {
				t.Errorf("expected %d sends, got %v", tt.wantSent, transport.sentCommands())
			}
		})
	}
}

func TestRunner_FailPromptSendsTypedCommand(t *testing.T) {
	transport := &fakeTransport{}
	gateway := &scriptedGateway{
		prompt: func(string) (string, bool, error) {
			return "AT+CFUN=1,1", true, nil
		},
	}
	runner := newTestRunner(transport, gateway)

	m := &Macro{
		Name: "recover",
		Steps: []Step{
			ExpectStep{
				Expected:  "READY",
				Timeout:   50 * time.Millisecond,
				Substring: true,
				OnFail:    Action{Kind: ActionPrompt},
			},
		},
	}

	result, err := runner.Run(context.Background(), m)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result != ResultCompleted {
		t.Errorf("expected ResultCompleted, got %v", result)
	}
	sent := transport.sentCommands()
	if len(sent) != 1 || sent[0] != "AT+CFUN=1,1" {
		t.Errorf("expected the typed command to be sent, got %v", sent)
	}
}

func TestRunner_FailConfirmDecline(t *testing.T) {
	gateway := &scriptedGateway{
		confirm: func(string) (bool, error) { return false, nil },
	}
	runner := newTestRunner(&fakeTransport{}, gateway)

	m := &Macro{
		Name: "check",
		Steps: []Step{
			ExpectStep{
				Expected:  "READY",
				Timeout:   50 * time.Millisecond,
				Substring: true,
				OnFail:    Action{Kind: ActionConfirm},
			},
			SendStep{Command: "AT"},
		},
	}

	result, err := runner.Run(context.Background(), m)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result != ResultAborted {
		t.Errorf("declining CONFIRM should abort, got %v", result)
	}
}

func TestRunner_MenuSingle(t *testing.T) {
	transport := &fakeTransport{}
	gateway := &scriptedGateway{
		showMenu: func(commands []string, multi bool, _ func(string) error) (string, bool, error) {
			if multi {
				t.Error("menu_single should not request multi mode")
			}
			return commands[1], true, nil
		},
	}
	runner := newTestRunner(transport, gateway)

	m := &Macro{
		Name: "pick",
		Steps: []Step{
			MenuSingleStep{Commands: []string{"AT+CSQ", "AT+CREG?"}},
		},
	}

	if _, err := runner.Run(context.Background(), m); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	sent := transport.sentCommands()
	if len(sent) != 1 || sent[0] != "AT+CREG?" {
		t.Errorf("expected the selection to be sent, got %v", sent)
	}
}

func TestRunner_MenuMultiSendsEachPick(t *testing.T) {
	transport := &fakeTransport{}
	gateway := &scriptedGateway{
		showMenu: func(commands []string, multi bool, onExecute func(string) error) (string, bool, error) {
			if !multi {
				t.Error("menu_multi should request multi mode")
			}
			for _, command := range commands {
				if err := onExecute(command); err != nil {
					return "", false, nil
				}
			}
			return "", true, nil
		},
	}
	runner := newTestRunner(transport, gateway)

	m := &Macro{
		Name: "batch",
		Steps: []Step{
			MenuMultiStep{Commands: []string{"AT+CFUN=0", "AT+CFUN=1"}},
		},
	}

	if _, err := runner.Run(context.Background(), m); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	sent := transport.sentCommands()
	if len(sent) != 2 || sent[0] != "AT+CFUN=0" || sent[1] != "AT+CFUN=1" {
		t.Errorf("expected both picks sent in order, got %v", sent)
	}
}

func TestRunner_TransportErrorFailsRun(t *testing.T) {
	transport := &fakeTransport{err: errors.New("port closed")}
	runner := newTestRunner(transport, &scriptedGateway{})

	m := &Macro{
		Name:  "broken",
		Steps: []Step{SendStep{Command: "AT"}},
	}

	result, err := runner.Run(context.Background(), m)
	if result != ResultFailed {
		t.Errorf("expected ResultFailed, got %v", result)
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected a StepError, got %v", err)
	}
	if stepErr.Index != 0 {
		t.Errorf("expected failure at step 0, got %d", stepErr.Index)
	}
}

func TestRunner_SecondRunRejected(t *testing.T) {
	gateway := &scriptedGateway{}
	release := make(chan struct{})
	gateway.confirm = func(string) (bool, error) {
		<-release
		return true, nil
	}
	runner := newTestRunner(&fakeTransport{}, gateway)

	m := &Macro{
		Name:  "slow",
		Steps: []Step{DialogWaitStep{Message: "wait"}},
	}

	done := make(chan struct{})

	if err := runner.Start(context.Background(), m); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	// wait for the run to reach the blocking dialog
	deadline := time.Now().Add(time.Second)
	for !runner.Active() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if err := runner.Start(context.Background(), m); !errors.Is(err, ErrRunActive) {
		t.Errorf("expected ErrRunActive, got %v", err)
	}

	close(release)
	go func() {
		for runner.Active() {
			time.Sleep(time.Millisecond)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish after dialog release")
	}
}

func TestRunner_Abort(t *testing.T) {
	transport := &fakeTransport{}
	runner := newTestRunner(transport, &scriptedGateway{})

	m := &Macro{
		Name: "long",
		Steps: []Step{
			DelayStep{Duration: 10 * time.Second},
			SendStep{Command: "AT"},
		},
	}

	var (
		mu       sync.Mutex
		finished Result
	)
	done := make(chan struct{})
	runner.onFinish = func(_ string, result Result, _ error) {
		mu.Lock()
		finished = result
		mu.Unlock()
		close(done)
	}

	if err := runner.Start(context.Background(), m); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	runner.Abort()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("aborted run did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	if finished != ResultAborted {
		t.Errorf("expected ResultAborted, got %v", finished)
	}
	if len(transport.sentCommands()) != 0 {
		t.Errorf("no command should be sent after abort, got %v", transport.sentCommands())
	}
}

func TestRunner_PanicInStepFailsRun(t *testing.T) {
	transport := &fakeTransport{}
	gateway := &scriptedGateway{
		showMenu: func([]string, bool, func(string) error) (string, bool, error) {
			panic("boom")
		},
	}
	runner := newTestRunner(transport, gateway)

	m := &Macro{
		Name: "explosive",
		Steps: []Step{
			SendStep{Command: "AT"},
			MenuSingleStep{Commands: []string{"AT+CSQ"}},
		},
	}

	result, err := runner.Run(context.Background(), m)
	if result != ResultFailed {
		t.Errorf("expected ResultFailed, got %v", result)
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected a StepError, got %v", err)
	}
	if stepErr.Index != 1 {
		t.Errorf("expected failure at step 1, got %d", stepErr.Index)
	}
}

func TestRunner_NotifyTranscript(t *testing.T) {
	var (
		mu    sync.Mutex
		lines []string
	)
	transport := &fakeTransport{}
	runner := NewRunner(RunnerConfig{
		Transport: transport,
		Gateway:   &scriptedGateway{},
		Notify: func(text string) {
			mu.Lock()
			lines = append(lines, text)
			mu.Unlock()
		},
	})

	m := &Macro{
		Name:  "echo",
		Steps: []Step{SendStep{Command: "AT"}},
	}

	if _, err := runner.Run(context.Background(), m); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	var sawEcho, sawCompleted bool
	for _, line := range lines {
		if line == "< AT" {
			sawEcho = true
		}
		if line == fmt.Sprintf("Macro %q completed", "echo") {
			sawCompleted = true
		}
	}
	if !sawEcho {
		t.Errorf("expected '< AT' in the transcript, got %v", lines)
	}
	if !sawCompleted {
		t.Errorf("expected completion notice in the transcript, got %v", lines)
	}
}
