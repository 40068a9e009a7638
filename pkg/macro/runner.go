package macro

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/DJA-prog/Serial-Gui/pkg/session"
)

// Transport is the outbound boundary the interpreter writes commands
// through. Implementations append the configured line terminator.
type Transport interface {
	Send(command string) error
}

// Gateway mediates blocking operator decisions. Calls block the interpreter
// goroutine until the UI delivers a response.
type Gateway interface {
	// Confirm shows message with continue/end options
	Confirm(message string) (bool, error)
	// PromptText asks for a free-text command; ok is false on cancel
	PromptText(message string) (string, bool, error)
	// ShowMenu presents commands. In single mode the selection is
	// returned. In multi mode onExecute is invoked for every pick and the
	// call returns once the operator signals completion.
	ShowMenu(commands []string, multi bool, onExecute func(string) error) (string, bool, error)
}

// Notifier mirrors run progress into the visible transcript. It must not
// block the interpreter.
type Notifier func(text string)

// Result is the terminal state of a macro run
type Result int

const (
	ResultCompleted Result = iota
	ResultAborted
	ResultFailed
)

// String returns the string representation of Result
func (r Result) String() string {
	switch r {
	case ResultCompleted:
		return "completed"
	case ResultAborted:
		return "aborted"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrRunActive is returned when a run is requested while one is in progress
var ErrRunActive = fmt.Errorf("a macro run is already active")

// StepError reports a failure inside a specific step
type StepError struct {
	Index int
	Step  StepKind
	Cause error
}

// Error implements the error interface
func (e *StepError) Error() string {
	return fmt.Sprintf("macro step %d (%s) failed: %v", e.Index, e.Step, e.Cause)
}

// Unwrap returns the underlying cause
func (e *StepError) Unwrap() error { return e.Cause }

// RunnerConfig wires the interpreter's collaborators
type RunnerConfig struct {
	Transport Transport
	Gateway   Gateway
	Notify    Notifier
	Logger    pslog.Logger
	// OnFinish, if set, is called exactly once per run after the terminal
	// state is reached. err is non-nil only for ResultFailed.
	OnFinish func(name string, result Result, err error)
}

// Runner executes macros one at a time on a dedicated goroutine. The UI
// goroutine stays free: every blocking decision goes through the Gateway
// and every sleep or wait happens on the runner's own goroutine.
type Runner struct {
	transport Transport
	gateway   Gateway
	notify    Notifier
	logger    pslog.Logger
	onFinish  func(string, Result, error)

	buf *session.Buffer

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
}

// NewRunner creates a macro runner
func NewRunner(cfg RunnerConfig) *Runner {
	notify := cfg.Notify
	if notify == nil {
		notify = func(string) {}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Runner{
		transport: cfg.Transport,
		gateway:   cfg.Gateway,
		notify:    notify,
		logger:    logger,
		onFinish:  cfg.OnFinish,
		buf:       session.NewBuffer(),
	}
}

// Buffer returns the session buffer incoming lines are matched against.
// The serial reader appends to it while a run is active.
func (r *Runner) Buffer() *session.Buffer {
	return r.buf
}

// Active reports whether a run is in progress
func (r *Runner) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Abort cancels the active run, if any
func (r *Runner) Abort() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Start begins executing m on a new goroutine. At most one run may be
// active; a second request is rejected with ErrRunActive.
func (r *Runner) Start(ctx context.Context, m *Macro) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid macro: %w", err)
	}

	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return ErrRunActive
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.active = true
	r.cancel = cancel
	r.mu.Unlock()

	go func() {
		defer cancel()
		result, err := r.run(runCtx, m)

		r.mu.Lock()
		r.active = false
		r.cancel = nil
		r.mu.Unlock()

		switch result {
		case ResultCompleted:
			r.notify(fmt.Sprintf("Macro %q completed", m.Name))
		case ResultAborted:
			r.notify(fmt.Sprintf("Macro %q ended", m.Name))
		case ResultFailed:
			r.notify(fmt.Sprintf("Macro %q failed: %v", m.Name, err))
		}
		r.logger.Info("macro run finished", "macro", m.Name, "result", result.String())

		if r.onFinish != nil {
			r.onFinish(m.Name, result, err)
		}
	}()

	return nil
}

// Run executes m synchronously. It is the blocking form of Start, used by
// the headless CLI path.
func (r *Runner) Run(ctx context.Context, m *Macro) (Result, error) {
	done := make(chan struct{})
	var (
		result Result
		runErr error
	)

	cfgFinish := r.onFinish
	r.mu.Lock()
	r.onFinish = func(_ string, res Result, err error) {
		result, runErr = res, err
		if cfgFinish != nil {
			cfgFinish(m.Name, res, err)
		}
		close(done)
	}
	r.mu.Unlock()

	if err := r.Start(ctx, m); err != nil {
		r.mu.Lock()
		r.onFinish = cfgFinish
		r.mu.Unlock()
		return ResultFailed, err
	}

	<-done
	r.mu.Lock()
	r.onFinish = cfgFinish
	r.mu.Unlock()
	return result, runErr
}

// run walks the step list in order. Each step fully resolves (including
// its blocking dialog, delay or wait) before the next one starts.
func (r *Runner) run(ctx context.Context, m *Macro) (result Result, err error) {
	r.buf.Clear()
	r.notify(fmt.Sprintf("Macro %q started (%d steps)", m.Name, len(m.Steps)))
	r.logger.Info("macro run started", "macro", m.Name, "steps", len(m.Steps))

	for i, step := range m.Steps {
		outcome, stepErr := r.execStep(ctx, i, step)
		if stepErr != nil {
			return ResultFailed, stepErr
		}
		switch outcome {
		case outcomeExit:
			return ResultCompleted, nil
		case outcomeAbort:
			return ResultAborted, nil
		}
	}

	return ResultCompleted, nil
}

type stepOutcome int

const (
	outcomeContinue stepOutcome = iota
	outcomeExit
	outcomeAbort
)

// execStep runs one step with panic containment: a programming error in a
// step fails the run, not the application, and cannot leave the buffer
// lock held because the buffer only locks inside its own methods.
func (r *Runner) execStep(ctx context.Context, index int, step Step) (outcome stepOutcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &StepError{Index: index, Step: step.Kind(), Cause: fmt.Errorf("panic: %v", rec)}
			r.logger.Error("macro step panicked", "step", index, "kind", step.Kind().String(), "panic", rec)
		}
	}()

	r.logger.Debug("macro step", "step", index, "kind", step.Kind().String())

	outcome, cause := r.dispatch(ctx, step)
	if cause != nil {
		return outcomeAbort, &StepError{Index: index, Step: step.Kind(), Cause: cause}
	}
	return outcome, nil
}

func (r *Runner) dispatch(ctx context.Context, step Step) (stepOutcome, error) {
	switch s := step.(type) {
	case SendStep:
		if err := r.send(s.Command); err != nil {
			return outcomeAbort, err
		}
		return outcomeContinue, nil

	case DelayStep:
		// the buffer is cleared so a following ExpectStep only observes
		// output produced after the pause
		r.buf.Clear()
		select {
		case <-time.After(s.Duration):
			return outcomeContinue, nil
		case <-ctx.Done():
			return outcomeAbort, nil
		}

	case DialogWaitStep:
		r.buf.Clear()
		ok, err := r.gateway.Confirm(s.Message)
		if err != nil {
			return outcomeAbort, fmt.Errorf("dialog: %w", err)
		}
		if !ok {
			return outcomeAbort, nil
		}
		return outcomeContinue, nil

	case ExpectStep:
		matched := r.buf.WaitFor(ctx, s.Expected, s.Timeout, s.Substring)
		if ctx.Err() != nil {
			return outcomeAbort, nil
		}
		if matched {
			r.notify(fmt.Sprintf("Matched %q", s.Expected))
			return r.applyAction(s.OnSuccess, false)
		}
		r.notify(fmt.Sprintf("No %q within %v", s.Expected, s.Timeout))
		return r.applyAction(s.OnFail, true)

	case MenuSingleStep:
		command, ok, err := r.gateway.ShowMenu(s.Commands, false, nil)
		if err != nil {
			return outcomeAbort, fmt.Errorf("menu: %w", err)
		}
		if !ok || command == "" {
			// cancelled, proceed without sending
			return outcomeContinue, nil
		}
		if err := r.send(command); err != nil {
			return outcomeAbort, err
		}
		return outcomeContinue, nil

	case MenuMultiStep:
		var (
			execMu  sync.Mutex
			execErr error
		)
		onExecute := func(command string) error {
			err := r.send(command)
			if err != nil {
				execMu.Lock()
				if execErr == nil {
					execErr = err
				}
				execMu.Unlock()
			}
			return err
		}
		if _, _, err := r.gateway.ShowMenu(s.Commands, true, onExecute); err != nil {
			return outcomeAbort, fmt.Errorf("menu: %w", err)
		}
		execMu.Lock()
		defer execMu.Unlock()
		if execErr != nil {
			return outcomeAbort, execErr
		}
		return outcomeContinue, nil

	default:
		return outcomeAbort, fmt.Errorf("unknown step type %T", step)
	}
}

// applyAction evaluates an ExpectStep branch. failed reports whether the
// expectation was unmet: EXIT there ends the run as aborted rather than
// completed, so a missing response is never reported as success.
func (r *Runner) applyAction(a Action, failed bool) (stepOutcome, error) {
	switch a.Kind {
	case ActionIgnore, ActionContinue:
		return outcomeContinue, nil

	case ActionExit:
		if failed {
			return outcomeAbort, nil
		}
		return outcomeExit, nil

	case ActionSend:
		if err := r.send(a.Command); err != nil {
			return outcomeAbort, err
		}
		return outcomeContinue, nil

	case ActionPrompt:
		command, ok, err := r.gateway.PromptText("Enter command to send")
		if err != nil {
			return outcomeAbort, fmt.Errorf("prompt: %w", err)
		}
		if ok && command != "" {
			if err := r.send(command); err != nil {
				return outcomeAbort, err
			}
		}
		// proceed whether or not a command was provided
		return outcomeContinue, nil

	case ActionConfirm:
		ok, err := r.gateway.Confirm("Continue macro?")
		if err != nil {
			return outcomeAbort, fmt.Errorf("confirm: %w", err)
		}
		if !ok {
			return outcomeAbort, nil
		}
		return outcomeContinue, nil

	default:
		return outcomeAbort, fmt.Errorf("unknown action kind %d", a.Kind)
	}
}

// send is the single outbound path: clear the session buffer so the next
// ExpectStep only sees responses to this command, then transmit and echo.
// Gateway-triggered sends from a multi menu come through here too.
func (r *Runner) send(command string) error {
	r.buf.Clear()
	if err := r.transport.Send(command); err != nil {
		r.notify(fmt.Sprintf("Send failed: %v", err))
		return fmt.Errorf("transport: %w", err)
	}
	r.notify("< " + command)
	return nil
}
