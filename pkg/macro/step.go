// Package macro defines serial automation macros and the interpreter that
// executes them against a live serial connection.
package macro

import (
	"fmt"
	"time"
)

// StepKind identifies the variant of a macro step
type StepKind int

const (
	KindSend StepKind = iota
	KindDelay
	KindDialogWait
	KindExpect
	KindMenuSingle
	KindMenuMulti
)

// String returns the string representation of StepKind
func (k StepKind) String() string {
	switch k {
	case KindSend:
		return "input"
	case KindDelay:
		return "delay"
	case KindDialogWait:
		return "dialog_wait"
	case KindExpect:
		return "output"
	case KindMenuSingle:
		return "menu_single"
	case KindMenuMulti:
		return "menu_multi"
	default:
		return "unknown"
	}
}

// Step is one unit of a macro. The set of implementations is closed; the
// interpreter switches exhaustively over them.
type Step interface {
	Kind() StepKind
}

// SendStep transmits a command with the configured line terminator
type SendStep struct {
	Command string
}

// Kind returns KindSend
func (SendStep) Kind() StepKind { return KindSend }

// DelayStep pauses the run for a fixed duration
type DelayStep struct {
	Duration time.Duration
}

// Kind returns KindDelay
func (DelayStep) Kind() StepKind { return KindDelay }

// DialogWaitStep pauses the run until the operator chooses to continue or end
type DialogWaitStep struct {
	Message string
}

// Kind returns KindDialogWait
func (DialogWaitStep) Kind() StepKind { return KindDialogWait }

// ExpectStep waits for a matching line from the device and branches on the
// outcome. The session buffer is deliberately not cleared here: the
// preceding trigger step cleared it, so only responses to that trigger are
// visible.
type ExpectStep struct {
	Expected  string
	Timeout   time.Duration
	Substring bool
	OnSuccess Action
	OnFail    Action
}

// Kind returns KindExpect
func (ExpectStep) Kind() StepKind { return KindExpect }

// MenuSingleStep offers a list of commands; the selection, if any, is sent
type MenuSingleStep struct {
	Commands []string
}

// Kind returns KindMenuSingle
func (MenuSingleStep) Kind() StepKind { return KindMenuSingle }

// MenuMultiStep offers a list of commands where every pick is sent
// immediately; the menu stays open until the operator signals completion
type MenuMultiStep struct {
	Commands []string
}

// Kind returns KindMenuMulti
func (MenuMultiStep) Kind() StepKind { return KindMenuMulti }

// ActionKind identifies the branch taken after an ExpectStep resolves
type ActionKind int

const (
	ActionContinue ActionKind = iota
	ActionIgnore
	ActionExit
	ActionSend
	ActionPrompt
	ActionConfirm
)

// String returns the string representation of ActionKind
func (k ActionKind) String() string {
	switch k {
	case ActionContinue:
		return "CONTINUE"
	case ActionIgnore:
		return "IGNORE"
	case ActionExit:
		return "EXIT"
	case ActionSend:
		return "input"
	case ActionPrompt:
		return "DIALOG"
	case ActionConfirm:
		return "CONFIRM"
	default:
		return "unknown"
	}
}

// Action is the reaction to an ExpectStep outcome. Command is only
// meaningful for ActionSend.
type Action struct {
	Kind    ActionKind
	Command string
}

// Macro is a named, ordered list of steps. It is immutable during a run.
type Macro struct {
	Name  string
	Steps []Step
}

// Validate checks the macro for structural problems before a run
func (m *Macro) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("macro name cannot be empty")
	}
	if len(m.Steps) == 0 {
		return fmt.Errorf("macro %q has no steps", m.Name)
	}

	for i, step := range m.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}

	return nil
}

func validateStep(step Step) error {
	switch s := step.(type) {
	case SendStep:
		if s.Command == "" {
			return fmt.Errorf("input command cannot be empty")
		}
	case DelayStep:
		if s.Duration < 0 {
			return fmt.Errorf("delay cannot be negative")
		}
	case DialogWaitStep:
		// an empty message is allowed, the dialog still renders
	case ExpectStep:
		if s.Expected == "" {
			return fmt.Errorf("expected output cannot be empty")
		}
		if s.Timeout <= 0 {
			return fmt.Errorf("output timeout must be positive")
		}
	case MenuSingleStep:
		if len(s.Commands) == 0 {
			return fmt.Errorf("menu_single needs at least one command")
		}
	case MenuMultiStep:
		if len(s.Commands) == 0 {
			return fmt.Errorf("menu_multi needs at least one command")
		}
	default:
		return fmt.Errorf("unknown step type %T", step)
	}
	return nil
}
