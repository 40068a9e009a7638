package macro

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// The on-disk macro format is a fixed external contract shared with the
// desktop editor:
//
//	name: <macro name>
//	steps:
//	  - input: AT
//	  - delay: 500
//	  - dialog_wait: {message: "Swap the SIM card"}
//	  - output: {expected: OK, timeout: 1000, substring: true, fail: EXIT}
//	  - menu_single: {commands: [AT+CSQ, AT+CREG?]}
//	  - menu_multi: {commands: [AT+CFUN=0, AT+CFUN=1]}
//
// output success/fail actions are either a scalar token
// (CONTINUE | IGNORE | EXIT | DIALOG | CONFIRM) or the mapping
// {input: <command>}; a missing action means CONTINUE.

type rawMacro struct {
	Name  string    `yaml:"name"`
	Steps []rawStep `yaml:"steps"`
}

type rawStep struct {
	Input      *string    `yaml:"input,omitempty"`
	Delay      *int       `yaml:"delay,omitempty"`
	DialogWait *rawDialog `yaml:"dialog_wait,omitempty"`
	Output     *rawOutput `yaml:"output,omitempty"`
	MenuSingle *rawMenu   `yaml:"menu_single,omitempty"`
	MenuMulti  *rawMenu   `yaml:"menu_multi,omitempty"`
}

type rawDialog struct {
	Message string `yaml:"message"`
}

type rawOutput struct {
	Expected  string    `yaml:"expected"`
	Timeout   int       `yaml:"timeout"`
	Substring *bool     `yaml:"substring,omitempty"`
	Success   yaml.Node `yaml:"success,omitempty"`
	Fail      yaml.Node `yaml:"fail,omitempty"`
}

type rawMenu struct {
	Commands []string `yaml:"commands"`
}

const defaultExpectTimeout = 1000 // milliseconds, matching the editor default

// Decode parses a macro from its YAML representation
func Decode(data []byte) (*Macro, error) {
	var raw rawMacro
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse macro: %w", err)
	}

	m := &Macro{Name: raw.Name}
	for i, rs := range raw.Steps {
		step, err := decodeStep(rs)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		m.Steps = append(m.Steps, step)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return m, nil
}

func decodeStep(rs rawStep) (Step, error) {
	set := 0
	if rs.Input != nil {
		set++
	}
	if rs.Delay != nil {
		set++
	}
	if rs.DialogWait != nil {
		set++
	}
	if rs.Output != nil {
		set++
	}
	if rs.MenuSingle != nil {
		set++
	}
	if rs.MenuMulti != nil {
		set++
	}
	if set != 1 {
		return nil, fmt.Errorf("step must have exactly one of input, delay, dialog_wait, output, menu_single, menu_multi")
	}

	switch {
	case rs.Input != nil:
		return SendStep{Command: *rs.Input}, nil

	case rs.Delay != nil:
		return DelayStep{Duration: time.Duration(*rs.Delay) * time.Millisecond}, nil

	case rs.DialogWait != nil:
		return DialogWaitStep{Message: rs.DialogWait.Message}, nil

	case rs.Output != nil:
		out := rs.Output
		timeout := out.Timeout
		if timeout == 0 {
			timeout = defaultExpectTimeout
		}
		substring := true
		if out.Substring != nil {
			substring = *out.Substring
		}
		success, err := decodeAction(out.Success)
		if err != nil {
			return nil, fmt.Errorf("success action: %w", err)
		}
		fail, err := decodeAction(out.Fail)
		if err != nil {
			return nil, fmt.Errorf("fail action: %w", err)
		}
		return ExpectStep{
			Expected:  out.Expected,
			Timeout:   time.Duration(timeout) * time.Millisecond,
			Substring: substring,
			OnSuccess: success,
			OnFail:    fail,
		}, nil

	case rs.MenuSingle != nil:
		return MenuSingleStep{Commands: rs.MenuSingle.Commands}, nil

	default:
		return MenuMultiStep{Commands: rs.MenuMulti.Commands}, nil
	}
}

func decodeAction(node yaml.Node) (Action, error) {
	switch node.Kind {
	case 0: // absent
		return Action{Kind: ActionContinue}, nil

	case yaml.ScalarNode:
		switch node.Value {
		case "CONTINUE", "":
			return Action{Kind: ActionContinue}, nil
		case "IGNORE":
			return Action{Kind: ActionIgnore}, nil
		case "EXIT":
			return Action{Kind: ActionExit}, nil
		case "DIALOG":
			return Action{Kind: ActionPrompt}, nil
		case "CONFIRM":
			return Action{Kind: ActionConfirm}, nil
		default:
			return Action{}, fmt.Errorf("unknown action %q", node.Value)
		}

	case yaml.MappingNode:
		var body struct {
			Input string `yaml:"input"`
		}
		if err := node.Decode(&body); err != nil {
			return Action{}, fmt.Errorf("invalid action mapping: %w", err)
		}
		if body.Input == "" {
			return Action{}, fmt.Errorf("action mapping needs a non-empty input")
		}
		return Action{Kind: ActionSend, Command: body.Input}, nil

	default:
		return Action{}, fmt.Errorf("action must be a token or {input: command}")
	}
}

// Encode serializes a macro back to its YAML representation
func Encode(m *Macro) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	raw := rawMacro{Name: m.Name}
	for i, step := range m.Steps {
		rs, err := encodeStep(step)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		raw.Steps = append(raw.Steps, rs)
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal macro: %w", err)
	}
	return data, nil
}

func encodeStep(step Step) (rawStep, error) {
	switch s := step.(type) {
	case SendStep:
		return rawStep{Input: &s.Command}, nil
	case DelayStep:
		ms := int(s.Duration / time.Millisecond)
		return rawStep{Delay: &ms}, nil
	case DialogWaitStep:
		return rawStep{DialogWait: &rawDialog{Message: s.Message}}, nil
	case ExpectStep:
		out := &rawOutput{
			Expected: s.Expected,
			Timeout:  int(s.Timeout / time.Millisecond),
		}
		if !s.Substring {
			substring := false
			out.Substring = &substring
		}
		success, err := encodeAction(s.OnSuccess)
		if err != nil {
			return rawStep{}, fmt.Errorf("success action: %w", err)
		}
		fail, err := encodeAction(s.OnFail)
		if err != nil {
			return rawStep{}, fmt.Errorf("fail action: %w", err)
		}
		out.Success = success
		out.Fail = fail
		return rawStep{Output: out}, nil
	case MenuSingleStep:
		return rawStep{MenuSingle: &rawMenu{Commands: s.Commands}}, nil
	case MenuMultiStep:
		return rawStep{MenuMulti: &rawMenu{Commands: s.Commands}}, nil
	default:
		return rawStep{}, fmt.Errorf("unknown step type %T", step)
	}
}

func encodeAction(a Action) (yaml.Node, error) {
	var node yaml.Node
	switch a.Kind {
	case ActionContinue:
		// omitted, CONTINUE is the default
		return node, nil
	case ActionSend:
		if err := node.Encode(map[string]string{"input": a.Command}); err != nil {
			return node, fmt.Errorf("failed to encode action: %w", err)
		}
		return node, nil
	default:
		if err := node.Encode(a.Kind.String()); err != nil {
			return node, fmt.Errorf("failed to encode action: %w", err)
		}
		return node, nil
	}
}
