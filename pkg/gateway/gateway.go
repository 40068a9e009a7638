// Package gateway carries operator interaction between a macro run and
// whatever surface answers it, an interactive screen or a scripted
// responder. The macro goroutine blocks on a request until exactly one
// response arrives.
package gateway

import (
	"fmt"
	"sync"
)

// RequestKind identifies the interaction a run is asking for
type RequestKind int

const (
	// RequestConfirm asks a yes/no question
	RequestConfirm RequestKind = iota
	// RequestPrompt asks for a free-text command
	RequestPrompt
	// RequestMenu asks for a selection from a command list
	RequestMenu
)

// String returns the string representation of RequestKind
func (k RequestKind) String() string {
	switch k {
	case RequestConfirm:
		return "confirm"
	case RequestPrompt:
		return "prompt"
	case RequestMenu:
		return "menu"
	default:
		return "unknown"
	}
}

// Request is one pending operator interaction. The receiver must call
// Respond exactly once.
type Request struct {
	Kind    RequestKind
	Message string

	// Commands and Multi are set for RequestMenu
	Commands []string
	Multi    bool

	// Execute is set for multi menus: the surface calls it for every
	// pick while the menu stays open. It returns the transmit error so
	// the surface can surface it immediately.
	Execute func(command string) error

	reply chan Response
}

// Response resolves a Request. Text carries the prompt input or the
// single-menu selection; OK is false when the operator cancelled or
// declined.
type Response struct {
	OK   bool
	Text string
}

// Respond delivers the response for this request. Calling it more than
// once panics, matching the one-response contract.
func (r *Request) Respond(resp Response) {
	r.reply <- resp
	close(r.reply)
}

// ErrClosed is returned to a run blocked on a request when the bridge
// shuts down underneath it.
var ErrClosed = fmt.Errorf("interaction gateway closed")

// Bridge is a Gateway whose requests are serviced over a channel by
// another goroutine, typically the screen's event loop.
type Bridge struct {
	requests chan *Request

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewBridge creates an open bridge
func NewBridge() *Bridge {
	return &Bridge{
		requests: make(chan *Request),
		done:     make(chan struct{}),
	}
}

// Requests exposes the pending-interaction channel for the servicing
// goroutine to select on
func (b *Bridge) Requests() <-chan *Request {
	return b.requests
}

// Close shuts the bridge down. Runs blocked on a request, and future
// requests, fail with ErrClosed.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}

func (b *Bridge) submit(req *Request) (Response, error) {
	req.reply = make(chan Response, 1)

	select {
	case b.requests <- req:
	case <-b.done:
		return Response{}, ErrClosed
	}

	select {
	case resp := <-req.reply:
		return resp, nil
	case <-b.done:
		return Response{}, ErrClosed
	}
}

// Confirm implements the confirm interaction
func (b *Bridge) Confirm(message string) (bool, error) {
	resp, err := b.submit(&Request{Kind: RequestConfirm, Message: message})
	if err != nil {
		return false, err
	}
	return resp.OK, nil
}

// PromptText implements the free-text interaction
func (b *Bridge) PromptText(message string) (string, bool, error) {
	resp, err := b.submit(&Request{Kind: RequestPrompt, Message: message})
	if err != nil {
		return "", false, err
	}
	return resp.Text, resp.OK, nil
}

// ShowMenu implements the menu interaction. For multi menus onExecute is
// forwarded to the surface and the response only signals completion.
func (b *Bridge) ShowMenu(commands []string, multi bool, onExecute func(string) error) (string, bool, error) {
	resp, err := b.submit(&Request{
		Kind:     RequestMenu,
		Commands: commands,
		Multi:    multi,
		Execute:  onExecute,
	})
	if err != nil {
		return "", false, err
	}
	return resp.Text, resp.OK, nil
}

// StaticResponder is a Gateway that answers every interaction without an
// operator. The headless runner uses it, and tests script it.
type StaticResponder struct {
	// ConfirmAnswer is returned for every confirm interaction
	ConfirmAnswer bool
	// PromptAnswer and PromptOK are returned for every prompt
	PromptAnswer string
	PromptOK     bool
	// MenuPick selects a command index for single menus; out-of-range
	// means cancel. Multi menus execute every command in order.
	MenuPick int
}

// Confirm returns the configured answer
func (s *StaticResponder) Confirm(string) (bool, error) {
	return s.ConfirmAnswer, nil
}

// PromptText returns the configured answer
func (s *StaticResponder) PromptText(string) (string, bool, error) {
	return s.PromptAnswer, s.PromptOK, nil
}

// ShowMenu picks the configured index, or runs every command for a
// multi menu
func (s *StaticResponder) ShowMenu(commands []string, multi bool, onExecute func(string) error) (string, bool, error) {
	if multi {
		for _, command := range commands {
			if onExecute == nil {
				break
			}
			if err := onExecute(command); err != nil {
				return "", false, nil
			}
		}
		return "", true, nil
	}
	if s.MenuPick < 0 || s.MenuPick >= len(commands) {
		return "", false, nil
	}
	return commands[s.MenuPick], true, nil
}
