package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pkt.systems/pslog"

	"github.com/DJA-prog/Serial-Gui/pkg/framer"
	"github.com/DJA-prog/Serial-Gui/pkg/macro"
	"github.com/DJA-prog/Serial-Gui/pkg/serial"
	"github.com/DJA-prog/Serial-Gui/pkg/transcript"
)

// HeadlessRunner executes a macro against a serial port without a
// screen: run progress goes to an io.Writer and operator interactions
// are answered over stdin-style readers, which makes it scriptable.
type HeadlessRunner struct {
	port    serial.Port
	config  serial.Config
	logger  pslog.Logger
	out     io.Writer
	gateway macro.Gateway
	tr      *transcript.Transcript
}

// NewHeadlessRunner creates a headless macro runner over an already-open
// port. gw answers dialog steps; pass a gateway.StaticResponder for
// fully unattended runs.
func NewHeadlessRunner(port serial.Port, cfg serial.Config, gw macro.Gateway, out io.Writer, logger pslog.Logger) *HeadlessRunner {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &HeadlessRunner{
		port:    port,
		config:  cfg,
		logger:  logger,
		out:     out,
		gateway: gw,
		tr:      transcript.New(0),
	}
}

// Transcript returns the session record accumulated so far
func (h *HeadlessRunner) Transcript() *transcript.Transcript {
	return h.tr
}

// Run executes m and blocks until it finishes or ctx is cancelled
func (h *HeadlessRunner) Run(ctx context.Context, m *macro.Macro) (macro.Result, error) {
	runner := macro.NewRunner(macro.RunnerConfig{
		Transport: serial.NewLineWriter(h.port, h.config.LineEnding),
		Gateway:   h.gateway,
		Logger:    h.logger,
		Notify: func(text string) {
			h.tr.AddNote(text)
			fmt.Fprintln(h.out, text)
		},
	})

	readCtx, stopReader := context.WithCancel(ctx)
	defer stopReader()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		f := framer.New(framer.WithLogger(h.logger))
		buffer := make([]byte, 4096)
		for {
			if readCtx.Err() != nil {
				return
			}
			n, err := h.port.Read(buffer)
			if err != nil {
				if readCtx.Err() == nil {
					h.logger.Warn("serial read failed", "error", err)
				}
				return
			}
			for _, line := range f.Push(buffer[:n]) {
				runner.Buffer().Append(line)
				h.tr.Add(transcript.DirectionRx, line)
				fmt.Fprintln(h.out, "> "+line)
			}
		}
	}()

	result, err := runner.Run(ctx, m)

	stopReader()
	h.port.Close()
	<-readerDone

	return result, err
}

// StdinGateway answers macro dialogs interactively on a terminal:
// questions go to out, answers are read line by line from in.
type StdinGateway struct {
	in  *bufio.Reader
	out io.Writer
}

// NewStdinGateway creates a line-oriented interactive gateway
func NewStdinGateway(in io.Reader, out io.Writer) *StdinGateway {
	return &StdinGateway{in: bufio.NewReader(in), out: out}
}

func (g *StdinGateway) readLine() (string, error) {
	line, err := g.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question; empty input and "y" mean continue
func (g *StdinGateway) Confirm(message string) (bool, error) {
	fmt.Fprintf(g.out, "%s [Y/n] ", message)
	answer, err := g.readLine()
	if err != nil {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	answer = strings.ToLower(answer)
	return answer == "" || answer == "y" || answer == "yes", nil
}

// PromptText asks for a free-text command; empty input cancels
func (g *StdinGateway) PromptText(message string) (string, bool, error) {
	fmt.Fprintf(g.out, "%s: ", message)
	answer, err := g.readLine()
	if err != nil {
		return "", false, fmt.Errorf("failed to read answer: %w", err)
	}
	return answer, answer != "", nil
}

// ShowMenu prints the command list and reads number picks. Single mode
// takes one pick; multi mode keeps asking until an empty line.
func (g *StdinGateway) ShowMenu(commandList []string, multi bool, onExecute func(string) error) (string, bool, error) {
	for i, command := range commandList {
		fmt.Fprintf(g.out, "  %d) %s\n", i+1, command)
	}

	if !multi {
		fmt.Fprint(g.out, "Select (empty to skip): ")
		answer, err := g.readLine()
		if err != nil {
			return "", false, fmt.Errorf("failed to read selection: %w", err)
		}
		index, convErr := strconv.Atoi(answer)
		if answer == "" || convErr != nil || index < 1 || index > len(commandList) {
			return "", false, nil
		}
		return commandList[index-1], true, nil
	}

	for {
		fmt.Fprint(g.out, "Send (empty to finish): ")
		answer, err := g.readLine()
		if err != nil {
			return "", false, fmt.Errorf("failed to read selection: %w", err)
		}
		if answer == "" {
			return "", true, nil
		}
		index, convErr := strconv.Atoi(answer)
		if convErr != nil || index < 1 || index > len(commandList) {
			fmt.Fprintln(g.out, "invalid selection")
			continue
		}
		if onExecute != nil {
			if err := onExecute(commandList[index-1]); err != nil {
				return "", false, nil
			}
		}
	}
}
