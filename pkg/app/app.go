// Package app provides the main application controller
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"pkt.systems/pslog"

	"github.com/DJA-prog/Serial-Gui/pkg/commands"
	"github.com/DJA-prog/Serial-Gui/pkg/config"
	"github.com/DJA-prog/Serial-Gui/pkg/framer"
	"github.com/DJA-prog/Serial-Gui/pkg/gateway"
	"github.com/DJA-prog/Serial-Gui/pkg/macro"
	"github.com/DJA-prog/Serial-Gui/pkg/serial"
	"github.com/DJA-prog/Serial-Gui/pkg/transcript"
	"github.com/DJA-prog/Serial-Gui/pkg/ui"
)

// Monitor is the interactive serial monitor: one reader goroutine feeds
// received lines through the framer, one event loop owns the screen, and
// macro runs execute on their own goroutine behind the gateway bridge.
type Monitor struct {
	settings config.Settings
	manager  *config.FileManager
	logger   pslog.Logger

	port   serial.Port
	writer *serial.LineWriter

	screen tcell.Screen
	view   *ui.View

	tr      *transcript.Transcript
	recall  *transcript.Recall
	runner  *macro.Runner
	bridge  *gateway.Bridge
	macros  *macro.Store
	cmdsets *commands.Store

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	isRunning bool

	lines     chan string
	runEvents chan string

	// onModalDone resolves the active dialog when it finishes
	onModalDone func(ui.Modal)
}

// MonitorConfig wires the monitor's collaborators
type MonitorConfig struct {
	Settings config.Settings
	Manager  *config.FileManager
	Port     serial.Port
	Screen   tcell.Screen
	Logger   pslog.Logger
}

// NewMonitor creates a monitor over an already-open serial port
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if cfg.Port == nil {
		return nil, fmt.Errorf("serial port is required")
	}
	if cfg.Screen == nil {
		return nil, fmt.Errorf("screen is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	m := &Monitor{
		settings:  cfg.Settings,
		manager:   cfg.Manager,
		logger:    logger,
		port:      cfg.Port,
		writer:    serial.NewLineWriter(cfg.Port, cfg.Settings.Serial.LineEnding),
		screen:    cfg.Screen,
		tr:        transcript.New(0),
		bridge:    gateway.NewBridge(),
		lines:     make(chan string, 64),
		runEvents: make(chan string, 16),
	}
	m.view = ui.NewView(cfg.Screen, m.tr)
	m.view.SetReveal(cfg.Settings.RevealHidden)

	m.runner = macro.NewRunner(macro.RunnerConfig{
		Transport: m.writer,
		Gateway:   m.bridge,
		Logger:    logger,
		Notify: func(text string) {
			select {
			case m.runEvents <- text:
			default:
			}
		},
	})

	if cfg.Manager != nil {
		store, err := macro.NewStore(cfg.Manager.MacroDir())
		if err != nil {
			return nil, fmt.Errorf("failed to open macro store: %w", err)
		}
		m.macros = store

		recall, err := transcript.LoadRecall(cfg.Manager.HistoryPath(), cfg.Settings.HistoryLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load command history: %w", err)
		}
		m.recall = recall

		cmdsets, err := commands.NewStore(cfg.Manager.CommandSetDir())
		if err != nil {
			return nil, fmt.Errorf("failed to open command set store: %w", err)
		}
		m.cmdsets = cmdsets
	}

	return m, nil
}

// Run drives the monitor until the operator quits or ctx is cancelled
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return fmt.Errorf("monitor is already running")
	}
	m.isRunning = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.statusConnected()
	m.tr.AddNote(fmt.Sprintf("Connected to %s at %d baud",
		m.settings.Serial.Port, m.settings.Serial.BaudRate))

	m.wg.Add(2)
	go m.readLoop()

	events := make(chan tcell.Event, 16)
	go m.eventPump(events)

	m.view.Draw()
	err := m.eventLoop(events)
	m.shutdown()
	return err
}

// Stop requests a shutdown from outside the event loop
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	// wake PollEvent
	m.screen.PostEvent(tcell.NewEventResize(0, 0))
}

func (m *Monitor) shutdown() {
	m.cancel()
	m.runner.Abort()
	m.bridge.Close()
	m.port.Close()
	m.screen.PostEvent(tcell.NewEventResize(0, 0))

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		m.logger.Warn("goroutines did not stop cleanly")
	}

	m.mu.Lock()
	m.isRunning = false
	m.mu.Unlock()
}

// readLoop reads raw chunks from the port, frames them into lines and
// forwards each line to the event loop and the session buffer
func (m *Monitor) readLoop() {
	defer m.wg.Done()

	f := framer.New(framer.WithLogger(m.logger))
	buffer := make([]byte, 4096)

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		n, err := m.port.Read(buffer)
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			if !m.reconnect(err) {
				return
			}
			continue
		}
		if n == 0 {
			continue
		}

		for _, line := range f.Push(buffer[:n]) {
			m.runner.Buffer().Append(line)
			select {
			case m.lines <- line:
			case <-m.ctx.Done():
				return
			}
		}
	}
}

// reconnect handles a read failure: with auto-reconnect enabled it
// retries the port, otherwise it reports the disconnect and stops the
// reader. Returns true when reading can resume.
func (m *Monitor) reconnect(cause error) bool {
	m.logger.Warn("serial read failed", "error", cause)
	m.postNote(fmt.Sprintf("Connection lost: %v", cause))

	if !m.settings.AutoReconnect {
		return false
	}

	m.port.Close()
	m.postNote("Reconnecting...")
	if err := serial.OpenWithRetry(m.port, m.settings.Serial, serial.DefaultRetryConfig()); err != nil {
		if m.ctx.Err() != nil {
			return false
		}
		m.postNote(fmt.Sprintf("Reconnect failed: %v", err))
		return false
	}
	m.postNote("Reconnected")
	return true
}

// postNote queues a notice for the event loop without blocking the reader
func (m *Monitor) postNote(text string) {
	select {
	case m.runEvents <- text:
	default:
	}
}

// eventPump forwards tcell events to the event loop so it can select
// across screen input, received lines and gateway requests
func (m *Monitor) eventPump(events chan<- tcell.Event) {
	defer m.wg.Done()
	for {
		event := m.screen.PollEvent()
		if event == nil {
			return
		}
		select {
		case events <- event:
		case <-m.ctx.Done():
			return
		}
		if m.ctx.Err() != nil {
			return
		}
	}
}

func (m *Monitor) eventLoop(events <-chan tcell.Event) error {
	for {
		select {
		case <-m.ctx.Done():
			return nil

		case line := <-m.lines:
			m.tr.Add(transcript.DirectionRx, line)
			m.view.Draw()

		case text := <-m.runEvents:
			m.tr.AddNote(text)
			m.statusConnected()
			m.view.Draw()

		case req := <-m.bridge.Requests():
			m.openRequestModal(req)
			m.view.Draw()

		case event := <-events:
			switch ev := event.(type) {
			case *tcell.EventKey:
				if quit := m.handleKey(ev); quit {
					return nil
				}
				m.view.Draw()
			case *tcell.EventResize:
				m.screen.Sync()
				m.view.Draw()
			}
		}
	}
}

// openRequestModal turns a gateway request into the matching dialog
func (m *Monitor) openRequestModal(req *gateway.Request) {
	switch req.Kind {
	case gateway.RequestConfirm:
		d := ui.NewConfirmDialog(req.Message)
		m.setModal(d, func(ui.Modal) {
			req.Respond(gateway.Response{OK: d.Accepted()})
		})

	case gateway.RequestPrompt:
		d := ui.NewPromptDialog(req.Message)
		m.setModal(d, func(ui.Modal) {
			req.Respond(gateway.Response{OK: d.OK(), Text: d.Text()})
		})

	case gateway.RequestMenu:
		title := "Select command"
		if req.Multi {
			title = "Send commands"
		}
		d := ui.NewMenuDialog(title, req.Commands, req.Multi, req.Execute)
		m.setModal(d, func(ui.Modal) {
			req.Respond(gateway.Response{OK: d.OK(), Text: d.Selection()})
		})
	}
}

func (m *Monitor) setModal(modal ui.Modal, done func(ui.Modal)) {
	m.view.SetModal(modal)
	m.onModalDone = done
}

func (m *Monitor) closeModal() {
	done := m.onModalDone
	modal := m.view.Modal()
	m.view.SetModal(nil)
	m.onModalDone = nil
	if done != nil {
		done(modal)
	}
}

// handleKey processes one key event; it returns true to quit
func (m *Monitor) handleKey(ev *tcell.EventKey) bool {
	if modal := m.view.Modal(); modal != nil {
		if modal.HandleKey(ev) {
			m.closeModal()
		}
		return false
	}

	switch ev.Key() {
	case tcell.KeyCtrlC, tcell.KeyCtrlQ:
		return true

	case tcell.KeyEscape:
		if m.runner.Active() {
			m.runner.Abort()
		}
		return false

	case tcell.KeyEnter:
		m.sendInput()

	case tcell.KeyUp:
		if m.recall != nil {
			if text, ok := m.recall.Prev(); ok {
				m.view.SetInput(text)
			}
		}

	case tcell.KeyDown:
		if m.recall != nil {
			if text, ok := m.recall.Next(); ok {
				m.view.SetInput(text)
			}
		}

	case tcell.KeyLeft:
		m.view.MoveCursor(-1)

	case tcell.KeyRight:
		m.view.MoveCursor(1)

	case tcell.KeyPgUp:
		m.view.ScrollUp(10)

	case tcell.KeyPgDn:
		m.view.ScrollDown(10)

	case tcell.KeyEnd:
		m.view.ScrollToEnd()

	case tcell.KeyCtrlL:
		m.tr.Clear()
		m.view.ScrollToEnd()

	case tcell.KeyCtrlR:
		m.view.SetReveal(!m.view.Reveal())

	case tcell.KeyCtrlS:
		m.saveTranscript()

	case tcell.KeyF2:
		m.openMacroMenu()

	case tcell.KeyF3:
		m.openCommandSets()

	case tcell.KeyBackspace, tcell.KeyBackspace2:
		m.view.Backspace()

	case tcell.KeyRune:
		m.view.InsertRune(ev.Rune())
	}
	return false
}

// sendInput transmits the typed command
func (m *Monitor) sendInput() {
	command := m.view.TakeInput()
	if command == "" {
		return
	}

	if m.settings.AutoClearOutput {
		m.tr.Clear()
	}
	m.sendCommand(command)
}

// saveTranscript writes the session to a timestamped file in the
// working directory
func (m *Monitor) saveTranscript() {
	filename := fmt.Sprintf("session_%s.log", time.Now().Format("20060102_150405"))
	if err := m.tr.SaveToFile(filename, transcript.FormatTimestamped); err != nil {
		m.tr.AddNote(fmt.Sprintf("Save failed: %v", err))
		return
	}
	m.tr.AddNote(fmt.Sprintf("Transcript saved to %s", filename))
}

// openMacroMenu lists stored macros and starts the selection
func (m *Monitor) openMacroMenu() {
	if m.macros == nil {
		m.tr.AddNote("No macro directory configured")
		return
	}
	if m.runner.Active() {
		m.tr.AddNote("A macro is already running")
		return
	}

	names, err := m.macros.List()
	if err != nil {
		m.tr.AddNote(fmt.Sprintf("Failed to list macros: %v", err))
		return
	}
	if len(names) == 0 {
		m.tr.AddNote("No macros defined")
		return
	}

	d := ui.NewMenuDialog("Run macro", names, false, nil)
	m.setModal(d, func(ui.Modal) {
		if !d.OK() || d.Selection() == "" {
			return
		}
		m.startMacro(d.Selection())
	})
}

// openCommandSets steps through set selection, command selection and,
// for commands that take an argument, a text prompt, then sends
func (m *Monitor) openCommandSets() {
	if m.cmdsets == nil {
		m.tr.AddNote("No command set directory configured")
		return
	}

	names, err := m.cmdsets.List()
	if err != nil {
		m.tr.AddNote(fmt.Sprintf("Failed to list command sets: %v", err))
		return
	}
	if len(names) == 0 {
		m.tr.AddNote("No command sets defined")
		return
	}

	picker := ui.NewMenuDialog("Command set", names, false, nil)
	m.setModal(picker, func(ui.Modal) {
		if !picker.OK() || picker.Selection() == "" {
			return
		}
		set, err := m.cmdsets.Load(picker.Selection())
		if err != nil {
			m.tr.AddNote(fmt.Sprintf("Failed to load command set: %v", err))
			return
		}
		m.openCommandMenu(set)
	})
}

func (m *Monitor) openCommandMenu(set *commands.Set) {
	all := set.All()
	if len(all) == 0 {
		m.tr.AddNote(fmt.Sprintf("Command set %q is empty", set.Name))
		return
	}

	menu := ui.NewMenuDialog(set.Name, all, false, nil)
	m.setModal(menu, func(ui.Modal) {
		if !menu.OK() || menu.Selection() == "" {
			return
		}
		command := menu.Selection()
		if !set.NeedsInput(command) {
			m.sendCommand(command)
			return
		}
		prompt := ui.NewPromptDialog(fmt.Sprintf("Argument for %s", command))
		m.setModal(prompt, func(ui.Modal) {
			if !prompt.OK() {
				return
			}
			m.sendCommand(command + prompt.Text())
		})
	})
}

// sendCommand transmits command as if it had been typed
func (m *Monitor) sendCommand(command string) {
	if err := m.writer.Send(command); err != nil {
		m.tr.AddNote(fmt.Sprintf("Send failed: %v", err))
		return
	}
	m.tr.Add(transcript.DirectionTx, command)
	if m.recall != nil {
		if err := m.recall.Add(command); err != nil {
			m.logger.Warn("failed to persist command history", "error", err)
		}
	}
}

func (m *Monitor) startMacro(name string) {
	def, err := m.macros.Load(name)
	if err != nil {
		m.tr.AddNote(fmt.Sprintf("Failed to load macro: %v", err))
		return
	}

	if m.settings.AutoClearOutput {
		m.tr.Clear()
	}
	if err := m.runner.Start(m.ctx, def); err != nil {
		m.tr.AddNote(fmt.Sprintf("Failed to start macro: %v", err))
	}
}

func (m *Monitor) statusConnected() {
	s := m.settings.Serial
	state := ""
	if m.runner.Active() {
		state = "  [macro running, Esc aborts]"
	}
	m.view.SetStatus("%s %d %d%s%d%s  F2:macros F3:commands ^S:save ^L:clear ^Q:quit",
		s.Port, s.BaudRate, s.DataBits, parityLetter(s.Parity), s.StopBits, state)
}

func parityLetter(parity string) string {
	if parity == "" {
		return "N"
	}
	switch parity[0] {
	case 'e', 'E':
		return "E"
	case 'o', 'O':
		return "O"
	default:
		return "N"
	}
}
