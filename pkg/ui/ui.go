// Package ui provides the terminal user interface: the monitor view
// with its transcript, status bar and command input line, plus the
// modal dialogs macro runs open over it.
package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/DJA-prog/Serial-Gui/pkg/transcript"
)

var (
	normalStyle = tcell.StyleDefault
	rxStyle     = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	txStyle     = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	noteStyle   = tcell.StyleDefault.Foreground(tcell.ColorGray)
	statusStyle = tcell.StyleDefault.Background(tcell.ColorDarkBlue).Foreground(tcell.ColorWhite)
)

// View is the monitor screen layout: the transcript fills the window,
// a status bar sits on the second-to-last row and the command input
// line on the last.
type View struct {
	screen     tcell.Screen
	transcript *transcript.Transcript

	reveal bool
	status string

	input  []rune
	cursor int

	// scroll is the number of lines scrolled up from the live tail;
	// zero means the view follows new output
	scroll int

	modal Modal
}

// NewView creates a monitor view over screen
func NewView(screen tcell.Screen, tr *transcript.Transcript) *View {
	return &View{
		screen:     screen,
		transcript: tr,
	}
}

// SetReveal toggles visible rendering of whitespace characters
func (v *View) SetReveal(reveal bool) {
	v.reveal = reveal
}

// Reveal reports whether hidden characters are rendered visibly
func (v *View) Reveal() bool {
	return v.reveal
}

// SetStatus sets the status bar text
func (v *View) SetStatus(format string, args ...any) {
	v.status = fmt.Sprintf(format, args...)
}

// SetModal installs a dialog over the view; nil removes it
func (v *View) SetModal(m Modal) {
	v.modal = m
}

// Modal returns the active dialog, if any
func (v *View) Modal() Modal {
	return v.modal
}

// Input returns the current command input text
func (v *View) Input() string {
	return string(v.input)
}

// SetInput replaces the command input text, placing the cursor at the end
func (v *View) SetInput(text string) {
	v.input = []rune(text)
	v.cursor = len(v.input)
}

// InsertRune inserts a rune at the cursor
func (v *View) InsertRune(r rune) {
	v.input = append(v.input[:v.cursor], append([]rune{r}, v.input[v.cursor:]...)...)
	v.cursor++
}

// Backspace deletes the rune before the cursor
func (v *View) Backspace() {
	if v.cursor > 0 {
		v.input = append(v.input[:v.cursor-1], v.input[v.cursor:]...)
		v.cursor--
	}
}

// MoveCursor shifts the input cursor left or right
func (v *View) MoveCursor(delta int) {
	v.cursor += delta
	if v.cursor < 0 {
		v.cursor = 0
	}
	if v.cursor > len(v.input) {
		v.cursor = len(v.input)
	}
}

// TakeInput returns the input text and clears the line
func (v *View) TakeInput() string {
	text := string(v.input)
	v.input = v.input[:0]
	v.cursor = 0
	return text
}

// ScrollUp scrolls the transcript back by n lines
func (v *View) ScrollUp(n int) {
	v.scroll += n
	if max := v.transcript.Len(); v.scroll > max {
		v.scroll = max
	}
}

// ScrollDown scrolls the transcript toward the live tail
func (v *View) ScrollDown(n int) {
	v.scroll -= n
	if v.scroll < 0 {
		v.scroll = 0
	}
}

// ScrollToEnd resumes following new output
func (v *View) ScrollToEnd() {
	v.scroll = 0
}

// Draw renders the whole view and flushes it to the terminal
func (v *View) Draw() {
	v.screen.Clear()
	width, height := v.screen.Size()
	if height < 3 {
		v.screen.Show()
		return
	}

	transcriptRows := height - 2
	v.drawTranscript(width, transcriptRows)
	v.drawStatus(width, height-2)
	v.drawInput(width, height-1)

	if v.modal != nil {
		v.screen.HideCursor()
		v.modal.Draw(v.screen)
	}

	v.screen.Show()
}

func (v *View) drawTranscript(width, rows int) {
	entries := v.transcript.Entries()

	end := len(entries) - v.scroll
	if end < 0 {
		end = 0
	}
	start := end - rows
	if start < 0 {
		start = 0
	}

	y := 0
	for _, entry := range entries[start:end] {
		style := normalStyle
		switch entry.Direction {
		case transcript.DirectionRx:
			style = rxStyle
		case transcript.DirectionTx:
			style = txStyle
		case transcript.DirectionNote:
			style = noteStyle
		}
		line := transcript.Render(entry, v.reveal)
		if runewidth.StringWidth(line) > width {
			line = runewidth.Truncate(line, width, "…")
		}
		drawText(v.screen, 0, y, line, style)
		y++
	}
}

func (v *View) drawStatus(width, y int) {
	for x := 0; x < width; x++ {
		v.screen.SetContent(x, y, ' ', nil, statusStyle)
	}
	status := v.status
	if v.scroll > 0 {
		status += fmt.Sprintf("  [scroll -%d]", v.scroll)
	}
	if runewidth.StringWidth(status) > width {
		status = runewidth.Truncate(status, width, "…")
	}
	drawText(v.screen, 0, y, status, statusStyle)
}

func (v *View) drawInput(width, y int) {
	prompt := "> "
	drawText(v.screen, 0, y, prompt, normalStyle)

	text := string(v.input)
	avail := width - len(prompt) - 1
	offset := 0
	if w := runewidth.StringWidth(string(v.input[:v.cursor])); w > avail {
		offset = w - avail
	}
	if offset > 0 {
		text = runewidth.TruncateLeft(text, offset, "")
	}
	drawText(v.screen, len(prompt), y, text, normalStyle)

	cursorCol := len(prompt) + runewidth.StringWidth(string(v.input[:v.cursor])) - offset
	if v.modal == nil {
		v.screen.ShowCursor(cursorCol, y)
	}
}
