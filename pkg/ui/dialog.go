package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

// Modal is a dialog drawn over the monitor view. HandleKey returns true
// once the dialog is finished and its result can be read.
type Modal interface {
	Draw(screen tcell.Screen)
	HandleKey(ev *tcell.EventKey) bool
}

var (
	dialogStyle   = tcell.StyleDefault.Background(tcell.ColorDarkBlue).Foreground(tcell.ColorWhite)
	selectedStyle = tcell.StyleDefault.Background(tcell.ColorWhite).Foreground(tcell.ColorBlack)
	executedStyle = tcell.StyleDefault.Background(tcell.ColorDarkBlue).Foreground(tcell.ColorGreen)
)

// drawBox draws a bordered, filled box
func drawBox(screen tcell.Screen, x, y, width, height int, style tcell.Style) {
	screen.SetContent(x, y, '┌', nil, style)
	screen.SetContent(x+width-1, y, '┐', nil, style)
	screen.SetContent(x, y+height-1, '└', nil, style)
	screen.SetContent(x+width-1, y+height-1, '┘', nil, style)
	for cx := x + 1; cx < x+width-1; cx++ {
		screen.SetContent(cx, y, '─', nil, style)
		screen.SetContent(cx, y+height-1, '─', nil, style)
	}
	for cy := y + 1; cy < y+height-1; cy++ {
		screen.SetContent(x, cy, '│', nil, style)
		screen.SetContent(x+width-1, cy, '│', nil, style)
		for cx := x + 1; cx < x+width-1; cx++ {
			screen.SetContent(cx, cy, ' ', nil, style)
		}
	}
}

// drawText draws text at the specified position, advancing by display
// width so wide runes stay aligned
func drawText(screen tcell.Screen, x, y int, text string, style tcell.Style) {
	col := x
	for _, ch := range text {
		screen.SetContent(col, y, ch, nil, style)
		col += runewidth.RuneWidth(ch)
	}
}

// centerBox computes the top-left corner for a centered box
func centerBox(screen tcell.Screen, width, height int) (int, int) {
	sw, sh := screen.Size()
	return (sw - width) / 2, (sh - height) / 2
}

// ConfirmDialog asks a yes/no question with Continue and End buttons
type ConfirmDialog struct {
	Message string
	// selected: 0 = Continue, 1 = End
	selected int
	accepted bool
}

// NewConfirmDialog creates a confirm dialog with Continue preselected
func NewConfirmDialog(message string) *ConfirmDialog {
	return &ConfirmDialog{Message: message}
}

// Accepted reports whether the operator chose Continue
func (d *ConfirmDialog) Accepted() bool {
	return d.accepted
}

// Draw renders the dialog centered on screen
func (d *ConfirmDialog) Draw(screen tcell.Screen) {
	width := runewidth.StringWidth(d.Message) + 6
	if min := 30; width < min {
		width = min
	}
	height := 7
	x, y := centerBox(screen, width, height)
	drawBox(screen, x, y, width, height, dialogStyle)

	drawText(screen, x+(width-runewidth.StringWidth(d.Message))/2, y+2, d.Message, dialogStyle)

	continueLabel := "[ Continue ]"
	endLabel := "[ End ]"
	gap := 4
	buttonsWidth := len(continueLabel) + gap + len(endLabel)
	bx := x + (width-buttonsWidth)/2
	by := y + 4

	continueStyle, endStyle := selectedStyle, dialogStyle
	if d.selected == 1 {
		continueStyle, endStyle = dialogStyle, selectedStyle
	}
	drawText(screen, bx, by, continueLabel, continueStyle)
	drawText(screen, bx+len(continueLabel)+gap, by, endLabel, endStyle)
}

// HandleKey processes keyboard input
func (d *ConfirmDialog) HandleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyLeft, tcell.KeyRight, tcell.KeyTab:
		d.selected = 1 - d.selected
	case tcell.KeyEnter:
		d.accepted = d.selected == 0
		return true
	case tcell.KeyEscape:
		d.accepted = false
		return true
	}
	return false
}

// PromptDialog asks for a free-text command
type PromptDialog struct {
	Message string
	input   []rune
	ok      bool
}

// NewPromptDialog creates a prompt dialog
func NewPromptDialog(message string) *PromptDialog {
	return &PromptDialog{Message: message}
}

// Text returns the entered text
func (d *PromptDialog) Text() string {
	return string(d.input)
}

// OK reports whether the operator submitted rather than cancelled
func (d *PromptDialog) OK() bool {
	return d.ok
}

// Draw renders the dialog centered on screen
func (d *PromptDialog) Draw(screen tcell.Screen) {
	width := runewidth.StringWidth(d.Message) + 6
	if min := 44; width < min {
		width = min
	}
	height := 7
	x, y := centerBox(screen, width, height)
	drawBox(screen, x, y, width, height, dialogStyle)

	drawText(screen, x+2, y+2, d.Message, dialogStyle)

	// input field
	fieldWidth := width - 4
	field := string(d.input)
	if w := runewidth.StringWidth(field); w > fieldWidth-1 {
		// keep the tail visible while typing
		field = runewidth.TruncateLeft(field, w-(fieldWidth-1), "")
	}
	for cx := 0; cx < fieldWidth; cx++ {
		screen.SetContent(x+2+cx, y+4, ' ', nil, selectedStyle)
	}
	drawText(screen, x+2, y+4, field, selectedStyle)
	screen.ShowCursor(x+2+runewidth.StringWidth(field), y+4)
}

// HandleKey processes keyboard input
func (d *PromptDialog) HandleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEnter:
		d.ok = true
		return true
	case tcell.KeyEscape:
		d.ok = false
		return true
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(d.input) > 0 {
			d.input = d.input[:len(d.input)-1]
		}
	case tcell.KeyRune:
		d.input = append(d.input, ev.Rune())
	}
	return false
}

// MenuDialog presents a command list. In single mode Enter picks one
// command and closes. In multi mode Enter executes the highlighted
// command immediately and the menu stays open until Escape.
type MenuDialog struct {
	Title    string
	Commands []string
	Multi    bool
	// OnExecute runs a pick in multi mode
	OnExecute func(command string) error

	selected  int
	executed  map[int]bool
	lastError error
	ok        bool
	selection string
}

// NewMenuDialog creates a menu dialog
func NewMenuDialog(title string, commands []string, multi bool, onExecute func(string) error) *MenuDialog {
	return &MenuDialog{
		Title:     title,
		Commands:  commands,
		Multi:     multi,
		OnExecute: onExecute,
		executed:  make(map[int]bool),
	}
}

// Selection returns the picked command in single mode
func (d *MenuDialog) Selection() string {
	return d.selection
}

// OK reports whether the menu finished normally rather than being
// cancelled
func (d *MenuDialog) OK() bool {
	return d.ok
}

// Err returns the last execution error in multi mode
func (d *MenuDialog) Err() error {
	return d.lastError
}

// Draw renders the dialog centered on screen
func (d *MenuDialog) Draw(screen tcell.Screen) {
	width := runewidth.StringWidth(d.Title) + 6
	for _, command := range d.Commands {
		if w := runewidth.StringWidth(command) + 8; w > width {
			width = w
		}
	}
	if min := 30; width < min {
		width = min
	}
	height := len(d.Commands) + 6
	x, y := centerBox(screen, width, height)
	drawBox(screen, x, y, width, height, dialogStyle)

	drawText(screen, x+(width-runewidth.StringWidth(d.Title))/2, y+1, d.Title, dialogStyle.Bold(true))
	for cx := x + 1; cx < x+width-1; cx++ {
		screen.SetContent(cx, y+2, '─', nil, dialogStyle)
	}

	for i, command := range d.Commands {
		style := dialogStyle
		if d.executed[i] {
			style = executedStyle
		}
		if i == d.selected {
			style = selectedStyle
		}
		marker := "  "
		if d.executed[i] {
			marker = "✓ "
		}
		drawText(screen, x+2, y+3+i, marker+command, style)
	}

	hint := "Enter: select  Esc: cancel"
	if d.Multi {
		hint = "Enter: send  Esc: done"
	}
	drawText(screen, x+(width-runewidth.StringWidth(hint))/2, y+height-2, hint, dialogStyle)
}

// HandleKey processes keyboard input
func (d *MenuDialog) HandleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyUp:
		if d.selected > 0 {
			d.selected--
		} else {
			d.selected = len(d.Commands) - 1
		}
	case tcell.KeyDown:
		if d.selected < len(d.Commands)-1 {
			d.selected++
		} else {
			d.selected = 0
		}
	case tcell.KeyEnter:
		if len(d.Commands) == 0 {
			return true
		}
		if d.Multi {
			if d.OnExecute != nil {
				if err := d.OnExecute(d.Commands[d.selected]); err != nil {
					d.lastError = err
					d.ok = false
					return true
				}
			}
			d.executed[d.selected] = true
			return false
		}
		d.selection = d.Commands[d.selected]
		d.ok = true
		return true
	case tcell.KeyEscape:
		// in multi mode closing means "done", not "cancel"
		d.ok = d.Multi
		return true
	}
	return false
}
