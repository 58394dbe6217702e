// Package tui is the terminal front end for the event wizard.
package tui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"trackhub/internal/calendar"
	"trackhub/internal/wizard"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

const submitTimeout = 30 * time.Second

type field int

const (
	fieldTitle field = iota
	fieldMembersOnly
	fieldMembership
	fieldLevels
	fieldEventName
	fieldLocation
	fieldImage
	fieldMultiDay
	fieldCalendar
)

var (
	levelFields   = []field{fieldTitle, fieldMembersOnly, fieldMembership, fieldLevels}
	detailsFields = []field{fieldEventName, fieldLocation, fieldImage, fieldMultiDay, fieldCalendar}
)

type Model struct {
	opts    wizard.Options
	backend wizard.Backend
	machine *wizard.Machine

	// Focus
	focus       field
	levelCursor int
	cursor      calendar.Date

	// Image path as typed, and the path last loaded into the draft
	imagePath   string
	imageLoaded string

	// UI state
	width   int
	height  int
	busy    bool
	message string
	isError bool

	styles Styles
}

type Styles struct {
	Normal   lipgloss.Style
	Focused  lipgloss.Style
	Selected lipgloss.Style
	InRange  lipgloss.Style
	Today    lipgloss.Style
	Outside  lipgloss.Style
	Cursor   lipgloss.Style
	Header   lipgloss.Style
	Help     lipgloss.Style
	Error    lipgloss.Style
	Message  lipgloss.Style
	Border   lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Normal: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		Focused: lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")).
			Bold(true),
		Selected: lipgloss.NewStyle().
			Foreground(lipgloss.Color("235")).
			Background(lipgloss.Color("220")).
			Bold(true),
		InRange: lipgloss.NewStyle().
			Foreground(lipgloss.Color("235")).
			Background(lipgloss.Color("180")),
		Today: lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true),
		Outside: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		Cursor: lipgloss.NewStyle().
			Underline(true).
			Bold(true),
		Header: lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")).
			Bold(true).
			Underline(true),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		Error: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),
		Message: lipgloss.NewStyle().
			Foreground(lipgloss.Color("40")),
		Border: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1),
	}
}

func NewModel(opts wizard.Options, backend wizard.Backend) *Model {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	m := &Model{
		opts:    opts,
		backend: backend,
		styles:  DefaultStyles(),
	}
	m.start()
	return m
}

// start begins a fresh draft.
func (m *Model) start() {
	m.machine = wizard.New(m.opts)
	m.focus = fieldTitle
	m.levelCursor = 0
	m.imagePath = ""
	m.imageLoaded = ""
	m.resetCursor()
}

// resetCursor puts the calendar cursor on today if it is displayed, otherwise
// on the first of the displayed month.
func (m *Model) resetCursor() {
	year, month := m.machine.Calendar().Displayed()
	today := calendar.DateOf(m.opts.Clock())
	if today.SameMonth(year, month) {
		m.cursor = today
		return
	}
	m.cursor = calendar.NewDate(year, month, 1)
}

func (m *Model) Machine() *wizard.Machine { return m.machine }

func (m *Model) Init() tea.Cmd {
	return tea.EnterAltScreen
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case submittedMsg:
		m.busy = false
		m.handleSubmitted(msg)
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	// The machine belongs to the submit command until it reports back.
	if m.busy {
		return m, nil
	}

	switch m.machine.State() {
	case wizard.EditingLevels:
		return m.handleLevelsKeys(msg)
	case wizard.EditingDetails, wizard.Failed:
		return m.handleDetailsKeys(msg)
	case wizard.Success:
		return m.handleSuccessKeys(msg)
	}
	return m, nil
}

func (m *Model) handleLevelsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyTab:
		m.moveFocus(levelFields, 1)
		return m, nil
	case tea.KeyShiftTab:
		m.moveFocus(levelFields, -1)
		return m, nil
	case tea.KeyEnter:
		if m.apply(wizard.Action{Type: wizard.ActionContinue}) {
			m.focus = fieldEventName
			m.showMessage("")
		}
		return m, nil
	}

	switch m.focus {
	case fieldTitle:
		if text, ok := editText(m.machine.Title(), msg); ok {
			m.apply(wizard.Action{Type: wizard.ActionSetTitle, Text: text})
		}

	case fieldMembersOnly:
		if msg.Type == tea.KeySpace {
			m.apply(wizard.Action{Type: wizard.ActionSetMembersOnly, Enabled: !m.machine.MembersOnly()})
		}

	case fieldMembership:
		switch msg.String() {
		case "left", "h":
			m.cycleMembership(-1)
		case "right", "l", " ":
			m.cycleMembership(1)
		}

	case fieldLevels:
		m.handleLevelRowKeys(msg)
	}
	return m, nil
}

func (m *Model) handleLevelRowKeys(msg tea.KeyMsg) {
	catalog := m.machine.Catalog()
	if len(catalog) == 0 {
		return
	}
	level := catalog[m.levelCursor]

	switch msg.String() {
	case "up", "k":
		if m.levelCursor > 0 {
			m.levelCursor--
		}
		return
	case "down", "j":
		if m.levelCursor < len(catalog)-1 {
			m.levelCursor++
		}
		return
	case " ":
		m.apply(wizard.Action{Type: wizard.ActionToggleLevel, LevelID: level.ID})
		return
	case "+", "=":
		m.apply(wizard.Action{Type: wizard.ActionChangeQuantity, LevelID: level.ID, Delta: 1})
		return
	case "-":
		m.apply(wizard.Action{Type: wizard.ActionChangeQuantity, LevelID: level.ID, Delta: -1})
		return
	}

	// Anything else edits the price of a selected level.
	sel, ok := m.machine.LevelSelection(level.ID)
	if !ok {
		return
	}
	if text, ok := editText(sel.Price, msg); ok {
		m.apply(wizard.Action{Type: wizard.ActionSetPrice, LevelID: level.ID, Text: text})
	}
}

func (m *Model) cycleMembership(dir int) {
	options := m.machine.Memberships()
	if len(options) == 0 {
		m.showError("You have no memberships to gate this event with")
		return
	}
	i := -1
	for j, o := range options {
		if o.ID == m.machine.MembershipID() {
			i = j
		}
	}
	i = (i + dir + len(options)) % len(options)
	m.apply(wizard.Action{Type: wizard.ActionSelectMembership, Text: options[i].ID})
}

func (m *Model) handleDetailsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		if m.apply(wizard.Action{Type: wizard.ActionBack}) && m.machine.State() == wizard.EditingLevels {
			m.focus = fieldTitle
		}
		return m, nil
	case tea.KeyTab:
		m.leaveField()
		m.moveFocus(detailsFields, 1)
		return m, nil
	case tea.KeyShiftTab:
		m.leaveField()
		m.moveFocus(detailsFields, -1)
		return m, nil
	case tea.KeyEnter:
		return m, m.submit()
	}

	if m.machine.State() == wizard.Failed {
		// Only retry and back are available after a failed submission.
		return m, nil
	}

	switch m.focus {
	case fieldEventName:
		if text, ok := editText(m.machine.EventName(), msg); ok {
			m.apply(wizard.Action{Type: wizard.ActionSetEventName, Text: text})
		}
	case fieldLocation:
		if text, ok := editText(m.machine.Location(), msg); ok {
			m.apply(wizard.Action{Type: wizard.ActionSetLocation, Text: text})
		}
	case fieldImage:
		if text, ok := editText(m.imagePath, msg); ok {
			m.imagePath = text
		}
	case fieldMultiDay:
		if msg.Type == tea.KeySpace {
			m.apply(wizard.Action{Type: wizard.ActionSetMultiDay, Enabled: !m.machine.Calendar().MultiDay()})
		}
	case fieldCalendar:
		m.handleCalendarKeys(msg)
	}
	return m, nil
}

func (m *Model) handleCalendarKeys(msg tea.KeyMsg) {
	switch msg.String() {
	case "left", "h":
		m.moveCursor(-1)
	case "right", "l":
		m.moveCursor(1)
	case "up", "k":
		m.moveCursor(-7)
	case "down", "j":
		m.moveCursor(7)
	case "[", "pgup":
		if m.apply(wizard.Action{Type: wizard.ActionNavigateMonth, Delta: -1}) {
			m.resetCursor()
		}
	case "]", "pgdown":
		if m.apply(wizard.Action{Type: wizard.ActionNavigateMonth, Delta: 1}) {
			m.resetCursor()
		}
	case "{", "}":
		year, _ := m.machine.Calendar().Displayed()
		if msg.String() == "{" {
			year--
		} else {
			year++
		}
		if m.apply(wizard.Action{Type: wizard.ActionSelectYear, Year: year}) {
			m.resetCursor()
		}
	case " ":
		m.apply(wizard.Action{Type: wizard.ActionSelectDate, Date: m.cursor.String()})
	}
}

// moveCursor moves the calendar cursor, following it into the next or
// previous month when it leaves the displayed one.
func (m *Model) moveCursor(days int) {
	next := m.cursor.AddDays(days)
	year, month := m.machine.Calendar().Displayed()
	if !next.SameMonth(year, month) {
		delta := 1
		if next.Before(m.cursor) {
			delta = -1
		}
		if !m.apply(wizard.Action{Type: wizard.ActionNavigateMonth, Delta: delta}) {
			return
		}
	}
	m.cursor = next
}

func (m *Model) handleSuccessKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "n", "enter":
		m.start()
		m.showMessage("")
	case "q", "esc":
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) moveFocus(fields []field, dir int) {
	i := 0
	for j, f := range fields {
		if f == m.focus {
			i = j
		}
	}
	for range fields {
		i = (i + dir + len(fields)) % len(fields)
		if m.focusable(fields[i]) {
			m.focus = fields[i]
			return
		}
	}
}

func (m *Model) focusable(f field) bool {
	if f == fieldMembership {
		return m.machine.MembersOnly()
	}
	return true
}

// leaveField commits the image path when focus moves off it.
func (m *Model) leaveField() {
	if m.focus == fieldImage {
		m.commitImage()
	}
}

func (m *Model) commitImage() bool {
	path := strings.TrimSpace(m.imagePath)
	if path == m.imageLoaded {
		return true
	}
	if path == "" {
		m.imageLoaded = ""
		return m.apply(wizard.Action{Type: wizard.ActionClearImage})
	}

	dataURL, size, err := loadImage(path)
	if err != nil {
		m.showError(err.Error())
		return false
	}
	if !m.apply(wizard.Action{Type: wizard.ActionSetImage, Text: dataURL}) {
		return false
	}
	m.imageLoaded = path
	m.showMessage(fmt.Sprintf("Image loaded (%s)", humanize.Bytes(uint64(size))))
	return true
}

// loadImage reads an image file into a data URL.
func loadImage(path string) (string, int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", 0, fmt.Errorf("could not read image: %w", err)
	}
	mediaType := http.DetectContentType(b)
	if !strings.HasPrefix(mediaType, "image/") {
		return "", 0, fmt.Errorf("%s is not an image (%s)", path, mediaType)
	}
	return wizard.EncodeDataURL(mediaType, b), len(b), nil
}

// submit validates locally and hands the draft to a command. Until the
// command answers, key input is ignored.
func (m *Model) submit() tea.Cmd {
	if m.machine.State() == wizard.EditingDetails && !m.commitImage() {
		return nil
	}
	if err := m.machine.ValidateDetails(); err != nil {
		m.showError(errorText(err))
		return nil
	}

	m.busy = true
	m.showMessage("Submitting...")
	machine, backend := m.machine, m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()
		out, err := machine.Submit(ctx, backend)
		return submittedMsg{outcome: out, err: err}
	}
}

func (m *Model) handleSubmitted(msg submittedMsg) {
	if msg.err != nil {
		switch {
		case errors.Is(msg.err, wizard.ErrAuthRequired):
			m.showError("Your session has expired. Sign in again and retry.")
		default:
			m.showError(errorText(msg.err))
		}
		return
	}
	m.showMessage("Event created")
}

// apply runs a on the draft, showing any error. It reports success.
func (m *Model) apply(a wizard.Action) bool {
	if err := m.machine.Apply(a); err != nil {
		m.showError(errorText(err))
		return false
	}
	if m.isError {
		m.showMessage("")
	}
	return true
}

func errorText(err error) string {
	var verr *wizard.ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	var serr *wizard.SubmissionError
	if errors.As(err, &serr) {
		return "Could not create the event: " + serr.Err.Error()
	}
	return err.Error()
}

func (m *Model) showMessage(msg string) {
	m.message = msg
	m.isError = false
}

func (m *Model) showError(msg string) {
	m.message = msg
	m.isError = true
}

// editText applies a key to a single-line text value.
func editText(value string, msg tea.KeyMsg) (string, bool) {
	switch msg.Type {
	case tea.KeyRunes:
		return value + string(msg.Runes), true
	case tea.KeySpace:
		return value + " ", true
	case tea.KeyBackspace:
		if value == "" {
			return value, false
		}
		_, size := utf8.DecodeLastRuneInString(value)
		return value[:len(value)-size], true
	}
	return value, false
}

// Message types
type submittedMsg struct {
	outcome *wizard.Outcome
	err     error
}
