package tui

import (
	"fmt"
	"strings"

	"trackhub/internal/calendar"
	"trackhub/internal/wizard"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

const defaultWidth = 72

func (m *Model) View() string {
	if m.busy {
		return m.styles.Border.Render(m.styles.Header.Render("Create Event") + "\n\nSubmitting...")
	}

	var body string
	switch m.machine.State() {
	case wizard.EditingLevels:
		body = m.viewLevels()
	case wizard.EditingDetails, wizard.Failed:
		body = m.viewDetails()
	case wizard.Success:
		body = m.viewSuccess()
	}

	sections := []string{m.styles.Border.Render(body)}
	if m.message != "" {
		style := m.styles.Message
		if m.isError {
			style = m.styles.Error
		}
		sections = append(sections, style.Render(wordwrap.String(m.message, m.wrapWidth())))
	}
	sections = append(sections, m.styles.Help.Render(m.helpLine()))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) wrapWidth() int {
	if m.width > 4 {
		return m.width - 4
	}
	return defaultWidth
}

func (m *Model) viewLevels() string {
	lines := []string{
		m.styles.Header.Render("Create Event: Ticket Levels"),
		"",
		m.label(fieldTitle, "Title") + m.input(fieldTitle, m.machine.Title()),
		m.label(fieldMembersOnly, "Members only") + checkbox(m.machine.MembersOnly()),
	}

	if m.machine.MembersOnly() {
		name := "(none)"
		for _, o := range m.machine.Memberships() {
			if o.ID == m.machine.MembershipID() {
				name = o.Name
			}
		}
		lines = append(lines, m.label(fieldMembership, "Membership")+"< "+name+" >")
	}

	lines = append(lines, "", m.label(fieldLevels, "Levels"))
	for i, level := range m.machine.Catalog() {
		pointer := "  "
		if m.focus == fieldLevels && i == m.levelCursor {
			pointer = m.styles.Focused.Render("> ")
		}
		row := fmt.Sprintf("%s %s", checkbox(m.machine.IsLevelSelected(level.ID)), level.Name)
		if sel, ok := m.machine.LevelSelection(level.ID); ok {
			price := sel.Price
			if price == "" {
				price = "_"
			}
			row += fmt.Sprintf("  price %s  qty %d", price, sel.Quantity)
		}
		lines = append(lines, pointer+row)
	}

	return strings.Join(lines, "\n")
}

func (m *Model) viewDetails() string {
	image := m.imagePath
	if m.machine.HasImage() && m.imagePath == m.imageLoaded {
		image += " (loaded)"
	}

	lines := []string{
		m.styles.Header.Render("Create Event: Details"),
		"",
		m.label(fieldEventName, "Event name") + m.input(fieldEventName, m.machine.EventName()),
		m.label(fieldLocation, "Location") + m.input(fieldLocation, m.machine.Location()),
		m.label(fieldImage, "Image file") + m.input(fieldImage, image),
		m.label(fieldMultiDay, "Multi-day") + checkbox(m.machine.Calendar().MultiDay()),
		"",
	}

	var cursor *calendar.Date
	if m.focus == fieldCalendar {
		cursor = &m.cursor
	}
	lines = append(lines, RenderCalendar(m.machine.Calendar(), cursor, calendar.DateOf(m.opts.Clock()), m.styles))

	r := m.machine.Calendar().Range()
	lines = append(lines, "", "Selected: "+describeRange(r))

	if m.machine.State() == wizard.Failed && m.machine.LastError() != nil {
		lines = append(lines, "", m.styles.Error.Render(wordwrap.String(errorText(m.machine.LastError()), m.wrapWidth()-4)))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) viewSuccess() string {
	out := m.machine.Outcome()
	lines := []string{m.styles.Header.Render("Event Created"), ""}
	if out != nil {
		lines = append(lines,
			"Post:  "+out.PostID,
			"Image: "+out.ImageURL,
		)
		for _, w := range out.Warnings {
			lines = append(lines, m.styles.Error.Render(wordwrap.String("Warning: "+w, m.wrapWidth()-4)))
		}
	}
	return strings.Join(lines, "\n")
}

func (m *Model) helpLine() string {
	switch m.machine.State() {
	case wizard.EditingLevels:
		return "tab next field | space toggle | +/- quantity | enter continue | esc quit"
	case wizard.EditingDetails:
		return "tab next field | arrows move | space select | [ ] month | { } year | enter submit | esc back"
	case wizard.Failed:
		return "enter retry | esc back to editing"
	case wizard.Success:
		return "n new event | q quit"
	}
	return ""
}

func (m *Model) label(f field, text string) string {
	text = fmt.Sprintf("%-14s", text+":")
	if m.focus == f {
		return m.styles.Focused.Render(text)
	}
	return m.styles.Normal.Render(text)
}

func (m *Model) input(f field, value string) string {
	if m.focus == f {
		return value + "█"
	}
	return value
}

func checkbox(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}

func describeRange(r calendar.Range) string {
	switch {
	case r.Start == nil:
		return "none"
	case r.End == nil:
		return r.Start.String()
	default:
		return r.Start.String() + " to " + r.End.String()
	}
}

// RenderCalendar draws the displayed month of sel as a seven-column grid.
// cursor may be nil.
func RenderCalendar(sel *calendar.Selector, cursor *calendar.Date, today calendar.Date, styles Styles) string {
	year, month := sel.Displayed()
	title := fmt.Sprintf("%s %d", month, year)

	var b strings.Builder
	b.WriteString(styles.Header.Render(title))
	b.WriteString("\n")

	headers := sel.Headers()
	for i, h := range headers {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(styles.Help.Render(fmt.Sprintf("%2s", h)))
	}

	grid := sel.Grid()
	for i, cell := range grid {
		if i%7 == 0 {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}
		b.WriteString(cellStyle(sel, cell, cursor, today, styles).Render(fmt.Sprintf("%2d", cell.Date.Day)))
	}
	return b.String()
}

func cellStyle(sel *calendar.Selector, cell calendar.Cell, cursor *calendar.Date, today calendar.Date, styles Styles) lipgloss.Style {
	var style lipgloss.Style
	switch state := sel.Classify(cell); {
	case !cell.IsCurrentMonth:
		style = styles.Outside
	case state == calendar.CellInRange:
		style = styles.InRange
	case state.Selected():
		style = styles.Selected
	case cell.Date == today:
		style = styles.Today
	default:
		style = styles.Normal
	}
	if cursor != nil && cell.Date == *cursor {
		style = style.Inherit(styles.Cursor).Underline(true)
	}
	return style
}
