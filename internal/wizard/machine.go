// Package wizard implements the two-screen event creation flow: ticket levels
// and title first, then image, location and dates, then submission.
package wizard

import (
	"fmt"
	"strings"
	"time"

	"trackhub/internal/calendar"
	"trackhub/internal/levels"
)

type State int

const (
	EditingLevels State = iota
	EditingDetails
	Submitting
	Success
	Failed
)

func (s State) String() string {
	switch s {
	case EditingLevels:
		return "editing_levels"
	case EditingDetails:
		return "editing_details"
	case Submitting:
		return "submitting"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for st := EditingLevels; st <= Failed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown wizard state %q", b)
}

// Membership is an option for gating a members-only event.
type Membership struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Options is the context a draft is created with. Memberships are the
// business's own memberships, looked up once by the caller.
type Options struct {
	Catalog             []levels.Level
	Memberships         []Membership
	WeekStart           time.Weekday
	Clock               func() time.Time
	PlaceholderImageURL string
}

// Machine holds one event draft and the screen it is on. It is not safe for
// concurrent use.
type Machine struct {
	state State
	opts  Options

	// screen 1
	title        string
	membersOnly  bool
	membershipID string
	levels       *levels.Editor

	// screen 2
	eventName string
	location  string
	image     string
	calendar  *calendar.Selector

	lastErr error
	outcome *Outcome
}

func New(opts Options) *Machine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Machine{
		state:    EditingLevels,
		opts:     opts,
		levels:   levels.NewEditor(opts.Catalog),
		calendar: calendar.NewSelector(opts.Clock, opts.WeekStart),
	}
}

func (m *Machine) State() State              { return m.state }
func (m *Machine) Title() string             { return m.title }
func (m *Machine) MembersOnly() bool         { return m.membersOnly }
func (m *Machine) MembershipID() string      { return m.membershipID }
func (m *Machine) EventName() string         { return m.eventName }
func (m *Machine) Location() string          { return m.location }
func (m *Machine) HasImage() bool            { return m.image != "" }
func (m *Machine) Catalog() []levels.Level   { return m.levels.Catalog() }
func (m *Machine) Memberships() []Membership { return append([]Membership(nil), m.opts.Memberships...) }

// LastError is the error that put the machine into Failed.
func (m *Machine) LastError() error { return m.lastErr }

// Outcome is set once the machine reaches Success.
func (m *Machine) Outcome() *Outcome { return m.outcome }

func (m *Machine) IsLevelSelected(id int) bool { return m.levels.IsSelected(id) }

func (m *Machine) LevelSelection(id int) (levels.Selection, bool) {
	return m.levels.Selection(id)
}

// Calendar exposes the date picker for rendering. Change it through Apply.
func (m *Machine) Calendar() *calendar.Selector { return m.calendar }

// ActionType names a user input the machine reacts to.
type ActionType string

const (
	ActionSetTitle         ActionType = "set_title"
	ActionSetMembersOnly   ActionType = "set_members_only"
	ActionSelectMembership ActionType = "select_membership"
	ActionToggleLevel      ActionType = "toggle_level"
	ActionSetPrice         ActionType = "set_price"
	ActionChangeQuantity   ActionType = "change_quantity"
	ActionSetQuantity      ActionType = "set_quantity"
	ActionContinue         ActionType = "continue"
	ActionBack             ActionType = "back"
	ActionSetEventName     ActionType = "set_event_name"
	ActionSetLocation      ActionType = "set_location"
	ActionSetImage         ActionType = "set_image"
	ActionClearImage       ActionType = "clear_image"
	ActionSetMultiDay      ActionType = "set_multi_day"
	ActionSelectDate       ActionType = "select_date"
	ActionNavigateMonth    ActionType = "navigate_month"
	ActionSelectMonth      ActionType = "select_month"
	ActionSelectYear       ActionType = "select_year"
)

// Action is one user input. Only the fields relevant to Type are read.
type Action struct {
	Type    ActionType `json:"type"`
	Text    string     `json:"text,omitempty"`
	Enabled bool       `json:"enabled,omitempty"`
	LevelID int        `json:"level_id,omitempty"`
	Delta   int        `json:"delta,omitempty"`
	Date    string     `json:"date,omitempty"`
	Month   int        `json:"month,omitempty"`
	Year    int        `json:"year,omitempty"`
}

var screenOf = map[ActionType]State{
	ActionSetTitle:         EditingLevels,
	ActionSetMembersOnly:   EditingLevels,
	ActionSelectMembership: EditingLevels,
	ActionToggleLevel:      EditingLevels,
	ActionSetPrice:         EditingLevels,
	ActionChangeQuantity:   EditingLevels,
	ActionSetQuantity:      EditingLevels,
	ActionContinue:         EditingLevels,
	ActionSetEventName:     EditingDetails,
	ActionSetLocation:      EditingDetails,
	ActionSetImage:         EditingDetails,
	ActionClearImage:       EditingDetails,
	ActionSetMultiDay:      EditingDetails,
	ActionSelectDate:       EditingDetails,
	ActionNavigateMonth:    EditingDetails,
	ActionSelectMonth:      EditingDetails,
	ActionSelectYear:       EditingDetails,
}

// Apply runs one action. Rejected price and quantity text is dropped without
// an error, matching how the input fields filter keystrokes.
func (m *Machine) Apply(a Action) error {
	if a.Type == ActionBack {
		return m.back()
	}

	screen, ok := screenOf[a.Type]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}
	if m.state != screen {
		return invalidTransition(string(a.Type), m.state)
	}

	switch a.Type {
	case ActionSetTitle:
		m.title = a.Text
	case ActionSetMembersOnly:
		m.membersOnly = a.Enabled
	case ActionSelectMembership:
		return m.selectMembership(a.Text)
	case ActionToggleLevel:
		return m.levels.Toggle(a.LevelID)
	case ActionSetPrice:
		m.levels.SetPrice(a.LevelID, a.Text)
	case ActionChangeQuantity:
		m.levels.ChangeQuantity(a.LevelID, a.Delta)
	case ActionSetQuantity:
		m.levels.SetQuantityFromText(a.LevelID, a.Text)
	case ActionContinue:
		if err := m.ValidateLevels(); err != nil {
			return err
		}
		m.state = EditingDetails

	case ActionSetEventName:
		m.eventName = a.Text
	case ActionSetLocation:
		m.location = a.Text
	case ActionSetImage:
		if !strings.HasPrefix(a.Text, "data:image/") {
			return &ValidationError{Field: "image", Message: "Please choose an image file"}
		}
		m.image = a.Text
	case ActionClearImage:
		m.image = ""
	case ActionSetMultiDay:
		m.calendar.SetMultiDay(a.Enabled)
	case ActionSelectDate:
		d, err := calendar.ParseDate(a.Date)
		if err != nil {
			return &ValidationError{Field: "date", Message: err.Error()}
		}
		m.calendar.SelectDate(d)
	case ActionNavigateMonth:
		if a.Delta != 1 && a.Delta != -1 {
			return &ValidationError{Field: "month", Message: "month navigation moves one month at a time"}
		}
		m.calendar.NavigateMonth(a.Delta)
	case ActionSelectMonth:
		if err := m.calendar.SelectMonth(time.Month(a.Month)); err != nil {
			return &ValidationError{Field: "month", Message: err.Error()}
		}
	case ActionSelectYear:
		if err := m.calendar.SelectYear(a.Year); err != nil {
			return &ValidationError{Field: "year", Message: err.Error()}
		}
	}
	return nil
}

func (m *Machine) back() error {
	switch m.state {
	case EditingDetails:
		m.state = EditingLevels
		return nil
	case Failed:
		m.state = EditingDetails
		m.lastErr = nil
		return nil
	}
	return invalidTransition(string(ActionBack), m.state)
}

func (m *Machine) selectMembership(id string) error {
	if id == "" {
		m.membershipID = ""
		return nil
	}
	for _, ms := range m.opts.Memberships {
		if ms.ID == id {
			m.membershipID = id
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownMembership, id)
}

// ValidateLevels checks screen one. The first failing rule wins.
func (m *Machine) ValidateLevels() error {
	if strings.TrimSpace(m.title) == "" {
		return &ValidationError{Field: "title", Message: "Please enter a title"}
	}
	if len(m.levels.Selected()) == 0 {
		return &ValidationError{Field: "levels", Message: "Please select at least one level"}
	}
	if _, missing := m.levels.MissingPrice(); missing {
		return &ValidationError{Field: "price", Message: "Please enter prices for all selected levels"}
	}
	if m.membersOnly && m.membershipID == "" {
		return &ValidationError{Field: "membership", Message: "Please select a membership for members-only event"}
	}
	return nil
}

// ValidateDetails checks screen two. The first failing rule wins.
func (m *Machine) ValidateDetails() error {
	r := m.calendar.Range()
	if r.Start == nil {
		return &ValidationError{Field: "date", Message: "Please select a date"}
	}
	if strings.TrimSpace(m.location) == "" {
		return &ValidationError{Field: "location", Message: "Please enter a location"}
	}
	if r.MultiDay && r.End == nil {
		return &ValidationError{Field: "end_date", Message: "Please select both start and end dates for multi-day events"}
	}
	return nil
}

// Draft is a read-only snapshot of the machine for rendering.
type Draft struct {
	State        State              `json:"state"`
	Title        string             `json:"title"`
	MembersOnly  bool               `json:"members_only"`
	MembershipID string             `json:"membership_id,omitempty"`
	Levels       []levels.Selection `json:"levels"`
	EventName    string             `json:"event_name"`
	Location     string             `json:"location"`
	HasImage     bool               `json:"has_image"`
	Dates        calendar.Range     `json:"dates"`
	Displayed    string             `json:"displayed_month"`
	Error        string             `json:"error,omitempty"`
	Outcome      *Outcome           `json:"outcome,omitempty"`
}

func (m *Machine) Snapshot() Draft {
	year, month := m.calendar.Displayed()
	d := Draft{
		State:        m.state,
		Title:        m.title,
		MembersOnly:  m.membersOnly,
		MembershipID: m.membershipID,
		Levels:       m.levels.Selections(),
		EventName:    m.eventName,
		Location:     m.location,
		HasImage:     m.image != "",
		Dates:        m.calendar.Range(),
		Displayed:    fmt.Sprintf("%04d-%02d", year, int(month)),
		Outcome:      m.outcome,
	}
	if m.lastErr != nil {
		d.Error = m.lastErr.Error()
	}
	return d
}

// reset clears the draft after a successful submission.
func (m *Machine) reset() {
	m.title = ""
	m.membersOnly = false
	m.membershipID = ""
	m.levels.Reset()
	m.eventName = ""
	m.location = ""
	m.image = ""
	m.calendar.SetMultiDay(false)
	m.calendar.Clear()
	m.lastErr = nil
}
