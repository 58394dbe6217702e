// Package calendar builds month grids for the event date picker and tracks
// the single-day or multi-day selection made on them.
package calendar

import (
	"fmt"
	"time"
)

const (
	// GridSize is six full weeks, enough for any month at any offset.
	GridSize = 42

	// YearSpan is how far either side of the current year SelectYear reaches.
	YearSpan = 5
)

// Cell is one square of the month grid.
type Cell struct {
	Date           Date `json:"date"`
	IsCurrentMonth bool `json:"is_current_month"`
}

// GenerateGrid lays out the month starting on weekStart. Leading cells come
// from the previous month, trailing cells from the next one.
func GenerateGrid(year int, month time.Month, weekStart time.Weekday) [GridSize]Cell {
	first := NewDate(year, month, 1)
	lead := (int(first.Weekday()) - int(weekStart) + 7) % 7
	origin := first.AddDays(-lead)

	var cells [GridSize]Cell
	for i := range cells {
		d := origin.AddDays(i)
		cells[i] = Cell{Date: d, IsCurrentMonth: d.SameMonth(first.Year, first.Month)}
	}
	return cells
}

// WeekdayHeaders returns two-letter column labels in grid order.
func WeekdayHeaders(weekStart time.Weekday) []string {
	headers := make([]string, 7)
	for i := range headers {
		headers[i] = ((weekStart + time.Weekday(i)) % 7).String()[:2]
	}
	return headers
}

// Selector is the date picker: the displayed month plus the selected range.
type Selector struct {
	displayed Date
	weekStart time.Weekday
	selection Range
	clock     func() time.Time
}

// NewSelector displays the month containing clock() with nothing selected.
func NewSelector(clock func() time.Time, weekStart time.Weekday) *Selector {
	if clock == nil {
		clock = time.Now
	}
	now := clock()
	return &Selector{
		displayed: NewDate(now.Year(), now.Month(), 1),
		weekStart: weekStart % 7,
		clock:     clock,
	}
}

// Displayed returns the month currently shown.
func (s *Selector) Displayed() (int, time.Month) {
	return s.displayed.Year, s.displayed.Month
}

func (s *Selector) WeekStart() time.Weekday {
	return s.weekStart
}

// SetDisplayedMonth shows the month containing d. The selection is kept.
func (s *Selector) SetDisplayedMonth(d Date) {
	s.displayed = NewDate(d.Year, d.Month, 1)
}

// NavigateMonth moves the displayed month by delta, wrapping across years.
func (s *Selector) NavigateMonth(delta int) {
	s.displayed = NewDate(s.displayed.Year, s.displayed.Month+time.Month(delta), 1)
}

func (s *Selector) SelectMonth(month time.Month) error {
	if month < time.January || month > time.December {
		return fmt.Errorf("month %d out of range", int(month))
	}
	s.displayed = NewDate(s.displayed.Year, month, 1)
	return nil
}

// SelectYear accepts only years inside Years().
func (s *Selector) SelectYear(year int) error {
	current := s.clock().Year()
	if year < current-YearSpan || year > current+YearSpan {
		return fmt.Errorf("year %d outside %d-%d", year, current-YearSpan, current+YearSpan)
	}
	s.displayed = NewDate(year, s.displayed.Month, 1)
	return nil
}

// Years lists the years offered by the year picker.
func (s *Selector) Years() []int {
	current := s.clock().Year()
	years := make([]int, 0, 2*YearSpan+1)
	for y := current - YearSpan; y <= current+YearSpan; y++ {
		years = append(years, y)
	}
	return years
}

func (s *Selector) Grid() [GridSize]Cell {
	return GenerateGrid(s.displayed.Year, s.displayed.Month, s.weekStart)
}

func (s *Selector) Headers() []string {
	return WeekdayHeaders(s.weekStart)
}

func (s *Selector) Range() Range {
	return s.selection
}

func (s *Selector) MultiDay() bool {
	return s.selection.MultiDay
}

func (s *Selector) SetMultiDay(on bool) {
	s.selection = s.selection.WithMultiDay(on)
}

// Select handles a click on a grid cell.
func (s *Selector) Select(cell Cell) bool {
	next, changed := s.selection.Select(cell)
	s.selection = next
	return changed
}

// SelectDate clicks the cell for d as it appears in the displayed month.
func (s *Selector) SelectDate(d Date) bool {
	return s.Select(Cell{Date: d, IsCurrentMonth: d.SameMonth(s.displayed.Year, s.displayed.Month)})
}

func (s *Selector) Classify(cell Cell) CellState {
	return Classify(cell, s.selection)
}

// Clear drops the selection but keeps the mode and displayed month.
func (s *Selector) Clear() {
	s.selection = Range{MultiDay: s.selection.MultiDay}
}
