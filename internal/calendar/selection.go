package calendar

// CellState is how a grid cell renders relative to the current selection.
type CellState int

const (
	CellNone CellState = iota
	CellSingle
	CellRangeStart
	CellRangeEnd
	CellInRange
)

func (s CellState) String() string {
	switch s {
	case CellSingle:
		return "single"
	case CellRangeStart:
		return "range_start"
	case CellRangeEnd:
		return "range_end"
	case CellInRange:
		return "in_range"
	default:
		return "none"
	}
}

func (s CellState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Selected reports whether the cell is part of the selection at all.
func (s CellState) Selected() bool {
	return s != CellNone
}

// Range is the selected start and end day. With MultiDay off, End is always nil.
// With both ends set, Start is never after End.
type Range struct {
	Start    *Date `json:"start"`
	End      *Date `json:"end"`
	MultiDay bool  `json:"multi_day"`
}

// Complete reports whether the range has everything its mode needs.
func (r Range) Complete() bool {
	if r.Start == nil {
		return false
	}
	return !r.MultiDay || r.End != nil
}

// Select applies a click on cell and returns the new range. Cells outside
// the displayed month leave the range untouched.
func (r Range) Select(cell Cell) (Range, bool) {
	if !cell.IsCurrentMonth {
		return r, false
	}
	d := cell.Date

	switch {
	case !r.MultiDay:
		r.Start, r.End = &d, nil
	case r.Start == nil:
		r.Start = &d
	case r.End == nil:
		start := *r.Start
		if d.Before(start) {
			r.Start, r.End = &d, &start
		} else {
			r.End = &d
		}
	default:
		r.Start, r.End = &d, nil
	}
	return r, true
}

// WithMultiDay switches mode. Leaving multi-day mode drops the end date.
func (r Range) WithMultiDay(on bool) Range {
	r.MultiDay = on
	if !on {
		r.End = nil
	}
	return r
}

// Classify returns the state of cell under r.
func Classify(cell Cell, r Range) CellState {
	if !cell.IsCurrentMonth || r.Start == nil {
		return CellNone
	}
	d := cell.Date
	start := *r.Start

	if !r.MultiDay || r.End == nil {
		if d == start {
			return CellSingle
		}
		return CellNone
	}

	end := *r.End
	switch {
	case start == end && d == start:
		return CellSingle
	case d == start:
		return CellRangeStart
	case d == end:
		return CellRangeEnd
	case d.After(start) && d.Before(end):
		return CellInRange
	}
	return CellNone
}
