package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"trackhub/internal/calendar"
	"trackhub/internal/middleware"
)

type calendarCell struct {
	Date           calendar.Date      `json:"date"`
	IsCurrentMonth bool               `json:"is_current_month"`
	State          calendar.CellState `json:"state"`
}

type calendarResponse struct {
	Year      int            `json:"year"`
	Month     int            `json:"month"`
	WeekStart string         `json:"week_start"`
	Headers   []string       `json:"headers"`
	Years     []int          `json:"years"`
	Selection calendar.Range `json:"selection"`
	Cells     []calendarCell `json:"cells"`
}

// GetCalendar renders a month grid, classifying each cell against an
// optional selection:
//
//	GET /api/calendar?month=2026-10&start=2026-10-22&end=2026-10-24&multi_day=true
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sel := calendar.NewSelector(h.opts.Clock, h.opts.WeekStart)
	if m := q.Get("month"); m != "" {
		t, err := time.Parse("2006-01", m)
		if err != nil {
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_month", "month must look like 2026-10", "")
			return
		}
		sel.SetDisplayedMonth(calendar.DateOf(t))
	}

	r2, err := parseRange(q.Get("start"), q.Get("end"), q.Get("multi_day"))
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_range", err.Error(), "")
		return
	}

	year, month := sel.Displayed()
	resp := calendarResponse{
		Year:      year,
		Month:     int(month),
		WeekStart: sel.WeekStart().String(),
		Headers:   sel.Headers(),
		Years:     sel.Years(),
		Selection: r2,
		Cells:     make([]calendarCell, 0, calendar.GridSize),
	}
	for _, c := range sel.Grid() {
		resp.Cells = append(resp.Cells, calendarCell{
			Date:           c.Date,
			IsCurrentMonth: c.IsCurrentMonth,
			State:          calendar.Classify(c, r2),
		})
	}
	middleware.WriteAPISuccess(w, r, resp)
}

func parseRange(start, end, multiDay string) (calendar.Range, error) {
	var r calendar.Range
	if multiDay != "" {
		on, err := strconv.ParseBool(multiDay)
		if err != nil {
			return r, fmt.Errorf("multi_day must be true or false")
		}
		r.MultiDay = on
	}
	if start != "" {
		d, err := calendar.ParseDate(start)
		if err != nil {
			return r, err
		}
		r.Start = &d
	}
	if end != "" {
		if !r.MultiDay {
			return r, fmt.Errorf("end date requires multi_day=true")
		}
		if r.Start == nil {
			return r, fmt.Errorf("end date requires a start date")
		}
		d, err := calendar.ParseDate(end)
		if err != nil {
			return r, err
		}
		if d.Before(*r.Start) {
			return r, fmt.Errorf("end date is before start date")
		}
		r.End = &d
	}
	return r, nil
}
