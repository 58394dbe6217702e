package wizard

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"trackhub/internal/calendar"
	"trackhub/internal/levels"
	"trackhub/internal/logger"
)

func init() {
	logger.SetOutput(io.Discard)
}

const placeholder = "http://localhost/static/event-placeholder.jpg"

var fixedNow = time.Date(2026, time.October, 17, 9, 0, 0, 0, time.UTC)

func newMachine() *Machine {
	return New(Options{
		Memberships:         []Membership{{ID: "m1", Name: "Pit Crew"}},
		Clock:               func() time.Time { return fixedNow },
		PlaceholderImageURL: placeholder,
	})
}

type fakeBackend struct {
	session   *Session
	uploadErr error
	recordErr error
	levelsErr error

	uploaded []string
	records  []EventRecord
	rows     [][]levels.Selection
}

func (f *fakeBackend) CurrentSession(ctx context.Context) (*Session, error) {
	return f.session, nil
}

func (f *fakeBackend) UploadImage(ctx context.Context, data []byte, filename string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploaded = append(f.uploaded, filename)
	return "http://localhost/uploads/" + filename, nil
}

func (f *fakeBackend) CreateEventRecord(ctx context.Context, rec EventRecord) (string, error) {
	if f.recordErr != nil {
		return "", f.recordErr
	}
	f.records = append(f.records, rec)
	return "post-1", nil
}

func (f *fakeBackend) CreateEventLevels(ctx context.Context, postID string, rows []levels.Selection) error {
	if f.levelsErr != nil {
		return f.levelsErr
	}
	f.rows = append(f.rows, rows)
	return nil
}

func apply(t *testing.T, m *Machine, actions ...Action) {
	t.Helper()
	for _, a := range actions {
		if err := m.Apply(a); err != nil {
			t.Fatalf("Apply(%+v): %v", a, err)
		}
	}
}

func validationField(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Field
	}
	return ""
}

// toDetails fills a valid screen one and continues.
func toDetails(t *testing.T, m *Machine) {
	t.Helper()
	apply(t, m,
		Action{Type: ActionSetTitle, Text: "Track Day"},
		Action{Type: ActionToggleLevel, LevelID: 1},
		Action{Type: ActionSetPrice, LevelID: 1, Text: "25.00"},
		Action{Type: ActionChangeQuantity, LevelID: 1, Delta: 1},
		Action{Type: ActionContinue},
	)
}

func TestLevelsValidationOrder(t *testing.T) {
	tests := []struct {
		name    string
		actions []Action
		want    string
	}{
		{
			name:    "empty title checked first",
			actions: []Action{{Type: ActionSetMembersOnly, Enabled: true}},
			want:    "title",
		},
		{
			name: "blank title with levels",
			actions: []Action{
				{Type: ActionSetTitle, Text: "   "},
				{Type: ActionToggleLevel, LevelID: 1},
				{Type: ActionSetPrice, LevelID: 1, Text: "10"},
			},
			want: "title",
		},
		{
			name:    "no levels",
			actions: []Action{{Type: ActionSetTitle, Text: "Track Day"}},
			want:    "levels",
		},
		{
			name: "missing price",
			actions: []Action{
				{Type: ActionSetTitle, Text: "Track Day"},
				{Type: ActionToggleLevel, LevelID: 1},
				{Type: ActionToggleLevel, LevelID: 2},
				{Type: ActionSetPrice, LevelID: 1, Text: "10"},
			},
			want: "price",
		},
		{
			name: "members only without membership",
			actions: []Action{
				{Type: ActionSetTitle, Text: "Track Day"},
				{Type: ActionToggleLevel, LevelID: 1},
				{Type: ActionSetPrice, LevelID: 1, Text: "10"},
				{Type: ActionSetMembersOnly, Enabled: true},
			},
			want: "membership",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMachine()
			apply(t, m, tt.actions...)
			err := m.Apply(Action{Type: ActionContinue})
			if got := validationField(err); got != tt.want {
				t.Errorf("continue error = %v (field %q), want field %q", err, got, tt.want)
			}
			if m.State() != EditingLevels {
				t.Errorf("state = %s, want editing_levels", m.State())
			}
		})
	}
}

func TestEmptyTitleMessage(t *testing.T) {
	m := newMachine()
	apply(t, m, Action{Type: ActionToggleLevel, LevelID: 1})
	err := m.Apply(Action{Type: ActionContinue})
	if err == nil || !strings.Contains(err.Error(), "enter a title") {
		t.Errorf("error = %v, want enter a title", err)
	}
}

func TestMembersOnlyContinue(t *testing.T) {
	m := newMachine()
	apply(t, m,
		Action{Type: ActionSetTitle, Text: "Members Night"},
		Action{Type: ActionToggleLevel, LevelID: 2},
		Action{Type: ActionSetPrice, LevelID: 2, Text: "5"},
		Action{Type: ActionSetMembersOnly, Enabled: true},
	)
	if err := m.Apply(Action{Type: ActionSelectMembership, Text: "nope"}); !errors.Is(err, ErrUnknownMembership) {
		t.Fatalf("unknown membership error = %v", err)
	}
	apply(t, m, Action{Type: ActionSelectMembership, Text: "m1"}, Action{Type: ActionContinue})
	if m.State() != EditingDetails {
		t.Errorf("state = %s", m.State())
	}
}

func TestActionsGatedByState(t *testing.T) {
	m := newMachine()
	if err := m.Apply(Action{Type: ActionSetLocation, Text: "x"}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("details action on screen one: %v", err)
	}
	if err := m.Apply(Action{Type: ActionBack}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("back on screen one: %v", err)
	}
	if err := m.Apply(Action{Type: "fly"}); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("unknown action: %v", err)
	}

	toDetails(t, m)
	if err := m.Apply(Action{Type: ActionSetTitle, Text: "x"}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("screen one action on details: %v", err)
	}
	if _, err := newMachine().Submit(context.Background(), &fakeBackend{}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("submit from screen one: %v", err)
	}
}

func TestBackPreservesScreenOne(t *testing.T) {
	m := newMachine()
	toDetails(t, m)
	apply(t, m, Action{Type: ActionBack})

	if m.State() != EditingLevels {
		t.Fatalf("state = %s", m.State())
	}
	if m.Title() != "Track Day" {
		t.Errorf("title = %q", m.Title())
	}
	sel, ok := m.LevelSelection(1)
	if !ok || sel.Price != "25.00" || sel.Quantity != 2 || !m.IsLevelSelected(1) {
		t.Errorf("level 1 = %+v, %v", sel, ok)
	}
	apply(t, m, Action{Type: ActionContinue})
}

func TestDetailsValidationOrder(t *testing.T) {
	m := newMachine()
	toDetails(t, m)
	ctx := context.Background()
	b := &fakeBackend{session: &Session{UserID: "u1"}}

	_, err := m.Submit(ctx, b)
	if validationField(err) != "date" || !strings.Contains(err.Error(), "select a date") {
		t.Fatalf("first error = %v", err)
	}

	apply(t, m, Action{Type: ActionSelectDate, Date: "2026-10-20"})
	_, err = m.Submit(ctx, b)
	if validationField(err) != "location" || !strings.Contains(err.Error(), "enter a location") {
		t.Fatalf("second error = %v", err)
	}

	apply(t, m,
		Action{Type: ActionSetLocation, Text: "Laguna Seca"},
		Action{Type: ActionSetMultiDay, Enabled: true},
	)
	_, err = m.Submit(ctx, b)
	if validationField(err) != "end_date" {
		t.Fatalf("third error = %v", err)
	}
	if m.State() != EditingDetails || len(b.records) != 0 {
		t.Errorf("state = %s, records = %d", m.State(), len(b.records))
	}
}

func TestSubmitSuccess(t *testing.T) {
	m := newMachine()
	toDetails(t, m)
	apply(t, m,
		Action{Type: ActionSetLocation, Text: "Laguna Seca"},
		Action{Type: ActionSetMultiDay, Enabled: true},
		Action{Type: ActionSelectDate, Date: "2026-10-24"},
		Action{Type: ActionSelectDate, Date: "2026-10-22"},
		Action{Type: ActionSetImage, Text: EncodeDataURL("image/png", []byte("png"))},
	)

	b := &fakeBackend{session: &Session{UserID: "u1"}}
	out, err := m.Submit(context.Background(), b)
	if err != nil {
		t.Fatal(err)
	}
	if out.PostID != "post-1" || len(out.Warnings) != 0 {
		t.Errorf("outcome = %+v", out)
	}
	if len(b.uploaded) != 1 || !strings.HasSuffix(b.uploaded[0], ".png") {
		t.Errorf("uploaded = %v", b.uploaded)
	}
	if !strings.HasSuffix(out.ImageURL, b.uploaded[0]) {
		t.Errorf("image url = %s", out.ImageURL)
	}

	rec := b.records[0]
	if rec.Caption != "Track Day" || rec.EventName != "Track Day" {
		t.Errorf("caption/name = %q/%q", rec.Caption, rec.EventName)
	}
	if rec.EventDate != calendar.NewDate(2026, time.October, 22) || rec.EventEndDate == nil ||
		*rec.EventEndDate != calendar.NewDate(2026, time.October, 24) || !rec.IsMultiDay {
		t.Errorf("dates = %v - %v multi=%v", rec.EventDate, rec.EventEndDate, rec.IsMultiDay)
	}
	if rec.MembershipID != "" {
		t.Errorf("public event has membership %q", rec.MembershipID)
	}
	if len(b.rows) != 1 || len(b.rows[0]) != 1 || b.rows[0][0] != (levels.Selection{LevelID: 1, Price: "25.00", Quantity: 2}) {
		t.Errorf("level rows = %+v", b.rows)
	}

	if m.State() != Success {
		t.Errorf("state = %s", m.State())
	}
	if m.Title() != "" || m.Location() != "" || m.HasImage() || m.Calendar().Range().Start != nil {
		t.Error("draft not cleared after success")
	}
}

func TestSubmitRequiresSession(t *testing.T) {
	m := newMachine()
	toDetails(t, m)
	apply(t, m,
		Action{Type: ActionSetLocation, Text: "Sonoma"},
		Action{Type: ActionSelectDate, Date: "2026-10-30"},
	)
	b := &fakeBackend{}
	if _, err := m.Submit(context.Background(), b); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("error = %v", err)
	}
	if m.State() != EditingDetails || len(b.records) != 0 {
		t.Errorf("state = %s, records = %d", m.State(), len(b.records))
	}
}

func TestSubmitFailureKeepsDraft(t *testing.T) {
	m := newMachine()
	toDetails(t, m)
	apply(t, m,
		Action{Type: ActionSetLocation, Text: "Sonoma"},
		Action{Type: ActionSelectDate, Date: "2026-10-30"},
	)
	b := &fakeBackend{session: &Session{UserID: "u1"}, recordErr: errors.New("disk full")}

	_, err := m.Submit(context.Background(), b)
	var se *SubmissionError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want SubmissionError", err)
	}
	if m.State() != Failed || m.LastError() == nil {
		t.Fatalf("state = %s, last error = %v", m.State(), m.LastError())
	}
	if m.Location() != "Sonoma" || m.Title() != "Track Day" {
		t.Error("draft lost after failure")
	}

	b.recordErr = nil
	if _, err := m.Submit(context.Background(), b); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if m.State() != Success {
		t.Errorf("state after retry = %s", m.State())
	}
}

func TestBackFromFailed(t *testing.T) {
	m := newMachine()
	toDetails(t, m)
	apply(t, m,
		Action{Type: ActionSetLocation, Text: "Sonoma"},
		Action{Type: ActionSelectDate, Date: "2026-10-30"},
	)
	m.Submit(context.Background(), &fakeBackend{session: &Session{UserID: "u1"}, recordErr: errors.New("down")})
	apply(t, m, Action{Type: ActionBack})
	if m.State() != EditingDetails || m.LastError() != nil {
		t.Errorf("state = %s, last error = %v", m.State(), m.LastError())
	}
}

func TestPartialWriteWarning(t *testing.T) {
	m := newMachine()
	toDetails(t, m)
	apply(t, m,
		Action{Type: ActionSetLocation, Text: "Sonoma"},
		Action{Type: ActionSelectDate, Date: "2026-10-30"},
	)
	b := &fakeBackend{session: &Session{UserID: "u1"}, levelsErr: errors.New("constraint")}

	out, err := m.Submit(context.Background(), b)
	if err != nil {
		t.Fatal(err)
	}
	var pw *PartialWriteWarning
	if len(out.Errors()) != 1 || !errors.As(out.Errors()[0], &pw) || pw.PostID != "post-1" {
		t.Errorf("warnings = %v", out.Errors())
	}
	if len(b.records) != 1 || m.State() != Success {
		t.Errorf("records = %d, state = %s", len(b.records), m.State())
	}
}

func TestEndToEndPlaceholderOnUploadFailure(t *testing.T) {
	m := newMachine()
	toDetails(t, m)
	if m.State() != EditingDetails {
		t.Fatalf("state = %s", m.State())
	}

	b := &fakeBackend{session: &Session{UserID: "u1"}, uploadErr: errors.New("bucket unavailable")}
	apply(t, m, Action{Type: ActionSetLocation, Text: ""})
	_, err := m.Submit(context.Background(), b)
	if validationField(err) != "date" {
		t.Fatalf("error = %v, want date first", err)
	}

	apply(t, m,
		Action{Type: ActionSelectDate, Date: "2026-10-25"},
		Action{Type: ActionSetLocation, Text: "Thunderhill"},
		Action{Type: ActionSetImage, Text: EncodeDataURL("image/jpeg", []byte{0xff, 0xd8})},
	)
	out, err := m.Submit(context.Background(), b)
	if err != nil {
		t.Fatal(err)
	}
	if out.ImageURL != placeholder || b.records[0].ImageURL != placeholder {
		t.Errorf("image url = %s / %s", out.ImageURL, b.records[0].ImageURL)
	}
	var uw *UploadWarning
	if len(out.Errors()) != 1 || !errors.As(out.Errors()[0], &uw) {
		t.Errorf("warnings = %v", out.Errors())
	}
	if b.records[0].IsMultiDay || b.records[0].EventEndDate != nil {
		t.Errorf("single-day record = %+v", b.records[0])
	}
}

func TestSetImageRejectsNonImage(t *testing.T) {
	m := newMachine()
	toDetails(t, m)
	err := m.Apply(Action{Type: ActionSetImage, Text: "data:text/plain;base64,aGk="})
	if validationField(err) != "image" {
		t.Errorf("error = %v", err)
	}
	if m.HasImage() {
		t.Error("image kept")
	}
}

func TestCalendarActions(t *testing.T) {
	m := newMachine()
	toDetails(t, m)

	// outside the displayed month: no-op
	apply(t, m, Action{Type: ActionSelectDate, Date: "2026-11-03"})
	if m.Calendar().Range().Start != nil {
		t.Fatal("selected a date outside the displayed month")
	}

	apply(t, m,
		Action{Type: ActionNavigateMonth, Delta: 1},
		Action{Type: ActionSelectDate, Date: "2026-11-03"},
	)
	if got := m.Snapshot(); got.Displayed != "2026-11" || got.Dates.Start == nil || got.Dates.Start.String() != "2026-11-03" {
		t.Errorf("snapshot = %+v", got)
	}

	if err := m.Apply(Action{Type: ActionNavigateMonth, Delta: 3}); validationField(err) != "month" {
		t.Errorf("navigate by 3: %v", err)
	}
	if err := m.Apply(Action{Type: ActionSelectYear, Year: 1999}); validationField(err) != "year" {
		t.Errorf("select year out of window: %v", err)
	}
	apply(t, m, Action{Type: ActionSelectMonth, Month: 2}, Action{Type: ActionSelectYear, Year: 2027})
	if y, mo := m.Calendar().Displayed(); y != 2027 || mo != time.February {
		t.Errorf("displayed = %d-%d", y, mo)
	}
}

func TestDecodeDataURL(t *testing.T) {
	tests := []struct {
		in       string
		wantType string
		wantErr  bool
	}{
		{in: EncodeDataURL("image/png", []byte("abc")), wantType: "image/png"},
		{in: "image/png;base64,YWJj", wantErr: true},
		{in: "data:image/png;base64", wantErr: true},
		{in: "data:image/png,abc", wantErr: true},
		{in: "data:image/png;base64,!!!", wantErr: true},
		{in: "data:image/png;base64,", wantErr: true},
	}

	for _, tt := range tests {
		mediaType, data, err := DecodeDataURL(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidDataURL) {
				t.Errorf("DecodeDataURL(%q) error = %v", tt.in, err)
			}
			continue
		}
		if err != nil || mediaType != tt.wantType || string(data) != "abc" {
			t.Errorf("DecodeDataURL(%q) = %q, %q, %v", tt.in, mediaType, data, err)
		}
	}
}
