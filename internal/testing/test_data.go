// test_data.go - generated event drafts for integration tests
package testing

import (
	"fmt"

	"trackhub/internal/levels"
	"trackhub/internal/wizard"
)

// PNGBytes is enough of a PNG header for content sniffing.
var PNGBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")

// TestEventData is everything the wizard needs for one event.
type TestEventData struct {
	Title        string
	EventName    string
	Location     string
	Levels       []levels.Selection
	Start        string
	End          string
	MembersOnly  bool
	MembershipID string
	WithImage    bool
}

var testLocations = []string{"Thunderhill", "Laguna Seca", "Sonoma Raceway", "Buttonwillow", "Willow Springs"}

// GenerateTestEvent builds an event in October 2026. Variations:
// "multi-day", "members-only", "with-image", "named".
func (ts *TestSuite) GenerateTestEvent(variations ...string) TestEventData {
	ts.mu.Lock()
	ts.userSeq++
	n := ts.userSeq
	ts.mu.Unlock()

	td := TestEventData{
		Title:    fmt.Sprintf("Track Day %d", n),
		Location: testLocations[n%len(testLocations)],
		Levels: []levels.Selection{
			{LevelID: 1, Price: "150", Quantity: 20},
			{LevelID: 3, Price: "275.50", Quantity: 1},
		},
		Start: fmt.Sprintf("2026-10-%02d", 18+n%10),
	}

	for _, v := range variations {
		switch v {
		case "multi-day":
			td.End = fmt.Sprintf("2026-10-%02d", 18+n%10+2)
		case "members-only":
			td.MembersOnly = true
		case "with-image":
			td.WithImage = true
		case "named":
			td.EventName = fmt.Sprintf("Fall Classic %d", n)
		}
	}
	return td
}

// ToActions returns the wizard inputs for both screens, in order.
func (td TestEventData) ToActions() []wizard.Action {
	actions := []wizard.Action{
		{Type: wizard.ActionSetTitle, Text: td.Title},
	}
	if td.MembersOnly {
		actions = append(actions,
			wizard.Action{Type: wizard.ActionSetMembersOnly, Enabled: true},
			wizard.Action{Type: wizard.ActionSelectMembership, Text: td.MembershipID},
		)
	}
	for _, l := range td.Levels {
		actions = append(actions,
			wizard.Action{Type: wizard.ActionToggleLevel, LevelID: l.LevelID},
			wizard.Action{Type: wizard.ActionSetPrice, LevelID: l.LevelID, Text: l.Price},
			wizard.Action{Type: wizard.ActionSetQuantity, LevelID: l.LevelID, Text: fmt.Sprint(l.Quantity)},
		)
	}
	actions = append(actions, wizard.Action{Type: wizard.ActionContinue})

	if td.EventName != "" {
		actions = append(actions, wizard.Action{Type: wizard.ActionSetEventName, Text: td.EventName})
	}
	actions = append(actions, wizard.Action{Type: wizard.ActionSetLocation, Text: td.Location})
	if td.WithImage {
		actions = append(actions, wizard.Action{Type: wizard.ActionSetImage, Text: wizard.EncodeDataURL("image/png", PNGBytes)})
	}
	if td.End != "" {
		actions = append(actions, wizard.Action{Type: wizard.ActionSetMultiDay, Enabled: true})
	}
	actions = append(actions, wizard.Action{Type: wizard.ActionSelectDate, Date: td.Start})
	if td.End != "" {
		actions = append(actions, wizard.Action{Type: wizard.ActionSelectDate, Date: td.End})
	}
	return actions
}

// ExpectedEventName is the stored name: the explicit one or the title.
func (td TestEventData) ExpectedEventName() string {
	if td.EventName != "" {
		return td.EventName
	}
	return td.Title
}
