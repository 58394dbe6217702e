package levels

import (
	"errors"
	"testing"
)

func TestToggleInitializesDefaults(t *testing.T) {
	e := NewEditor(nil)

	if err := e.Toggle(2); err != nil {
		t.Fatal(err)
	}
	if !e.IsSelected(2) {
		t.Fatal("level 2 not selected")
	}
	sel, ok := e.Selection(2)
	if !ok || sel.Price != "" || sel.Quantity != 1 || sel.LevelID != 2 {
		t.Errorf("selection = %+v, %v", sel, ok)
	}
}

func TestToggleUnknownLevel(t *testing.T) {
	e := NewEditor(nil)
	if err := e.Toggle(9); !errors.Is(err, ErrUnknownLevel) {
		t.Errorf("err = %v, want ErrUnknownLevel", err)
	}
	if len(e.Selected()) != 0 {
		t.Error("unknown level was selected")
	}
}

func TestToggleOffKeepsValues(t *testing.T) {
	e := NewEditor(nil)
	e.Toggle(1)
	e.SetPrice(1, "50")
	e.ChangeQuantity(1, 2)

	e.Toggle(1)
	if e.IsSelected(1) {
		t.Fatal("level still selected after toggle off")
	}
	if len(e.Selections()) != 0 {
		t.Errorf("selections = %+v", e.Selections())
	}

	e.Toggle(1)
	sel, _ := e.Selection(1)
	if sel.Price != "50" || sel.Quantity != 3 {
		t.Errorf("after re-toggle = %+v, want price 50 quantity 3", sel)
	}
}

func TestSetPrice(t *testing.T) {
	tests := []struct {
		input    string
		accepted bool
		want     string
	}{
		{"25.00", true, "25.00"},
		{"1,500", true, "1,500"},
		{"", true, ""},
		{"abc", false, "10"},
		{"-5", false, "10"},
		{"12 ", false, "10"},
		{"$3", false, "10"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			e := NewEditor(nil)
			e.Toggle(1)
			e.SetPrice(1, "10")

			if got := e.SetPrice(1, tt.input); got != tt.accepted {
				t.Errorf("SetPrice(%q) = %v, want %v", tt.input, got, tt.accepted)
			}
			sel, _ := e.Selection(1)
			if sel.Price != tt.want {
				t.Errorf("price = %q, want %q", sel.Price, tt.want)
			}
		})
	}
}

func TestChangeQuantityFloor(t *testing.T) {
	e := NewEditor(nil)
	e.Toggle(3)

	e.ChangeQuantity(3, -100)
	if sel, _ := e.Selection(3); sel.Quantity != 1 {
		t.Errorf("quantity = %d, want 1", sel.Quantity)
	}

	e.ChangeQuantity(3, 4)
	e.ChangeQuantity(3, -1)
	if sel, _ := e.Selection(3); sel.Quantity != 4 {
		t.Errorf("quantity = %d, want 4", sel.Quantity)
	}
}

func TestSetQuantityFromText(t *testing.T) {
	tests := []struct {
		input    string
		accepted bool
		want     int
	}{
		{"7", true, 7},
		{"", true, 1},
		{"0", true, 1},
		{"x", false, 5},
		{"-2", false, 5},
		{"3.5", false, 5},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			e := NewEditor(nil)
			e.Toggle(1)
			e.ChangeQuantity(1, 4)

			if got := e.SetQuantityFromText(1, tt.input); got != tt.accepted {
				t.Errorf("SetQuantityFromText(%q) = %v", tt.input, got)
			}
			if sel, _ := e.Selection(1); sel.Quantity != tt.want {
				t.Errorf("quantity = %d, want %d", sel.Quantity, tt.want)
			}
		})
	}
}

func TestSelectionsKeepPickOrder(t *testing.T) {
	e := NewEditor(nil)
	e.Toggle(3)
	e.Toggle(1)
	e.Toggle(4)
	e.Toggle(1)

	got := e.Selected()
	if len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Errorf("selected = %v, want [3 4]", got)
	}
}

func TestMissingPrice(t *testing.T) {
	e := NewEditor(nil)
	e.Toggle(1)
	e.Toggle(2)
	e.SetPrice(1, "20")

	l, missing := e.MissingPrice()
	if !missing || l.ID != 2 {
		t.Errorf("MissingPrice = %+v, %v", l, missing)
	}

	e.SetPrice(2, "15")
	if _, missing := e.MissingPrice(); missing {
		t.Error("still missing after all prices set")
	}
}

func TestCustomCatalog(t *testing.T) {
	e := NewEditor([]Level{{ID: 10, Name: "Paddock"}})
	if err := e.Toggle(1); err == nil {
		t.Error("default level accepted with custom catalog")
	}
	if err := e.Toggle(10); err != nil {
		t.Error(err)
	}
}
