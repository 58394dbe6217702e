// Package levels manages the ticket levels picked for an event and the
// price and quantity entered for each one.
package levels

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Level is a named ticket tier from the catalog.
type Level struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// DefaultCatalog is used when no catalog file is configured.
var DefaultCatalog = []Level{
	{ID: 1, Name: "Level 1"},
	{ID: 2, Name: "Level 2"},
	{ID: 3, Name: "Level 3"},
	{ID: 4, Name: "Level 4"},
}

var ErrUnknownLevel = errors.New("unknown ticket level")

var (
	pricePattern    = regexp.MustCompile(`^[0-9.,]+$`)
	quantityPattern = regexp.MustCompile(`^[0-9]+$`)
)

// Selection is the price and quantity entered for one level.
type Selection struct {
	LevelID  int    `json:"level_id"`
	Price    string `json:"price"`
	Quantity int    `json:"quantity"`
}

// Editor tracks which levels are selected. Values entered for a level are
// kept when it is deselected so re-selecting restores them.
type Editor struct {
	catalog  []Level
	selected []int
	data     map[int]Selection
}

func NewEditor(catalog []Level) *Editor {
	if len(catalog) == 0 {
		catalog = DefaultCatalog
	}
	return &Editor{
		catalog: append([]Level(nil), catalog...),
		data:    make(map[int]Selection),
	}
}

func (e *Editor) Catalog() []Level {
	return append([]Level(nil), e.catalog...)
}

func (e *Editor) Level(id int) (Level, bool) {
	for _, l := range e.catalog {
		if l.ID == id {
			return l, true
		}
	}
	return Level{}, false
}

// Toggle selects or deselects a level.
func (e *Editor) Toggle(levelID int) error {
	if _, ok := e.Level(levelID); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownLevel, levelID)
	}

	for i, id := range e.selected {
		if id == levelID {
			e.selected = append(e.selected[:i], e.selected[i+1:]...)
			return nil
		}
	}

	e.ensure(levelID)
	e.selected = append(e.selected, levelID)
	return nil
}

func (e *Editor) IsSelected(levelID int) bool {
	for _, id := range e.selected {
		if id == levelID {
			return true
		}
	}
	return false
}

// SetPrice stores text if it is empty or made of digits and separators.
// Anything else is dropped and the previous price stays.
func (e *Editor) SetPrice(levelID int, text string) bool {
	if _, ok := e.Level(levelID); !ok {
		return false
	}
	if text != "" && !pricePattern.MatchString(text) {
		return false
	}
	sel := e.ensure(levelID)
	sel.Price = text
	e.data[levelID] = sel
	return true
}

// ChangeQuantity adds delta to the quantity, never going below 1.
func (e *Editor) ChangeQuantity(levelID int, delta int) {
	if _, ok := e.Level(levelID); !ok {
		return
	}
	sel := e.ensure(levelID)
	sel.Quantity = max(1, sel.Quantity+delta)
	e.data[levelID] = sel
}

// SetQuantityFromText accepts digits only; empty means 1.
func (e *Editor) SetQuantityFromText(levelID int, text string) bool {
	if _, ok := e.Level(levelID); !ok {
		return false
	}
	want := 1
	if text != "" {
		if !quantityPattern.MatchString(text) {
			return false
		}
		n, err := strconv.Atoi(text)
		if err != nil {
			return false
		}
		want = n
	}
	current := e.ensure(levelID).Quantity
	e.ChangeQuantity(levelID, want-current)
	return true
}

// Selection returns the stored values for a level, selected or not.
func (e *Editor) Selection(levelID int) (Selection, bool) {
	sel, ok := e.data[levelID]
	return sel, ok
}

// Selected returns level ids in the order they were picked.
func (e *Editor) Selected() []int {
	return append([]int(nil), e.selected...)
}

// Selections returns the values of selected levels in pick order.
func (e *Editor) Selections() []Selection {
	out := make([]Selection, 0, len(e.selected))
	for _, id := range e.selected {
		out = append(out, e.data[id])
	}
	return out
}

// MissingPrice returns the first selected level without a price.
func (e *Editor) MissingPrice() (Level, bool) {
	for _, id := range e.selected {
		if sel := e.data[id]; sel.Price == "" {
			l, _ := e.Level(id)
			return l, true
		}
	}
	return Level{}, false
}

// Reset forgets every selection and stored value.
func (e *Editor) Reset() {
	e.selected = nil
	e.data = make(map[int]Selection)
}

func (e *Editor) ensure(levelID int) Selection {
	sel, ok := e.data[levelID]
	if !ok {
		sel = Selection{LevelID: levelID, Quantity: 1}
		e.data[levelID] = sel
	}
	return sel
}
