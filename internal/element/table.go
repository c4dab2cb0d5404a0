package element

import "slices"

// Table holds elements keyed by id and iterates them in ascending id order,
// which fixes the order of entries in every encoded segment.
type Table struct {
	items []*Element
	byID  map[uint32]*Element
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{byID: make(map[uint32]*Element)}
}

// Len reports the number of elements.
func (t *Table) Len() int {
	return len(t.items)
}

// Get returns the element with id.
func (t *Table) Get(id uint32) (*Element, bool) {
	e, ok := t.byID[id]
	return e, ok
}

// Add inserts e, returning false if its id is taken.
func (t *Table) Add(e *Element) bool {
	if _, ok := t.byID[e.ID()]; ok {
		return false
	}
	i, _ := t.search(e.ID())
	t.items = slices.Insert(t.items, i, e)
	t.byID[e.ID()] = e
	return true
}

// Remove deletes the element with id.
func (t *Table) Remove(id uint32) (*Element, bool) {
	e, ok := t.byID[id]
	if !ok {
		return nil, false
	}
	delete(t.byID, id)
	if i, found := t.search(id); found {
		t.items = slices.Delete(t.items, i, i+1)
	}
	return e, true
}

// All returns the elements in ascending id order. The slice is owned by the
// table and is only valid until the next Add or Remove.
func (t *Table) All() []*Element {
	return t.items
}

// Clear removes every element.
func (t *Table) Clear() {
	clear(t.items)
	t.items = t.items[:0]
	clear(t.byID)
}

func (t *Table) search(id uint32) (int, bool) {
	return slices.BinarySearchFunc(t.items, id, func(e *Element, target uint32) int {
		switch {
		case e.ID() < target:
			return -1
		case e.ID() > target:
			return 1
		default:
			return 0
		}
	})
}
