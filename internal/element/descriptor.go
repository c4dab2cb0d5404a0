package element

import (
	"fmt"
	"slices"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/field"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/wire"
)

// Ledger maps field indices to descriptors in ascending index order. The order
// is part of the wire format: descriptors and snapshots are written in it.
type Ledger struct {
	entries []field.Descriptor
}

// Len reports the number of registered fields.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Entries returns the descriptors in index order. The slice must not be modified.
func (l *Ledger) Entries() []field.Descriptor {
	return l.entries
}

// Lookup finds the descriptor registered at index.
func (l *Ledger) Lookup(index uint8) (field.Descriptor, bool) {
	i, ok := l.search(index)
	if !ok {
		return field.Descriptor{}, false
	}
	return l.entries[i], true
}

func (l *Ledger) put(d field.Descriptor) {
	i, ok := l.search(d.Index)
	if ok {
		l.entries[i] = d
		return
	}
	l.entries = slices.Insert(l.entries, i, d)
}

func (l *Ledger) remove(index uint8) {
	if i, ok := l.search(index); ok {
		l.entries = slices.Delete(l.entries, i, i+1)
	}
}

func (l *Ledger) search(index uint8) (int, bool) {
	return slices.BinarySearchFunc(l.entries, index, func(d field.Descriptor, target uint8) int {
		return int(d.Index) - int(target)
	})
}

func (l *Ledger) clone() Ledger {
	return Ledger{entries: slices.Clone(l.entries)}
}

// Descriptor is the identity of an element as announced to peers.
type Descriptor struct {
	ID       uint32
	Name     string
	AuthorID uint32
	AssetID  uint32
	Fields   Ledger
}

func (d Descriptor) String() string {
	return fmt.Sprintf("element %d %q author=%d asset=%d fields=%d", d.ID, d.Name, d.AuthorID, d.AssetID, d.Fields.Len())
}

// Write encodes [id][name][author][asset][field count][field descriptor]*.
func (d Descriptor) Write(q *wire.Queue) {
	q.WriteUint32(d.ID)
	q.WriteString(d.Name)
	q.WriteUint32(d.AuthorID)
	q.WriteUint32(d.AssetID)
	q.WriteUint8(uint8(d.Fields.Len()))
	for _, fd := range d.Fields.entries {
		fd.Write(q)
	}
}

// ReadDescriptor decodes a descriptor written by Descriptor.Write.
func ReadDescriptor(q *wire.Queue) (Descriptor, error) {
	var d Descriptor
	var err error
	if d.ID, err = q.ReadUint32(); err != nil {
		return Descriptor{}, err
	}
	if d.Name, err = q.ReadString(); err != nil {
		return Descriptor{}, err
	}
	if d.AuthorID, err = q.ReadUint32(); err != nil {
		return Descriptor{}, err
	}
	if d.AssetID, err = q.ReadUint32(); err != nil {
		return Descriptor{}, err
	}
	n, err := q.ReadUint8()
	if err != nil {
		return Descriptor{}, err
	}
	for i := 0; i < int(n); i++ {
		fd, err := field.ReadDescriptor(q)
		if err != nil {
			return Descriptor{}, fmt.Errorf("element %d field %d: %w", d.ID, i, err)
		}
		d.Fields.put(fd)
	}
	return d, nil
}
