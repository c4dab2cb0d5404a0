package element

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/config"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/field"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/wire"
)

var (
	// ErrLedgerFull reports that an element has used all 255 field indices.
	ErrLedgerFull = errors.New("element: field ledger full")
	// ErrTooManyValues reports a field carrying more values than the apply limit.
	ErrTooManyValues = errors.New("element: too many values for field")
)

const maxFields = math.MaxUint8

// Element is a named collection of replicated fields with a stable identity.
//
// Fields may be set from any goroutine. Adding fields, Process, PrepareDelta,
// Apply and Reset belong to the goroutine that ticks the owning stream.
type Element struct {
	mu        sync.RWMutex
	desc      Descriptor
	settings  config.Settings
	fields    map[string]field.Replicated
	byIndex   map[uint8]field.Replicated
	order     []field.Replicated
	nextIndex int
	filter    Filter
	enabled   bool

	delta        wire.Queue
	hasDelta     bool
	reliable     bool
	snapshot     wire.Queue
	snapshotDone bool
}

// New constructs a host-side element with no fields.
func New(id uint32, name string, authorID, assetID uint32, settings config.Settings) *Element {
	return &Element{
		desc: Descriptor{
			ID:       id,
			Name:     name,
			AuthorID: authorID,
			AssetID:  assetID,
		},
		settings: settings,
		fields:   make(map[string]field.Replicated),
		byIndex:  make(map[uint8]field.Replicated),
		filter:   DefaultFilter(),
		enabled:  true,
	}
}

// FromDescriptor builds a mirror of a remote element. Fields of unknown kinds
// are left out; their indices are skipped when deltas are applied.
func FromDescriptor(d Descriptor, settings config.Settings) *Element {
	e := New(d.ID, d.Name, d.AuthorID, d.AssetID, settings)
	for _, fd := range d.Fields.Entries() {
		f, ok := field.FromDescriptor(fd, settings.Depth(fd.Reliable))
		if !ok {
			continue
		}
		e.desc.Fields.put(fd)
		e.fields[fd.Name] = f
		e.byIndex[fd.Index] = f
		if int(fd.Index) >= e.nextIndex {
			e.nextIndex = int(fd.Index) + 1
		}
	}
	e.rebuildOrderLocked()
	return e
}

func (e *Element) ID() uint32       { return e.desc.ID }
func (e *Element) Name() string     { return e.desc.Name }
func (e *Element) AuthorID() uint32 { return e.desc.AuthorID }
func (e *Element) AssetID() uint32  { return e.desc.AssetID }

// Descriptor returns a copy of the element's descriptor and ledger.
func (e *Element) Descriptor() Descriptor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d := e.desc
	d.Fields = e.desc.Fields.clone()
	return d
}

// FieldCount reports the number of live fields.
func (e *Element) FieldCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.fields)
}

// Filter returns the element's visibility rule.
func (e *Element) Filter() Filter {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.filter
}

// SetFilter replaces the element's visibility rule.
func (e *Element) SetFilter(f Filter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filter = f
}

// Enabled reports whether the element takes part in visibility.
func (e *Element) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// SetEnabled toggles visibility. A disabled element is deleted from every peer
// on the next packet tick and recreated when enabled again.
func (e *Element) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

// Add registers a field under name and returns it. A second registration under
// the same name replaces the first and takes a fresh index.
func Add[T any](e *Element, name string, reliable bool, codec field.Codec[T]) (*field.Field[T], error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.nextIndex >= maxFields {
		return nil, fmt.Errorf("%w: element %d adding %q", ErrLedgerFull, e.desc.ID, name)
	}
	if old, ok := e.fields[name]; ok {
		idx := old.Descriptor().Index
		delete(e.byIndex, idx)
		e.desc.Fields.remove(idx)
	}
	desc := field.Descriptor{
		Index:    uint8(e.nextIndex),
		Name:     name,
		Reliable: reliable,
		Kind:     codec.Kind(),
	}
	e.nextIndex++
	f := field.New(desc, codec, e.settings.Depth(reliable))
	e.fields[name] = f
	e.byIndex[desc.Index] = f
	e.desc.Fields.put(desc)
	e.rebuildOrderLocked()
	return f, nil
}

// rebuildOrderLocked replaces the index-ordered field slice. It never mutates
// the previous slice so Process can iterate it without holding the lock.
func (e *Element) rebuildOrderLocked() {
	order := make([]field.Replicated, 0, len(e.desc.Fields.entries))
	for _, fd := range e.desc.Fields.entries {
		order = append(order, e.byIndex[fd.Index])
	}
	e.order = order
}

// Get looks up a field by name and value type.
func Get[T any](e *Element, name string, codec field.Codec[T]) (*field.Field[T], bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.fields[name]
	if !ok || r.Descriptor().Kind != codec.Kind() {
		return nil, false
	}
	f, ok := r.(*field.Field[T])
	return f, ok
}

// SetAction registers fn as the callback of an existing field.
func SetAction[T any](e *Element, name string, codec field.Codec[T], fn func(T)) bool {
	f, ok := Get(e, name, codec)
	if !ok {
		return false
	}
	f.SetAction(fn)
	return true
}

// Process delivers at most one buffered value per field, in index order.
// Callbacks run without the element lock held.
func (e *Element) Process() {
	e.mu.RLock()
	order := e.order
	e.mu.RUnlock()
	for _, f := range order {
		f.Process()
	}
}

// PrepareDelta encodes the pending writes of every dirty field, in index order,
// for this packet tick. The result is shared by all sessions.
func (e *Element) PrepareDelta() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delta.Reset()
	e.hasDelta = false
	e.reliable = false
	e.snapshotDone = false

	var count uint8
	e.delta.WriteUint8(0)
	for _, fd := range e.desc.Fields.entries {
		f := e.byIndex[fd.Index]
		if !f.Dirty() {
			continue
		}
		e.delta.WriteUint8(fd.Index)
		if err := f.Serialize(&e.delta); err != nil {
			return fmt.Errorf("element %d: %w", e.desc.ID, err)
		}
		count++
		if fd.Reliable {
			e.reliable = true
		}
	}
	e.delta.Bytes()[0] = count
	e.hasDelta = count > 0
	return nil
}

// HasDelta reports whether the last PrepareDelta found dirty fields.
func (e *Element) HasDelta() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hasDelta
}

// Reliable reports whether the prepared delta carries a reliable field.
func (e *Element) Reliable() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reliable
}

// WriteDelta appends [id][framed delta body] to q.
func (e *Element) WriteDelta(q *wire.Queue) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	q.WriteUint32(e.desc.ID)
	q.WriteFrame(e.delta.Bytes())
}

// WriteSnapshot appends [id][framed body] holding the last value of every
// field, for sessions that have not seen the element before.
func (e *Element) WriteSnapshot(q *wire.Queue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.snapshotDone {
		e.snapshot.Reset()
		e.snapshot.WriteUint8(uint8(e.desc.Fields.Len()))
		for _, fd := range e.desc.Fields.entries {
			e.snapshot.WriteUint8(fd.Index)
			e.byIndex[fd.Index].SerializeLast(&e.snapshot)
		}
		e.snapshotDone = true
	}
	q.WriteUint32(e.desc.ID)
	q.WriteFrame(e.snapshot.Bytes())
}

// ApplyResult summarizes one Apply call.
type ApplyResult struct {
	Applied int
	// Skipped is set when an unknown field index ended the body early.
	Skipped bool
}

// Apply decodes [count][(index, field payload)]* into the fields' receive
// buffers. An index missing from the ledger stops decoding of the remaining
// body without error, since field payloads are not self-describing.
func (e *Element) Apply(q *wire.Queue) (ApplyResult, error) {
	return e.ApplyLimited(q, 0)
}

// ApplyLimited is Apply with a cap on the values a single field may carry.
// A limit of zero disables the cap.
func (e *Element) ApplyLimited(q *wire.Queue, limit int) (ApplyResult, error) {
	var res ApplyResult
	n, err := q.ReadUint8()
	if err != nil {
		return res, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for i := 0; i < int(n); i++ {
		index, err := q.ReadUint8()
		if err != nil {
			return res, err
		}
		f, ok := e.byIndex[index]
		if !ok {
			res.Skipped = true
			return res, nil
		}
		if limit > 0 {
			values, err := q.Peek()
			if err != nil {
				return res, err
			}
			if int(values) > limit {
				return res, fmt.Errorf("%w: element %d field %d has %d, limit %d", ErrTooManyValues, e.desc.ID, index, values, limit)
			}
		}
		if err := f.Deserialize(q); err != nil {
			return res, fmt.Errorf("element %d: %w", e.desc.ID, err)
		}
		res.Applied++
	}
	return res, nil
}

// Reset clears dirty state on every field after the packet tick.
func (e *Element) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, f := range e.fields {
		f.Reset()
	}
	e.hasDelta = false
	e.reliable = false
}
