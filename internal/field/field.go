package field

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/wire"
)

// ErrDeltaOverflow reports more than 255 writes to a field between two resets.
var ErrDeltaOverflow = errors.New("field: pending delta depth exceeds 255")

// Descriptor identifies a field within its element. It is immutable once the
// field is registered.
type Descriptor struct {
	Index    uint8
	Name     string
	Reliable bool
	Kind     Kind
}

// Write encodes the descriptor as [index][name][reliable][kind].
func (d Descriptor) Write(q *wire.Queue) {
	q.WriteUint8(d.Index)
	q.WriteString(d.Name)
	q.WriteBool(d.Reliable)
	q.WriteUint8(uint8(d.Kind))
}

// ReadDescriptor decodes a descriptor written by Descriptor.Write. Unknown
// kinds are returned as-is; callers decide whether to materialize them.
func ReadDescriptor(q *wire.Queue) (Descriptor, error) {
	var d Descriptor
	var err error
	if d.Index, err = q.ReadUint8(); err != nil {
		return Descriptor{}, err
	}
	if d.Name, err = q.ReadString(); err != nil {
		return Descriptor{}, err
	}
	if d.Reliable, err = q.ReadBool(); err != nil {
		return Descriptor{}, err
	}
	kind, err := q.ReadUint8()
	if err != nil {
		return Descriptor{}, err
	}
	d.Kind = Kind(kind)
	return d, nil
}

// Replicated is the type-erased view an element keeps of each field.
type Replicated interface {
	Descriptor() Descriptor
	Dirty() bool
	Process()
	Serialize(q *wire.Queue) error
	SerializeLast(q *wire.Queue)
	Deserialize(q *wire.Queue) error
	Reset()
}

// Field is one replicated property. Set may be called from any goroutine;
// Process, Serialize, Deserialize and Reset belong to the single tick consumer.
type Field[T any] struct {
	mu      sync.Mutex
	desc    Descriptor
	codec   Codec[T]
	ring    []T
	head    int
	count   int
	pending []T
	// sent is how many pending values the last Serialize wrote
	sent    int
	last    T
	hasLast bool
	dirty   bool
	action  func(T)
	dropped uint64
}

// New constructs a field whose receive buffer holds depth values.
func New[T any](desc Descriptor, codec Codec[T], depth int) *Field[T] {
	if depth < 1 {
		depth = 1
	}
	desc.Kind = codec.kind
	return &Field[T]{
		desc:  desc,
		codec: codec,
		ring:  make([]T, depth),
	}
}

// Descriptor returns the field's ledger entry.
func (f *Field[T]) Descriptor() Descriptor {
	return f.desc
}

// SetAction registers the callback invoked by Process.
func (f *Field[T]) SetAction(fn func(T)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.action = fn
}

// Set records a new value: it is buffered for the local callback, queued for
// the next delta and kept as the last value for late joiners.
func (f *Field[T]) Set(v T) {
	if f.codec.clone != nil {
		v = f.codec.clone(v)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setLocked(v)
}

func (f *Field[T]) setLocked(v T) {
	f.pushLocked(v)
	f.pending = append(f.pending, v)
	f.last = v
	f.hasLast = true
	f.dirty = true
}

// update applies fn to the last value and sets the result, holding the lock
// across the read and the write.
func (f *Field[T]) update(fn func(T) T) T {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := fn(f.last)
	if f.codec.clone != nil {
		v = f.codec.clone(v)
	}
	f.setLocked(v)
	return v
}

// Last returns the most recently set or received value.
func (f *Field[T]) Last() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.hasLast
}

// Dirty reports whether the field has writes since the last Reset.
func (f *Field[T]) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

// Buffered reports how many values wait for Process.
func (f *Field[T]) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// Dropped reports how many buffered values were overwritten before Process
// could deliver them.
func (f *Field[T]) Dropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Process delivers at most one buffered value to the callback.
func (f *Field[T]) Process() {
	f.mu.Lock()
	if f.count == 0 {
		f.mu.Unlock()
		return
	}
	v := f.ring[f.head]
	var zero T
	f.ring[f.head] = zero
	f.head = (f.head + 1) % len(f.ring)
	f.count--
	action := f.action
	f.mu.Unlock()

	if action != nil {
		action(v)
	}
}

// Serialize writes [count][value]* for every pending write. Reset later drops
// exactly the values written here.
func (f *Field[T]) Serialize(q *wire.Queue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) > math.MaxUint8 {
		return fmt.Errorf("%w: field %q has %d", ErrDeltaOverflow, f.desc.Name, len(f.pending))
	}
	q.WriteUint8(uint8(len(f.pending)))
	for _, v := range f.pending {
		f.codec.write(q, v)
	}
	f.sent = len(f.pending)
	return nil
}

// SerializeLast writes [0] or [1][last value].
func (f *Field[T]) SerializeLast(q *wire.Queue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasLast {
		q.WriteUint8(0)
		return
	}
	q.WriteUint8(1)
	f.codec.write(q, f.last)
}

// Deserialize reads [count][value]* and buffers each value for Process.
func (f *Field[T]) Deserialize(q *wire.Queue) error {
	n, err := q.ReadUint8()
	if err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		v, err := f.codec.read(q)
		if err != nil {
			return fmt.Errorf("field %q value %d: %w", f.desc.Name, i, err)
		}
		f.mu.Lock()
		f.pushLocked(v)
		f.last = v
		f.hasLast = true
		f.mu.Unlock()
	}
	return nil
}

// Reset drops the pending writes the last Serialize sent. Writes that arrived
// after it stay pending and keep the field dirty for the next delta.
func (f *Field[T]) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(f.pending, f.pending[f.sent:])
	var zero T
	for i := n; i < len(f.pending); i++ {
		f.pending[i] = zero
	}
	f.pending = f.pending[:n]
	f.sent = 0
	f.dirty = n > 0
}

func (f *Field[T]) pushLocked(v T) {
	if f.count == len(f.ring) {
		f.head = (f.head + 1) % len(f.ring)
		f.count--
		f.dropped++
	}
	tail := (f.head + f.count) % len(f.ring)
	f.ring[tail] = v
	f.count++
}
