// Package replay captures the packets a server stream sends to a recording
// session and plays them back through a client stream.
//
// A recording is [u32 entry count][(f64 relative time, u32 length, payload)]*
// with entries in ascending time order.
package replay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/wire"
	"github.com/herocrab/HeroCrabPlugin-sub000/logging"
	"github.com/herocrab/HeroCrabPlugin-sub000/logging/network"
)

// ErrCorrupt reports recording bytes that do not decode.
var ErrCorrupt = errors.New("replay: corrupt recording")

// Entry is one recorded packet.
type Entry struct {
	Time    float64
	Payload []byte
}

// Recorder keys packets by time relative to Start. When two packets land on
// the same key the first one is kept and the later one is counted as a
// collision and reported.
type Recorder struct {
	mu         sync.Mutex
	pub        logging.Publisher
	active     bool
	start      float64
	entries    map[float64][]byte
	collisions uint64
}

func NewRecorder(pub logging.Publisher) *Recorder {
	return &Recorder{pub: logging.OrNop(pub)}
}

// Start begins a recording at stream time now, discarding any previous one.
func (r *Recorder) Start(now float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = true
	r.start = now
	r.entries = make(map[float64][]byte)
	r.collisions = 0
}

// Active reports whether Send is currently recording.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Send records payload at time. It is a no-op while inactive.
func (r *Recorder) Send(time float64, payload []byte, reliable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	key := time - r.start
	if _, taken := r.entries[key]; taken {
		r.collisions++
		network.RecorderCollision(context.Background(), r.pub, 0, logging.EntityRef{Kind: logging.EntityKindRecorder}, network.CollisionPayload{
			Time:  key,
			Bytes: len(payload),
			Total: r.collisions,
		}, nil)
		return
	}
	r.entries[key] = slices.Clone(payload)
}

// Collisions reports how many packets were dropped for reusing a timestamp.
func (r *Recorder) Collisions() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collisions
}

// Len reports the number of recorded packets.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Stop ends the recording and returns it encoded.
func (r *Recorder) Stop() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = false
	entries := make([]Entry, 0, len(r.entries))
	for t, p := range r.entries {
		entries = append(entries, Entry{Time: t, Payload: p})
	}
	r.entries = nil
	return Encode(entries)
}

// Encode sorts entries by time and writes them in recording format.
func Encode(entries []Entry) []byte {
	slices.SortFunc(entries, func(a, b Entry) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		default:
			return 0
		}
	})
	q := &wire.Queue{}
	q.WriteUint32(uint32(len(entries)))
	for _, e := range entries {
		q.WriteFloat64(e.Time)
		q.WriteFrame(e.Payload)
	}
	return q.Bytes()
}

// Decode parses a recording. Entries must be in ascending time order.
func Decode(b []byte) ([]Entry, error) {
	q := wire.NewQueue(b)
	n, err := q.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	// each entry takes at least 12 bytes
	if uint64(n)*12 > uint64(q.Len()) {
		return nil, fmt.Errorf("%w: %d entries in %d bytes", ErrCorrupt, n, q.Len())
	}
	entries := make([]Entry, 0, n)
	last := math.Inf(-1)
	for i := uint32(0); i < n; i++ {
		t, err := q.ReadFloat64()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrCorrupt, i, err)
		}
		if math.IsNaN(t) || t < last {
			return nil, fmt.Errorf("%w: entry %d at %v out of order", ErrCorrupt, i, t)
		}
		frame, err := q.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrCorrupt, i, err)
		}
		entries = append(entries, Entry{Time: t, Payload: slices.Clone(frame.Bytes())})
		last = t
	}
	if !q.Empty() {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, q.Len())
	}
	return entries, nil
}

// Duration is the time of the last entry.
func Duration(entries []Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	return entries[len(entries)-1].Time
}
