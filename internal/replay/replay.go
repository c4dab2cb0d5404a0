package replay

import (
	"context"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/stream"
	"github.com/herocrab/HeroCrabPlugin-sub000/logging"
	"github.com/herocrab/HeroCrabPlugin-sub000/logging/network"
)

// Replay feeds a recording into an embedded client stream. Element callbacks
// registered on Client fire as they did for the live session.
type Replay struct {
	entries  []Entry
	next     int
	start    float64
	started  bool
	finished bool
	perTick  int
	feed     *feedHost
	client   *stream.Client
	pub      logging.Publisher
}

// New decodes data and prepares a replay. cfg configures the embedded client.
func New(data []byte, cfg stream.ClientConfig) (*Replay, error) {
	entries, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if cfg.Role == "" {
		cfg.Role = "replay"
	}
	feed := newFeedHost()
	perTick := cfg.Settings.MaxReplayEntriesPerTick
	if perTick <= 0 {
		perTick = 1
	}
	return &Replay{
		entries: entries,
		perTick: perTick,
		feed:    feed,
		client:  stream.NewClient(feed, cfg),
		pub:     logging.OrNop(cfg.Publisher),
	}, nil
}

// Client returns the embedded client stream for registering callbacks.
func (r *Replay) Client() *stream.Client {
	return r.client
}

// Start anchors relative entry times to stream time now.
func (r *Replay) Start(now float64) {
	r.start = now
	r.started = true
}

// Len reports the number of entries in the recording.
func (r *Replay) Len() int {
	return len(r.entries)
}

// Delivered reports how many entries have been fed to the client.
func (r *Replay) Delivered() int {
	return r.next
}

// Done reports whether every entry has been delivered.
func (r *Replay) Done() bool {
	return r.next == len(r.entries)
}

// Duration is the relative time of the last entry.
func (r *Replay) Duration() float64 {
	return Duration(r.entries)
}

// Process feeds the entries whose time has elapsed, at most the configured
// number per call, and ticks the embedded client.
func (r *Replay) Process(now float64) error {
	if !r.started {
		return nil
	}
	elapsed := now - r.start
	for n := 0; n < r.perTick && r.next < len(r.entries); n++ {
		e := r.entries[r.next]
		if e.Time > elapsed {
			break
		}
		r.feed.push(e.Payload)
		r.next++
	}
	if err := r.client.Process(now); err != nil {
		return err
	}
	if r.Done() && !r.finished {
		r.finished = true
		network.ReplayFinished(context.Background(), r.pub, r.client.Tick(), logging.StreamRef("replay"), network.ReplayPayload{
			Entries:  len(r.entries),
			Duration: r.Duration(),
		}, nil)
	}
	return nil
}
