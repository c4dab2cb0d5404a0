package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/element"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/field"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/replay"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/session"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/stream"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/wire"
)

var errRecording = errors.New("app: recording already running")

// World owns the server stream for the tick goroutine and the HTTP handlers.
//
// Each admitted session gets two elements: an Avatar it authors, unicast to
// itself, which carries its input, and a Presence broadcast to everyone else
// that mirrors the avatar's position.
type World struct {
	mu       sync.Mutex
	stream   *stream.Server
	presence map[uint32]uint32

	recorder   *replay.Recorder
	recorderID uint32
	attaching  bool
}

// RecordingStatus describes the running recording, if any.
type RecordingStatus struct {
	Active     bool   `json:"active"`
	Entries    int    `json:"entries"`
	Collisions uint64 `json:"collisions"`
}

func NewWorld(s *stream.Server) *World {
	w := &World{stream: s, presence: make(map[uint32]uint32)}
	s.OnSessionCreated = w.sessionCreated
	s.OnSessionDeleted = w.sessionDeleted
	return w
}

func (w *World) sessionCreated(sess *session.Server) {
	if w.attaching {
		return
	}
	id := sess.ID()
	label := fmt.Sprintf("session-%d", id)

	avatar, err := w.stream.CreateElement("Avatar", id, 0)
	if err != nil {
		w.stream.Kick(id, err.Error())
		return
	}
	avatar.SetFilter(element.Filter{Groups: element.GroupAll, Recipient: id})
	avatarLabel, _ := element.Add(avatar, "Label", true, field.String)
	position, _ := element.Add(avatar, "Position", false, field.Vector3)
	avatarLabel.Set(label)

	presence, err := w.stream.CreateElement("Presence", 0, 0)
	if err != nil {
		w.stream.Kick(id, err.Error())
		return
	}
	presence.SetFilter(element.Filter{Groups: element.GroupAll, Exclude: id})
	presenceLabel, _ := element.Add(presence, "Label", true, field.String)
	mirrored, _ := element.Add(presence, "Position", false, field.Vector3)
	moves, _ := element.Add(presence, "Moves", true, field.Uint32)
	presenceLabel.Set(label)
	moves.Set(0)

	position.SetAction(func(v wire.Vector3) {
		mirrored.Set(v)
		field.Increment(moves, 1)
	})
	w.presence[id] = presence.ID()
}

func (w *World) sessionDeleted(id uint32, _ error) {
	if eid, ok := w.presence[id]; ok {
		w.stream.DeleteElement(eid)
		delete(w.presence, id)
	}
}

// Step advances the stream one tick.
func (w *World) Step(now float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stream.Process(now)
}

// Run steps the world at tickRate until ctx ends. Stream time is seconds
// since Run started.
func (w *World) Run(ctx context.Context, tickRate int) error {
	ticker := time.NewTicker(time.Second / time.Duration(tickRate))
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := w.Step(now.Sub(start).Seconds()); err != nil {
				return fmt.Errorf("tick: %w", err)
			}
		}
	}
}

func (w *World) Diagnostics() stream.Diagnostics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stream.Diagnostics()
}

// StartRecording attaches rec as a session in group.
func (w *World) StartRecording(rec *replay.Recorder, group element.Group) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.recorder != nil {
		return errRecording
	}
	w.attaching = true
	id, err := w.stream.AttachRecorder(rec, group)
	w.attaching = false
	if err != nil {
		return err
	}
	rec.Start(w.stream.Time())
	w.recorder, w.recorderID = rec, id
	return nil
}

// StopRecording detaches the recorder and returns the encoded recording, or
// nil when nothing was recording.
func (w *World) StopRecording() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.recorder == nil {
		return nil
	}
	w.stream.DetachRecorder(w.recorderID)
	data := w.recorder.Stop()
	w.recorder, w.recorderID = nil, 0
	return data
}

func (w *World) Recording() RecordingStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.recorder == nil {
		return RecordingStatus{}
	}
	return RecordingStatus{
		Active:     w.recorder.Active(),
		Entries:    w.recorder.Len(),
		Collisions: w.recorder.Collisions(),
	}
}
