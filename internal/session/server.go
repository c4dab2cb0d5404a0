package session

import (
	"errors"
	"fmt"
	"math"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/config"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/element"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/transport"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/wire"
)

// Server is the host side of one connection. It remembers which elements the
// peer has been told about and accepts input only for those it authored.
type Server struct {
	id       uint32
	peer     transport.Peer
	settings config.Settings
	state    State
	group    element.Group
	tracked  *element.Table
	counters Counters
	rate     *rateWindow
	out      wire.Queue

	// scratch, reused across ticks
	visible map[uint32]*element.Element
	created map[uint32]struct{}
	applies map[uint32]int
	stale   []uint32
}

// NewServer constructs a session for peer under id. It starts in
// StateConnecting until Activate.
func NewServer(id uint32, peer transport.Peer, settings config.Settings) *Server {
	return &Server{
		id:       id,
		peer:     peer,
		settings: settings,
		group:    element.Group(settings.DefaultGroup),
		tracked:  element.NewTable(),
		rate:     newRateWindow(settings.MaxPacketsPerSecond()),
		visible:  make(map[uint32]*element.Element),
		created:  make(map[uint32]struct{}),
		applies:  make(map[uint32]int),
	}
}

func (s *Server) ID() uint32               { return s.id }
func (s *Server) Peer() transport.Peer     { return s.peer }
func (s *Server) State() State             { return s.state }
func (s *Server) Group() element.Group     { return s.group }
func (s *Server) Counters() Counters       { return s.counters }
func (s *Server) SetGroup(g element.Group) { s.group = g }

// Activate marks the session live once its id has been delivered.
func (s *Server) Activate() {
	if s.state == StateConnecting {
		s.state = StateActive
	}
}

// Tracks reports whether the peer currently holds a mirror of element id.
func (s *Server) Tracks(id uint32) bool {
	_, ok := s.tracked.Get(id)
	return ok
}

// TrackedCount reports how many elements the peer mirrors.
func (s *Server) TrackedCount() int {
	return s.tracked.Len()
}

// Disconnect is terminal. The peer is closed and tracked state dropped.
func (s *Server) Disconnect() {
	if s.state == StateDisconnected {
		return
	}
	s.state = StateDisconnected
	s.tracked.Clear()
	if s.peer != nil {
		s.peer.Disconnect()
	}
}

func (s *Server) Diagnostics() Diagnostics {
	d := Diagnostics{
		ID:       s.id,
		State:    s.state.String(),
		Group:    uint32(s.group),
		Tracked:  s.tracked.Len(),
		Counters: s.counters,
	}
	if s.peer != nil {
		d.Address = s.peer.RemoteAddr()
	}
	return d
}

// Send encodes the packet for this tick from the elements visible to the
// session, in ascending id order, and transmits it unless every segment is
// empty. Elements must have been prepared with PrepareDelta.
func (s *Server) Send(candidates []*element.Element) (bool, error) {
	if s.state != StateActive {
		return false, nil
	}
	clear(s.visible)
	clear(s.created)
	for _, e := range candidates {
		s.visible[e.ID()] = e
	}
	s.out.Reset()
	reliable := false

	// Delete: tracked elements that left the candidate set. An element
	// replaced under the same id counts as gone and is created again.
	s.stale = s.stale[:0]
	for _, e := range s.tracked.All() {
		if v, ok := s.visible[e.ID()]; !ok || v != e {
			s.stale = append(s.stale, e.ID())
		}
	}
	if len(s.stale) > math.MaxUint16 {
		return false, fmt.Errorf("session %d: %d deletes exceed segment capacity", s.id, len(s.stale))
	}
	s.out.WriteUint8(uint8(TagDelete))
	s.out.WriteUint16(uint16(len(s.stale)))
	for _, id := range s.stale {
		s.tracked.Remove(id)
		s.out.WriteUint32(id)
	}
	reliable = reliable || len(s.stale) > 0

	// Create: descriptors only; initial values ride in Modify.
	s.out.WriteUint8(uint8(TagCreate))
	mark := s.out.ReserveUint16()
	for _, e := range candidates {
		if _, ok := s.tracked.Get(e.ID()); ok {
			continue
		}
		if len(s.created) == math.MaxUint16 {
			break
		}
		e.Descriptor().Write(&s.out)
		s.tracked.Add(e)
		s.created[e.ID()] = struct{}{}
	}
	s.out.PatchUint16(mark, uint16(len(s.created)))
	reliable = reliable || len(s.created) > 0

	// Modify: snapshots for new mirrors, deltas for the rest.
	s.out.WriteUint8(uint8(TagModify))
	mark = s.out.ReserveUint16()
	modified := 0
	for _, e := range s.tracked.All() {
		if modified == math.MaxUint16 {
			break
		}
		if _, ok := s.created[e.ID()]; ok {
			e.WriteSnapshot(&s.out)
			modified++
			continue
		}
		if !e.HasDelta() {
			continue
		}
		e.WriteDelta(&s.out)
		reliable = reliable || e.Reliable()
		modified++
	}
	s.out.PatchUint16(mark, uint16(modified))

	if s.out.Len() <= MinServerPacket {
		return false, nil
	}
	if err := s.peer.Send(s.out.Bytes(), reliable); err != nil {
		return false, fmt.Errorf("session %d: %w", s.id, err)
	}
	s.counters.Tx++
	return true, nil
}

// Receive applies an input packet. now is stream time in seconds and drives
// the packet rate window. Any returned error means the session must be
// disconnected.
func (s *Server) Receive(now float64, payload []byte) error {
	if s.state == StateDisconnected {
		return ErrDisconnected
	}
	s.counters.Rx++
	if !s.rate.allow(now) {
		return fmt.Errorf("%w: %d packets in the last second, limit %d", ErrRateExceeded, s.rate.count(), s.settings.MaxPacketsPerSecond())
	}
	if err := checkPacket(payload, s.settings.MaxPacketSize); err != nil {
		return err
	}

	q := wire.NewQueue(payload)
	n, err := readSegment(q, TagInput)
	if err != nil {
		return err
	}
	limit := s.settings.MaxInputApplies()
	clear(s.applies)
	for i := 0; i < n; i++ {
		id, err := q.ReadUint32()
		if err != nil {
			return malformed(err)
		}
		body, err := q.ReadFrame()
		if err != nil {
			return malformed(err)
		}
		e, ok := s.tracked.Get(id)
		if !ok {
			return fmt.Errorf("%w: session %d sent input for unseen element %d", ErrUnauthorized, s.id, id)
		}
		if e.AuthorID() != s.id {
			return fmt.Errorf("%w: session %d sent input for element %d authored by %d", ErrUnauthorized, s.id, id, e.AuthorID())
		}
		s.applies[id]++
		if s.applies[id] > limit {
			return fmt.Errorf("%w: element %d applied %d times, limit %d", ErrInputFlood, id, s.applies[id], limit)
		}
		res, err := e.ApplyLimited(body, limit)
		switch {
		case errors.Is(err, element.ErrTooManyValues):
			return fmt.Errorf("%w: %w", ErrInputFlood, err)
		case err != nil:
			return malformed(err)
		}
		if res.Skipped {
			s.counters.Miss++
		}
	}
	if !q.Empty() {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformed, q.Len())
	}
	return nil
}
