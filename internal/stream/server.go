// Package stream drives replication on a fixed tick. A Server owns the
// authoritative element table and decides, per session, which elements it
// may see; a Client mirrors what one server shows it.
package stream

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/config"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/element"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/session"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/telemetry"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/transport"
	"github.com/herocrab/HeroCrabPlugin-sub000/logging"
	"github.com/herocrab/HeroCrabPlugin-sub000/logging/lifecycle"
	"github.com/herocrab/HeroCrabPlugin-sub000/logging/network"
)

const (
	metricSessions        = "stream_sessions"
	metricElements        = "stream_elements"
	metricPacketsSent     = "stream_packets_sent_total"
	metricPacketsReceived = "stream_packets_received_total"
	metricDisconnects     = "stream_disconnects_total"
	metricViolations      = "stream_protocol_violations_total"
)

var (
	// ErrIDsExhausted reports that every uint32 id is in use.
	ErrIDsExhausted = errors.New("stream: ids exhausted")
	// ErrUnknownAuthor reports an element authored by a session that does not exist.
	ErrUnknownAuthor = errors.New("stream: unknown author session")
	// ErrPeerDisconnected is the reason recorded when the transport drops a peer.
	ErrPeerDisconnected = errors.New("stream: peer disconnected")
	// ErrKicked is the reason recorded for Kick.
	ErrKicked = errors.New("stream: kicked")
)

// ServerConfig carries the dependencies of a Server.
type ServerConfig struct {
	Settings  config.Settings
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
}

// Server is the authoritative stream. All methods must be called from the
// goroutine that calls Process; only field Set calls may come from elsewhere.
type Server struct {
	host     transport.Host
	settings config.Settings
	pub      logging.Publisher
	metrics  telemetry.Metrics
	ctx      context.Context

	elements   *element.Table
	sessions   map[uint32]*session.Server
	order      []uint32
	byPeer     map[transport.Peer]*session.Server
	sessionIDs idAllocator
	elementIDs idAllocator

	tick uint64
	now  float64

	// send[0] is the broadcast list; exclude[0] is never populated.
	send       map[uint32][]*element.Element
	exclude    map[uint32][]*element.Element
	candidates []*element.Element
	snapshot   []*element.Element

	// OnSessionCreated runs after a session has been admitted.
	OnSessionCreated func(*session.Server)
	// OnSessionDeleted runs after a session and its elements have been removed.
	OnSessionDeleted func(id uint32, reason error)
}

// NewServer constructs a stream polling host. A nil host is allowed for
// streams fed only by attached recorders.
func NewServer(host transport.Host, cfg ServerConfig) *Server {
	return &Server{
		host:     host,
		settings: cfg.Settings,
		pub:      logging.OrNop(cfg.Publisher),
		metrics:  telemetry.OrNop(cfg.Metrics),
		ctx:      context.Background(),
		elements: element.NewTable(),
		sessions: make(map[uint32]*session.Server),
		byPeer:   make(map[transport.Peer]*session.Server),
		send:     map[uint32][]*element.Element{0: nil},
		exclude:  make(map[uint32][]*element.Element),
	}
}

func (s *Server) Settings() config.Settings { return s.settings }
func (s *Server) Tick() uint64              { return s.tick }
func (s *Server) Time() float64             { return s.now }

// Process advances the stream by one simulation tick at time now (seconds).
// It drains the transport, delivers one buffered value per field and, every
// packet interval, sends each session its packet. The only error returned is
// a local encoding failure.
func (s *Server) Process(now float64) error {
	s.now = now
	s.tick++
	s.drain()

	s.snapshot = append(s.snapshot[:0], s.elements.All()...)
	for _, e := range s.snapshot {
		e.Process()
	}

	if s.tick%uint64(s.settings.PacketInterval()) != 0 {
		return nil
	}
	return s.replicate()
}

func (s *Server) drain() {
	if s.host == nil {
		return
	}
	for {
		ev, ok := s.host.Poll()
		if !ok {
			return
		}
		switch ev.Kind {
		case transport.EventConnect:
			if _, err := s.admit(ev.Peer); err != nil {
				network.HandshakeRejected(s.ctx, s.pub, logging.StreamRef("server"), network.HandshakePayload{
					Address: ev.Peer.RemoteAddr(),
					Reason:  err.Error(),
				}, nil)
			}
		case transport.EventReceive:
			sess, ok := s.byPeer[ev.Peer]
			if !ok {
				continue
			}
			s.metrics.Add(metricPacketsReceived, 1)
			if err := sess.Receive(s.now, ev.Payload); err != nil {
				s.metrics.Add(metricViolations, 1)
				network.ProtocolViolation(s.ctx, s.pub, s.tick, logging.SessionRef(sess.ID()), network.ViolationPayload{
					Error: err.Error(),
					Bytes: len(ev.Payload),
				}, nil)
				s.removeSession(sess, err)
			}
		case transport.EventDisconnect:
			if sess, ok := s.byPeer[ev.Peer]; ok {
				s.removeSession(sess, ErrPeerDisconnected)
			}
		}
	}
}

// admit assigns peer a session id and delivers it over the control channel.
func (s *Server) admit(peer transport.Peer) (*session.Server, error) {
	id, ok := s.sessionIDs.next(s.sessionInUse, len(s.sessions))
	if !ok {
		peer.Disconnect()
		return nil, ErrIDsExhausted
	}
	if err := peer.SendID(id); err != nil {
		peer.Disconnect()
		return nil, fmt.Errorf("stream: deliver id %d: %w", id, err)
	}
	sess := session.NewServer(id, peer, s.settings)
	sess.Activate()
	s.sessions[id] = sess
	s.byPeer[peer] = sess
	i, _ := slices.BinarySearch(s.order, id)
	s.order = slices.Insert(s.order, i, id)
	s.metrics.Store(metricSessions, uint64(len(s.sessions)))

	lifecycle.SessionAdmitted(s.ctx, s.pub, s.tick, logging.SessionRef(id), lifecycle.SessionAdmittedPayload{
		Address: peer.RemoteAddr(),
		Group:   uint32(sess.Group()),
	}, nil)
	if s.OnSessionCreated != nil {
		s.OnSessionCreated(sess)
	}
	return sess, nil
}

func (s *Server) sessionInUse(id uint32) bool {
	_, ok := s.sessions[id]
	return ok
}

func (s *Server) elementInUse(id uint32) bool {
	_, ok := s.elements.Get(id)
	return ok
}

// removeSession disconnects sess and deletes every element it authored.
func (s *Server) removeSession(sess *session.Server, reason error) {
	id := sess.ID()
	if _, ok := s.sessions[id]; !ok {
		return
	}
	sess.Disconnect()
	delete(s.sessions, id)
	delete(s.byPeer, sess.Peer())
	if i, found := slices.BinarySearch(s.order, id); found {
		s.order = slices.Delete(s.order, i, i+1)
	}

	var authored []uint32
	for _, e := range s.elements.All() {
		if e.AuthorID() == id {
			authored = append(authored, e.ID())
		}
	}
	for _, eid := range authored {
		s.DeleteElement(eid)
	}

	s.metrics.Add(metricDisconnects, 1)
	s.metrics.Store(metricSessions, uint64(len(s.sessions)))
	severity := logging.SeverityInfo
	if !errors.Is(reason, ErrPeerDisconnected) {
		severity = logging.SeverityWarn
	}
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	lifecycle.SessionDisconnected(s.ctx, s.pub, s.tick, logging.SessionRef(id), severity, lifecycle.SessionDisconnectedPayload{
		Reason:          msg,
		ElementsRemoved: len(authored),
	}, nil)
	if s.OnSessionDeleted != nil {
		s.OnSessionDeleted(id, reason)
	}
}

// Kick disconnects a session as if it had misbehaved.
func (s *Server) Kick(id uint32, reason string) bool {
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	s.removeSession(sess, fmt.Errorf("%w: %s", ErrKicked, reason))
	return true
}

// Session returns the live session with id.
func (s *Server) Session(id uint32) (*session.Server, bool) {
	sess, ok := s.sessions[id]
	return sess, ok
}

// SessionIDs returns the live session ids in ascending order.
func (s *Server) SessionIDs() []uint32 {
	return slices.Clone(s.order)
}

// CreateElement adds an element to the table. authorID 0 makes it
// host-authored; otherwise the session must exist and owns the element's
// input until it disconnects.
func (s *Server) CreateElement(name string, authorID, assetID uint32) (*element.Element, error) {
	if authorID != 0 {
		if _, ok := s.sessions[authorID]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownAuthor, authorID)
		}
	}
	id, ok := s.elementIDs.next(s.elementInUse, s.elements.Len())
	if !ok {
		return nil, ErrIDsExhausted
	}
	e := element.New(id, name, authorID, assetID, s.settings)
	s.elements.Add(e)
	s.metrics.Store(metricElements, uint64(s.elements.Len()))
	lifecycle.ElementCreated(s.ctx, s.pub, s.tick, logging.ElementRef(id), lifecycle.ElementPayload{
		Name:     name,
		AuthorID: authorID,
		AssetID:  assetID,
	}, nil)
	return e, nil
}

// DeleteElement removes an element. Sessions tracking it are told on the
// next packet tick.
func (s *Server) DeleteElement(id uint32) bool {
	e, ok := s.elements.Remove(id)
	if !ok {
		return false
	}
	s.metrics.Store(metricElements, uint64(s.elements.Len()))
	lifecycle.ElementDeleted(s.ctx, s.pub, s.tick, logging.ElementRef(id), lifecycle.ElementPayload{
		Name:     e.Name(),
		AuthorID: e.AuthorID(),
		AssetID:  e.AssetID(),
		Fields:   e.FieldCount(),
	}, nil)
	return true
}

// Element returns the element with id.
func (s *Server) Element(id uint32) (*element.Element, bool) {
	return s.elements.Get(id)
}

// Elements returns the elements in ascending id order.
func (s *Server) Elements() []*element.Element {
	return slices.Clone(s.elements.All())
}

// replicate runs the per-recipient visibility pass and sends every packet.
func (s *Server) replicate() error {
	for id, list := range s.send {
		if _, live := s.sessions[id]; live || id == 0 {
			s.send[id] = list[:0]
		} else {
			delete(s.send, id)
		}
	}
	for id, list := range s.exclude {
		if _, live := s.sessions[id]; live {
			s.exclude[id] = list[:0]
		} else {
			delete(s.exclude, id)
		}
	}

	all := s.elements.All()
	for _, e := range all {
		if !e.Enabled() {
			continue
		}
		f := e.Filter()
		switch {
		case !f.Unicast():
			s.send[0] = append(s.send[0], e)
			if f.Exclude != 0 {
				s.exclude[f.Exclude] = append(s.exclude[f.Exclude], e)
			}
		case f.Recipient != f.Exclude:
			s.send[f.Recipient] = append(s.send[f.Recipient], e)
		}
	}

	for _, e := range all {
		if err := e.PrepareDelta(); err != nil {
			return err
		}
	}

	// Sessions may be removed while sending; iterate a copy of the order.
	for _, id := range slices.Clone(s.order) {
		sess, ok := s.sessions[id]
		if !ok {
			continue
		}
		sent, err := sess.Send(s.candidatesFor(sess))
		if err != nil {
			s.removeSession(sess, err)
			continue
		}
		if sent {
			s.metrics.Add(metricPacketsSent, 1)
		}
	}

	for _, e := range s.elements.All() {
		e.Reset()
	}
	return nil
}

// candidatesFor merges the broadcast list with the session's unicast list,
// both in ascending id order, keeping elements whose group matches and that
// are not excluded for this session.
func (s *Server) candidatesFor(sess *session.Server) []*element.Element {
	broadcast := s.send[0]
	unicast := s.send[sess.ID()]
	excluded := s.exclude[sess.ID()]
	group := sess.Group()

	out := s.candidates[:0]
	i, j, x := 0, 0, 0
	for i < len(broadcast) || j < len(unicast) {
		var e *element.Element
		if j >= len(unicast) || (i < len(broadcast) && broadcast[i].ID() < unicast[j].ID()) {
			e = broadcast[i]
			i++
			for x < len(excluded) && excluded[x].ID() < e.ID() {
				x++
			}
			if x < len(excluded) && excluded[x] == e {
				continue
			}
		} else {
			e = unicast[j]
			j++
		}
		// a failed send earlier in this pass may have removed the element
		if live, ok := s.elements.Get(e.ID()); !ok || live != e {
			continue
		}
		if e.Filter().Matches(group) {
			out = append(out, e)
		}
	}
	s.candidates = out
	return out
}

// Diagnostics is a point-in-time view of a server stream.
type Diagnostics struct {
	Tick     uint64                `json:"tick"`
	Time     float64               `json:"time"`
	Elements int                   `json:"elements"`
	Sessions []session.Diagnostics `json:"sessions"`
}

func (s *Server) Diagnostics() Diagnostics {
	d := Diagnostics{
		Tick:     s.tick,
		Time:     s.now,
		Elements: s.elements.Len(),
		Sessions: make([]session.Diagnostics, 0, len(s.order)),
	}
	for _, id := range s.order {
		d.Sessions = append(d.Sessions, s.sessions[id].Diagnostics())
	}
	return d
}
