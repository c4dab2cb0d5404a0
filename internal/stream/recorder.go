package stream

import (
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/element"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/transport"
)

// Recorder receives the packets of a recording session, stamped with the
// stream time they were sent at. payload is only valid during the call.
type Recorder interface {
	Send(time float64, payload []byte, reliable bool)
}

// recorderPeer stands in for a transport peer so a recorder can be admitted
// as an ordinary session.
type recorderPeer struct {
	stream *Server
	rec    Recorder
	closed bool
}

func (p *recorderPeer) Send(payload []byte, reliable bool) error {
	if p.closed {
		return transport.ErrClosed
	}
	p.rec.Send(p.stream.now, payload, reliable)
	return nil
}

func (p *recorderPeer) SendID(uint32) error { return nil }
func (p *recorderPeer) Disconnect()         { p.closed = true }
func (p *recorderPeer) RemoteAddr() string  { return "recorder" }

// AttachRecorder admits a session whose packets go to rec and returns its id.
// The recording sees whatever a live session in group would see.
func (s *Server) AttachRecorder(rec Recorder, group element.Group) (uint32, error) {
	sess, err := s.admit(&recorderPeer{stream: s, rec: rec})
	if err != nil {
		return 0, err
	}
	sess.SetGroup(group)
	return sess.ID(), nil
}

// DetachRecorder removes a recording session.
func (s *Server) DetachRecorder(id uint32) bool {
	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	if _, isRecorder := sess.Peer().(*recorderPeer); !isRecorder {
		return false
	}
	s.removeSession(sess, ErrPeerDisconnected)
	return true
}
