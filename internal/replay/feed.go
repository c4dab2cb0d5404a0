package replay

import "github.com/herocrab/HeroCrabPlugin-sub000/internal/transport"

// feedHost presents recorded payloads to a client stream as if they came
// from a server. It never assigns an id, so the client stays a spectator
// and never sends input.
type feedHost struct {
	peer    *feedPeer
	pending []transport.Event
}

func newFeedHost() *feedHost {
	h := &feedHost{peer: &feedPeer{}}
	h.pending = append(h.pending, transport.Event{Kind: transport.EventConnect, Peer: h.peer})
	return h
}

func (h *feedHost) push(payload []byte) {
	h.pending = append(h.pending, transport.Event{Kind: transport.EventReceive, Peer: h.peer, Payload: payload})
}

func (h *feedHost) Poll() (transport.Event, bool) {
	if len(h.pending) == 0 {
		return transport.Event{}, false
	}
	ev := h.pending[0]
	h.pending[0] = transport.Event{}
	h.pending = h.pending[1:]
	return ev, true
}

func (h *feedHost) Close() error {
	h.pending = nil
	return nil
}

type feedPeer struct {
	closed bool
}

func (p *feedPeer) Send([]byte, bool) error {
	if p.closed {
		return transport.ErrClosed
	}
	return nil
}

func (p *feedPeer) SendID(uint32) error { return nil }
func (p *feedPeer) Disconnect()         { p.closed = true }
func (p *feedPeer) RemoteAddr() string  { return "replay" }
