package session

import (
	"fmt"
	"math"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/config"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/element"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/transport"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/wire"
)

// Mirror is the element table a client session decodes into.
type Mirror interface {
	// Materialize creates a local element from d. It returns false if the id
	// is already present.
	Materialize(d element.Descriptor) bool
	// Remove deletes a local element. It returns false if the id is absent.
	Remove(id uint32) bool
	Lookup(id uint32) (*element.Element, bool)
}

// Client is the peer side of a connection. It trusts its server: any framing
// error is returned to the caller as fatal.
type Client struct {
	id       uint32
	peer     transport.Peer
	settings config.Settings
	state    State
	counters Counters
	out      wire.Queue
}

func NewClient(peer transport.Peer, settings config.Settings) *Client {
	return &Client{peer: peer, settings: settings}
}

func (c *Client) ID() uint32           { return c.id }
func (c *Client) Peer() transport.Peer { return c.peer }
func (c *Client) State() State         { return c.state }
func (c *Client) Counters() Counters   { return c.counters }

// Activate records the id assigned by the server. Input is only sent once the
// session is active.
func (c *Client) Activate(id uint32) {
	if c.state == StateDisconnected {
		return
	}
	c.id = id
	c.state = StateActive
}

// Disconnect is terminal.
func (c *Client) Disconnect() {
	if c.state == StateDisconnected {
		return
	}
	c.state = StateDisconnected
	if c.peer != nil {
		c.peer.Disconnect()
	}
}

func (c *Client) Diagnostics() Diagnostics {
	d := Diagnostics{ID: c.id, State: c.state.String(), Counters: c.counters}
	if c.peer != nil {
		d.Address = c.peer.RemoteAddr()
	}
	return d
}

// Receive decodes a server packet into m. Packets are accepted while
// connecting because the id and the first packets travel on different
// channels.
func (c *Client) Receive(payload []byte, m Mirror) error {
	if c.state == StateDisconnected {
		return ErrDisconnected
	}
	c.counters.Rx++
	if err := checkPacket(payload, c.settings.MaxPacketSize); err != nil {
		return err
	}
	q := wire.NewQueue(payload)

	n, err := readSegment(q, TagDelete)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		id, err := q.ReadUint32()
		if err != nil {
			return malformed(err)
		}
		if !m.Remove(id) {
			c.counters.Dupe++
		}
	}

	if n, err = readSegment(q, TagCreate); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		d, err := element.ReadDescriptor(q)
		if err != nil {
			return malformed(err)
		}
		if !m.Materialize(d) {
			c.counters.Dupe++
		}
	}

	if n, err = readSegment(q, TagModify); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		id, err := q.ReadUint32()
		if err != nil {
			return malformed(err)
		}
		body, err := q.ReadFrame()
		if err != nil {
			return malformed(err)
		}
		e, ok := m.Lookup(id)
		if !ok {
			c.counters.Miss++
			continue
		}
		res, err := e.Apply(body)
		if err != nil {
			return malformed(err)
		}
		if res.Skipped {
			c.counters.Miss++
		}
	}

	if !q.Empty() {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformed, q.Len())
	}
	return nil
}

// Send writes an Input segment for the authored elements that changed since
// the last packet tick. Elements must have been prepared with PrepareDelta.
func (c *Client) Send(authored []*element.Element) (bool, error) {
	if c.state != StateActive {
		return false, nil
	}
	c.out.Reset()
	c.out.WriteUint8(uint8(TagInput))
	mark := c.out.ReserveUint16()
	count := 0
	reliable := false
	for _, e := range authored {
		if count == math.MaxUint16 {
			break
		}
		if e.AuthorID() != c.id || !e.HasDelta() {
			continue
		}
		e.WriteDelta(&c.out)
		reliable = reliable || e.Reliable()
		count++
	}
	c.out.PatchUint16(mark, uint16(count))
	if c.out.Len() <= MinClientPacket {
		return false, nil
	}
	if err := c.peer.Send(c.out.Bytes(), reliable); err != nil {
		return false, fmt.Errorf("client session: %w", err)
	}
	c.counters.Tx++
	return true, nil
}
