package stream

import (
	"context"
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

// ClientConfig carries the dependencies of a Client.
type ClientConfig struct {
	Settings  config.Settings
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	// Role names the stream in log events. Defaults to "client".
	Role string
}

// Client mirrors the elements one server shows it and sends back input for
// the elements it authored.
type Client struct {
	host     transport.Host
	settings config.Settings
	pub      logging.Publisher
	metrics  telemetry.Metrics
	ctx      context.Context
	role     string

	session  *session.Client
	elements *element.Table
	authored *element.Table
	snapshot []*element.Element

	tick uint64
	now  float64

	OnConnected      func(id uint32)
	OnDisconnected   func(reason error)
	OnElementCreated func(*element.Element)
	OnElementDeleted func(*element.Element)
}

func NewClient(host transport.Host, cfg ClientConfig) *Client {
	role := cfg.Role
	if role == "" {
		role = "client"
	}
	return &Client{
		host:     host,
		settings: cfg.Settings,
		pub:      logging.OrNop(cfg.Publisher),
		metrics:  telemetry.OrNop(cfg.Metrics),
		ctx:      context.Background(),
		role:     role,
		elements: element.NewTable(),
		authored: element.NewTable(),
	}
}

// ID returns the session id assigned by the server, or 0 before it arrives.
func (c *Client) ID() uint32 {
	if c.session == nil {
		return 0
	}
	return c.session.ID()
}

// State returns the session state. A client that has not yet seen its peer
// is connecting.
func (c *Client) State() session.State {
	if c.session == nil {
		return session.StateConnecting
	}
	return c.session.State()
}

func (c *Client) Tick() uint64 { return c.tick }

// Process advances the client by one tick at time now. A non-nil error means
// the server sent something this client cannot trust; the client is then
// disconnected for good.
func (c *Client) Process(now float64) error {
	c.now = now
	c.tick++
	if err := c.drain(); err != nil {
		return err
	}

	c.snapshot = append(c.snapshot[:0], c.elements.All()...)
	for _, e := range c.snapshot {
		e.Process()
	}

	if c.State() != session.StateActive || c.tick%uint64(c.settings.PacketInterval()) != 0 {
		return nil
	}
	authored := c.authored.All()
	for _, e := range authored {
		if err := e.PrepareDelta(); err != nil {
			c.fail(err)
			return err
		}
	}
	sent, err := c.session.Send(authored)
	for _, e := range c.authored.All() {
		e.Reset()
	}
	if err != nil {
		c.teardown(err)
		return err
	}
	if sent {
		c.metrics.Add(metricPacketsSent, 1)
	}
	return nil
}

func (c *Client) drain() error {
	if c.host == nil {
		return nil
	}
	for {
		ev, ok := c.host.Poll()
		if !ok {
			return nil
		}
		switch ev.Kind {
		case transport.EventConnect:
			if c.session == nil {
				c.session = session.NewClient(ev.Peer, c.settings)
			}
		case transport.EventReceiveID:
			if c.session == nil || c.session.State() != session.StateConnecting {
				continue
			}
			c.session.Activate(ev.ID)
			for _, e := range c.elements.All() {
				c.adopt(e)
			}
			if c.OnConnected != nil {
				c.OnConnected(ev.ID)
			}
		case transport.EventReceive:
			if c.session == nil || c.session.State() == session.StateDisconnected {
				continue
			}
			c.metrics.Add(metricPacketsReceived, 1)
			if err := c.session.Receive(ev.Payload, mirror{c}); err != nil {
				err = fmt.Errorf("%s: %w", c.role, err)
				c.fail(err)
				return err
			}
		case transport.EventDisconnect:
			if c.session != nil && c.session.State() != session.StateDisconnected {
				c.teardown(ErrPeerDisconnected)
			}
		}
	}
}

// adopt registers e for input when this client authored it.
func (c *Client) adopt(e *element.Element) {
	id := c.ID()
	if id != 0 && e.AuthorID() == id {
		c.authored.Add(e)
	}
}

func (c *Client) fail(err error) {
	c.metrics.Add(metricViolations, 1)
	network.ProtocolViolation(c.ctx, c.pub, c.tick, logging.StreamRef(c.role), network.ViolationPayload{Error: err.Error()}, nil)
	c.teardown(err)
}

// teardown disconnects and drops every mirror, firing deletion callbacks.
func (c *Client) teardown(reason error) {
	if c.session != nil {
		c.session.Disconnect()
	}
	for _, e := range slices.Clone(c.elements.All()) {
		c.remove(e.ID())
	}
	if c.OnDisconnected != nil {
		c.OnDisconnected(reason)
	}
}

// Disconnect closes the connection to the server.
func (c *Client) Disconnect() {
	if c.State() == session.StateDisconnected {
		return
	}
	if c.session == nil {
		c.session = session.NewClient(nil, c.settings)
	}
	c.teardown(ErrPeerDisconnected)
}

func (c *Client) materialize(d element.Descriptor) bool {
	if _, ok := c.elements.Get(d.ID); ok {
		return false
	}
	e := element.FromDescriptor(d, c.settings)
	c.elements.Add(e)
	c.adopt(e)
	lifecycle.ElementCreated(c.ctx, c.pub, c.tick, logging.ElementRef(d.ID), lifecycle.ElementPayload{
		Name:     d.Name,
		AuthorID: d.AuthorID,
		AssetID:  d.AssetID,
		Fields:   d.Fields.Len(),
	}, map[string]any{"stream": c.role})
	if c.OnElementCreated != nil {
		c.OnElementCreated(e)
	}
	return true
}

func (c *Client) remove(id uint32) bool {
	e, ok := c.elements.Remove(id)
	if !ok {
		return false
	}
	c.authored.Remove(id)
	lifecycle.ElementDeleted(c.ctx, c.pub, c.tick, logging.ElementRef(id), lifecycle.ElementPayload{
		Name:     e.Name(),
		AuthorID: e.AuthorID(),
		AssetID:  e.AssetID(),
		Fields:   e.FieldCount(),
	}, map[string]any{"stream": c.role})
	if c.OnElementDeleted != nil {
		c.OnElementDeleted(e)
	}
	return true
}

// Element returns the mirror with id.
func (c *Client) Element(id uint32) (*element.Element, bool) {
	return c.elements.Get(id)
}

// Elements returns the mirrors in ascending id order.
func (c *Client) Elements() []*element.Element {
	return slices.Clone(c.elements.All())
}

// Authored reports whether element id is sent back as input.
func (c *Client) Authored(id uint32) bool {
	_, ok := c.authored.Get(id)
	return ok
}

func (c *Client) Diagnostics() session.Diagnostics {
	if c.session == nil {
		return session.Diagnostics{State: session.StateConnecting.String()}
	}
	d := c.session.Diagnostics()
	d.Tracked = c.elements.Len()
	return d
}

// mirror adapts a Client to session.Mirror.
type mirror struct{ c *Client }

func (m mirror) Materialize(d element.Descriptor) bool     { return m.c.materialize(d) }
func (m mirror) Remove(id uint32) bool                     { return m.c.remove(id) }
func (m mirror) Lookup(id uint32) (*element.Element, bool) { return m.c.elements.Get(id) }
