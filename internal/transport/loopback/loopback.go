// Package loopback is an in-process transport. Every send is delivered in
// order to the opposite host's event queue, which makes it deterministic
// for tests and offline tooling.
package loopback

import (
	"fmt"
	"sync"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/transport"
)

// Network connects listening hosts with dialing hosts by address.
type Network struct {
	mu        sync.Mutex
	listeners map[string]*Host
	nextPort  int
}

func NewNetwork() *Network {
	return &Network{listeners: make(map[string]*Host)}
}

// Listen registers a host that accepts dials on addr.
func (n *Network) Listen(addr string) (*Host, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.listeners[addr]; ok {
		return nil, fmt.Errorf("loopback: address %q in use", addr)
	}
	h := newHost(addr)
	h.release = func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.listeners[addr] == h {
			delete(n.listeners, addr)
		}
	}
	n.listeners[addr] = h
	return h, nil
}

// Dial connects a new client host to the listener at addr. Both hosts report
// EventConnect on their next poll.
func (n *Network) Dial(addr string) (*Host, error) {
	n.mu.Lock()
	server, ok := n.listeners[addr]
	n.nextPort++
	local := fmt.Sprintf("loopback:%d", n.nextPort)
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("loopback: no listener at %q", addr)
	}

	client := newHost(local)
	l := &link{}
	cp := &Peer{host: client, link: l, addr: addr}
	sp := &Peer{host: server, link: l, addr: local}
	cp.remote, sp.remote = sp, cp

	if !server.attach(sp) {
		return nil, fmt.Errorf("loopback: listener %q closed", addr)
	}
	client.attach(cp)
	server.push(transport.Event{Kind: transport.EventConnect, Peer: sp})
	client.push(transport.Event{Kind: transport.EventConnect, Peer: cp})
	return client, nil
}

// Host is one side of the loopback network.
type Host struct {
	addr    string
	mu      sync.Mutex
	events  []transport.Event
	peers   map[*Peer]struct{}
	closed  bool
	release func()
}

func newHost(addr string) *Host {
	return &Host{addr: addr, peers: make(map[*Peer]struct{})}
}

// Addr returns the address the host was created with.
func (h *Host) Addr() string {
	return h.addr
}

func (h *Host) attach(p *Peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.peers[p] = struct{}{}
	return true
}

func (h *Host) detach(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, p)
}

func (h *Host) push(ev transport.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.events = append(h.events, ev)
}

// Poll implements transport.Host.
func (h *Host) Poll() (transport.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) == 0 {
		return transport.Event{}, false
	}
	ev := h.events[0]
	h.events[0] = transport.Event{}
	h.events = h.events[1:]
	return ev, true
}

// Pending reports the number of undrained events.
func (h *Host) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

// Close disconnects every peer and stops accepting events.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	peers := make([]*Peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.Unlock()

	for _, p := range peers {
		p.Disconnect()
	}

	h.mu.Lock()
	h.closed = true
	h.events = nil
	h.mu.Unlock()
	if h.release != nil {
		h.release()
	}
	return nil
}

type link struct {
	mu     sync.Mutex
	closed bool
}

// Peer is one endpoint of a loopback connection.
type Peer struct {
	host   *Host
	remote *Peer
	link   *link
	addr   string
}

func (p *Peer) open() bool {
	p.link.mu.Lock()
	defer p.link.mu.Unlock()
	return !p.link.closed
}

// Send implements transport.Peer. The payload is copied.
func (p *Peer) Send(payload []byte, reliable bool) error {
	if !p.open() {
		return transport.ErrClosed
	}
	b := make([]byte, len(payload))
	copy(b, payload)
	p.remote.host.push(transport.Event{Kind: transport.EventReceive, Peer: p.remote, Payload: b})
	return nil
}

// SendID implements transport.Peer.
func (p *Peer) SendID(id uint32) error {
	if !p.open() {
		return transport.ErrClosed
	}
	p.remote.host.push(transport.Event{Kind: transport.EventReceiveID, Peer: p.remote, ID: id})
	return nil
}

// Disconnect closes the link once and notifies both hosts.
func (p *Peer) Disconnect() {
	p.link.mu.Lock()
	if p.link.closed {
		p.link.mu.Unlock()
		return
	}
	p.link.closed = true
	p.link.mu.Unlock()

	for _, end := range []*Peer{p, p.remote} {
		end.host.detach(end)
		end.host.push(transport.Event{Kind: transport.EventDisconnect, Peer: end})
	}
}

// RemoteAddr implements transport.Peer.
func (p *Peer) RemoteAddr() string {
	return p.addr
}

var (
	_ transport.Host = (*Host)(nil)
	_ transport.Peer = (*Peer)(nil)
)
