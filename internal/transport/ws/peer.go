// Package ws carries replication packets over gorilla websockets. Each binary
// message starts with a frame byte: 0x00 delivers a session id, 0x01 a packet.
// Websocket delivery is ordered and reliable, so the reliable flag on Send
// does not change how a packet travels.
package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/transport"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/wire"
)

const (
	frameID   byte = 0x00
	frameData byte = 0x01
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultSendBuffer   = 64
)

// ErrSlowPeer is returned by Send when a peer's outbound buffer is full. The
// peer is disconnected.
var ErrSlowPeer = errors.New("ws: peer send buffer full")

// eventQueue is the mutex-guarded event list a host hands to Poll.
type eventQueue struct {
	mu     sync.Mutex
	events []transport.Event
	closed bool
}

func (q *eventQueue) push(ev transport.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.events = append(q.events, ev)
}

func (q *eventQueue) pop() (transport.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return transport.Event{}, false
	}
	ev := q.events[0]
	q.events[0] = transport.Event{}
	q.events = q.events[1:]
	return ev, true
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.events = nil
}

// Peer is one websocket connection. Writes go through a buffered channel
// drained by a writer goroutine so the tick never waits on the network.
type Peer struct {
	conn         *websocket.Conn
	token        uuid.UUID
	addr         string
	send         chan []byte
	done         chan struct{}
	once         sync.Once
	writeTimeout time.Duration
}

func newPeer(conn *websocket.Conn, addr string, writeTimeout time.Duration, buffer int) *Peer {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Peer{
		conn:         conn,
		token:        uuid.New(),
		addr:         addr,
		send:         make(chan []byte, buffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

// Token identifies the connection in logs.
func (p *Peer) Token() string {
	return p.token.String()
}

// RemoteAddr returns the remote address tagged with the connection token.
func (p *Peer) RemoteAddr() string {
	return p.addr + "#" + p.token.String()
}

// Send implements transport.Peer.
func (p *Peer) Send(payload []byte, reliable bool) error {
	frame := make([]byte, 1+len(payload))
	frame[0] = frameData
	copy(frame[1:], payload)
	return p.enqueue(frame)
}

// SendID implements transport.Peer.
func (p *Peer) SendID(id uint32) error {
	q := wire.Queue{}
	q.WriteUint8(frameID)
	q.WriteUint32(id)
	return p.enqueue(q.Bytes())
}

func (p *Peer) enqueue(frame []byte) error {
	select {
	case <-p.done:
		return transport.ErrClosed
	default:
	}
	select {
	case p.send <- frame:
		return nil
	default:
		p.Disconnect()
		return ErrSlowPeer
	}
}

// Disconnect implements transport.Peer. The connection is closed by the
// writer goroutine after it stops.
func (p *Peer) Disconnect() {
	p.once.Do(func() { close(p.done) })
}

func (p *Peer) writePump() {
	defer p.conn.Close()
	for {
		select {
		case frame := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
			if err := p.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				p.Disconnect()
				return
			}
		case <-p.done:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
	}
}

// readPump turns inbound frames into events until the connection fails, then
// reports exactly one EventDisconnect. Only a dialing client accepts id frames.
func (p *Peer) readPump(events *eventQueue, acceptID bool) {
	defer func() {
		p.Disconnect()
		events.push(transport.Event{Kind: transport.EventDisconnect, Peer: p})
	}()
	for {
		kind, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage || len(data) == 0 {
			return
		}
		switch {
		case data[0] == frameData:
			events.push(transport.Event{Kind: transport.EventReceive, Peer: p, Payload: data[1:]})
		case data[0] == frameID && acceptID:
			id, err := wire.NewQueue(data[1:]).ReadUint32()
			if err != nil {
				return
			}
			events.push(transport.Event{Kind: transport.EventReceiveID, Peer: p, ID: id})
		default:
			return
		}
	}
}
