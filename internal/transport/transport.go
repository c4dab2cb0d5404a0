// Package transport defines the datagram boundary the replication streams
// poll. Implementations deliver connection, id assignment, payload and
// disconnect notifications as events; the streams never block on them.
package transport

import "errors"

// ErrClosed is returned by Send on a peer whose connection has gone away.
var ErrClosed = errors.New("transport: connection closed")

type EventKind uint8

const (
	EventConnect EventKind = iota + 1
	EventReceive
	EventReceiveID
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventReceive:
		return "receive"
	case EventReceiveID:
		return "receive_id"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is one notification drained from a Host.
type Event struct {
	Kind    EventKind
	Peer    Peer
	Payload []byte
	ID      uint32
}

// Peer is the remote end of one connection.
type Peer interface {
	// Send queues payload on the reliable or unreliable channel.
	Send(payload []byte, reliable bool) error
	// SendID delivers the assigned session id over the control channel.
	SendID(id uint32) error
	// Disconnect closes the connection. The host still reports EventDisconnect.
	Disconnect()
	RemoteAddr() string
}

// Host is a polled source of transport events.
type Host interface {
	// Poll returns the next pending event without blocking.
	Poll() (Event, bool)
	Close() error
}
