// Package session frames replication packets for a single connection.
//
// A server-to-client packet is always [Delete][Create][Modify], each segment
// being a one-byte tag and a 16-bit entry count. A client-to-server packet is
// a single [Input] segment. Any deviation is a protocol violation: the server
// disconnects the offending session and the client gives up on its server.
package session

import (
	"errors"
	"fmt"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/wire"
)

// Tag identifies a packet segment.
type Tag uint8

const (
	TagDelete Tag = iota + 1
	TagCreate
	TagModify
	TagInput
)

func (t Tag) String() string {
	switch t {
	case TagDelete:
		return "delete"
	case TagCreate:
		return "create"
	case TagModify:
		return "modify"
	case TagInput:
		return "input"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

const (
	// MinServerPacket is the size of a server packet with three empty segments.
	// Packets of this size or smaller are not transmitted.
	MinServerPacket = 9
	// MinClientPacket is the size of an empty input packet.
	MinClientPacket = 3
)

var (
	ErrEmptyPacket       = errors.New("session: empty packet")
	ErrUnexpectedSegment = errors.New("session: unexpected segment")
	ErrOversizedPacket   = errors.New("session: oversized packet")
	ErrUnauthorized      = errors.New("session: unauthorized input")
	ErrRateExceeded      = errors.New("session: packet rate exceeded")
	ErrInputFlood        = errors.New("session: input flood")
	ErrMalformed         = errors.New("session: malformed packet")
	ErrDisconnected      = errors.New("session: disconnected")
)

// State is the connection phase of a session.
type State uint8

const (
	StateConnecting State = iota
	StateActive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Counters are diagnostic only; nothing branches on them.
type Counters struct {
	Rx   uint64 `json:"rx"`
	Tx   uint64 `json:"tx"`
	Miss uint64 `json:"miss"`
	Dupe uint64 `json:"dupe"`
}

// Diagnostics is a point-in-time view of a session.
type Diagnostics struct {
	ID       uint32   `json:"id"`
	Address  string   `json:"address"`
	State    string   `json:"state"`
	Group    uint32   `json:"group"`
	Tracked  int      `json:"tracked"`
	Counters Counters `json:"counters"`
}

// checkPacket applies the checks shared by both directions.
func checkPacket(payload []byte, max int) error {
	if len(payload) == 0 {
		return ErrEmptyPacket
	}
	if max > 0 && len(payload) > max {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrOversizedPacket, len(payload), max)
	}
	return nil
}

// readSegment consumes a segment header and returns its entry count.
func readSegment(q *wire.Queue, want Tag) (int, error) {
	tag, err := q.ReadUint8()
	if err != nil {
		return 0, malformed(err)
	}
	if Tag(tag) != want {
		return 0, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedSegment, Tag(tag), want)
	}
	n, err := q.ReadUint16()
	if err != nil {
		return 0, malformed(err)
	}
	return int(n), nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %w", ErrMalformed, err)
}
