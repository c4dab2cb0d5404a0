package element

import "math"

// Group is a bitmask of visibility categories.
type Group uint32

const (
	GroupLobby Group = 1 << iota
	GroupGame
	GroupTeam1
	GroupTeam2
	GroupTeam3
	GroupTeam4

	GroupNone Group = 0
	GroupAll  Group = math.MaxUint32
)

// Filter decides which sessions receive an element.
//
// A non-zero Recipient makes the element unicast to that session and Exclude is
// then ignored. Otherwise the element is broadcast to every session whose group
// intersects Groups, except the session named by Exclude.
type Filter struct {
	Groups    Group
	Recipient uint32
	Exclude   uint32
}

// DefaultFilter broadcasts to every group.
func DefaultFilter() Filter {
	return Filter{Groups: GroupAll}
}

// Unicast reports whether the filter targets a single recipient.
func (f Filter) Unicast() bool {
	return f.Recipient != 0
}

// Matches reports whether a session in group passes the group mask.
func (f Filter) Matches(group Group) bool {
	return f.Groups&group != 0
}
