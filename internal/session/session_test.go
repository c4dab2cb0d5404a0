package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/config"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/element"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/field"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/wire"
)

type sent struct {
	payload  []byte
	reliable bool
}

type fakePeer struct {
	sent         []sent
	ids          []uint32
	disconnected bool
}

func (p *fakePeer) Send(payload []byte, reliable bool) error {
	p.sent = append(p.sent, sent{payload: append([]byte(nil), payload...), reliable: reliable})
	return nil
}

func (p *fakePeer) SendID(id uint32) error {
	p.ids = append(p.ids, id)
	return nil
}

func (p *fakePeer) Disconnect()        { p.disconnected = true }
func (p *fakePeer) RemoteAddr() string { return "fake:1" }

func (p *fakePeer) last(t *testing.T) sent {
	t.Helper()
	require.NotEmpty(t, p.sent)
	return p.sent[len(p.sent)-1]
}

type mapMirror struct {
	settings config.Settings
	elements map[uint32]*element.Element
	created  []uint32
	removed  []uint32
}

func newMirror() *mapMirror {
	return &mapMirror{settings: config.DefaultSettings(), elements: make(map[uint32]*element.Element)}
}

func (m *mapMirror) Materialize(d element.Descriptor) bool {
	if _, ok := m.elements[d.ID]; ok {
		return false
	}
	m.elements[d.ID] = element.FromDescriptor(d, m.settings)
	m.created = append(m.created, d.ID)
	return true
}

func (m *mapMirror) Remove(id uint32) bool {
	if _, ok := m.elements[id]; !ok {
		return false
	}
	delete(m.elements, id)
	m.removed = append(m.removed, id)
	return true
}

func (m *mapMirror) Lookup(id uint32) (*element.Element, bool) {
	e, ok := m.elements[id]
	return e, ok
}

func newScored(t *testing.T, id, author uint32) (*element.Element, *field.Field[int32]) {
	t.Helper()
	e := element.New(id, "Scored", author, 1, config.DefaultSettings())
	f, err := element.Add(e, "Score", false, field.Int32)
	require.NoError(t, err)
	return e, f
}

func activeServer(id uint32) (*Server, *fakePeer) {
	peer := &fakePeer{}
	s := NewServer(id, peer, config.DefaultSettings())
	s.Activate()
	return s, peer
}

func tick(t *testing.T, s *Server, candidates ...*element.Element) bool {
	t.Helper()
	for _, e := range candidates {
		require.NoError(t, e.PrepareDelta())
	}
	ok, err := s.Send(candidates)
	require.NoError(t, err)
	for _, e := range candidates {
		e.Reset()
	}
	return ok
}

func TestServerSendCreatesThenModifies(t *testing.T) {
	s, peer := activeServer(1)
	e, score := newScored(t, 5, 0)
	score.Set(10)
	score.Set(20)

	require.True(t, tick(t, s, e))
	first := peer.last(t)
	assert.True(t, first.reliable, "create packets are reliable")
	assert.True(t, s.Tracks(5))

	m := newMirror()
	c := NewClient(&fakePeer{}, config.DefaultSettings())
	require.NoError(t, c.Receive(first.payload, m))
	assert.Equal(t, []uint32{5}, m.created)

	mirror, _ := m.Lookup(5)
	got, ok := element.Get(mirror, "Score", field.Int32)
	require.True(t, ok)
	last, _ := got.Last()
	assert.Equal(t, int32(20), last, "snapshot carries the latest value")

	assert.False(t, tick(t, s, e), "nothing changed, nothing sent")

	score.Set(30)
	require.True(t, tick(t, s, e))
	second := peer.last(t)
	assert.False(t, second.reliable)
	require.NoError(t, c.Receive(second.payload, m))

	var seen []int32
	got.SetAction(func(v int32) { seen = append(seen, v) })
	mirror.Process()
	mirror.Process()
	mirror.Process()
	assert.Equal(t, []int32{20, 30}, seen)
	assert.Equal(t, Counters{Rx: 2}, c.Counters())
	assert.Equal(t, uint64(2), s.Counters().Tx)
}

func TestServerSendDeletesElementsLeavingCandidates(t *testing.T) {
	s, peer := activeServer(1)
	a, _ := newScored(t, 1, 0)
	b, _ := newScored(t, 2, 0)
	m := newMirror()
	c := NewClient(&fakePeer{}, config.DefaultSettings())

	require.True(t, tick(t, s, a, b))
	require.NoError(t, c.Receive(peer.last(t).payload, m))
	require.True(t, tick(t, s, b))
	require.NoError(t, c.Receive(peer.last(t).payload, m))

	assert.Equal(t, []uint32{1}, m.removed)
	assert.False(t, s.Tracks(1))
	assert.Equal(t, 1, s.TrackedCount())
}

func TestServerSendRecreatesReplacedElement(t *testing.T) {
	s, peer := activeServer(1)
	old, _ := newScored(t, 3, 0)
	require.True(t, tick(t, s, old))

	replacement, _ := newScored(t, 3, 0)
	require.True(t, tick(t, s, replacement))

	q := wire.NewQueue(peer.last(t).payload)
	n, err := readSegment(q, TagDelete)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	id, _ := q.ReadUint32()
	assert.Equal(t, uint32(3), id)
	n, err = readSegment(q, TagCreate)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestServerSendSuppressedWhileConnecting(t *testing.T) {
	peer := &fakePeer{}
	s := NewServer(1, peer, config.DefaultSettings())
	e, _ := newScored(t, 1, 0)
	assert.False(t, tick(t, s, e))
	assert.Empty(t, peer.sent)
}

func inputPacket(entries ...func(q *wire.Queue)) []byte {
	q := &wire.Queue{}
	q.WriteUint8(uint8(TagInput))
	q.WriteUint16(uint16(len(entries)))
	for _, write := range entries {
		write(q)
	}
	return q.Bytes()
}

func scoreInput(id uint32, values ...int32) func(q *wire.Queue) {
	return func(q *wire.Queue) {
		q.WriteUint32(id)
		mark := q.BeginFrame()
		q.WriteUint8(1)
		q.WriteUint8(0)
		q.WriteUint8(uint8(len(values)))
		for _, v := range values {
			q.WriteInt32(v)
		}
		q.EndFrame(mark)
	}
}

func TestServerReceiveAppliesAuthorizedInput(t *testing.T) {
	s, _ := activeServer(7)
	e, score := newScored(t, 40, 7)
	tick(t, s, e)

	var seen []int32
	score.SetAction(func(v int32) { seen = append(seen, v) })
	require.NoError(t, s.Receive(0, inputPacket(scoreInput(40, 3, 4))))
	e.Process()
	e.Process()
	assert.Equal(t, []int32{3, 4}, seen)
}

func TestServerReceiveRejectsForeignAuthor(t *testing.T) {
	s, _ := activeServer(9)
	e, _ := newScored(t, 40, 7)
	tick(t, s, e)

	err := s.Receive(0, inputPacket(scoreInput(40, 1)))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestServerReceiveRejectsUnseenElement(t *testing.T) {
	s, _ := activeServer(7)
	err := s.Receive(0, inputPacket(scoreInput(40, 1)))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestServerReceiveFlood(t *testing.T) {
	s, _ := activeServer(7)
	e, _ := newScored(t, 40, 7)
	tick(t, s, e)

	limit := config.DefaultSettings().MaxInputApplies()
	entries := make([]func(*wire.Queue), 0, limit+1)
	for i := 0; i <= limit; i++ {
		entries = append(entries, scoreInput(40, int32(i)))
	}
	err := s.Receive(0, inputPacket(entries...))
	require.ErrorIs(t, err, ErrInputFlood)

	s2, _ := activeServer(7)
	tick(t, s2, e)
	deep := make([]int32, limit+1)
	err = s2.Receive(0, inputPacket(scoreInput(40, deep...)))
	require.ErrorIs(t, err, ErrInputFlood)
}

func TestServerReceiveRateWindow(t *testing.T) {
	s, _ := activeServer(7)
	limit := config.DefaultSettings().MaxPacketsPerSecond()
	empty := inputPacket()
	for i := 0; i < limit; i++ {
		require.NoError(t, s.Receive(0.5, empty), "packet %d", i)
	}
	require.ErrorIs(t, s.Receive(0.9, empty), ErrRateExceeded)

	s2, _ := activeServer(8)
	for i := 0; i < limit; i++ {
		require.NoError(t, s2.Receive(0.5, empty))
	}
	require.NoError(t, s2.Receive(1.5, empty), "window slid past the burst")
}

func TestServerReceiveFramingErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    error
	}{
		{name: "empty", payload: nil, want: ErrEmptyPacket},
		{name: "wrong tag", payload: []byte{byte(TagModify), 0, 0}, want: ErrUnexpectedSegment},
		{name: "truncated count", payload: []byte{byte(TagInput), 1}, want: ErrMalformed},
		{name: "truncated entry", payload: []byte{byte(TagInput), 1, 0, 40}, want: ErrMalformed},
		{name: "trailing bytes", payload: []byte{byte(TagInput), 0, 0, 0xff}, want: ErrMalformed},
		{name: "oversized", payload: make([]byte, config.DefaultSettings().MaxPacketSize+1), want: ErrOversizedPacket},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := activeServer(1)
			require.ErrorIs(t, s.Receive(0, tc.payload), tc.want)
		})
	}
}

func TestServerDisconnectIsTerminal(t *testing.T) {
	s, peer := activeServer(1)
	s.Disconnect()
	s.Disconnect()
	assert.True(t, peer.disconnected)
	assert.Equal(t, StateDisconnected, s.State())
	require.ErrorIs(t, s.Receive(0, inputPacket()), ErrDisconnected)
	s.Activate()
	assert.Equal(t, StateDisconnected, s.State())
}

func serverPacket(deletes []uint32, creates []element.Descriptor, modifies map[uint32][]byte) []byte {
	q := &wire.Queue{}
	q.WriteUint8(uint8(TagDelete))
	q.WriteUint16(uint16(len(deletes)))
	for _, id := range deletes {
		q.WriteUint32(id)
	}
	q.WriteUint8(uint8(TagCreate))
	q.WriteUint16(uint16(len(creates)))
	for _, d := range creates {
		d.Write(q)
	}
	q.WriteUint8(uint8(TagModify))
	q.WriteUint16(uint16(len(modifies)))
	for id, body := range modifies {
		q.WriteUint32(id)
		q.WriteFrame(body)
	}
	return q.Bytes()
}

func TestClientReceiveCountsDupesAndMisses(t *testing.T) {
	e, _ := newScored(t, 4, 0)
	d := e.Descriptor()
	m := newMirror()
	c := NewClient(&fakePeer{}, config.DefaultSettings())

	require.NoError(t, c.Receive(serverPacket(nil, []element.Descriptor{d}, nil), m))
	require.NoError(t, c.Receive(serverPacket([]uint32{99}, []element.Descriptor{d}, map[uint32][]byte{77: {1, 0, 1, 1, 0, 0, 0}}), m))

	assert.Equal(t, Counters{Rx: 2, Dupe: 2, Miss: 1}, c.Counters())
}

func TestClientReceiveUnknownFieldIndexIsMiss(t *testing.T) {
	e, _ := newScored(t, 4, 0)
	m := newMirror()
	c := NewClient(&fakePeer{}, config.DefaultSettings())
	body := []byte{1, 200, 1, 0xaa}
	require.NoError(t, c.Receive(serverPacket(nil, []element.Descriptor{e.Descriptor()}, map[uint32][]byte{4: body}), m))
	assert.Equal(t, uint64(1), c.Counters().Miss)
}

func TestClientReceiveSegmentOrder(t *testing.T) {
	m := newMirror()
	c := NewClient(&fakePeer{}, config.DefaultSettings())
	err := c.Receive([]byte{byte(TagCreate), 0, 0, byte(TagDelete), 0, 0, byte(TagModify), 0, 0}, m)
	require.ErrorIs(t, err, ErrUnexpectedSegment)

	err = c.Receive([]byte{byte(TagDelete), 0, 0, byte(TagCreate), 0, 0}, m)
	require.ErrorIs(t, err, ErrMalformed)

	require.ErrorIs(t, c.Receive(nil, m), ErrEmptyPacket)
}

func TestClientSendOnlyAuthoredDirtyElements(t *testing.T) {
	peer := &fakePeer{}
	c := NewClient(peer, config.DefaultSettings())
	mine, myScore := newScored(t, 1, 5)
	theirs, theirScore := newScored(t, 2, 6)
	idle, _ := newScored(t, 3, 5)

	send := func() bool {
		for _, e := range []*element.Element{mine, theirs, idle} {
			require.NoError(t, e.PrepareDelta())
		}
		ok, err := c.Send([]*element.Element{mine, theirs, idle})
		require.NoError(t, err)
		for _, e := range []*element.Element{mine, theirs, idle} {
			e.Reset()
		}
		return ok
	}

	myScore.Set(1)
	assert.False(t, send(), "no input before the id arrives")

	c.Activate(5)
	myScore.Set(2)
	theirScore.Set(3)
	require.True(t, send())

	q := wire.NewQueue(peer.last(t).payload)
	n, err := readSegment(q, TagInput)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	id, _ := q.ReadUint32()
	assert.Equal(t, uint32(1), id)

	assert.False(t, send(), "empty input is suppressed")
}
