package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/config"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/element"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/field"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/replay"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/stream"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/transport/loopback"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/wire"
)

type worldHarness struct {
	t       *testing.T
	net     *loopback.Network
	world   *World
	server  *stream.Server
	clients []*stream.Client
	now     float64
}

func newWorldHarness(t *testing.T) *worldHarness {
	t.Helper()
	net := loopback.NewNetwork()
	host, err := net.Listen("crab")
	require.NoError(t, err)
	server := stream.NewServer(host, stream.ServerConfig{Settings: config.DefaultSettings()})
	return &worldHarness{t: t, net: net, world: NewWorld(server), server: server}
}

func (h *worldHarness) dial() *stream.Client {
	h.t.Helper()
	host, err := h.net.Dial("crab")
	require.NoError(h.t, err)
	c := stream.NewClient(host, stream.ClientConfig{Settings: config.DefaultSettings()})
	h.clients = append(h.clients, c)
	return c
}

func (h *worldHarness) run(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		h.now += 1.0 / 60
		require.NoError(h.t, h.world.Step(h.now))
		for _, c := range h.clients {
			require.NoError(h.t, c.Process(h.now))
		}
	}
}

func named(c *stream.Client, name string) []*element.Element {
	var out []*element.Element
	for _, e := range c.Elements() {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

func TestWorldGivesEachSessionAvatarAndPresence(t *testing.T) {
	h := newWorldHarness(t)
	a := h.dial()
	b := h.dial()
	h.run(6)

	require.Len(t, h.server.Elements(), 4)

	avatars := named(a, "Avatar")
	require.Len(t, avatars, 1)
	assert.Equal(t, a.ID(), avatars[0].AuthorID())
	assert.True(t, a.Authored(avatars[0].ID()))
	label, ok := element.Get(avatars[0], "Label", field.String)
	require.True(t, ok)
	last, _ := label.Last()
	assert.Equal(t, "session-1", last)

	// a sees b's presence but not its own
	presences := named(a, "Presence")
	require.Len(t, presences, 1)
	plabel, ok := element.Get(presences[0], "Label", field.String)
	require.True(t, ok)
	last, _ = plabel.Last()
	assert.Equal(t, "session-2", last)
	assert.Len(t, named(b, "Avatar"), 1)
	assert.Len(t, named(b, "Presence"), 1)
}

func TestWorldMirrorsAvatarInputToPresence(t *testing.T) {
	h := newWorldHarness(t)
	a := h.dial()
	b := h.dial()
	h.run(6)

	position, ok := element.Get(named(a, "Avatar")[0], "Position", field.Vector3)
	require.True(t, ok)
	target := wire.Vector3{X: 1, Y: 2, Z: 3}
	position.Set(target)
	h.run(9)

	presence := named(b, "Presence")[0]
	mirrored, ok := element.Get(presence, "Position", field.Vector3)
	require.True(t, ok)
	got, ok := mirrored.Last()
	require.True(t, ok)
	assert.Equal(t, target, got)

	moves, ok := element.Get(presence, "Moves", field.Uint32)
	require.True(t, ok)
	count, _ := moves.Last()
	assert.Equal(t, uint32(1), count)
}

func TestWorldRemovesElementsOfDepartedSession(t *testing.T) {
	h := newWorldHarness(t)
	a := h.dial()
	b := h.dial()
	h.run(6)
	require.Len(t, named(b, "Presence"), 1)

	a.Disconnect()
	h.clients = []*stream.Client{b}
	h.run(6)

	assert.Len(t, h.server.Elements(), 2)
	assert.Empty(t, named(b, "Presence"))
	assert.Len(t, named(b, "Avatar"), 1)
}

func TestWorldRecording(t *testing.T) {
	h := newWorldHarness(t)
	require.NoError(t, h.world.StartRecording(replay.NewRecorder(nil), element.GroupAll))
	require.ErrorIs(t, h.world.StartRecording(replay.NewRecorder(nil), element.GroupAll), errRecording)

	h.dial()
	h.dial()
	h.run(9)

	status := h.world.Recording()
	assert.True(t, status.Active)
	assert.Equal(t, 1, status.Entries, "only the creation packet carries anything")
	assert.Len(t, h.server.Elements(), 4, "the recorder gets no avatar")

	data := h.world.StopRecording()
	entries, err := replay.Decode(data)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.InDelta(t, 3.0/60, entries[0].Time, 1e-9)
	assert.Nil(t, h.world.StopRecording())
	assert.Equal(t, RecordingStatus{}, h.world.Recording())
	assert.Len(t, h.server.SessionIDs(), 2)
}
