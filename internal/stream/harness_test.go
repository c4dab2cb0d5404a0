package stream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/config"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/transport"
	"github.com/herocrab/HeroCrabPlugin-sub000/internal/transport/loopback"
)

const step = 1.0 / 60

type harness struct {
	t       *testing.T
	net     *loopback.Network
	server  *Server
	clients []*Client
	now     float64
	deleted map[uint32]error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	net := loopback.NewNetwork()
	host, err := net.Listen("server")
	require.NoError(t, err)
	h := &harness{
		t:       t,
		net:     net,
		server:  NewServer(host, ServerConfig{Settings: config.DefaultSettings()}),
		deleted: make(map[uint32]error),
	}
	h.server.OnSessionDeleted = func(id uint32, reason error) { h.deleted[id] = reason }
	return h
}

func (h *harness) dial() *Client {
	h.t.Helper()
	host, err := h.net.Dial("server")
	require.NoError(h.t, err)
	c := NewClient(host, ClientConfig{Settings: config.DefaultSettings()})
	h.clients = append(h.clients, c)
	return c
}

// raw dials without a stream and returns the client-side peer.
func (h *harness) raw() (*loopback.Host, transport.Peer) {
	h.t.Helper()
	host, err := h.net.Dial("server")
	require.NoError(h.t, err)
	ev, ok := host.Poll()
	require.True(h.t, ok)
	require.Equal(h.t, transport.EventConnect, ev.Kind)
	return host, ev.Peer
}

// run advances the server and every client by n ticks.
func (h *harness) run(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		h.now += step
		require.NoError(h.t, h.server.Process(h.now))
		for _, c := range h.clients {
			require.NoError(h.t, c.Process(h.now))
		}
	}
}

// packet advances past one full packet interval.
func (h *harness) packet() {
	h.run(config.DefaultSettings().PacketInterval())
}
