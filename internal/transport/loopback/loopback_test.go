package loopback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/transport"
)

func mustPoll(t *testing.T, h *Host) transport.Event {
	t.Helper()
	ev, ok := h.Poll()
	require.True(t, ok, "expected an event")
	return ev
}

func TestDialExchangesInOrder(t *testing.T) {
	network := NewNetwork()
	server, err := network.Listen("srv")
	require.NoError(t, err)
	client, err := network.Dial("srv")
	require.NoError(t, err)

	sc := mustPoll(t, server)
	require.Equal(t, transport.EventConnect, sc.Kind)
	cc := mustPoll(t, client)
	require.Equal(t, transport.EventConnect, cc.Kind)
	assert.Equal(t, "srv", cc.Peer.RemoteAddr())
	assert.Equal(t, client.Addr(), sc.Peer.RemoteAddr())

	payload := []byte{1, 2, 3}
	require.NoError(t, sc.Peer.SendID(9))
	require.NoError(t, sc.Peer.Send(payload, true))
	payload[0] = 0xff

	ev := mustPoll(t, client)
	assert.Equal(t, transport.EventReceiveID, ev.Kind)
	assert.Equal(t, uint32(9), ev.ID)
	ev = mustPoll(t, client)
	assert.Equal(t, transport.EventReceive, ev.Kind)
	assert.Equal(t, []byte{1, 2, 3}, ev.Payload, "payload is copied on send")
	assert.Equal(t, 0, client.Pending())
}

func TestDisconnectNotifiesBothSidesOnce(t *testing.T) {
	network := NewNetwork()
	server, _ := network.Listen("srv")
	client, _ := network.Dial("srv")
	sc := mustPoll(t, server)
	mustPoll(t, client)

	sc.Peer.Disconnect()
	sc.Peer.Disconnect()
	assert.Equal(t, transport.EventDisconnect, mustPoll(t, server).Kind)
	assert.Equal(t, transport.EventDisconnect, mustPoll(t, client).Kind)
	assert.Equal(t, 0, server.Pending())
	assert.Equal(t, 0, client.Pending())

	require.ErrorIs(t, sc.Peer.Send([]byte{1}, false), transport.ErrClosed)
	require.ErrorIs(t, sc.Peer.SendID(1), transport.ErrClosed)
}

func TestListenerLifecycle(t *testing.T) {
	network := NewNetwork()
	server, err := network.Listen("srv")
	require.NoError(t, err)
	_, err = network.Listen("srv")
	require.Error(t, err)
	_, err = network.Dial("nowhere")
	require.Error(t, err)

	client, _ := network.Dial("srv")
	mustPoll(t, client)
	require.NoError(t, server.Close())
	assert.Equal(t, transport.EventDisconnect, mustPoll(t, client).Kind)
	_, ok := server.Poll()
	assert.False(t, ok)

	_, err = network.Dial("srv")
	require.Error(t, err, "closed listener releases its address")
	_, err = network.Listen("srv")
	require.NoError(t, err)
}
