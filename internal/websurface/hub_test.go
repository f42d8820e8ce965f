package websurface

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestClientCountReflectsRegistration(t *testing.T) {
	h := NewHub(nil, nil)
	require.Equal(t, 0, h.ClientCount())

	c := &Client{id: uuid.New(), send: make(chan []byte, clientSendCapacity)}
	h.register(c)
	require.Equal(t, 1, h.ClientCount())

	h.unregister(c)
	require.Equal(t, 0, h.ClientCount())
}

func TestBroadcastDropsOnFullClientQueueWithoutBlocking(t *testing.T) {
	h := NewHub(nil, nil)
	c := &Client{id: uuid.New(), send: make(chan []byte, 2)}
	h.register(c)

	for i := 0; i < 10; i++ {
		require.NoError(t, h.Broadcast(MsgState, map[string]int{"n": i}))
	}

	require.LessOrEqual(t, len(c.send), 2)
}

func TestBroadcastFanOutToAllClients(t *testing.T) {
	h := NewHub(nil, nil)
	a := &Client{id: uuid.New(), send: make(chan []byte, clientSendCapacity)}
	b := &Client{id: uuid.New(), send: make(chan []byte, clientSendCapacity)}
	h.register(a)
	h.register(b)

	require.NoError(t, h.Broadcast(MsgState, map[string]int{"n": 1}))

	require.Len(t, a.send, 1)
	require.Len(t, b.send, 1)
}
