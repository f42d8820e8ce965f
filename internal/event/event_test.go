package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishDrain(t *testing.T) {
	b := NewBus(4)
	b.Publish(Event{Kind: ShaderCompileError, Message: "syntax error"})
	b.Publish(Event{Kind: ShaderCompileOK})

	events := b.Drain()
	require.Len(t, events, 2)
	require.Equal(t, ShaderCompileError, events[0].Kind)

	require.Empty(t, b.Drain(), "drain empties the bus")
}

func TestPublishDropsOldestWhenFull(t *testing.T) {
	b := NewBus(2)
	b.Publish(Event{Kind: ShaderCompileError, Message: "first"})
	b.Publish(Event{Kind: ShaderCompileError, Message: "second"})
	b.Publish(Event{Kind: ShaderCompileError, Message: "third"})

	events := b.Drain()
	require.Len(t, events, 2)
	require.Equal(t, "second", events[0].Message)
	require.Equal(t, "third", events[1].Message)
}

func TestPublishFromManyGoroutines(t *testing.T) {
	b := NewBus(256)
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 16; j++ {
				b.Publish(Event{Kind: ParamClamped})
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	require.LessOrEqual(t, len(b.Drain()), 256)
}
