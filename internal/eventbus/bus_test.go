package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFiltersByType(t *testing.T) {
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	states, unsubStates := b.Subscribe(4, TypeSensorStateChange)
	defer unsubStates()

	b.Publish(Event{Type: TypeEntryCreated, Data: EntryChange{EntryID: "a"}})
	b.Publish(Event{Type: TypeSensorStateChange, Data: StateChange{EntryID: "a", IsOn: true}})

	require.Len(t, all, 2)
	require.Len(t, states, 1)
	ev := <-states
	assert.False(t, ev.Time.IsZero())
	sc, ok := ev.Data.(StateChange)
	require.True(t, ok)
	assert.True(t, sc.IsOn)
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	for i := 0; i < 10; i++ {
		b.Publish(Event{Type: TypeConfigReloaded})
	}
	assert.Len(t, ch, 1)

	unsub()
	unsub()
	b.Publish(Event{Type: TypeConfigReloaded})
	<-ch // buffered before unsubscribe
	_, open := <-ch
	assert.False(t, open)
}
