package scoped_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrew-w-ross/vscode-test-pool/internal/scoped"
)

func TestBroadcaster_ForwardsToCurrentSubscribersOnly(t *testing.T) {
	b := scoped.NewBroadcaster[string]()

	var early []string
	b.On(func(v string) { early = append(early, v) })

	b.Publish("a")

	var late []string
	b.On(func(v string) { late = append(late, v) })

	b.Publish("b")

	assert.Equal(t, []string{"a", "b"}, early)
	assert.Equal(t, []string{"b"}, late) // registered after "a" arrived
}

func TestBroadcaster_PublishDeliversInArrivalOrder(t *testing.T) {
	b := scoped.NewBroadcaster[int]()
	var order []string

	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		name := name
		b.On(func(int) { order = append(order, name) })
	}

	b.Publish(1)

	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, order)
}

func TestBroadcaster_OffStopsDelivery(t *testing.T) {
	b := scoped.NewBroadcaster[int]()
	var got []int
	sub := b.On(func(v int) { got = append(got, v) })

	b.Publish(1)
	b.Off(sub)
	b.Publish(2)

	assert.Equal(t, []int{1}, got)
}

func TestIterator_BoundedRingDropsOldest(t *testing.T) {
	b := scoped.NewBroadcaster[int]()
	it := scoped.NewIterator[int](b, 2)
	defer it.Close()

	b.Publish(1)
	b.Publish(2)
	b.Publish(3) // ring cap 2: drops 1

	v, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	v, ok = it.Next()
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestIterator_CloseUnblocksNext(t *testing.T) {
	b := scoped.NewBroadcaster[int]()
	it := scoped.NewIterator[int](b, 0)

	done := make(chan bool, 1)
	go func() {
		_, ok := it.Next()
		done <- ok
	}()

	it.Close()
	assert.False(t, <-done)
}
