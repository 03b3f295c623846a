package eventbus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type execEvent struct {
	SnapshotID string
}

func TestPublish_DispatchesToMatchingHandler(t *testing.T) {
	bus := NewEventPublisher(logrus.New())

	var got []string
	bus.Subscribe(func(ev execEvent) {
		got = append(got, ev.SnapshotID)
	})

	bus.Publish(execEvent{SnapshotID: "snap-1"})
	require.Equal(t, []string{"snap-1"}, got)
}

func TestPublish_SkipsNonMatchingHandler(t *testing.T) {
	bus := NewEventPublisher(logrus.New())

	called := false
	bus.Subscribe(func(s string) { called = true })

	bus.Publish(execEvent{SnapshotID: "snap-1"})
	require.False(t, called)
}

func TestUnsubscribe_RemovesHandler(t *testing.T) {
	bus := NewEventPublisher(logrus.New())

	handler := func(ev execEvent) {}
	bus.Subscribe(handler)
	require.Equal(t, 1, bus.SubscribersCount())

	bus.Unsubscribe(handler)
	require.Equal(t, 0, bus.SubscribersCount())
}

func TestUnsubscribe_KeepsOtherHandlers(t *testing.T) {
	bus := NewEventPublisher(logrus.New())

	var got []string
	kept := func(ev execEvent) { got = append(got, ev.SnapshotID) }
	removed := func(ev execEvent) { got = append(got, "removed:"+ev.SnapshotID) }
	bus.Subscribe(kept)
	bus.Subscribe(removed)

	require.NotPanics(t, func() { bus.Unsubscribe(removed) })
	require.Equal(t, 1, bus.SubscribersCount())

	bus.Publish(execEvent{SnapshotID: "snap-2"})
	require.Equal(t, []string{"snap-2"}, got)
}

func TestPublish_RecoversFromHandlerPanic(t *testing.T) {
	bus := NewEventPublisher(logrus.New())
	bus.Subscribe(func(ev execEvent) { panic("boom") })

	require.NotPanics(t, func() {
		bus.Publish(execEvent{SnapshotID: "snap-1"})
	})
}
