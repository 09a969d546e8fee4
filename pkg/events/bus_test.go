package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvWithin(t *testing.T, sub *Subscription, d time.Duration) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return sub.Recv(ctx)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus(0, nil)
	assert.Equal(t, DefaultCapacity, bus.Capacity())
	assert.Equal(t, 0, bus.Publish("Directory 'alpha' deleted"))
}

func TestEverySubscriberReceives(t *testing.T) {
	bus := NewBus(10, nil)
	a := bus.Subscribe()
	b := bus.Subscribe()
	defer a.Close()
	defer b.Close()

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, bus.Publish("Directory 'alpha' deleted"))

	for _, sub := range []*Subscription{a, b} {
		event, err := recvWithin(t, sub, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "Directory 'alpha' deleted", event)
	}
}

func TestLateSubscriberSeesNoHistory(t *testing.T) {
	bus := NewBus(10, nil)
	bus.Publish("before")

	sub := bus.Subscribe()
	defer sub.Close()

	_, err := recvWithin(t, sub, 50*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	bus.Publish("after")
	event, err := recvWithin(t, sub, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "after", event)
}

func TestPreservesOrder(t *testing.T) {
	bus := NewBus(10, nil)
	sub := bus.Subscribe()
	defer sub.Close()

	for i := 0; i < 5; i++ {
		bus.Publish(fmt.Sprintf("e%d", i))
	}
	for i := 0; i < 5; i++ {
		event, err := recvWithin(t, sub, time.Second)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("e%d", i), event)
	}
}

func TestSlowSubscriberLagsAndResumes(t *testing.T) {
	bus := NewBus(3, nil)
	sub := bus.Subscribe()
	defer sub.Close()

	for i := 0; i < 5; i++ {
		bus.Publish(fmt.Sprintf("e%d", i))
	}
	assert.Equal(t, 3, sub.Pending())

	_, err := recvWithin(t, sub, time.Second)
	var lag *LagError
	require.True(t, errors.As(err, &lag))
	assert.Equal(t, uint64(2), lag.Missed)

	for _, want := range []string{"e2", "e3", "e4"} {
		event, err := recvWithin(t, sub, time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, event)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus(1, nil)
	sub := bus.Subscribe()
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			bus.Publish("x")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a subscriber that never reads")
	}
}

func TestRecvWakesOnPublish(t *testing.T) {
	bus := NewBus(10, nil)
	sub := bus.Subscribe()
	defer sub.Close()

	got := make(chan string, 1)
	go func() {
		event, _ := recvWithin(t, sub, 5*time.Second)
		got <- event
	}()

	time.Sleep(20 * time.Millisecond)
	bus.Publish("wake")

	select {
	case event := <-got:
		assert.Equal(t, "wake", event)
	case <-time.After(5 * time.Second):
		t.Fatal("Recv did not wake up")
	}
}

func TestSubscriptionClose(t *testing.T) {
	bus := NewBus(10, nil)
	sub := bus.Subscribe()
	bus.Publish("buffered")
	assert.Equal(t, 1, bus.SubscriberCount())

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, bus.SubscriberCount())
	assert.Equal(t, 0, bus.Publish("dropped"))

	event, err := recvWithin(t, sub, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "buffered", event)

	_, err = recvWithin(t, sub, time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBusClose(t *testing.T) {
	bus := NewBus(10, nil)
	sub := bus.Subscribe()

	done := make(chan error, 1)
	go func() {
		_, err := recvWithin(t, sub, 5*time.Second)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	bus.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Recv did not observe Close")
	}

	late := bus.Subscribe()
	_, err := recvWithin(t, late, time.Second)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, 0, bus.Publish("after close"))
}

func TestConcurrentPublishers(t *testing.T) {
	bus := NewBus(1000, nil)
	sub := bus.Subscribe()
	defer sub.Close()

	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				bus.Publish("x")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, sub.Pending())
}
