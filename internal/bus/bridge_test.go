package bus

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

func TestBridge_PreservesFIFO(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	bridge := NewBridge("test", 8, func(_ context.Context, d Delivery) error {
		mu.Lock()
		seen = append(seen, d.EventID)
		mu.Unlock()
		return nil
	})
	bridge.Start(context.Background())

	var want []string
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("ev-%02d", i)
		want = append(want, id)
		require.NoError(t, bridge.Enqueue(context.Background(), Delivery{EventID: id}))
	}

	bridge.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, seen)
}

func TestBridge_FullQueueBlocksProducer(t *testing.T) {
	release := make(chan struct{})
	bridge := NewBridge("test", 1, func(_ context.Context, _ Delivery) error {
		<-release
		return nil
	})
	bridge.Start(context.Background())
	defer bridge.Stop()
	defer close(release)

	// first is picked up by the dispatcher, second fills the buffer
	require.NoError(t, bridge.Enqueue(context.Background(), Delivery{EventID: "a"}))
	require.NoError(t, bridge.Enqueue(context.Background(), Delivery{EventID: "b"}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := bridge.Enqueue(ctx, Delivery{EventID: "c"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBridge_StopDrainsBufferedEvents(t *testing.T) {
	var mu sync.Mutex
	var count int

	bridge := NewBridge("test", 16, func(_ context.Context, _ Delivery) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	bridge.Start(context.Background())

	for i := 0; i < 10; i++ {
		require.NoError(t, bridge.Enqueue(context.Background(), Delivery{EventID: fmt.Sprintf("%d", i)}))
	}

	bridge.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, count)
}

func TestBridge_EnqueueAfterStop(t *testing.T) {
	var mu sync.Mutex
	var handled []string
	bridge := NewBridge("test", 4, func(_ context.Context, d Delivery) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, d.EventID)
		return nil
	})
	bridge.Start(context.Background())
	bridge.Stop()

	// the buffer has free slots, so without the closed check the send
	// would succeed and the event would sit in a queue nobody drains
	for i := 0; i < 32; i++ {
		err := bridge.Enqueue(context.Background(), Delivery{EventID: "late"})
		assert.ErrorIs(t, err, ErrBusClosed)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, handled)
}

func TestBridge_HandlerErrorDoesNotStopDispatch(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	bridge := NewBridge("test", 8, func(_ context.Context, d Delivery) error {
		mu.Lock()
		seen = append(seen, d.EventID)
		mu.Unlock()
		if d.EventID == "bad" {
			return errors.New("boom")
		}
		return nil
	})
	bridge.Start(context.Background())

	require.NoError(t, bridge.Enqueue(context.Background(), Delivery{EventID: "bad"}))
	require.NoError(t, bridge.Enqueue(context.Background(), Delivery{EventID: "good"}))

	bridge.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"bad", "good"}, seen)
}
