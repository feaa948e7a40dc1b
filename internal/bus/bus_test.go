// ABOUTME: Tests for the in-process message bus
// ABOUTME: Covers fan-out, unsubscribe, dropped messages, copying and close

package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/pillarclient/internal/message"
)

type collector struct {
	mu   sync.Mutex
	msgs []*message.Message
}

func (c *collector) HandleMessage(msg *message.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func testMessage(to string) *message.Message {
	msg := message.New(message.KindIdentifyRequest, message.OperationGetStatus, "conv-1")
	msg.To = to
	return msg
}

func TestBus_DeliversToEverySubscriber(t *testing.T) {
	b := New(nil)
	defer b.Close()

	a, c, other := &collector{}, &collector{}, &collector{}
	b.Subscribe("collection", a)
	b.Subscribe("collection", c)
	b.Subscribe("elsewhere", other)

	require.NoError(t, b.Send(t.Context(), testMessage("collection")))

	require.Eventually(t, func() bool { return a.count() == 1 && c.count() == 1 }, time.Second, time.Millisecond)
	assert.Zero(t, other.count())
}

func TestBus_ListenersGetCopies(t *testing.T) {
	b := New(nil)
	defer b.Close()

	got := make(chan *message.Message, 1)
	b.Subscribe("q", ListenerFunc(func(m *message.Message) { got <- m }))

	msg := testMessage("q")
	require.NoError(t, msg.SetBody(map[string]string{"k": "v"}))
	require.NoError(t, b.Send(t.Context(), msg))

	delivered := <-got
	assert.NotSame(t, msg, delivered)
	assert.Equal(t, msg.ID, delivered.ID)
	assert.JSONEq(t, `{"k":"v"}`, string(delivered.Body))
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New(nil)
	defer b.Close()

	c := &collector{}
	unsubscribe := b.Subscribe("q", c)
	assert.Equal(t, 1, b.Destinations())
	unsubscribe()
	unsubscribe()
	assert.Zero(t, b.Destinations())

	require.NoError(t, b.Send(t.Context(), testMessage("q")))
	b.Close()
	assert.Zero(t, c.count())
}

func TestBus_DropsWithoutListeners(t *testing.T) {
	b := New(nil)
	defer b.Close()
	assert.NoError(t, b.Send(t.Context(), testMessage("nobody")))
}

func TestBus_SendErrors(t *testing.T) {
	b := New(nil)

	assert.ErrorIs(t, b.Send(t.Context(), testMessage("")), ErrNoDestination)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.ErrorIs(t, b.Send(ctx, testMessage("q")), context.Canceled)

	b.Close()
	assert.ErrorIs(t, b.Send(t.Context(), testMessage("q")), ErrClosed)
}

func TestBus_CloseWaitsForDeliveries(t *testing.T) {
	b := New(nil)

	var delivered atomic.Int32
	b.Subscribe("q", ListenerFunc(func(*message.Message) {
		time.Sleep(20 * time.Millisecond)
		delivered.Add(1)
	}))
	for range 5 {
		require.NoError(t, b.Send(t.Context(), testMessage("q")))
	}
	b.Close()
	assert.Equal(t, int32(5), delivered.Load())
}

func TestBus_ConcurrentSendAndSubscribe(t *testing.T) {
	b := New(nil)
	defer b.Close()

	c := &collector{}
	b.Subscribe("q", c)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Send(context.Background(), testMessage("q")))
		}()
		go func() {
			defer wg.Done()
			unsubscribe := b.Subscribe("other", &collector{})
			unsubscribe()
		}()
	}
	wg.Wait()
	require.Eventually(t, func() bool { return c.count() == 20 }, time.Second, time.Millisecond)
}
