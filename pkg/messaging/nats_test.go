package messaging_test

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/remitter/pkg/messaging"
)

// connect skips the test unless a NATS server is reachable via NATS_URL
func connect(t *testing.T) *messaging.Client {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set, skipping messaging integration test")
	}

	client, err := messaging.NewClient(messaging.Config{
		URL:           url,
		Name:          "messaging-test",
		ReconnectWait: 100 * time.Millisecond,
		MaxReconnects: 3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestPublishSubscribe(t *testing.T) {
	client := connect(t)
	ctx := context.Background()

	t.Run("should deliver published events to subscribers", func(t *testing.T) {
		received := make(chan *messaging.Event, 1)
		err := client.Subscribe("test.cycle.advanced", func(msg *nats.Msg) {
			var ev messaging.Event
			if jsonErr := json.Unmarshal(msg.Data, &ev); jsonErr == nil {
				received <- &ev
			}
		})
		require.NoError(t, err)

		event, err := messaging.NewEvent(messaging.SubjectCycleAdvanced, 1, messaging.CycleEvent{
			Cycle:        0,
			TotalPayroll: "0",
			TotalPaid:    "0",
			Increment:    1,
		})
		require.NoError(t, err)
		require.NoError(t, client.Publish(ctx, "test.cycle.advanced", event))

		select {
		case got := <-received:
			assert.Equal(t, event.ID, got.ID)
			payload, err := messaging.ParseEventData[messaging.CycleEvent](got)
			require.NoError(t, err)
			assert.Equal(t, uint64(1), payload.Increment)
		case <-time.After(2 * time.Second):
			t.Fatal("event not delivered")
		}
	})

	t.Run("should reject duplicate subscription", func(t *testing.T) {
		require.NoError(t, client.Subscribe("test.dup", func(msg *nats.Msg) {}))
		assert.Error(t, client.Subscribe("test.dup", func(msg *nats.Msg) {}))
	})

	t.Run("should stop delivery after unsubscribe", func(t *testing.T) {
		var count int32
		require.NoError(t, client.Subscribe("test.unsub", func(msg *nats.Msg) {
			atomic.AddInt32(&count, 1)
		}))
		require.NoError(t, client.Publish(ctx, "test.unsub", "one"))
		time.Sleep(200 * time.Millisecond)

		require.NoError(t, client.Unsubscribe("test.unsub"))
		require.NoError(t, client.Publish(ctx, "test.unsub", "two"))
		time.Sleep(200 * time.Millisecond)

		assert.Equal(t, int32(1), atomic.LoadInt32(&count))
	})
}

func TestQueueSubscribe(t *testing.T) {
	client := connect(t)
	other := connect(t)
	ctx := context.Background()

	t.Run("should deliver each event to one queue member", func(t *testing.T) {
		var count int32
		var wg sync.WaitGroup
		wg.Add(10)

		handler := func(msg *nats.Msg) {
			atomic.AddInt32(&count, 1)
			wg.Done()
		}
		require.NoError(t, client.QueueSubscribe("test.queue", "workers", handler))
		require.NoError(t, other.QueueSubscribe("test.queue", "workers", handler))

		for i := 0; i < 10; i++ {
			require.NoError(t, client.Publish(ctx, "test.queue", i))
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("queue delivery incomplete")
		}
		assert.Equal(t, int32(10), atomic.LoadInt32(&count))
	})
}

func TestRequestReply(t *testing.T) {
	client := connect(t)
	ctx := context.Background()

	t.Run("should round trip a request", func(t *testing.T) {
		require.NoError(t, client.Subscribe("test.echo", func(msg *nats.Msg) {
			msg.Respond(msg.Data)
		}))

		reply, err := client.Request(ctx, "test.echo", map[string]string{"ping": "pong"}, 2*time.Second)
		require.NoError(t, err)
		assert.Contains(t, string(reply.Data), "pong")
	})
}

func TestConnectionStatus(t *testing.T) {
	client := connect(t)

	t.Run("should report connection state and stats", func(t *testing.T) {
		assert.True(t, client.IsConnected())
		assert.Equal(t, 0, client.Reconnects())

		require.NoError(t, client.Publish(context.Background(), "test.stats", "x"))
		stats := client.Stats()
		assert.Greater(t, stats.OutMsgs, uint64(0))
	})

	t.Run("should drain and close", func(t *testing.T) {
		assert.NoError(t, client.Drain())
	})
}
