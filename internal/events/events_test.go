package events

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestNewMessage(t *testing.T) {
	msg, err := NewMessage(StudentRemoved, map[string]string{"id": "s1"})
	require.NoError(t, err)
	assert.Equal(t, StudentRemoved, msg.Type)
	assert.JSONEq(t, `{"id":"s1"}`, string(msg.Body))
}

func TestInMemory_FanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewInMemory(4)

	a, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	b, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	Emit(ctx, bus, AttendanceMarked, map[string]string{"date": "2024-01-01"})

	assert.Equal(t, AttendanceMarked, recv(t, a).Type)
	assert.Equal(t, AttendanceMarked, recv(t, b).Type)
}

func TestInMemory_FullSubscriberDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := NewInMemory(1)
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(ctx, Message{Type: StudentAdded}))
	}
	assert.Len(t, ch, 1)
}

func TestInMemory_UnsubscribeOnCancel(t *testing.T) {
	bus := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Subscribers())

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, bus.Subscribers())
}

func TestEmit_NilBus(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(context.Background(), nil, StudentAdded, struct{}{})
	})
}

func TestRedisBus(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewRedisBus(client, "rollcall-test:events")
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	Emit(ctx, bus, StudentUpdated, map[string]string{"id": "s1"})

	msg := recv(t, ch)
	assert.Equal(t, StudentUpdated, msg.Type)
	assert.JSONEq(t, `{"id":"s1"}`, string(msg.Body))
}
