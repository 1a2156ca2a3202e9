package events

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"rollcall/internal/logger"
)

// RedisBus publishes messages on a Redis Pub/Sub channel so other
// processes (the worker) can follow changes.
type RedisBus struct {
	client  *redis.Client
	channel string
}

// NewRedisBus uses PUBLISH/SUBSCRIBE on channel.
func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = "rollcall:events"
	}
	return &RedisBus{client: client, channel: channel}
}

// Publish sends msg to the channel.
func (b *RedisBus) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe streams decoded messages from the channel.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Message, error) {
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		defer ps.Close()
		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					logger.Logger.Warn().Err(err).Msg("dropping undecodable event")
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
