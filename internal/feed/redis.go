package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"termchat/internal/redis"
)

const redisFeedChannel = "chat:feed"

// Redis publishes feed events over a redis pub/sub channel so every server
// replica and relay sees the same stream.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps a redis client as a change feed.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Publish broadcasts the event as JSON.
func (r *Redis) Publish(ctx context.Context, ev Event) error {
	if r == nil || r.client == nil {
		return errors.New("redis feed not initialized")
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, redisFeedChannel, payload)
}

// Subscribe opens a pub/sub subscription and pumps decoded events into fn
// until cancel is called.
func (r *Redis) Subscribe(ctx context.Context, fn func(Event)) (func(), error) {
	if r == nil || r.client == nil {
		return nil, errors.New("redis feed not initialized")
	}
	pubsub := r.client.Subscribe(ctx, redisFeedChannel)
	if pubsub == nil {
		return nil, errors.New("redis feed not initialized")
	}
	ch := pubsub.Channel()
	go func() {
		for msg := range ch {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("feed event decode failed: %v", err)
				continue
			}
			fn(ev)
		}
	}()
	return func() { _ = pubsub.Close() }, nil
}
