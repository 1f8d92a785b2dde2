package redis

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/event-bookings-and-payouts/internal/service"
)

const AdminChannel = "ebp:v1:admin:notifications"

// AdminBroadcaster fans admin notifications out to every API instance.
type AdminBroadcaster struct {
	client  *redis.Client
	channel string
}

func NewAdminBroadcaster(client *redis.Client) *AdminBroadcaster {
	return &AdminBroadcaster{client: client, channel: AdminChannel}
}

func (b *AdminBroadcaster) Broadcast(ctx context.Context, n service.AdminNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "encode admin notification")
	}
	return b.client.Publish(ctx, b.channel, string(payload)).Err()
}

// Subscribe streams notifications until ctx ends. Undecodable messages are dropped.
func (b *AdminBroadcaster) Subscribe(ctx context.Context) (<-chan service.AdminNotification, error) {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, errors.Wrap(err, "subscribe admin channel")
	}

	out := make(chan service.AdminNotification, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel(redis.WithChannelSize(64))
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var n service.AdminNotification
				if err := json.Unmarshal([]byte(m.Payload), &n); err != nil {
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
