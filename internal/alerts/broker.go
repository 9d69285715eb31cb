package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Ammarmeer/drowsiness/internal/models"
)

const DefaultChannel = "drowsyguard:alerts"

// Connect builds a Redis client from a redis:// URL or a host:port address and pings it.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	var opts *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}
	if password != "" {
		opts.Password = password
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Broker publishes alerts on a Redis channel and relays everything on that channel,
// including its own messages, to the local hub. Every replica's clients see every alert.
type Broker struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger
}

func NewBroker(rdb *redis.Client, channel string, hub *Hub) *Broker {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Broker{
		rdb:     rdb,
		channel: channel,
		hub:     hub,
		logger:  slog.Default().With("component", "alerts-broker", "channel", channel),
	}
}

func (b *Broker) Publish(ctx context.Context, alert models.DrowsyAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Run relays channel messages to the hub until ctx is cancelled.
func (b *Broker) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("relaying alerts from redis")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis subscription closed")
			}
			b.relay(msg.Payload)
		}
	}
}

func (b *Broker) relay(payload string) {
	var alert models.DrowsyAlert
	if err := json.Unmarshal([]byte(payload), &alert); err != nil {
		b.logger.Warn("discarding malformed alert", "error", err)
		return
	}
	b.hub.Broadcast(alert)
}
