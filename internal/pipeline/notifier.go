package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// ModelChannel is the Redis channel promotions are announced on.
const ModelChannel = "shotpredict:models"

// ModelEvent announces a newly promoted model.
type ModelEvent struct {
	Model      string    `json:"model"`
	Version    int       `json:"version"`
	Accuracy   float64   `json:"accuracy"`
	Path       string    `json:"path"`
	PromotedAt time.Time `json:"promoted_at"`
}

// Notifier tells serving processes that the promoted model changed.
type Notifier interface {
	ModelPromoted(ctx context.Context, ev ModelEvent) error
}

type nopNotifier struct{}

func (nopNotifier) ModelPromoted(context.Context, ModelEvent) error { return nil }

// Publisher is the subset of the Redis client RedisNotifier needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type RedisNotifier struct {
	client  Publisher
	channel string
}

func NewRedisNotifier(client Publisher) *RedisNotifier {
	return &RedisNotifier{client: client, channel: ModelChannel}
}

func (n *RedisNotifier) ModelPromoted(ctx context.Context, ev ModelEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", n.channel, err)
	}
	return nil
}
