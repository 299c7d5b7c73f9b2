package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisFeed fans change notifications out through Redis Pub/Sub, so every
// server instance sharing the Redis sees every write.
type RedisFeed struct {
	Redis *redis.Client
}

// NewRedisFeed creates a feed over rdb.
func NewRedisFeed(rdb *redis.Client) *RedisFeed {
	return &RedisFeed{Redis: rdb}
}

// Publish publishes a change notification on topic.
func (f *RedisFeed) Publish(ctx context.Context, topic string) error {
	if err := f.Redis.Publish(ctx, topic, "changed").Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe subscribes to topics and waits for Redis to confirm, so that no
// write issued after Subscribe returns can be missed.
func (f *RedisFeed) Subscribe(ctx context.Context, topics ...string) (FeedSubscription, error) {
	ps := f.Redis.Subscribe(ctx, topics...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	s := &redisSub{ps: ps, ch: make(chan string, 1), done: make(chan struct{})}
	go s.pump()
	return s, nil
}

type redisSub struct {
	ps   *redis.PubSub
	ch   chan string
	done chan struct{}
	once sync.Once
}

func (s *redisSub) pump() {
	defer close(s.ch)
	msgs := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			select {
			case s.ch <- msg.Channel:
			default:
			}
		}
	}
}

func (s *redisSub) C() <-chan string { return s.ch }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
		if err != nil {
			slog.Debug("redis pubsub close failed", "err", err)
		}
	})
	return err
}
