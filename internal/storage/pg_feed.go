package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// PGFeed fans change notifications out through Postgres LISTEN/NOTIFY.
// It needs no Redis and suits deployments that already share one database.
// One pq.Listener connection is shared by all subscriptions; a channel is
// LISTENed while at least one subscription wants it.
type PGFeed struct {
	db       *gorm.DB
	listener *pq.Listener

	mu   sync.Mutex
	subs map[string]map[*pgSub]struct{}
	done chan struct{}
}

// NewPGFeed opens a dedicated listener connection on dsn. Notifications are
// sent through db.
func NewPGFeed(db *gorm.DB, dsn string) *PGFeed {
	f := &PGFeed{
		db:   db,
		subs: make(map[string]map[*pgSub]struct{}),
		done: make(chan struct{}),
	}
	f.listener = pq.NewListener(dsn, 10*time.Second, time.Minute, f.onEvent)
	go f.dispatch()
	return f
}

func (f *PGFeed) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
		slog.Warn("postgres listener connection problem", "event", ev, "err", err)
	case pq.ListenerEventReconnected:
		slog.Info("postgres listener reconnected")
		// Notifications sent while disconnected are lost; wake everyone up so
		// they re-read the current state.
		f.broadcastAll()
	}
}

func (f *PGFeed) dispatch() {
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-f.done:
			return
		case n, ok := <-f.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// nil notification after a reconnect
				continue
			}
			f.deliver(n.Channel)
		case <-ping.C:
			if err := f.listener.Ping(); err != nil {
				slog.Warn("postgres listener ping failed", "err", err)
			}
		}
	}
}

func (f *PGFeed) deliver(topic string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.subs[topic] {
		s.notify(topic)
	}
}

func (f *PGFeed) broadcastAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for topic, subs := range f.subs {
		for s := range subs {
			s.notify(topic)
		}
	}
}

// Publish sends NOTIFY on topic.
func (f *PGFeed) Publish(ctx context.Context, topic string) error {
	if err := f.db.WithContext(ctx).Exec("SELECT pg_notify(?, '')", topic).Error; err != nil {
		return fmt.Errorf("pg_notify %s: %w", topic, err)
	}
	return nil
}

// Subscribe starts listening on topics.
func (f *PGFeed) Subscribe(_ context.Context, topics ...string) (FeedSubscription, error) {
	s := &pgSub{feed: f, topics: topics, ch: make(chan string, 1)}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range topics {
		subs, ok := f.subs[t]
		if !ok {
			if err := f.listener.Listen(t); err != nil && err != pq.ErrChannelAlreadyOpen {
				f.removeLocked(s, topics[:i])
				return nil, fmt.Errorf("listen %s: %w", t, err)
			}
			subs = make(map[*pgSub]struct{})
			f.subs[t] = subs
		}
		subs[s] = struct{}{}
	}
	return s, nil
}

func (f *PGFeed) removeLocked(s *pgSub, topics []string) {
	for _, t := range topics {
		subs, ok := f.subs[t]
		if !ok {
			continue
		}
		delete(subs, s)
		if len(subs) == 0 {
			delete(f.subs, t)
			if err := f.listener.Unlisten(t); err != nil {
				slog.Debug("postgres unlisten failed", "topic", t, "err", err)
			}
		}
	}
}

// Close stops the dispatcher and closes the listener connection.
func (f *PGFeed) Close() error {
	close(f.done)
	return f.listener.Close()
}

type pgSub struct {
	feed   *PGFeed
	topics []string
	ch     chan string
	once   sync.Once
}

func (s *pgSub) notify(topic string) {
	select {
	case s.ch <- topic:
	default:
	}
}

func (s *pgSub) C() <-chan string { return s.ch }

func (s *pgSub) Close() error {
	s.once.Do(func() {
		s.feed.mu.Lock()
		s.feed.removeLocked(s, s.topics)
		s.feed.mu.Unlock()
	})
	return nil
}
