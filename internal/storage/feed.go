package storage

import (
	"context"
	"sync"
)

// Feed carries change notifications between writers and subscribers.
// A notification only names the topic that changed; subscribers re-read
// the current state from the repository.
type Feed interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topics ...string) (FeedSubscription, error)
}

// FeedSubscription delivers the names of changed topics on C until Close.
// Notifications for the same topic may be coalesced.
type FeedSubscription interface {
	C() <-chan string
	Close() error
}

// RoomTopic is the topic of a room document.
func RoomTopic(code string) string { return "room:" + code }

// ParticipantsTopic is the topic of the participant set of a room.
func ParticipantsTopic(code string) string { return "participants:" + code }

// ParticipantTopic is the topic of a single participant document.
func ParticipantTopic(id string) string { return "participant:" + id }

// LocalFeed is an in-process Feed for single-node deployments and tests.
type LocalFeed struct {
	mu     sync.RWMutex
	topics map[string]map[*localSub]struct{}
}

// NewLocalFeed creates an empty in-process feed.
func NewLocalFeed() *LocalFeed {
	return &LocalFeed{topics: make(map[string]map[*localSub]struct{})}
}

type localSub struct {
	feed   *LocalFeed
	topics []string
	ch     chan string
	once   sync.Once
}

func (s *localSub) C() <-chan string { return s.ch }

func (s *localSub) Close() error {
	s.once.Do(func() {
		s.feed.remove(s)
	})
	return nil
}

// Publish notifies every subscriber of topic. It never blocks: a subscriber
// that still has an undelivered notification already knows it must re-read.
func (f *LocalFeed) Publish(_ context.Context, topic string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for s := range f.topics[topic] {
		select {
		case s.ch <- topic:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscription on topics.
func (f *LocalFeed) Subscribe(_ context.Context, topics ...string) (FeedSubscription, error) {
	s := &localSub{feed: f, topics: topics, ch: make(chan string, 1)}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		subs, ok := f.topics[t]
		if !ok {
			subs = make(map[*localSub]struct{})
			f.topics[t] = subs
		}
		subs[s] = struct{}{}
	}
	return s, nil
}

func (f *LocalFeed) remove(s *localSub) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range s.topics {
		if subs, ok := f.topics[t]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(f.topics, t)
			}
		}
	}
}
