// Package hub serves live subscriptions over websockets. Every connected
// client multiplexes any number of room and participant subscriptions on one
// connection; each subscription pushes full snapshots.
package hub

import (
	"context"
	"log/slog"

	"handsup/backend/internal/models"
	"handsup/backend/internal/storage"
)

// Subscriber opens live subscriptions. *storage.Gateway implements it.
type Subscriber interface {
	SubscribeRoom(ctx context.Context, code string, onChange func(*models.Room)) (storage.Unsubscribe, error)
	SubscribeParticipant(ctx context.Context, id string, onChange func(*models.Participant)) (storage.Unsubscribe, error)
	SubscribeParticipantsInRoom(ctx context.Context, roomCode string, onChange func([]models.Participant)) (storage.Unsubscribe, error)
	SubscribeRaisedHandsInRoom(ctx context.Context, roomCode string, onChange func([]models.Participant)) (storage.Unsubscribe, error)
}

// Manager owns the set of connected clients. All changes to the set go
// through Run.
type Manager struct {
	Clients map[string]*Client

	RegisterCh   chan *Client
	UnregisterCh chan *Client

	Gateway Subscriber

	countCh chan chan int
	done    chan struct{}
}

func NewManager(gw Subscriber) *Manager {
	return &Manager{
		Clients:      make(map[string]*Client),
		RegisterCh:   make(chan *Client),
		UnregisterCh: make(chan *Client),
		Gateway:      gw,
		countCh:      make(chan chan int),
		done:         make(chan struct{}),
	}
}

// Run processes registrations until ctx is done, then closes every client.
func (m *Manager) Run(ctx context.Context) {
	defer func() {
		for id, c := range m.Clients {
			c.Close()
			delete(m.Clients, id)
		}
		close(m.done)
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub stopping", "clients", len(m.Clients))
			return

		case c := <-m.RegisterCh:
			if old, ok := m.Clients[c.ID]; ok && old != c {
				// same client id reconnected; the old socket is dead weight
				old.Close()
			}
			m.Clients[c.ID] = c
			slog.Debug("client registered", "client", c.ID, "clients", len(m.Clients))

		case c := <-m.UnregisterCh:
			if cur, ok := m.Clients[c.ID]; ok && cur == c {
				delete(m.Clients, c.ID)
			}
			c.Close()
			slog.Debug("client unregistered", "client", c.ID, "clients", len(m.Clients))

		case reply := <-m.countCh:
			reply <- len(m.Clients)
		}
	}
}

// Register hands c to the run loop. It reports false once the hub stopped.
func (m *Manager) Register(c *Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.done:
		return false
	}
}

// Unregister removes c and closes it. Safe to call after the hub stopped.
func (m *Manager) Unregister(c *Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
		c.Close()
	}
}

// Count returns the number of registered clients, or 0 once the hub stopped.
func (m *Manager) Count() int {
	reply := make(chan int, 1)
	select {
	case m.countCh <- reply:
		return <-reply
	case <-m.done:
		return 0
	}
}

// Done is closed when Run has returned.
func (m *Manager) Done() <-chan struct{} { return m.done }
