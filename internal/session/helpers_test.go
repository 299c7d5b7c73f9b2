package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"handsup/backend/internal/models"
	"handsup/backend/internal/session"
	"handsup/backend/internal/storage"
	"handsup/backend/internal/storage/memstore"

	"github.com/stretchr/testify/require"
)

// events records everything a session reports through its hooks.
type events struct {
	mu            sync.Mutex
	notifications []session.Notification
	exits         []session.ExitReason
	raisedCounts  []int
	handStates    []bool
	hands         [][]models.Participant
}

func (e *events) hooks() session.Hooks {
	return session.Hooks{
		Notify: func(n session.Notification) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.notifications = append(e.notifications, n)
		},
		OnHands: func(ps []models.Participant) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.hands = append(e.hands, ps)
		},
		OnHandsRaised: func(n int) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.raisedCounts = append(e.raisedCounts, n)
		},
		OnHandState: func(raised bool) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.handStates = append(e.handStates, raised)
		},
		OnExit: func(r session.ExitReason) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.exits = append(e.exits, r)
		},
	}
}

func (e *events) Raised() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.raisedCounts...)
}

func (e *events) Exits() []session.ExitReason {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]session.ExitReason(nil), e.exits...)
}

func (e *events) Keys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var keys []string
	for _, n := range e.notifications {
		keys = append(keys, n.Key)
	}
	return keys
}

// countingGateway counts how often each subscription's disposer runs.
type countingGateway struct {
	session.Gateway

	mu    sync.Mutex
	calls []*int
}

func (g *countingGateway) track(unsub storage.Unsubscribe, err error) (storage.Unsubscribe, error) {
	if err != nil {
		return nil, err
	}
	n := new(int)
	g.mu.Lock()
	g.calls = append(g.calls, n)
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		*n++
		g.mu.Unlock()
		unsub()
	}, nil
}

func (g *countingGateway) Disposals() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]int, len(g.calls))
	for i, n := range g.calls {
		out[i] = *n
	}
	return out
}

func (g *countingGateway) SubscribeRoom(ctx context.Context, code string, fn func(*models.Room)) (storage.Unsubscribe, error) {
	return g.track(g.Gateway.SubscribeRoom(ctx, code, fn))
}

func (g *countingGateway) SubscribeParticipant(ctx context.Context, id string, fn func(*models.Participant)) (storage.Unsubscribe, error) {
	return g.track(g.Gateway.SubscribeParticipant(ctx, id, fn))
}

func (g *countingGateway) SubscribeParticipantsInRoom(ctx context.Context, code string, fn func([]models.Participant)) (storage.Unsubscribe, error) {
	return g.track(g.Gateway.SubscribeParticipantsInRoom(ctx, code, fn))
}

func (g *countingGateway) SubscribeRaisedHandsInRoom(ctx context.Context, code string, fn func([]models.Participant)) (storage.Unsubscribe, error) {
	return g.track(g.Gateway.SubscribeRaisedHandsInRoom(ctx, code, fn))
}

func newStore() *storage.Gateway {
	return storage.NewGateway(memstore.New(), storage.NewLocalFeed())
}

func newSession(gw session.Gateway, ev *events) *session.Session {
	opts := session.Options{TeacherName: "Ms. Ada", ForceLeaveDelay: 20 * time.Millisecond}
	if ev != nil {
		opts.Hooks = ev.hooks()
	}
	return session.New(gw, opts)
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}
