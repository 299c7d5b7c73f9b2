// Package session is the client-side room model: who the local user is in
// which room, which live subscriptions are open for that, and the hand-raise
// queue built from them.
//
// A Session is safe for concurrent use. Its lock is never held while calling
// the gateway or a hook. Every snapshot handler is bound to the session epoch
// it was armed in, so a late delivery from a torn down subscription cannot
// touch a newer session.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"handsup/backend/internal/listeners"
	"handsup/backend/internal/models"
)

// MinNameLength is the minimum length of a trimmed student name.
const MinNameLength = 2

// DefaultForceLeaveDelay is how long a closed-room notice stays readable
// before the session leaves on its own.
const DefaultForceLeaveDelay = 2 * time.Second

// Registry keys of the live subscriptions.
const (
	keyRoom         = "room"
	keyParticipants = "participants"
	keyHands        = "hands"
	keySelf         = "self"
)

// Options configure a Session.
type Options struct {
	// TeacherName is written on rooms created by this session.
	TeacherName string
	// ForceLeaveDelay defaults to DefaultForceLeaveDelay.
	ForceLeaveDelay time.Duration
	Hooks           Hooks
}

// Session is one local user's view of a room.
type Session struct {
	Rooms        *Rooms
	Participants *Participants
	Hands        *Hands

	gw       Gateway
	opts     Options
	hooks    Hooks
	registry *listeners.Registry

	mu           sync.Mutex
	role         Role
	epoch        uint64
	exiting      bool
	name         string
	handRaised   bool
	pendingHand  *bool
	room         *models.Room
	participants []models.Participant
	queue        []models.Participant
	handCount    int
	forceLeave   *time.Timer
}

// New creates a session in the NoSession state.
func New(gw Gateway, opts Options) *Session {
	if opts.ForceLeaveDelay <= 0 {
		opts.ForceLeaveDelay = DefaultForceLeaveDelay
	}
	s := &Session{
		gw:       gw,
		opts:     opts,
		hooks:    opts.Hooks,
		registry: listeners.NewRegistry(),
		role:     NoSession{},
	}
	s.Rooms = &Rooms{s: s}
	s.Participants = &Participants{s: s}
	s.Hands = &Hands{s: s}
	return s
}

// Listeners returns the number of live subscriptions.
func (s *Session) Listeners() int {
	return s.registry.Len()
}

// Close disposes every live subscription and cancels a pending forced leave
// without touching remote state, e.g. before the process exits. The role is
// kept so the caller can persist it for Rooms.Resume.
func (s *Session) Close() {
	s.mu.Lock()
	s.epoch++
	s.stopForceLeaveLocked()
	s.mu.Unlock()
	s.registry.DisposeAll()
}

// current returns the role and epoch, or ok=false when the session is
// tearing down.
func (s *Session) current() (Role, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role, s.epoch, !s.exiting
}

// valid reports whether a handler armed in epoch may still mutate state.
// Callers hold s.mu.
func (s *Session) validLocked(epoch uint64) bool {
	return s.epoch == epoch && !s.exiting
}

// enter switches to a new role and starts a new epoch.
func (s *Session) enter(role Role, room *models.Room) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.role = role
	s.room = room
	s.participants = nil
	s.queue = nil
	s.handCount = 0
	s.handRaised = false
	s.pendingHand = nil
	s.stopForceLeaveLocked()
	return s.epoch
}

// beginExit marks the session as tearing down. It returns the role that was
// active, or ok=false if there is nothing to tear down or another exit is
// already running. A non-zero epoch restricts the exit to that epoch.
func (s *Session) beginExit(epoch uint64) (Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, none := s.role.(NoSession); none || s.exiting {
		return s.role, false
	}
	if epoch != 0 && epoch != s.epoch {
		return s.role, false
	}
	s.exiting = true
	s.stopForceLeaveLocked()
	return s.role, true
}

// teardown disposes every subscription and resets to NoSession. The cached
// name is kept.
func (s *Session) teardown(reason ExitReason) {
	n := s.registry.DisposeAll()

	s.mu.Lock()
	code := roomCodeOf(s.role)
	s.epoch++
	s.role = NoSession{}
	s.exiting = false
	s.room = nil
	s.participants = nil
	s.queue = nil
	s.handCount = 0
	s.handRaised = false
	s.pendingHand = nil
	s.stopForceLeaveLocked()
	s.mu.Unlock()

	slog.Info("room session closed", "room", code, "reason", reason, "listeners", n)
	s.hooks.exit(reason)
}

func (s *Session) stopForceLeaveLocked() {
	if s.forceLeave != nil {
		s.forceLeave.Stop()
		s.forceLeave = nil
	}
}

// scheduleForceLeave starts the delayed forced leave for the room closed in
// epoch, once.
func (s *Session) scheduleForceLeave(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.validLocked(epoch) || s.forceLeave != nil {
		return false
	}
	s.forceLeave = time.AfterFunc(s.opts.ForceLeaveDelay, func() {
		if err := s.Rooms.forceLeave(context.Background(), epoch); err != nil {
			slog.Warn("forced leave incomplete", "err", err)
		}
	})
	return true
}

// arm opens a subscription under key through the registry.
func (s *Session) arm(key string, open func() (func(), error)) error {
	err := s.registry.Arm(key, open)
	if err != nil {
		slog.Warn("subscription failed", "key", key, "err", err)
		s.hooks.notify(SeverityError, MsgSubscriptionError, key)
	}
	return err
}
