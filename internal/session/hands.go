package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"handsup/backend/internal/models"
)

// Hands is the hand-raise queue. Students toggle their hand, the teacher
// watches the queue and acknowledges.
type Hands struct {
	s *Session
}

// RaiseHand toggles the local student's hand from its last known state and
// returns the new state. The write is an idempotent set, so a retried call
// cannot flip the hand twice.
func (h *Hands) RaiseHand(ctx context.Context) (bool, error) {
	s := h.s
	s.mu.Lock()
	a, ok := s.role.(Attending)
	if !ok || a.Joining() || s.exiting {
		s.mu.Unlock()
		return false, ErrNotJoined
	}
	raise := !s.handRaised
	epoch := s.epoch
	// the self subscription may echo this write before the call returns
	s.pendingHand = &raise
	s.mu.Unlock()

	err := s.gw.SetHandRaised(ctx, a.ParticipantID, raise)

	s.mu.Lock()
	changed := false
	if s.epoch == epoch {
		if s.pendingHand == &raise {
			s.pendingHand = nil
		}
		if err == nil {
			changed = s.handRaised != raise
			s.handRaised = raise
		}
	}
	s.mu.Unlock()

	if err != nil {
		return !raise, fmt.Errorf("set hand: %w", err)
	}

	if changed {
		s.hooks.handState(raise)
	}
	if raise {
		s.hooks.notify(SeveritySuccess, MsgHandRaised)
	} else {
		s.hooks.notify(SeverityInfo, MsgHandLowered)
	}
	return raise, nil
}

// AcknowledgeHand lowers the hand of participantID, whoever raised it.
func (h *Hands) AcknowledgeHand(ctx context.Context, participantID string) error {
	if _, ok := h.s.Role().(Teaching); !ok {
		return ErrNotTeacher
	}
	if err := h.s.gw.SetHandRaised(ctx, participantID, false); err != nil {
		return fmt.Errorf("acknowledge hand: %w", err)
	}
	return nil
}

// ClearAllHands lowers every hand currently in the queue.
func (h *Hands) ClearAllHands(ctx context.Context) (BulkReport, error) {
	if _, ok := h.s.Role().(Teaching); !ok {
		return BulkReport{}, ErrNotTeacher
	}
	var report BulkReport
	for _, p := range h.Queue() {
		err := h.s.gw.SetHandRaised(ctx, p.ID, false)
		if err != nil {
			slog.Warn("hand not lowered", "participant", p.ID, "err", err)
		}
		report.record(p.ID, err)
	}
	h.s.hooks.notify(SeverityInfo, MsgHandsCleared, len(report.Succeeded))
	return report, report.Err()
}

// ListenToRaisedHands (re)subscribes to the raised hands of the taught
// room. A previous subscription is disposed first.
func (h *Hands) ListenToRaisedHands(ctx context.Context) error {
	s := h.s
	role, epoch, ok := s.current()
	t, teaching := role.(Teaching)
	if !teaching || !ok {
		return ErrNotTeacher
	}
	return s.arm(keyHands, func() (func(), error) {
		return s.gw.SubscribeRaisedHandsInRoom(ctx, t.RoomCode, func(ps []models.Participant) {
			h.replace(epoch, ps)
		})
	})
}

// replace swaps in a new snapshot of the queue. The queue growing fires
// OnHandsRaised once per snapshot, never on shrink or equal size.
func (h *Hands) replace(epoch uint64, snapshot []models.Participant) {
	s := h.s
	queue := SortQueue(snapshot)

	s.mu.Lock()
	if !s.validLocked(epoch) {
		s.mu.Unlock()
		return
	}
	prev := s.handCount
	s.queue = queue
	s.handCount = len(queue)
	s.mu.Unlock()

	s.hooks.hands(append([]models.Participant(nil), queue...))
	if len(queue) > prev {
		s.hooks.handsRaised(len(queue))
		s.hooks.notify(SeverityInfo, MsgHandsWaiting, len(queue))
	}
}

// Queue returns the current queue, oldest raise first.
func (h *Hands) Queue() []models.Participant {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return append([]models.Participant(nil), h.s.queue...)
}

// SortQueue returns a copy of ps ordered by HandRaisedAt. Entries without a
// timestamp come first; ties keep their input order.
func SortQueue(ps []models.Participant) []models.Participant {
	out := append([]models.Participant(nil), ps...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].HandRaisedAt, out[j].HandRaisedAt
		switch {
		case a == nil:
			return b != nil
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})
	return out
}
