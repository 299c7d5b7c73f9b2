package session

import "handsup/backend/internal/models"

// PushHands feeds a raised-hands snapshot as if it came from the live subscription.
func (h *Hands) PushHands(ps []models.Participant) {
	h.s.mu.Lock()
	epoch := h.s.epoch
	h.s.mu.Unlock()
	h.replace(epoch, ps)
}
