package session

import (
	"handsup/backend/internal/models"
)

// Severity classifies a notification for the presentation layer.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Notification keys emitted by the session.
const (
	MsgRoomCreated       = "room.created"
	MsgRoomJoined        = "room.joined"
	MsgRoomEnded         = "room.ended"
	MsgRoomEndedPartial  = "room.ended_partial"
	MsgRoomClosed        = "room.closed"
	MsgRoomLeft          = "room.left"
	MsgNameRegistered    = "participant.registered"
	MsgNameRestored      = "participant.restored"
	MsgHandRaised        = "hand.raised"
	MsgHandLowered       = "hand.lowered"
	MsgHandAcknowledged  = "hand.acknowledged"
	MsgHandsWaiting      = "hands.waiting"
	MsgHandsCleared      = "hands.cleared"
	MsgSubscriptionError = "subscription.failed"
)

// Notification is a user-facing message. Key selects the text, Args fill it in.
type Notification struct {
	Severity Severity
	Key      string
	Args     []any
}

// ExitReason tells why a session went back to NoSession.
type ExitReason string

const (
	ExitEnded      ExitReason = "ended"
	ExitLeft       ExitReason = "left"
	ExitRoomClosed ExitReason = "room_closed"
)

// Hooks are the presentation callbacks. Any of them may be nil. They are
// never called with the session lock held, and may be called from
// subscription goroutines.
type Hooks struct {
	Notify         func(Notification)
	OnRoom         func(*models.Room)
	OnParticipants func([]models.Participant)
	OnHands        func([]models.Participant)
	// OnHandsRaised fires when the queue grows, with the new length.
	OnHandsRaised func(count int)
	// OnHandState reports the local student's hand state.
	OnHandState func(raised bool)
	OnExit      func(ExitReason)
}

func (h Hooks) notify(sev Severity, key string, args ...any) {
	if h.Notify != nil {
		h.Notify(Notification{Severity: sev, Key: key, Args: args})
	}
}

func (h Hooks) room(r *models.Room) {
	if h.OnRoom != nil {
		h.OnRoom(r)
	}
}

func (h Hooks) participants(ps []models.Participant) {
	if h.OnParticipants != nil {
		h.OnParticipants(ps)
	}
}

func (h Hooks) hands(ps []models.Participant) {
	if h.OnHands != nil {
		h.OnHands(ps)
	}
}

func (h Hooks) handsRaised(n int) {
	if h.OnHandsRaised != nil {
		h.OnHandsRaised(n)
	}
}

func (h Hooks) handState(raised bool) {
	if h.OnHandState != nil {
		h.OnHandState(raised)
	}
}

func (h Hooks) exit(reason ExitReason) {
	if h.OnExit != nil {
		h.OnExit(reason)
	}
}
