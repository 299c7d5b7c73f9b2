package models

// Frame types exchanged over the realtime websocket.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameSnapshot    = "snapshot"
	FrameError       = "error"
)

// Subscription targets.
const (
	TargetRoom         = "room"
	TargetParticipant  = "participant"
	TargetParticipants = "participants"
	TargetRaisedHands  = "raised_hands"
)

// SubscriptionRequest is sent by a client to open or close a live subscription.
// Key is chosen by the client and echoed on every snapshot; ID is the room code
// or the participant id, depending on Target.
type SubscriptionRequest struct {
	Type   string `json:"type"`
	Key    string `json:"key"`
	Target string `json:"target,omitempty"`
	ID     string `json:"id,omitempty"`
}

// SnapshotFrame carries the full current state of a subscription target.
// For TargetRoom and TargetParticipant a nil document means it does not exist.
type SnapshotFrame struct {
	Type         string        `json:"type"`
	Key          string        `json:"key"`
	Target       string        `json:"target,omitempty"`
	Room         *Room         `json:"room,omitempty"`
	Participant  *Participant  `json:"participant,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	Error        string        `json:"error,omitempty"`
}
